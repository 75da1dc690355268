package gemini

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bonsaidca/bonsai/internal/exchange"
	"github.com/bonsaidca/bonsai/internal/types"
)

const defaultBaseURL = "https://api.gemini.com/v1"

// Client is an authenticated Gemini REST client implementing
// exchange.Client. Private endpoints sign a base64 JSON payload with
// HMAC-SHA384 per Gemini's scheme.
type Client struct {
	apiKey     string
	apiSecret  []byte
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client bound to one credential.
func NewClient(credential *types.Credential) *Client {
	return &Client{
		apiKey:     credential.APIKey,
		apiSecret:  []byte(credential.APISecret),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Factory adapts NewClient to the registry's factory signature.
func Factory(credential *types.Credential) exchange.Client {
	return NewClient(credential)
}

type symbolDetailsPayload struct {
	Symbol         string          `json:"symbol"`
	BaseCurrency   string          `json:"base_currency"`
	QuoteCurrency  string          `json:"quote_currency"`
	TickSize       decimal.Decimal `json:"tick_size"`
	QuoteIncrement decimal.Decimal `json:"quote_increment"`
	MinOrderSize   decimal.Decimal `json:"min_order_size"`
	Status         string          `json:"status"`
}

type bookEntry struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

type bookPayload struct {
	Bids []bookEntry `json:"bids"`
	Asks []bookEntry `json:"asks"`
}

type orderPayload struct {
	OrderID     string `json:"order_id"`
	IsLive      bool   `json:"is_live"`
	IsCancelled bool   `json:"is_cancelled"`
	Reason      string `json:"reason"`
}

type errorPayload struct {
	Result  string `json:"result"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// MarketDetails fetches trading rules from /symbols/details. Gemini's
// tick_size is the base currency increment; quote_increment is the price tick.
func (c *Client) MarketDetails(ctx context.Context, market string) (*exchange.MarketDetails, error) {
	body, err := c.publicRequest(ctx, "/symbols/details/"+market)
	if err != nil {
		return nil, err
	}

	var details symbolDetailsPayload
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("%w: decoding symbol details: %v", exchange.ErrTransport, err)
	}

	return &exchange.MarketDetails{
		Market:         market,
		BaseCurrency:   details.BaseCurrency,
		QuoteCurrency:  details.QuoteCurrency,
		MinOrderSize:   details.MinOrderSize,
		BaseIncrement:  details.TickSize,
		QuoteIncrement: details.QuoteIncrement,
	}, nil
}

// BookTop fetches the best bid and ask from /book.
func (c *Client) BookTop(ctx context.Context, market string) (*exchange.BookTop, error) {
	body, err := c.publicRequest(ctx, "/book/"+market)
	if err != nil {
		return nil, err
	}

	var book bookPayload
	if err := json.Unmarshal(body, &book); err != nil {
		return nil, fmt.Errorf("%w: decoding order book: %v", exchange.ErrTransport, err)
	}

	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return nil, fmt.Errorf("%w: empty order book for %s", exchange.ErrMarketDataUnavailable, market)
	}

	return &exchange.BookTop{
		BestBid: book.Bids[0].Price,
		BestAsk: book.Asks[0].Price,
	}, nil
}

// PlaceLimitOrder submits a maker-or-cancel exchange limit order.
func (c *Client) PlaceLimitOrder(ctx context.Context, market, side string, quantity, price decimal.Decimal) (*exchange.SubmitResult, error) {
	if side != types.SideBuy && side != types.SideSell {
		return nil, fmt.Errorf("invalid order side: %s", side)
	}

	payload := map[string]interface{}{
		"symbol":  market,
		"amount":  quantity.String(),
		"price":   price.String(),
		"side":    side,
		"type":    "exchange limit",
		"options": []string{"maker-or-cancel"},
	}

	body, err := c.privateRequest(ctx, "/order/new", payload)
	if err != nil {
		return nil, err
	}

	var order orderPayload
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("%w: decoding order response: %v", exchange.ErrTransport, err)
	}

	return &exchange.SubmitResult{
		ExchangeOrderID: order.OrderID,
		IsLive:          order.IsLive,
		IsCancelled:     order.IsCancelled,
		Reason:          order.Reason,
		RawData:         string(body),
	}, nil
}

// OrderStatus polls /order/status for a previously placed order.
func (c *Client) OrderStatus(ctx context.Context, exchangeOrderID string) (*exchange.StatusResult, error) {
	payload := map[string]interface{}{
		"order_id":       exchangeOrderID,
		"include_trades": false,
	}

	body, err := c.privateRequest(ctx, "/order/status", payload)
	if err != nil {
		return nil, err
	}

	var order orderPayload
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("%w: decoding order status: %v", exchange.ErrTransport, err)
	}

	return &exchange.StatusResult{
		IsLive:      order.IsLive,
		IsCancelled: order.IsCancelled,
		RawData:     string(body),
	}, nil
}

func (c *Client) publicRequest(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrTransport, err)
	}
	return c.do(req)
}

func (c *Client) privateRequest(ctx context.Context, endpoint string, payload map[string]interface{}) ([]byte, error) {
	// Millisecond nonce avoids InvalidNonce rejections on consecutive calls.
	payload["nonce"] = fmt.Sprintf("%d", time.Now().UnixMilli())
	payload["request"] = "/v1" + endpoint

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding payload: %v", exchange.ErrTransport, err)
	}

	b64 := base64.StdEncoding.EncodeToString(encoded)
	mac := hmac.New(sha512.New384, c.apiSecret)
	mac.Write([]byte(b64))
	signature := hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrTransport, err)
	}

	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Content-Length", "0")
	req.Header.Set("X-GEMINI-APIKEY", c.apiKey)
	req.Header.Set("X-GEMINI-PAYLOAD", b64)
	req.Header.Set("X-GEMINI-SIGNATURE", signature)
	req.Header.Set("Cache-Control", "no-cache")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", exchange.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorPayload
		// Best effort: Gemini error bodies are JSON but a proxy's may not be.
		_ = json.Unmarshal(body, &apiErr)
		return nil, &exchange.RequestError{
			StatusCode: resp.StatusCode,
			Reason:     apiErr.Reason,
			Body:       string(body),
		}
	}

	return body, nil
}
