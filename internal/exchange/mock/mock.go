// Package mock provides an in-memory exchange used by the simulation binary
// and by tests that drive the executor and daemon without network access.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bonsaidca/bonsai/internal/exchange"
	"github.com/bonsaidca/bonsai/internal/types"
)

// Submission records one PlaceLimitOrder call.
type Submission struct {
	Market   string
	Side     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

type orderState struct {
	status    exchange.StatusResult
	pollsLeft int
}

// Client is a scriptable in-memory exchange.Client. Zero value is not usable;
// construct with NewClient and register markets with SetMarket.
type Client struct {
	mu      sync.Mutex
	details map[string]*exchange.MarketDetails
	books   map[string]*exchange.BookTop
	orders  map[string]*orderState

	// Submissions lists every accepted or rejected PlaceLimitOrder call.
	Submissions []Submission

	// RejectReason, when set, cancels every submission on arrival with this
	// reason instead of resting it on the book.
	RejectReason string

	// SubmitErr and StatusErr, when set, fail the corresponding calls.
	SubmitErr error
	StatusErr error

	// FillAfterPolls marks a live order complete after this many status
	// polls. Zero keeps orders live until completed or cancelled explicitly.
	FillAfterPolls int
}

func NewClient() *Client {
	return &Client{
		details: make(map[string]*exchange.MarketDetails),
		books:   make(map[string]*exchange.BookTop),
		orders:  make(map[string]*orderState),
	}
}

// Factory returns an exchange.Factory handing out this same client for every
// credential, so tests can register it for any exchange identifier.
func (c *Client) Factory() exchange.Factory {
	return func(_ *types.Credential) exchange.Client { return c }
}

// SetMarket registers a market's trading rules and current book top.
func (c *Client) SetMarket(details *exchange.MarketDetails, book *exchange.BookTop) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details[details.Market] = details
	c.books[details.Market] = book
}

func (c *Client) MarketDetails(_ context.Context, market string) (*exchange.MarketDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	details, ok := c.details[market]
	if !ok {
		return nil, fmt.Errorf("%w: %s", exchange.ErrMarketNotFound, market)
	}
	return details, nil
}

func (c *Client) BookTop(_ context.Context, market string) (*exchange.BookTop, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	book, ok := c.books[market]
	if !ok || book == nil {
		return nil, fmt.Errorf("%w: %s", exchange.ErrMarketDataUnavailable, market)
	}
	return book, nil
}

func (c *Client) PlaceLimitOrder(_ context.Context, market, side string, quantity, price decimal.Decimal) (*exchange.SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SubmitErr != nil {
		return nil, c.SubmitErr
	}

	c.Submissions = append(c.Submissions, Submission{
		Market:   market,
		Side:     side,
		Quantity: quantity,
		Price:    price,
	})

	orderID := uuid.New().String()

	if c.RejectReason != "" {
		raw := fmt.Sprintf(`{"order_id":%q,"is_live":false,"is_cancelled":true,"reason":%q}`, orderID, c.RejectReason)
		return &exchange.SubmitResult{
			ExchangeOrderID: orderID,
			IsLive:          false,
			IsCancelled:     true,
			Reason:          c.RejectReason,
			RawData:         raw,
		}, nil
	}

	c.orders[orderID] = &orderState{
		status:    exchange.StatusResult{IsLive: true, RawData: fmt.Sprintf(`{"order_id":%q,"is_live":true}`, orderID)},
		pollsLeft: c.FillAfterPolls,
	}

	return &exchange.SubmitResult{
		ExchangeOrderID: orderID,
		IsLive:          true,
		RawData:         fmt.Sprintf(`{"order_id":%q,"is_live":true,"is_cancelled":false}`, orderID),
	}, nil
}

func (c *Client) OrderStatus(_ context.Context, exchangeOrderID string) (*exchange.StatusResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.StatusErr != nil {
		return nil, c.StatusErr
	}

	state, ok := c.orders[exchangeOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown order %s", exchange.ErrTransport, exchangeOrderID)
	}

	if state.status.IsLive && c.FillAfterPolls > 0 {
		state.pollsLeft--
		if state.pollsLeft <= 0 {
			state.status = exchange.StatusResult{
				IsLive:  false,
				RawData: fmt.Sprintf(`{"order_id":%q,"is_live":false,"is_cancelled":false}`, exchangeOrderID),
			}
		}
	}

	status := state.status
	return &status, nil
}

// CompleteOrder transitions a live order to filled, as the exchange would
// report after the resting order traded.
func (c *Client) CompleteOrder(exchangeOrderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[exchangeOrderID] = &orderState{status: exchange.StatusResult{
		IsLive:  false,
		RawData: fmt.Sprintf(`{"order_id":%q,"is_live":false,"is_cancelled":false}`, exchangeOrderID),
	}}
}

// CancelOrder transitions a live order to cancelled.
func (c *Client) CancelOrder(exchangeOrderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[exchangeOrderID] = &orderState{status: exchange.StatusResult{
		IsLive:      false,
		IsCancelled: true,
		RawData:     fmt.Sprintf(`{"order_id":%q,"is_live":false,"is_cancelled":true}`, exchangeOrderID),
	}}
}
