package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReasonMakerOrCancelWouldTake is the normalized cancellation reason for a
// maker-or-cancel order that would have crossed the spread. Clients map their
// exchange's wire reason onto this value.
const ReasonMakerOrCancelWouldTake = "MakerOrCancelWouldTake"

// MarketDetails is a market's trading rules from the exchange's symbol
// details endpoint. All submitted prices must be multiples of QuoteIncrement
// and all quantities multiples of BaseIncrement.
type MarketDetails struct {
	Market         string
	BaseCurrency   string
	QuoteCurrency  string
	MinOrderSize   decimal.Decimal
	BaseIncrement  decimal.Decimal
	QuoteIncrement decimal.Decimal
}

// BookTop is the best resting price on each side of the order book.
type BookTop struct {
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
}

// SubmitResult is the exchange's response to a new limit order. RawData is
// the verbatim response body, persisted for audit. Reason carries the
// exchange's cancellation reason when the order was cancelled on arrival.
type SubmitResult struct {
	ExchangeOrderID string
	IsLive          bool
	IsCancelled     bool
	Reason          string
	RawData         string
}

// StatusResult is the exchange's current view of a previously placed order.
type StatusResult struct {
	IsLive      bool
	IsCancelled bool
	RawData     string
}

// Client is one exchange account's API surface. Implementations are bound to
// a credential at construction. All calls are expected to honor ctx deadlines
// so a hung exchange cannot stall a daemon pass.
type Client interface {
	// MarketDetails fetches trading rules for a market. Fails with
	// ErrMarketNotFound for unknown markets.
	MarketDetails(ctx context.Context, market string) (*MarketDetails, error)

	// BookTop fetches the current best bid and ask. Fails with
	// ErrMarketDataUnavailable when either side of the book is empty.
	BookTop(ctx context.Context, market string) (*BookTop, error)

	// PlaceLimitOrder submits a maker-or-cancel limit order: the exchange
	// cancels it outright rather than letting it cross the spread.
	PlaceLimitOrder(ctx context.Context, market, side string, quantity, price decimal.Decimal) (*SubmitResult, error)

	// OrderStatus polls the authoritative state of an order.
	OrderStatus(ctx context.Context, exchangeOrderID string) (*StatusResult, error)
}
