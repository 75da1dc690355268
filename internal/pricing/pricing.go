// Package pricing computes maker-friendly limit prices and base quantities
// aligned to a market's tick sizes.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bonsaidca/bonsai/internal/exchange"
	"github.com/bonsaidca/bonsai/internal/types"
)

var (
	ErrInvalidAmountCurrency = errors.New("amount currency not part of market")
	ErrInvalidIncrement      = errors.New("market increment must be positive")
)

// LimitPrice computes a limit price intended to rest as a maker order: the
// bid/ask midpoint snapped to the quote increment, rounded down for buys and
// up for sells so the order sits on the favorable side of the midpoint.
// The result is always an exact multiple of the quote increment.
func LimitPrice(details *exchange.MarketDetails, book *exchange.BookTop, side string) (decimal.Decimal, error) {
	increment := details.QuoteIncrement
	if !increment.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quote increment %s", ErrInvalidIncrement, increment)
	}
	if !book.BestBid.IsPositive() || !book.BestAsk.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: bid=%s ask=%s", exchange.ErrMarketDataUnavailable, book.BestBid, book.BestAsk)
	}

	places := -increment.Exponent()
	bid := book.BestBid.Round(places)
	ask := book.BestAsk.Round(places)

	steps := bid.Add(ask).Div(decimal.NewFromInt(2)).Div(increment)

	if side == types.SideSell {
		return steps.Ceil().Mul(increment), nil
	}
	return steps.Floor().Mul(increment), nil
}

// BaseQuantity converts an order amount into a base currency quantity,
// floored to an exact multiple of the market's base increment. Amounts
// denominated in the quote currency are converted at the given price.
func BaseQuantity(details *exchange.MarketDetails, amount decimal.Decimal, amountCurrency string, price decimal.Decimal) (decimal.Decimal, error) {
	if !details.BaseIncrement.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: base increment %s", ErrInvalidIncrement, details.BaseIncrement)
	}

	var quantity decimal.Decimal
	switch amountCurrency {
	case details.QuoteCurrency:
		quantity = amount.Div(price)
	case details.BaseCurrency:
		quantity = amount
	default:
		return decimal.Zero, fmt.Errorf("%w: %s is neither %s nor %s",
			ErrInvalidAmountCurrency, amountCurrency, details.BaseCurrency, details.QuoteCurrency)
	}

	return quantity.Div(details.BaseIncrement).Floor().Mul(details.BaseIncrement), nil
}
