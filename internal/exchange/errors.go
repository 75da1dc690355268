package exchange

import (
	"errors"
	"fmt"
)

// Error kinds callers match with errors.Is. Transport and auth failures are
// retried on a later pass by virtue of the daemon cadence, never in-pass.
var (
	ErrMarketNotFound        = errors.New("market not found")
	ErrMarketDataUnavailable = errors.New("market data unavailable")
	ErrAuthFailed            = errors.New("exchange authentication failed")
	ErrRateLimited           = errors.New("exchange rate limited")
	ErrTransport             = errors.New("exchange transport error")
	ErrUnsupportedExchange   = errors.New("unsupported exchange")
)

// RequestError is a structured non-2xx exchange response. The raw body is
// preserved so a rejected submission stays diagnosable after the fact.
type RequestError struct {
	StatusCode int
	Reason     string
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("exchange request failed: status=%d reason=%s", e.StatusCode, e.Reason)
}

// Unwrap maps HTTP status classes onto the sentinel kinds.
func (e *RequestError) Unwrap() error {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return ErrAuthFailed
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode == 404:
		return ErrMarketNotFound
	default:
		return ErrTransport
	}
}
