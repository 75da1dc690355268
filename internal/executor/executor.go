// Package executor drives one order from intent to a persisted record:
// market rules, limit price, quantity, maker-or-cancel submission, and the
// post-submission rejection policy.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/bonsaidca/bonsai/internal/exchange"
	"github.com/bonsaidca/bonsai/internal/pricing"
	"github.com/bonsaidca/bonsai/internal/types"
)

// Exchange rejection reasons that are business outcomes, not errors: the
// submission reached the exchange and was refused in a well-defined way, so
// an auditable order row is still written.
var rejectionStatuses = map[string]string{
	"InsufficientFunds": types.StatusInsufficientFunds,
	"InvalidQuantity":   types.StatusMinOrderSize,
}

// Service converts trade intents into persisted orders.
type Service struct {
	db       *Database
	registry *exchange.Registry
}

func NewService(gormDB *gorm.DB, registry *exchange.Registry) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		registry: registry,
	}
}

// ExecuteOrder places a maker-or-cancel limit order for the intent and
// persists the outcome.
//
// A transport, auth, or rate-limit failure before the exchange produced a
// response body returns an error and writes nothing: nothing happened on the
// exchange side that needs auditing. A structured rejection (insufficient
// funds, below minimum size) writes an order row with the terminal status. A
// maker-or-cancel cancellation writes a rejected row and, for
// schedule-originated orders, rolls the schedule's last run back one period
// so the next evaluation pass retries it.
func (s *Service) ExecuteOrder(ctx context.Context, intent *types.Intent) (*types.Order, error) {
	logger := log.With().
		Str("component", "executor").
		Str("market", intent.Market).
		Str("side", intent.Side).
		Logger()

	client, err := s.registry.ClientFor(intent.Credential)
	if err != nil {
		return nil, err
	}

	details, err := client.MarketDetails(ctx, intent.Market)
	if err != nil {
		return nil, fmt.Errorf("fetching market details: %w", err)
	}

	if intent.AmountCurrency != details.BaseCurrency && intent.AmountCurrency != details.QuoteCurrency {
		return nil, fmt.Errorf("%w: %s is neither %s nor %s",
			pricing.ErrInvalidAmountCurrency, intent.AmountCurrency, details.BaseCurrency, details.QuoteCurrency)
	}

	book, err := client.BookTop(ctx, intent.Market)
	if err != nil {
		return nil, fmt.Errorf("fetching order book: %w", err)
	}

	price, err := pricing.LimitPrice(details, book, intent.Side)
	if err != nil {
		return nil, err
	}

	quantity, err := pricing.BaseQuantity(details, intent.Amount, intent.AmountCurrency, price)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("price", price.String()).
		Str("quantity", quantity.String()).
		Msg("submitting limit order")

	result, err := client.PlaceLimitOrder(ctx, intent.Market, intent.Side, quantity, price)
	if err != nil {
		if order := s.orderFromRejection(intent, err); order != nil {
			logger.Warn().Str("status", order.Status).Msg("exchange rejected submission")
			if err := s.db.CreateOrder(order); err != nil {
				return nil, fmt.Errorf("persisting rejected order: %w", err)
			}
			return order, nil
		}
		return nil, fmt.Errorf("submitting order: %w", err)
	}

	order := s.orderFromResult(intent, result)
	if err := s.db.CreateOrder(order); err != nil {
		return nil, fmt.Errorf("persisting order: %w", err)
	}

	if order.Status == types.StatusRejected && intent.Schedule != nil {
		if err := s.rescheduleEarly(intent.Schedule); err != nil {
			logger.Error().Err(err).
				Str("schedule_id", intent.Schedule.ScheduleID).
				Msg("failed to reschedule after maker-or-cancel rejection")
		} else {
			logger.Info().
				Str("schedule_id", intent.Schedule.ScheduleID).
				Msg("order rejected by maker-or-cancel, schedule eligible for retry")
		}
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Str("status", order.Status).
		Bool("is_live", order.IsLive).
		Msg("order persisted")

	return order, nil
}

// orderFromRejection turns a structured exchange rejection into an auditable
// terminal order row, or nil when the failure produced no exchange-side state.
func (s *Service) orderFromRejection(intent *types.Intent, err error) *types.Order {
	var reqErr *exchange.RequestError
	if !errors.As(err, &reqErr) {
		return nil
	}
	status, ok := rejectionStatuses[reqErr.Reason]
	if !ok {
		return nil
	}

	order := newOrder(intent)
	order.Status = status
	order.IsLive = false
	order.RawData = reqErr.Body
	return order
}

func (s *Service) orderFromResult(intent *types.Intent, result *exchange.SubmitResult) *types.Order {
	order := newOrder(intent)
	order.RawData = result.RawData
	if result.ExchangeOrderID != "" {
		id := result.ExchangeOrderID
		order.ExchangeOrderID = &id
	}

	switch {
	case result.IsCancelled && result.Reason == exchange.ReasonMakerOrCancelWouldTake:
		// The book moved and the order would have taken liquidity.
		order.Status = types.StatusRejected
		order.IsLive = false
	case result.IsCancelled:
		order.Status = types.StatusCancelled
		order.IsLive = false
	default:
		order.Status = types.StatusOpen
		order.IsLive = result.IsLive
	}
	return order
}

// rescheduleEarly rolls the schedule's last run back one full period, making
// it due on the next evaluation pass instead of waiting out the cadence.
func (s *Service) rescheduleEarly(schedule *types.Schedule) error {
	if schedule.LastRun == nil {
		return nil
	}
	reverted := schedule.LastRun.Add(-schedule.Period())
	schedule.LastRun = &reverted
	return s.db.UpdateSchedule(schedule)
}

func newOrder(intent *types.Intent) *types.Order {
	order := &types.Order{
		OrderID:        uuid.New().String(),
		CredentialID:   intent.Credential.CredentialID,
		Market:         intent.Market,
		Side:           intent.Side,
		Amount:         intent.Amount,
		AmountCurrency: intent.AmountCurrency,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if intent.Schedule != nil {
		id := intent.Schedule.ScheduleID
		order.ScheduleID = &id
	}
	return order
}
