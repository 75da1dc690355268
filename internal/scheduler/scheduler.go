// Package scheduler holds the daemon's two passes: evaluating due schedules
// into order submissions, and reconciling live orders against the exchange.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/bonsaidca/bonsai/internal/exchange"
	"github.com/bonsaidca/bonsai/internal/types"
)

// Timeout applied to each item's exchange round-trips so one hung call
// cannot stall the rest of a pass.
const itemTimeout = 30 * time.Second

// OrderExecutor places one order for an intent. Satisfied by
// executor.Service.
type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, intent *types.Intent) (*types.Order, error)
}

// DispatchResult reports one due schedule's outcome in an evaluation pass.
type DispatchResult struct {
	ScheduleID string
	OrderID    string // empty when no order row was written
	Status     string
	Err        error
}

// ReconcileResult reports one live order's outcome in a reconciliation pass.
type ReconcileResult struct {
	OrderID string
	Status  string
	Err     error
}

// Service runs the daemon's passes against the record store. It owns no
// goroutines; Processor drives it on a cadence and tests single-step it.
type Service struct {
	db       *Database
	registry *exchange.Registry
	executor OrderExecutor
	now      func() time.Time
}

func NewService(gormDB *gorm.DB, registry *exchange.Registry, executor OrderExecutor) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		registry: registry,
		executor: executor,
		now:      time.Now,
	}
}

// EvaluateDuePass dispatches every due schedule to the executor. Each
// schedule is marked run before its order is submitted, so a crash or hang
// mid-dispatch can never fire the same period twice. One schedule's failure
// never blocks the rest of the pass.
func (s *Service) EvaluateDuePass(ctx context.Context) ([]DispatchResult, error) {
	logger := log.With().Str("component", "scheduler").Logger()

	schedules, err := s.db.GetDispatchableSchedules()
	if err != nil {
		return nil, fmt.Errorf("scanning schedules: %w", err)
	}

	now := s.now()
	var results []DispatchResult
	for i := range schedules {
		schedule := &schedules[i]
		if !schedule.IsTimeToRun(now) {
			continue
		}

		logger.Info().
			Str("schedule_id", schedule.ScheduleID).
			Str("market", schedule.Market).
			Msg("running schedule")

		result := s.dispatch(ctx, schedule, now)
		if result.Err != nil {
			logger.Error().Err(result.Err).
				Str("schedule_id", schedule.ScheduleID).
				Msg("schedule dispatch failed")
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *Service) dispatch(ctx context.Context, schedule *types.Schedule, now time.Time) DispatchResult {
	result := DispatchResult{ScheduleID: schedule.ScheduleID}

	credential, err := s.db.GetCredential(schedule.CredentialID)
	if err != nil {
		result.Err = fmt.Errorf("loading credential: %w", err)
		return result
	}
	if credential == nil {
		result.Err = fmt.Errorf("credential %s not found", schedule.CredentialID)
		return result
	}

	// Mark the schedule run before touching the exchange. If this write does
	// not land durably, the order must not go out: the due state it consumes
	// would be unrecorded and the schedule could fire twice.
	lastRun := now
	schedule.LastRun = &lastRun
	if err := s.db.UpdateSchedule(schedule); err != nil {
		result.Err = fmt.Errorf("marking schedule run: %w", err)
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, itemTimeout)
	defer cancel()

	order, err := s.executor.ExecuteOrder(callCtx, &types.Intent{
		Credential:     credential,
		Schedule:       schedule,
		Market:         schedule.Market,
		Side:           schedule.Side,
		Amount:         schedule.Amount,
		AmountCurrency: schedule.AmountCurrency,
	})
	if err != nil {
		result.Err = err
		return result
	}

	result.OrderID = order.OrderID
	result.Status = order.Status
	return result
}

// ReconcileLivePass polls the exchange for every order still marked live and
// records the authoritative status. Orders are reconciled independently; one
// polling failure never blocks the rest.
func (s *Service) ReconcileLivePass(ctx context.Context) ([]ReconcileResult, error) {
	logger := log.With().Str("component", "scheduler").Logger()

	orders, err := s.db.GetLiveOrders()
	if err != nil {
		return nil, fmt.Errorf("scanning live orders: %w", err)
	}

	var results []ReconcileResult
	for i := range orders {
		order := &orders[i]
		result := s.reconcile(ctx, order)
		if result.Err != nil {
			logger.Error().Err(result.Err).
				Str("order_id", order.OrderID).
				Msg("order reconciliation failed")
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *Service) reconcile(ctx context.Context, order *types.Order) ReconcileResult {
	result := ReconcileResult{OrderID: order.OrderID}

	credential, err := s.db.GetCredential(order.CredentialID)
	if err != nil {
		result.Err = fmt.Errorf("loading credential: %w", err)
		return result
	}
	if credential == nil {
		result.Err = fmt.Errorf("credential %s not found", order.CredentialID)
		return result
	}

	client, err := s.registry.ClientFor(credential)
	if err != nil {
		result.Err = err
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, itemTimeout)
	defer cancel()

	status, err := client.OrderStatus(callCtx, *order.ExchangeOrderID)
	if err != nil {
		result.Err = fmt.Errorf("polling order status: %w", err)
		return result
	}

	switch {
	case status.IsCancelled:
		order.Status = types.StatusCancelled
		order.IsLive = false
	case !status.IsLive:
		order.Status = types.StatusComplete
		order.IsLive = false
	}
	order.RawData = status.RawData
	order.UpdatedAt = s.now()

	if err := s.db.UpdateOrder(order); err != nil {
		result.Err = fmt.Errorf("persisting order status: %w", err)
		return result
	}

	result.Status = order.Status
	return result
}

// errIsContext reports whether an item failed only because the pass context
// ended, which the processor treats as shutdown rather than an item failure.
func errIsContext(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
