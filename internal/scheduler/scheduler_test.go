package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bonsaidca/bonsai/internal/database"
	"github.com/bonsaidca/bonsai/internal/exchange"
	"github.com/bonsaidca/bonsai/internal/exchange/mock"
	"github.com/bonsaidca/bonsai/internal/executor"
	"github.com/bonsaidca/bonsai/internal/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	db       *gorm.DB
	client   *mock.Client
	registry *exchange.Registry
	service  *Service
}

// failingExecutor simulates an execution that dies after the schedule was
// marked run.
type failingExecutor struct {
	calls int
}

func (f *failingExecutor) ExecuteOrder(_ context.Context, _ *types.Intent) (*types.Order, error) {
	f.calls++
	return nil, errors.New("execution blew up")
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewTestDatabase()
	require.NoError(t, err)

	client := mock.NewClient()
	client.SetMarket(&exchange.MarketDetails{
		Market:         "btcusd",
		BaseCurrency:   "BTC",
		QuoteCurrency:  "USD",
		MinOrderSize:   dec("0.00001"),
		BaseIncrement:  dec("0.00000001"),
		QuoteIncrement: dec("0.01"),
	}, &exchange.BookTop{
		BestBid: dec("100.00"),
		BestAsk: dec("100.10"),
	})

	registry := exchange.NewRegistry()
	registry.Register(types.ExchangeGemini, client.Factory())

	return &fixture{
		db:       db,
		client:   client,
		registry: registry,
		service:  NewService(db, registry, executor.NewService(db, registry)),
	}
}

func (f *fixture) seedCredential(t *testing.T) *types.Credential {
	t.Helper()
	credential := &types.Credential{
		CredentialID: uuid.New().String(),
		Exchange:     types.ExchangeGemini,
		APIKey:       "key",
		APISecret:    "secret",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, f.db.Create(credential).Error)
	return credential
}

func (f *fixture) seedSchedule(t *testing.T, credentialID string, lastRun *time.Time) *types.Schedule {
	t.Helper()
	schedule := &types.Schedule{
		ScheduleID:      uuid.New().String(),
		CredentialID:    credentialID,
		IsActive:        true,
		Market:          "btcusd",
		Side:            types.SideBuy,
		Amount:          dec("50"),
		AmountCurrency:  "USD",
		RepeatDuration:  1,
		RepeatTimescale: types.TimescaleHours,
		CreatedAt:       time.Now().Add(-2 * time.Hour),
		LastRun:         lastRun,
	}
	require.NoError(t, f.db.Create(schedule).Error)
	return schedule
}

func (f *fixture) seedLiveOrder(t *testing.T, credentialID, exchangeOrderID string) *types.Order {
	t.Helper()
	order := &types.Order{
		OrderID:         uuid.New().String(),
		CredentialID:    credentialID,
		ExchangeOrderID: &exchangeOrderID,
		Status:          types.StatusOpen,
		Market:          "btcusd",
		Side:            types.SideBuy,
		Amount:          dec("50"),
		AmountCurrency:  "USD",
		IsLive:          true,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, f.db.Create(order).Error)
	return order
}

func TestEvaluateDuePassDispatchesOnlyDueSchedules(t *testing.T) {
	f := newFixture(t)
	credential := f.seedCredential(t)

	recent := time.Now().Add(-5 * time.Minute)
	due := f.seedSchedule(t, credential.CredentialID, nil)
	f.seedSchedule(t, credential.CredentialID, &recent) // not due yet

	results, err := f.service.EvaluateDuePass(context.Background())
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, due.ScheduleID, results[0].ScheduleID)
	require.NoError(t, results[0].Err)
	assert.Equal(t, types.StatusOpen, results[0].Status)

	var order types.Order
	require.NoError(t, f.db.Where("order_id = ?", results[0].OrderID).First(&order).Error)
	require.NotNil(t, order.ScheduleID)
	assert.Equal(t, due.ScheduleID, *order.ScheduleID)
}

func TestEvaluateDuePassSkipsPausedAndRetired(t *testing.T) {
	f := newFixture(t)
	credential := f.seedCredential(t)

	paused := f.seedSchedule(t, credential.CredentialID, nil)
	paused.IsPaused = true
	require.NoError(t, f.db.Save(paused).Error)

	retired := f.seedSchedule(t, credential.CredentialID, nil)
	retired.IsActive = false
	require.NoError(t, f.db.Save(retired).Error)

	results, err := f.service.EvaluateDuePass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, f.client.Submissions)
}

func TestEvaluateDuePassAdvancesLastRun(t *testing.T) {
	f := newFixture(t)
	credential := f.seedCredential(t)
	schedule := f.seedSchedule(t, credential.CredentialID, nil)

	dispatchTime := time.Now().Truncate(time.Second)
	f.service.now = func() time.Time { return dispatchTime }

	_, err := f.service.EvaluateDuePass(context.Background())
	require.NoError(t, err)

	var updated types.Schedule
	require.NoError(t, f.db.Where("schedule_id = ?", schedule.ScheduleID).First(&updated).Error)
	require.NotNil(t, updated.LastRun)
	assert.WithinDuration(t, dispatchTime, *updated.LastRun, time.Second)
	assert.WithinDuration(t, dispatchTime.Add(time.Hour), updated.NextRun(), time.Second)
}

func TestEvaluateMarksRunBeforeExecution(t *testing.T) {
	f := newFixture(t)
	credential := f.seedCredential(t)
	schedule := f.seedSchedule(t, credential.CredentialID, nil)

	failing := &failingExecutor{}
	f.service.executor = failing

	// First pass: execution fails, but the period is consumed.
	results, err := f.service.EvaluateDuePass(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, 1, failing.calls)

	var marked types.Schedule
	require.NoError(t, f.db.Where("schedule_id = ?", schedule.ScheduleID).First(&marked).Error)
	require.NotNil(t, marked.LastRun, "schedule must be marked run before execution")

	// Second pass inside the same period: the schedule must not fire again.
	results, err = f.service.EvaluateDuePass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, failing.calls)
}

func TestEvaluateDuePassIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	credential := f.seedCredential(t)
	f.seedSchedule(t, credential.CredentialID, nil)
	f.seedSchedule(t, credential.CredentialID, nil)

	failing := &failingExecutor{}
	f.service.executor = failing

	results, err := f.service.EvaluateDuePass(context.Background())
	require.NoError(t, err)

	// Both schedules were attempted despite the first failure.
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Equal(t, 2, failing.calls)
}

func TestReconcileLivePassCompletesFilledOrder(t *testing.T) {
	f := newFixture(t)
	credential := f.seedCredential(t)

	submit, err := f.client.PlaceLimitOrder(context.Background(), "btcusd", types.SideBuy, dec("0.5"), dec("100.05"))
	require.NoError(t, err)
	order := f.seedLiveOrder(t, credential.CredentialID, submit.ExchangeOrderID)

	f.client.CompleteOrder(submit.ExchangeOrderID)

	results, err := f.service.ReconcileLivePass(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.StatusComplete, results[0].Status)

	var updated types.Order
	require.NoError(t, f.db.Where("order_id = ?", order.OrderID).First(&updated).Error)
	assert.Equal(t, types.StatusComplete, updated.Status)
	assert.False(t, updated.IsLive)
	assert.NotEmpty(t, updated.RawData)
}

func TestReconcileLivePassCancelsCancelledOrder(t *testing.T) {
	f := newFixture(t)
	credential := f.seedCredential(t)

	submit, err := f.client.PlaceLimitOrder(context.Background(), "btcusd", types.SideBuy, dec("0.5"), dec("100.05"))
	require.NoError(t, err)
	order := f.seedLiveOrder(t, credential.CredentialID, submit.ExchangeOrderID)

	f.client.CancelOrder(submit.ExchangeOrderID)

	results, err := f.service.ReconcileLivePass(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	var updated types.Order
	require.NoError(t, f.db.Where("order_id = ?", order.OrderID).First(&updated).Error)
	assert.Equal(t, types.StatusCancelled, updated.Status)
	assert.False(t, updated.IsLive)
}

func TestReconcileLivePassRefreshesStillLiveOrder(t *testing.T) {
	f := newFixture(t)
	credential := f.seedCredential(t)

	submit, err := f.client.PlaceLimitOrder(context.Background(), "btcusd", types.SideBuy, dec("0.5"), dec("100.05"))
	require.NoError(t, err)
	order := f.seedLiveOrder(t, credential.CredentialID, submit.ExchangeOrderID)

	results, err := f.service.ReconcileLivePass(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	var updated types.Order
	require.NoError(t, f.db.Where("order_id = ?", order.OrderID).First(&updated).Error)
	assert.Equal(t, types.StatusOpen, updated.Status)
	assert.True(t, updated.IsLive)
	assert.NotEmpty(t, updated.RawData)
}

func TestReconcileLivePassSkipsTerminalOrders(t *testing.T) {
	f := newFixture(t)
	credential := f.seedCredential(t)

	exchangeOrderID := uuid.New().String()
	order := f.seedLiveOrder(t, credential.CredentialID, exchangeOrderID)
	order.Status = types.StatusComplete
	order.IsLive = false
	require.NoError(t, f.db.Save(order).Error)

	results, err := f.service.ReconcileLivePass(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestReconcileLivePassIsolatesPollingFailures(t *testing.T) {
	f := newFixture(t)
	credential := f.seedCredential(t)

	first, err := f.client.PlaceLimitOrder(context.Background(), "btcusd", types.SideBuy, dec("0.5"), dec("100.05"))
	require.NoError(t, err)
	second, err := f.client.PlaceLimitOrder(context.Background(), "btcusd", types.SideBuy, dec("0.5"), dec("100.05"))
	require.NoError(t, err)
	f.seedLiveOrder(t, credential.CredentialID, first.ExchangeOrderID)
	f.seedLiveOrder(t, credential.CredentialID, second.ExchangeOrderID)

	f.client.StatusErr = errors.New("exchange is down")

	results, err := f.service.ReconcileLivePass(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.Error(t, results[1].Err)

	// Orders stay live for the next pass.
	var stillLive int64
	require.NoError(t, f.db.Model(&types.Order{}).Where("is_live = ?", true).Count(&stillLive).Error)
	assert.EqualValues(t, 2, stillLive)
}
