package executor_test

import (
	"context"
	"fmt"
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
	"github.com/bonsaidca/bonsai/internal/pricing"
	"github.com/bonsaidca/bonsai/internal/types"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setup(t *testing.T) (*gorm.DB, *mock.Client, *executor.Service) {
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

	return db, client, executor.NewService(db, registry)
}

func testCredential() *types.Credential {
	return &types.Credential{
		CredentialID: uuid.New().String(),
		Exchange:     types.ExchangeGemini,
		APIKey:       "key",
		APISecret:    "secret",
	}
}

func countOrders(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&types.Order{}).Count(&count).Error)
	return count
}

func TestExecuteOrderPlacesOpenOrder(t *testing.T) {
	db, client, service := setup(t)

	order, err := service.ExecuteOrder(context.Background(), &types.Intent{
		Credential:     testCredential(),
		Market:         "btcusd",
		Side:           types.SideBuy,
		Amount:         dec("50"),
		AmountCurrency: "USD",
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusOpen, order.Status)
	assert.True(t, order.IsLive)
	assert.Nil(t, order.ScheduleID)
	require.NotNil(t, order.ExchangeOrderID)

	require.Len(t, client.Submissions, 1)
	submission := client.Submissions[0]
	assert.True(t, submission.Price.Equal(dec("100.05")), "price %s", submission.Price)
	// 50 USD at 100.05, floored to the base increment
	assert.True(t, submission.Quantity.Equal(dec("0.49975012")), "quantity %s", submission.Quantity)

	var persisted types.Order
	require.NoError(t, db.Where("order_id = ?", order.OrderID).First(&persisted).Error)
	assert.Equal(t, types.StatusOpen, persisted.Status)
	assert.True(t, persisted.IsLive)
}

func TestExecuteOrderBaseDenominatedAmount(t *testing.T) {
	_, client, service := setup(t)

	_, err := service.ExecuteOrder(context.Background(), &types.Intent{
		Credential:     testCredential(),
		Market:         "btcusd",
		Side:           types.SideSell,
		Amount:         dec("0.250000005"),
		AmountCurrency: "BTC",
	})
	require.NoError(t, err)

	require.Len(t, client.Submissions, 1)
	assert.True(t, client.Submissions[0].Quantity.Equal(dec("0.25")), "quantity %s", client.Submissions[0].Quantity)
}

func TestExecuteOrderRejectsForeignAmountCurrency(t *testing.T) {
	db, client, service := setup(t)

	_, err := service.ExecuteOrder(context.Background(), &types.Intent{
		Credential:     testCredential(),
		Market:         "btcusd",
		Side:           types.SideBuy,
		Amount:         dec("50"),
		AmountCurrency: "EUR",
	})
	assert.ErrorIs(t, err, pricing.ErrInvalidAmountCurrency)
	assert.Empty(t, client.Submissions)
	assert.EqualValues(t, 0, countOrders(t, db))
}

func TestExecuteOrderMakerOrCancelRejection(t *testing.T) {
	db, client, service := setup(t)
	client.RejectReason = exchange.ReasonMakerOrCancelWouldTake

	lastRun := time.Now().Truncate(time.Second)
	schedule := &types.Schedule{
		ScheduleID:      uuid.New().String(),
		CredentialID:    "cred",
		IsActive:        true,
		Market:          "btcusd",
		Side:            types.SideBuy,
		Amount:          dec("50"),
		AmountCurrency:  "USD",
		RepeatDuration:  1,
		RepeatTimescale: types.TimescaleHours,
		LastRun:         &lastRun,
	}
	require.NoError(t, db.Create(schedule).Error)

	order, err := service.ExecuteOrder(context.Background(), &types.Intent{
		Credential:     testCredential(),
		Schedule:       schedule,
		Market:         "btcusd",
		Side:           types.SideBuy,
		Amount:         dec("50"),
		AmountCurrency: "USD",
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusRejected, order.Status)
	assert.False(t, order.IsLive)
	require.NotNil(t, order.ScheduleID)
	assert.Equal(t, schedule.ScheduleID, *order.ScheduleID)

	// The schedule's last run is rolled back one period so the next
	// evaluation pass retries it.
	var reverted types.Schedule
	require.NoError(t, db.Where("schedule_id = ?", schedule.ScheduleID).First(&reverted).Error)
	require.NotNil(t, reverted.LastRun)
	assert.WithinDuration(t, lastRun.Add(-time.Hour), *reverted.LastRun, time.Second)
	assert.True(t, reverted.IsTimeToRun(time.Now().Add(time.Second)))
}

func TestExecuteOrderManualRejectionLeavesNoSchedule(t *testing.T) {
	_, client, service := setup(t)
	client.RejectReason = exchange.ReasonMakerOrCancelWouldTake

	order, err := service.ExecuteOrder(context.Background(), &types.Intent{
		Credential:     testCredential(),
		Market:         "btcusd",
		Side:           types.SideBuy,
		Amount:         dec("50"),
		AmountCurrency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, order.Status)
	assert.Nil(t, order.ScheduleID)
}

func TestExecuteOrderStructuredRejectionIsAudited(t *testing.T) {
	tests := []struct {
		reason string
		status string
	}{
		{"InsufficientFunds", types.StatusInsufficientFunds},
		{"InvalidQuantity", types.StatusMinOrderSize},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			db, client, service := setup(t)
			client.SubmitErr = &exchange.RequestError{
				StatusCode: 406,
				Reason:     tt.reason,
				Body:       fmt.Sprintf(`{"result":"error","reason":%q}`, tt.reason),
			}

			order, err := service.ExecuteOrder(context.Background(), &types.Intent{
				Credential:     testCredential(),
				Market:         "btcusd",
				Side:           types.SideBuy,
				Amount:         dec("50"),
				AmountCurrency: "USD",
			})
			require.NoError(t, err)

			assert.Equal(t, tt.status, order.Status)
			assert.False(t, order.IsLive)
			assert.Nil(t, order.ExchangeOrderID)
			assert.Contains(t, order.RawData, tt.reason)
			assert.EqualValues(t, 1, countOrders(t, db))
		})
	}
}

func TestExecuteOrderTransportFailureWritesNothing(t *testing.T) {
	db, client, service := setup(t)
	client.SubmitErr = fmt.Errorf("%w: connection refused", exchange.ErrTransport)

	_, err := service.ExecuteOrder(context.Background(), &types.Intent{
		Credential:     testCredential(),
		Market:         "btcusd",
		Side:           types.SideBuy,
		Amount:         dec("50"),
		AmountCurrency: "USD",
	})
	assert.ErrorIs(t, err, exchange.ErrTransport)
	assert.EqualValues(t, 0, countOrders(t, db))
}

func TestExecuteOrderUnsupportedExchange(t *testing.T) {
	_, _, service := setup(t)

	credential := testCredential()
	credential.Exchange = types.ExchangePaxos

	_, err := service.ExecuteOrder(context.Background(), &types.Intent{
		Credential:     credential,
		Market:         "btcusd",
		Side:           types.SideBuy,
		Amount:         dec("50"),
		AmountCurrency: "USD",
	})
	assert.ErrorIs(t, err, exchange.ErrUnsupportedExchange)
}
