package orders_test

import (
	"context"
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
	"github.com/bonsaidca/bonsai/internal/orders"
	"github.com/bonsaidca/bonsai/internal/types"
)

func setup(t *testing.T) (*gorm.DB, *orders.Service) {
	t.Helper()

	db, err := database.NewTestDatabase()
	require.NoError(t, err)

	client := mock.NewClient()
	client.SetMarket(&exchange.MarketDetails{
		Market:         "btcusd",
		BaseCurrency:   "BTC",
		QuoteCurrency:  "USD",
		MinOrderSize:   decimal.RequireFromString("0.00001"),
		BaseIncrement:  decimal.RequireFromString("0.00000001"),
		QuoteIncrement: decimal.RequireFromString("0.01"),
	}, &exchange.BookTop{
		BestBid: decimal.RequireFromString("100.00"),
		BestAsk: decimal.RequireFromString("100.10"),
	})

	registry := exchange.NewRegistry()
	registry.Register(types.ExchangeGemini, client.Factory())

	return db, orders.NewService(db, executor.NewService(db, registry))
}

func seedCredential(t *testing.T, db *gorm.DB) *types.Credential {
	t.Helper()
	credential := &types.Credential{
		CredentialID: uuid.New().String(),
		Exchange:     types.ExchangeGemini,
		APIKey:       "key",
		APISecret:    "secret",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, db.Create(credential).Error)
	return credential
}

func TestPlaceManualOrder(t *testing.T) {
	db, service := setup(t)
	credential := seedCredential(t, db)

	order, err := service.PlaceManualOrder(context.Background(),
		credential.CredentialID, "btcusd", types.SideBuy,
		decimal.RequireFromString("50"), "USD")
	require.NoError(t, err)

	assert.Equal(t, types.StatusOpen, order.Status)
	assert.Nil(t, order.ScheduleID)

	fetched, err := service.GetOrder(order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, order.OrderID, fetched.OrderID)
}

func TestPlaceManualOrderUnknownCredential(t *testing.T) {
	_, service := setup(t)

	_, err := service.PlaceManualOrder(context.Background(),
		uuid.New().String(), "btcusd", types.SideBuy,
		decimal.RequireFromString("50"), "USD")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	db, service := setup(t)
	credential := seedCredential(t, db)

	for i := 0; i < 3; i++ {
		order := &types.Order{
			OrderID:        uuid.New().String(),
			CredentialID:   credential.CredentialID,
			Status:         types.StatusComplete,
			Market:         "btcusd",
			Side:           types.SideBuy,
			Amount:         decimal.RequireFromString("50"),
			AmountCurrency: "USD",
			CreatedAt:      time.Now().Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(order).Error)
	}

	recent, err := service.RecentOrders(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].CreatedAt.After(recent[1].CreatedAt))
}
