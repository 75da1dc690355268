// Package orders exposes order history and manual order placement. Manual
// orders go through the same executor entry point the daemon uses, so the
// pricing and persistence rules are identical either way.
package orders

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bonsaidca/bonsai/pkg/response"

	"github.com/bonsaidca/bonsai/internal/pricing"
	"github.com/bonsaidca/bonsai/internal/types"
)

// OrderExecutor places one order for an intent. Satisfied by
// executor.Service.
type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, intent *types.Intent) (*types.Order, error)
}

// Service handles order lookups and manual placement.
type Service struct {
	db       *Database
	executor OrderExecutor
}

func NewService(gormDB *gorm.DB, executor OrderExecutor) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		executor: executor,
	}
}

func (s *Service) GetOrder(orderID string) (*types.Order, error) {
	return s.db.GetOrder(orderID)
}

func (s *Service) RecentOrders(limit int) ([]types.Order, error) {
	return s.db.RecentOrders(limit)
}

// PlaceManualOrder executes a one-off order against a stored credential. The
// resulting order has no schedule reference.
func (s *Service) PlaceManualOrder(ctx context.Context, credentialID, market, side string, amount decimal.Decimal, amountCurrency string) (*types.Order, error) {
	credential, err := s.db.GetCredential(credentialID)
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, gorm.ErrRecordNotFound
	}

	return s.executor.ExecuteOrder(ctx, &types.Intent{
		Credential:     credential,
		Market:         market,
		Side:           side,
		Amount:         amount,
		AmountCurrency: amountCurrency,
	})
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrder(c.Param("order_id"))
		if err != nil || order == nil {
			response.NotFound(c, "Order not found")
			return
		}
		response.Success(c, order)
	}
}

func (h *GinHandlers) RecentOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := h.service.RecentOrders(10)
		response.Handle(c, orders, err)
	}
}

func (h *GinHandlers) ManualOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			CredentialID   string          `json:"credential_id" binding:"required"`
			Market         string          `json:"market" binding:"required"`
			Side           string          `json:"side" binding:"required"`
			Amount         decimal.Decimal `json:"amount"`
			AmountCurrency string          `json:"amount_currency" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.PlaceManualOrder(
			c.Request.Context(),
			request.CredentialID,
			request.Market,
			request.Side,
			request.Amount,
			request.AmountCurrency,
		)
		if err != nil {
			if errors.Is(err, pricing.ErrInvalidAmountCurrency) {
				response.BadRequest(c, err.Error())
				return
			}
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, order)
	}
}
