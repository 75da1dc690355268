// Package credentials manages exchange API keypairs: the root entity that
// schedules and orders hang off.
package credentials

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/bonsaidca/bonsai/pkg/response"

	"github.com/bonsaidca/bonsai/internal/types"
)

var ErrUnknownExchange = errors.New("unknown exchange")

var supportedExchanges = map[string]bool{
	types.ExchangeGemini:   true,
	types.ExchangeCoinbase: true,
	types.ExchangePaxos:    true,
}

// Service handles credential lifecycle.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// CreateCredential stores a new exchange keypair.
func (s *Service) CreateCredential(exchange, apiKey, apiSecret string) (*types.Credential, error) {
	if !supportedExchanges[exchange] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, exchange)
	}
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("api key and secret are required")
	}

	credential := &types.Credential{
		CredentialID: uuid.New().String(),
		Exchange:     exchange,
		APIKey:       apiKey,
		APISecret:    apiSecret,
		CreatedAt:    time.Now(),
	}
	if err := s.db.CreateCredential(credential); err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "credentials").
		Str("credential_id", credential.CredentialID).
		Str("exchange", credential.Exchange).
		Str("key_last_six", credential.KeyLastSix()).
		Msg("credential created")

	return credential, nil
}

func (s *Service) GetCredential(credentialID string) (*types.Credential, error) {
	return s.db.GetCredential(credentialID)
}

func (s *Service) ListCredentials() ([]types.Credential, error) {
	return s.db.ListCredentials()
}

func (s *Service) RecentOrders(credentialID string, limit int) ([]types.Order, error) {
	return s.db.RecentOrders(credentialID, limit)
}

// DeleteCredential removes a keypair. Dependent schedules that have placed
// orders are retired so their history stays queryable; orderless schedules
// are deleted outright. Order rows are always kept.
func (s *Service) DeleteCredential(credentialID string) error {
	credential, err := s.db.GetCredential(credentialID)
	if err != nil {
		return err
	}
	if credential == nil {
		return gorm.ErrRecordNotFound
	}

	schedules, err := s.db.GetSchedules(credentialID)
	if err != nil {
		return err
	}
	for i := range schedules {
		schedule := &schedules[i]
		count, err := s.db.CountScheduleOrders(schedule.ScheduleID)
		if err != nil {
			return err
		}
		if count > 0 {
			if err := s.db.RetireSchedule(schedule); err != nil {
				return err
			}
			continue
		}
		if err := s.db.DeleteSchedule(schedule); err != nil {
			return err
		}
	}

	return s.db.DeleteCredential(credential)
}

// credentialView is what the API exposes: never the secret, only the key tail.
type credentialView struct {
	CredentialID string    `json:"credential_id"`
	Exchange     string    `json:"exchange"`
	KeyLastSix   string    `json:"key_last_six"`
	CreatedAt    time.Time `json:"created_at"`
}

func viewOf(c *types.Credential) credentialView {
	return credentialView{
		CredentialID: c.CredentialID,
		Exchange:     c.Exchange,
		KeyLastSix:   c.KeyLastSix(),
		CreatedAt:    c.CreatedAt,
	}
}

// GinHandlers contains HTTP handlers for credential endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CreateCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Exchange  string `json:"exchange" binding:"required"`
			APIKey    string `json:"api_key" binding:"required"`
			APISecret string `json:"api_secret" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		credential, err := h.service.CreateCredential(request.Exchange, request.APIKey, request.APISecret)
		if err != nil {
			if errors.Is(err, ErrUnknownExchange) {
				response.BadRequest(c, err.Error())
				return
			}
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, viewOf(credential))
	}
}

func (h *GinHandlers) GetCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, err := h.service.GetCredential(c.Param("credential_id"))
		if err != nil || credential == nil {
			response.NotFound(c, "Credential not found")
			return
		}

		orders, err := h.service.RecentOrders(credential.CredentialID, 10)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, gin.H{
			"credential":    viewOf(credential),
			"recent_orders": orders,
		})
	}
}

func (h *GinHandlers) ListCredentialsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		creds, err := h.service.ListCredentials()
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}

		views := make([]credentialView, len(creds))
		for i := range creds {
			views[i] = viewOf(&creds[i])
		}
		response.Success(c, views)
	}
}

func (h *GinHandlers) DeleteCredentialHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.service.DeleteCredential(c.Param("credential_id"))
		response.Handle(c, gin.H{"message": "credential deleted"}, err)
	}
}
