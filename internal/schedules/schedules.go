// Package schedules manages recurring order intents: creation, pause and
// resume, and the retire-versus-delete rule that keeps order history intact.
package schedules

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bonsaidca/bonsai/pkg/response"

	"github.com/bonsaidca/bonsai/internal/types"
)

var (
	ErrInvalidSide      = errors.New("invalid order side")
	ErrInvalidTimescale = errors.New("invalid repeat timescale")
	ErrInvalidCadence   = errors.New("repeat duration must be positive")
	ErrInvalidAmount    = errors.New("amount must be positive")
)

// CreateParams carries the user's new-schedule form.
type CreateParams struct {
	CredentialID    string
	Market          string
	Side            string
	Amount          decimal.Decimal
	AmountCurrency  string
	RepeatDuration  int
	RepeatTimescale string
}

// Service handles schedule lifecycle.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// CreateSchedule validates and stores a new recurring intent. New schedules
// are active, unpaused, and due on the first evaluation pass.
func (s *Service) CreateSchedule(params CreateParams) (*types.Schedule, error) {
	if params.Side != types.SideBuy && params.Side != types.SideSell {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSide, params.Side)
	}
	switch params.RepeatTimescale {
	case types.TimescaleMinutes, types.TimescaleHours, types.TimescaleDays:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimescale, params.RepeatTimescale)
	}
	if params.RepeatDuration <= 0 {
		return nil, ErrInvalidCadence
	}
	if !params.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	credential, err := s.db.GetCredential(params.CredentialID)
	if err != nil {
		return nil, err
	}
	if credential == nil {
		return nil, gorm.ErrRecordNotFound
	}

	schedule := &types.Schedule{
		ScheduleID:      uuid.New().String(),
		CredentialID:    params.CredentialID,
		IsActive:        true,
		Market:          params.Market,
		Side:            params.Side,
		Amount:          params.Amount,
		AmountCurrency:  params.AmountCurrency,
		RepeatDuration:  params.RepeatDuration,
		RepeatTimescale: params.RepeatTimescale,
		CreatedAt:       time.Now(),
	}
	if err := s.db.CreateSchedule(schedule); err != nil {
		return nil, err
	}

	log.Info().
		Str("component", "schedules").
		Str("schedule_id", schedule.ScheduleID).
		Str("market", schedule.Market).
		Int("repeat_duration", schedule.RepeatDuration).
		Str("repeat_timescale", schedule.RepeatTimescale).
		Msg("schedule created")

	return schedule, nil
}

func (s *Service) GetSchedule(scheduleID string) (*types.Schedule, error) {
	return s.db.GetSchedule(scheduleID)
}

func (s *Service) ListByCredential(credentialID string) ([]types.Schedule, error) {
	return s.db.ListByCredential(credentialID)
}

// Pause suppresses dispatch without touching the run timestamps, so
// unpausing later resumes the original cadence.
func (s *Service) Pause(scheduleID string) (*types.Schedule, error) {
	return s.setPaused(scheduleID, true)
}

// Unpause makes the schedule eligible for dispatch again.
func (s *Service) Unpause(scheduleID string) (*types.Schedule, error) {
	return s.setPaused(scheduleID, false)
}

func (s *Service) setPaused(scheduleID string, paused bool) (*types.Schedule, error) {
	schedule, err := s.db.GetSchedule(scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, gorm.ErrRecordNotFound
	}

	schedule.IsPaused = paused
	if err := s.db.UpdateSchedule(schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// DeleteSchedule removes a schedule. A schedule that has placed orders is
// retired (is_active=false) instead of deleted so historical lookups keep
// working; an orderless schedule is deleted outright.
func (s *Service) DeleteSchedule(scheduleID string) error {
	schedule, err := s.db.GetSchedule(scheduleID)
	if err != nil {
		return err
	}
	if schedule == nil {
		return gorm.ErrRecordNotFound
	}

	count, err := s.db.CountOrders(scheduleID)
	if err != nil {
		return err
	}
	if count > 0 {
		schedule.IsActive = false
		return s.db.UpdateSchedule(schedule)
	}
	return s.db.DeleteSchedule(schedule)
}

// GinHandlers contains HTTP handlers for schedule endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func (h *GinHandlers) CreateScheduleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			CredentialID    string          `json:"credential_id" binding:"required"`
			Market          string          `json:"market" binding:"required"`
			Side            string          `json:"side" binding:"required"`
			Amount          decimal.Decimal `json:"amount"`
			AmountCurrency  string          `json:"amount_currency" binding:"required"`
			RepeatDuration  int             `json:"repeat_duration" binding:"required"`
			RepeatTimescale string          `json:"repeat_timescale" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		schedule, err := h.service.CreateSchedule(CreateParams{
			CredentialID:    request.CredentialID,
			Market:          request.Market,
			Side:            request.Side,
			Amount:          request.Amount,
			AmountCurrency:  request.AmountCurrency,
			RepeatDuration:  request.RepeatDuration,
			RepeatTimescale: request.RepeatTimescale,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidSide),
				errors.Is(err, ErrInvalidTimescale),
				errors.Is(err, ErrInvalidCadence),
				errors.Is(err, ErrInvalidAmount):
				response.BadRequest(c, err.Error())
			default:
				response.Handle(c, nil, err)
			}
			return
		}

		response.Success(c, schedule)
	}
}

func (h *GinHandlers) GetScheduleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		schedule, err := h.service.GetSchedule(c.Param("schedule_id"))
		if err != nil || schedule == nil {
			response.NotFound(c, "Schedule not found")
			return
		}
		response.Success(c, schedule)
	}
}

func (h *GinHandlers) ListSchedulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		credentialID := c.Query("credential_id")
		if credentialID == "" {
			response.BadRequest(c, "credential_id query parameter is required")
			return
		}

		schedules, err := h.service.ListByCredential(credentialID)
		response.Handle(c, schedules, err)
	}
}

func (h *GinHandlers) PauseScheduleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		schedule, err := h.service.Pause(c.Param("schedule_id"))
		response.Handle(c, schedule, err)
	}
}

func (h *GinHandlers) UnpauseScheduleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		schedule, err := h.service.Unpause(c.Param("schedule_id"))
		response.Handle(c, schedule, err)
	}
}

func (h *GinHandlers) DeleteScheduleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.service.DeleteSchedule(c.Param("schedule_id"))
		response.Handle(c, gin.H{"message": "schedule removed"}, err)
	}
}
