package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Repeat timescales for a schedule's cadence.
const (
	TimescaleMinutes = "minutes"
	TimescaleHours   = "hours"
	TimescaleDays    = "days"
)

// Schedule is a recurring order intent. A schedule with IsActive=false is
// retired: hidden from dispatch but kept so its order history stays queryable.
// IsPaused suppresses dispatch without touching the run timestamps.
type Schedule struct {
	gorm.Model      `json:"-"`
	ScheduleID      string          `gorm:"uniqueIndex" json:"schedule_id"`
	CredentialID    string          `gorm:"index" json:"credential_id"`
	IsActive        bool            `json:"is_active"`
	IsPaused        bool            `json:"is_paused"`
	Market          string          `json:"market"`
	Side            string          `json:"side"`
	Amount          decimal.Decimal `gorm:"type:decimal(32,16)" json:"amount"`
	AmountCurrency  string          `json:"amount_currency"`
	RepeatDuration  int             `json:"repeat_duration"`
	RepeatTimescale string          `json:"repeat_timescale"`
	CreatedAt       time.Time       `json:"created_at"`
	LastRun         *time.Time      `json:"last_run"`
}

// Period returns the duration of one repeat interval.
func (s *Schedule) Period() time.Duration {
	switch s.RepeatTimescale {
	case TimescaleDays:
		return time.Duration(s.RepeatDuration) * 24 * time.Hour
	case TimescaleHours:
		return time.Duration(s.RepeatDuration) * time.Hour
	default:
		return time.Duration(s.RepeatDuration) * time.Minute
	}
}

// NextRun returns the earliest time the schedule becomes due again. A schedule
// that has never run is anchored at its creation time.
func (s *Schedule) NextRun() time.Time {
	anchor := s.CreatedAt
	if s.LastRun != nil {
		anchor = *s.LastRun
	}
	return anchor.Add(s.Period())
}

// IsTimeToRun reports whether the schedule should be dispatched now. Retired
// and paused schedules are never due, regardless of timestamps.
func (s *Schedule) IsTimeToRun(now time.Time) bool {
	if !s.IsActive || s.IsPaused {
		return false
	}
	if s.LastRun == nil {
		return true
	}
	return now.After(s.NextRun())
}
