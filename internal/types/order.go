package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order statuses. An order is created open and moves to exactly one terminal
// status; insufficient_funds and min_order_size are terminal rejections the
// exchange can report directly at submission.
const (
	StatusOpen              = "open"
	StatusComplete          = "complete"
	StatusCancelled         = "cancelled"
	StatusRejected          = "rejected"
	StatusInsufficientFunds = "insufficient_funds"
	StatusMinOrderSize      = "min_order_size"
)

// Order is one attempted or completed exchange order. ScheduleID is nil for
// manually placed orders. ExchangeOrderID is nil only when submission failed
// before the exchange assigned an id.
type Order struct {
	gorm.Model      `json:"-"`
	OrderID         string          `gorm:"uniqueIndex" json:"order_id"`
	ScheduleID      *string         `gorm:"index" json:"schedule_id"`
	CredentialID    string          `gorm:"index" json:"credential_id"`
	ExchangeOrderID *string         `gorm:"index" json:"exchange_order_id"`
	Status          string          `json:"status"`
	Market          string          `json:"market"`
	Side            string          `json:"side"`
	Amount          decimal.Decimal `gorm:"type:decimal(32,16)" json:"amount"`
	AmountCurrency  string          `json:"amount_currency"`
	RawData         string          `json:"raw_data"` // verbatim exchange payload, kept for audit
	IsLive          bool            `gorm:"index" json:"is_live"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Intent is the executor's input: everything needed to place one order. A
// non-nil Schedule marks the order as schedule-originated, which enables the
// rejection reschedule policy.
type Intent struct {
	Credential     *Credential
	Schedule       *Schedule
	Market         string
	Side           string
	Amount         decimal.Decimal
	AmountCurrency string
}
