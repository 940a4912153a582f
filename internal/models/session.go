package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Consultation channels
const (
	ChannelChat    = "chat"
	ChannelCall    = "call"
	ChannelWritten = "written"
)

// Session statuses. The four right-hand states are terminal: once a
// session leaves "active" it is immutable and never billed again.
const (
	SessionStatusPending           = "pending"
	SessionStatusActive            = "active"
	SessionStatusCompleted         = "completed"
	SessionStatusInsufficientFunds = "insufficient_funds"
	SessionStatusCancelled         = "cancelled"
	SessionStatusFailed            = "failed"
)

// Session end reasons
const (
	EndReasonClientRequest    = "client_request"
	EndReasonRemoteHangup     = "remote_hangup"
	EndReasonFundsExhausted   = "funds_exhausted"
	EndReasonConnectionFailed = "connection_failed"
	EndReasonStaleTimeout     = "stale_timeout"
)

// ConsultationSession is one metered client-operator interaction over a
// channel. RatePerMinute is captured at session start and stays frozen
// even if the operator's listed rate later changes. Cost is monotonically
// non-decreasing while the session is active.
type ConsultationSession struct {
	ID              uint            `gorm:"primarykey"`
	ClientID        uint            `gorm:"index;not null"`
	OperatorID      uint            `gorm:"index;not null"`
	Channel         string          `gorm:"size:16;not null"`
	RatePerMinute   decimal.Decimal `gorm:"type:numeric(8,2);not null"`
	Status          string          `gorm:"size:24;not null;default:'pending';index"`
	StartedAt       *time.Time
	LastBilledAt    *time.Time
	EndedAt         *time.Time
	DurationSeconds int             `gorm:"not null;default:0"`
	Cost            decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	OperatorEarning decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	EndReason       string          `gorm:"size:32"`
	CallSID         *string         `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsTerminal reports whether the session has reached a final state.
func (s *ConsultationSession) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusInsufficientFunds,
		SessionStatusCancelled, SessionStatusFailed:
		return true
	}
	return false
}
