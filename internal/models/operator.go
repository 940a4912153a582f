package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operator is an advisor offering paid consultations. Per-channel rates
// are the operator's current listed prices; sessions freeze the rate at
// creation time, so editing these never affects sessions in progress.
type Operator struct {
	ID             uint            `gorm:"primarykey"`
	UserID         uint            `gorm:"uniqueIndex;not null"`
	DisplayName    string          `gorm:"size:64;not null"`
	Online         bool            `gorm:"not null;default:false"`
	ChatEnabled    bool            `gorm:"not null;default:false"`
	CallEnabled    bool            `gorm:"not null;default:false"`
	WrittenEnabled bool            `gorm:"not null;default:false"`
	ChatRate       decimal.Decimal `gorm:"type:numeric(8,2);not null;default:0"`
	CallRate       decimal.Decimal `gorm:"type:numeric(8,2);not null;default:0"`
	WrittenRate    decimal.Decimal `gorm:"type:numeric(8,2);not null;default:0"`
	PhoneNumber    string          `gorm:"size:20"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ChannelEnabled reports whether the operator accepts the given channel.
func (o *Operator) ChannelEnabled(channel string) bool {
	switch channel {
	case ChannelChat:
		return o.ChatEnabled
	case ChannelCall:
		return o.CallEnabled
	case ChannelWritten:
		return o.WrittenEnabled
	}
	return false
}

// RateFor returns the operator's current per-minute (or per-question for
// the written channel) rate for the given channel.
func (o *Operator) RateFor(channel string) decimal.Decimal {
	switch channel {
	case ChannelChat:
		return o.ChatRate
	case ChannelCall:
		return o.CallRate
	case ChannelWritten:
		return o.WrittenRate
	}
	return decimal.Zero
}
