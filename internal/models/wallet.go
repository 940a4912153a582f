package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a client's (or operator's) prepaid spendable balance.
// The balance is only ever mutated through the wallet repository's atomic
// debit/credit primitives, which keep it equal to the sum of the wallet's
// ledger transactions. Wallets are created once per account and never
// deleted, only zeroed.
type Wallet struct {
	ID        uint            `gorm:"primarykey"`
	UserID    uint            `gorm:"uniqueIndex;not null"`
	Balance   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Currency  string          `gorm:"size:3;not null;default:'EUR'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
