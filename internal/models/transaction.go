package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds
const (
	TransactionKindDeposit            = "deposit"
	TransactionKindConsultationCharge = "consultation_charge"
	TransactionKindPayout             = "payout"
	TransactionKindRefund             = "refund"
)

// Transaction is an immutable, append-only ledger entry. Debits carry a
// negative amount, credits a positive one.
//
// Reference is an optional idempotency key (for example a payment
// processor event id). The unique index makes a replayed credit fail at
// insert time instead of double-crediting.
type Transaction struct {
	ID          uint            `gorm:"primarykey"`
	WalletID    uint            `gorm:"index;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Kind        string          `gorm:"size:32;not null"`
	Description string
	Reference   *string `gorm:"uniqueIndex"`
	SessionID   *uint   `gorm:"index"`
	Metadata    JSON    `gorm:"type:jsonb"`
	CreatedAt   time.Time
}
