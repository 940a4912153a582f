package repositories

import (
	"context"
	"errors"

	"consora/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateReference  = errors.New("ledger reference already used")
	ErrInvalidLedgerEntry  = errors.New("invalid ledger entry")
	ErrSessionNotFound     = errors.New("session not found")
	ErrOperatorNotFound    = errors.New("operator not found")
	ErrDuplicateEvent      = errors.New("provider event already recorded")
	ErrCallRecordNotFound  = errors.New("call record not found")
)

// LedgerEntry describes one debit or credit to post against a wallet.
// Reference, when set, must be globally unique; a repeated reference
// makes the operation fail with ErrDuplicateReference without touching
// the balance.
type LedgerEntry struct {
	WalletID    uint
	Amount      decimal.Decimal
	Kind        string
	Description string
	Reference   *string
	SessionID   *uint
	Metadata    models.JSON
}

// WalletRepository exposes the atomic wallet operations. Debit and
// Credit are single transactional steps: the balance guard, the balance
// update and the ledger insert commit together or not at all, so two
// concurrent debits can never both succeed on funds that cover only one.
type WalletRepository interface {
	Create(ctx context.Context, wallet *models.Wallet) error
	GetByID(ctx context.Context, id uint) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error)

	// Debit subtracts entry.Amount (a positive figure) from the wallet,
	// failing with ErrInsufficientBalance when amount > balance and
	// leaving the balance unchanged in that case.
	Debit(ctx context.Context, entry LedgerEntry) (*models.Wallet, error)

	// Credit adds entry.Amount to the wallet.
	Credit(ctx context.Context, entry LedgerEntry) (*models.Wallet, error)

	ListTransactions(ctx context.Context, walletID uint, limit, offset int) ([]models.Transaction, error)
}
