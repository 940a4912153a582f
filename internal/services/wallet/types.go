package wallet

import (
	"context"

	"consora/internal/models"

	"github.com/shopspring/decimal"
)

// EntryRequest describes one debit or credit against a wallet. Amount is
// always positive; the direction comes from the method called.
type EntryRequest struct {
	WalletID    uint
	Amount      decimal.Decimal
	Kind        string
	Description string
	// Reference, when set, is an idempotency key: a second call with the
	// same reference fails with ErrDuplicateReference and no mutation.
	Reference *string
	SessionID *uint
	Metadata  models.JSON
}

// Service is the wallet ledger.
type Service interface {
	CreateWallet(ctx context.Context, userID uint, currency string) (*models.Wallet, error)
	GetWallet(ctx context.Context, userID uint) (*models.Wallet, error)
	GetByID(ctx context.Context, walletID uint) (*models.Wallet, error)

	// Debit atomically withdraws req.Amount, returning the new balance or
	// ErrInsufficientFunds with the balance unchanged.
	Debit(ctx context.Context, req EntryRequest) (decimal.Decimal, error)

	// Credit atomically deposits req.Amount, returning the new balance.
	Credit(ctx context.Context, req EntryRequest) (decimal.Decimal, error)

	Transactions(ctx context.Context, walletID uint, limit, offset int) ([]models.Transaction, error)
}

// MetricsCollector receives ledger metrics. A nil collector is replaced
// with a no-op one.
type MetricsCollector interface {
	RecordTransaction(kind string, amount float64)
	RecordError(operation, errType string)
	RecordCacheHit(key string)
	RecordCacheMiss(key string)
}

// Cache is the wallet read-cache dependency.
type Cache interface {
	GetWallet(ctx context.Context, userID uint) (*models.Wallet, error)
	SetWallet(ctx context.Context, wallet *models.Wallet) error
	InvalidateWallet(ctx context.Context, userID uint) error
}
