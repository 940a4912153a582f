package wallet

import (
	"context"
	"errors"
	"fmt"

	"consora/internal/models"
	"consora/internal/repositories"

	"github.com/shopspring/decimal"
)

type service struct {
	repo    repositories.WalletRepository
	cache   Cache
	metrics MetricsCollector
}

// NewService creates the wallet ledger service.
func NewService(repo repositories.WalletRepository, cache Cache, metrics MetricsCollector) Service {
	if repo == nil {
		panic("repo is required")
	}
	if cache == nil {
		panic("cache is required")
	}
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}
	return &service{repo: repo, cache: cache, metrics: metrics}
}

func (s *service) CreateWallet(ctx context.Context, userID uint, currency string) (*models.Wallet, error) {
	if currency == "" {
		currency = "EUR"
	}
	w := &models.Wallet{
		UserID:   userID,
		Balance:  decimal.Zero,
		Currency: currency,
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	s.cache.SetWallet(ctx, w)
	return w, nil
}

func (s *service) GetWallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	if w, err := s.cache.GetWallet(ctx, userID); err == nil && w != nil {
		s.metrics.RecordCacheHit("wallet")
		return w, nil
	}
	s.metrics.RecordCacheMiss("wallet")

	w, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	s.cache.SetWallet(ctx, w)
	return w, nil
}

func (s *service) GetByID(ctx context.Context, walletID uint) (*models.Wallet, error) {
	w, err := s.repo.GetByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func (s *service) Debit(ctx context.Context, req EntryRequest) (decimal.Decimal, error) {
	if req.Amount.Sign() <= 0 {
		s.metrics.RecordError("debit", "invalid_amount")
		return decimal.Zero, ErrInvalidAmount
	}

	w, err := s.repo.Debit(ctx, repositories.LedgerEntry{
		WalletID:    req.WalletID,
		Amount:      req.Amount,
		Kind:        req.Kind,
		Description: req.Description,
		Reference:   req.Reference,
		SessionID:   req.SessionID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return decimal.Zero, s.mapLedgerError("debit", err)
	}

	s.cache.InvalidateWallet(ctx, w.UserID)
	s.metrics.RecordTransaction(req.Kind, req.Amount.InexactFloat64())
	return w.Balance, nil
}

func (s *service) Credit(ctx context.Context, req EntryRequest) (decimal.Decimal, error) {
	if req.Amount.Sign() <= 0 {
		s.metrics.RecordError("credit", "invalid_amount")
		return decimal.Zero, ErrInvalidAmount
	}

	w, err := s.repo.Credit(ctx, repositories.LedgerEntry{
		WalletID:    req.WalletID,
		Amount:      req.Amount,
		Kind:        req.Kind,
		Description: req.Description,
		Reference:   req.Reference,
		SessionID:   req.SessionID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return decimal.Zero, s.mapLedgerError("credit", err)
	}

	s.cache.InvalidateWallet(ctx, w.UserID)
	s.metrics.RecordTransaction(req.Kind, req.Amount.InexactFloat64())
	return w.Balance, nil
}

func (s *service) Transactions(ctx context.Context, walletID uint, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	txns, err := s.repo.ListTransactions(ctx, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

func (s *service) mapLedgerError(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrInsufficientBalance):
		s.metrics.RecordError(op, "insufficient_funds")
		return ErrInsufficientFunds
	case errors.Is(err, repositories.ErrDuplicateReference):
		s.metrics.RecordError(op, "duplicate_reference")
		return ErrDuplicateReference
	case errors.Is(err, repositories.ErrWalletNotFound):
		s.metrics.RecordError(op, "wallet_not_found")
		return ErrWalletNotFound
	default:
		s.metrics.RecordError(op, "storage")
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
}
