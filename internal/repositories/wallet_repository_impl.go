package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consora/internal/models"

	"gorm.io/gorm"
)

type walletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a gorm-backed WalletRepository.
func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	result := r.db.WithContext(ctx).Create(wallet)
	if result.Error != nil {
		return fmt.Errorf("failed to create wallet: %w", result.Error)
	}
	return nil
}

func (r *walletRepository) GetByID(ctx context.Context, id uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

// Debit runs the balance guard and the ledger insert as one database
// transaction. The guard is a conditional UPDATE, not a read-then-write:
// "balance >= amount" is evaluated by the database under the row lock, so
// two racing debits serialize there and the loser sees zero rows updated.
func (r *walletRepository) Debit(ctx context.Context, entry LedgerEntry) (*models.Wallet, error) {
	if entry.Amount.Sign() <= 0 {
		return nil, ErrInvalidLedgerEntry
	}

	var wallet models.Wallet
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Wallet{}).
			Where("id = ? AND balance >= ?", entry.WalletID, entry.Amount).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance - ?", entry.Amount),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Wallet{}).Where("id = ?", entry.WalletID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrWalletNotFound
			}
			return ErrInsufficientBalance
		}

		txn := &models.Transaction{
			WalletID:    entry.WalletID,
			Amount:      entry.Amount.Neg(),
			Kind:        entry.Kind,
			Description: entry.Description,
			Reference:   entry.Reference,
			SessionID:   entry.SessionID,
			Metadata:    entry.Metadata,
		}
		if err := tx.Create(txn).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateReference
			}
			return err
		}

		return tx.First(&wallet, entry.WalletID).Error
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrWalletNotFound) || errors.Is(err, ErrDuplicateReference) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to debit wallet: %w", err)
	}
	return &wallet, nil
}

// Credit inserts the ledger entry before touching the balance so an
// idempotency-key replay aborts the whole transaction with
// ErrDuplicateReference and no balance change.
func (r *walletRepository) Credit(ctx context.Context, entry LedgerEntry) (*models.Wallet, error) {
	if entry.Amount.Sign() <= 0 {
		return nil, ErrInvalidLedgerEntry
	}

	var wallet models.Wallet
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn := &models.Transaction{
			WalletID:    entry.WalletID,
			Amount:      entry.Amount,
			Kind:        entry.Kind,
			Description: entry.Description,
			Reference:   entry.Reference,
			SessionID:   entry.SessionID,
			Metadata:    entry.Metadata,
		}
		if err := tx.Create(txn).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateReference
			}
			return err
		}

		result := tx.Model(&models.Wallet{}).
			Where("id = ?", entry.WalletID).
			Updates(map[string]interface{}{
				"balance":    gorm.Expr("balance + ?", entry.Amount),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrWalletNotFound
		}

		return tx.First(&wallet, entry.WalletID).Error
	})
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) || errors.Is(err, ErrDuplicateReference) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) ListTransactions(ctx context.Context, walletID uint, limit, offset int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}
