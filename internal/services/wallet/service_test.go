package wallet

import (
	"context"
	"testing"

	"consora/internal/models"
	"consora/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	wallets    map[uint]*models.Wallet
	byUser     map[uint]uint
	ledger     []models.Transaction
	references map[string]bool
	nextID     uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		wallets:    make(map[uint]*models.Wallet),
		byUser:     make(map[uint]uint),
		references: make(map[string]bool),
		nextID:     1,
	}
}

func (r *fakeRepo) add(userID uint, balance string) *models.Wallet {
	w := &models.Wallet{ID: r.nextID, UserID: userID, Balance: decimal.RequireFromString(balance), Currency: "EUR"}
	r.nextID++
	r.wallets[w.ID] = w
	r.byUser[userID] = w.ID
	return w
}

func (r *fakeRepo) Create(_ context.Context, w *models.Wallet) error {
	w.ID = r.nextID
	r.nextID++
	r.wallets[w.ID] = w
	r.byUser[w.UserID] = w.ID
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uint) (*models.Wallet, error) {
	w, ok := r.wallets[id]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	return w, nil
}

func (r *fakeRepo) GetByUserID(_ context.Context, userID uint) (*models.Wallet, error) {
	id, ok := r.byUser[userID]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	return r.wallets[id], nil
}

func (r *fakeRepo) claimReference(ref *string) error {
	if ref == nil {
		return nil
	}
	if r.references[*ref] {
		return repositories.ErrDuplicateReference
	}
	r.references[*ref] = true
	return nil
}

func (r *fakeRepo) Debit(_ context.Context, entry repositories.LedgerEntry) (*models.Wallet, error) {
	w, ok := r.wallets[entry.WalletID]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	if w.Balance.LessThan(entry.Amount) {
		return nil, repositories.ErrInsufficientBalance
	}
	if err := r.claimReference(entry.Reference); err != nil {
		return nil, err
	}
	w.Balance = w.Balance.Sub(entry.Amount)
	r.ledger = append(r.ledger, models.Transaction{WalletID: entry.WalletID, Amount: entry.Amount.Neg(), Kind: entry.Kind})
	return w, nil
}

func (r *fakeRepo) Credit(_ context.Context, entry repositories.LedgerEntry) (*models.Wallet, error) {
	w, ok := r.wallets[entry.WalletID]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	if err := r.claimReference(entry.Reference); err != nil {
		return nil, err
	}
	w.Balance = w.Balance.Add(entry.Amount)
	r.ledger = append(r.ledger, models.Transaction{WalletID: entry.WalletID, Amount: entry.Amount, Kind: entry.Kind})
	return w, nil
}

func (r *fakeRepo) ListTransactions(_ context.Context, walletID uint, _, _ int) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, t := range r.ledger {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeCache tracks hits and invalidations.
type fakeCache struct {
	wallets     map[uint]*models.Wallet
	invalidated []uint
}

func newFakeCache() *fakeCache {
	return &fakeCache{wallets: make(map[uint]*models.Wallet)}
}

func (c *fakeCache) GetWallet(_ context.Context, userID uint) (*models.Wallet, error) {
	w, ok := c.wallets[userID]
	if !ok {
		return nil, nil
	}
	return w, nil
}

func (c *fakeCache) SetWallet(_ context.Context, w *models.Wallet) error {
	c.wallets[w.UserID] = w
	return nil
}

func (c *fakeCache) InvalidateWallet(_ context.Context, userID uint) error {
	delete(c.wallets, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

func TestGetWallet(t *testing.T) {
	ctx := context.Background()

	t.Run("misses fall through to storage and warm the cache", func(t *testing.T) {
		repo := newFakeRepo()
		repo.add(1, "10.00")
		cache := newFakeCache()
		svc := NewService(repo, cache, nil)

		w, err := svc.GetWallet(ctx, 1)
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(decimal.RequireFromString("10.00")))
		assert.Contains(t, cache.wallets, uint(1))
	})

	t.Run("unknown user", func(t *testing.T) {
		svc := NewService(newFakeRepo(), newFakeCache(), nil)
		_, err := svc.GetWallet(ctx, 42)
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})
}

func TestDebit(t *testing.T) {
	ctx := context.Background()

	t.Run("debits and invalidates the cache", func(t *testing.T) {
		repo := newFakeRepo()
		w := repo.add(1, "10.00")
		cache := newFakeCache()
		cache.SetWallet(ctx, w)
		svc := NewService(repo, cache, nil)

		balance, err := svc.Debit(ctx, EntryRequest{
			WalletID: w.ID,
			Amount:   decimal.RequireFromString("4.80"),
			Kind:     models.TransactionKindConsultationCharge,
		})
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("5.20")), "balance: %s", balance)
		assert.Equal(t, []uint{1}, cache.invalidated)
	})

	t.Run("insufficient funds leave the balance untouched", func(t *testing.T) {
		repo := newFakeRepo()
		w := repo.add(1, "0.50")
		svc := NewService(repo, newFakeCache(), nil)

		_, err := svc.Debit(ctx, EntryRequest{
			WalletID: w.ID,
			Amount:   decimal.RequireFromString("1.00"),
			Kind:     models.TransactionKindConsultationCharge,
		})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.True(t, w.Balance.Equal(decimal.RequireFromString("0.50")))
		assert.Empty(t, repo.ledger, "a failed debit writes no ledger row")
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		svc := NewService(newFakeRepo(), newFakeCache(), nil)
		_, err := svc.Debit(ctx, EntryRequest{WalletID: 1, Amount: decimal.Zero})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = svc.Debit(ctx, EntryRequest{WalletID: 1, Amount: decimal.RequireFromString("-5.00")})
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("credits the wallet", func(t *testing.T) {
		repo := newFakeRepo()
		w := repo.add(1, "0.00")
		svc := NewService(repo, newFakeCache(), nil)

		balance, err := svc.Credit(ctx, EntryRequest{
			WalletID: w.ID,
			Amount:   decimal.RequireFromString("25.00"),
			Kind:     models.TransactionKindDeposit,
		})
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("25.00")))
	})

	t.Run("a reused reference credits nothing", func(t *testing.T) {
		repo := newFakeRepo()
		w := repo.add(1, "0.00")
		svc := NewService(repo, newFakeCache(), nil)

		ref := "evt_1"
		req := EntryRequest{
			WalletID:  w.ID,
			Amount:    decimal.RequireFromString("25.00"),
			Kind:      models.TransactionKindDeposit,
			Reference: &ref,
		}
		_, err := svc.Credit(ctx, req)
		require.NoError(t, err)

		_, err = svc.Credit(ctx, req)
		assert.ErrorIs(t, err, ErrDuplicateReference)
		assert.True(t, w.Balance.Equal(decimal.RequireFromString("25.00")), "balance: %s", w.Balance)
		assert.Len(t, repo.ledger, 1)
	})
}
