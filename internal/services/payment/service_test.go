package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"consora/internal/models"
	"consora/internal/repositories"
	"consora/internal/services/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

// signedHeader produces the processor's signature header for payload:
// an HMAC-SHA256 over "<timestamp>.<payload>" keyed with the endpoint
// secret.
func signedHeader(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type creditCall struct {
	req wallet.EntryRequest
}

// stubWallets records credits and enforces reference uniqueness the way
// the ledger does.
type stubWallets struct {
	credits    []creditCall
	references map[string]bool
}

func newStubWallets() *stubWallets {
	return &stubWallets{references: make(map[string]bool)}
}

func (w *stubWallets) CreateWallet(context.Context, uint, string) (*models.Wallet, error) {
	return nil, nil
}
func (w *stubWallets) GetWallet(context.Context, uint) (*models.Wallet, error) {
	return nil, wallet.ErrWalletNotFound
}
func (w *stubWallets) GetByID(context.Context, uint) (*models.Wallet, error) {
	return nil, wallet.ErrWalletNotFound
}
func (w *stubWallets) Debit(context.Context, wallet.EntryRequest) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (w *stubWallets) Credit(_ context.Context, req wallet.EntryRequest) (decimal.Decimal, error) {
	if req.Reference != nil {
		if w.references[*req.Reference] {
			return decimal.Zero, wallet.ErrDuplicateReference
		}
		w.references[*req.Reference] = true
	}
	w.credits = append(w.credits, creditCall{req: req})
	return req.Amount, nil
}

func (w *stubWallets) Transactions(context.Context, uint, int, int) ([]models.Transaction, error) {
	return nil, nil
}

type stubEvents struct {
	recorded []models.ProviderEvent
}

func (e *stubEvents) Record(_ context.Context, event *models.ProviderEvent) error {
	for _, r := range e.recorded {
		if r.EventID == event.EventID {
			return repositories.ErrDuplicateEvent
		}
	}
	e.recorded = append(e.recorded, *event)
	return nil
}

func (e *stubEvents) Seen(_ context.Context, _, eventID string) (bool, error) {
	for _, r := range e.recorded {
		if r.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (e *stubEvents) CreateCallRecord(context.Context, *models.CallRecord) error { return nil }
func (e *stubEvents) GetCallBySID(context.Context, string) (*models.CallRecord, error) {
	return nil, repositories.ErrCallRecordNotFound
}
func (e *stubEvents) UpdateCallStatus(context.Context, string, string) error { return nil }
func (e *stubEvents) SetRecordingURL(context.Context, string, string) error  { return nil }

func succeededPayload(eventID string, amountCents int64, walletID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": "pi_123",
				"amount": %d,
				"currency": "eur",
				"metadata": {"wallet_id": %q}
			}
		}
	}`, eventID, amountCents, walletID))
}

func TestHandleWebhookSucceeded(t *testing.T) {
	wallets := newStubWallets()
	events := &stubEvents{}
	svc := NewService(wallets, events, testSecret)

	payload := succeededPayload("evt_1", 2500, "7")
	err := svc.HandleWebhook(context.Background(), payload, signedHeader(payload, testSecret))
	require.NoError(t, err)

	require.Len(t, wallets.credits, 1)
	credit := wallets.credits[0].req
	assert.Equal(t, uint(7), credit.WalletID)
	assert.True(t, credit.Amount.Equal(decimal.RequireFromString("25.00")), "amount: %s", credit.Amount)
	assert.Equal(t, models.TransactionKindDeposit, credit.Kind)
	require.NotNil(t, credit.Reference)
	assert.Equal(t, "evt_1", *credit.Reference)
	assert.Len(t, events.recorded, 1)
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	wallets := newStubWallets()
	svc := NewService(wallets, &stubEvents{}, testSecret)

	payload := succeededPayload("evt_1", 2500, "7")

	t.Run("wrong secret", func(t *testing.T) {
		err := svc.HandleWebhook(context.Background(), payload, signedHeader(payload, "whsec_other"))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signedHeader(payload, testSecret)
		tampered := succeededPayload("evt_1", 9999999, "7")
		err := svc.HandleWebhook(context.Background(), tampered, header)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	assert.Empty(t, wallets.credits, "a rejected delivery must not move money")
}

func TestHandleWebhookReplay(t *testing.T) {
	wallets := newStubWallets()
	svc := NewService(wallets, &stubEvents{}, testSecret)

	payload := succeededPayload("evt_1", 2500, "7")
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, signedHeader(payload, testSecret)))
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, signedHeader(payload, testSecret)))

	assert.Len(t, wallets.credits, 1, "the replay must credit exactly once")
}

func TestHandleWebhookFailedIntent(t *testing.T) {
	wallets := newStubWallets()
	events := &stubEvents{}
	svc := NewService(wallets, events, testSecret)

	payload := []byte(`{
		"id": "evt_2",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_456", "amount": 2500, "metadata": {"wallet_id": "7"}}}
	}`)
	err := svc.HandleWebhook(context.Background(), payload, signedHeader(payload, testSecret))
	require.NoError(t, err)

	assert.Empty(t, wallets.credits)
	assert.Len(t, events.recorded, 1)
}

func TestHandleWebhookUnknownType(t *testing.T) {
	wallets := newStubWallets()
	svc := NewService(wallets, &stubEvents{}, testSecret)

	payload := []byte(`{"id": "evt_3", "type": "customer.created", "data": {"object": {}}}`)
	err := svc.HandleWebhook(context.Background(), payload, signedHeader(payload, testSecret))
	assert.NoError(t, err)
	assert.Empty(t, wallets.credits)
}

func TestHandleWebhookNonWalletPayment(t *testing.T) {
	wallets := newStubWallets()
	svc := NewService(wallets, &stubEvents{}, testSecret)

	// No wallet_id in metadata: accepted, ignored.
	payload := []byte(`{
		"id": "evt_4",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_789", "amount": 1000, "metadata": {}}}
	}`)
	err := svc.HandleWebhook(context.Background(), payload, signedHeader(payload, testSecret))
	assert.NoError(t, err)
	assert.Empty(t, wallets.credits)
}
