// Package payment reconciles asynchronous payment-processor signals
// into the wallet ledger. The signature is verified over the exact raw
// request bytes before anything is parsed; a request that fails the gate
// mutates nothing.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"consora/internal/models"
	"consora/internal/repositories"
	"consora/internal/services/wallet"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
)

// ErrInvalidSignature means the webhook signature did not verify.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Service is the payment reconciliation bridge.
type Service interface {
	// HandleWebhook verifies and processes one raw webhook delivery.
	// Unrecognized event types are accepted and ignored so the processor
	// does not retry-storm us.
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

type service struct {
	wallets wallet.Service
	events  repositories.EventRepository
	secret  string
}

// NewService creates the payment bridge with the webhook signing secret.
func NewService(wallets wallet.Service, events repositories.EventRepository, secret string) Service {
	if wallets == nil {
		panic("wallet service is required")
	}
	if events == nil {
		panic("event repository is required")
	}
	return &service{wallets: wallets, events: events, secret: secret}
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := webhook.ConstructEvent(payload, signatureHeader, s.secret)
	if err != nil {
		return ErrInvalidSignature
	}

	switch event.Type {
	case "payment_intent.succeeded":
		return s.handleSucceeded(ctx, event)
	case "payment_intent.payment_failed":
		return s.handleFailed(ctx, event)
	default:
		log.Printf("payment: ignoring event type %q (%s)", event.Type, event.ID)
		return nil
	}
}

func (s *service) handleSucceeded(ctx context.Context, event stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return fmt.Errorf("failed to parse payment intent: %w", err)
	}

	walletID, err := walletIDFromMetadata(intent.Metadata)
	if err != nil {
		// Not a wallet top-up; accept so the processor stops retrying.
		log.Printf("payment: event %s has no wallet reference, ignoring", event.ID)
		return nil
	}

	// The event id is the idempotency key: a replay fails the ledger
	// insert and credits nothing.
	ref := event.ID
	amount := decimal.New(intent.Amount, -2)
	_, err = s.wallets.Credit(ctx, wallet.EntryRequest{
		WalletID:    walletID,
		Amount:      amount,
		Kind:        models.TransactionKindDeposit,
		Description: "wallet top-up",
		Reference:   &ref,
		Metadata: models.JSON{
			"payment_intent": intent.ID,
			"currency":       string(intent.Currency),
		},
	})
	if errors.Is(err, wallet.ErrDuplicateReference) {
		return nil
	}
	if err != nil {
		return err
	}

	s.recordEvent(ctx, event)
	return nil
}

// handleFailed records the failure for audit; no balance change.
func (s *service) handleFailed(ctx context.Context, event stripe.Event) error {
	s.recordEvent(ctx, event)
	return nil
}

func (s *service) recordEvent(ctx context.Context, event stripe.Event) {
	err := s.events.Record(ctx, &models.ProviderEvent{
		Provider: models.ProviderPayment,
		EventID:  event.ID,
		Type:     event.Type,
		Payload:  models.JSON{"object": string(event.Data.Raw)},
	})
	if err != nil && !errors.Is(err, repositories.ErrDuplicateEvent) {
		log.Printf("payment: failed to record event %s: %v", event.ID, err)
	}
}

func walletIDFromMetadata(metadata map[string]string) (uint, error) {
	raw, ok := metadata["wallet_id"]
	if !ok {
		return 0, errors.New("no wallet_id in metadata")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid wallet_id %q", raw)
	}
	return uint(id), nil
}
