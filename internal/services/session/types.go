package session

import (
	"context"
	"time"

	"consora/internal/models"

	"github.com/shopspring/decimal"
)

// Config holds session service configuration.
type Config struct {
	// PlatformFeeRate is the platform's cut of session cost, 0..1.
	// Operator earning is cost * (1 - PlatformFeeRate).
	PlatformFeeRate decimal.Decimal

	// WalletCache, when set, has the cached balances of wallets touched
	// by a billing pass dropped once the pass commits.
	WalletCache WalletCache

	// Now is the clock, overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// WalletCache invalidates cached wallet reads by user id. Billing debits
// and payout credits run inside the session's database transaction and
// bypass the wallet service, so the session service drops the stale
// cache entries itself after commit.
type WalletCache interface {
	InvalidateWallet(ctx context.Context, userID uint) error
}

// Service is the session state machine.
type Service interface {
	// Create inserts a pending session with the operator's current rate
	// frozen in. Fails with ErrOperatorUnavailable when the operator is
	// offline or does not accept the channel.
	Create(ctx context.Context, clientID, operatorID uint, channel string) (*models.ConsultationSession, error)

	Get(ctx context.Context, id uint) (*models.ConsultationSession, error)
	GetByCallSID(ctx context.Context, callSID string) (*models.ConsultationSession, error)

	// Activate moves pending -> active. Idempotent: an already-active
	// session is left as is.
	Activate(ctx context.Context, id uint) error

	// AttachCall links the external call identifier to a call session.
	AttachCall(ctx context.Context, id uint, callSID string) error

	// Tick bills the elapsed time since the session was last billed.
	// Only meaningful while active; a terminal session returns
	// ErrSessionNotActive and is left untouched. On insufficient funds
	// the session transitions to insufficient_funds and billing stops.
	Tick(ctx context.Context, id uint, now time.Time) error

	// End performs a final catch-up tick, settles the operator earning
	// and freezes the session as completed (or cancelled when it never
	// activated). Idempotent once terminal.
	End(ctx context.Context, id uint, reason string, now time.Time) (*models.ConsultationSession, error)

	// EndWithProviderDuration ends the session using the telephony
	// provider's reported duration as the authoritative billing figure:
	// final cost is recomputed from it, tick-based overage is refunded
	// and any shortfall debited.
	EndWithProviderDuration(ctx context.Context, id uint, reason string, providerSeconds int, now time.Time) (*models.ConsultationSession, error)

	// Abort terminates a session whose call never connected (busy,
	// no-answer, failed) with zero additional cost.
	Abort(ctx context.Context, id uint, reason string, now time.Time) error
}
