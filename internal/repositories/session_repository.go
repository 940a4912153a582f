package repositories

import (
	"context"

	"consora/internal/models"
)

// SessionRepository exposes the atomic session operations. All mutation
// of an existing session happens through UpdateLocked, which serializes
// tick/end racing on the database row lock rather than any in-process
// lock; the Billing Scheduler and the webhook handlers may run in
// separate processes.
type SessionRepository interface {
	Create(ctx context.Context, session *models.ConsultationSession) error
	GetByID(ctx context.Context, id uint) (*models.ConsultationSession, error)
	GetByCallSID(ctx context.Context, callSID string) (*models.ConsultationSession, error)

	// ListActive returns every session currently in the active state.
	ListActive(ctx context.Context) ([]models.ConsultationSession, error)

	// UpdateLocked loads the session under a SELECT ... FOR UPDATE row
	// lock, runs fn with the session and a wallet repository bound to the
	// same database transaction, and saves the mutated session before
	// commit. If fn returns an error the whole transaction rolls back,
	// including any wallet debits/credits fn performed.
	UpdateLocked(ctx context.Context, id uint, fn func(session *models.ConsultationSession, wallets WalletRepository) error) error
}
