// Package billing runs the periodic tick sweep over active sessions.
// Correctness never depends on how often a sweep fires: each tick bills
// only the elapsed time since the session was last billed, so duplicate
// and irregular firings are harmless.
package billing

import (
	"context"
	"errors"
	"log"
	"time"

	"consora/internal/metrics"
	"consora/internal/models"
	"consora/internal/repositories"
	"consora/internal/services/session"

	"github.com/google/uuid"
)

// Result statuses per swept session.
const (
	ResultTicked  = "ticked"
	ResultEnded   = "ended_stale"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// SweepResult reports the outcome for one session.
type SweepResult struct {
	SessionID uint   `json:"session_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Summary reports one whole sweep. SweepID correlates the summary with
// the per-session log lines of the same cycle.
type Summary struct {
	SweepID string        `json:"sweep_id"`
	Success bool          `json:"success"`
	SweptAt time.Time     `json:"swept_at"`
	Results []SweepResult `json:"results"`
}

// Sweeper enumerates active sessions and ticks each one, isolating
// per-session failures so one bad session never blocks the rest.
type Sweeper struct {
	sessions   repositories.SessionRepository
	machine    session.Service
	staleAfter time.Duration
}

// NewSweeper creates a Sweeper. staleAfter, when positive, force-ends
// active sessions that have not been billable for that long (a dead
// client that never said goodbye).
func NewSweeper(sessions repositories.SessionRepository, machine session.Service, staleAfter time.Duration) *Sweeper {
	if sessions == nil {
		panic("session repository is required")
	}
	if machine == nil {
		panic("session service is required")
	}
	return &Sweeper{sessions: sessions, machine: machine, staleAfter: staleAfter}
}

// Sweep ticks every active session once. It is safe to invoke
// concurrently with itself: per-session serialization happens on the
// database row lock, and a session already ended by a racing caller is
// reported as skipped. A sweep that cannot enumerate sessions aborts the
// cycle and is retried on the next interval.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (*Summary, error) {
	active, err := s.sessions.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		SweepID: uuid.NewString(),
		Success: true,
		SweptAt: now.UTC(),
		Results: make([]SweepResult, 0, len(active)),
	}
	counts := make(map[string]int, 4)
	for _, sess := range active {
		result := s.sweepOne(ctx, sess, now)
		counts[result.Status]++
		summary.Results = append(summary.Results, result)
	}
	metrics.RecordSweep(counts)
	return summary, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, sess models.ConsultationSession, now time.Time) SweepResult {
	result := SweepResult{SessionID: sess.ID}

	// Stale sessions are ended regardless of channel, so an abandoned
	// written consultation does not stay active forever.
	if s.staleAfter > 0 && sess.LastBilledAt != nil && now.Sub(*sess.LastBilledAt) > s.staleAfter {
		if _, err := s.machine.End(ctx, sess.ID, models.EndReasonStaleTimeout, now); err != nil {
			result.Status = ResultError
			result.Error = err.Error()
			log.Printf("sweep: failed to end stale session %d: %v", sess.ID, err)
			return result
		}
		result.Status = ResultEnded
		return result
	}

	// Written consultations are flat-billed at activation, never ticked.
	if sess.Channel == models.ChannelWritten {
		result.Status = ResultSkipped
		return result
	}

	err := s.machine.Tick(ctx, sess.ID, now)
	switch {
	case err == nil:
		result.Status = ResultTicked
	case errors.Is(err, session.ErrSessionNotActive), errors.Is(err, session.ErrSessionNotFound):
		// Ended between the listing and the tick.
		result.Status = ResultSkipped
	default:
		result.Status = ResultError
		result.Error = err.Error()
		log.Printf("sweep: failed to tick session %d: %v", sess.ID, err)
	}
	return result
}

// Run fires Sweep on a fixed interval until ctx is cancelled. A failed
// cycle is logged and retried on the next interval, never mid-cycle.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := s.Sweep(ctx, now); err != nil {
				log.Printf("sweep aborted: %v", err)
			}
		}
	}
}
