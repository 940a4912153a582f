// Package telephony reconciles asynchronous call-lifecycle signals from
// the telephony provider into session state, and emits the provider's
// call-control documents. Signature validation happens in the HTTP
// handler before any event reaches this service.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"consora/internal/models"
	"consora/internal/repositories"
	"consora/internal/services/session"
	"consora/internal/services/wallet"
)

// Provider call-status vocabulary.
const (
	StatusQueued     = "queued"
	StatusInitiated  = "initiated"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusBusy       = "busy"
	StatusNoAnswer   = "no-answer"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// Config holds the bridge's provider settings.
type Config struct {
	// PlatformNumber is the caller id presented to both parties; it
	// masks the real numbers.
	PlatformNumber string
	// VoiceURL is the webhook the provider fetches call-control
	// documents from.
	VoiceURL string
	// StatusCallbackURL receives call-lifecycle events.
	StatusCallbackURL string
	// Greeting is spoken before connecting.
	Greeting string

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

type service struct {
	sessions  session.Service
	wallets   wallet.Service
	operators repositories.OperatorRepository
	events    repositories.EventRepository
	validator SignatureValidator
	dialer    Dialer
	cfg       Config
}

// NewService creates the telephony bridge. The dialer and validator are
// injected so tests can run without the provider.
func NewService(
	sessions session.Service,
	wallets wallet.Service,
	operators repositories.OperatorRepository,
	events repositories.EventRepository,
	validator SignatureValidator,
	dialer Dialer,
	cfg Config,
) Service {
	if sessions == nil || wallets == nil || operators == nil || events == nil {
		panic("telephony bridge dependencies are required")
	}
	if validator == nil {
		panic("signature validator is required")
	}
	if cfg.Greeting == "" {
		cfg.Greeting = "Welcome. You are now being connected to your advisor."
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &service{
		sessions:  sessions,
		wallets:   wallets,
		operators: operators,
		events:    events,
		validator: validator,
		dialer:    dialer,
		cfg:       cfg,
	}
}

func (s *service) Validator() SignatureValidator {
	return s.validator
}

// HandleStatus deduplicates by the provider event id, maps the status
// onto a session transition and records the event for audit. The
// duplicate check runs first; a concurrent redelivery slipping past it
// is still harmless because every transition below is idempotent.
func (s *service) HandleStatus(ctx context.Context, evt StatusEvent) error {
	seen, err := s.events.Seen(ctx, models.ProviderTelephony, evt.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if seen {
		return nil
	}

	if err := s.applyStatus(ctx, evt); err != nil {
		return err
	}

	err = s.events.Record(ctx, &models.ProviderEvent{
		Provider: models.ProviderTelephony,
		EventID:  evt.EventID,
		Type:     "call." + evt.Status,
		Payload:  evt.Raw,
	})
	if err != nil && !errors.Is(err, repositories.ErrDuplicateEvent) {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if err := s.events.UpdateCallStatus(ctx, evt.CallSID, evt.Status); err != nil &&
		!errors.Is(err, repositories.ErrCallRecordNotFound) {
		log.Printf("telephony: failed to update call record %s: %v", evt.CallSID, err)
	}
	return nil
}

func (s *service) applyStatus(ctx context.Context, evt StatusEvent) error {
	switch evt.Status {
	case StatusQueued, StatusInitiated, StatusRinging:
		// Informational only.
		return nil
	}

	sess, err := s.sessions.GetByCallSID(ctx, evt.CallSID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			// A call we did not originate; accept and ignore.
			log.Printf("telephony: no session for call %s, ignoring %q", evt.CallSID, evt.Status)
			return nil
		}
		return err
	}

	now := s.cfg.Now()
	switch evt.Status {
	case StatusInProgress:
		return s.sessions.Activate(ctx, sess.ID)
	case StatusCompleted:
		_, err := s.sessions.EndWithProviderDuration(ctx, sess.ID, models.EndReasonRemoteHangup, evt.DurationSeconds, now)
		return err
	case StatusBusy, StatusNoAnswer, StatusFailed, StatusCanceled:
		return s.sessions.Abort(ctx, sess.ID, models.EndReasonConnectionFailed, now)
	default:
		log.Printf("telephony: unknown call status %q for %s, ignoring", evt.Status, evt.CallSID)
		return nil
	}
}

func (s *service) HandleRecording(ctx context.Context, evt RecordingEvent) error {
	seen, err := s.events.Seen(ctx, models.ProviderTelephony, evt.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if seen {
		return nil
	}

	if err := s.events.SetRecordingURL(ctx, evt.CallSID, evt.RecordingURL); err != nil {
		if errors.Is(err, repositories.ErrCallRecordNotFound) {
			log.Printf("telephony: recording for unknown call %s, ignoring", evt.CallSID)
			return nil
		}
		return err
	}

	err = s.events.Record(ctx, &models.ProviderEvent{
		Provider: models.ProviderTelephony,
		EventID:  evt.EventID,
		Type:     "call.recording",
		Payload:  evt.Raw,
	})
	if err != nil && !errors.Is(err, repositories.ErrDuplicateEvent) {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *service) PlaceCall(ctx context.Context, sessionID uint) (string, error) {
	if s.dialer == nil {
		return "", errors.New("no dialer configured")
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.Channel != models.ChannelCall {
		return "", ErrNotCallChannel
	}

	operator, err := s.operators.GetByID(ctx, sess.OperatorID)
	if err != nil {
		return "", fmt.Errorf("failed to load operator: %w", err)
	}

	voiceURL := fmt.Sprintf("%s?session_id=%d", s.cfg.VoiceURL, sess.ID)
	callSID, err := s.dialer.CreateCall(operator.PhoneNumber, s.cfg.PlatformNumber, voiceURL, s.cfg.StatusCallbackURL)
	if err != nil {
		return "", fmt.Errorf("failed to place call: %w", err)
	}

	if err := s.sessions.AttachCall(ctx, sess.ID, callSID); err != nil {
		return "", err
	}
	if err := s.events.CreateCallRecord(ctx, &models.CallRecord{
		SessionID:    sess.ID,
		CallSID:      callSID,
		MaskedNumber: operator.PhoneNumber,
		LastStatus:   StatusQueued,
	}); err != nil {
		return "", err
	}
	return callSID, nil
}

// Answer decides the call-control document for a connecting call. The
// failure branches never expose internals: the caller hears a busy,
// low-balance or generic notice and the call hangs up.
func (s *service) Answer(ctx context.Context, sessionID uint) (string, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return hangupDocument(msgGenericError)
	}
	if sess.Channel != models.ChannelCall || sess.IsTerminal() {
		return hangupDocument(msgGenericError)
	}

	operator, err := s.operators.GetByID(ctx, sess.OperatorID)
	if err != nil {
		return hangupDocument(msgGenericError)
	}
	if !operator.Online || !operator.CallEnabled {
		return hangupDocument(msgBusy)
	}

	w, err := s.wallets.GetWallet(ctx, sess.ClientID)
	if err != nil {
		return hangupDocument(msgGenericError)
	}
	if w.Balance.LessThan(sess.RatePerMinute) {
		return hangupDocument(msgInsufficientFunds)
	}

	masked := operator.PhoneNumber
	if record, err := s.events.GetCallBySID(ctx, stringValue(sess.CallSID)); err == nil && record.MaskedNumber != "" {
		masked = record.MaskedNumber
	}
	return connectDocument(s.cfg.Greeting, masked, s.cfg.PlatformNumber)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
