package telephony

import (
	"context"

	"consora/internal/models"
)

// StatusEvent is one validated call-lifecycle signal from the provider.
// EventID is the provider-assigned unique identifier used for replay
// protection.
type StatusEvent struct {
	EventID         string
	CallSID         string
	Status          string
	DurationSeconds int
	Raw             models.JSON
}

// RecordingEvent signals that a call recording became available.
type RecordingEvent struct {
	EventID      string
	CallSID      string
	RecordingURL string
	Raw          models.JSON
}

// SignatureValidator authenticates an inbound provider request from the
// shared-secret signature computed over the request URL and form body.
type SignatureValidator interface {
	Validate(url string, params map[string]string, signature string) bool
}

// Dialer places outbound calls. The production implementation wraps the
// provider's REST client; it is constructed once at process start and
// owned by the bridge.
type Dialer interface {
	CreateCall(to, from, voiceURL, statusCallbackURL string) (callSID string, err error)
}

// Service is the telephony reconciliation bridge: it folds authenticated
// provider events into session state and emits call-control documents.
type Service interface {
	// Validator returns the signature gate handlers must pass before any
	// event reaches HandleStatus or HandleRecording.
	Validator() SignatureValidator

	// HandleStatus maps a call-status event onto a session transition.
	// A replayed event id is a no-op success.
	HandleStatus(ctx context.Context, evt StatusEvent) error

	// HandleRecording stores the recording reference on the call record.
	HandleRecording(ctx context.Context, evt RecordingEvent) error

	// PlaceCall originates the outbound leg for a call-channel session
	// and links the provider call id to it.
	PlaceCall(ctx context.Context, sessionID uint) (callSID string, err error)

	// Answer produces the call-control document for a connecting call:
	// greeting plus a recorded dial of the masked number, or the busy /
	// insufficient-funds / error fallback documents.
	Answer(ctx context.Context, sessionID uint) (string, error)
}
