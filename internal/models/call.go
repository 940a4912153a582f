package models

import "time"

// Event providers
const (
	ProviderTelephony = "telephony"
	ProviderPayment   = "payment"
)

// CallRecord is the call-channel extension of a session: the external
// call identifier, the masked relay number dialed on the client's behalf,
// and the recording reference once the provider reports one.
type CallRecord struct {
	ID           uint   `gorm:"primarykey"`
	SessionID    uint   `gorm:"uniqueIndex;not null"`
	CallSID      string `gorm:"uniqueIndex;size:64;not null"`
	MaskedNumber string `gorm:"size:20"`
	RecordingURL string
	LastStatus   string `gorm:"size:24"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProviderEvent is the raw audit/idempotency log of inbound provider
// signals. EventID carries the provider-assigned unique identifier; the
// unique index turns a redelivered event into an insert conflict, which
// the bridges treat as "already processed".
type ProviderEvent struct {
	ID        uint   `gorm:"primarykey"`
	Provider  string `gorm:"size:16;not null"`
	EventID   string `gorm:"uniqueIndex;size:128;not null"`
	Type      string `gorm:"size:64;not null"`
	Payload   JSON   `gorm:"type:jsonb"`
	CreatedAt time.Time
}
