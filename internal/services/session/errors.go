package session

import "errors"

// Service errors
var (
	ErrOperatorUnavailable = errors.New("operator unavailable")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotActive    = errors.New("session not active")
	ErrInvalidChannel      = errors.New("invalid channel")
	ErrNotSessionParty     = errors.New("not a party to this session")
)
