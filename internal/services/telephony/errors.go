package telephony

import "errors"

// Bridge errors
var (
	ErrUnauthorized   = errors.New("invalid provider signature")
	ErrUnknownCall    = errors.New("no session for call")
	ErrNotCallChannel = errors.New("session is not a call consultation")
)
