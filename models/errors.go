package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

// Conditions the redemption commit re-checks at commit time.
var (
	ErrTokenUsed        = errors.New("token already used")
	ErrEventNotFound    = errors.New("event not found")
	ErrEventClosed      = errors.New("event is not active")
	ErrEventFull        = errors.New("event has reached maximum capacity")
	ErrAlreadyCheckedIn = errors.New("attendee already checked in to this event")
)

var (
	ErrDuplicateNonce = errors.New("nonce already exists")
	ErrDuplicateEvent = errors.New("event already exists")
	ErrAlreadyAwarded = errors.New("attendance already awarded")
)

// ErrUnavailable marks storage failures worth one retry: timeouts, dropped
// connections, serialization conflicts, busy databases.
var ErrUnavailable = errors.New("storage unavailable")
