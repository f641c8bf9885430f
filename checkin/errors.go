package checkin

import (
	"errors"
	"fmt"
)

// Reason is the stable code of a rejected issue or redemption. Callers branch
// on it; the HTTP layer exposes it verbatim.
type Reason string

const (
	ReasonMalformedToken   Reason = "malformed_token"
	ReasonBadSignature     Reason = "bad_signature"
	ReasonExpired          Reason = "expired"
	ReasonUnknownToken     Reason = "unknown_token"
	ReasonAlreadyUsed      Reason = "already_used"
	ReasonEventNotFound    Reason = "event_not_found"
	ReasonEventClosed      Reason = "event_closed"
	ReasonAlreadyCheckedIn Reason = "already_checked_in"
	ReasonEventFull        Reason = "event_full"
)

// Rejection is an expected business outcome, never an infrastructure fault.
type Rejection struct {
	Reason Reason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("check-in rejected: %s", r.Reason)
}

// Is makes errors.Is(err, &Rejection{Reason: x}) match on reason.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason
}

func reject(reason Reason) error {
	return &Rejection{Reason: reason}
}

// RejectionReason extracts the reason from err, if err is a rejection.
func RejectionReason(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}

var (
	// ErrTryAgain is returned when storage stayed unavailable after the retry.
	ErrTryAgain = errors.New("check-in storage temporarily unavailable, try again")

	// ErrInvalidInput is returned for identities the token format cannot carry.
	ErrInvalidInput = errors.New("invalid check-in input")
)
