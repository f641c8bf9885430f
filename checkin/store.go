package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"presence-backend/models"
)

// Store is the storage collaborator the core needs. Implementations report
// missing rows as models.ErrNotFound and retryable faults wrapped in
// models.ErrUnavailable.
type Store interface {
	CreateToken(ctx context.Context, t *models.CheckInToken) error
	TokenByNonce(ctx context.Context, nonce string) (*models.CheckInToken, error)
	EventByID(ctx context.Context, id string) (*models.Event, error)
	AttendanceFor(ctx context.Context, eventID, attendeeID string) (*models.Attendance, error)

	// CommitRedemption burns the token, inserts the attendance and increments
	// the event counter in one transaction, re-checking at commit time that
	// the token is unused, the event is active and below capacity, and the
	// attendee has no attendance yet. On failure nothing is written and the
	// error is one of models.ErrTokenUsed, ErrEventNotFound, ErrEventClosed,
	// ErrEventFull or ErrAlreadyCheckedIn.
	CommitRedemption(ctx context.Context, r models.Redemption) (*models.Attendance, error)

	// AwardAttendance marks the attendance awarded and adds one badge and
	// points to the attendee's profile, creating it if absent, in one
	// transaction. A second award of the same row returns ErrAlreadyAwarded.
	AwardAttendance(ctx context.Context, attendanceID string, points int64) (*models.Profile, error)
	ProfileByAttendee(ctx context.Context, attendeeID string) (*models.Profile, error)
	UnawardedAttendances(ctx context.Context, limit int) ([]models.Attendance, error)
}

// caller bounds every storage call with a timeout and retries transient
// failures exactly once.
type caller struct {
	timeout time.Duration
	backoff time.Duration
}

const maxStoreAttempts = 2

func call[T any](ctx context.Context, c caller, op func(context.Context) (T, error)) (T, error) {
	attempt := func() (T, error) {
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		v, err := op(opCtx)
		if err != nil && !transient(ctx, err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry[T](ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.backoff)),
		backoff.WithMaxTries(maxStoreAttempts),
	)
	if err == nil {
		return v, nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if ctx.Err() == nil && transient(ctx, err) {
		return v, fmt.Errorf("%w: %w", ErrTryAgain, err)
	}
	return v, err
}

// transient reports whether err is worth the retry. A deadline hit by the
// per-call timeout counts; the caller's own cancellation does not.
func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, models.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
