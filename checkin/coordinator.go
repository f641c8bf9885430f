package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"presence-backend/models"
)

// Proof carries the optional external references recorded with an attendance.
type Proof struct {
	// Ref is an external proof such as a transaction hash or signature.
	Ref string
	// BadgeRef points at the minted badge or its metadata.
	BadgeRef string
}

// Coordinator turns a valid token into exactly one attendance.
type Coordinator struct {
	validator *Validator
	ledger    *Ledger
	store     Store
	calls     caller
	ttl       time.Duration
	points    int64
	now       func() time.Time
	newID     func() string
	log       *slog.Logger
}

// Redeem validates the token, pre-checks the event and the attendee, then
// commits token burn, attendance insert and counter increment atomically.
// The pre-checks only sharpen the rejection reported on the common path;
// the commit re-checks every condition. Once committed the attendance
// stands, and the reputation award runs even if ctx is cancelled.
func (c *Coordinator) Redeem(ctx context.Context, encoded, attendeeID string, proof Proof) (*models.Attendance, error) {
	ctx, span := tracer.Start(ctx, "checkin.Redeem")
	defer span.End()

	if !validIdentity(attendeeID) {
		return nil, fmt.Errorf("%w: attendee id must be 1..%d bytes", ErrInvalidInput, MaxFieldLen)
	}

	att, err := c.redeem(ctx, encoded, attendeeID, proof)
	if err != nil {
		if reason, ok := RejectionReason(err); ok {
			span.SetAttributes(attribute.String("checkin.rejection", string(reason)))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "redeem failed")
		}
		return nil, err
	}

	if _, err := c.ledger.Award(context.WithoutCancel(ctx), *att, c.points); err != nil {
		c.log.Warn("reputation award deferred to reconciliation",
			slog.String("attendance_id", att.ID),
			slog.String("error", err.Error()),
		)
	}
	return att, nil
}

func (c *Coordinator) redeem(ctx context.Context, encoded, attendeeID string, proof Proof) (*models.Attendance, error) {
	claims, err := c.validator.Validate(ctx, encoded, c.ttl)
	if err != nil {
		return nil, err
	}

	event, err := call(ctx, c.calls, func(ctx context.Context) (*models.Event, error) {
		return c.store.EventByID(ctx, claims.EventID)
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, reject(ReasonEventNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if !event.IsActive {
		return nil, reject(ReasonEventClosed)
	}

	_, err = c.Attendance(ctx, claims.EventID, attendeeID)
	switch {
	case err == nil:
		return nil, reject(ReasonAlreadyCheckedIn)
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	if !event.HasCapacity() {
		return nil, reject(ReasonEventFull)
	}

	att := models.Attendance{
		ID:          c.newID(),
		EventID:     claims.EventID,
		AttendeeID:  attendeeID,
		TokenNonce:  claims.Nonce,
		CheckedInAt: c.now().UTC(),
		ProofRef:    optional(proof.Ref),
		BadgeRef:    optional(proof.BadgeRef),
	}

	attempts := 0
	recorded, err := call(ctx, c.calls, func(ctx context.Context) (*models.Attendance, error) {
		attempts++
		return c.store.CommitRedemption(ctx, models.Redemption{Nonce: claims.Nonce, Attendance: att})
	})
	if err != nil && attempts > 1 && errors.Is(err, models.ErrTokenUsed) {
		// The first attempt may have committed before its response was lost.
		if prior, ok := c.committedEarlier(ctx, att); ok {
			recorded, err = prior, nil
		}
	}
	if err != nil {
		return nil, commitError(err)
	}

	c.log.Info("attendance recorded",
		slog.String("event_id", recorded.EventID),
		slog.String("attendance_id", recorded.ID),
	)
	return recorded, nil
}

// Attendance looks up the attendance of attendeeID at eventID, returning
// models.ErrNotFound when there is none.
func (c *Coordinator) Attendance(ctx context.Context, eventID, attendeeID string) (*models.Attendance, error) {
	att, err := call(ctx, c.calls, func(ctx context.Context) (*models.Attendance, error) {
		return c.store.AttendanceFor(ctx, eventID, attendeeID)
	})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load attendance: %w", err)
	}
	return att, err
}

func (c *Coordinator) committedEarlier(ctx context.Context, want models.Attendance) (*models.Attendance, bool) {
	got, err := c.Attendance(ctx, want.EventID, want.AttendeeID)
	if err != nil || got.TokenNonce != want.TokenNonce {
		return nil, false
	}
	return got, true
}

func commitError(err error) error {
	switch {
	case errors.Is(err, models.ErrTokenUsed):
		return reject(ReasonAlreadyUsed)
	case errors.Is(err, models.ErrNotFound):
		return reject(ReasonUnknownToken)
	case errors.Is(err, models.ErrEventNotFound):
		return reject(ReasonEventNotFound)
	case errors.Is(err, models.ErrEventClosed):
		return reject(ReasonEventClosed)
	case errors.Is(err, models.ErrAlreadyCheckedIn):
		return reject(ReasonAlreadyCheckedIn)
	case errors.Is(err, models.ErrEventFull):
		return reject(ReasonEventFull)
	}
	return fmt.Errorf("commit redemption: %w", err)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
