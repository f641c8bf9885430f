package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"presence-backend/models"
)

// Ledger keeps per-attendee reputation. Each attendance is awarded at most
// once: one badge plus a fixed number of points.
type Ledger struct {
	store Store
	calls caller
	log   *slog.Logger
}

// Award credits att to its attendee and returns the updated profile. If att
// was already credited the current profile is returned unchanged.
func (l *Ledger) Award(ctx context.Context, att models.Attendance, points int64) (*models.Profile, error) {
	ctx, span := tracer.Start(ctx, "checkin.Award", trace.WithAttributes(
		attribute.String("attendance.id", att.ID),
	))
	defer span.End()

	profile, err := call(ctx, l.calls, func(ctx context.Context) (*models.Profile, error) {
		return l.store.AwardAttendance(ctx, att.ID, points)
	})
	if errors.Is(err, models.ErrAlreadyAwarded) {
		return l.Profile(ctx, att.AttendeeID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("award attendance: %w", err)
	}
	return profile, nil
}

// Profile returns the reputation of attendeeID, or models.ErrNotFound if it
// has never been awarded anything.
func (l *Ledger) Profile(ctx context.Context, attendeeID string) (*models.Profile, error) {
	p, err := call(ctx, l.calls, func(ctx context.Context) (*models.Profile, error) {
		return l.store.ProfileByAttendee(ctx, attendeeID)
	})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return p, err
}

// Reconcile awards up to batch attendances whose award never landed and
// reports how many it credited. It stops at the first store error.
func (l *Ledger) Reconcile(ctx context.Context, points int64, batch int) (int, error) {
	pending, err := call(ctx, l.calls, func(ctx context.Context) ([]models.Attendance, error) {
		return l.store.UnawardedAttendances(ctx, batch)
	})
	if err != nil {
		return 0, fmt.Errorf("list unawarded: %w", err)
	}

	awarded := 0
	for _, att := range pending {
		_, err := call(ctx, l.calls, func(ctx context.Context) (*models.Profile, error) {
			return l.store.AwardAttendance(ctx, att.ID, points)
		})
		switch {
		case err == nil:
			awarded++
		case errors.Is(err, models.ErrAlreadyAwarded):
		default:
			return awarded, fmt.Errorf("award attendance %s: %w", att.ID, err)
		}
	}

	if awarded > 0 {
		l.log.Info("reconciled reputation awards", slog.Int("awarded", awarded))
	}
	return awarded, nil
}
