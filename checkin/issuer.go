package checkin

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"presence-backend/models"
)

// IssuedToken is what the organizer hands to attendees, typically as a QR code.
type IssuedToken struct {
	Token     string
	Nonce     string
	ExpiresAt time.Time
}

// Issuer mints signed tokens and registers their nonces as unused
// redemption rights. It does not authorize the organizer; callers check
// event ownership first.
type Issuer struct {
	store  Store
	signer *Signer
	calls  caller
	ttl    time.Duration
	now    func() time.Time
	rand   io.Reader
	log    *slog.Logger
}

const issueAttempts = 2

func (i *Issuer) Issue(ctx context.Context, eventID, organizerID string) (IssuedToken, error) {
	ctx, span := tracer.Start(ctx, "checkin.Issue", trace.WithAttributes(
		attribute.String("event.id", eventID),
	))
	defer span.End()

	if !validIdentity(eventID) || !validIdentity(organizerID) {
		return IssuedToken{}, fmt.Errorf("%w: event and organizer ids must be 1..%d bytes", ErrInvalidInput, MaxFieldLen)
	}

	for attempt := 1; attempt <= issueAttempts; attempt++ {
		nonce, err := i.newNonce()
		if err != nil {
			return IssuedToken{}, err
		}

		claims := Claims{
			EventID:     eventID,
			OrganizerID: organizerID,
			IssuedAt:    time.UnixMilli(i.now().UnixMilli()).UTC(),
			Nonce:       nonce,
		}
		mac := i.signer.Sign(claims.payload())
		row := &models.CheckInToken{
			Nonce:     nonce,
			EventID:   eventID,
			Organizer: organizerID,
			IssuedAt:  claims.IssuedAt,
			Signature: hex.EncodeToString(mac),
			ExpiresAt: claims.IssuedAt.Add(i.ttl),
		}

		_, err = call(ctx, i.calls, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, i.store.CreateToken(ctx, row)
		})
		if errors.Is(err, models.ErrDuplicateNonce) {
			i.log.Warn("nonce collision, regenerating", slog.String("event_id", eventID), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			span.RecordError(err)
			return IssuedToken{}, fmt.Errorf("store token: %w", err)
		}

		i.log.Info("check-in token issued",
			slog.String("event_id", eventID),
			slog.Time("expires_at", row.ExpiresAt),
		)
		return IssuedToken{
			Token:     encodeToken(claims, mac),
			Nonce:     nonce,
			ExpiresAt: row.ExpiresAt,
		}, nil
	}

	return IssuedToken{}, fmt.Errorf("store token: %w", models.ErrDuplicateNonce)
}

func (i *Issuer) newNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := io.ReadFull(i.rand, b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
