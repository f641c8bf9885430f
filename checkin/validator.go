package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"presence-backend/models"
)

// Validator decides whether a token may be redeemed. It never writes.
type Validator struct {
	store  Store
	signer *Signer
	calls  caller
	now    func() time.Time
}

// Validate checks, in order: structure, signature, age against window, and
// the persisted redemption state of the nonce. No claim is trusted before
// the signature verifies. A token exactly window old is still valid.
func (v *Validator) Validate(ctx context.Context, encoded string, window time.Duration) (Claims, error) {
	claims, payload, mac, err := decodeToken(encoded)
	if err != nil {
		return Claims{}, reject(ReasonMalformedToken)
	}
	if !v.signer.Verify(payload, mac) {
		return Claims{}, reject(ReasonBadSignature)
	}
	if v.now().Sub(claims.IssuedAt) > window {
		return Claims{}, reject(ReasonExpired)
	}

	tok, err := call(ctx, v.calls, func(ctx context.Context) (*models.CheckInToken, error) {
		return v.store.TokenByNonce(ctx, claims.Nonce)
	})
	if errors.Is(err, models.ErrNotFound) {
		return Claims{}, reject(ReasonUnknownToken)
	}
	if err != nil {
		return Claims{}, fmt.Errorf("load token: %w", err)
	}
	if tok.EventID != claims.EventID {
		return Claims{}, reject(ReasonUnknownToken)
	}
	if tok.Used {
		return Claims{}, reject(ReasonAlreadyUsed)
	}

	return claims, nil
}
