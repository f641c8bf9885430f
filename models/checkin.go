package models

import (
	"time"
)

// CheckInToken is the persisted redemption right behind a signed QR token.
// The nonce is the unique key; Used flips to true exactly once.
type CheckInToken struct {
	Nonce      string     `json:"nonce" db:"nonce"`
	EventID    string     `json:"event_id" db:"event_id"`
	Organizer  string     `json:"organizer_address" db:"organizer"`
	IssuedAt   time.Time  `json:"issued_at" db:"issued_at"`
	Signature  string     `json:"-" db:"signature"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	Used       bool       `json:"is_used" db:"used"`
	RedeemedBy *string    `json:"used_by,omitempty" db:"redeemed_by"`
	UsedAt     *time.Time `json:"used_at,omitempty" db:"used_at"`
}

// Redemption is everything the atomic commit needs: the token to burn, the
// attendance row to insert and the event counter to bump.
type Redemption struct {
	Nonce      string
	Attendance Attendance
}

type GenerateQRRequest struct {
	EventID          string `json:"event_id" binding:"required"`
	OrganizerAddress string `json:"organizer_address" binding:"required"`
}

type RedeemRequest struct {
	QRData          string `json:"qr_data" binding:"required"`
	AttendeeAddress string `json:"attendee_address" binding:"required"`
	ProofRef        string `json:"proof_ref"`
	BadgeRef        string `json:"badge_ref"`
}
