package models

import (
	"time"
)

// Attendance records one attendee at one event. There is at most one row per
// (EventID, AttendeeID).
type Attendance struct {
	ID          string    `json:"id" db:"id"`
	EventID     string    `json:"event_id" db:"event_id"`
	AttendeeID  string    `json:"attendee_address" db:"attendee"`
	TokenNonce  string    `json:"-" db:"token_nonce"`
	CheckedInAt time.Time `json:"checked_in_at" db:"checked_in_at"`
	ProofRef    *string   `json:"proof_ref,omitempty" db:"proof_ref"`
	BadgeRef    *string   `json:"badge_ref,omitempty" db:"badge_ref"`
	Awarded     bool      `json:"-" db:"awarded"`
}

// AttendedEvent is an attendance joined with the event it belongs to.
type AttendedEvent struct {
	EventID     string    `json:"event_id"`
	EventName   string    `json:"event_name"`
	EventDate   time.Time `json:"event_date"`
	Location    *string   `json:"location,omitempty"`
	CheckedInAt time.Time `json:"checked_in_at"`
	BadgeRef    *string   `json:"badge_ref,omitempty"`
}
