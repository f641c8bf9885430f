package models

import (
	"time"
)

// DefaultMaxAttendees is applied when an event is created without a capacity.
const DefaultMaxAttendees = 100

// Event is an organizer's check-in target. CurrentAttendees only moves
// through a committed redemption.
type Event struct {
	ID               string    `json:"event_id" db:"id"`
	Organizer        string    `json:"organizer_address" db:"organizer"`
	Name             string    `json:"name" db:"name"`
	Description      *string   `json:"description,omitempty" db:"description"`
	Location         *string   `json:"location,omitempty" db:"location"`
	ScheduledAt      time.Time `json:"event_date" db:"scheduled_at"`
	MaxAttendees     int       `json:"max_attendees" db:"max_attendees"`
	CurrentAttendees int       `json:"current_attendees" db:"current_attendees"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// HasCapacity reports whether one more attendee fits.
func (e *Event) HasCapacity() bool {
	return e.CurrentAttendees < e.MaxAttendees
}

// EventFilter narrows an event listing. Zero fields match every event.
type EventFilter struct {
	Organizer string
	Active    *bool
	Limit     int
	Offset    int
}

type CreateEventRequest struct {
	EventID          string    `json:"event_id" binding:"required,max=128"`
	Name             string    `json:"name" binding:"required,max=200"`
	Description      string    `json:"description"`
	Location         string    `json:"location"`
	EventDate        time.Time `json:"event_date" binding:"required"`
	MaxAttendees     int       `json:"max_attendees" binding:"omitempty,min=1"`
	OrganizerAddress string    `json:"organizer_address" binding:"required"`
}

type UpdateEventStatusRequest struct {
	OrganizerAddress string `json:"organizer_address" binding:"required"`
	IsActive         bool   `json:"is_active"`
}
