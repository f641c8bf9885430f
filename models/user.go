package models

import (
	"time"
)

// Profile is an attendee's reputation aggregate plus optional display data.
type Profile struct {
	AttendeeID  string    `json:"wallet_address" db:"attendee"`
	BadgeCount  int       `json:"total_badges" db:"badge_count"`
	Score       int64     `json:"reputation_score" db:"score"`
	DisplayName *string   `json:"display_name" db:"display_name"`
	Bio         *string   `json:"bio" db:"bio"`
	AvatarURL   *string   `json:"avatar_url" db:"avatar_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ProfileDetails is a profile with its attendance history, newest first.
type ProfileDetails struct {
	*Profile
	AttendedEvents []AttendedEvent `json:"attended_events"`
}

// LeaderboardEntry is a profile with its 1-based position.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	Profile
}

// ProfileUpdate carries display fields only; nil leaves a field untouched.
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	AvatarURL   *string
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"max=50"`
	Bio         string `json:"bio" binding:"max=500"`
	AvatarURL   string `json:"avatar_url" binding:"omitempty,url"`
}
