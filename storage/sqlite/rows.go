package sqlite

import (
	"time"

	"presence-backend/models"
)

type eventRow struct {
	ID               string    `gorm:"column:id;type:text;primaryKey"`
	Organizer        string    `gorm:"column:organizer;type:text;not null;index"`
	Name             string    `gorm:"column:name;type:text;not null"`
	Description      *string   `gorm:"column:description;type:text"`
	Location         *string   `gorm:"column:location;type:text"`
	ScheduledAt      time.Time `gorm:"column:scheduled_at;not null"`
	MaxAttendees     int       `gorm:"column:max_attendees;not null"`
	CurrentAttendees int       `gorm:"column:current_attendees;not null;default:0"`
	IsActive         bool      `gorm:"column:is_active;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

func (eventRow) TableName() string {
	return "events"
}

type tokenRow struct {
	Nonce      string     `gorm:"column:nonce;type:text;primaryKey"`
	EventID    string     `gorm:"column:event_id;type:text;not null;index"`
	Organizer  string     `gorm:"column:organizer;type:text;not null"`
	IssuedAt   time.Time  `gorm:"column:issued_at;not null"`
	Signature  string     `gorm:"column:signature;type:text;not null"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null"`
	Used       bool       `gorm:"column:used;not null;default:false"`
	RedeemedBy *string    `gorm:"column:redeemed_by;type:text"`
	UsedAt     *time.Time `gorm:"column:used_at"`
}

func (tokenRow) TableName() string {
	return "checkin_tokens"
}

type attendanceRow struct {
	ID          string    `gorm:"column:id;type:text;primaryKey"`
	EventID     string    `gorm:"column:event_id;type:text;not null;uniqueIndex:idx_attendance_event_attendee"`
	Attendee    string    `gorm:"column:attendee;type:text;not null;uniqueIndex:idx_attendance_event_attendee;index"`
	TokenNonce  string    `gorm:"column:token_nonce;type:text;not null;uniqueIndex"`
	CheckedInAt time.Time `gorm:"column:checked_in_at;not null"`
	ProofRef    *string   `gorm:"column:proof_ref;type:text"`
	BadgeRef    *string   `gorm:"column:badge_ref;type:text"`
	Awarded     bool      `gorm:"column:awarded;not null;default:false;index"`
}

func (attendanceRow) TableName() string {
	return "attendances"
}

type profileRow struct {
	Attendee    string    `gorm:"column:attendee;type:text;primaryKey"`
	BadgeCount  int       `gorm:"column:badge_count;not null;default:0"`
	Score       int64     `gorm:"column:score;not null;default:0;index"`
	DisplayName *string   `gorm:"column:display_name;type:text"`
	Bio         *string   `gorm:"column:bio;type:text"`
	AvatarURL   *string   `gorm:"column:avatar_url;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (profileRow) TableName() string {
	return "profiles"
}

func (r eventRow) model() *models.Event {
	return &models.Event{
		ID:               r.ID,
		Organizer:        r.Organizer,
		Name:             r.Name,
		Description:      r.Description,
		Location:         r.Location,
		ScheduledAt:      r.ScheduledAt.UTC(),
		MaxAttendees:     r.MaxAttendees,
		CurrentAttendees: r.CurrentAttendees,
		IsActive:         r.IsActive,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func (r tokenRow) model() *models.CheckInToken {
	return &models.CheckInToken{
		Nonce:      r.Nonce,
		EventID:    r.EventID,
		Organizer:  r.Organizer,
		IssuedAt:   r.IssuedAt.UTC(),
		Signature:  r.Signature,
		ExpiresAt:  r.ExpiresAt.UTC(),
		Used:       r.Used,
		RedeemedBy: r.RedeemedBy,
		UsedAt:     r.UsedAt,
	}
}

func (r attendanceRow) model() *models.Attendance {
	return &models.Attendance{
		ID:          r.ID,
		EventID:     r.EventID,
		AttendeeID:  r.Attendee,
		TokenNonce:  r.TokenNonce,
		CheckedInAt: r.CheckedInAt.UTC(),
		ProofRef:    r.ProofRef,
		BadgeRef:    r.BadgeRef,
		Awarded:     r.Awarded,
	}
}

func (r profileRow) model() *models.Profile {
	return &models.Profile{
		AttendeeID:  r.Attendee,
		BadgeCount:  r.BadgeCount,
		Score:       r.Score,
		DisplayName: r.DisplayName,
		Bio:         r.Bio,
		AvatarURL:   r.AvatarURL,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func attendanceFromModel(a models.Attendance) attendanceRow {
	return attendanceRow{
		ID:          a.ID,
		EventID:     a.EventID,
		Attendee:    a.AttendeeID,
		TokenNonce:  a.TokenNonce,
		CheckedInAt: a.CheckedInAt,
		ProofRef:    a.ProofRef,
		BadgeRef:    a.BadgeRef,
	}
}
