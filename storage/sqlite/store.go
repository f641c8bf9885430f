package sqlite

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"presence-backend/models"
)

func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	now := time.Now().UTC()
	row := eventRow{
		ID:               e.ID,
		Organizer:        e.Organizer,
		Name:             e.Name,
		Description:      e.Description,
		Location:         e.Location,
		ScheduledAt:      e.ScheduledAt.UTC(),
		MaxAttendees:     e.MaxAttendees,
		CurrentAttendees: 0,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.ErrDuplicateEvent
	}
	if err != nil {
		return classify(ctx, err)
	}
	*e = *row.model()
	return nil
}

func (s *Store) EventByID(ctx context.Context, id string) (*models.Event, error) {
	var row eventRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, classify(ctx, err)
	}
	return row.model(), nil
}

// SetEventActive changes the active flag of an event owned by organizer.
// Events owned by someone else read as missing.
func (s *Store) SetEventActive(ctx context.Context, id, organizer string, active bool) (*models.Event, error) {
	res := s.db.WithContext(ctx).Model(&eventRow{}).
		Where("id = ? AND organizer = ?", id, organizer).
		Updates(map[string]any{"is_active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return nil, classify(ctx, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, models.ErrNotFound
	}
	return s.EventByID(ctx, id)
}

// ListEvents pages through events matching f, newest first, and reports
// how many match in total.
func (s *Store) ListEvents(ctx context.Context, f models.EventFilter) ([]models.Event, int, error) {
	matching := func(db *gorm.DB) *gorm.DB {
		if f.Organizer != "" {
			db = db.Where("organizer = ?", f.Organizer)
		}
		if f.Active != nil {
			db = db.Where("is_active = ?", *f.Active)
		}
		return db
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&eventRow{}).Scopes(matching).Count(&total).Error; err != nil {
		return nil, 0, classify(ctx, err)
	}

	var rows []eventRow
	err := s.db.WithContext(ctx).
		Scopes(matching).
		Order("created_at desc").
		Order("id desc").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, classify(ctx, err)
	}

	out := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.model())
	}
	return out, int(total), nil
}

func (s *Store) CreateToken(ctx context.Context, t *models.CheckInToken) error {
	row := tokenRow{
		Nonce:     t.Nonce,
		EventID:   t.EventID,
		Organizer: t.Organizer,
		IssuedAt:  t.IssuedAt,
		Signature: t.Signature,
		ExpiresAt: t.ExpiresAt,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.ErrDuplicateNonce
	}
	return classify(ctx, err)
}

func (s *Store) TokenByNonce(ctx context.Context, nonce string) (*models.CheckInToken, error) {
	var row tokenRow
	if err := s.db.WithContext(ctx).Where("nonce = ?", nonce).Take(&row).Error; err != nil {
		return nil, classify(ctx, err)
	}
	return row.model(), nil
}

func (s *Store) AttendanceFor(ctx context.Context, eventID, attendeeID string) (*models.Attendance, error) {
	var row attendanceRow
	err := s.db.WithContext(ctx).
		Where("event_id = ? AND attendee = ?", eventID, attendeeID).
		Take(&row).Error
	if err != nil {
		return nil, classify(ctx, err)
	}
	return row.model(), nil
}

// AttendancesByEvent lists every check-in at eventID, newest first.
func (s *Store) AttendancesByEvent(ctx context.Context, eventID string) ([]models.Attendance, error) {
	var rows []attendanceRow
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("checked_in_at desc").
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, classify(ctx, err)
	}

	out := make([]models.Attendance, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.model())
	}
	return out, nil
}

func (s *Store) CommitRedemption(ctx context.Context, r models.Redemption) (*models.Attendance, error) {
	att := r.Attendance
	row := attendanceFromModel(att)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&tokenRow{}).
			Where("nonce = ? AND event_id = ? AND used = ?", r.Nonce, att.EventID, false).
			Updates(map[string]any{
				"used":        true,
				"redeemed_by": att.AttendeeID,
				"used_at":     att.CheckedInAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tokenFailure(tx, r.Nonce, att.EventID)
		}

		res = tx.Model(&eventRow{}).
			Where("id = ? AND is_active = ? AND current_attendees < max_attendees", att.EventID, true).
			Updates(map[string]any{
				"current_attendees": gorm.Expr("current_attendees + 1"),
				"updated_at":        att.CheckedInAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return eventFailure(tx, att.EventID, att.AttendeeID)
		}

		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrAlreadyCheckedIn
		}
		return nil
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	return row.model(), nil
}

func tokenFailure(tx *gorm.DB, nonce, eventID string) error {
	var row tokenRow
	err := tx.Where("nonce = ?", nonce).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.ErrNotFound
	case err != nil:
		return err
	case row.EventID != eventID:
		return models.ErrNotFound
	}
	return models.ErrTokenUsed
}

// eventFailure explains a refused counter bump. An attendee who already
// holds a row at a full event is told so rather than that the event is full.
func eventFailure(tx *gorm.DB, eventID, attendeeID string) error {
	var row eventRow
	err := tx.Where("id = ?", eventID).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.ErrEventNotFound
	case err != nil:
		return err
	case !row.IsActive:
		return models.ErrEventClosed
	}

	var held int64
	err = tx.Model(&attendanceRow{}).
		Where("event_id = ? AND attendee = ?", eventID, attendeeID).
		Count(&held).Error
	if err != nil {
		return err
	}
	if held > 0 {
		return models.ErrAlreadyCheckedIn
	}
	return models.ErrEventFull
}

func (s *Store) AwardAttendance(ctx context.Context, attendanceID string, points int64) (*models.Profile, error) {
	var profile profileRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var att attendanceRow
		if err := tx.Where("id = ?", attendanceID).Take(&att).Error; err != nil {
			return err
		}

		res := tx.Model(&attendanceRow{}).
			Where("id = ? AND awarded = ?", attendanceID, false).
			Update("awarded", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrAlreadyAwarded
		}

		now := time.Now().UTC()
		seed := profileRow{Attendee: att.Attendee, CreatedAt: now, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}
		err := tx.Model(&profileRow{}).
			Where("attendee = ?", att.Attendee).
			Updates(map[string]any{
				"badge_count": gorm.Expr("badge_count + 1"),
				"score":       gorm.Expr("score + ?", points),
				"updated_at":  now,
			}).Error
		if err != nil {
			return err
		}
		return tx.Where("attendee = ?", att.Attendee).Take(&profile).Error
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	return profile.model(), nil
}

func (s *Store) ProfileByAttendee(ctx context.Context, attendeeID string) (*models.Profile, error) {
	var row profileRow
	if err := s.db.WithContext(ctx).Where("attendee = ?", attendeeID).Take(&row).Error; err != nil {
		return nil, classify(ctx, err)
	}
	return row.model(), nil
}

// UpdateProfile upserts the display fields only; badge count and score are
// never written here.
func (s *Store) UpdateProfile(ctx context.Context, attendeeID string, u models.ProfileUpdate) (*models.Profile, error) {
	now := time.Now().UTC()
	updates := map[string]any{"updated_at": now}
	if u.DisplayName != nil {
		updates["display_name"] = *u.DisplayName
	}
	if u.Bio != nil {
		updates["bio"] = *u.Bio
	}
	if u.AvatarURL != nil {
		updates["avatar_url"] = *u.AvatarURL
	}

	var row profileRow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := profileRow{Attendee: attendeeID, CreatedAt: now, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}
		if err := tx.Model(&profileRow{}).Where("attendee = ?", attendeeID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("attendee = ?", attendeeID).Take(&row).Error
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	return row.model(), nil
}

// AttendancesByAttendee lists the events attendeeID checked in to, newest
// check-in first.
func (s *Store) AttendancesByAttendee(ctx context.Context, attendeeID string) ([]models.AttendedEvent, error) {
	var rows []struct {
		EventID     string
		Name        string
		ScheduledAt time.Time
		Location    *string
		CheckedInAt time.Time
		BadgeRef    *string
	}
	err := s.db.WithContext(ctx).
		Table("attendances a").
		Select("a.event_id, e.name, e.scheduled_at, e.location, a.checked_in_at, a.badge_ref").
		Joins("JOIN events e ON e.id = a.event_id").
		Where("a.attendee = ?", attendeeID).
		Order("a.checked_in_at desc").
		Scan(&rows).Error
	if err != nil {
		return nil, classify(ctx, err)
	}

	out := make([]models.AttendedEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.AttendedEvent{
			EventID:     r.EventID,
			EventName:   r.Name,
			EventDate:   r.ScheduledAt.UTC(),
			Location:    r.Location,
			CheckedInAt: r.CheckedInAt.UTC(),
			BadgeRef:    r.BadgeRef,
		})
	}
	return out, nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	var rows []profileRow
	err := s.db.WithContext(ctx).
		Order("score desc").
		Order("badge_count desc").
		Order("attendee asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, classify(ctx, err)
	}

	out := make([]models.LeaderboardEntry, 0, len(rows))
	for i, r := range rows {
		out = append(out, models.LeaderboardEntry{Rank: i + 1, Profile: *r.model()})
	}
	return out, nil
}

func (s *Store) UnawardedAttendances(ctx context.Context, limit int) ([]models.Attendance, error) {
	var rows []attendanceRow
	err := s.db.WithContext(ctx).
		Where("awarded = ?", false).
		Order("checked_in_at asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, classify(ctx, err)
	}

	out := make([]models.Attendance, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.model())
	}
	return out, nil
}
