package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"presence-backend/models"
)

const eventColumns = `id, organizer, name, description, location, scheduled_at,
	max_attendees, current_attendees, is_active, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.ID,
		&e.Organizer,
		&e.Name,
		&e.Description,
		&e.Location,
		&e.ScheduledAt,
		&e.MaxAttendees,
		&e.CurrentAttendees,
		&e.IsActive,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (id, organizer, name, description, location, scheduled_at, max_attendees)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + eventColumns

	created, err := scanEvent(s.pool.QueryRow(ctx, query,
		e.ID, e.Organizer, e.Name, e.Description, e.Location, e.ScheduledAt, e.MaxAttendees,
	))
	if isUniqueViolation(err) {
		return models.ErrDuplicateEvent
	}
	if err != nil {
		return classify(ctx, err)
	}
	*e = *created
	return nil
}

func (s *Store) EventByID(ctx context.Context, id string) (*models.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, classify(ctx, err)
	}
	return e, nil
}

// SetEventActive changes the active flag of an event owned by organizer.
// Events owned by someone else read as missing.
func (s *Store) SetEventActive(ctx context.Context, id, organizer string, active bool) (*models.Event, error) {
	query := `
		UPDATE events SET is_active = $1, updated_at = NOW()
		WHERE id = $2 AND organizer = $3
		RETURNING ` + eventColumns

	e, err := scanEvent(s.pool.QueryRow(ctx, query, active, id, organizer))
	if err != nil {
		return nil, classify(ctx, err)
	}
	return e, nil
}

// ListEvents pages through events matching f, newest first, and reports
// how many match in total.
func (s *Store) ListEvents(ctx context.Context, f models.EventFilter) ([]models.Event, int, error) {
	where := ` WHERE TRUE`
	args := []any{}
	if f.Organizer != "" {
		args = append(args, f.Organizer)
		where += ` AND organizer = $` + strconv.Itoa(len(args))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(ctx, err)
	}

	query := `SELECT ` + eventColumns + ` FROM events` + where +
		` ORDER BY created_at DESC, id DESC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, classify(ctx, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Event, error) {
		e, err := scanEvent(row)
		if err != nil {
			return models.Event{}, err
		}
		return *e, nil
	})
	if err != nil {
		return nil, 0, classify(ctx, err)
	}
	return out, total, nil
}

func (s *Store) CreateToken(ctx context.Context, t *models.CheckInToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkin_tokens (nonce, event_id, organizer, issued_at, signature, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.Nonce, t.EventID, t.Organizer, t.IssuedAt, t.Signature, t.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return models.ErrDuplicateNonce
	}
	return classify(ctx, err)
}

func (s *Store) TokenByNonce(ctx context.Context, nonce string) (*models.CheckInToken, error) {
	var t models.CheckInToken
	err := s.pool.QueryRow(ctx, `
		SELECT nonce, event_id, organizer, issued_at, signature, expires_at, used, redeemed_by, used_at
		FROM checkin_tokens WHERE nonce = $1`, nonce,
	).Scan(&t.Nonce, &t.EventID, &t.Organizer, &t.IssuedAt, &t.Signature, &t.ExpiresAt, &t.Used, &t.RedeemedBy, &t.UsedAt)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return &t, nil
}

const attendanceColumns = `id, event_id, attendee, token_nonce, checked_in_at, proof_ref, badge_ref, awarded`

func scanAttendance(row pgx.Row) (*models.Attendance, error) {
	var a models.Attendance
	err := row.Scan(&a.ID, &a.EventID, &a.AttendeeID, &a.TokenNonce, &a.CheckedInAt, &a.ProofRef, &a.BadgeRef, &a.Awarded)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) AttendanceFor(ctx context.Context, eventID, attendeeID string) (*models.Attendance, error) {
	a, err := scanAttendance(s.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendances WHERE event_id = $1 AND attendee = $2`,
		eventID, attendeeID,
	))
	if err != nil {
		return nil, classify(ctx, err)
	}
	return a, nil
}

// AttendancesByEvent lists every check-in at eventID, newest first.
func (s *Store) AttendancesByEvent(ctx context.Context, eventID string) ([]models.Attendance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendances
		WHERE event_id = $1
		ORDER BY checked_in_at DESC, id`, eventID)
	if err != nil {
		return nil, classify(ctx, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Attendance, error) {
		a, err := scanAttendance(row)
		if err != nil {
			return models.Attendance{}, err
		}
		return *a, nil
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	return out, nil
}

// CommitRedemption relies on conditional updates rather than row locks read
// ahead of time: each statement re-checks its own precondition, and a zero
// row count aborts the transaction.
func (s *Store) CommitRedemption(ctx context.Context, r models.Redemption) (*models.Attendance, error) {
	att := r.Attendance
	var recorded *models.Attendance

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE checkin_tokens SET used = TRUE, redeemed_by = $1, used_at = $2
			WHERE nonce = $3 AND event_id = $4 AND used = FALSE`,
			att.AttendeeID, att.CheckedInAt, r.Nonce, att.EventID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return tokenFailure(ctx, tx, r.Nonce, att.EventID)
		}

		tag, err = tx.Exec(ctx, `
			UPDATE events SET current_attendees = current_attendees + 1, updated_at = NOW()
			WHERE id = $1 AND is_active AND current_attendees < max_attendees`,
			att.EventID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return eventFailure(ctx, tx, att.EventID, att.AttendeeID)
		}

		recorded, err = scanAttendance(tx.QueryRow(ctx, `
			INSERT INTO attendances (id, event_id, attendee, token_nonce, checked_in_at, proof_ref, badge_ref)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (event_id, attendee) DO NOTHING
			RETURNING `+attendanceColumns,
			att.ID, att.EventID, att.AttendeeID, att.TokenNonce, att.CheckedInAt, att.ProofRef, att.BadgeRef,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrAlreadyCheckedIn
		}
		return err
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	return recorded, nil
}

func tokenFailure(ctx context.Context, tx pgx.Tx, nonce, eventID string) error {
	var boundTo string
	err := tx.QueryRow(ctx, `SELECT event_id FROM checkin_tokens WHERE nonce = $1`, nonce).Scan(&boundTo)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return models.ErrNotFound
	case err != nil:
		return err
	case boundTo != eventID:
		return models.ErrNotFound
	}
	return models.ErrTokenUsed
}

// eventFailure explains a refused counter bump. An attendee who already
// holds a row at a full event is told so rather than that the event is full.
func eventFailure(ctx context.Context, tx pgx.Tx, eventID, attendeeID string) error {
	var active, held bool
	err := tx.QueryRow(ctx, `
		SELECT e.is_active,
		       EXISTS(SELECT 1 FROM attendances a WHERE a.event_id = e.id AND a.attendee = $2)
		FROM events e WHERE e.id = $1`, eventID, attendeeID,
	).Scan(&active, &held)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return models.ErrEventNotFound
	case err != nil:
		return err
	case !active:
		return models.ErrEventClosed
	case held:
		return models.ErrAlreadyCheckedIn
	}
	return models.ErrEventFull
}

const profileColumns = `attendee, badge_count, score, display_name, bio, avatar_url, created_at, updated_at`

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.AttendeeID, &p.BadgeCount, &p.Score, &p.DisplayName, &p.Bio, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) AwardAttendance(ctx context.Context, attendanceID string, points int64) (*models.Profile, error) {
	var profile *models.Profile

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var attendee string
		err := tx.QueryRow(ctx, `
			UPDATE attendances SET awarded = TRUE
			WHERE id = $1 AND NOT awarded
			RETURNING attendee`, attendanceID,
		).Scan(&attendee)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM attendances WHERE id = $1)`, attendanceID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return models.ErrNotFound
			}
			return models.ErrAlreadyAwarded
		}
		if err != nil {
			return err
		}

		profile, err = scanProfile(tx.QueryRow(ctx, `
			INSERT INTO profiles (attendee, badge_count, score)
			VALUES ($1, 1, $2)
			ON CONFLICT (attendee) DO UPDATE
			SET badge_count = profiles.badge_count + 1,
			    score = profiles.score + EXCLUDED.score,
			    updated_at = NOW()
			RETURNING `+profileColumns, attendee, points,
		))
		return err
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	return profile, nil
}

func (s *Store) ProfileByAttendee(ctx context.Context, attendeeID string) (*models.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE attendee = $1`, attendeeID))
	if err != nil {
		return nil, classify(ctx, err)
	}
	return p, nil
}

// UpdateProfile upserts the display fields only; badge count and score are
// never written here. A nil field keeps its stored value.
func (s *Store) UpdateProfile(ctx context.Context, attendeeID string, u models.ProfileUpdate) (*models.Profile, error) {
	p, err := scanProfile(s.pool.QueryRow(ctx, `
		INSERT INTO profiles (attendee, display_name, bio, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (attendee) DO UPDATE
		SET display_name = COALESCE(EXCLUDED.display_name, profiles.display_name),
		    bio = COALESCE(EXCLUDED.bio, profiles.bio),
		    avatar_url = COALESCE(EXCLUDED.avatar_url, profiles.avatar_url),
		    updated_at = NOW()
		RETURNING `+profileColumns,
		attendeeID, u.DisplayName, u.Bio, u.AvatarURL,
	))
	if err != nil {
		return nil, classify(ctx, err)
	}
	return p, nil
}

// AttendancesByAttendee lists the events attendeeID checked in to, newest
// check-in first.
func (s *Store) AttendancesByAttendee(ctx context.Context, attendeeID string) ([]models.AttendedEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.event_id, e.name, e.scheduled_at, e.location, a.checked_in_at, a.badge_ref
		FROM attendances a
		JOIN events e ON e.id = a.event_id
		WHERE a.attendee = $1
		ORDER BY a.checked_in_at DESC`, attendeeID)
	if err != nil {
		return nil, classify(ctx, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AttendedEvent, error) {
		var ae models.AttendedEvent
		err := row.Scan(&ae.EventID, &ae.EventName, &ae.EventDate, &ae.Location, &ae.CheckedInAt, &ae.BadgeRef)
		return ae, err
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	return out, nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		ORDER BY score DESC, badge_count DESC, attendee
		LIMIT $1`, limit)
	if err != nil {
		return nil, classify(ctx, err)
	}

	rank := 0
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.LeaderboardEntry, error) {
		p, err := scanProfile(row)
		if err != nil {
			return models.LeaderboardEntry{}, err
		}
		rank++
		return models.LeaderboardEntry{Rank: rank, Profile: *p}, nil
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	return out, nil
}

func (s *Store) UnawardedAttendances(ctx context.Context, limit int) ([]models.Attendance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendances
		WHERE NOT awarded
		ORDER BY checked_in_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, classify(ctx, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Attendance, error) {
		a, err := scanAttendance(row)
		if err != nil {
			return models.Attendance{}, err
		}
		return *a, nil
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	return out, nil
}
