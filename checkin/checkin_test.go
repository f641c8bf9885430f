package checkin_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"presence-backend/checkin"
	"presence-backend/models"
	"presence-backend/storage/sqlite"
)

const organizer = "org-1"

var secret = []byte("0123456789abcdef0123456789abcdef")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store *sqlite.Store
	svc   *checkin.Service
	clock *clock
}

type option func(*checkin.Config)

func withStoreTimeout(d time.Duration) option {
	return func(c *checkin.Config) { c.StoreTimeout = d }
}

func withRand(r io.Reader) option {
	return func(c *checkin.Config) { c.Rand = r }
}

// newFixture builds a service over a fresh SQLite file. wrap, if non-nil,
// decorates the store the service sees, for fault injection.
func newFixture(t *testing.T, wrap func(checkin.Store) checkin.Store, opts ...option) *fixture {
	t.Helper()

	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "checkin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	signer, err := checkin.NewSigner(secret)
	require.NoError(t, err)

	clk := &clock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	cfg := checkin.Config{
		TokenTTL:     time.Hour,
		AwardPoints:  10,
		StoreTimeout: time.Second,
		RetryBackoff: time.Millisecond,
		Now:          clk.Now,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var s checkin.Store = store
	if wrap != nil {
		s = wrap(store)
	}
	return &fixture{store: store, svc: checkin.New(s, signer, cfg), clock: clk}
}

func (f *fixture) event(t *testing.T, id string, capacity int) {
	t.Helper()
	require.NoError(t, f.store.CreateEvent(context.Background(), &models.Event{
		ID:           id,
		Organizer:    organizer,
		Name:         "Event " + id,
		ScheduledAt:  f.clock.Now(),
		MaxAttendees: capacity,
	}))
}

func (f *fixture) issue(t *testing.T, eventID string) string {
	t.Helper()
	issued, err := f.svc.Issue(context.Background(), eventID, organizer)
	require.NoError(t, err)
	return issued.Token
}

func attendee(i int) string {
	return fmt.Sprintf("attendee-%d", i)
}

// sequenceReader yields fixed nonce material, repeating the first block so
// the second issue collides with the first.
type sequenceReader struct {
	blocks [][]byte
	i      int
}

func (r *sequenceReader) Read(p []byte) (int, error) {
	if r.i >= len(r.blocks) {
		return 0, io.EOF
	}
	n := copy(p, r.blocks[r.i])
	r.i++
	return n, nil
}

func repeatedNonces(blocks ...byte) io.Reader {
	r := &sequenceReader{}
	for _, b := range blocks {
		r.blocks = append(r.blocks, bytes.Repeat([]byte{b}, 16))
	}
	return r
}

// faultyStore injects failures in front of a real store.
type faultyStore struct {
	checkin.Store

	mu           sync.Mutex
	commitCalls  int
	commitFaults int
	lostCommits  int
	awardFails   bool
	blockTokens  bool
}

func (s *faultyStore) CommitRedemption(ctx context.Context, r models.Redemption) (*models.Attendance, error) {
	s.mu.Lock()
	s.commitCalls++
	fault := s.commitFaults > 0
	lost := s.lostCommits > 0
	if fault {
		s.commitFaults--
	}
	if lost {
		s.lostCommits--
	}
	s.mu.Unlock()

	if fault {
		return nil, fmt.Errorf("%w: connection reset", models.ErrUnavailable)
	}
	att, err := s.Store.CommitRedemption(ctx, r)
	if lost && err == nil {
		return nil, fmt.Errorf("%w: response lost", models.ErrUnavailable)
	}
	return att, err
}

func (s *faultyStore) AwardAttendance(ctx context.Context, id string, points int64) (*models.Profile, error) {
	if s.awardFails {
		return nil, fmt.Errorf("%w: disk full", models.ErrUnavailable)
	}
	return s.Store.AwardAttendance(ctx, id, points)
}

func (s *faultyStore) TokenByNonce(ctx context.Context, nonce string) (*models.CheckInToken, error) {
	if s.blockTokens {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Store.TokenByNonce(ctx, nonce)
}
