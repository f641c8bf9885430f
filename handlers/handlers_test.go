package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence-backend/checkin"
	"presence-backend/contracts"
	"presence-backend/models"
	"presence-backend/storage/sqlite"
)

const (
	organizerAddr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	aliceAddr     = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	bobAddr       = "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"
)

type stubProofs struct {
	err error
}

func (s stubProofs) Verify(context.Context, string) error {
	return s.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T, proofs ProofVerifier) *gin.Engine {
	t.Helper()

	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	signer, err := checkin.NewSigner([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := checkin.New(store, signer, checkin.Config{Logger: log})

	events := NewEventHandler(store, log)
	users := NewUserHandler(store, log)
	checkins := NewCheckinHandler(store, svc, proofs, "https://presence.example", log)

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/events", events.CreateEvent)
	api.GET("/events", events.GetEvents)
	api.GET("/events/:id", events.GetEvent)
	api.PUT("/events/:id/status", events.UpdateEventStatus)
	api.GET("/events/:id/attendances", events.GetAttendances)
	api.GET("/events/:id/attendance/:address", checkins.GetAttendance)
	api.POST("/checkin/tokens", checkins.GenerateQR)
	api.POST("/checkin/redeem", checkins.Redeem)
	api.GET("/profiles/:address", users.GetProfile)
	api.PUT("/profiles/:address", users.UpdateProfile)
	api.GET("/leaderboard", users.GetLeaderboard)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func createEvent(t *testing.T, r http.Handler, id string, capacity int) {
	t.Helper()
	code, body := do(t, r, http.MethodPost, "/api/v1/events", map[string]any{
		"event_id":          id,
		"name":              "Gopher meetup",
		"event_date":        "2026-05-01T18:00:00Z",
		"max_attendees":     capacity,
		"organizer_address": strings.ToLower(organizerAddr),
	})
	require.Equal(t, http.StatusCreated, code, body)
}

func generateQR(t *testing.T, r http.Handler, eventID string) string {
	t.Helper()
	code, body := do(t, r, http.MethodPost, "/api/v1/checkin/tokens", map[string]any{
		"event_id":          eventID,
		"organizer_address": organizerAddr,
	})
	require.Equal(t, http.StatusOK, code, body)
	return body["qr_data"].(string)
}

func TestCreateAndGetEvent(t *testing.T) {
	r := setupRouter(t, nil)
	createEvent(t, r, "ev-1", 0)

	code, body := do(t, r, http.MethodGet, "/api/v1/events/ev-1", nil)
	require.Equal(t, http.StatusOK, code)
	event := body["event"].(map[string]any)
	assert.Equal(t, organizerAddr, event["organizer_address"])
	assert.Equal(t, float64(100), event["max_attendees"])
	assert.Equal(t, true, event["is_active"])

	code, _ = do(t, r, http.MethodGet, "/api/v1/events/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateEventValidation(t *testing.T) {
	r := setupRouter(t, nil)
	createEvent(t, r, "ev-1", 10)

	code, _ := do(t, r, http.MethodPost, "/api/v1/events", map[string]any{
		"event_id": "ev-1", "name": "dup", "event_date": "2026-05-01T18:00:00Z", "organizer_address": organizerAddr,
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, r, http.MethodPost, "/api/v1/events", map[string]any{
		"event_id": "ev-2", "name": "bad", "event_date": "2026-05-01T18:00:00Z", "organizer_address": "not-a-wallet",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodPost, "/api/v1/events", map[string]any{"event_id": "ev-3"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGenerateQR(t *testing.T) {
	r := setupRouter(t, nil)
	createEvent(t, r, "ev-1", 10)

	code, body := do(t, r, http.MethodPost, "/api/v1/checkin/tokens", map[string]any{
		"event_id": "ev-1", "organizer_address": organizerAddr,
	})
	require.Equal(t, http.StatusOK, code)
	qr := body["qr_data"].(string)
	assert.NotEmpty(t, qr)
	assert.Equal(t, "https://presence.example/scan?data="+url.QueryEscape(qr), body["qr_url"])
	assert.NotEmpty(t, body["expires_at"])
}

func TestGenerateQRRequiresOrganizer(t *testing.T) {
	r := setupRouter(t, nil)
	createEvent(t, r, "ev-1", 10)

	code, body := do(t, r, http.MethodPost, "/api/v1/checkin/tokens", map[string]any{
		"event_id": "ev-1", "organizer_address": aliceAddr,
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Event not found or unauthorized", body["message"])

	code, _ = do(t, r, http.MethodPost, "/api/v1/checkin/tokens", map[string]any{
		"event_id": "nope", "organizer_address": organizerAddr,
	})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRedeemFlow(t *testing.T) {
	r := setupRouter(t, nil)
	createEvent(t, r, "ev-1", 10)
	qr := generateQR(t, r, "ev-1")

	code, body := do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": qr, "attendee_address": strings.ToLower(aliceAddr), "badge_ref": "ipfs://badge",
	})
	require.Equal(t, http.StatusOK, code, body)
	att := body["attendance"].(map[string]any)
	assert.Equal(t, aliceAddr, att["attendee_address"])
	profile := body["profile"].(map[string]any)
	assert.Equal(t, float64(1), profile["total_badges"])
	assert.Equal(t, float64(10), profile["reputation_score"])

	code, body = do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": qr, "attendee_address": bobAddr,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_used", body["code"])

	code, body = do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": generateQR(t, r, "ev-1"), "attendee_address": aliceAddr,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_checked_in", body["code"])

	code, body = do(t, r, http.MethodGet, "/api/v1/events/ev-1/attendance/"+aliceAddr, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ev-1", body["attendance"].(map[string]any)["event_id"])

	code, _ = do(t, r, http.MethodGet, "/api/v1/events/ev-1/attendance/"+bobAddr, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRedeemRejections(t *testing.T) {
	r := setupRouter(t, nil)
	createEvent(t, r, "ev-1", 1)

	code, body := do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": "garbage", "attendee_address": aliceAddr,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "malformed_token", body["code"])

	code, _ = do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": generateQR(t, r, "ev-1"), "attendee_address": "0x123",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": generateQR(t, r, "ev-1"), "attendee_address": aliceAddr,
	})
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": generateQR(t, r, "ev-1"), "attendee_address": bobAddr,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "event_full", body["code"])
}

func TestRedeemClosedEvent(t *testing.T) {
	r := setupRouter(t, nil)
	createEvent(t, r, "ev-1", 10)
	qr := generateQR(t, r, "ev-1")

	code, _ := do(t, r, http.MethodPut, "/api/v1/events/ev-1/status", map[string]any{
		"organizer_address": aliceAddr, "is_active": false,
	})
	assert.Equal(t, http.StatusNotFound, code)

	code, body := do(t, r, http.MethodPut, "/api/v1/events/ev-1/status", map[string]any{
		"organizer_address": organizerAddr, "is_active": false,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["event"].(map[string]any)["is_active"])

	code, body = do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": qr, "attendee_address": aliceAddr,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "event_closed", body["code"])
}

func TestRedeemVerifiesProof(t *testing.T) {
	r := setupRouter(t, stubProofs{err: contracts.ErrProofFailed})
	createEvent(t, r, "ev-1", 10)
	qr := generateQR(t, r, "ev-1")

	code, body := do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": qr, "attendee_address": aliceAddr, "proof_ref": "0xdead",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_proof", body["code"])

	down := setupRouter(t, stubProofs{err: errors.New("rpc unavailable")})
	createEvent(t, down, "ev-1", 10)
	code, _ = do(t, down, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": generateQR(t, down, "ev-1"), "attendee_address": aliceAddr, "proof_ref": "0xdead",
	})
	assert.Equal(t, http.StatusBadGateway, code)

	ok := setupRouter(t, stubProofs{})
	createEvent(t, ok, "ev-1", 10)
	code, body = do(t, ok, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": generateQR(t, ok, "ev-1"), "attendee_address": aliceAddr, "proof_ref": "0xbeef",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0xbeef", body["attendance"].(map[string]any)["proof_ref"])
}

func TestProfilesAndLeaderboard(t *testing.T) {
	r := setupRouter(t, nil)
	createEvent(t, r, "ev-1", 10)
	createEvent(t, r, "ev-2", 10)

	for _, ev := range []string{"ev-1", "ev-2"} {
		code, _ := do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
			"qr_data": generateQR(t, r, ev), "attendee_address": aliceAddr,
		})
		require.Equal(t, http.StatusOK, code)
	}
	code, _ := do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
		"qr_data": generateQR(t, r, "ev-1"), "attendee_address": bobAddr,
	})
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, r, http.MethodGet, "/api/v1/profiles/"+strings.ToLower(aliceAddr), nil)
	require.Equal(t, http.StatusOK, code)
	profile := body["profile"].(map[string]any)
	assert.Equal(t, aliceAddr, profile["wallet_address"])
	assert.Equal(t, float64(2), profile["total_badges"])
	assert.Len(t, profile["attended_events"], 2)

	code, body = do(t, r, http.MethodPut, "/api/v1/profiles/"+aliceAddr, map[string]any{
		"display_name": "Alice", "bio": "gopher",
	})
	require.Equal(t, http.StatusOK, code)
	updated := body["profile"].(map[string]any)
	assert.Equal(t, "Alice", updated["display_name"])
	assert.Equal(t, float64(20), updated["reputation_score"])

	code, _ = do(t, r, http.MethodPut, "/api/v1/profiles/"+aliceAddr, map[string]any{
		"display_name": strings.Repeat("x", 51),
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, r, http.MethodGet, "/api/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, code)
	board := body["leaderboard"].([]any)
	require.Len(t, board, 2)
	first := board[0].(map[string]any)
	assert.Equal(t, float64(1), first["rank"])
	assert.Equal(t, aliceAddr, first["wallet_address"])

	code, _ = do(t, r, http.MethodGet, "/api/v1/leaderboard?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetProfileForNewWallet(t *testing.T) {
	r := setupRouter(t, nil)

	code, body := do(t, r, http.MethodGet, "/api/v1/profiles/"+bobAddr, nil)
	require.Equal(t, http.StatusOK, code)
	profile := body["profile"].(map[string]any)
	assert.Equal(t, float64(0), profile["total_badges"])
	assert.Empty(t, profile["attended_events"])

	code, _ = do(t, r, http.MethodGet, "/api/v1/profiles/bob", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetEvents(t *testing.T) {
	r := setupRouter(t, nil)
	createEvent(t, r, "ev-1", 10)
	createEvent(t, r, "ev-2", 10)
	createEvent(t, r, "ev-3", 10)
	code, body := do(t, r, http.MethodPost, "/api/v1/events", map[string]any{
		"event_id": "ev-alice", "name": "Alice's", "event_date": "2026-05-02T18:00:00Z", "organizer_address": aliceAddr,
	})
	require.Equal(t, http.StatusCreated, code, body)

	code, _ = do(t, r, http.MethodPut, "/api/v1/events/ev-2/status", map[string]any{
		"organizer_address": organizerAddr, "is_active": false,
	})
	require.Equal(t, http.StatusOK, code)

	ids := func(body map[string]any) []string {
		var out []string
		for _, e := range body["events"].([]any) {
			out = append(out, e.(map[string]any)["event_id"].(string))
		}
		return out
	}

	code, body = do(t, r, http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(4), body["total"])
	assert.Equal(t, float64(1), body["page"])
	assert.Equal(t, float64(10), body["limit"])
	assert.Len(t, body["events"], 4)

	code, body = do(t, r, http.MethodGet, "/api/v1/events?organizer="+strings.ToLower(organizerAddr), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, []string{"ev-3", "ev-2", "ev-1"}, ids(body))

	code, body = do(t, r, http.MethodGet, "/api/v1/events?organizer="+organizerAddr+"&is_active=true&limit=1&page=2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, []string{"ev-1"}, ids(body))

	code, body = do(t, r, http.MethodGet, "/api/v1/events?is_active=false", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"ev-2"}, ids(body))

	for _, query := range []string{"page=0", "limit=0", "limit=101", "page=x", "is_active=maybe", "organizer=0x123"} {
		code, _ = do(t, r, http.MethodGet, "/api/v1/events?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, code, query)
	}
}

func TestGetAttendances(t *testing.T) {
	r := setupRouter(t, nil)
	createEvent(t, r, "ev-1", 10)
	createEvent(t, r, "ev-2", 10)

	for _, attendee := range []string{aliceAddr, bobAddr} {
		code, body := do(t, r, http.MethodPost, "/api/v1/checkin/redeem", map[string]any{
			"qr_data": generateQR(t, r, "ev-1"), "attendee_address": attendee,
		})
		require.Equal(t, http.StatusOK, code, body)
		time.Sleep(2 * time.Millisecond)
	}

	code, body := do(t, r, http.MethodGet, "/api/v1/events/ev-1/attendances?organizer="+strings.ToLower(organizerAddr), nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(2), body["total"])
	list := body["attendances"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, bobAddr, list[0].(map[string]any)["attendee_address"])
	assert.Equal(t, aliceAddr, list[1].(map[string]any)["attendee_address"])
	assert.NotContains(t, list[0].(map[string]any), "token_nonce")

	code, body = do(t, r, http.MethodGet, "/api/v1/events/ev-2/attendances?organizer="+organizerAddr, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["attendances"])

	code, body = do(t, r, http.MethodGet, "/api/v1/events/ev-1/attendances?organizer="+aliceAddr, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Event not found or unauthorized", body["message"])

	code, _ = do(t, r, http.MethodGet, "/api/v1/events/missing/attendances?organizer="+organizerAddr, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, r, http.MethodGet, "/api/v1/events/ev-1/attendances", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

// ctxEvents records the context each lookup receives.
type ctxEvents struct {
	EventStore
	seen context.Context
}

func (s *ctxEvents) EventByID(ctx context.Context, _ string) (*models.Event, error) {
	s.seen = ctx
	return nil, ctx.Err()
}

func TestHandlersUseRequestContext(t *testing.T) {
	events := &ctxEvents{}
	h := NewEventHandler(events, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := gin.New()
	r.GET("/events/:id", h.GetEvent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/events/ev-1", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.NotNil(t, events.seen)
	assert.ErrorIs(t, events.seen.Err(), context.Canceled)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
