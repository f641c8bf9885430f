package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"presence-backend/contracts"
	"presence-backend/models"
)

type EventStore interface {
	CreateEvent(ctx context.Context, e *models.Event) error
	EventByID(ctx context.Context, id string) (*models.Event, error)
	SetEventActive(ctx context.Context, id, organizer string, active bool) (*models.Event, error)
	ListEvents(ctx context.Context, f models.EventFilter) ([]models.Event, int, error)
	AttendancesByEvent(ctx context.Context, eventID string) ([]models.Attendance, error)
}

const maxEventsPerPage = 100

type EventHandler struct {
	events EventStore
	log    *slog.Logger
}

func NewEventHandler(events EventStore, log *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		log:    log,
	}
}

func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	organizer, err := contracts.NormalizeAddress(req.OrganizerAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid organizer address"})
		return
	}

	event := &models.Event{
		ID:           strings.TrimSpace(req.EventID),
		Organizer:    organizer,
		Name:         req.Name,
		Description:  optional(req.Description),
		Location:     optional(req.Location),
		ScheduledAt:  req.EventDate.UTC(),
		MaxAttendees: req.MaxAttendees,
	}
	if event.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Event ID is required"})
		return
	}
	if event.MaxAttendees == 0 {
		event.MaxAttendees = models.DefaultMaxAttendees
	}

	err = h.events.CreateEvent(c.Request.Context(), event)
	if errors.Is(err, models.ErrDuplicateEvent) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Event already exists"})
		return
	}
	if err != nil {
		h.log.Error("failed to create event", slog.String("event_id", event.ID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to create event"})
		return
	}

	h.log.Info("event created", slog.String("event_id", event.ID), slog.Int("max_attendees", event.MaxAttendees))
	c.JSON(http.StatusCreated, gin.H{"success": true, "event": event})
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	event, err := h.events.EventByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Event not found"})
		return
	}
	if err != nil {
		h.log.Error("failed to load event", slog.String("event_id", c.Param("id")), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "event": event})
}

// GetEvents pages through events, optionally filtered by organizer and
// active flag.
func (h *EventHandler) GetEvents(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid page"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > maxEventsPerPage {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "limit must be between 1 and 100"})
		return
	}

	filter := models.EventFilter{Limit: limit, Offset: (page - 1) * limit}
	if raw := c.Query("organizer"); raw != "" {
		organizer, err := contracts.NormalizeAddress(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid organizer address"})
			return
		}
		filter.Organizer = organizer
	}
	if raw := c.Query("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid is_active filter"})
			return
		}
		filter.Active = &active
	}

	events, total, err := h.events.ListEvents(c.Request.Context(), filter)
	if err != nil {
		h.log.Error("failed to list events", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"events":  events,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// GetAttendances lists an event's check-ins, newest first. Only the event's
// organizer may read them.
func (h *EventHandler) GetAttendances(c *gin.Context) {
	organizer, err := contracts.NormalizeAddress(c.Query("organizer"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid organizer address"})
		return
	}

	ctx := c.Request.Context()
	event, err := h.events.EventByID(ctx, c.Param("id"))
	if errors.Is(err, models.ErrNotFound) || (err == nil && event.Organizer != organizer) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Event not found or unauthorized"})
		return
	}
	if err != nil {
		h.log.Error("failed to load event", slog.String("event_id", c.Param("id")), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Database error"})
		return
	}

	attendances, err := h.events.AttendancesByEvent(ctx, event.ID)
	if err != nil {
		h.log.Error("failed to list attendances", slog.String("event_id", event.ID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"event_id":    event.ID,
		"attendances": attendances,
		"total":       len(attendances),
	})
}

// UpdateEventStatus opens or closes an event. Only its organizer may do so.
func (h *EventHandler) UpdateEventStatus(c *gin.Context) {
	var req models.UpdateEventStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	organizer, err := contracts.NormalizeAddress(req.OrganizerAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid organizer address"})
		return
	}

	event, err := h.events.SetEventActive(c.Request.Context(), c.Param("id"), organizer, req.IsActive)
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Event not found or unauthorized"})
		return
	}
	if err != nil {
		h.log.Error("failed to update event status", slog.String("event_id", c.Param("id")), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to update event status"})
		return
	}

	h.log.Info("event status updated", slog.String("event_id", event.ID), slog.Bool("is_active", event.IsActive))
	c.JSON(http.StatusOK, gin.H{"success": true, "event": event})
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
