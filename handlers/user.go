package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"presence-backend/contracts"
	"presence-backend/models"
)

const (
	defaultLeaderboardLimit = 100
	maxLeaderboardLimit     = 200
)

type ProfileStore interface {
	ProfileByAttendee(ctx context.Context, attendeeID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, attendeeID string, u models.ProfileUpdate) (*models.Profile, error)
	AttendancesByAttendee(ctx context.Context, attendeeID string) ([]models.AttendedEvent, error)
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

type UserHandler struct {
	profiles ProfileStore
	log      *slog.Logger
}

func NewUserHandler(profiles ProfileStore, log *slog.Logger) *UserHandler {
	return &UserHandler{
		profiles: profiles,
		log:      log,
	}
}

// GetProfile returns the reputation and attendance history of a wallet. A
// wallet that never checked in gets an empty profile rather than a 404.
func (h *UserHandler) GetProfile(c *gin.Context) {
	address, err := contracts.NormalizeAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid wallet address"})
		return
	}

	profile, err := h.profiles.ProfileByAttendee(c.Request.Context(), address)
	if errors.Is(err, models.ErrNotFound) {
		profile, err = &models.Profile{AttendeeID: address}, nil
	}
	if err != nil {
		h.log.Error("failed to load profile", slog.String("address", address), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to load profile"})
		return
	}

	attended, err := h.profiles.AttendancesByAttendee(c.Request.Context(), address)
	if err != nil {
		h.log.Error("failed to load attendances", slog.String("address", address), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to load profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"profile": models.ProfileDetails{Profile: profile, AttendedEvents: attended},
	})
}

// UpdateProfile sets display fields. Badge count and score cannot be written.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	address, err := contracts.NormalizeAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid wallet address"})
		return
	}

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	update := models.ProfileUpdate{
		DisplayName: optional(req.DisplayName),
		Bio:         optional(req.Bio),
		AvatarURL:   optional(req.AvatarURL),
	}
	if update.DisplayName == nil && update.Bio == nil && update.AvatarURL == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No fields to update"})
		return
	}

	profile, err := h.profiles.UpdateProfile(c.Request.Context(), address, update)
	if err != nil {
		h.log.Error("failed to update profile", slog.String("address", address), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "profile": profile})
}

func (h *UserHandler) GetLeaderboard(c *gin.Context) {
	limit := defaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLeaderboardLimit {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	entries, err := h.profiles.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("failed to load leaderboard", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to load leaderboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "leaderboard": entries})
}
