package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"presence-backend/checkin"
	"presence-backend/contracts"
	"presence-backend/models"
)

// ProofVerifier checks an external proof reference before redemption.
type ProofVerifier interface {
	Verify(ctx context.Context, proofRef string) error
}

type CheckinHandler struct {
	events EventStore
	svc    *checkin.Service
	proofs ProofVerifier
	appURL string
	log    *slog.Logger
}

// NewCheckinHandler wires the check-in endpoints. proofs may be nil, in which
// case proof references are recorded without verification.
func NewCheckinHandler(events EventStore, svc *checkin.Service, proofs ProofVerifier, appURL string, log *slog.Logger) *CheckinHandler {
	return &CheckinHandler{
		events: events,
		svc:    svc,
		proofs: proofs,
		appURL: appURL,
		log:    log,
	}
}

// GenerateQR issues a check-in token for an event the caller organizes.
func (h *CheckinHandler) GenerateQR(c *gin.Context) {
	var req models.GenerateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	organizer, err := contracts.NormalizeAddress(req.OrganizerAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid organizer address"})
		return
	}

	event, err := h.events.EventByID(c.Request.Context(), req.EventID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && event.Organizer != organizer) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Event not found or unauthorized"})
		return
	}
	if err != nil {
		h.log.Error("failed to load event", slog.String("event_id", req.EventID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Database error"})
		return
	}

	issued, err := h.svc.Issue(c.Request.Context(), event.ID, organizer)
	if err != nil {
		h.fail(c, "failed to generate QR code", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"qr_data":    issued.Token,
		"qr_url":     h.appURL + "/scan?data=" + url.QueryEscape(issued.Token),
		"expires_at": issued.ExpiresAt.Format(time.RFC3339),
	})
}

// Redeem checks an attendee in with a scanned token.
func (h *CheckinHandler) Redeem(c *gin.Context) {
	var req models.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	attendee, err := contracts.NormalizeAddress(req.AttendeeAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid attendee address"})
		return
	}

	if req.ProofRef != "" && h.proofs != nil {
		if err := h.proofs.Verify(c.Request.Context(), req.ProofRef); err != nil {
			if errors.Is(err, contracts.ErrInvalidProof) || errors.Is(err, contracts.ErrProofFailed) {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "code": "invalid_proof", "message": err.Error()})
				return
			}
			h.log.Error("failed to verify proof", slog.String("error", err.Error()))
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Unable to verify proof"})
			return
		}
	}

	att, err := h.svc.Redeem(c.Request.Context(), req.QRData, attendee, checkin.Proof{Ref: req.ProofRef, BadgeRef: req.BadgeRef})
	if err != nil {
		h.fail(c, "failed to redeem check-in token", err)
		return
	}

	resp := gin.H{
		"success":    true,
		"message":    "Successfully checked in to event",
		"attendance": att,
	}
	if profile, err := h.svc.Ledger.Profile(c.Request.Context(), attendee); err == nil {
		resp["profile"] = profile
	}
	c.JSON(http.StatusOK, resp)
}

// GetAttendance reports whether an attendee checked in to an event.
func (h *CheckinHandler) GetAttendance(c *gin.Context) {
	attendee, err := contracts.NormalizeAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid attendee address"})
		return
	}

	att, err := h.svc.Attendance(c.Request.Context(), c.Param("id"), attendee)
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Attendance not found"})
		return
	}
	if err != nil {
		h.fail(c, "failed to load attendance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "attendance": att})
}

var rejectionStatus = map[checkin.Reason]int{
	checkin.ReasonMalformedToken:   http.StatusBadRequest,
	checkin.ReasonBadSignature:     http.StatusBadRequest,
	checkin.ReasonExpired:          http.StatusBadRequest,
	checkin.ReasonUnknownToken:     http.StatusBadRequest,
	checkin.ReasonAlreadyUsed:      http.StatusConflict,
	checkin.ReasonEventNotFound:    http.StatusNotFound,
	checkin.ReasonEventClosed:      http.StatusConflict,
	checkin.ReasonAlreadyCheckedIn: http.StatusConflict,
	checkin.ReasonEventFull:        http.StatusConflict,
}

var rejectionMessage = map[checkin.Reason]string{
	checkin.ReasonMalformedToken:   "Invalid QR code format",
	checkin.ReasonBadSignature:     "Invalid QR code signature",
	checkin.ReasonExpired:          "QR code has expired",
	checkin.ReasonUnknownToken:     "Invalid or unrecognized QR token",
	checkin.ReasonAlreadyUsed:      "QR code has already been used",
	checkin.ReasonEventNotFound:    "Event not found",
	checkin.ReasonEventClosed:      "Event is not active",
	checkin.ReasonAlreadyCheckedIn: "You have already checked in to this event",
	checkin.ReasonEventFull:        "Event has reached maximum capacity",
}

func (h *CheckinHandler) fail(c *gin.Context, msg string, err error) {
	if reason, ok := checkin.RejectionReason(err); ok {
		c.JSON(rejectionStatus[reason], gin.H{
			"success": false,
			"code":    reason,
			"message": rejectionMessage[reason],
		})
		return
	}

	switch {
	case errors.Is(err, checkin.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, checkin.ErrTryAgain):
		h.log.Warn(msg, slog.String("error", err.Error()))
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "code": "try_again", "message": "Service temporarily unavailable, please try again"})
	default:
		h.log.Error(msg, slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
	}
}
