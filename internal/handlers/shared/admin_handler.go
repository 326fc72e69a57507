package handlers

import (
	"context"
	"errors"

	"guardshift/internal/services"
	"guardshift/internal/session"
	"guardshift/internal/utils"
	"guardshift/internal/validators"
	"guardshift/pkg/cache"
	"guardshift/pkg/logger"

	"github.com/gin-gonic/gin"
)

// PositionReader looks up the last published position of a candidate.
type PositionReader interface {
	Position(ctx context.Context, personnelID string) (latitude, longitude float64, err error)
}

// AdminHandler stands in for the backend that creates offers and runs the
// expiry sweep, and exposes the monitoring views.
type AdminHandler struct {
	offers    services.OfferService
	tracking  services.TrackingService
	sessions  *session.Manager
	positions PositionReader
	logger    *logger.Logger
}

// NewAdminHandler builds the handler. positions may be nil when Redis is off.
func NewAdminHandler(offers services.OfferService, tracking services.TrackingService, sessions *session.Manager, positions PositionReader, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		offers:    offers,
		tracking:  tracking,
		sessions:  sessions,
		positions: positions,
		logger:    log,
	}
}

func (h *AdminHandler) CreateShift(c *gin.Context) {
	var req validators.CreateShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	shift, err := h.offers.CreateShift(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.CreatedResponse(c, "Shift created successfully", shift)
}

func (h *AdminHandler) CreateOffer(c *gin.Context) {
	var req validators.CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	offer, err := h.offers.CreateOffer(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.CreatedResponse(c, "Offer created successfully", offer)
}

func (h *AdminHandler) GetOffer(c *gin.Context) {
	offer, err := h.offers.GetOffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.SuccessResponse(c, "Offer retrieved successfully", offer)
}

func (h *AdminHandler) CreateGeofence(c *gin.Context) {
	var req validators.CreateGeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	geofence, err := h.offers.CreateGeofence(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.CreatedResponse(c, "Geofence created successfully", geofence)
}

func (h *AdminHandler) CreateAssignment(c *gin.Context) {
	var req validators.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	assignment, err := h.offers.CreateAssignment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.CreatedResponse(c, "Assignment created successfully", assignment)
}

// ExpireOverdue runs one pass of the expiry sweep
func (h *AdminHandler) ExpireOverdue(c *gin.Context) {
	n, err := h.offers.ExpireOverdue(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.SuccessResponse(c, "Overdue offers expired", gin.H{"expired": n})
}

// GetSessions lists device sessions with their feed and dispatcher state
func (h *AdminHandler) GetSessions(c *gin.Context) {
	statuses := h.sessions.Statuses()
	utils.SuccessResponseWithMeta(c, "Sessions retrieved successfully", gin.H{
		"devices":  statuses,
		"tracking": h.tracking.Sessions(),
	}, &utils.Meta{Count: len(statuses)})
}

func (h *AdminHandler) GetPosition(c *gin.Context) {
	if h.positions == nil {
		utils.NotFoundResponse(c, "Position")
		return
	}

	personnelID := c.Param("personnel_id")
	lat, lng, err := h.positions.Position(c.Request.Context(), personnelID)
	if errors.Is(err, cache.ErrCacheMiss) {
		utils.NotFoundResponse(c, "Position")
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.SuccessResponse(c, "Position retrieved successfully", gin.H{
		"personnel_id": personnelID,
		"latitude":     lat,
		"longitude":    lng,
	})
}
