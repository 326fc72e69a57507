package handlers

import (
	"time"

	"guardshift/internal/middleware"
	"guardshift/internal/models"
	"guardshift/internal/services"
	"guardshift/internal/session"
	"guardshift/internal/utils"
	"guardshift/internal/validators"
	"guardshift/pkg/logger"

	"github.com/gin-gonic/gin"
)

type TrackingHandler struct {
	tracking services.TrackingService
	sessions *session.Manager
	logger   *logger.Logger
}

func NewTrackingHandler(tracking services.TrackingService, sessions *session.Manager, log *logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		tracking: tracking,
		sessions: sessions,
		logger:   log,
	}
}

// StartTracking opens a geofence session for one of the caller's assignments
func (h *TrackingHandler) StartTracking(c *gin.Context) {
	var req validators.StartTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return
	}

	info, err := h.tracking.Start(c.Request.Context(), middleware.UserID(c), req.AssignmentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.CreatedResponse(c, "Tracking started", info)
}

// SubmitSample evaluates one location sample against every active session
// of the caller. Transitions are also pushed to the caller's devices.
func (h *TrackingHandler) SubmitSample(c *gin.Context) {
	var req validators.LocationSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return
	}

	sample := models.LocationSample{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		Timestamp: time.Now(),
	}
	if req.Timestamp != nil {
		sample.Timestamp = *req.Timestamp
	}

	userID := middleware.UserID(c)
	results, err := h.tracking.Sample(c.Request.Context(), userID, sample)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	for assignmentID, res := range results {
		if len(res.Transitions) == 0 {
			continue
		}
		h.sessions.NotifyUser(userID, session.MsgAttendance, &session.AttendanceMessage{
			AssignmentID: assignmentID,
			Transitions:  res.Transitions,
			RecordedAt:   sample.Timestamp,
		})
	}

	utils.SuccessResponse(c, "Sample processed", results)
}

func (h *TrackingHandler) StopTracking(c *gin.Context) {
	if err := h.tracking.Stop(middleware.UserID(c), c.Param("assignment_id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.NoContentResponse(c)
}
