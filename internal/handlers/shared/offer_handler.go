package handlers

import (
	"guardshift/internal/dispatch"
	"guardshift/internal/middleware"
	"guardshift/internal/session"
	"guardshift/internal/utils"
	"guardshift/pkg/logger"

	"github.com/gin-gonic/gin"
)

// OfferHandler acts on the offer currently shown on the caller's device.
// Every action goes through the caller's live device session so the REST
// surface and the device channel share one dispatcher.
type OfferHandler struct {
	sessions *session.Manager
	logger   *logger.Logger
}

func NewOfferHandler(sessions *session.Manager, log *logger.Logger) *OfferHandler {
	return &OfferHandler{
		sessions: sessions,
		logger:   log,
	}
}

// GetCurrentOffer returns the dispatcher snapshot of the caller's session
func (h *OfferHandler) GetCurrentOffer(c *gin.Context) {
	sess, err := h.sessions.SessionFor(middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Current offer retrieved successfully", snapshotOf(sess))
}

// AcceptOffer runs the claim protocol and waits for its outcome
func (h *OfferHandler) AcceptOffer(c *gin.Context) {
	sess, err := h.sessions.SessionFor(middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := sess.Accept(c.Request.Context()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.SuccessResponse(c, "Shift accepted", snapshotOf(sess))
}

// DeclineOffer advances at once; the decline write completes in the background
func (h *OfferHandler) DeclineOffer(c *gin.Context) {
	sess, err := h.sessions.SessionFor(middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := sess.Decline(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.AcceptedResponse(c, "Offer declined", snapshotOf(sess))
}

func (h *OfferHandler) DismissOffer(c *gin.Context) {
	sess, err := h.sessions.SessionFor(middleware.UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := sess.Dismiss(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.SuccessResponse(c, "Offer dismissed", snapshotOf(sess))
}

func snapshotOf(sess *session.Session) dispatch.Snapshot {
	if d := sess.Dispatcher(); d != nil {
		return d.Snapshot()
	}
	return dispatch.Snapshot{State: dispatch.StateIdle}
}
