package routes

import (
	handlers "guardshift/internal/handlers/shared"
	"guardshift/internal/middleware"
	"guardshift/pkg/websocket"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Offers    *handlers.OfferHandler
	Tracking  *handlers.TrackingHandler
	Admin     *handlers.AdminHandler
	Health    *handlers.HealthHandler
	WebSocket *websocket.Handler
}

// SetupRoutes registers the device channel, the candidate API and the admin API
func SetupRoutes(router *gin.Engine, h *Handlers, jwtSecret, wsPath string) {
	router.GET("/health", h.Health.Health)
	if h.WebSocket != nil {
		router.GET(wsPath, h.WebSocket.HandleWebSocket)
	}

	v1 := router.Group("/api/v1")

	SetupOfferRoutes(v1, h.Offers, jwtSecret)
	SetupTrackingRoutes(v1, h.Tracking, jwtSecret)
	SetupAdminRoutes(v1, h.Admin, jwtSecret)
}

func SetupOfferRoutes(r *gin.RouterGroup, offerHandler *handlers.OfferHandler, jwtSecret string) {
	offers := r.Group("/offers")
	offers.Use(middleware.AuthRequired(jwtSecret), middleware.PersonnelRequired())
	{
		offers.GET("/current", offerHandler.GetCurrentOffer)
		offers.POST("/current/accept", offerHandler.AcceptOffer)
		offers.POST("/current/decline", offerHandler.DeclineOffer)
		offers.POST("/current/dismiss", offerHandler.DismissOffer)
	}
}

func SetupTrackingRoutes(r *gin.RouterGroup, trackingHandler *handlers.TrackingHandler, jwtSecret string) {
	tracking := r.Group("/tracking")
	tracking.Use(middleware.AuthRequired(jwtSecret), middleware.PersonnelRequired())
	{
		tracking.POST("/sessions", trackingHandler.StartTracking)
		tracking.DELETE("/sessions/:assignment_id", trackingHandler.StopTracking)
		tracking.POST("/samples", trackingHandler.SubmitSample)
	}
}

func SetupAdminRoutes(r *gin.RouterGroup, adminHandler *handlers.AdminHandler, jwtSecret string) {
	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(jwtSecret), middleware.AdminRequired())
	{
		admin.POST("/shifts", adminHandler.CreateShift)
		admin.POST("/offers", adminHandler.CreateOffer)
		admin.GET("/offers/:id", adminHandler.GetOffer)
		admin.POST("/offers/expire-overdue", adminHandler.ExpireOverdue)
		admin.POST("/geofences", adminHandler.CreateGeofence)
		admin.POST("/assignments", adminHandler.CreateAssignment)
		admin.GET("/sessions", adminHandler.GetSessions)
		admin.GET("/positions/:personnel_id", adminHandler.GetPosition)
	}
}
