package handlers

import (
	"context"
	"net/http"
	"time"

	"guardshift/internal/utils"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency whose reachability is part of health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	version  string
	checks   map[string]Pinger
	sessions func() int
}

func NewHealthHandler(version string, checks map[string]Pinger, sessions func() int) *HealthHandler {
	return &HealthHandler{
		version:  version,
		checks:   checks,
		sessions: sessions,
	}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	deps := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	body := gin.H{
		"status":       status,
		"version":      h.version,
		"dependencies": deps,
	}
	if h.sessions != nil {
		body["sessions"] = h.sessions()
	}

	if status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, utils.APIResponse{Status: utils.StatusError, Data: body, Timestamp: time.Now()})
		return
	}
	utils.SuccessResponse(c, "Service is healthy", body)
}
