package websocket

import (
	"net/http"
	"strings"

	"guardshift/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	listener Listener
	upgrader websocket.Upgrader
	opts     Options
	logger   *logger.Logger
}

func NewHandler(hub *Hub, listener Listener, opts Options, log *logger.Logger) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Handler{
		hub:      hub,
		listener: listener,
		opts:     opts,
		logger:   log.WithField("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// HandleWebSocket upgrades the request. Authentication happens inside the
// channel: the token may be given as ?token= or Authorization header, or
// later with a sign_in message.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := newClient(h.hub, conn, h.listener, token, h.opts, h.logger)
	if !h.hub.add(client) {
		client.Close()
		return
	}
	h.listener.OnConnect(client)

	go client.writePump()
	go client.readPump()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
