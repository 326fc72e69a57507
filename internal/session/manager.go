package session

import (
	"context"
	"sync"

	"guardshift/internal/dispatch"
	"guardshift/internal/feed"
	"guardshift/internal/repositories/interfaces"
	"guardshift/internal/services"
	"guardshift/internal/utils"
	"guardshift/pkg/logger"
	"guardshift/pkg/websocket"
)

// Deps are the collaborators shared by every device session.
type Deps struct {
	JWTSecret string
	Claims    services.ClaimService
	Offers    interfaces.OfferRepository
	Source    feed.Source
	Tracking  services.TrackingService
	// Alerts is optional; without it register_device is ignored.
	Alerts   services.AlertService
	Dispatch dispatch.Options
	Feed     feed.Options
	Clock    dispatch.Clock
	Logger   *logger.Logger
}

// SessionStatus is the monitoring view of one device session.
type SessionStatus struct {
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id,omitempty"`
	Feed      feed.Status       `json:"feed"`
	Offer     dispatch.Snapshot `json:"offer"`
}

// Manager owns the device sessions keyed by connection id. It is the
// websocket.Listener of the device channel and the Presence used by the
// alert service.
type Manager struct {
	ctx    context.Context
	deps   Deps
	logger *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(ctx context.Context, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = dispatch.SystemClock{}
	}
	return &Manager{
		ctx:      ctx,
		deps:     deps,
		logger:   deps.Logger.WithField("component", "sessions"),
		sessions: make(map[string]*Session),
	}
}

// Connect opens a session for conn and signs it in when token is set.
func (m *Manager) Connect(conn Conn, token string) *Session {
	s := newSession(m.ctx, conn, &m.deps)

	m.mu.Lock()
	m.sessions[conn.ID()] = s
	m.mu.Unlock()

	s.send(MsgWelcome, welcomeMessage{SessionID: conn.ID()})
	if token != "" {
		if _, err := s.SignIn(token); err != nil {
			s.sendError(err, utils.CodeInvalidToken)
		}
	}

	m.logger.WithField("session_id", conn.ID()).Debug("Device session opened")
	return s
}

func (m *Manager) Handle(connID, msgType string, data []byte) {
	m.mu.RLock()
	s, ok := m.sessions[connID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	s.handle(msgType, data)
}

func (m *Manager) Disconnect(connID string) {
	m.mu.Lock()
	s, ok := m.sessions[connID]
	delete(m.sessions, connID)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.close()
	m.logger.WithField("session_id", connID).Debug("Device session closed")
}

func (m *Manager) OnConnect(c *websocket.Client) { m.Connect(c, c.Token()) }

func (m *Manager) OnMessage(c *websocket.Client, msg *websocket.Message) {
	m.Handle(c.ID(), msg.Type, msg.Data)
}

func (m *Manager) OnDisconnect(c *websocket.Client) { m.Disconnect(c.ID()) }

// IsOnline reports whether personnelID has a signed-in device session.
func (m *Manager) IsOnline(personnelID string) bool {
	_, err := m.SessionFor(personnelID)
	return err == nil
}

// SessionFor returns the most recently signed-in session of personnelID.
func (m *Manager) SessionFor(personnelID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *Session
	for _, s := range m.sessions {
		user, ok := s.User()
		if !ok || user.UserID != personnelID {
			continue
		}
		if found == nil || s.signedInSince().After(found.signedInSince()) {
			found = s
		}
	}
	if found == nil {
		return nil, ErrNoSession
	}
	return found, nil
}

// NotifyUser sends a message to every session signed in as personnelID and
// returns how many received it.
func (m *Manager) NotifyUser(personnelID, msgType string, data interface{}) int {
	m.mu.RLock()
	targets := make([]*Session, 0, 1)
	for _, s := range m.sessions {
		if user, ok := s.User(); ok && user.UserID == personnelID {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	sent := 0
	for _, s := range targets {
		if err := s.conn.Send(msgType, data); err == nil {
			sent++
		}
	}
	return sent
}

func (m *Manager) Statuses() []SessionStatus {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]SessionStatus, 0, len(sessions))
	for _, s := range sessions {
		st := SessionStatus{SessionID: s.ID(), Feed: s.Feed()}
		if user, ok := s.User(); ok {
			st.UserID = user.UserID
		}
		if d := s.Dispatcher(); d != nil {
			st.Offer = d.Snapshot()
		}
		out = append(out, st)
	}
	return out
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close tears down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
