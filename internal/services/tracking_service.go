package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"
	"guardshift/internal/tracking"
	"guardshift/pkg/logger"
)

var (
	ErrTrackingNotActive  = errors.New("no active tracking session")
	ErrAssignmentNotOwned = errors.New("assignment belongs to another candidate")
)

type TrackingSessionInfo struct {
	AssignmentID string          `json:"assignment_id"`
	PersonnelID  string          `json:"personnel_id"`
	Membership   map[string]bool `json:"membership"`
}

// TrackingService owns every live tracking session, keyed by assignment.
type TrackingService interface {
	Start(ctx context.Context, personnelID, assignmentID string) (*TrackingSessionInfo, error)
	// Sample feeds one location fix to every session of personnelID.
	Sample(ctx context.Context, personnelID string, sample models.LocationSample) (map[string]*tracking.Result, error)
	Stop(personnelID, assignmentID string) error
	StopAll(personnelID string)
	Sessions() []TrackingSessionInfo
}

type trackingService struct {
	store     *interfaces.Store
	filter    tracking.FilterOptions
	positions tracking.PositionPublisher
	logger    *logger.Logger

	mu       sync.Mutex
	sessions map[string]*tracking.Session
}

func NewTrackingService(store *interfaces.Store, filter tracking.FilterOptions, positions tracking.PositionPublisher, log *logger.Logger) TrackingService {
	return &trackingService{
		store:     store,
		filter:    filter,
		positions: positions,
		logger:    log.WithField("component", "tracking"),
		sessions:  make(map[string]*tracking.Session),
	}
}

func (s *trackingService) Start(ctx context.Context, personnelID, assignmentID string) (*TrackingSessionInfo, error) {
	assignment, err := s.store.Assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if assignment.PersonnelID != personnelID {
		return nil, ErrAssignmentNotOwned
	}

	s.mu.Lock()
	existing, ok := s.sessions[assignmentID]
	s.mu.Unlock()
	if ok {
		return info(existing), nil
	}

	session, err := tracking.Start(ctx, s.store, assignment, s.filter, s.positions, s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.sessions[assignmentID]; ok {
		s.mu.Unlock()
		session.Stop()
		return info(existing), nil
	}
	s.sessions[assignmentID] = session
	s.mu.Unlock()

	s.logger.WithUserID(personnelID).WithFields(map[string]interface{}{
		"assignment_id": assignmentID,
		"geofences":     len(session.GeofenceIDs()),
	}).Info("Tracking session started")
	return info(session), nil
}

func (s *trackingService) Sample(ctx context.Context, personnelID string, sample models.LocationSample) (map[string]*tracking.Result, error) {
	if err := tracking.ValidateSample(sample); err != nil {
		return nil, err
	}

	active := s.sessionsFor(personnelID)
	if len(active) == 0 {
		return nil, ErrTrackingNotActive
	}

	results := make(map[string]*tracking.Result, len(active))
	for _, session := range active {
		res, err := session.Process(ctx, sample)
		if err != nil {
			if errors.Is(err, tracking.ErrSessionStopped) {
				continue
			}
			return nil, err
		}
		results[session.AssignmentID()] = res
	}
	return results, nil
}

func (s *trackingService) Stop(personnelID, assignmentID string) error {
	s.mu.Lock()
	session, ok := s.sessions[assignmentID]
	if !ok || session.PersonnelID() != personnelID {
		s.mu.Unlock()
		return ErrTrackingNotActive
	}
	delete(s.sessions, assignmentID)
	s.mu.Unlock()

	session.Stop()
	s.logger.WithUserID(personnelID).WithField("assignment_id", assignmentID).Info("Tracking session stopped")
	return nil
}

func (s *trackingService) StopAll(personnelID string) {
	for _, session := range s.sessionsFor(personnelID) {
		_ = s.Stop(personnelID, session.AssignmentID())
	}
}

func (s *trackingService) Sessions() []TrackingSessionInfo {
	s.mu.Lock()
	out := make([]TrackingSessionInfo, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *info(session))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AssignmentID < out[j].AssignmentID })
	return out
}

func (s *trackingService) sessionsFor(personnelID string) []*tracking.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*tracking.Session
	for _, session := range s.sessions {
		if session.PersonnelID() == personnelID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignmentID() < out[j].AssignmentID() })
	return out
}

func info(session *tracking.Session) *TrackingSessionInfo {
	return &TrackingSessionInfo{
		AssignmentID: session.AssignmentID(),
		PersonnelID:  session.PersonnelID(),
		Membership:   session.Membership(),
	}
}
