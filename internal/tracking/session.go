// Package tracking evaluates location samples against the geofences of an
// active booking and drives automatic check-in and check-out.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"
	"guardshift/internal/utils"
	"guardshift/pkg/logger"
)

var ErrSessionStopped = errors.New("tracking session stopped")

// PositionPublisher records the last evaluated position of a candidate.
type PositionPublisher interface {
	UpdatePosition(ctx context.Context, personnelID string, lat, lng float64) error
}

type Transition struct {
	GeofenceID        string                   `json:"geofence_id"`
	Type              models.GeofenceEventType `json:"type"`
	DistanceMeters    float64                  `json:"distance_meters"`
	EventRecorded     bool                     `json:"event_recorded"`
	AttendanceApplied bool                     `json:"attendance_applied"`
}

// Result of one sample. Evaluated is false only for a sample older than one
// already evaluated. Published reports whether the sample filter let the
// position through to the position store.
type Result struct {
	Evaluated   bool         `json:"evaluated"`
	Published   bool         `json:"published"`
	Transitions []Transition `json:"transitions,omitempty"`
}

type Session struct {
	assignment *models.BookingAssignment
	geofences  []*models.Geofence
	events     interfaces.GeofenceEventRepository
	attendance interfaces.AssignmentRepository
	positions  PositionPublisher
	logger     *logger.Logger

	mu      sync.Mutex
	filter  *SampleFilter
	inside  map[string]bool
	lastAt  time.Time
	stopped bool
}

// Start loads the booking's active geofences and begins a session with
// every membership flag set to outside. positions may be nil.
func Start(ctx context.Context, store *interfaces.Store, assignment *models.BookingAssignment, opts FilterOptions, positions PositionPublisher, log *logger.Logger) (*Session, error) {
	geofences, err := store.Geofences.ListActiveForBooking(ctx, assignment.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load geofences: %w", err)
	}
	return NewSession(assignment, geofences, store, opts, positions, log), nil
}

func NewSession(assignment *models.BookingAssignment, geofences []*models.Geofence, store *interfaces.Store, opts FilterOptions, positions PositionPublisher, log *logger.Logger) *Session {
	if log == nil {
		log = logger.NewNop()
	}

	inside := make(map[string]bool, len(geofences))
	for _, g := range geofences {
		inside[g.ID] = false
	}

	return &Session{
		assignment: assignment,
		geofences:  geofences,
		events:     store.GeofenceEvents,
		attendance: store.Assignments,
		positions:  positions,
		logger: log.WithFields(map[string]interface{}{
			"assignment_id": assignment.ID,
			"user_id":       assignment.PersonnelID,
		}),
		filter: NewSampleFilter(opts),
		inside: inside,
	}
}

func (s *Session) AssignmentID() string { return s.assignment.ID }
func (s *Session) PersonnelID() string  { return s.assignment.PersonnelID }

// Process evaluates one sample against every geofence. Membership is
// updated on every in-order sample; the sample filter only throttles
// position publishing. Write failures are logged and never returned.
func (s *Session) Process(ctx context.Context, sample models.LocationSample) (*Result, error) {
	if err := ValidateSample(sample); err != nil {
		return nil, err
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrSessionStopped
	}
	if !s.lastAt.IsZero() && sample.Timestamp.Before(s.lastAt) {
		return &Result{}, nil
	}
	s.lastAt = sample.Timestamp

	result := &Result{Evaluated: true}
	for _, g := range s.geofences {
		distance := utils.DistanceMeters(g.Latitude, g.Longitude, sample.Latitude, sample.Longitude)
		nowInside := distance <= g.Radius
		if nowInside == s.inside[g.ID] {
			continue
		}
		s.inside[g.ID] = nowInside

		kind := models.GeofenceEventExit
		if nowInside {
			kind = models.GeofenceEventEnter
		}
		result.Transitions = append(result.Transitions, s.transition(ctx, g, kind, distance, sample))
	}

	if s.positions != nil && s.filter.Allow(sample) {
		result.Published = true
		if err := s.positions.UpdatePosition(ctx, s.assignment.PersonnelID, sample.Latitude, sample.Longitude); err != nil {
			s.logger.WithError(err).Warn("Failed to publish position")
		}
	}

	return result, nil
}

func (s *Session) transition(ctx context.Context, g *models.Geofence, kind models.GeofenceEventType, distance float64, sample models.LocationSample) Transition {
	t := Transition{GeofenceID: g.ID, Type: kind, DistanceMeters: distance}
	log := s.logger.WithFields(map[string]interface{}{
		"geofence_id": g.ID,
		"event":       kind,
	})

	event := &models.GeofenceEvent{
		ID:             models.NewID(),
		AssignmentID:   s.assignment.ID,
		GeofenceID:     g.ID,
		PersonnelID:    s.assignment.PersonnelID,
		Type:           kind,
		Latitude:       sample.Latitude,
		Longitude:      sample.Longitude,
		Accuracy:       sample.Accuracy,
		DistanceMeters: distance,
		RecordedAt:     sample.Timestamp,
	}
	if err := s.events.Create(ctx, event); err != nil {
		log.WithError(err).Error("Failed to record geofence event")
	} else {
		t.EventRecorded = true
	}

	var (
		res     interfaces.CASResult
		err     error
		logName string
	)
	if kind == models.GeofenceEventEnter {
		res, err = s.attendance.CheckIn(ctx, s.assignment.ID, sample.Point(), sample.Timestamp)
		logName = utils.EventCheckIn
	} else {
		res, err = s.attendance.CheckOut(ctx, s.assignment.ID, sample.Point(), sample.Timestamp)
		logName = utils.EventCheckOut
	}
	if err != nil {
		log.WithError(err).Error("Failed to write automatic attendance")
		return t
	}

	t.AttendanceApplied = res.Applied()
	s.logger.LogAttendanceEvent(s.assignment.ID, logName, map[string]interface{}{
		"geofence_id":     g.ID,
		"applied":         t.AttendanceApplied,
		"distance_meters": distance,
	})
	return t
}

// Membership returns a copy of the per-geofence inside flags.
func (s *Session) Membership() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]bool, len(s.inside))
	for id, in := range s.inside {
		out[id] = in
	}
	return out
}

func (s *Session) GeofenceIDs() []string {
	ids := make([]string, 0, len(s.geofences))
	for _, g := range s.geofences {
		ids = append(ids, g.ID)
	}
	sort.Strings(ids)
	return ids
}

// Stop drops the membership state. Later samples are rejected.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.inside = map[string]bool{}
	s.filter = NewSampleFilter(s.filter.opts)
}
