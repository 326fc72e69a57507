package tracking

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"
	"guardshift/internal/repositories/memory"
	"guardshift/internal/utils"
	"guardshift/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	venueLat = 51.5072
	venueLng = -0.1276
)

var t0 = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

// northOf returns the latitude metres north of venueLat along the meridian.
func northOf(metres float64) float64 {
	return venueLat + metres/(utils.EarthRadiusMeters*math.Pi/180)
}

func sampleAt(metres float64, at time.Time) models.LocationSample {
	return models.LocationSample{Latitude: northOf(metres), Longitude: venueLng, Accuracy: 5, Timestamp: at}
}

type fixture struct {
	store      *interfaces.Store
	assignment *models.BookingAssignment
}

func newFixture(t *testing.T, radii ...float64) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(memory.NewDB())

	assignment := &models.BookingAssignment{ID: "a1", BookingID: "b1", PersonnelID: "p1"}
	require.NoError(t, store.Assignments.Create(ctx, assignment))

	for i, r := range radii {
		require.NoError(t, store.Geofences.Create(ctx, &models.Geofence{
			ID:        string(rune('g' + i)),
			VenueID:   "v1",
			BookingID: "b1",
			Latitude:  venueLat,
			Longitude: venueLng,
			Radius:    r,
			IsActive:  true,
		}))
	}
	return &fixture{store: store, assignment: assignment}
}

func (f *fixture) start(t *testing.T, opts FilterOptions, positions PositionPublisher) *Session {
	t.Helper()
	s, err := Start(context.Background(), f.store, f.assignment, opts, positions, logger.NewNop())
	require.NoError(t, err)
	return s
}

func (f *fixture) events(t *testing.T) []*models.GeofenceEvent {
	t.Helper()
	events, err := f.store.GeofenceEvents.ListByAssignment(context.Background(), "a1")
	require.NoError(t, err)
	return events
}

func (f *fixture) record(t *testing.T) *models.BookingAssignment {
	t.Helper()
	a, err := f.store.Assignments.GetByID(context.Background(), "a1")
	require.NoError(t, err)
	return a
}

func TestStart_MembershipInitiallyOutside(t *testing.T) {
	f := newFixture(t, 50, 200)
	s := f.start(t, FilterOptions{}, nil)

	assert.Equal(t, map[string]bool{"g": false, "h": false}, s.Membership())
	assert.Equal(t, []string{"g", "h"}, s.GeofenceIDs())
}

func TestProcess_EnterTriggersCheckIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	s := f.start(t, FilterOptions{}, nil)

	res, err := s.Process(ctx, sampleAt(45, t0))
	require.NoError(t, err)
	require.True(t, res.Evaluated)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, models.GeofenceEventEnter, res.Transitions[0].Type)
	assert.InDelta(t, 45, res.Transitions[0].DistanceMeters, 0.01)
	assert.True(t, res.Transitions[0].AttendanceApplied)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, models.GeofenceEventEnter, events[0].Type)
	assert.Equal(t, "p1", events[0].PersonnelID)

	record := f.record(t)
	require.NotNil(t, record.CheckInAt)
	assert.True(t, record.CheckInAt.Equal(t0))
	assert.True(t, record.AutoCheckedIn)
	assert.True(t, s.Membership()["g"])
}

func TestProcess_StillInsideProducesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	s := f.start(t, FilterOptions{}, nil)

	_, err := s.Process(ctx, sampleAt(45, t0))
	require.NoError(t, err)

	res, err := s.Process(ctx, sampleAt(20, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, res.Evaluated)
	assert.Empty(t, res.Transitions)
	assert.Len(t, f.events(t), 1)
	assert.True(t, f.record(t).CheckInAt.Equal(t0))
}

func TestProcess_RadiusIsInclusive(t *testing.T) {
	f := newFixture(t)
	point := sampleAt(50, t0)
	radius := utils.DistanceMeters(venueLat, venueLng, point.Latitude, point.Longitude)
	require.NoError(t, f.store.Geofences.Create(context.Background(), &models.Geofence{
		ID: "edge", BookingID: "b1", Latitude: venueLat, Longitude: venueLng, Radius: radius, IsActive: true,
	}))
	s := f.start(t, FilterOptions{}, nil)

	res, err := s.Process(context.Background(), point)
	require.NoError(t, err)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, models.GeofenceEventEnter, res.Transitions[0].Type)
}

func TestProcess_CheckInWrittenOnceAcrossReentries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	s := f.start(t, FilterOptions{}, nil)

	distances := []float64{10, 80, 10, 80, 10}
	for i, d := range distances {
		_, err := s.Process(ctx, sampleAt(d, t0.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	events := f.events(t)
	require.Len(t, events, 5)
	record := f.record(t)
	assert.True(t, record.CheckInAt.Equal(t0), "check-in keeps the first enter")
	require.NotNil(t, record.CheckOutAt)
	assert.True(t, record.CheckOutAt.Equal(t0.Add(time.Minute)), "check-out keeps the first exit")
}

func TestProcess_NoCheckOutWithoutCheckIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)

	// Every check-in write fails, so the exit finds nothing to close.
	f.store.Assignments = &failingAssignments{AssignmentRepository: f.store.Assignments, failCheckIn: true}
	s := f.start(t, FilterOptions{}, nil)

	res, err := s.Process(ctx, sampleAt(10, t0))
	require.NoError(t, err)
	require.Len(t, res.Transitions, 1)
	assert.False(t, res.Transitions[0].AttendanceApplied)
	assert.True(t, s.Membership()["g"], "membership follows the distance test even when the write fails")

	res, err = s.Process(ctx, sampleAt(100, t0.Add(time.Minute)))
	require.NoError(t, err)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, models.GeofenceEventExit, res.Transitions[0].Type)
	assert.False(t, res.Transitions[0].AttendanceApplied)

	record := f.record(t)
	assert.Nil(t, record.CheckInAt)
	assert.Nil(t, record.CheckOutAt)
}

func TestProcess_EventWriteFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.store.GeofenceEvents = failingEvents{}
	s := f.start(t, FilterOptions{}, nil)

	res, err := s.Process(ctx, sampleAt(10, t0))
	require.NoError(t, err)
	require.Len(t, res.Transitions, 1)
	assert.False(t, res.Transitions[0].EventRecorded)
	assert.True(t, res.Transitions[0].AttendanceApplied)

	res, err = s.Process(ctx, sampleAt(10, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, res.Transitions, "a failed write is not retried while still inside")
}

func TestProcess_MultipleGeofences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50, 200)
	s := f.start(t, FilterOptions{}, nil)

	res, err := s.Process(ctx, sampleAt(120, t0))
	require.NoError(t, err)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, "h", res.Transitions[0].GeofenceID)

	res, err = s.Process(ctx, sampleAt(30, t0.Add(time.Minute)))
	require.NoError(t, err)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, "g", res.Transitions[0].GeofenceID)
	assert.False(t, res.Transitions[0].AttendanceApplied, "already checked in through the outer fence")

	assert.Equal(t, map[string]bool{"g": true, "h": true}, s.Membership())
}

func TestProcess_RejectsInvalidSamples(t *testing.T) {
	f := newFixture(t, 50)
	s := f.start(t, FilterOptions{}, nil)

	_, err := s.Process(context.Background(), models.LocationSample{Latitude: 91, Longitude: 0, Timestamp: t0})
	assert.ErrorIs(t, err, ErrInvalidSample)

	_, err = s.Process(context.Background(), models.LocationSample{Latitude: 0, Longitude: 0, Accuracy: -1, Timestamp: t0})
	assert.ErrorIs(t, err, ErrInvalidSample)
}

func TestProcess_AfterStop(t *testing.T) {
	f := newFixture(t, 50)
	s := f.start(t, FilterOptions{}, nil)
	_, err := s.Process(context.Background(), sampleAt(10, t0))
	require.NoError(t, err)

	s.Stop()
	assert.Empty(t, s.Membership())

	_, err = s.Process(context.Background(), sampleAt(10, t0.Add(time.Minute)))
	assert.ErrorIs(t, err, ErrSessionStopped)
}

func TestProcess_PublishesPosition(t *testing.T) {
	f := newFixture(t, 50)
	positions := &recordingPositions{}
	s := f.start(t, FilterOptions{}, positions)

	_, err := s.Process(context.Background(), sampleAt(10, t0))
	require.NoError(t, err)

	require.Len(t, positions.calls, 1)
	assert.Equal(t, "p1", positions.calls[0].personnelID)
	assert.InDelta(t, venueLng, positions.calls[0].lng, 1e-9)
}

func TestProcess_SmallBoundaryCrossingStillChecksIn(t *testing.T) {
	f := newFixture(t, 50)
	positions := &recordingPositions{}
	s := f.start(t, FilterOptions{MinInterval: 10 * time.Second, MinDistance: 10}, positions)
	ctx := context.Background()

	res, err := s.Process(ctx, sampleAt(55, t0))
	require.NoError(t, err)
	assert.True(t, res.Published)
	assert.Empty(t, res.Transitions)

	// 7 m of movement is below the publishing distance but crosses the fence.
	res, err = s.Process(ctx, sampleAt(48, t0.Add(10*time.Second)))
	require.NoError(t, err)
	assert.True(t, res.Evaluated)
	assert.False(t, res.Published)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, models.GeofenceEventEnter, res.Transitions[0].Type)

	for i := 2; i <= 10; i++ {
		res, err = s.Process(ctx, sampleAt(48, t0.Add(time.Duration(i)*10*time.Second)))
		require.NoError(t, err)
		assert.Empty(t, res.Transitions)
	}

	assert.Equal(t, map[string]bool{"g": true}, s.Membership())
	assert.NotNil(t, f.record(t).CheckInAt)
	assert.Len(t, f.events(t), 1)
	assert.Len(t, positions.calls, 1)
}

func TestProcess_SkipsOutOfOrderSamples(t *testing.T) {
	f := newFixture(t, 50)
	s := f.start(t, FilterOptions{}, nil)
	ctx := context.Background()

	_, err := s.Process(ctx, sampleAt(10, t0.Add(time.Minute)))
	require.NoError(t, err)

	res, err := s.Process(ctx, sampleAt(500, t0))
	require.NoError(t, err)
	assert.False(t, res.Evaluated)
	assert.Equal(t, map[string]bool{"g": true}, s.Membership())
}

func TestSampleFilter(t *testing.T) {
	f := NewSampleFilter(FilterOptions{MinInterval: 10 * time.Second, MinDistance: 10})

	assert.True(t, f.Allow(sampleAt(0, t0)), "first sample is always published")
	assert.False(t, f.Allow(sampleAt(50, t0.Add(5*time.Second))), "too soon")
	assert.False(t, f.Allow(sampleAt(5, t0.Add(time.Minute))), "too close")
	assert.False(t, f.Allow(sampleAt(50, t0.Add(-time.Minute))), "out of order")
	assert.True(t, f.Allow(sampleAt(50, t0.Add(time.Minute))))
	assert.False(t, f.Allow(sampleAt(55, t0.Add(2*time.Minute))), "distance measured from the last published sample")
}

type failingAssignments struct {
	interfaces.AssignmentRepository
	failCheckIn bool
}

func (f *failingAssignments) CheckIn(ctx context.Context, id string, at models.Point, when time.Time) (interfaces.CASResult, error) {
	if f.failCheckIn {
		return interfaces.CASConflict, errors.New("write timeout")
	}
	return f.AssignmentRepository.CheckIn(ctx, id, at, when)
}

type failingEvents struct{}

func (failingEvents) Create(ctx context.Context, event *models.GeofenceEvent) error {
	return errors.New("write timeout")
}

func (failingEvents) ListByAssignment(ctx context.Context, assignmentID string) ([]*models.GeofenceEvent, error) {
	return nil, nil
}

type positionCall struct {
	personnelID string
	lat, lng    float64
}

type recordingPositions struct {
	mu    sync.Mutex
	calls []positionCall
}

func (r *recordingPositions) UpdatePosition(ctx context.Context, personnelID string, lat, lng float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, positionCall{personnelID: personnelID, lat: lat, lng: lng})
	return nil
}
