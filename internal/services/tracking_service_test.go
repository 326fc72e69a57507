package services

import (
	"context"
	"testing"
	"time"

	"guardshift/internal/models"
	"guardshift/internal/repositories/memory"
	"guardshift/internal/tracking"
	"guardshift/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackingService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.NewDB())
	require.NoError(t, store.Assignments.Create(ctx, &models.BookingAssignment{ID: "a1", BookingID: "b1", PersonnelID: "p1"}))
	require.NoError(t, store.Assignments.Create(ctx, &models.BookingAssignment{ID: "a2", BookingID: "b2", PersonnelID: "p2"}))
	require.NoError(t, store.Geofences.Create(ctx, &models.Geofence{ID: "g1", BookingID: "b1", Latitude: 51.5, Longitude: -0.12, Radius: 100, IsActive: true}))
	require.NoError(t, store.Geofences.Create(ctx, &models.Geofence{ID: "g2", BookingID: "b2", Latitude: 51.5, Longitude: -0.12, Radius: 100, IsActive: true}))

	svc := NewTrackingService(store, tracking.FilterOptions{}, nil, logger.NewNop())

	_, err := svc.Sample(ctx, "p1", models.LocationSample{Latitude: 51.5, Longitude: -0.12, Timestamp: time.Now()})
	assert.ErrorIs(t, err, ErrTrackingNotActive)

	_, err = svc.Start(ctx, "p1", "a2")
	assert.ErrorIs(t, err, ErrAssignmentNotOwned)

	started, err := svc.Start(ctx, "p1", "a1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"g1": false}, started.Membership)

	again, err := svc.Start(ctx, "p1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", again.AssignmentID)

	_, err = svc.Start(ctx, "p2", "a2")
	require.NoError(t, err)
	assert.Len(t, svc.Sessions(), 2)

	results, err := svc.Sample(ctx, "p1", models.LocationSample{Latitude: 51.5, Longitude: -0.12, Timestamp: time.Now()})
	require.NoError(t, err)
	require.Contains(t, results, "a1")
	assert.NotContains(t, results, "a2")
	require.Len(t, results["a1"].Transitions, 1)
	assert.Equal(t, models.GeofenceEventEnter, results["a1"].Transitions[0].Type)

	record, err := store.Assignments.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.NotNil(t, record.CheckInAt)
	other, err := store.Assignments.GetByID(ctx, "a2")
	require.NoError(t, err)
	assert.Nil(t, other.CheckInAt)

	_, err = svc.Sample(ctx, "p1", models.LocationSample{Latitude: 100, Longitude: 0})
	assert.ErrorIs(t, err, tracking.ErrInvalidSample)

	assert.ErrorIs(t, svc.Stop("p2", "a1"), ErrTrackingNotActive)
	require.NoError(t, svc.Stop("p1", "a1"))
	svc.StopAll("p2")
	assert.Empty(t, svc.Sessions())
}
