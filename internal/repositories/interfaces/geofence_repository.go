package interfaces

import (
	"context"

	"guardshift/internal/models"
)

type GeofenceRepository interface {
	Create(ctx context.Context, geofence *models.Geofence) error
	ListActiveForBooking(ctx context.Context, bookingID string) ([]*models.Geofence, error)
}

type GeofenceEventRepository interface {
	Create(ctx context.Context, event *models.GeofenceEvent) error
	ListByAssignment(ctx context.Context, assignmentID string) ([]*models.GeofenceEvent, error)
}
