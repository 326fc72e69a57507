package mongodb

import (
	"context"
	"fmt"
	"time"

	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	GeofencesCollection      = "geofences"
	GeofenceEventsCollection = "geofence_events"
)

type geofenceRepository struct {
	collection *mongo.Collection
}

func NewGeofenceRepository(db *mongo.Database) interfaces.GeofenceRepository {
	return &geofenceRepository{
		collection: db.Collection(GeofencesCollection),
	}
}

func (r *geofenceRepository) Create(ctx context.Context, geofence *models.Geofence) error {
	if geofence.ID == "" {
		geofence.ID = models.NewID()
	}
	geofence.CreatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, geofence); err != nil {
		return fmt.Errorf("failed to create geofence: %w", err)
	}

	return nil
}

func (r *geofenceRepository) ListActiveForBooking(ctx context.Context, bookingID string) ([]*models.Geofence, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID, "is_active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to find geofences: %w", err)
	}
	defer cursor.Close(ctx)

	var geofences []*models.Geofence
	if err := cursor.All(ctx, &geofences); err != nil {
		return nil, fmt.Errorf("failed to decode geofences: %w", err)
	}

	return geofences, nil
}

type geofenceEventRepository struct {
	collection *mongo.Collection
}

func NewGeofenceEventRepository(db *mongo.Database) interfaces.GeofenceEventRepository {
	return &geofenceEventRepository{
		collection: db.Collection(GeofenceEventsCollection),
	}
}

func (r *geofenceEventRepository) Create(ctx context.Context, event *models.GeofenceEvent) error {
	if event.ID == "" {
		event.ID = models.NewID()
	}

	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to create geofence event: %w", err)
	}

	return nil
}

func (r *geofenceEventRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]*models.GeofenceEvent, error) {
	cursor, err := r.collection.Find(
		ctx,
		bson.M{"assignment_id": assignmentID},
		options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find geofence events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*models.GeofenceEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode geofence events: %w", err)
	}

	return events, nil
}
