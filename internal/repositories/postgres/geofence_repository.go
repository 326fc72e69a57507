package postgres

import (
	"context"
	"fmt"

	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"
)

type geofenceRepository struct {
	db Querier
}

func NewGeofenceRepository(db Querier) interfaces.GeofenceRepository {
	return &geofenceRepository{db: db}
}

func (r *geofenceRepository) Create(ctx context.Context, g *models.Geofence) error {
	if g.ID == "" {
		g.ID = models.NewID()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO geofences (id, venue_id, booking_id, name, latitude, longitude, radius, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, g.ID, g.VenueID, g.BookingID, g.Name, g.Latitude, g.Longitude, g.Radius, g.IsActive).Scan(&g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create geofence: %w", err)
	}

	return nil
}

func (r *geofenceRepository) ListActiveForBooking(ctx context.Context, bookingID string) ([]*models.Geofence, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, venue_id, booking_id, name, latitude, longitude, radius, is_active, created_at
		FROM geofences
		WHERE booking_id = $1 AND is_active
		ORDER BY id
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query geofences: %w", err)
	}
	defer rows.Close()

	var geofences []*models.Geofence
	for rows.Next() {
		var g models.Geofence
		if err := rows.Scan(&g.ID, &g.VenueID, &g.BookingID, &g.Name, &g.Latitude, &g.Longitude, &g.Radius, &g.IsActive, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan geofence: %w", err)
		}
		geofences = append(geofences, &g)
	}

	return geofences, rows.Err()
}

type geofenceEventRepository struct {
	db Querier
}

func NewGeofenceEventRepository(db Querier) interfaces.GeofenceEventRepository {
	return &geofenceEventRepository{db: db}
}

func (r *geofenceEventRepository) Create(ctx context.Context, e *models.GeofenceEvent) error {
	if e.ID == "" {
		e.ID = models.NewID()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO geofence_events (id, assignment_id, geofence_id, personnel_id, type,
			latitude, longitude, accuracy, distance_meters, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.AssignmentID, e.GeofenceID, e.PersonnelID, e.Type,
		e.Latitude, e.Longitude, e.Accuracy, e.DistanceMeters, e.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to create geofence event: %w", err)
	}

	return nil
}

func (r *geofenceEventRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]*models.GeofenceEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, assignment_id, geofence_id, personnel_id, type,
			latitude, longitude, accuracy, distance_meters, recorded_at
		FROM geofence_events
		WHERE assignment_id = $1
		ORDER BY recorded_at ASC
	`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query geofence events: %w", err)
	}
	defer rows.Close()

	var events []*models.GeofenceEvent
	for rows.Next() {
		var e models.GeofenceEvent
		if err := rows.Scan(&e.ID, &e.AssignmentID, &e.GeofenceID, &e.PersonnelID, &e.Type,
			&e.Latitude, &e.Longitude, &e.Accuracy, &e.DistanceMeters, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan geofence event: %w", err)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}
