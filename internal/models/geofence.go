package models

import (
	"time"
)

type GeofenceEventType string

const (
	GeofenceEventEnter GeofenceEventType = "enter"
	GeofenceEventExit  GeofenceEventType = "exit"
)

// Geofence is a circular region around a venue. Radius is in meters.
type Geofence struct {
	ID        string    `json:"id" bson:"_id"`
	VenueID   string    `json:"venue_id" bson:"venue_id" validate:"required"`
	BookingID string    `json:"booking_id" bson:"booking_id"`
	Name      string    `json:"name" bson:"name"`
	Latitude  float64   `json:"latitude" bson:"latitude" validate:"min=-90,max=90"`
	Longitude float64   `json:"longitude" bson:"longitude" validate:"min=-180,max=180"`
	Radius    float64   `json:"radius" bson:"radius" validate:"gt=0"`
	IsActive  bool      `json:"is_active" bson:"is_active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type GeofenceEvent struct {
	ID             string            `json:"id" bson:"_id"`
	AssignmentID   string            `json:"assignment_id" bson:"assignment_id"`
	GeofenceID     string            `json:"geofence_id" bson:"geofence_id"`
	PersonnelID    string            `json:"personnel_id" bson:"personnel_id"`
	Type           GeofenceEventType `json:"type" bson:"type"`
	Latitude       float64           `json:"latitude" bson:"latitude"`
	Longitude      float64           `json:"longitude" bson:"longitude"`
	Accuracy       float64           `json:"accuracy" bson:"accuracy"`
	DistanceMeters float64           `json:"distance_meters" bson:"distance_meters"`
	RecordedAt     time.Time         `json:"recorded_at" bson:"recorded_at"`
}
