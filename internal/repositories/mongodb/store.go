package mongodb

import (
	"guardshift/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/mongo"
)

func NewStore(db *mongo.Database) *interfaces.Store {
	return &interfaces.Store{
		Offers:         NewOfferRepository(db),
		Shifts:         NewShiftRepository(db),
		Assignments:    NewAssignmentRepository(db),
		Geofences:      NewGeofenceRepository(db),
		GeofenceEvents: NewGeofenceEventRepository(db),
	}
}
