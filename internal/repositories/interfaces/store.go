package interfaces

// Store groups the repositories one backend provides.
type Store struct {
	Offers         OfferRepository
	Shifts         ShiftRepository
	Assignments    AssignmentRepository
	Geofences      GeofenceRepository
	GeofenceEvents GeofenceEventRepository
}
