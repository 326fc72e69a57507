// Package memory is a process-local store with the same conditional-write
// semantics as the database-backed repositories. Every mutation happens
// under one mutex, which is what makes its compare-and-swap writes atomic.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"
)

type DB struct {
	mu          sync.Mutex
	offers      map[string]models.ShiftOffer
	shifts      map[string]models.Shift
	assignments map[string]models.BookingAssignment
	geofences   map[string]models.Geofence
	events      []models.GeofenceEvent
}

func NewDB() *DB {
	return &DB{
		offers:      make(map[string]models.ShiftOffer),
		shifts:      make(map[string]models.Shift),
		assignments: make(map[string]models.BookingAssignment),
		geofences:   make(map[string]models.Geofence),
	}
}

// NewStore returns all repositories backed by one DB.
func NewStore(db *DB) *interfaces.Store {
	return &interfaces.Store{
		Offers:         &offerRepository{db: db},
		Shifts:         &shiftRepository{db: db},
		Assignments:    &assignmentRepository{db: db},
		Geofences:      &geofenceRepository{db: db},
		GeofenceEvents: &geofenceEventRepository{db: db},
	}
}

type offerRepository struct {
	db *DB
}

func (r *offerRepository) Create(ctx context.Context, offer *models.ShiftOffer) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if offer.ID == "" {
		offer.ID = models.NewID()
	}
	if _, exists := r.db.offers[offer.ID]; exists {
		return fmt.Errorf("offer %s already exists", offer.ID)
	}
	if offer.Status == "" {
		offer.Status = models.OfferStatusPending
	}
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = time.Now()
	}
	r.db.offers[offer.ID] = *offer
	return nil
}

func (r *offerRepository) GetByID(ctx context.Context, id string) (*models.ShiftOffer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	offer, ok := r.db.offers[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &offer, nil
}

func (r *offerRepository) ListPendingForPersonnel(ctx context.Context, personnelID string) ([]*models.ShiftOffer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var offers []*models.ShiftOffer
	for _, o := range r.db.offers {
		if o.PersonnelID == personnelID && o.Status == models.OfferStatusPending {
			offer := o
			offers = append(offers, &offer)
		}
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].CreatedAt.Before(offers[j].CreatedAt)
	})
	return offers, nil
}

func (r *offerRepository) transition(id string, from, to models.OfferStatus, at time.Time) (interfaces.CASResult, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	offer, ok := r.db.offers[id]
	if !ok {
		return interfaces.CASConflict, nil
	}
	if offer.Status != from {
		return interfaces.CASConflict, nil
	}
	offer.Status = to
	offer.RespondedAt = &at
	r.db.offers[id] = offer
	return interfaces.CASApplied, nil
}

func (r *offerRepository) MarkAccepted(ctx context.Context, id string, at time.Time) (interfaces.CASResult, error) {
	return r.transition(id, models.OfferStatusPending, models.OfferStatusAccepted, at)
}

func (r *offerRepository) MarkDeclined(ctx context.Context, id string, at time.Time) (interfaces.CASResult, error) {
	return r.transition(id, models.OfferStatusPending, models.OfferStatusDeclined, at)
}

func (r *offerRepository) RevertAccepted(ctx context.Context, id string, at time.Time) (interfaces.CASResult, error) {
	return r.transition(id, models.OfferStatusAccepted, models.OfferStatusExpired, at)
}

func (r *offerRepository) ReopenAccepted(ctx context.Context, id string) (interfaces.CASResult, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	offer, ok := r.db.offers[id]
	if !ok || offer.Status != models.OfferStatusAccepted {
		return interfaces.CASConflict, nil
	}
	offer.Status = models.OfferStatusPending
	offer.RespondedAt = nil
	r.db.offers[id] = offer
	return interfaces.CASApplied, nil
}

func (r *offerRepository) ExpireSiblings(ctx context.Context, shiftID, exceptOfferID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for id, o := range r.db.offers {
		if o.ShiftID == shiftID && id != exceptOfferID && o.Status == models.OfferStatusPending {
			o.Status = models.OfferStatusExpired
			r.db.offers[id] = o
			n++
		}
	}
	return n, nil
}

func (r *offerRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for id, o := range r.db.offers {
		if o.Status == models.OfferStatusPending && o.ExpiredAt(now) {
			o.Status = models.OfferStatusExpired
			r.db.offers[id] = o
			n++
		}
	}
	return n, nil
}

type shiftRepository struct {
	db *DB
}

func (r *shiftRepository) Create(ctx context.Context, shift *models.Shift) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if shift.ID == "" {
		shift.ID = models.NewID()
	}
	if shift.Status == "" {
		shift.Status = models.ShiftStatusPending
	}
	now := time.Now()
	if shift.CreatedAt.IsZero() {
		shift.CreatedAt = now
	}
	shift.UpdatedAt = now
	r.db.shifts[shift.ID] = *shift
	return nil
}

func (r *shiftRepository) GetByID(ctx context.Context, id string) (*models.Shift, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	shift, ok := r.db.shifts[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &shift, nil
}

func (r *shiftRepository) Claim(ctx context.Context, id, personnelID string, at time.Time) (interfaces.CASResult, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	shift, ok := r.db.shifts[id]
	if !ok || shift.Status != models.ShiftStatusPending || shift.IsClaimed() {
		return interfaces.CASConflict, nil
	}
	assignee := personnelID
	shift.AssignedPersonnelID = &assignee
	shift.Status = models.ShiftStatusAccepted
	shift.AcceptedAt = &at
	shift.UpdatedAt = at
	r.db.shifts[id] = shift
	return interfaces.CASApplied, nil
}

type assignmentRepository struct {
	db *DB
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.BookingAssignment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if assignment.ID == "" {
		assignment.ID = models.NewID()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now()
	}
	r.db.assignments[assignment.ID] = *assignment
	return nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (*models.BookingAssignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.assignments[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return &a, nil
}

func (r *assignmentRepository) CheckIn(ctx context.Context, id string, at models.Point, when time.Time) (interfaces.CASResult, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.assignments[id]
	if !ok || a.CheckInAt != nil {
		return interfaces.CASConflict, nil
	}
	lat, lng := at.Latitude, at.Longitude
	a.CheckInAt = &when
	a.CheckInLat = &lat
	a.CheckInLng = &lng
	a.AutoCheckedIn = true
	r.db.assignments[id] = a
	return interfaces.CASApplied, nil
}

func (r *assignmentRepository) CheckOut(ctx context.Context, id string, at models.Point, when time.Time) (interfaces.CASResult, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.assignments[id]
	if !ok || a.CheckInAt == nil || a.CheckOutAt != nil {
		return interfaces.CASConflict, nil
	}
	lat, lng := at.Latitude, at.Longitude
	a.CheckOutAt = &when
	a.CheckOutLat = &lat
	a.CheckOutLng = &lng
	a.AutoCheckedOut = true
	r.db.assignments[id] = a
	return interfaces.CASApplied, nil
}

type geofenceRepository struct {
	db *DB
}

func (r *geofenceRepository) Create(ctx context.Context, geofence *models.Geofence) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if geofence.ID == "" {
		geofence.ID = models.NewID()
	}
	if geofence.CreatedAt.IsZero() {
		geofence.CreatedAt = time.Now()
	}
	r.db.geofences[geofence.ID] = *geofence
	return nil
}

func (r *geofenceRepository) ListActiveForBooking(ctx context.Context, bookingID string) ([]*models.Geofence, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var fences []*models.Geofence
	for _, g := range r.db.geofences {
		if g.BookingID == bookingID && g.IsActive {
			fence := g
			fences = append(fences, &fence)
		}
	}
	sort.Slice(fences, func(i, j int) bool { return fences[i].ID < fences[j].ID })
	return fences, nil
}

type geofenceEventRepository struct {
	db *DB
}

func (r *geofenceEventRepository) Create(ctx context.Context, event *models.GeofenceEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if event.ID == "" {
		event.ID = models.NewID()
	}
	r.db.events = append(r.db.events, *event)
	return nil
}

func (r *geofenceEventRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]*models.GeofenceEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var events []*models.GeofenceEvent
	for _, e := range r.db.events {
		if e.AssignmentID == assignmentID {
			event := e
			events = append(events, &event)
		}
	}
	return events, nil
}
