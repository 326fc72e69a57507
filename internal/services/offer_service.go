package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"
	"guardshift/internal/utils"
	"guardshift/internal/validators"
	"guardshift/pkg/cache"
	"guardshift/pkg/logger"
	"guardshift/pkg/maps"

	"github.com/robfig/cron/v3"
)

var ErrShiftNotOpen = errors.New("shift is not open for offers")

// OfferPublisher fans a new offer out on the candidate's pub/sub channel.
type OfferPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// OfferAlerter is told about every created offer so it can reach devices
// that are not connected.
type OfferAlerter interface {
	OfferCreated(ctx context.Context, offer *models.ShiftOffer)
}

// OfferService is the back-office surface standing in for the allocation
// process: it creates shifts, offers, geofences and assignments, and runs
// the passive expiry sweep.
type OfferService interface {
	CreateShift(ctx context.Context, req *validators.CreateShiftRequest) (*models.Shift, error)
	CreateOffer(ctx context.Context, req *validators.CreateOfferRequest) (*models.ShiftOffer, error)
	CreateGeofence(ctx context.Context, req *validators.CreateGeofenceRequest) (*models.Geofence, error)
	CreateAssignment(ctx context.Context, req *validators.CreateAssignmentRequest) (*models.BookingAssignment, error)
	GetOffer(ctx context.Context, id string) (*models.ShiftOffer, error)
	ExpireOverdue(ctx context.Context) (int64, error)
	RunExpirySweep(ctx context.Context, interval time.Duration)
}

type offerService struct {
	store     *interfaces.Store
	publisher OfferPublisher
	alerter   OfferAlerter
	geocoder  maps.Geocoder
	now       func() time.Time
	logger    *logger.Logger
}

// NewOfferService wires the admin operations. publisher, alerter and
// geocoder are optional.
func NewOfferService(store *interfaces.Store, publisher OfferPublisher, alerter OfferAlerter, geocoder maps.Geocoder, log *logger.Logger) OfferService {
	return &offerService{
		store:     store,
		publisher: publisher,
		alerter:   alerter,
		geocoder:  geocoder,
		now:       time.Now,
		logger:    log,
	}
}

func (s *offerService) CreateShift(ctx context.Context, req *validators.CreateShiftRequest) (*models.Shift, error) {
	if errs := validators.ValidateStruct(req); len(errs) > 0 {
		return nil, errs
	}

	now := s.now()
	shift := &models.Shift{
		ID:        req.ID,
		VenueID:   req.VenueID,
		BookingID: req.BookingID,
		Status:    models.ShiftStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if shift.ID == "" {
		shift.ID = models.NewID()
	}

	if err := s.store.Shifts.Create(ctx, shift); err != nil {
		return nil, fmt.Errorf("failed to create shift: %w", err)
	}
	return shift, nil
}

func (s *offerService) CreateOffer(ctx context.Context, req *validators.CreateOfferRequest) (*models.ShiftOffer, error) {
	now := s.now()
	if errs := validators.ValidateCreateOffer(req, now); len(errs) > 0 {
		return nil, errs
	}

	shift, err := s.store.Shifts.GetByID(ctx, req.ShiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shift: %w", err)
	}
	if shift.Status != models.ShiftStatusPending || shift.IsClaimed() {
		return nil, ErrShiftNotOpen
	}

	offer := &models.ShiftOffer{
		ID:             models.NewID(),
		ShiftID:        req.ShiftID,
		PersonnelID:    req.PersonnelID,
		Status:         models.OfferStatusPending,
		HourlyRate:     req.HourlyRate,
		VenueName:      req.VenueName,
		VenueAddress:   req.VenueAddress,
		VenueLatitude:  req.VenueLatitude,
		VenueLongitude: req.VenueLongitude,
		ShiftDate:      req.ShiftDate,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		DistanceKM:     req.DistanceKM,
		ExpiresAt:      req.ExpiresAt,
		CreatedAt:      now,
	}
	if err := s.store.Offers.Create(ctx, offer); err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	log := s.logger.WithOfferID(offer.ID).WithUserID(offer.PersonnelID)
	log.LogOfferEvent(offer.ID, utils.EventOfferCreated, map[string]interface{}{
		"shift_id":   offer.ShiftID,
		"expires_at": offer.ExpiresAt,
	})

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, cache.OfferChannel(offer.PersonnelID), offer); err != nil {
			log.WithError(err).Warn("Failed to publish offer")
		}
	}
	if s.alerter != nil {
		s.alerter.OfferCreated(ctx, offer)
	}

	return offer, nil
}

func (s *offerService) CreateGeofence(ctx context.Context, req *validators.CreateGeofenceRequest) (*models.Geofence, error) {
	if errs := validators.ValidateStruct(req); len(errs) > 0 {
		return nil, errs
	}

	lat, lng := req.Latitude, req.Longitude
	if lat == 0 && lng == 0 && req.Address != "" {
		if s.geocoder == nil {
			return nil, validators.ValidationErrors{{
				Field:   "latitude",
				Tag:     "required",
				Message: "coordinates are required when geocoding is disabled",
			}}
		}
		loc, err := s.geocoder.Geocode(ctx, req.Address)
		if errors.Is(err, maps.ErrNoResults) {
			return nil, validators.ValidationErrors{{
				Field:   "address",
				Tag:     "geocode",
				Value:   req.Address,
				Message: "address could not be located",
			}}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to geocode venue: %w", err)
		}
		lat, lng = loc.Latitude, loc.Longitude
	}

	geofence := &models.Geofence{
		ID:        models.NewID(),
		VenueID:   req.VenueID,
		BookingID: req.BookingID,
		Name:      req.Name,
		Latitude:  lat,
		Longitude: lng,
		Radius:    req.Radius,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	if err := s.store.Geofences.Create(ctx, geofence); err != nil {
		return nil, fmt.Errorf("failed to create geofence: %w", err)
	}
	return geofence, nil
}

func (s *offerService) CreateAssignment(ctx context.Context, req *validators.CreateAssignmentRequest) (*models.BookingAssignment, error) {
	if errs := validators.ValidateStruct(req); len(errs) > 0 {
		return nil, errs
	}

	assignment := &models.BookingAssignment{
		ID:          models.NewID(),
		BookingID:   req.BookingID,
		ShiftID:     req.ShiftID,
		PersonnelID: req.PersonnelID,
		CreatedAt:   s.now(),
	}
	if err := s.store.Assignments.Create(ctx, assignment); err != nil {
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}
	return assignment, nil
}

func (s *offerService) GetOffer(ctx context.Context, id string) (*models.ShiftOffer, error) {
	return s.store.Offers.GetByID(ctx, id)
}

func (s *offerService) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.store.Offers.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue offers: %w", err)
	}
	if n > 0 {
		s.logger.WithField("count", n).Info("Expired overdue offers")
	}
	return n, nil
}

// RunExpirySweep schedules ExpireOverdue every interval and blocks until
// ctx is done. A run still in progress when the next one is due is skipped.
// Intervals below one second are rounded up by the scheduler.
func (s *offerService) RunExpirySweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	log := s.logger.WithField("job", "offer_expiry_sweep")

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))
	if _, err := c.AddFunc("@every "+interval.String(), func() {
		if _, err := s.ExpireOverdue(ctx); err != nil {
			log.WithError(err).Warn("Expiry sweep failed")
		}
	}); err != nil {
		log.WithError(err).Error("Failed to schedule expiry sweep")
		return
	}

	c.Start()
	log.WithField("every", interval.String()).Info("Expiry sweep started")

	<-ctx.Done()
	<-c.Stop().Done()
}

// cronLogger routes scheduler messages into the service logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(cronFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(cronFields(keysAndValues)).Error(msg)
}

func cronFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
