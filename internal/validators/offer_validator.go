package validators

import (
	"time"
)

type CreateShiftRequest struct {
	ID        string `json:"id" validate:"omitempty,max=64"`
	VenueID   string `json:"venue_id" validate:"required,max=64"`
	BookingID string `json:"booking_id" validate:"omitempty,max=64"`
}

type CreateOfferRequest struct {
	ShiftID        string    `json:"shift_id" validate:"required,max=64"`
	PersonnelID    string    `json:"personnel_id" validate:"required,max=64"`
	HourlyRate     float64   `json:"hourly_rate" validate:"gte=0,lte=10000"`
	VenueName      string    `json:"venue_name" validate:"required,max=255"`
	VenueAddress   string    `json:"venue_address" validate:"omitempty,max=255"`
	VenueLatitude  float64   `json:"venue_latitude" validate:"min=-90,max=90"`
	VenueLongitude float64   `json:"venue_longitude" validate:"min=-180,max=180"`
	ShiftDate      string    `json:"shift_date" validate:"required,iso_date"`
	StartTime      string    `json:"start_time" validate:"required,clock_time"`
	EndTime        string    `json:"end_time" validate:"required,clock_time"`
	DistanceKM     float64   `json:"distance_km" validate:"gte=0"`
	ExpiresAt      time.Time `json:"expires_at" validate:"required"`
}

type CreateGeofenceRequest struct {
	VenueID   string  `json:"venue_id" validate:"required,max=64"`
	BookingID string  `json:"booking_id" validate:"required,max=64"`
	Name      string  `json:"name" validate:"omitempty,max=255"`
	Address   string  `json:"address" validate:"omitempty,max=255"`
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Radius    float64 `json:"radius" validate:"gt=0,lte=100000"`
}

type CreateAssignmentRequest struct {
	BookingID   string `json:"booking_id" validate:"required,max=64"`
	ShiftID     string `json:"shift_id" validate:"omitempty,max=64"`
	PersonnelID string `json:"personnel_id" validate:"required,max=64"`
}

func ValidateCreateOffer(req *CreateOfferRequest, now time.Time) ValidationErrors {
	errs := ValidateStruct(req)

	if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(now) {
		errs = append(errs, ValidationError{
			Field:   "expires_at",
			Tag:     "future",
			Message: "expires_at must be in the future",
		})
	}

	return errs
}
