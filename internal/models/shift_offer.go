package models

import (
	"time"
)

type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusDeclined OfferStatus = "declined"
	OfferStatusExpired  OfferStatus = "expired"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s OfferStatus) IsTerminal() bool {
	return s == OfferStatusAccepted || s == OfferStatusDeclined || s == OfferStatusExpired
}

// ShiftOffer is an offer of one shift to one candidate.
type ShiftOffer struct {
	ID             string      `json:"id" bson:"_id"`
	ShiftID        string      `json:"shift_id" bson:"shift_id" validate:"required"`
	PersonnelID    string      `json:"personnel_id" bson:"personnel_id" validate:"required"`
	Status         OfferStatus `json:"status" bson:"status"`
	HourlyRate     float64     `json:"hourly_rate" bson:"hourly_rate"`
	VenueName      string      `json:"venue_name" bson:"venue_name"`
	VenueAddress   string      `json:"venue_address" bson:"venue_address"`
	VenueLatitude  float64     `json:"venue_latitude" bson:"venue_latitude"`
	VenueLongitude float64     `json:"venue_longitude" bson:"venue_longitude"`
	ShiftDate      string      `json:"shift_date" bson:"shift_date"`
	StartTime      string      `json:"start_time" bson:"start_time"`
	EndTime        string      `json:"end_time" bson:"end_time"`
	DistanceKM     float64     `json:"distance_km" bson:"distance_km"`
	ExpiresAt      time.Time   `json:"expires_at" bson:"expires_at"`
	RespondedAt    *time.Time  `json:"responded_at,omitempty" bson:"responded_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at" bson:"created_at"`
}

// ExpiredAt reports whether the offer's TTL has passed at now.
func (o *ShiftOffer) ExpiredAt(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// RemainingSeconds is max(0, floor((expires_at - now) / 1s)).
func (o *ShiftOffer) RemainingSeconds(now time.Time) int {
	remaining := o.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}
