package models

import (
	"time"
)

// BookingAssignment links a candidate to a booking and carries the
// attendance record. Check-in and check-out are each written at most once.
type BookingAssignment struct {
	ID             string     `json:"id" bson:"_id"`
	BookingID      string     `json:"booking_id" bson:"booking_id" validate:"required"`
	ShiftID        string     `json:"shift_id" bson:"shift_id"`
	PersonnelID    string     `json:"personnel_id" bson:"personnel_id" validate:"required"`
	CheckInAt      *time.Time `json:"check_in_at,omitempty" bson:"check_in_at"`
	CheckInLat     *float64   `json:"check_in_lat,omitempty" bson:"check_in_lat,omitempty"`
	CheckInLng     *float64   `json:"check_in_lng,omitempty" bson:"check_in_lng,omitempty"`
	CheckOutAt     *time.Time `json:"check_out_at,omitempty" bson:"check_out_at"`
	CheckOutLat    *float64   `json:"check_out_lat,omitempty" bson:"check_out_lat,omitempty"`
	CheckOutLng    *float64   `json:"check_out_lng,omitempty" bson:"check_out_lng,omitempty"`
	AutoCheckedIn  bool       `json:"auto_checked_in" bson:"auto_checked_in"`
	AutoCheckedOut bool       `json:"auto_checked_out" bson:"auto_checked_out"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
}
