package models

import (
	"time"
)

type ShiftStatus string

const (
	ShiftStatusPending    ShiftStatus = "pending"
	ShiftStatusAccepted   ShiftStatus = "accepted"
	ShiftStatusInProgress ShiftStatus = "in_progress"
	ShiftStatusCompleted  ShiftStatus = "completed"
	ShiftStatusCancelled  ShiftStatus = "cancelled"
)

// Shift is the unit of work being offered. AssignedPersonnelID moves from
// empty to non-empty at most once, and only through a conditional claim.
type Shift struct {
	ID                  string      `json:"id" bson:"_id"`
	VenueID             string      `json:"venue_id" bson:"venue_id"`
	BookingID           string      `json:"booking_id" bson:"booking_id"`
	Status              ShiftStatus `json:"status" bson:"status"`
	AssignedPersonnelID *string     `json:"assigned_personnel_id,omitempty" bson:"assigned_personnel_id"`
	AcceptedAt          *time.Time  `json:"accepted_at,omitempty" bson:"accepted_at,omitempty"`
	CreatedAt           time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at" bson:"updated_at"`
}

func (s *Shift) IsClaimed() bool {
	return s.AssignedPersonnelID != nil && *s.AssignedPersonnelID != ""
}
