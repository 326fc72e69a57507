package interfaces

import (
	"context"
	"time"

	"guardshift/internal/models"
)

type AssignmentRepository interface {
	Create(ctx context.Context, assignment *models.BookingAssignment) error
	GetByID(ctx context.Context, id string) (*models.BookingAssignment, error)

	// CheckIn applies only while check_in_at is unset.
	CheckIn(ctx context.Context, id string, at models.Point, when time.Time) (CASResult, error)
	// CheckOut applies only while check_in_at is set and check_out_at is unset.
	CheckOut(ctx context.Context, id string, at models.Point, when time.Time) (CASResult, error)
}
