package interfaces

import (
	"context"
	"time"

	"guardshift/internal/models"
)

type ShiftRepository interface {
	Create(ctx context.Context, shift *models.Shift) error
	GetByID(ctx context.Context, id string) (*models.Shift, error)

	// Claim assigns personnelID only while the shift is pending and has no
	// assignee. It is the single writer of the assignment field.
	Claim(ctx context.Context, id, personnelID string, at time.Time) (CASResult, error)
}
