package interfaces

import (
	"context"
	"time"

	"guardshift/internal/models"
)

type OfferRepository interface {
	Create(ctx context.Context, offer *models.ShiftOffer) error
	GetByID(ctx context.Context, id string) (*models.ShiftOffer, error)
	ListPendingForPersonnel(ctx context.Context, personnelID string) ([]*models.ShiftOffer, error)

	// Conditional transitions. Each applies only while the offer is still
	// in the expected prior status.
	MarkAccepted(ctx context.Context, id string, at time.Time) (CASResult, error)
	MarkDeclined(ctx context.Context, id string, at time.Time) (CASResult, error)
	RevertAccepted(ctx context.Context, id string, at time.Time) (CASResult, error)
	// ReopenAccepted moves an accepted offer back to pending and clears its
	// response time. Used when the shift claim could not be attempted.
	ReopenAccepted(ctx context.Context, id string) (CASResult, error)

	// ExpireSiblings moves every other pending offer for shiftID to expired.
	ExpireSiblings(ctx context.Context, shiftID, exceptOfferID string) (int64, error)
	// ExpireOverdue moves pending offers whose expires_at has passed to expired.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}
