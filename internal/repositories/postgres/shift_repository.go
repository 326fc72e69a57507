package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"

	"github.com/jackc/pgx/v5"
)

type shiftRepository struct {
	db Querier
}

func NewShiftRepository(db Querier) interfaces.ShiftRepository {
	return &shiftRepository{db: db}
}

func (r *shiftRepository) Create(ctx context.Context, shift *models.Shift) error {
	if shift.ID == "" {
		shift.ID = models.NewID()
	}
	if shift.Status == "" {
		shift.Status = models.ShiftStatusPending
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO shifts (id, venue_id, booking_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, shift.ID, shift.VenueID, shift.BookingID, shift.Status).Scan(&shift.CreatedAt, &shift.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create shift: %w", err)
	}

	return nil
}

func (r *shiftRepository) GetByID(ctx context.Context, id string) (*models.Shift, error) {
	var s models.Shift
	err := r.db.QueryRow(ctx, `
		SELECT id, venue_id, booking_id, status, assigned_personnel_id, accepted_at, created_at, updated_at
		FROM shifts WHERE id = $1
	`, id).Scan(&s.ID, &s.VenueID, &s.BookingID, &s.Status, &s.AssignedPersonnelID, &s.AcceptedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}

	return &s, nil
}

// Claim relies on the row lock taken by UPDATE: concurrent claims on the same
// row serialize and re-evaluate the WHERE clause, so only the first applies.
func (r *shiftRepository) Claim(ctx context.Context, id, personnelID string, at time.Time) (interfaces.CASResult, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE shifts
		SET assigned_personnel_id = $1, status = 'accepted', accepted_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'pending' AND assigned_personnel_id IS NULL
	`, personnelID, at, id)
	if err != nil {
		return interfaces.CASConflict, fmt.Errorf("failed to claim shift: %w", err)
	}

	return interfaces.CASFromCount(tag.RowsAffected()), nil
}
