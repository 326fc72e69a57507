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

type assignmentRepository struct {
	db Querier
}

func NewAssignmentRepository(db Querier) interfaces.AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) Create(ctx context.Context, a *models.BookingAssignment) error {
	if a.ID == "" {
		a.ID = models.NewID()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO booking_assignments (id, booking_id, shift_id, personnel_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, a.ID, a.BookingID, a.ShiftID, a.PersonnelID).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create booking assignment: %w", err)
	}

	return nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (*models.BookingAssignment, error) {
	var a models.BookingAssignment
	err := r.db.QueryRow(ctx, `
		SELECT id, booking_id, shift_id, personnel_id,
			check_in_at, check_in_lat, check_in_lng,
			check_out_at, check_out_lat, check_out_lng,
			auto_checked_in, auto_checked_out, created_at
		FROM booking_assignments WHERE id = $1
	`, id).Scan(
		&a.ID, &a.BookingID, &a.ShiftID, &a.PersonnelID,
		&a.CheckInAt, &a.CheckInLat, &a.CheckInLng,
		&a.CheckOutAt, &a.CheckOutLat, &a.CheckOutLng,
		&a.AutoCheckedIn, &a.AutoCheckedOut, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking assignment: %w", err)
	}

	return &a, nil
}

func (r *assignmentRepository) CheckIn(ctx context.Context, id string, at models.Point, when time.Time) (interfaces.CASResult, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE booking_assignments
		SET check_in_at = $1, check_in_lat = $2, check_in_lng = $3, auto_checked_in = TRUE
		WHERE id = $4 AND check_in_at IS NULL
	`, when, at.Latitude, at.Longitude, id)
	if err != nil {
		return interfaces.CASConflict, fmt.Errorf("failed to check in: %w", err)
	}

	return interfaces.CASFromCount(tag.RowsAffected()), nil
}

func (r *assignmentRepository) CheckOut(ctx context.Context, id string, at models.Point, when time.Time) (interfaces.CASResult, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE booking_assignments
		SET check_out_at = $1, check_out_lat = $2, check_out_lng = $3, auto_checked_out = TRUE
		WHERE id = $4 AND check_in_at IS NOT NULL AND check_out_at IS NULL
	`, when, at.Latitude, at.Longitude, id)
	if err != nil {
		return interfaces.CASConflict, fmt.Errorf("failed to check out: %w", err)
	}

	return interfaces.CASFromCount(tag.RowsAffected()), nil
}
