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

const offerColumns = `id, shift_id, personnel_id, status, hourly_rate, venue_name, venue_address,
	venue_latitude, venue_longitude, shift_date, start_time, end_time, distance_km,
	expires_at, responded_at, created_at`

type offerRepository struct {
	db Querier
}

func NewOfferRepository(db Querier) interfaces.OfferRepository {
	return &offerRepository{db: db}
}

func scanOffer(row pgx.Row) (*models.ShiftOffer, error) {
	var o models.ShiftOffer
	err := row.Scan(
		&o.ID, &o.ShiftID, &o.PersonnelID, &o.Status, &o.HourlyRate, &o.VenueName, &o.VenueAddress,
		&o.VenueLatitude, &o.VenueLongitude, &o.ShiftDate, &o.StartTime, &o.EndTime, &o.DistanceKM,
		&o.ExpiresAt, &o.RespondedAt, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *offerRepository) Create(ctx context.Context, offer *models.ShiftOffer) error {
	if offer.ID == "" {
		offer.ID = models.NewID()
	}
	if offer.Status == "" {
		offer.Status = models.OfferStatusPending
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO shift_offers (id, shift_id, personnel_id, status, hourly_rate, venue_name, venue_address,
			venue_latitude, venue_longitude, shift_date, start_time, end_time, distance_km, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`,
		offer.ID, offer.ShiftID, offer.PersonnelID, offer.Status, offer.HourlyRate, offer.VenueName, offer.VenueAddress,
		offer.VenueLatitude, offer.VenueLongitude, offer.ShiftDate, offer.StartTime, offer.EndTime, offer.DistanceKM,
		offer.ExpiresAt,
	).Scan(&offer.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create shift offer: %w", err)
	}

	return nil
}

func (r *offerRepository) GetByID(ctx context.Context, id string) (*models.ShiftOffer, error) {
	offer, err := scanOffer(r.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM shift_offers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shift offer: %w", err)
	}
	return offer, nil
}

func (r *offerRepository) ListPendingForPersonnel(ctx context.Context, personnelID string) ([]*models.ShiftOffer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+offerColumns+`
		FROM shift_offers
		WHERE personnel_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`, personnelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending offers: %w", err)
	}
	defer rows.Close()

	var offers []*models.ShiftOffer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift offer: %w", err)
		}
		offers = append(offers, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shift offers: %w", err)
	}

	return offers, nil
}

func (r *offerRepository) transition(ctx context.Context, id string, from, to models.OfferStatus, at time.Time) (interfaces.CASResult, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE shift_offers
		SET status = $1, responded_at = $2
		WHERE id = $3 AND status = $4
	`, string(to), at, id, string(from))
	if err != nil {
		return interfaces.CASConflict, fmt.Errorf("failed to move offer %s from %s to %s: %w", id, from, to, err)
	}

	return interfaces.CASFromCount(tag.RowsAffected()), nil
}

func (r *offerRepository) MarkAccepted(ctx context.Context, id string, at time.Time) (interfaces.CASResult, error) {
	return r.transition(ctx, id, models.OfferStatusPending, models.OfferStatusAccepted, at)
}

func (r *offerRepository) MarkDeclined(ctx context.Context, id string, at time.Time) (interfaces.CASResult, error) {
	return r.transition(ctx, id, models.OfferStatusPending, models.OfferStatusDeclined, at)
}

func (r *offerRepository) RevertAccepted(ctx context.Context, id string, at time.Time) (interfaces.CASResult, error) {
	return r.transition(ctx, id, models.OfferStatusAccepted, models.OfferStatusExpired, at)
}

func (r *offerRepository) ReopenAccepted(ctx context.Context, id string) (interfaces.CASResult, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE shift_offers
		SET status = 'pending', responded_at = NULL
		WHERE id = $1 AND status = 'accepted'
	`, id)
	if err != nil {
		return interfaces.CASConflict, fmt.Errorf("failed to reopen offer %s: %w", id, err)
	}

	return interfaces.CASFromCount(tag.RowsAffected()), nil
}

func (r *offerRepository) ExpireSiblings(ctx context.Context, shiftID, exceptOfferID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE shift_offers
		SET status = 'expired'
		WHERE shift_id = $1 AND id <> $2 AND status = 'pending'
	`, shiftID, exceptOfferID)
	if err != nil {
		return 0, fmt.Errorf("failed to expire sibling offers: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *offerRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE shift_offers
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue offers: %w", err)
	}
	return tag.RowsAffected(), nil
}
