package postgres

import (
	"context"

	"guardshift/internal/repositories/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool the repositories use.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewStore(db Querier) *interfaces.Store {
	return &interfaces.Store{
		Offers:         NewOfferRepository(db),
		Shifts:         NewShiftRepository(db),
		Assignments:    NewAssignmentRepository(db),
		Geofences:      NewGeofenceRepository(db),
		GeofenceEvents: NewGeofenceEventRepository(db),
	}
}
