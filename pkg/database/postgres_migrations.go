package database

import (
	"context"
	"fmt"

	"guardshift/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OfferInsertedChannel is the NOTIFY channel fed by the shift_offers insert trigger.
const OfferInsertedChannel = "shift_offer_inserted"

type sqlMigration struct {
	Version     int
	Description string
	Statements  []string
}

var postgresMigrations = []sqlMigration{
	{
		Version:     1,
		Description: "Create offer and shift tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS shifts (
				id                    TEXT PRIMARY KEY,
				venue_id              TEXT NOT NULL DEFAULT '',
				booking_id            TEXT NOT NULL DEFAULT '',
				status                TEXT NOT NULL DEFAULT 'pending',
				assigned_personnel_id TEXT,
				accepted_at           TIMESTAMPTZ,
				created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS shift_offers (
				id              TEXT PRIMARY KEY,
				shift_id        TEXT NOT NULL REFERENCES shifts(id),
				personnel_id    TEXT NOT NULL,
				status          TEXT NOT NULL DEFAULT 'pending',
				hourly_rate     DOUBLE PRECISION NOT NULL DEFAULT 0,
				venue_name      TEXT NOT NULL DEFAULT '',
				venue_address   TEXT NOT NULL DEFAULT '',
				venue_latitude  DOUBLE PRECISION NOT NULL DEFAULT 0,
				venue_longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
				shift_date      TEXT NOT NULL DEFAULT '',
				start_time      TEXT NOT NULL DEFAULT '',
				end_time        TEXT NOT NULL DEFAULT '',
				distance_km     DOUBLE PRECISION NOT NULL DEFAULT 0,
				expires_at      TIMESTAMPTZ NOT NULL,
				responded_at    TIMESTAMPTZ,
				created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_shift_offers_personnel_status ON shift_offers (personnel_id, status, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_shift_offers_shift_status ON shift_offers (shift_id, status)`,
			`CREATE INDEX IF NOT EXISTS idx_shift_offers_expiry ON shift_offers (status, expires_at)`,
		},
	},
	{
		Version:     2,
		Description: "Create attendance tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS booking_assignments (
				id               TEXT PRIMARY KEY,
				booking_id       TEXT NOT NULL,
				shift_id         TEXT NOT NULL DEFAULT '',
				personnel_id     TEXT NOT NULL,
				check_in_at      TIMESTAMPTZ,
				check_in_lat     DOUBLE PRECISION,
				check_in_lng     DOUBLE PRECISION,
				check_out_at     TIMESTAMPTZ,
				check_out_lat    DOUBLE PRECISION,
				check_out_lng    DOUBLE PRECISION,
				auto_checked_in  BOOLEAN NOT NULL DEFAULT FALSE,
				auto_checked_out BOOLEAN NOT NULL DEFAULT FALSE,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS geofences (
				id         TEXT PRIMARY KEY,
				venue_id   TEXT NOT NULL,
				booking_id TEXT NOT NULL DEFAULT '',
				name       TEXT NOT NULL DEFAULT '',
				latitude   DOUBLE PRECISION NOT NULL,
				longitude  DOUBLE PRECISION NOT NULL,
				radius     DOUBLE PRECISION NOT NULL,
				is_active  BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS geofence_events (
				id              TEXT PRIMARY KEY,
				assignment_id   TEXT NOT NULL,
				geofence_id     TEXT NOT NULL,
				personnel_id    TEXT NOT NULL,
				type            TEXT NOT NULL,
				latitude        DOUBLE PRECISION NOT NULL,
				longitude       DOUBLE PRECISION NOT NULL,
				accuracy        DOUBLE PRECISION NOT NULL DEFAULT 0,
				distance_meters DOUBLE PRECISION NOT NULL DEFAULT 0,
				recorded_at     TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_geofences_booking ON geofences (booking_id) WHERE is_active`,
			`CREATE INDEX IF NOT EXISTS idx_geofence_events_assignment ON geofence_events (assignment_id, recorded_at)`,
		},
	},
	{
		Version:     3,
		Description: "Publish inserted offers on " + OfferInsertedChannel,
		Statements: []string{
			`CREATE OR REPLACE FUNCTION notify_shift_offer_inserted() RETURNS trigger AS $$
			BEGIN
				PERFORM pg_notify('` + OfferInsertedChannel + `', row_to_json(NEW)::text);
				RETURN NEW;
			END;
			$$ LANGUAGE plpgsql`,
			`DROP TRIGGER IF EXISTS shift_offer_inserted ON shift_offers`,
			`CREATE TRIGGER shift_offer_inserted AFTER INSERT ON shift_offers
				FOR EACH ROW EXECUTE FUNCTION notify_shift_offer_inserted()`,
		},
	},
}

// MigratePostgres applies every schema version newer than the recorded one.
// Each version runs in its own transaction.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range postgresMigrations {
		if m.Version <= current {
			continue
		}

		log.Infof("Running postgres migration %d: %s", m.Version, m.Description)

		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres migration %d failed: %w", m.Version, err)
		}
	}

	return nil
}
