package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardshift/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Migration struct {
	Version     int
	Description string
	Up          func(context.Context, *mongo.Database) error
	Down        func(context.Context, *mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
	log        *logger.Logger
}

func NewMigrator(db *mongo.Database, log *logger.Logger) *Migrator {
	return &Migrator{
		db:         db,
		migrations: getMigrations(),
		log:        log,
	}
}

func (m *Migrator) Up(ctx context.Context) error {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}

		m.log.Infof("Running migration %d: %s", migration.Version, migration.Description)

		if err := migration.Up(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if err := m.updateVersion(ctx, migration.Version); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) Down(ctx context.Context, targetVersion int) error {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if migration.Version > currentVersion || migration.Version <= targetVersion {
			continue
		}

		m.log.Infof("Reverting migration %d: %s", migration.Version, migration.Description)

		if err := migration.Down(ctx, m.db); err != nil {
			return fmt.Errorf("migration %d rollback failed: %w", migration.Version, err)
		}

		previousVersion := targetVersion
		if i > 0 {
			previousVersion = m.migrations[i-1].Version
		}

		if err := m.updateVersion(ctx, previousVersion); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) getCurrentVersion(ctx context.Context) (int, error) {
	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection("migrations").FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(ctx context.Context, version int) error {
	_, err := m.db.Collection("migrations").ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)

	return err
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create shift_offers indexes",
			Up: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection("shift_offers").Indexes().CreateMany(ctx, []mongo.IndexModel{
					{Keys: bson.D{{Key: "personnel_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
					{Keys: bson.D{{Key: "shift_id", Value: 1}, {Key: "status", Value: 1}}},
					{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
				})
				return err
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection("shift_offers").Indexes().DropAll(ctx)
				return err
			},
		},
		{
			Version:     2,
			Description: "Create shifts indexes",
			Up: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection("shifts").Indexes().CreateMany(ctx, []mongo.IndexModel{
					{Keys: bson.D{{Key: "status", Value: 1}}},
					{Keys: bson.D{{Key: "assigned_personnel_id", Value: 1}}},
				})
				return err
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				_, err := db.Collection("shifts").Indexes().DropAll(ctx)
				return err
			},
		},
		{
			Version:     3,
			Description: "Create geofence and attendance indexes",
			Up: func(ctx context.Context, db *mongo.Database) error {
				if _, err := db.Collection("geofences").Indexes().CreateOne(ctx, mongo.IndexModel{
					Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "is_active", Value: 1}},
				}); err != nil {
					return err
				}
				if _, err := db.Collection("geofence_events").Indexes().CreateOne(ctx, mongo.IndexModel{
					Keys: bson.D{{Key: "assignment_id", Value: 1}, {Key: "recorded_at", Value: 1}},
				}); err != nil {
					return err
				}
				_, err := db.Collection("booking_assignments").Indexes().CreateOne(ctx, mongo.IndexModel{
					Keys: bson.D{{Key: "personnel_id", Value: 1}, {Key: "booking_id", Value: 1}},
				})
				return err
			},
			Down: func(ctx context.Context, db *mongo.Database) error {
				for _, name := range []string{"geofences", "geofence_events", "booking_assignments"} {
					if _, err := db.Collection(name).Indexes().DropAll(ctx); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
