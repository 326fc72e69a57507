package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"guardshift/internal/models"
	"guardshift/pkg/database"
	"guardshift/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource listens on the channel fed by the shift_offers insert
// trigger. Each stream holds one pooled connection for its lifetime.
type PostgresSource struct {
	pool    *pgxpool.Pool
	channel string
	logger  *logger.Logger
}

func NewPostgresSource(pool *pgxpool.Pool, log *logger.Logger) *PostgresSource {
	return &PostgresSource{
		pool:    pool,
		channel: database.OfferInsertedChannel,
		logger:  log,
	}
}

func (s *PostgresSource) Stream(ctx context.Context, personnelID string, live func(), deliver func(*models.ShiftOffer)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.channel, err)
	}
	defer func() {
		if !conn.Conn().IsClosed() {
			_, _ = conn.Exec(context.Background(), "UNLISTEN *")
		}
	}()

	live()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("offer notification stream failed: %w", err)
		}

		var offer models.ShiftOffer
		if err := json.Unmarshal([]byte(notification.Payload), &offer); err != nil {
			s.logger.WithError(err).Warn("Dropping undecodable offer notification")
			continue
		}
		if offer.PersonnelID != personnelID {
			continue
		}
		deliver(&offer)
	}
}
