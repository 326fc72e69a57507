package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"guardshift/internal/models"
	"guardshift/pkg/cache"
	"guardshift/pkg/logger"
)

// RedisSource reads offers published on the candidate's pub/sub channel.
type RedisSource struct {
	cache  *cache.RedisCache
	logger *logger.Logger
}

func NewRedisSource(c *cache.RedisCache, log *logger.Logger) *RedisSource {
	return &RedisSource{cache: c, logger: log}
}

func (s *RedisSource) Stream(ctx context.Context, personnelID string, live func(), deliver func(*models.ShiftOffer)) error {
	pubsub := s.cache.Subscribe(ctx, cache.OfferChannel(personnelID))
	defer pubsub.Close()

	// Wait for the subscription confirmation before reporting live.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to offer channel: %w", err)
	}

	live()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ErrStreamClosed
			}
			var offer models.ShiftOffer
			if err := json.Unmarshal([]byte(msg.Payload), &offer); err != nil {
				s.logger.WithError(err).Warn("Dropping undecodable offer message")
				continue
			}
			deliver(&offer)
		}
	}
}
