package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get and Position when the key or member is absent.
var ErrCacheMiss = errors.New("cache miss")

const (
	// PositionsKey is the GEO set holding each candidate's last known position.
	PositionsKey = "personnel:positions"

	offerChannelPrefix = "offers:personnel:"
	alertKeyPrefix     = "alerts:offer:"
	deviceKeyPrefix    = "devices:personnel:"
)

// OfferChannel is the pub/sub channel carrying new offers for one candidate.
func OfferChannel(personnelID string) string {
	return offerChannelPrefix + personnelID
}

// AlertKey guards a single alert delivery for one offer.
func AlertKey(offerID string) string {
	return alertKeyPrefix + offerID
}

// DeviceKey holds the push registration of one candidate's device.
func DeviceKey(personnelID string) string {
	return deviceKeyPrefix + personnelID
}

type RedisCache struct {
	client *redis.Client
	config *RedisConfig
}

type RedisConfig struct {
	// URL (redis:// or rediss://) takes precedence over Host and Port; hosted
	// providers hand out a single connection URL with credentials and TLS.
	URL          string
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Options converts the config into client options.
func (c *RedisConfig) Options() (*redis.Options, error) {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password: c.Password,
		DB:       c.DB,
	}
	if c.URL != "" {
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	}

	opts.PoolSize = c.PoolSize
	opts.MinIdleConns = c.MinIdleConns
	opts.DialTimeout = c.DialTimeout
	opts.ReadTimeout = c.ReadTimeout
	opts.WriteTimeout = c.WriteTimeout
	return opts, nil
}

func NewRedisCache(config *RedisConfig) (*RedisCache, error) {
	opts, err := config.Options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisCache{
		client: rdb,
		config: config,
	}, nil
}

// NewFromClient wraps an already configured client.
func NewFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Client() *redis.Client {
	return r.client
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// Once reports true for the first caller to claim key within ttl and false
// for every later caller.
func (r *RedisCache) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, "1", ttl).Result()
}

func (r *RedisCache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

func (r *RedisCache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return r.client.Subscribe(ctx, channels...)
}

// UpdatePosition records the last known position of a candidate.
func (r *RedisCache) UpdatePosition(ctx context.Context, personnelID string, latitude, longitude float64) error {
	return r.client.GeoAdd(ctx, PositionsKey, &redis.GeoLocation{
		Name:      personnelID,
		Latitude:  latitude,
		Longitude: longitude,
	}).Err()
}

// Position returns the last known position recorded by UpdatePosition.
func (r *RedisCache) Position(ctx context.Context, personnelID string) (latitude, longitude float64, err error) {
	positions, err := r.client.GeoPos(ctx, PositionsKey, personnelID).Result()
	if err != nil {
		return 0, 0, err
	}
	if len(positions) == 0 || positions[0] == nil {
		return 0, 0, ErrCacheMiss
	}
	return positions[0].Latitude, positions[0].Longitude, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
