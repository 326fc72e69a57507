package config

import (
	"time"
)

const (
	FeedSourceMongo    = "mongodb"
	FeedSourcePostgres = "postgres"
	FeedSourceRedis    = "redis"
	FeedSourceMemory   = "memory"
)

type FeedConfig struct {
	Source         string        `yaml:"source" validate:"oneof=mongodb postgres redis memory"`
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gt=0"`
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gtefield=InitialBackoff"`
	BackoffFactor  float64       `yaml:"backoff_factor" validate:"gte=1"`
	BackoffJitter  float64       `yaml:"backoff_jitter" validate:"gte=0,lte=1"`
	HealthyAfter   time.Duration `yaml:"healthy_after" validate:"gte=0"`
	AlertPattern   []int         `yaml:"alert_pattern" validate:"dive,gte=0"`
	Backfill       bool          `yaml:"backfill"`
}

func loadFeedConfig() *FeedConfig {
	return &FeedConfig{
		Source:         getEnv("FEED_SOURCE", FeedSourceMongo),
		InitialBackoff: getEnvAsDuration("FEED_INITIAL_BACKOFF", time.Second),
		MaxBackoff:     getEnvAsDuration("FEED_MAX_BACKOFF", 30*time.Second),
		BackoffFactor:  getEnvAsFloat64("FEED_BACKOFF_FACTOR", 2),
		BackoffJitter:  getEnvAsFloat64("FEED_BACKOFF_JITTER", 0.2),
		HealthyAfter:   getEnvAsDuration("FEED_HEALTHY_AFTER", 30*time.Second),
		AlertPattern:   getEnvAsIntSlice("FEED_ALERT_PATTERN", []int{0, 300, 100, 300}),
		Backfill:       getEnvAsBool("FEED_BACKFILL", true),
	}
}
