package config

import (
	"time"
)

type TrackingConfig struct {
	MinInterval    time.Duration `yaml:"min_interval" validate:"gte=0"`
	MinDistance    float64       `yaml:"min_distance_meters" validate:"gte=0"`
	PublishToRedis bool          `yaml:"publish_to_redis"`
}

func loadTrackingConfig() *TrackingConfig {
	return &TrackingConfig{
		MinInterval:    getEnvAsDuration("TRACKING_MIN_INTERVAL", 10*time.Second),
		MinDistance:    getEnvAsFloat64("TRACKING_MIN_DISTANCE_METERS", 10),
		PublishToRedis: getEnvAsBool("TRACKING_PUBLISH_TO_REDIS", true),
	}
}
