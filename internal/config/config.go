package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       *AppConfig       `yaml:"app" validate:"required"`
	Store     *StoreConfig     `yaml:"store" validate:"required"`
	Database  *DatabaseConfig  `yaml:"database" validate:"required"`
	Postgres  *PostgresConfig  `yaml:"postgres" validate:"required"`
	Redis     *RedisConfig     `yaml:"redis" validate:"required"`
	SMS       *SMSConfig       `yaml:"sms" validate:"required"`
	Push      *PushConfig      `yaml:"push" validate:"required"`
	WebSocket *WebSocketConfig `yaml:"websocket" validate:"required"`
	Security  *SecurityConfig  `yaml:"security" validate:"required"`
	Dispatch  *DispatchConfig  `yaml:"dispatch" validate:"required"`
	Feed      *FeedConfig      `yaml:"feed" validate:"required"`
	Tracking  *TrackingConfig  `yaml:"tracking" validate:"required"`
	Alerts    *AlertsConfig    `yaml:"alerts" validate:"required"`
	Maps      *MapsConfig      `yaml:"maps" validate:"required"`
}

type AppConfig struct {
	Name        string `yaml:"name" validate:"required"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment" validate:"oneof=development test staging production"`
	Port        int    `yaml:"port" validate:"min=1,max=65535"`
	Host        string `yaml:"host"`
	Debug       bool   `yaml:"debug"`
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn warning error fatal"`
	LogFormat   string `yaml:"log_format" validate:"oneof=json text"`
}

type SecurityConfig struct {
	JWTSecret          string        `yaml:"jwt_secret" validate:"required,min=16"`
	JWTAccessTokenTTL  time.Duration `yaml:"jwt_access_token_ttl" validate:"gt=0"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
	TrustedProxies     []string      `yaml:"trusted_proxies"`
}

// Load reads .env (if present), builds the configuration from the
// environment and then applies the YAML file named by CONFIG_FILE on top.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := LoadFromEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func LoadFromEnv() *Config {
	return &Config{
		App:       loadAppConfig(),
		Store:     loadStoreConfig(),
		Database:  loadDatabaseConfig(),
		Postgres:  loadPostgresConfig(),
		Redis:     loadRedisConfig(),
		SMS:       loadSMSConfig(),
		Push:      loadPushConfig(),
		WebSocket: loadWebSocketConfig(),
		Security:  loadSecurityConfig(),
		Dispatch:  loadDispatchConfig(),
		Feed:      loadFeedConfig(),
		Tracking:  loadTrackingConfig(),
		Alerts:    loadAlertsConfig(),
		Maps:      loadMapsConfig(),
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Feed.Source == FeedSourceMongo && c.Store.Driver != StoreDriverMongo {
		return fmt.Errorf("invalid configuration: feed source %q requires store driver %q", c.Feed.Source, StoreDriverMongo)
	}
	if c.Feed.Source == FeedSourcePostgres && c.Store.Driver != StoreDriverPostgres {
		return fmt.Errorf("invalid configuration: feed source %q requires store driver %q", c.Feed.Source, StoreDriverPostgres)
	}
	if c.Feed.Source == FeedSourceRedis && !c.Redis.Enabled {
		return fmt.Errorf("invalid configuration: feed source %q requires redis to be enabled", c.Feed.Source)
	}

	if err := c.SMS.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Push.Enabled {
		if fcm, apns := c.Push.Providers(); !fcm && !apns {
			return errors.New("invalid configuration: push enabled without FCM or complete APNs credentials")
		}
	}

	if c.Maps.Enabled && c.Maps.GoogleMaps.APIKey == "" {
		return errors.New("invalid configuration: maps enabled without GOOGLE_MAPS_API_KEY")
	}

	return nil
}

func loadAppConfig() *AppConfig {
	return &AppConfig{
		Name:        getEnv("APP_NAME", "guardshift"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnvAsInt("APP_PORT", 8080),
		Host:        getEnv("APP_HOST", "0.0.0.0"),
		Debug:       getEnvAsBool("APP_DEBUG", true),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
	}
}

func loadSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		JWTSecret:          getEnv("JWT_SECRET", "change-me-in-production-please"),
		JWTAccessTokenTTL:  getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		TrustedProxies:     getEnvAsSlice("TRUSTED_PROXIES", []string{}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsIntSlice parses a comma separated list such as "0,400,200,400".
func getEnvAsIntSlice(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}

func IsProduction() bool {
	return getEnv("APP_ENV", "development") == "production"
}

func IsDevelopment() bool {
	return getEnv("APP_ENV", "development") == "development"
}
