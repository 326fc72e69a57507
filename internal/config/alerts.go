package config

import (
	"time"
)

type AlertsConfig struct {
	DedupeTTL   time.Duration `yaml:"dedupe_ttl" validate:"gt=0"`
	SMSTemplate string        `yaml:"sms_template"`
}

func loadAlertsConfig() *AlertsConfig {
	return &AlertsConfig{
		DedupeTTL:   getEnvAsDuration("ALERTS_DEDUPE_TTL", 24*time.Hour),
		SMSTemplate: getEnv("ALERTS_SMS_TEMPLATE", "New shift at %s on %s, %.2f/h. Open the app to respond."),
	}
}
