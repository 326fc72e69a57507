package config

import (
	"time"
)

const (
	// LostRaceRevert reverts the accepted offer and reports the loss to the user.
	LostRaceRevert = "revert"
	// LostRaceReportSuccess keeps the accepted offer and shows success anyway.
	LostRaceReportSuccess = "report_success"
)

type DispatchConfig struct {
	LostRacePolicy   string        `yaml:"lost_race_policy" validate:"oneof=revert report_success"`
	TickInterval     time.Duration `yaml:"tick_interval" validate:"gt=0"`
	AcceptedHold     time.Duration `yaml:"accepted_hold" validate:"gte=0"`
	WriteTimeout     time.Duration `yaml:"write_timeout" validate:"gt=0"`
	FirstShowPattern []int         `yaml:"first_show_pattern" validate:"dive,gte=0"`
	QueuedPattern    []int         `yaml:"queued_pattern" validate:"dive,gte=0"`
	ExpirySweep      time.Duration `yaml:"expiry_sweep" validate:"gte=0"`
	SeenRetention    time.Duration `yaml:"seen_retention" validate:"gte=0"`
}

func loadDispatchConfig() *DispatchConfig {
	return &DispatchConfig{
		LostRacePolicy:   getEnv("DISPATCH_LOST_RACE_POLICY", LostRaceRevert),
		TickInterval:     getEnvAsDuration("DISPATCH_TICK_INTERVAL", time.Second),
		AcceptedHold:     getEnvAsDuration("DISPATCH_ACCEPTED_HOLD", 2*time.Second),
		WriteTimeout:     getEnvAsDuration("DISPATCH_WRITE_TIMEOUT", 10*time.Second),
		FirstShowPattern: getEnvAsIntSlice("DISPATCH_FIRST_SHOW_PATTERN", []int{0, 500, 200, 500, 200, 500}),
		QueuedPattern:    getEnvAsIntSlice("DISPATCH_QUEUED_PATTERN", []int{0, 250}),
		ExpirySweep:      getEnvAsDuration("DISPATCH_EXPIRY_SWEEP", 30*time.Second),
		SeenRetention:    getEnvAsDuration("DISPATCH_SEEN_RETENTION", 10*time.Minute),
	}
}
