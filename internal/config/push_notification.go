package config

// PushConfig drives the redundant offer alerts sent to devices that have no
// live socket. Offer pushes share one Android channel and one iOS thread so
// the OS groups them.
type PushConfig struct {
	Enabled      bool        `yaml:"enabled"`
	OfferChannel string      `yaml:"offer_channel" validate:"required"`
	OfferSound   string      `yaml:"offer_sound"`
	FCM          *FCMConfig  `yaml:"fcm"`
	APNS         *APNSConfig `yaml:"apns"`
}

type FCMConfig struct {
	ProjectID   string `yaml:"project_id"`
	Credentials string `yaml:"credentials_file"`
}

// APNSConfig uses token-based (.p8) authentication; the bundle id is the
// push topic.
type APNSConfig struct {
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	BundleID   string `yaml:"bundle_id"`
	KeyFile    string `yaml:"key_file"`
	Production bool   `yaml:"production"`
}

func (p *PushConfig) fcmReady() bool {
	return p.FCM != nil && p.FCM.ProjectID != ""
}

func (p *PushConfig) apnsReady() bool {
	return p.APNS != nil && p.APNS.KeyFile != "" && p.APNS.KeyID != "" && p.APNS.TeamID != "" && p.APNS.BundleID != ""
}

// Providers reports which platforms have complete credentials.
func (p *PushConfig) Providers() (fcm, apns bool) {
	return p.fcmReady(), p.apnsReady()
}

func loadPushConfig() *PushConfig {
	return &PushConfig{
		Enabled:      getEnvAsBool("PUSH_ENABLED", false),
		OfferChannel: getEnv("PUSH_OFFER_CHANNEL", "shift_offers"),
		OfferSound:   getEnv("PUSH_OFFER_SOUND", "default"),
		FCM: &FCMConfig{
			ProjectID:   getEnv("FCM_PROJECT_ID", ""),
			Credentials: getEnv("FCM_CREDENTIALS_FILE", ""),
		},
		APNS: &APNSConfig{
			KeyID:      getEnv("APNS_KEY_ID", ""),
			TeamID:     getEnv("APNS_TEAM_ID", ""),
			BundleID:   getEnv("APNS_BUNDLE_ID", ""),
			KeyFile:    getEnv("APNS_KEY_FILE", ""),
			Production: getEnvAsBool("APNS_PRODUCTION", false),
		},
	}
}
