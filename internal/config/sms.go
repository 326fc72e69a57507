package config

import "fmt"

const (
	SMSProviderTwilio = "twilio"
	SMSProviderAWSSNS = "aws_sns"
)

// SMSConfig is the last-resort offer alert for candidates with no socket and
// no push registration.
type SMSConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Provider string        `yaml:"provider" validate:"oneof=twilio aws_sns"`
	Twilio   *TwilioConfig `yaml:"twilio"`
	AWS      *AWSSNSConfig `yaml:"aws"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

// AWSSNSConfig falls back to the default credential chain when the static
// key pair is empty.
type AWSSNSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SenderID        string `yaml:"sender_id"`
}

func (s *SMSConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	switch s.Provider {
	case SMSProviderTwilio:
		if s.Twilio == nil || s.Twilio.AccountSID == "" || s.Twilio.AuthToken == "" || s.Twilio.FromNumber == "" {
			return fmt.Errorf("sms provider %q needs TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER", s.Provider)
		}
	case SMSProviderAWSSNS:
		if s.AWS == nil || s.AWS.Region == "" {
			return fmt.Errorf("sms provider %q needs AWS_REGION", s.Provider)
		}
		if (s.AWS.AccessKeyID == "") != (s.AWS.SecretAccessKey == "") {
			return fmt.Errorf("sms provider %q needs both AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or neither", s.Provider)
		}
	}
	return nil
}

func loadSMSConfig() *SMSConfig {
	return &SMSConfig{
		Enabled:  getEnvAsBool("SMS_ENABLED", false),
		Provider: getEnv("SMS_PROVIDER", SMSProviderTwilio),
		Twilio: &TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		},
		AWS: &AWSSNSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SenderID:        getEnv("AWS_SNS_SENDER_ID", "GuardShift"),
		},
	}
}
