package push

import (
	"context"
	"errors"
	"time"
)

const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

var ErrUnsupportedPlatform = errors.New("unsupported push platform")

// Provider delivers one notification to one device token.
type Provider interface {
	Send(ctx context.Context, notification *Notification) (*Result, error)
}

type Notification struct {
	Token       string            `json:"token"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	CollapseKey string            `json:"collapse_key,omitempty"`
	TTL         time.Duration     `json:"ttl,omitempty"`
	// Channel is the Android notification channel and the iOS thread id.
	Channel string `json:"channel,omitempty"`
	Sound   string `json:"sound,omitempty"`
	// Urgent asks the platform for immediate, screen-waking delivery.
	Urgent bool `json:"urgent"`
}

type Result struct {
	MessageID string `json:"message_id"`
	Token     string `json:"token"`
}

// Router picks the provider for a device platform. Either may be nil.
// Channel and Sound fill in notifications that do not set their own.
type Router struct {
	FCM  Provider
	APNS Provider

	Channel string
	Sound   string
}

func (r *Router) Send(ctx context.Context, platform string, notification *Notification) (*Result, error) {
	var provider Provider
	switch platform {
	case PlatformAndroid:
		provider = r.FCM
	case PlatformIOS:
		provider = r.APNS
	}
	if provider == nil {
		return nil, ErrUnsupportedPlatform
	}

	n := *notification
	if n.Channel == "" {
		n.Channel = r.Channel
	}
	if n.Sound == "" {
		n.Sound = r.Sound
	}
	return provider.Send(ctx, &n)
}
