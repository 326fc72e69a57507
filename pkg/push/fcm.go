package push

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type FCMProvider struct {
	client *messaging.Client
}

func NewFCMProvider(ctx context.Context, projectID, credentialsFile string) (*FCMProvider, error) {
	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	return &FCMProvider{client: client}, nil
}

func (f *FCMProvider) Send(ctx context.Context, notification *Notification) (*Result, error) {
	id, err := f.client.Send(ctx, buildFCMMessage(notification))
	if err != nil {
		return nil, fmt.Errorf("fcm send failed: %w", err)
	}
	return &Result{MessageID: id, Token: notification.Token}, nil
}

func buildFCMMessage(n *Notification) *messaging.Message {
	priority := "normal"
	if n.Urgent {
		priority = "high"
	}

	android := &messaging.AndroidConfig{
		Priority:    priority,
		CollapseKey: n.CollapseKey,
		Notification: &messaging.AndroidNotification{
			Sound:     n.Sound,
			ChannelID: n.Channel,
			Tag:       n.CollapseKey,
		},
	}
	if n.TTL > 0 {
		ttl := n.TTL
		android.TTL = &ttl
	}

	return &messaging.Message{
		Token: n.Token,
		Data:  n.Data,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Android: android,
	}
}
