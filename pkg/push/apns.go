package push

import (
	"context"
	"fmt"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

type APNSProvider struct {
	client *apns2.Client
	topic  string
}

func NewAPNSProvider(keyFile, keyID, teamID, topic string, production bool) (*APNSProvider, error) {
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSProvider{client: client, topic: topic}, nil
}

func (a *APNSProvider) Send(ctx context.Context, n *Notification) (*Result, error) {
	response, err := a.client.PushWithContext(ctx, buildAPNSNotification(a.topic, n))
	if err != nil {
		return nil, fmt.Errorf("apns push failed: %w", err)
	}
	if !response.Sent() {
		return nil, fmt.Errorf("apns rejected notification: %d %s", response.StatusCode, response.Reason)
	}
	return &Result{MessageID: response.ApnsID, Token: n.Token}, nil
}

func buildAPNSNotification(topic string, n *Notification) *apns2.Notification {
	p := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body)
	if n.Sound != "" {
		p = p.Sound(n.Sound)
	}
	if n.Channel != "" {
		p = p.ThreadID(n.Channel)
	}
	for k, v := range n.Data {
		p = p.Custom(k, v)
	}

	notification := &apns2.Notification{
		DeviceToken: n.Token,
		Topic:       topic,
		Payload:     p,
		PushType:    apns2.PushTypeAlert,
		CollapseID:  n.CollapseKey,
		Priority:    apns2.PriorityLow,
	}
	if n.Urgent {
		notification.Priority = apns2.PriorityHigh
	}
	if n.TTL > 0 {
		notification.Expiration = time.Now().Add(n.TTL)
	}
	return notification
}
