package push

import (
	"context"
	"testing"
	"time"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	sent []*Notification
}

func (s *stubProvider) Send(ctx context.Context, n *Notification) (*Result, error) {
	s.sent = append(s.sent, n)
	return &Result{MessageID: "m1", Token: n.Token}, nil
}

func TestRouter_PicksProviderByPlatform(t *testing.T) {
	fcm, apns := &stubProvider{}, &stubProvider{}
	r := &Router{FCM: fcm, APNS: apns}

	_, err := r.Send(context.Background(), PlatformAndroid, &Notification{Token: "a"})
	require.NoError(t, err)
	_, err = r.Send(context.Background(), PlatformIOS, &Notification{Token: "i"})
	require.NoError(t, err)

	assert.Len(t, fcm.sent, 1)
	assert.Len(t, apns.sent, 1)

	_, err = r.Send(context.Background(), "web", &Notification{Token: "w"})
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = (&Router{}).Send(context.Background(), PlatformIOS, &Notification{Token: "i"})
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestRouter_FillsChannelAndSound(t *testing.T) {
	fcm := &stubProvider{}
	r := &Router{FCM: fcm, Channel: "shift_offers", Sound: "default"}

	original := &Notification{Token: "a"}
	_, err := r.Send(context.Background(), PlatformAndroid, original)
	require.NoError(t, err)
	_, err = r.Send(context.Background(), PlatformAndroid, &Notification{Token: "b", Channel: "urgent", Sound: "alarm.caf"})
	require.NoError(t, err)

	require.Len(t, fcm.sent, 2)
	assert.Equal(t, "shift_offers", fcm.sent[0].Channel)
	assert.Equal(t, "default", fcm.sent[0].Sound)
	assert.Empty(t, original.Channel)
	assert.Equal(t, "urgent", fcm.sent[1].Channel)
	assert.Equal(t, "alarm.caf", fcm.sent[1].Sound)
}

func TestBuildFCMMessage(t *testing.T) {
	msg := buildFCMMessage(&Notification{
		Token:       "tok",
		Title:       "New shift",
		Body:        "Venue",
		Data:        map[string]string{"type": "new_shift_offer"},
		CollapseKey: "offer-1",
		TTL:         30 * time.Second,
		Urgent:      true,
		Channel:     "shift_offers",
	})

	assert.Equal(t, "tok", msg.Token)
	assert.Equal(t, "high", msg.Android.Priority)
	assert.Equal(t, "offer-1", msg.Android.CollapseKey)
	require.NotNil(t, msg.Android.TTL)
	assert.Equal(t, 30*time.Second, *msg.Android.TTL)
	assert.Equal(t, "new_shift_offer", msg.Data["type"])
	assert.Equal(t, "shift_offers", msg.Android.Notification.ChannelID)
}

func TestBuildAPNSNotification(t *testing.T) {
	n := buildAPNSNotification("com.example.guard", &Notification{
		Token:       "tok",
		Title:       "New shift",
		CollapseKey: "offer-1",
		Data:        map[string]string{"shift_id": "s1"},
		Channel:     "shift_offers",
	})

	assert.Equal(t, "com.example.guard", n.Topic)
	assert.Equal(t, apns2.PriorityLow, n.Priority)
	assert.Equal(t, "offer-1", n.CollapseID)
	assert.True(t, n.Expiration.IsZero())

	body, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"shift_id":"s1"`)
	assert.Contains(t, string(body), `"title":"New shift"`)
	assert.Contains(t, string(body), `"thread-id":"shift_offers"`)
}
