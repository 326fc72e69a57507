package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"guardshift/internal/models"
	"guardshift/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySource_DeliversToMatchingStreams(t *testing.T) {
	src := NewMemorySource()
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu  sync.Mutex
		got []string
	)
	live := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- src.Stream(ctx, "p1", func() { close(live) }, func(o *models.ShiftOffer) {
			mu.Lock()
			got = append(got, o.ID)
			mu.Unlock()
		})
	}()
	<-live
	assert.Equal(t, 1, src.Streams("p1"))

	require.NoError(t, src.Publish(ctx, cache.OfferChannel("p1"), pendingOffer("o1", "p1")))
	require.NoError(t, src.Publish(ctx, cache.OfferChannel("p2"), pendingOffer("o2", "p2")))
	assert.Error(t, src.Publish(ctx, cache.OfferChannel("p1"), "not an offer"))

	mu.Lock()
	assert.Equal(t, []string{"o1"}, got)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("stream did not return after cancel")
	}
	assert.Zero(t, src.Streams("p1"))
}
