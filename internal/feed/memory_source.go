package feed

import (
	"context"
	"fmt"
	"sync"

	"guardshift/internal/models"
	"guardshift/pkg/cache"
)

// MemorySource is an in-process offer bus. It is both the publisher the
// offer service writes to and the Source subscribers read from, so it only
// serves single-instance deployments.
type MemorySource struct {
	mu     sync.Mutex
	subs   map[string]map[int]func(*models.ShiftOffer)
	nextID int
}

func NewMemorySource() *MemorySource {
	return &MemorySource{subs: make(map[string]map[int]func(*models.ShiftOffer))}
}

// Publish delivers message, which must be a *models.ShiftOffer, to every
// stream open on channel.
func (m *MemorySource) Publish(ctx context.Context, channel string, message interface{}) error {
	offer, ok := message.(*models.ShiftOffer)
	if !ok {
		return fmt.Errorf("memory feed: unsupported message %T", message)
	}

	m.mu.Lock()
	targets := make([]func(*models.ShiftOffer), 0, len(m.subs[channel]))
	for _, fn := range m.subs[channel] {
		targets = append(targets, fn)
	}
	m.mu.Unlock()

	for _, deliver := range targets {
		o := *offer
		deliver(&o)
	}
	return nil
}

func (m *MemorySource) Stream(ctx context.Context, personnelID string, live func(), deliver func(*models.ShiftOffer)) error {
	channel := cache.OfferChannel(personnelID)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[int]func(*models.ShiftOffer))
	}
	m.subs[channel][id] = deliver
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subs[channel], id)
		if len(m.subs[channel]) == 0 {
			delete(m.subs, channel)
		}
		m.mu.Unlock()
	}()

	live()
	<-ctx.Done()
	return ctx.Err()
}

// Streams reports how many streams are open for personnelID.
func (m *MemorySource) Streams(personnelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[cache.OfferChannel(personnelID)])
}
