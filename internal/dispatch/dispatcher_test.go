package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"guardshift/internal/alert"
	"guardshift/internal/models"
	"guardshift/internal/services"
	"guardshift/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	heavy = []int{0, 500, 200, 500}
	light = []int{0, 100}
)

type fakeClaims struct {
	mu        sync.Mutex
	acceptErr error
	block     chan struct{}
	accepted  []string
	declined  []string
}

func (f *fakeClaims) Accept(ctx context.Context, offer *models.ShiftOffer) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, offer.ID)
	return f.acceptErr
}

func (f *fakeClaims) Decline(ctx context.Context, offer *models.ShiftOffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declined = append(f.declined, offer.ID)
}

func (f *fakeClaims) declines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.declined...)
}

func (f *fakeClaims) accepts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.accepted...)
}

type recordingVibrator struct {
	mu       sync.Mutex
	patterns [][]int
}

func (v *recordingVibrator) Vibrate(pattern []int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.patterns = append(v.patterns, pattern)
}

func (v *recordingVibrator) all() [][]int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([][]int(nil), v.patterns...)
}

type harness struct {
	d        *Dispatcher
	clock    *ManualClock
	claims   *fakeClaims
	vibrator *recordingVibrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := NewManualClock(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC))
	claims := &fakeClaims{}
	vib := &recordingVibrator{}
	d := New(claims, vib, clock, Options{
		TickInterval:     time.Second,
		AcceptedHold:     2 * time.Second,
		WriteTimeout:     time.Second,
		FirstShowPattern: heavy,
		QueuedPattern:    light,
	}, logger.NewNop())
	t.Cleanup(d.Close)
	return &harness{d: d, clock: clock, claims: claims, vibrator: vib}
}

func (h *harness) offer(id string, ttl time.Duration) *models.ShiftOffer {
	return &models.ShiftOffer{
		ID:          id,
		ShiftID:     "shift-" + id,
		PersonnelID: "A",
		Status:      models.OfferStatusPending,
		ExpiresAt:   h.clock.Now().Add(ttl),
	}
}

func currentID(s Snapshot) string {
	if s.Offer == nil {
		return ""
	}
	return s.Offer.ID
}

func TestOffer_ExpiresAfterCountdownWithoutWrites(t *testing.T) {
	h := newHarness(t)
	h.d.Offer(h.offer("O1", 30*time.Second))

	snap := h.d.Snapshot()
	assert.Equal(t, StateShowing, snap.State)
	assert.Equal(t, 30, snap.RemainingSeconds)

	h.clock.Advance(29 * time.Second)
	snap = h.d.Snapshot()
	assert.Equal(t, StateShowing, snap.State)
	assert.Equal(t, 1, snap.RemainingSeconds)

	h.clock.Advance(2 * time.Second)
	snap = h.d.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Offer)
	assert.Equal(t, OutcomeExpired, snap.LastOutcome)

	assert.Empty(t, h.claims.accepts())
	assert.Empty(t, h.claims.declines())
	assert.Equal(t, 0, h.clock.Pending())
}

func TestOffer_RemainingSecondsFloorsPartialSeconds(t *testing.T) {
	h := newHarness(t)
	h.d.Offer(h.offer("O1", 4500*time.Millisecond))
	assert.Equal(t, 4, h.d.Snapshot().RemainingSeconds)
}

func TestOffer_AlreadyExpiredArrivalExpiresOnFirstTick(t *testing.T) {
	h := newHarness(t)
	h.d.Offer(h.offer("O1", -time.Minute))

	snap := h.d.Snapshot()
	assert.Equal(t, StateShowing, snap.State)
	assert.Equal(t, 0, snap.RemainingSeconds)

	h.clock.Advance(time.Second)
	assert.Equal(t, StateIdle, h.d.Snapshot().State)
}

func TestQueue_DeclineAdvancesInArrivalOrder(t *testing.T) {
	h := newHarness(t)
	h.d.Offer(h.offer("O1", time.Minute))
	h.d.Offer(h.offer("O2", time.Minute))
	h.d.Offer(h.offer("O3", time.Minute))

	snap := h.d.Snapshot()
	assert.Equal(t, "O1", currentID(snap))
	assert.Equal(t, 2, snap.Queued)

	require.NoError(t, h.d.Decline())

	snap = h.d.Snapshot()
	assert.Equal(t, "O2", currentID(snap))
	assert.Equal(t, 1, snap.Queued)
	assert.Equal(t, OutcomeDeclined, snap.LastOutcome)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"O1"}, h.claims.declines())
	}, time.Second, 5*time.Millisecond)
}

func TestQueue_SkipsOffersThatExpiredWhileQueued(t *testing.T) {
	h := newHarness(t)
	h.d.Offer(h.offer("O1", time.Minute))
	h.d.Offer(h.offer("O2", 5*time.Second))
	h.d.Offer(h.offer("O3", 2*time.Minute))
	h.d.Offer(h.offer("O4", 3*time.Minute))

	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.d.Dismiss())

	snap := h.d.Snapshot()
	assert.Equal(t, "O3", currentID(snap))
	assert.Equal(t, 1, snap.Queued)
	assert.Equal(t, 110, snap.RemainingSeconds)

	require.NoError(t, h.d.Dismiss())
	assert.Equal(t, "O4", currentID(h.d.Snapshot()))

	// Dismiss never writes.
	assert.Empty(t, h.claims.declines())
}

func TestQueue_NoPreemption(t *testing.T) {
	h := newHarness(t)
	h.d.Offer(h.offer("O1", time.Minute))
	h.clock.Advance(5 * time.Second)
	h.d.Offer(h.offer("O2", time.Minute))

	snap := h.d.Snapshot()
	assert.Equal(t, "O1", currentID(snap))
	assert.Equal(t, 55, snap.RemainingSeconds)
}

func TestExpiredOfferIsNeverResurrected(t *testing.T) {
	h := newHarness(t)
	o1 := h.offer("O1", 3*time.Second)
	h.d.Offer(o1)
	h.clock.Advance(3 * time.Second)
	require.Equal(t, StateIdle, h.d.Snapshot().State)

	// A redelivery of the same row, with a refreshed TTL, stays ignored.
	again := *o1
	again.ExpiresAt = h.clock.Now().Add(time.Minute)
	h.d.Offer(&again)

	assert.Equal(t, StateIdle, h.d.Snapshot().State)
}

func TestSeenIdsForgottenAfterRetention(t *testing.T) {
	clock := NewManualClock(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC))
	d := New(&fakeClaims{}, alert.Nop, clock, Options{SeenRetention: time.Minute}, logger.NewNop())
	t.Cleanup(d.Close)

	offer := func(id string, ttl time.Duration) *models.ShiftOffer {
		return &models.ShiftOffer{ID: id, PersonnelID: "A", Status: models.OfferStatusPending, ExpiresAt: clock.Now().Add(ttl)}
	}
	seen := func() int {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.seen)
	}

	for i, id := range []string{"O1", "O2", "O3"} {
		d.Offer(offer(id, time.Duration(i+1)*time.Second))
	}
	assert.Equal(t, 3, seen())

	// Still inside the retention window: redelivery stays ignored.
	clock.Advance(30 * time.Second)
	d.Offer(offer("O1", time.Minute))
	assert.Equal(t, 3, seen())
	assert.Equal(t, StateIdle, d.Snapshot().State)

	clock.Advance(2 * time.Minute)
	d.Offer(offer("O4", time.Minute))
	assert.Equal(t, 1, seen())
	assert.Equal(t, "O4", currentID(d.Snapshot()))
}

func TestDuplicateQueuedDeliveryIgnored(t *testing.T) {
	h := newHarness(t)
	h.d.Offer(h.offer("O1", time.Minute))
	h.d.Offer(h.offer("O2", time.Minute))
	h.d.Offer(h.offer("O2", time.Minute))

	assert.Equal(t, 1, h.d.Snapshot().Queued)
}

func TestVibrationPatterns(t *testing.T) {
	h := newHarness(t)
	h.d.Offer(h.offer("O1", time.Minute))
	h.d.Offer(h.offer("O2", time.Minute))
	require.NoError(t, h.d.Dismiss())
	require.NoError(t, h.d.Dismiss())
	h.d.Offer(h.offer("O3", time.Minute))

	assert.Equal(t, [][]int{heavy, light, heavy}, h.vibrator.all())
}

func TestAccept_SuccessHoldsThenAdvances(t *testing.T) {
	h := newHarness(t)
	h.d.Offer(h.offer("O1", time.Minute))
	h.d.Offer(h.offer("O2", time.Minute))

	require.NoError(t, h.d.Accept(context.Background()))

	snap := h.d.Snapshot()
	assert.Equal(t, StateShowing, snap.State)
	assert.True(t, snap.Confirmed)
	assert.Equal(t, "O1", currentID(snap))
	assert.Equal(t, OutcomeAccepted, snap.LastOutcome)

	assert.ErrorIs(t, h.d.Accept(context.Background()), ErrBusy)
	assert.ErrorIs(t, h.d.Decline(), ErrBusy)

	h.clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, "O1", currentID(h.d.Snapshot()))

	h.clock.Advance(time.Millisecond)
	snap = h.d.Snapshot()
	assert.Equal(t, "O2", currentID(snap))
	assert.False(t, snap.Confirmed)
	assert.Equal(t, []string{"O1"}, h.claims.accepts())
}

func TestAccept_FailureKeepsOfferActionable(t *testing.T) {
	h := newHarness(t)
	h.claims.acceptErr = services.ErrOfferNotPending
	h.d.Offer(h.offer("O1", time.Minute))

	err := h.d.Accept(context.Background())
	assert.ErrorIs(t, err, services.ErrOfferNotPending)

	snap := h.d.Snapshot()
	assert.Equal(t, StateShowing, snap.State)
	assert.Equal(t, "O1", currentID(snap))
	assert.NotEmpty(t, snap.Error)

	h.claims.acceptErr = nil
	require.NoError(t, h.d.Accept(context.Background()))
	assert.True(t, h.d.Snapshot().Confirmed)
}

func TestAccept_NetworkErrorKeepsOfferActionable(t *testing.T) {
	h := newHarness(t)
	h.claims.acceptErr = errors.New("dial tcp: i/o timeout")
	h.d.Offer(h.offer("O1", time.Minute))

	assert.Error(t, h.d.Accept(context.Background()))
	assert.Equal(t, "O1", currentID(h.d.Snapshot()))
	require.NoError(t, h.d.Dismiss())
	assert.Equal(t, StateIdle, h.d.Snapshot().State)
}

func TestAccept_LostRaceAdvancesImmediately(t *testing.T) {
	h := newHarness(t)
	h.claims.acceptErr = services.ErrShiftAlreadyClaimed
	h.d.Offer(h.offer("O1", time.Minute))
	h.d.Offer(h.offer("O2", time.Minute))

	err := h.d.Accept(context.Background())
	assert.ErrorIs(t, err, services.ErrShiftAlreadyClaimed)

	snap := h.d.Snapshot()
	assert.Equal(t, "O2", currentID(snap))
	assert.Equal(t, OutcomeLostRace, snap.LastOutcome)
	assert.NotEmpty(t, snap.Error)
}

func TestAccept_InFlightBlocksActionsAndExpiry(t *testing.T) {
	h := newHarness(t)
	h.claims.block = make(chan struct{})
	h.claims.acceptErr = errors.New("network down")
	h.d.Offer(h.offer("O1", 2*time.Second))

	done := make(chan error, 1)
	go func() { done <- h.d.Accept(context.Background()) }()

	require.Eventually(t, func() bool {
		return h.d.Snapshot().State == StateAccepting
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, h.d.Accept(context.Background()), ErrBusy)
	assert.ErrorIs(t, h.d.Decline(), ErrBusy)
	assert.ErrorIs(t, h.d.Dismiss(), ErrBusy)

	// The countdown runs out while the request is in flight.
	h.clock.Advance(5 * time.Second)
	snap := h.d.Snapshot()
	assert.Equal(t, StateAccepting, snap.State)
	assert.Equal(t, 0, snap.RemainingSeconds)

	close(h.claims.block)
	assert.Error(t, <-done)

	snap = h.d.Snapshot()
	assert.Equal(t, StateShowing, snap.State)
	assert.Equal(t, "O1", currentID(snap))

	h.clock.Advance(time.Second)
	assert.Equal(t, StateIdle, h.d.Snapshot().State)
}

func TestActionsWithoutOffer(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.d.Accept(context.Background()), ErrNoCurrentOffer)
	assert.ErrorIs(t, h.d.Decline(), ErrNoCurrentOffer)
	assert.ErrorIs(t, h.d.Dismiss(), ErrNoCurrentOffer)
}

func TestSubscribeReceivesVersionedSnapshots(t *testing.T) {
	h := newHarness(t)

	var (
		mu    sync.Mutex
		snaps []Snapshot
	)
	unsubscribe := h.d.Subscribe(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	h.d.Offer(h.offer("O1", time.Minute))
	h.clock.Advance(time.Second)
	unsubscribe()
	h.clock.Advance(time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snaps, 2)
	assert.Equal(t, 60, snaps[0].RemainingSeconds)
	assert.Equal(t, 59, snaps[1].RemainingSeconds)
	assert.Less(t, snaps[0].Version, snaps[1].Version)
}

func TestCloseStopsTimers(t *testing.T) {
	h := newHarness(t)
	h.d.Offer(h.offer("O1", time.Minute))
	require.Equal(t, 1, h.clock.Pending())

	h.d.Close()
	assert.Equal(t, 0, h.clock.Pending())

	h.d.Offer(h.offer("O2", time.Minute))
	assert.Equal(t, StateIdle, h.d.Snapshot().State)
}

var _ alert.Vibrator = (*recordingVibrator)(nil)
