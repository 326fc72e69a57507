// Package dispatch presents shift offers to one candidate, one at a time,
// with a live countdown and a FIFO queue for offers that arrive meanwhile.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"guardshift/internal/alert"
	"guardshift/internal/models"
	"guardshift/internal/services"
	"guardshift/internal/utils"
	"guardshift/pkg/logger"
)

var (
	// ErrBusy rejects actions while an accept is in flight or its success
	// is being held on screen.
	ErrBusy           = errors.New("dispatcher is busy")
	ErrNoCurrentOffer = errors.New("no offer is being shown")
)

type State string

const (
	StateIdle      State = "idle"
	StateShowing   State = "showing"
	StateAccepting State = "accepting"
)

// Outcome is how the most recent current offer left the screen.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDeclined  Outcome = "declined"
	OutcomeDismissed Outcome = "dismissed"
	OutcomeExpired   Outcome = "expired"
	OutcomeLostRace  Outcome = "lost_race"
)

type Snapshot struct {
	Version          uint64             `json:"version"`
	State            State              `json:"state"`
	Offer            *models.ShiftOffer `json:"offer,omitempty"`
	RemainingSeconds int                `json:"remaining_seconds"`
	Confirmed        bool               `json:"confirmed"`
	Queued           int                `json:"queued"`
	LastOutcome      Outcome            `json:"last_outcome,omitempty"`
	Error            string             `json:"error,omitempty"`
}

type Options struct {
	TickInterval     time.Duration
	AcceptedHold     time.Duration
	WriteTimeout     time.Duration
	FirstShowPattern []int
	QueuedPattern    []int
	// SeenRetention is how long an offer id stays remembered after its
	// expiry, for dropping redeliveries.
	SeenRetention time.Duration
}

func DefaultOptions() Options {
	return Options{
		TickInterval:     time.Second,
		AcceptedHold:     2 * time.Second,
		WriteTimeout:     10 * time.Second,
		FirstShowPattern: []int{0, 500, 200, 500, 200, 500},
		QueuedPattern:    []int{0, 250},
		SeenRetention:    10 * time.Minute,
	}
}

type Dispatcher struct {
	claims   services.ClaimService
	vibrator alert.Vibrator
	clock    Clock
	opts     Options
	logger   *logger.Logger

	mu        sync.Mutex
	state     State
	current   *models.ShiftOffer
	remaining int
	confirmed bool
	queue     []*models.ShiftOffer
	seen      map[string]time.Time
	outcome   Outcome
	lastErr   string
	version   uint64
	countdown uint64
	stopTick  func()
	stopHold  func()
	closed    bool

	effects   []func()
	listeners map[int]func(Snapshot)
	nextID    int
}

func New(claims services.ClaimService, vibrator alert.Vibrator, clock Clock, opts Options, log *logger.Logger) *Dispatcher {
	if vibrator == nil {
		vibrator = alert.Nop
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.SeenRetention <= 0 {
		opts.SeenRetention = 10 * time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Dispatcher{
		claims:    claims,
		vibrator:  vibrator,
		clock:     clock,
		opts:      opts,
		logger:    log,
		state:     StateIdle,
		seen:      make(map[string]time.Time),
		listeners: make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn for every published snapshot. Snapshots carry a
// monotonically increasing Version so receivers can drop stale ones.
func (d *Dispatcher) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Offer hands a newly delivered pending offer to the dispatcher. An offer
// id this dispatcher has already seen is ignored, so a redelivered offer can
// never come back after it was shown and timed out. Ids are forgotten once
// their offer has been expired for longer than SeenRetention.
func (d *Dispatcher) Offer(offer *models.ShiftOffer) {
	if offer == nil {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pruneSeenLocked()
	if _, dup := d.seen[offer.ID]; dup {
		d.mu.Unlock()
		d.logger.WithOfferID(offer.ID).Debug("Ignoring duplicate offer delivery")
		return
	}
	d.seen[offer.ID] = offer.ExpiresAt

	o := *offer
	if d.state == StateIdle {
		d.showLocked(&o, d.opts.FirstShowPattern)
	} else {
		d.queue = append(d.queue, &o)
		d.logger.LogOfferEvent(o.ID, utils.EventOfferQueued, map[string]interface{}{"queued": len(d.queue)})
	}
	d.unlockAndFlush()
}

// Accept runs the claim protocol for the current offer and blocks until it
// finishes. On success the offer stays on screen, confirmed, for the hold
// period. A lost race clears it at once. Any other failure leaves the same
// offer showing so the user can retry or dismiss.
func (d *Dispatcher) Accept(ctx context.Context) error {
	d.mu.Lock()
	if err := d.actionableLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	offer := d.current
	d.state = StateAccepting
	d.lastErr = ""
	d.unlockAndFlush()

	ctx, cancel := context.WithTimeout(ctx, d.opts.WriteTimeout)
	err := d.claims.Accept(ctx, offer)
	cancel()

	d.mu.Lock()
	if d.closed || d.current != offer {
		d.mu.Unlock()
		return err
	}

	switch {
	case err == nil:
		d.state = StateShowing
		d.confirmed = true
		d.outcome = OutcomeAccepted
		d.stopCountdownLocked()
		hold := d.countdown
		d.stopHold = d.clock.After(d.opts.AcceptedHold, func() { d.endHold(hold) })

	case errors.Is(err, services.ErrShiftAlreadyClaimed):
		d.outcome = OutcomeLostRace
		d.lastErr = err.Error()
		d.advanceLocked()

	default:
		d.state = StateShowing
		d.lastErr = err.Error()
		d.logger.WithOfferID(offer.ID).WithError(err).Warn("Accept failed, offer remains actionable")
	}
	d.unlockAndFlush()

	return err
}

// Decline clears the current offer and records the decline in the
// background. The write outcome is never reported back.
func (d *Dispatcher) Decline() error {
	d.mu.Lock()
	if err := d.actionableLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	offer := d.current
	d.outcome = OutcomeDeclined
	d.lastErr = ""
	d.advanceLocked()
	d.unlockAndFlush()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.WriteTimeout)
		defer cancel()
		d.claims.Decline(ctx, offer)
	}()

	return nil
}

// Dismiss clears the current offer without writing anything.
func (d *Dispatcher) Dismiss() error {
	d.mu.Lock()
	if err := d.actionableLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	d.outcome = OutcomeDismissed
	d.lastErr = ""
	d.advanceLocked()
	d.unlockAndFlush()
	return nil
}

// Close stops all timers and drops queued offers. Further calls are no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.stopCountdownLocked()
	d.stopHoldLocked()
	d.current = nil
	d.queue = nil
	d.state = StateIdle
	d.listeners = make(map[int]func(Snapshot))
	d.mu.Unlock()
}

func (d *Dispatcher) pruneSeenLocked() {
	cutoff := d.clock.Now().Add(-d.opts.SeenRetention)
	for id, expiresAt := range d.seen {
		if expiresAt.Before(cutoff) {
			delete(d.seen, id)
		}
	}
}

func (d *Dispatcher) actionableLocked() error {
	if d.closed || d.current == nil {
		return ErrNoCurrentOffer
	}
	if d.state == StateAccepting || d.confirmed {
		return ErrBusy
	}
	return nil
}

func (d *Dispatcher) showLocked(offer *models.ShiftOffer, pattern []int) {
	d.current = offer
	d.state = StateShowing
	d.confirmed = false
	d.remaining = offer.RemainingSeconds(d.clock.Now())
	d.startCountdownLocked()

	d.logger.LogOfferEvent(offer.ID, utils.EventOfferShown, map[string]interface{}{"remaining_seconds": d.remaining})
	if len(pattern) > 0 {
		p := append([]int(nil), pattern...)
		d.effects = append(d.effects, func() { d.vibrator.Vibrate(p) })
	}
}

// advanceLocked clears the current offer and pulls the next one that has not
// expired while queued. Expired entries are dropped, never reordered.
func (d *Dispatcher) advanceLocked() {
	d.stopCountdownLocked()
	d.stopHoldLocked()
	d.current = nil
	d.confirmed = false
	d.remaining = 0

	now := d.clock.Now()
	for len(d.queue) > 0 {
		next := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]

		if next.ExpiredAt(now) {
			d.logger.LogOfferEvent(next.ID, utils.EventOfferExpired, map[string]interface{}{"while": "queued"})
			continue
		}
		d.showLocked(next, d.opts.QueuedPattern)
		return
	}

	d.state = StateIdle
}

func (d *Dispatcher) startCountdownLocked() {
	d.stopCountdownLocked()
	d.countdown++
	gen := d.countdown
	d.stopTick = d.clock.Every(d.opts.TickInterval, func() { d.tick(gen) })
}

func (d *Dispatcher) stopCountdownLocked() {
	if d.stopTick != nil {
		d.stopTick()
		d.stopTick = nil
	}
}

func (d *Dispatcher) stopHoldLocked() {
	if d.stopHold != nil {
		d.stopHold()
		d.stopHold = nil
	}
}

func (d *Dispatcher) tick(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.countdown || d.current == nil || d.confirmed {
		d.mu.Unlock()
		return
	}

	d.remaining--
	if d.state == StateAccepting || d.remaining > 0 {
		// An in-flight accept holds the offer; expiry waits for its result.
		if d.remaining < 0 {
			d.remaining = 0
		}
		d.unlockAndFlush()
		return
	}

	d.logger.LogOfferEvent(d.current.ID, utils.EventOfferExpired, map[string]interface{}{"while": "showing"})
	d.outcome = OutcomeExpired
	d.lastErr = ""
	d.advanceLocked()
	d.unlockAndFlush()
}

func (d *Dispatcher) endHold(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.countdown || !d.confirmed {
		d.mu.Unlock()
		return
	}
	d.stopHold = nil
	d.advanceLocked()
	d.unlockAndFlush()
}

func (d *Dispatcher) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:     d.version,
		State:       d.state,
		Confirmed:   d.confirmed,
		Queued:      len(d.queue),
		LastOutcome: d.outcome,
		Error:       d.lastErr,
	}
	if d.current != nil {
		o := *d.current
		snap.Offer = &o
		snap.RemainingSeconds = d.remaining
		if snap.RemainingSeconds < 0 {
			snap.RemainingSeconds = 0
		}
	}
	return snap
}

// unlockAndFlush publishes a snapshot of the new state, releases the lock and
// then runs queued side effects and listeners outside it.
func (d *Dispatcher) unlockAndFlush() {
	d.version++
	snap := d.snapshotLocked()
	effects := d.effects
	d.effects = nil
	listeners := make([]func(Snapshot), 0, len(d.listeners))
	for _, fn := range d.listeners {
		listeners = append(listeners, fn)
	}
	d.mu.Unlock()

	for _, fn := range effects {
		fn()
	}
	for _, fn := range listeners {
		fn(snap)
	}
}
