// Package feed keeps a live subscription to newly created offers for the
// signed-in candidate and forwards the pending ones to the dispatcher.
package feed

import (
	"context"
	"sync"
	"time"

	"guardshift/internal/alert"
	"guardshift/internal/identity"
	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"
	"guardshift/pkg/logger"
)

type State string

const (
	StateStopped    State = "stopped"
	StateConnecting State = "connecting"
	StateLive       State = "live"
	StateBackoff    State = "backoff"
)

// Sink receives forwarded offers. Implemented by the dispatcher.
type Sink interface {
	Offer(offer *models.ShiftOffer)
}

type Options struct {
	Backoff      Backoff
	HealthyAfter time.Duration
	AlertPattern []int
	// Backfill loads offers that were already pending when the stream went
	// live, so a reconnect does not miss rows inserted while it was down.
	Backfill bool
}

func DefaultOptions() Options {
	return Options{
		Backoff: Backoff{
			Initial: time.Second,
			Max:     30 * time.Second,
			Factor:  2,
			Jitter:  0.2,
		},
		HealthyAfter: 30 * time.Second,
		AlertPattern: []int{0, 300, 100, 300},
	}
}

type Status struct {
	State       State     `json:"state"`
	PersonnelID string    `json:"personnel_id,omitempty"`
	Attempt     int       `json:"attempt"`
	LastError   string    `json:"last_error,omitempty"`
	Since       time.Time `json:"since"`
	Forwarded   int64     `json:"forwarded"`
}

type Subscriber struct {
	identity identity.Provider
	source   Source
	sink     Sink
	vibrator alert.Vibrator
	offers   interfaces.OfferRepository
	opts     Options
	logger   *logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	status Status
	wake   chan struct{}
}

// NewSubscriber builds a subscriber. offers is only used for backfill and
// may be nil when Options.Backfill is false.
func NewSubscriber(provider identity.Provider, source Source, sink Sink, vibrator alert.Vibrator, offers interfaces.OfferRepository, opts Options, log *logger.Logger) *Subscriber {
	if vibrator == nil {
		vibrator = alert.Nop
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Subscriber{
		identity: provider,
		source:   source,
		sink:     sink,
		vibrator: vibrator,
		offers:   offers,
		opts:     opts,
		logger:   log.WithField("component", "offer_feed"),
		now:      time.Now,
		status:   Status{State: StateStopped, Since: time.Now()},
		wake:     make(chan struct{}, 1),
	}
}

// Run follows the identity until ctx is done. Each identity change tears
// the current subscription down before the next one is opened; while
// signed out there is no subscription at all.
func (s *Subscriber) Run(ctx context.Context) {
	var (
		mu      sync.Mutex
		latest  string
		changed = make(chan struct{}, 1)
	)
	unsubscribe := s.identity.OnAuthStateChange(func(userID string) {
		mu.Lock()
		latest = userID
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var (
		following string
		cancel    context.CancelFunc
		done      chan struct{}
	)
	stop := func() {
		if cancel == nil {
			return
		}
		cancel()
		<-done
		cancel, done = nil, nil
		following = ""
		s.setState(StateStopped, "", 0, nil)
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}

		mu.Lock()
		userID := latest
		mu.Unlock()

		if userID == following && cancel != nil {
			continue
		}
		stop()
		if userID == "" {
			s.logger.Debug("Signed out, offer feed stopped")
			continue
		}

		following = userID
		var followCtx context.Context
		followCtx, cancel = context.WithCancel(ctx)
		done = make(chan struct{})
		go func(ctx context.Context, userID string, done chan struct{}) {
			defer close(done)
			s.follow(ctx, userID)
		}(followCtx, userID, done)
	}
}

func (s *Subscriber) follow(ctx context.Context, userID string) {
	log := s.logger.WithUserID(userID)
	attempt := 0

	for {
		s.setState(StateConnecting, userID, attempt, nil)

		var liveAt time.Time
		err := s.source.Stream(ctx, userID,
			func() {
				liveAt = s.now()
				s.setState(StateLive, userID, attempt, nil)
				log.Info("Offer feed live")
				if s.opts.Backfill {
					s.backfill(ctx, userID, log)
				}
			},
			func(offer *models.ShiftOffer) { s.forward(userID, offer, log) },
		)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = ErrStreamClosed
		}

		if !liveAt.IsZero() && s.now().Sub(liveAt) >= s.opts.HealthyAfter {
			attempt = 0
		}
		attempt++
		delay := s.opts.Backoff.Duration(attempt)

		log.WithError(err).WithFields(map[string]interface{}{
			"attempt":  attempt,
			"retry_in": delay.String(),
		}).Warn("Offer feed dropped, resubscribing")

		select {
		case <-s.wake:
		default:
		}
		s.setState(StateBackoff, userID, attempt, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
			log.Info("Offer feed woken from backoff")
		}
	}
}

func (s *Subscriber) backfill(ctx context.Context, userID string, log *logger.Logger) {
	if s.offers == nil {
		return
	}
	pending, err := s.offers.ListPendingForPersonnel(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("Failed to backfill pending offers")
		return
	}
	now := s.now()
	for _, offer := range pending {
		if offer.ExpiredAt(now) {
			continue
		}
		s.forward(userID, offer, log)
	}
}

func (s *Subscriber) forward(userID string, offer *models.ShiftOffer, log *logger.Logger) {
	if offer == nil || offer.PersonnelID != userID {
		return
	}
	if offer.Status != models.OfferStatusPending {
		log.WithOfferID(offer.ID).WithField("status", offer.Status).Debug("Ignoring non-pending offer")
		return
	}

	s.mu.Lock()
	s.status.Forwarded++
	s.mu.Unlock()

	s.vibrator.Vibrate(s.opts.AlertPattern)
	s.sink.Offer(offer)
}

// Wake cuts a pending backoff short. It has no effect unless the
// subscriber is currently waiting to reconnect.
func (s *Subscriber) Wake() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State != StateBackoff {
		return false
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *Subscriber) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Subscriber) setState(state State, userID string, attempt int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = state
	s.status.PersonnelID = userID
	s.status.Attempt = attempt
	s.status.Since = s.now()
	if err != nil {
		s.status.LastError = err.Error()
	} else if state == StateStopped {
		s.status.LastError = ""
	}
}
