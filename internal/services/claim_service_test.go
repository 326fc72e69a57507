package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"guardshift/internal/config"
	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"
	"guardshift/internal/repositories/memory"
	"guardshift/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type claimFixture struct {
	store *interfaces.Store
	ctx   context.Context
}

func newClaimFixture(t *testing.T) *claimFixture {
	t.Helper()
	return &claimFixture{store: memory.NewStore(memory.NewDB()), ctx: context.Background()}
}

func (f *claimFixture) shift(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.store.Shifts.Create(f.ctx, &models.Shift{ID: id}))
}

func (f *claimFixture) offer(t *testing.T, id, shiftID, personnelID string) *models.ShiftOffer {
	t.Helper()
	o := &models.ShiftOffer{ID: id, ShiftID: shiftID, PersonnelID: personnelID, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, f.store.Offers.Create(f.ctx, o))
	return o
}

func (f *claimFixture) offerStatus(t *testing.T, id string) models.OfferStatus {
	t.Helper()
	o, err := f.store.Offers.GetByID(f.ctx, id)
	require.NoError(t, err)
	return o.Status
}

func (f *claimFixture) assignee(t *testing.T, shiftID string) string {
	t.Helper()
	s, err := f.store.Shifts.GetByID(f.ctx, shiftID)
	require.NoError(t, err)
	if s.AssignedPersonnelID == nil {
		return ""
	}
	return *s.AssignedPersonnelID
}

func TestAccept_ClaimsShiftAndExpiresSiblings(t *testing.T) {
	f := newClaimFixture(t)
	f.shift(t, "S1")
	o1 := f.offer(t, "O1", "S1", "A")
	f.offer(t, "O2", "S1", "B")
	f.offer(t, "O3", "S1", "C")

	svc := NewClaimService(f.store, config.LostRaceRevert, logger.NewNop())
	require.NoError(t, svc.Accept(f.ctx, o1))

	assert.Equal(t, "A", f.assignee(t, "S1"))
	assert.Equal(t, models.OfferStatusAccepted, f.offerStatus(t, "O1"))
	assert.Equal(t, models.OfferStatusExpired, f.offerStatus(t, "O2"))
	assert.Equal(t, models.OfferStatusExpired, f.offerStatus(t, "O3"))
}

func TestAccept_OfferNoLongerPending(t *testing.T) {
	f := newClaimFixture(t)
	f.shift(t, "S1")
	o1 := f.offer(t, "O1", "S1", "A")
	_, err := f.store.Offers.ExpireOverdue(f.ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)

	svc := NewClaimService(f.store, config.LostRaceRevert, logger.NewNop())
	err = svc.Accept(f.ctx, o1)

	assert.ErrorIs(t, err, ErrOfferNotPending)
	assert.Equal(t, "", f.assignee(t, "S1"), "step 2 must not run")
}

// A wins the shift claim before B accepts, and the sibling sweep has not
// reached B's offer yet: B's offer write applies but the shift claim does not.
func TestAccept_SecondCandidateLosesRace(t *testing.T) {
	for _, tt := range []struct {
		policy     string
		wantErr    error
		wantStatus models.OfferStatus
	}{
		{policy: config.LostRaceRevert, wantErr: ErrShiftAlreadyClaimed, wantStatus: models.OfferStatusExpired},
		{policy: config.LostRaceReportSuccess, wantErr: nil, wantStatus: models.OfferStatusAccepted},
	} {
		t.Run(tt.policy, func(t *testing.T) {
			f := newClaimFixture(t)
			f.shift(t, "S1")
			f.offer(t, "O1", "S1", "A")
			o2 := f.offer(t, "O2", "S1", "B")

			_, err := f.store.Offers.MarkAccepted(f.ctx, "O1", time.Now())
			require.NoError(t, err)
			res, err := f.store.Shifts.Claim(f.ctx, "S1", "A", time.Now())
			require.NoError(t, err)
			require.True(t, res.Applied())

			svc := NewClaimService(f.store, tt.policy, logger.NewNop())
			err = svc.Accept(f.ctx, o2)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, "A", f.assignee(t, "S1"))
			assert.Equal(t, tt.wantStatus, f.offerStatus(t, "O2"))
			assert.Equal(t, models.OfferStatusAccepted, f.offerStatus(t, "O1"))
		})
	}
}

func TestAccept_ConcurrentAcceptsHaveOneWinner(t *testing.T) {
	f := newClaimFixture(t)
	f.shift(t, "S1")

	const candidates = 16
	offers := make([]*models.ShiftOffer, candidates)
	for i := range offers {
		offers[i] = f.offer(t, fmt.Sprintf("O%d", i), "S1", fmt.Sprintf("P%d", i))
	}

	svc := NewClaimService(f.store, config.LostRaceRevert, logger.NewNop())

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	start := make(chan struct{})
	for _, o := range offers {
		wg.Add(1)
		go func(o *models.ShiftOffer) {
			defer wg.Done()
			<-start
			if err := svc.Accept(f.ctx, o); err == nil {
				successes.Add(1)
			} else {
				assert.True(t, errors.Is(err, ErrShiftAlreadyClaimed) || errors.Is(err, ErrOfferNotPending), err)
			}
		}(o)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	winner := f.assignee(t, "S1")
	require.NotEmpty(t, winner)

	accepted := 0
	for _, o := range offers {
		if f.offerStatus(t, o.ID) == models.OfferStatusAccepted {
			accepted++
			assert.Equal(t, winner, o.PersonnelID)
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestDecline_NeverTouchesShift(t *testing.T) {
	f := newClaimFixture(t)
	f.shift(t, "S1")
	declined := f.offer(t, "O1", "S1", "A")
	expired := f.offer(t, "O2", "S1", "B")
	_, err := f.store.Offers.MarkDeclined(f.ctx, "O1", time.Now())
	require.NoError(t, err)
	_, err = f.store.Offers.ExpireSiblings(f.ctx, "S1", "O1")
	require.NoError(t, err)

	before, err := f.store.Shifts.GetByID(f.ctx, "S1")
	require.NoError(t, err)

	svc := NewClaimService(f.store, config.LostRaceRevert, logger.NewNop())
	svc.Decline(f.ctx, declined)
	svc.Decline(f.ctx, expired)

	after, err := f.store.Shifts.GetByID(f.ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, models.OfferStatusDeclined, f.offerStatus(t, "O1"))
	assert.Equal(t, models.OfferStatusExpired, f.offerStatus(t, "O2"))
}

type failingShifts struct {
	interfaces.ShiftRepository
	err error
}

func (s failingShifts) Claim(ctx context.Context, id, personnelID string, at time.Time) (interfaces.CASResult, error) {
	return interfaces.CASConflict, s.err
}

func TestAccept_ClaimErrorReopensOffer(t *testing.T) {
	f := newClaimFixture(t)
	f.shift(t, "S1")
	o1 := f.offer(t, "O1", "S1", "A")

	boom := errors.New("connection reset")
	store := *f.store
	store.Shifts = failingShifts{ShiftRepository: f.store.Shifts, err: boom}

	svc := NewClaimService(&store, config.LostRaceRevert, logger.NewNop())
	err := svc.Accept(f.ctx, o1)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, models.OfferStatusPending, f.offerStatus(t, "O1"))

	// Retry against a healthy store succeeds.
	require.NoError(t, NewClaimService(f.store, config.LostRaceRevert, logger.NewNop()).Accept(f.ctx, o1))
	assert.Equal(t, "A", f.assignee(t, "S1"))
}
