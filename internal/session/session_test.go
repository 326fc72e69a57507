package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"guardshift/internal/dispatch"
	"guardshift/internal/feed"
	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"
	"guardshift/internal/repositories/memory"
	"guardshift/internal/services"
	"guardshift/internal/tracking"
	"guardshift/internal/utils"
	"guardshift/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "session-test-secret-0123456789"

type sentMessage struct {
	Type string
	Data interface{}
}

type fakeConn struct {
	id string

	mu   sync.Mutex
	sent []sentMessage
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{Type: msgType, Data: data})
	return nil
}

func (c *fakeConn) ofType(msgType string) []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []interface{}
	for _, m := range c.sent {
		if m.Type == msgType {
			out = append(out, m.Data)
		}
	}
	return out
}

// await returns the n-th (1-based) message of msgType once it has been sent.
func (c *fakeConn) await(t *testing.T, msgType string, n int) interface{} {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.ofType(msgType)) >= n }, 2*time.Second, 5*time.Millisecond,
		"no %s message #%d", msgType, n)
	return c.ofType(msgType)[n-1]
}

type stream struct {
	personnelID string
	ctx         context.Context
	deliver     func(*models.ShiftOffer)
}

type fakeSource struct {
	streams chan *stream
}

func (f *fakeSource) Stream(ctx context.Context, personnelID string, live func(), deliver func(*models.ShiftOffer)) error {
	live()
	f.streams <- &stream{personnelID: personnelID, ctx: ctx, deliver: deliver}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSource) next(t *testing.T) *stream {
	t.Helper()
	select {
	case st := <-f.streams:
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("no feed subscription opened")
		return nil
	}
}

type fixture struct {
	store   *interfaces.Store
	source  *fakeSource
	clock   *dispatch.ManualClock
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logger.NewNop()
	store := memory.NewStore(memory.NewDB())
	f := &fixture{
		store:  store,
		source: &fakeSource{streams: make(chan *stream, 16)},
		clock:  dispatch.NewManualClock(time.Now()),
	}

	feedOpts := feed.DefaultOptions()
	feedOpts.Backfill = false

	f.manager = NewManager(context.Background(), Deps{
		JWTSecret: testSecret,
		Claims:    services.NewClaimService(store, "", log),
		Offers:    store.Offers,
		Source:    f.source,
		Tracking:  services.NewTrackingService(store, tracking.FilterOptions{}, nil, log),
		Dispatch:  dispatch.DefaultOptions(),
		Feed:      feedOpts,
		Clock:     f.clock,
		Logger:    log,
	})
	t.Cleanup(f.manager.Close)
	return f
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := utils.GenerateAccessToken(userID, utils.UserTypePersonnel, "+15550000000", testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) seedOffer(t *testing.T, id, personnelID string) *models.ShiftOffer {
	t.Helper()
	ctx := context.Background()
	shiftID := "shift-" + id
	require.NoError(t, f.store.Shifts.Create(ctx, &models.Shift{ID: shiftID, Status: models.ShiftStatusPending}))
	offer := &models.ShiftOffer{
		ID:          id,
		ShiftID:     shiftID,
		PersonnelID: personnelID,
		Status:      models.OfferStatusPending,
		ExpiresAt:   f.clock.Now().Add(time.Minute),
	}
	require.NoError(t, f.store.Offers.Create(ctx, offer))
	return offer
}

func raw(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestManager_ConnectSignsInAndFollowsFeed(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{id: "c1"}

	f.manager.Connect(conn, token(t, "p1"))

	welcome := conn.await(t, MsgWelcome, 1).(welcomeMessage)
	assert.Equal(t, "c1", welcome.SessionID)
	signedIn := conn.await(t, MsgSignedIn, 1).(signedInMessage)
	assert.Equal(t, "p1", signedIn.UserID)

	st := f.source.next(t)
	assert.Equal(t, "p1", st.personnelID)
	assert.True(t, f.manager.IsOnline("p1"))
	assert.False(t, f.manager.IsOnline("p2"))
}

func TestManager_OfferShownAndAccepted(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{id: "c1"}
	f.manager.Connect(conn, token(t, "p1"))
	st := f.source.next(t)

	offer := f.seedOffer(t, "o1", "p1")
	st.deliver(offer)

	// Feed alert first, then the dispatcher's first-show pattern.
	alertPattern := conn.await(t, MsgVibrate, 1).(vibrateMessage)
	firstShow := conn.await(t, MsgVibrate, 2).(vibrateMessage)
	assert.Equal(t, feed.DefaultOptions().AlertPattern, alertPattern.PatternMS)
	assert.Equal(t, dispatch.DefaultOptions().FirstShowPattern, firstShow.PatternMS)

	sess, err := f.manager.SessionFor("p1")
	require.NoError(t, err)
	snap := sess.Dispatcher().Snapshot()
	assert.Equal(t, dispatch.StateShowing, snap.State)
	require.NotNil(t, snap.Offer)
	assert.Equal(t, "o1", snap.Offer.ID)

	f.manager.Handle("c1", MsgOfferAccept, nil)

	result := conn.await(t, MsgOfferResult, 1).(OfferResult)
	assert.True(t, result.OK)
	assert.Equal(t, "accept", result.Action)
	assert.Equal(t, "o1", result.OfferID)

	shift, err := f.store.Shifts.GetByID(context.Background(), "shift-o1")
	require.NoError(t, err)
	require.True(t, shift.IsClaimed())
	assert.Equal(t, "p1", *shift.AssignedPersonnelID)
}

func TestManager_DeclineAndDismissReportResults(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{id: "c1"}
	f.manager.Connect(conn, token(t, "p1"))
	st := f.source.next(t)

	st.deliver(f.seedOffer(t, "o1", "p1"))
	st.deliver(f.seedOffer(t, "o2", "p1"))

	f.manager.Handle("c1", MsgOfferDecline, nil)
	declined := conn.await(t, MsgOfferResult, 1).(OfferResult)
	assert.True(t, declined.OK)
	assert.Equal(t, "o1", declined.OfferID)

	require.Eventually(t, func() bool {
		o, err := f.store.Offers.GetByID(context.Background(), "o1")
		return err == nil && o.Status == models.OfferStatusDeclined
	}, 2*time.Second, 5*time.Millisecond)

	f.manager.Handle("c1", MsgOfferDismiss, nil)
	dismissed := conn.await(t, MsgOfferResult, 2).(OfferResult)
	assert.True(t, dismissed.OK)
	assert.Equal(t, "o2", dismissed.OfferID)

	o2, err := f.store.Offers.GetByID(context.Background(), "o2")
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusPending, o2.Status)

	f.manager.Handle("c1", MsgOfferDismiss, nil)
	empty := conn.await(t, MsgOfferResult, 3).(OfferResult)
	assert.False(t, empty.OK)
	assert.Equal(t, utils.CodeNoCurrentOffer, empty.Code)
}

func TestManager_SignOutTearsDownDispatcherAndTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Assignments.Create(ctx, &models.BookingAssignment{ID: "a1", BookingID: "b1", PersonnelID: "p1"}))

	conn := &fakeConn{id: "c1"}
	f.manager.Connect(conn, token(t, "p1"))
	st := f.source.next(t)

	f.manager.Handle("c1", MsgTrackingStart, raw(t, trackingRequest{AssignmentID: "a1"}))
	conn.await(t, MsgTracking, 1)
	assert.Len(t, f.manager.deps.Tracking.Sessions(), 1)

	f.manager.Handle("c1", MsgSignOut, nil)
	conn.await(t, MsgSignedOut, 1)

	select {
	case <-st.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("feed subscription survived sign-out")
	}
	assert.False(t, f.manager.IsOnline("p1"))
	assert.Empty(t, f.manager.deps.Tracking.Sessions())

	f.manager.Handle("c1", MsgOfferAccept, nil)
	result := conn.await(t, MsgOfferResult, 1).(OfferResult)
	assert.False(t, result.OK)
	assert.Equal(t, utils.CodeNotSignedIn, result.Code)
}

func TestManager_SwitchingUserResetsDispatcher(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{id: "c1"}
	f.manager.Connect(conn, token(t, "p1"))
	st := f.source.next(t)
	st.deliver(f.seedOffer(t, "o1", "p1"))

	sess, err := f.manager.SessionFor("p1")
	require.NoError(t, err)
	first := sess.Dispatcher()
	require.NotNil(t, first.Snapshot().Offer)

	f.manager.Handle("c1", MsgSignIn, raw(t, signInRequest{Token: token(t, "p2")}))
	second := f.source.next(t)
	assert.Equal(t, "p2", second.personnelID)

	assert.NotSame(t, first, sess.Dispatcher())
	assert.Nil(t, sess.Dispatcher().Snapshot().Offer)
	assert.Equal(t, dispatch.StateIdle, first.Snapshot().State)
}

func TestManager_StaleFeedCannotOfferToNewIdentity(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{id: "c1"}
	f.manager.Connect(conn, token(t, "p1"))
	old := f.source.next(t)

	f.manager.Handle("c1", MsgSignIn, raw(t, signInRequest{Token: token(t, "p2")}))
	next := f.source.next(t)
	require.Equal(t, "p2", next.personnelID)

	sess, err := f.manager.SessionFor("p2")
	require.NoError(t, err)

	// The p1 stream delivers late, after p2 has signed in on the device.
	old.deliver(f.seedOffer(t, "o1", "p1"))

	assert.Nil(t, sess.Dispatcher().Snapshot().Offer)
	f.manager.Handle("c1", MsgOfferAccept, nil)
	result := conn.await(t, MsgOfferResult, 1).(OfferResult)
	assert.False(t, result.OK)
	assert.Equal(t, utils.CodeNoCurrentOffer, result.Code)

	shift, err := f.store.Shifts.GetByID(context.Background(), "shift-o1")
	require.NoError(t, err)
	assert.False(t, shift.IsClaimed())

	// Offers for the signed-in identity still go through.
	next.deliver(f.seedOffer(t, "o2", "p2"))
	require.NotNil(t, sess.Dispatcher().Snapshot().Offer)
	assert.Equal(t, "o2", sess.Dispatcher().Snapshot().Offer.ID)
}

func TestManager_LocationUpdateReportsAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Assignments.Create(ctx, &models.BookingAssignment{ID: "a1", BookingID: "b1", PersonnelID: "p1"}))
	require.NoError(t, f.store.Geofences.Create(ctx, &models.Geofence{ID: "g1", BookingID: "b1", Latitude: 51.5, Longitude: -0.12, Radius: 100, IsActive: true}))

	conn := &fakeConn{id: "c1"}
	f.manager.Connect(conn, token(t, "p1"))

	f.manager.Handle("c1", MsgLocationUpdate, raw(t, map[string]float64{"latitude": 51.5, "longitude": -0.12}))
	notActive := conn.await(t, MsgError, 1).(errorMessage)
	assert.Equal(t, utils.CodeTrackingNotActive, notActive.Code)

	f.manager.Handle("c1", MsgTrackingStart, raw(t, trackingRequest{AssignmentID: "a1"}))
	conn.await(t, MsgTracking, 1)

	f.manager.Handle("c1", MsgLocationUpdate, raw(t, map[string]float64{"latitude": 51.5, "longitude": -0.12}))
	att := conn.await(t, MsgAttendance, 1).(*AttendanceMessage)
	assert.Equal(t, "a1", att.AssignmentID)
	require.Len(t, att.Transitions, 1)
	assert.Equal(t, models.GeofenceEventEnter, att.Transitions[0].Type)

	record, err := f.store.Assignments.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.NotNil(t, record.CheckInAt)

	f.manager.Handle("c1", MsgLocationUpdate, raw(t, map[string]float64{"latitude": 123, "longitude": 0}))
	invalid := conn.await(t, MsgError, 2).(errorMessage)
	assert.Equal(t, utils.CodeValidationFailed, invalid.Code)
}

func TestManager_RejectsBadMessages(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{id: "c1"}
	f.manager.Connect(conn, "")

	f.manager.Handle("c1", "teleport", nil)
	unknown := conn.await(t, MsgError, 1).(errorMessage)
	assert.Equal(t, utils.CodeUnknownMessage, unknown.Code)

	f.manager.Handle("c1", MsgSignIn, json.RawMessage(`{"token":`))
	bad := conn.await(t, MsgError, 2).(errorMessage)
	assert.Equal(t, utils.CodeBadMessage, bad.Code)

	f.manager.Handle("c1", MsgSignIn, raw(t, signInRequest{Token: "garbage"}))
	invalid := conn.await(t, MsgError, 3).(errorMessage)
	assert.Equal(t, utils.CodeInvalidToken, invalid.Code)

	f.manager.Handle("c1", MsgTrackingStart, raw(t, trackingRequest{AssignmentID: "a1"}))
	notSignedIn := conn.await(t, MsgError, 4).(errorMessage)
	assert.Equal(t, utils.CodeNotSignedIn, notSignedIn.Code)

	// Messages for unknown connections are dropped.
	f.manager.Handle("missing", MsgSignOut, nil)
}

func TestManager_WakeOnlyForOfferPushes(t *testing.T) {
	f := newFixture(t)
	conn := &fakeConn{id: "c1"}
	sess := f.manager.Connect(conn, token(t, "p1"))
	f.source.next(t)

	assert.False(t, sess.Wake("chat_message"))
	// A live feed is not in backoff, so an offer push has nothing to wake.
	require.Eventually(t, func() bool { return sess.Feed().State == feed.StateLive }, time.Second, 5*time.Millisecond)
	assert.False(t, sess.Wake(services.PushTypeNewShiftOffer))
}

func TestManager_SessionForPrefersLatestSignIn(t *testing.T) {
	f := newFixture(t)

	first := f.manager.Connect(&fakeConn{id: "c1"}, token(t, "p1"))
	time.Sleep(5 * time.Millisecond)
	second := f.manager.Connect(&fakeConn{id: "c2"}, token(t, "p1"))
	f.manager.Connect(&fakeConn{id: "c3"}, token(t, "p2"))

	got, err := f.manager.SessionFor("p1")
	require.NoError(t, err)
	assert.Same(t, second, got)

	assert.Equal(t, 2, f.manager.NotifyUser("p1", MsgTracking, nil))
	assert.Equal(t, 0, f.manager.NotifyUser("p9", MsgTracking, nil))

	f.manager.Disconnect("c2")
	got, err = f.manager.SessionFor("p1")
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = f.manager.SessionFor("p9")
	assert.ErrorIs(t, err, ErrNoSession)

	statuses := f.manager.Statuses()
	assert.Len(t, statuses, 2)
	assert.Equal(t, 2, f.manager.Count())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{dispatch.ErrBusy, utils.CodeDispatcherBusy, 409},
		{fmt.Errorf("wrapped: %w", services.ErrShiftAlreadyClaimed), utils.CodeShiftAlreadyClaimed, 409},
		{services.ErrAssignmentNotOwned, utils.CodeAssignmentNotOwned, 403},
		{ErrNoSession, utils.CodeNoSession, 409},
		{interfaces.ErrNotFound, utils.CodeNotFound, 404},
		{fmt.Errorf("boom"), utils.CodeInternal, 500},
	}
	for _, tt := range tests {
		code, status := ErrorCode(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
