package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"guardshift/internal/alert"
	"guardshift/internal/dispatch"
	"guardshift/internal/feed"
	"guardshift/internal/identity"
	"guardshift/internal/models"
	"guardshift/internal/services"
	"guardshift/internal/utils"
	"guardshift/internal/validators"
	"guardshift/pkg/logger"
)

// Conn is the device channel a session talks back through.
type Conn interface {
	ID() string
	Send(msgType string, data interface{}) error
}

// Session is everything the service keeps for one connected device: its
// identity, the offer feed following that identity and the dispatcher
// presenting offers. The dispatcher is rebuilt on every identity change.
type Session struct {
	conn       Conn
	deps       *Deps
	identity   *identity.JWTProvider
	subscriber *feed.Subscriber
	logger     *logger.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopAuth func()

	mu          sync.Mutex
	dispatcher  *dispatch.Dispatcher
	owner       string
	unsubscribe func()
	signedInAt  time.Time
}

func newSession(parent context.Context, conn Conn, deps *Deps) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		conn:     conn,
		deps:     deps,
		identity: identity.NewJWTProvider(deps.JWTSecret),
		logger:   deps.Logger.WithField("session_id", conn.ID()),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	// Registered before the subscriber so the dispatcher for a new identity
	// exists before its feed opens.
	s.stopAuth = s.identity.OnAuthStateChange(s.onAuthChange)

	s.subscriber = feed.NewSubscriber(s.identity, deps.Source, s, s.vibrator(), deps.Offers, deps.Feed, s.logger)
	go func() {
		defer close(s.done)
		s.subscriber.Run(ctx)
	}()

	return s
}

func (s *Session) ID() string { return s.conn.ID() }

// Offer implements feed.Sink. An offer reaches the dispatcher only when it
// belongs to the identity that dispatcher was built for and that identity
// is still the signed-in one; a feed for a previous user may still deliver
// while it is being torn down.
func (s *Session) Offer(offer *models.ShiftOffer) {
	if offer == nil {
		return
	}
	user, ok := s.User()
	if !ok || user.UserID != offer.PersonnelID {
		s.logger.WithOfferID(offer.ID).Debug("Dropped offer for another identity")
		return
	}

	s.mu.Lock()
	d, owner := s.dispatcher, s.owner
	s.mu.Unlock()
	if d == nil || owner != offer.PersonnelID {
		s.logger.WithOfferID(offer.ID).Debug("Dropped offer for another identity")
		return
	}
	d.Offer(offer)
}

// Dispatcher is nil while signed out.
func (s *Session) Dispatcher() *dispatch.Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher
}

func (s *Session) User() (*identity.Identity, bool) {
	return s.identity.Current()
}

func (s *Session) Feed() feed.Status {
	return s.subscriber.Status()
}

func (s *Session) SignIn(token string) (*identity.Identity, error) {
	id, err := s.identity.SignIn(token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.signedInAt = time.Now()
	s.mu.Unlock()

	s.logger.WithUserID(id.UserID).Info("Device signed in")
	s.send(MsgSignedIn, signedInMessage{UserID: id.UserID, UserType: id.UserType})
	return id, nil
}

func (s *Session) SignOut() {
	user, ok := s.User()
	s.identity.SignOut()
	if !ok {
		return
	}

	s.deps.Tracking.StopAll(user.UserID)
	s.logger.WithUserID(user.UserID).Info("Device signed out")
	s.send(MsgSignedOut, nil)
}

// Accept blocks until the claim protocol finishes and reports the result
// on the channel as well as returning it.
func (s *Session) Accept(ctx context.Context) error {
	d, offerID, err := s.actionable()
	if err == nil {
		err = d.Accept(ctx)
	}
	s.result("accept", offerID, err)
	return err
}

func (s *Session) Decline() error {
	d, offerID, err := s.actionable()
	if err == nil {
		err = d.Decline()
	}
	s.result("decline", offerID, err)
	return err
}

func (s *Session) Dismiss() error {
	d, offerID, err := s.actionable()
	if err == nil {
		err = d.Dismiss()
	}
	s.result("dismiss", offerID, err)
	return err
}

func (s *Session) actionable() (*dispatch.Dispatcher, string, error) {
	d := s.Dispatcher()
	if d == nil {
		return nil, "", identity.ErrNotSignedIn
	}
	offerID := ""
	if snap := d.Snapshot(); snap.Offer != nil {
		offerID = snap.Offer.ID
	}
	return d, offerID, nil
}

// Location feeds one sample to the signed-in candidate's tracking sessions
// and reports any transitions back to the device.
func (s *Session) Location(ctx context.Context, req *validators.LocationSampleRequest) (map[string]*AttendanceMessage, error) {
	user, ok := s.User()
	if !ok {
		return nil, identity.ErrNotSignedIn
	}
	if errs := validators.ValidateStruct(req); len(errs) > 0 {
		return nil, errs
	}

	sample := models.LocationSample{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		Timestamp: time.Now(),
	}
	if req.Timestamp != nil {
		sample.Timestamp = *req.Timestamp
	}

	results, err := s.deps.Tracking.Sample(ctx, user.UserID, sample)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*AttendanceMessage)
	for assignmentID, res := range results {
		if len(res.Transitions) == 0 {
			continue
		}
		msg := &AttendanceMessage{
			AssignmentID: assignmentID,
			Transitions:  res.Transitions,
			RecordedAt:   sample.Timestamp,
		}
		out[assignmentID] = msg
		s.send(MsgAttendance, msg)
	}
	return out, nil
}

// Wake is the foreground push hint: it only shortens a feed backoff.
func (s *Session) Wake(pushType string) bool {
	if pushType != services.PushTypeNewShiftOffer {
		return false
	}
	woke := s.subscriber.Wake()
	if woke {
		s.logger.Info("Offer feed woken by push")
	}
	return woke
}

func (s *Session) handle(msgType string, data json.RawMessage) {
	switch msgType {
	case MsgSignIn:
		var req signInRequest
		if !s.decode(data, &req) {
			return
		}
		if _, err := s.SignIn(req.Token); err != nil {
			s.sendError(err, utils.CodeInvalidToken)
		}

	case MsgSignOut:
		s.SignOut()

	case MsgOfferAccept:
		go s.Accept(s.ctx)

	case MsgOfferDecline:
		s.Decline()

	case MsgOfferDismiss:
		s.Dismiss()

	case MsgLocationUpdate:
		var req validators.LocationSampleRequest
		if !s.decode(data, &req) {
			return
		}
		if _, err := s.Location(s.ctx, &req); err != nil {
			s.sendError(err, "")
		}

	case MsgTrackingStart, MsgTrackingStop:
		var req trackingRequest
		if !s.decode(data, &req) {
			return
		}
		s.tracking(msgType, req.AssignmentID)

	case MsgPushReceived:
		var req pushReceivedRequest
		if !s.decode(data, &req) {
			return
		}
		s.Wake(req.Type)

	case MsgRegisterDevice:
		var req validators.RegisterDeviceRequest
		if !s.decode(data, &req) {
			return
		}
		s.registerDevice(&req)

	default:
		s.send(MsgError, errorMessage{Code: utils.CodeUnknownMessage, Message: "unknown message type " + msgType})
	}
}

func (s *Session) tracking(msgType, assignmentID string) {
	user, ok := s.User()
	if !ok {
		s.sendError(identity.ErrNotSignedIn, "")
		return
	}

	if msgType == MsgTrackingStop {
		if err := s.deps.Tracking.Stop(user.UserID, assignmentID); err != nil {
			s.sendError(err, "")
			return
		}
		s.send(MsgTracking, map[string]interface{}{"assignment_id": assignmentID, "active": false})
		return
	}

	info, err := s.deps.Tracking.Start(s.ctx, user.UserID, assignmentID)
	if err != nil {
		s.sendError(err, "")
		return
	}
	s.send(MsgTracking, map[string]interface{}{"assignment_id": info.AssignmentID, "active": true, "membership": info.Membership})
}

func (s *Session) registerDevice(req *validators.RegisterDeviceRequest) {
	user, ok := s.User()
	if !ok {
		s.sendError(identity.ErrNotSignedIn, "")
		return
	}
	if s.deps.Alerts == nil {
		return
	}
	if req.Phone == "" {
		req.Phone = user.Phone
	}
	if err := s.deps.Alerts.RegisterDevice(s.ctx, user.UserID, req); err != nil {
		s.sendError(err, "")
	}
}

func (s *Session) onAuthChange(userID string) {
	var (
		d     *dispatch.Dispatcher
		unsub func()
	)
	if userID != "" {
		d = dispatch.New(s.deps.Claims, s.vibrator(), s.deps.Clock, s.deps.Dispatch, s.logger.WithUserID(userID))
		unsub = d.Subscribe(func(snap dispatch.Snapshot) { s.send(MsgOfferState, snap) })
	}

	s.mu.Lock()
	old, oldUnsub := s.dispatcher, s.unsubscribe
	s.dispatcher, s.owner, s.unsubscribe = d, userID, unsub
	s.mu.Unlock()

	if old != nil {
		oldUnsub()
		old.Close()
	}
}

func (s *Session) vibrator() alert.Vibrator {
	return alert.VibratorFunc(func(pattern []int) {
		s.send(MsgVibrate, vibrateMessage{PatternMS: pattern})
	})
}

func (s *Session) result(action, offerID string, err error) {
	res := OfferResult{Action: action, OfferID: offerID, OK: err == nil}
	if err != nil {
		res.Code, _ = ErrorCode(err)
		res.Message = err.Error()
	}
	s.send(MsgOfferResult, res)
}

func (s *Session) decode(data json.RawMessage, dest interface{}) bool {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.send(MsgError, errorMessage{Code: utils.CodeBadMessage, Message: "malformed message data"})
		return false
	}
	return true
}

func (s *Session) sendError(err error, code string) {
	if code == "" {
		code, _ = ErrorCode(err)
	}
	s.send(MsgError, errorMessage{Code: code, Message: err.Error()})
}

func (s *Session) send(msgType string, data interface{}) {
	if err := s.conn.Send(msgType, data); err != nil {
		s.logger.WithError(err).WithField("type", msgType).Debug("Dropped outbound message")
	}
}

func (s *Session) signedInSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signedInAt
}

// close tears the session down. Tracking sessions are left running so a
// reconnecting device can resume them.
func (s *Session) close() {
	s.cancel()
	<-s.done
	s.stopAuth()

	s.mu.Lock()
	d, unsub := s.dispatcher, s.unsubscribe
	s.dispatcher, s.owner, s.unsubscribe = nil, "", nil
	s.mu.Unlock()

	if d != nil {
		unsub()
		d.Close()
	}
}
