package session

import (
	"time"

	"guardshift/internal/tracking"
)

// Inbound message types.
const (
	MsgSignIn         = "sign_in"
	MsgSignOut        = "sign_out"
	MsgOfferAccept    = "offer_accept"
	MsgOfferDecline   = "offer_decline"
	MsgOfferDismiss   = "offer_dismiss"
	MsgLocationUpdate = "location_update"
	MsgTrackingStart  = "tracking_start"
	MsgTrackingStop   = "tracking_stop"
	MsgPushReceived   = "push_received"
	MsgRegisterDevice = "register_device"
)

// Outbound message types.
const (
	MsgWelcome     = "welcome"
	MsgSignedIn    = "signed_in"
	MsgSignedOut   = "signed_out"
	MsgVibrate     = "vibrate"
	MsgOfferState  = "offer_state"
	MsgOfferResult = "offer_result"
	MsgAttendance  = "attendance"
	MsgTracking    = "tracking"
	MsgError       = "error"
)

type signInRequest struct {
	Token string `json:"token"`
}

type pushReceivedRequest struct {
	Type    string `json:"type"`
	ShiftID string `json:"shift_id"`
}

type trackingRequest struct {
	AssignmentID string `json:"assignment_id"`
}

type welcomeMessage struct {
	SessionID string `json:"session_id"`
}

type signedInMessage struct {
	UserID   string `json:"user_id"`
	UserType string `json:"user_type"`
}

type vibrateMessage struct {
	PatternMS []int `json:"pattern_ms"`
}

type OfferResult struct {
	Action  string `json:"action"`
	OfferID string `json:"offer_id,omitempty"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type AttendanceMessage struct {
	AssignmentID string                `json:"assignment_id"`
	Transitions  []tracking.Transition `json:"transitions"`
	RecordedAt   time.Time             `json:"recorded_at"`
}

type errorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
