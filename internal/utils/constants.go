package utils

// Application Constants
const (
	AppName    = "guardshift"
	AppVersion = "1.0.0"
)

// User types carried in access tokens
const (
	UserTypePersonnel = "personnel"
	UserTypeAdmin     = "admin"
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidToken     = "invalid token"
	ErrInvalidInput     = "invalid input"
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrForbidden        = "forbidden"
	ErrValidationFailed = "validation failed"
)

// Error codes returned in APIError.Code
const (
	CodeOfferNotPending     = "OFFER_NOT_PENDING"
	CodeShiftAlreadyClaimed = "SHIFT_ALREADY_CLAIMED"
	CodeDispatcherBusy      = "DISPATCHER_BUSY"
	CodeNoCurrentOffer      = "NO_CURRENT_OFFER"
	CodeNoSession           = "NO_SESSION"
	CodeTrackingNotActive   = "TRACKING_NOT_ACTIVE"
	CodeAssignmentNotOwned  = "ASSIGNMENT_NOT_OWNED"
	CodeShiftNotOpen        = "SHIFT_NOT_OPEN"
	CodeInvalidSample       = "INVALID_SAMPLE"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeNotSignedIn         = "NOT_SIGNED_IN"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeBadMessage          = "BAD_MESSAGE"
	CodeUnknownMessage      = "UNKNOWN_MESSAGE"
	CodeInternal            = "INTERNAL_ERROR"
)

// Event Types
const (
	EventOfferCreated  = "offer_created"
	EventOfferAlerted  = "offer_alerted"
	EventOfferShown    = "offer_shown"
	EventOfferQueued   = "offer_queued"
	EventOfferAccepted = "offer_accepted"
	EventOfferDeclined = "offer_declined"
	EventOfferExpired  = "offer_expired"
	EventOfferLost     = "offer_lost_race"
	EventCheckIn       = "auto_check_in"
	EventCheckOut      = "auto_check_out"
)

// Geographic Constants
const (
	EarthRadiusMeters = 6371000.0
)
