package session

import (
	"errors"
	"net/http"

	"guardshift/internal/dispatch"
	"guardshift/internal/identity"
	"guardshift/internal/repositories/interfaces"
	"guardshift/internal/services"
	"guardshift/internal/tracking"
	"guardshift/internal/utils"
	"guardshift/internal/validators"
)

// ErrNoSession means the candidate has no signed-in device channel.
var ErrNoSession = errors.New("no signed-in device session")

// ErrorCode maps a domain error to the stable code and HTTP status shared
// by the REST handlers and the device channel.
func ErrorCode(err error) (string, int) {
	var verrs validators.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return utils.CodeValidationFailed, http.StatusBadRequest
	case errors.Is(err, dispatch.ErrBusy):
		return utils.CodeDispatcherBusy, http.StatusConflict
	case errors.Is(err, dispatch.ErrNoCurrentOffer):
		return utils.CodeNoCurrentOffer, http.StatusNotFound
	case errors.Is(err, services.ErrOfferNotPending):
		return utils.CodeOfferNotPending, http.StatusConflict
	case errors.Is(err, services.ErrShiftAlreadyClaimed):
		return utils.CodeShiftAlreadyClaimed, http.StatusConflict
	case errors.Is(err, services.ErrShiftNotOpen):
		return utils.CodeShiftNotOpen, http.StatusConflict
	case errors.Is(err, services.ErrTrackingNotActive):
		return utils.CodeTrackingNotActive, http.StatusNotFound
	case errors.Is(err, services.ErrAssignmentNotOwned):
		return utils.CodeAssignmentNotOwned, http.StatusForbidden
	case errors.Is(err, tracking.ErrInvalidSample):
		return utils.CodeInvalidSample, http.StatusBadRequest
	case errors.Is(err, identity.ErrNotSignedIn):
		return utils.CodeNotSignedIn, http.StatusUnauthorized
	case errors.Is(err, ErrNoSession):
		return utils.CodeNoSession, http.StatusConflict
	case errors.Is(err, interfaces.ErrNotFound):
		return utils.CodeNotFound, http.StatusNotFound
	default:
		return utils.CodeInternal, http.StatusInternalServerError
	}
}
