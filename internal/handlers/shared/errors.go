package handlers

import (
	"errors"
	"net/http"

	"guardshift/internal/session"
	"guardshift/internal/utils"
	"guardshift/internal/validators"
	"guardshift/pkg/logger"

	"github.com/gin-gonic/gin"
)

// respondError writes err using the shared error code table.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	var verrs validators.ValidationErrors
	if errors.As(err, &verrs) {
		utils.ValidationErrorResponse(c, verrs.Map())
		return
	}

	code, status := session.ErrorCode(err)
	if status == http.StatusInternalServerError {
		log.WithRequestID(c.GetString(utils.ContextRequestID)).WithError(err).Error("Request failed")
		utils.InternalServerErrorResponse(c)
		return
	}
	utils.ErrorResponse(c, status, code, err.Error())
}
