package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/pkg/logger"
	"github.com/huangang/condovote/pkg/response"
)

// respondError maps an engine error to its HTTP outcome. Every response
// carries the machine-readable reason; infrastructure failures are logged
// and reported as retryable without echoing the cause.
func respondError(c *gin.Context, err error) {
	var appErr *response.AppError
	switch services.KindOf(err) {
	case services.KindNotFound:
		appErr = response.NewNotFound(err.Error())
	case services.KindInvalidState,
		services.KindAlreadyVoted,
		services.KindAlreadyApproved,
		services.KindAlreadyRejected:
		appErr = response.NewConflict(err.Error())
	case services.KindOtpInvalid:
		appErr = response.NewUnprocessable(err.Error())
	case services.KindSessionInvalid:
		appErr = response.NewUnauthorized(err.Error())
	case services.KindNotEligible:
		appErr = response.NewForbidden(err.Error())
	case services.KindNotAProxy, services.KindValidation:
		appErr = response.NewBadRequest(err.Error())
	default:
		logger.Error().Err(err).Str("method", c.Request.Method).Str("path", c.FullPath()).Msg("[Handler] request failed")
		appErr = response.NewUnavailable("service temporarily unavailable, please retry")
	}
	response.Error(c, appErr.WithReason(services.ReasonOf(err)))
}

// paramID parses a numeric path parameter, answering 400 when malformed
func paramID(c *gin.Context, name, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+what+" id")
		return 0, false
	}
	return uint(id), true
}
