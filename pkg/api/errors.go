package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmos-bridge/bridge/pkg/executor"
	"github.com/llmos-bridge/bridge/pkg/modules"
	"github.com/llmos-bridge/bridge/pkg/plan"
	"github.com/llmos-bridge/bridge/pkg/services"
	"github.com/llmos-bridge/bridge/pkg/triggers"
)

// abortError writes the uniform JSON error envelope and stops the chain.
func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// mapError translates domain errors into HTTP status codes. Anything
// unrecognised is a 500 with a generic message; callers that need the
// detail get it from the log.
func (s *Server) mapError(c *gin.Context, err error) {
	var unknownAction *modules.UnknownActionError
	var validation *plan.ValidationError

	switch {
	case errors.Is(err, services.ErrNotFound):
		abortError(c, http.StatusNotFound, "resource not found")
	case errors.Is(err, plan.ErrSchema):
		abortError(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &validation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":      "plan validation failed",
			"violations": validation.Violations,
		})
	case errors.As(err, &unknownAction):
		abortError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, executor.ErrNotRunning):
		abortError(c, http.StatusConflict, "plan is not running")
	case errors.Is(err, executor.ErrNoPendingApproval):
		abortError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, triggers.ErrDaemonDisabled):
		abortError(c, http.StatusServiceUnavailable, "trigger daemon is disabled")
	case errors.Is(err, triggers.ErrChainDepthExceeded):
		abortError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		s.deps.Logger.Error("Unexpected API error", "error", err)
		abortError(c, http.StatusInternalServerError, "internal server error")
	}
}

// mapTriggerError handles registration failures, where anything not a
// lifecycle error is a malformed definition.
func (s *Server) mapTriggerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, triggers.ErrDaemonDisabled):
		abortError(c, http.StatusServiceUnavailable, "trigger daemon is disabled")
	case errors.Is(err, triggers.ErrChainDepthExceeded):
		abortError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		abortError(c, http.StatusBadRequest, err.Error())
	}
}
