package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"repairscribe/internal/apperr"
	"repairscribe/internal/logging"
)

// respondError writes err as {error, details?, message?} with the status of
// its kind. Errors without a kind are logged and reported as 500.
func respondError(c *gin.Context, logger logging.Logger, err error) {
	_ = c.Error(err)
	appErr, ok := apperr.As(err)
	if !ok {
		logger.Error(c.Request.Context(), "unhandled error", "path", c.Request.URL.Path, "request_id", c.GetString(requestIDKey), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	body := gin.H{"error": appErr.Message}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	switch appErr.Kind {
	case apperr.KindProvider, apperr.KindProviderRateLimit:
		if cause := providerMessage(appErr); cause != "" {
			body["message"] = cause
		}
	case apperr.KindInternal:
		logger.Error(c.Request.Context(), "internal error", "path", c.Request.URL.Path, "request_id", c.GetString(requestIDKey), "error", err)
		body = gin.H{"error": "Internal server error"}
	}
	c.AbortWithStatusJSON(appErr.Kind.Status(), body)
}

// providerMessage returns the text reported by the remote provider, if any.
func providerMessage(appErr *apperr.Error) string {
	cause := errors.Unwrap(appErr)
	if cause == nil {
		return ""
	}
	return cause.Error()
}
