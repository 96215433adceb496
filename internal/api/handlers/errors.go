// server/internal/api/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"relief-dispatch-api-server/internal/logger"
	"relief-dispatch-api-server/internal/models"

	"github.com/gin-gonic/gin"
)

var statuses = []struct {
	err    error
	status int
}{
	{models.ErrValidation, http.StatusBadRequest},
	{models.ErrNotFound, http.StatusNotFound},
	{models.ErrAlreadyExists, http.StatusConflict},
	{models.ErrNotAuthorized, http.StatusForbidden},
	{models.ErrAlreadyClaimed, http.StatusConflict},
	{models.ErrInvalidTransition, http.StatusConflict},
	{models.ErrVolunteerBusy, http.StatusConflict},
	{models.ErrNotInProgress, http.StatusConflict},
	{models.ErrDispatchClosed, http.StatusConflict},
	{models.ErrNoLocationYet, http.StatusNotFound},
	{models.ErrNoCentresAvailable, http.StatusNotFound},
	{models.ErrRoutingUnavailable, http.StatusServiceUnavailable},
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes {"error", "code"}. Unknown errors are logged and
// hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.L().Error("request_failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(status, gin.H{"error": "Internal server error", "code": "INTERNAL"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": models.Code(err)})
}

// bindError reports a request body that failed gin binding.
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": models.Code(models.ErrValidation)})
}
