package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wearesierraleone/frontend/internal/db"
	"github.com/wearesierraleone/frontend/internal/models"
)

// statusFor maps the fault taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case models.CodeValidationFault:
		return http.StatusBadRequest
	case models.CodeNotFound:
		return http.StatusNotFound
	case models.CodeNetworkFault:
		return http.StatusServiceUnavailable
	case models.CodeStorageFault:
		if errors.Is(err, db.ErrQuotaExceeded) {
			return http.StatusInsufficientStorage
		}
	}
	return http.StatusInternalServerError
}

// respondError writes {success:false, error} and records err on the
// context for the request log. Internal details stay out of 500 bodies.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	var appErr *models.AppError
	if status == http.StatusNotFound && errors.As(err, &appErr) {
		msg = appErr.Message
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}
