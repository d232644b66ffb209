package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roomledger/backend/internal/apperr"
)

// StatusFor maps an error kind to an HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrActivation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error sends the status and message for a service error. Internal errors
// are reported as fallback so storage details never reach the client.
func Error(c *gin.Context, err error, fallback string) {
	status := StatusFor(err)
	msg := fallback
	if status != http.StatusInternalServerError {
		msg = apperr.Message(err, err.Error())
	}
	Fail(c, status, msg)
}
