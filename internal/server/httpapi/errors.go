package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/server/users"
)

const (
	msgInvalidBody      = "Invalid request body"
	msgTokenRequired    = "Access token required"
	msgInvalidToken     = "Invalid or expired token"
	msgMethodNotAllowed = "Method not allowed"
	msgNotFound         = "Not found"
	msgInternal         = "Internal server error"
)

// errorMapping is checked in order; the first match wins.
var errorMapping = []struct {
	err     error
	status  int
	message string
}{
	{users.ErrMissingFields, http.StatusBadRequest, "All fields are required"},
	{users.ErrPasswordMismatch, http.StatusBadRequest, "Passwords do not match"},
	{users.ErrPasswordTooShort, http.StatusBadRequest, "Password must be at least 6 characters"},
	{users.ErrInvalidMobile, http.StatusBadRequest, "Mobile number must be 10 digits"},
	{users.ErrInvalidEmail, http.StatusBadRequest, "Invalid email format"},
	{users.ErrMissingCredentials, http.StatusBadRequest, "Email and password are required"},
	{users.ErrMissingEmail, http.StatusBadRequest, "Email is required"},
	{users.ErrDuplicateEmail, http.StatusBadRequest, "Email already exists. Try registering with another email ID."},
	{users.ErrDuplicateMobile, http.StatusBadRequest, "Mobile number already exists. Register with another mobile number."},
	{users.ErrNoUsersYet, http.StatusBadRequest, "No users found. Please register first."},
	{users.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{common.ErrInvalidToken, http.StatusForbidden, msgInvalidToken},
}

// statusFor maps a service error to the HTTP status and client message.
// Anything unrecognized is a 500 with a generic message.
func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.message
		}
	}
	if errors.Is(err, users.ErrValidation) {
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, msgInternal
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}
