package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"kidchat/internal/stubapi/middleware"
	"kidchat/internal/stubapi/state"

	"github.com/gin-gonic/gin"
)

// writeError renders a backend error in the {"detail": ...} shape the app
// expects
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	var locked *state.LevelLockedError
	switch {
	case errors.As(err, &locked):
		detail(c, http.StatusForbidden, fmt.Sprintf("Level %d locked", locked.Level))
	case errors.Is(err, state.ErrInvalidCredentials):
		detail(c, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, state.ErrAccountBlocked):
		detail(c, http.StatusForbidden, "Your account has been blocked by your parent")
	case errors.Is(err, state.ErrChildNotFound):
		detail(c, http.StatusNotFound, "Child not found")
	case errors.Is(err, state.ErrUserNotFound):
		detail(c, http.StatusNotFound, "User not found")
	case errors.Is(err, state.ErrLevelNotFound):
		detail(c, http.StatusNotFound, "Level not found")
	case errors.Is(err, state.ErrInvalidOTP):
		detail(c, http.StatusBadRequest, "Invalid or expired OTP")
	case errors.Is(err, state.ErrWrongPassword):
		detail(c, http.StatusBadRequest, "Old password is incorrect")
	default:
		logger.Error("Request failed",
			"request_id", c.GetString(middleware.RequestIDKey),
			"error", err,
		)
		detail(c, http.StatusInternalServerError, "Internal server error")
	}
}

func detail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"detail": message})
}

// invalidField renders a validation error list
func invalidField(c *gin.Context, location, field, message string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"detail": []gin.H{{
			"loc": []string{location, field},
			"msg": message,
		}},
	})
}
