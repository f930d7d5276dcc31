package handlers

import (
	"net/http"
	"time"

	"kidchat/internal/stubapi/state"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports liveness and the size of the seeded data
type HealthHandler struct {
	backend *state.Backend
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(backend *state.Backend) *HealthHandler {
	return &HealthHandler{backend: backend, started: time.Now()}
}

// GetHealth returns the stub's status
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	stats := h.backend.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":        "UP",
		"service":       "kidchat-stub",
		"uptime":        time.Since(h.started).Round(time.Second).String(),
		"parents":       stats.Parents,
		"children":      stats.Children,
		"active_tokens": stats.Tokens,
		"total_levels":  stats.TotalLevels,
	})
}
