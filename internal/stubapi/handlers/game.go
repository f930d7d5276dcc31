package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"kidchat/internal/core"
	"kidchat/internal/stubapi/middleware"
	"kidchat/internal/stubapi/state"

	"github.com/gin-gonic/gin"
)

// spellPrefix marks the spelling game under the shared /game routes
const spellPrefix = "spell/"

// GameHandler handles level selection and progress for every game
type GameHandler struct {
	backend *state.Backend
	logger  *slog.Logger
}

// NewGameHandler creates a new game handler
func NewGameHandler(backend *state.Backend, logger *slog.Logger) *GameHandler {
	return &GameHandler{
		backend: backend,
		logger:  logger.With("component", "stub-game"),
	}
}

// SelectLevel handles the fruits and spelling level selection
// GET /game/select_level/{child_id}?desired_level=N
// GET /game/select_level/spell/{child_id}?desired_level=N
func (h *GameHandler) SelectLevel(c *gin.Context) {
	variant, rawChild := splitGamePath(c.Param("path"))
	h.selectLevel(c, variant, rawChild, c.Query("desired_level"), "desired_level")
}

// MysterySelectLevel handles the mystery level selection
// GET /mind-mystery/Select_level?child_id=&selected_level=
func (h *GameHandler) MysterySelectLevel(c *gin.Context) {
	h.selectLevel(c, core.VariantMystery, c.Query("child_id"), c.Query("selected_level"), "selected_level")
}

// StartFruits continues the fruits game
// GET /game/start?child_id=
func (h *GameHandler) StartFruits(c *gin.Context) {
	h.start(c, core.VariantFruits)
}

// StartSpelling continues the spelling game
// GET /game/start/spell?child_id=
func (h *GameHandler) StartSpelling(c *gin.Context) {
	h.start(c, core.VariantSpelling)
}

// StartMystery continues the mystery game
// GET /mind-mystery/start?child_id=
func (h *GameHandler) StartMystery(c *gin.Context) {
	h.start(c, core.VariantMystery)
}

// Progress handles fruits and spelling progress
// GET /game/progress/{child_id}
// GET /game/progress/spell/{child_id}
func (h *GameHandler) Progress(c *gin.Context) {
	variant, rawChild := splitGamePath(c.Param("path"))
	h.progress(c, variant, rawChild)
}

// MysteryProgress handles mystery progress
// GET /mind-mystery/progress/{child_id}
func (h *GameHandler) MysteryProgress(c *gin.Context) {
	h.progress(c, core.VariantMystery, c.Param("child_id"))
}

// CompleteLevel records a finished level so the next one unlocks
// POST /dev/complete-level
func (h *GameHandler) CompleteLevel(c *gin.Context) {
	var req struct {
		ChildID int64  `json:"child_id" binding:"required"`
		Variant string `json:"variant" binding:"required"`
		Level   int    `json:"level" binding:"required"`
		Points  int    `json:"points"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidField(c, "body", "child_id", err.Error())
		return
	}
	variant, err := core.ParseGameVariant(req.Variant)
	if err != nil {
		invalidField(c, "body", "variant", err.Error())
		return
	}
	if !h.authorize(c, req.ChildID) {
		return
	}

	if err := h.backend.CompleteLevel(req.ChildID, variant, req.Level, req.Points); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Level completed"})
}

func (h *GameHandler) selectLevel(c *gin.Context, variant core.GameVariant, rawChild, rawLevel, levelField string) {
	childID, ok := parseChildID(c, rawChild)
	if !ok {
		return
	}
	level, err := strconv.Atoi(rawLevel)
	if err != nil {
		invalidField(c, "query", levelField, "value is not a valid integer")
		return
	}
	if !h.authorize(c, childID) {
		return
	}

	gs, err := h.backend.SelectLevel(childID, variant, level)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("Level selected",
		"child_id", childID,
		"variant", variant,
		"level", level,
		"session_id", gs.SessionID,
	)
	c.JSON(http.StatusOK, gameBody(gs))
}

func (h *GameHandler) start(c *gin.Context, variant core.GameVariant) {
	childID, ok := parseChildID(c, c.Query("child_id"))
	if !ok {
		return
	}
	if !h.authorize(c, childID) {
		return
	}

	gs, err := h.backend.StartDefault(childID, variant)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gameBody(gs))
}

func (h *GameHandler) progress(c *gin.Context, variant core.GameVariant, rawChild string) {
	childID, ok := parseChildID(c, rawChild)
	if !ok {
		return
	}
	if !h.authorize(c, childID) {
		return
	}

	snap, err := h.backend.Progress(childID, variant)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// authorize rejects children the token may not act for. Not-found is used
// instead of forbidden so callers never mistake it for a locked level.
func (h *GameHandler) authorize(c *gin.Context, childID int64) bool {
	acc, ok := middleware.Account(c)
	if !ok || !h.backend.CanAccessChild(acc, childID) {
		detail(c, http.StatusNotFound, "Child not found")
		return false
	}
	return true
}

func gameBody(gs *state.GameStart) gin.H {
	return gin.H{
		"session_id":   gs.SessionID,
		"child_id":     gs.ChildID,
		"variant":      gs.Variant,
		"level":        gs.Level,
		"total_levels": gs.TotalLevels,
		"unlocked":     true,
	}
}

// splitGamePath maps a /game catch-all path to its variant and child id
func splitGamePath(path string) (core.GameVariant, string) {
	path = strings.TrimPrefix(path, "/")
	if rest, ok := strings.CutPrefix(path, spellPrefix); ok {
		return core.VariantSpelling, rest
	}
	return core.VariantFruits, path
}

func parseChildID(c *gin.Context, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		invalidField(c, "path", "child_id", "value is not a valid child id")
		return 0, false
	}
	return id, true
}
