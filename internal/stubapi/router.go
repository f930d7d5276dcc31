// Package stubapi is a development backend that speaks the learning app's
// REST API. It keeps all state in memory.
package stubapi

import (
	"log/slog"

	"kidchat/internal/stubapi/handlers"
	"kidchat/internal/stubapi/middleware"
	"kidchat/internal/stubapi/state"

	"github.com/gin-gonic/gin"
)

// RouterConfig holds dependencies for the stub router
type RouterConfig struct {
	Backend *state.Backend
	Logger  *slog.Logger
	// DevRoutes enables /dev endpoints used to script progress
	DevRoutes bool
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler(config.Backend)
	router.GET("/health", healthHandler.GetHealth)

	// Account endpoints (no auth)
	authHandler := handlers.NewAuthHandler(config.Backend, config.Logger)
	router.POST("/child-login", authHandler.ChildLogin)
	router.POST("/parent-login", authHandler.ParentLogin)
	router.POST("/forgot-password-child", authHandler.ForgotPasswordChild)
	router.POST("/forgot-password-parent", authHandler.ForgotPasswordParent)
	router.POST("/verify-forgot-password", authHandler.VerifyForgotPassword)

	// Authenticated endpoints
	authed := router.Group("/")
	authed.Use(middleware.BearerAuth(config.Backend))
	{
		authed.POST("/change-parent-password", authHandler.ChangeParentPassword)

		gameHandler := handlers.NewGameHandler(config.Backend, config.Logger)
		authed.GET("/game/select_level/*path", gameHandler.SelectLevel)
		authed.GET("/game/start", gameHandler.StartFruits)
		authed.GET("/game/start/spell", gameHandler.StartSpelling)
		authed.GET("/game/progress/*path", gameHandler.Progress)

		authed.GET("/mind-mystery/Select_level", gameHandler.MysterySelectLevel)
		authed.GET("/mind-mystery/start", gameHandler.StartMystery)
		authed.GET("/mind-mystery/progress/:child_id", gameHandler.MysteryProgress)

		if config.DevRoutes {
			authed.POST("/dev/complete-level", gameHandler.CompleteLevel)
		}
	}

	return router
}
