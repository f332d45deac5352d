package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/handler"
	"github.com/stemsi/livesession-backend/internal/middleware"
	"github.com/stemsi/livesession-backend/internal/response"
	"github.com/stemsi/livesession-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	LiveSession *handler.LiveSessionHandler
	Participant *handler.ParticipantHandler
	Stream      *handler.StreamHandler
	WS          *handler.WSHandler
	System      *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// joinLimiter guards POST /join; the caller owns its cleanup loop.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	joinLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the access log can carry it.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	live := router.Group("/api/v1/live")

	// ─── 1. Join (Public / Optional Student JWT) ───────────────────────
	{
		live.GET("/join/:code", middleware.NoStore(), handlers.Participant.GetSessionView)
		live.POST("/join",
			joinLimiter.Middleware(),
			middleware.OptionalStudentJWT(authService),
			handlers.Participant.Join,
		)
	}

	// ─── 2. Host Group ─────────────────────────────────────────────────
	host := live.Group("/sessions")
	host.Use(middleware.RequireHostJWT(authService))
	{
		host.POST("", handlers.LiveSession.CreateSession)
		host.GET("", handlers.LiveSession.ListSessions)
		host.GET("/:code", middleware.NoStore(), handlers.LiveSession.GetSession)
		host.PATCH("/:code/status", handlers.LiveSession.UpdateStatus)
		host.DELETE("/:code", handlers.LiveSession.EndSession)
		host.GET("/:code/responses", middleware.NoStore(), handlers.LiveSession.ListResponses)
		host.GET("/:code/dashboard", middleware.NoStore(), handlers.LiveSession.GetDashboard)
		host.GET("/:code/stream", handlers.Stream.StreamSession)
	}

	// Leaderboard is readable by the host and by the session's participants.
	live.GET("/sessions/:code/participants",
		middleware.RequireTokenType(authService, response.ErrForbidden,
			service.TokenTypeHost, service.TokenTypeParticipant),
		middleware.NoStore(),
		handlers.LiveSession.ListParticipants,
	)

	live.GET("/system/status", middleware.RequireHostJWT(authService), handlers.System.Status)

	// ─── 3. Participant Group ──────────────────────────────────────────
	me := live.Group("/me")
	me.Use(middleware.RequireParticipantJWT(authService))
	{
		me.GET("", middleware.NoStore(), handlers.Participant.Me)
		me.PATCH("/phase", handlers.Participant.UpdatePhase)
		me.POST("/checks", handlers.Participant.SubmitCheck)
		me.POST("/answers", handlers.Participant.SubmitAnswer)
		me.PUT("/progress", handlers.Participant.SaveProgress)
		me.POST("/scrubs", handlers.Participant.ReportScrub)
	}

	// ─── 4. WebSocket Group (Participant token via ?token=) ────────────
	ws := router.Group("/ws/v1/live")
	ws.Use(middleware.RequireParticipantJWT(authService))
	{
		ws.GET("/me", handlers.WS.ParticipantStream)
	}

	return router
}
