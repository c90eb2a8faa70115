package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/mossy-p/signal-relay/config"
	"github.com/mossy-p/signal-relay/internal/metrics"
	"github.com/mossy-p/signal-relay/internal/ratelimit"
	"github.com/mossy-p/signal-relay/internal/signaling"
	"github.com/mossy-p/signal-relay/internal/token"
)

// Deps are the components the router serves
type Deps struct {
	Config   *config.Config
	Logger   *slog.Logger
	Service  *signaling.Service
	Presence PresenceCounter // nil when Redis is disabled
	Issuer   *token.Issuer
	Metrics  *metrics.Metrics
}

// NewRouter wires up all HTTP routes and middleware
func NewRouter(d Deps) http.Handler {
	if d.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(d.Logger))

	// Origin filter runs before routing
	router.Use(OriginFilter(d.Config.AllowedOrigins))

	limiter := ratelimit.PerMinute(d.Config.ConnectRatePerMinute)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	// WebSocket signaling - room comes from the "room" query parameter
	router.GET("/signal", limiter.Middleware(), HandleSignaling(d.Service))

	// Media server token for the separate LiveKit deployment
	router.GET("/getToken", limiter.Middleware(), GetToken(d.Issuer, d.Logger))

	// Room inspection API (public)
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/rooms", ListRooms(d.Service.Registry()))
		apiGroup.GET("/rooms/:roomId", GetRoom(d.Service.Registry(), d.Presence, d.Logger))
	}

	return cors.New(cors.Options{
		AllowedOrigins:   d.Config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: len(d.Config.AllowedOrigins) > 0,
	}).Handler(router)
}
