// Package http exposes the matching service over a gin HTTP API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/internal/interfaces/http/handlers"
	"github.com/turtacn/BOMMesh/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware dependencies of the
// route tree.
type RouterConfig struct {
	MatchingHandler *handlers.MatchingHandler
	HealthHandler   *handlers.HealthHandler

	Logger      logging.Logger
	Observer    middleware.HTTPObserver
	RateLimiter *middleware.ClientLimiter
	MaxBodySize int64

	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string
}

// NewRouter builds the gin engine. Run submissions are rate limited and
// body-capped; reads are not.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig(), cfg.Observer),
		middleware.Recovery(cfg.Logger),
	)

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1")
	registerMatchingRoutes(api, cfg)

	return r
}

func registerMatchingRoutes(api *gin.RouterGroup, cfg RouterConfig) {
	h := cfg.MatchingHandler
	if h == nil {
		return
	}
	runs := api.Group("/matching/runs")

	submit := []gin.HandlerFunc{middleware.BodyLimit(cfg.MaxBodySize)}
	if cfg.RateLimiter != nil {
		submit = append(submit, middleware.RateLimit(cfg.RateLimiter))
	}
	runs.POST("", append(submit, h.Run)...)
	runs.GET("", h.List)
	runs.GET("/:id", h.Get)
}
