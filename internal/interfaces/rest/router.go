// Package rest assembles the HTTP API of the analysis service.
package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/Controversy-Insight/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Controversy-Insight/internal/interfaces/rest/handlers"
	"github.com/turtacn/Controversy-Insight/internal/interfaces/rest/middleware"
)

// RouterConfig aggregates the handlers and cross-cutting pieces of the route
// tree. Nil handlers leave their routes unregistered.
type RouterConfig struct {
	Runs   *handlers.RunHandler
	Health *handlers.HealthHandler

	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	// CORS is applied when it lists at least one origin.
	CORS middleware.CORSConfig

	SlowThreshold time.Duration
	Logger        logging.Logger
}

// NewRouter builds the complete route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.SlowThreshold, "/healthz", "/readyz", "/metrics"))
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORS))
	}

	if cfg.Health != nil {
		r.GET("/healthz", cfg.Health.Liveness)
		r.GET("/readyz", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := r.Group("/api/v1")
	registerRunRoutes(api, cfg.Runs)

	return r
}

func registerRunRoutes(api *gin.RouterGroup, h *handlers.RunHandler) {
	if h == nil {
		return
	}
	api.GET("/runs", h.List)
	api.GET("/runs/:runID", h.Get)
	api.GET("/runs/:runID/report", h.Report)
	api.GET("/runs/:runID/report/download", h.Download)
	api.GET("/runs/:runID/questions", h.Questions)
	api.GET("/runs/:runID/questions/:questionID/scores", h.Scores)
	api.GET("/runs/:runID/leaderboard", h.Leaderboard)
	api.GET("/runs/:runID/correlation", h.Correlation)
	api.GET("/reports/latest", h.Latest)
}
