package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/gatherer/api/handler"
	"github.com/use-agent/gatherer/api/middleware"
	"github.com/use-agent/gatherer/cache"
	"github.com/use-agent/gatherer/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
// rp may be nil, in which case the report routes are not mounted.
func NewRouter(cp handler.Capturer, rp handler.Reports, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	// Route on the escaped path so a test name may carry an encoded "/".
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(cp, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Capture
	protected.POST("/capture", handler.Capture(cp, cc))

	// Reports
	if rp != nil {
		protected.GET("/reports/:test", handler.GetReport(rp))
		protected.GET("/reports/:test/screenshots/:file", handler.GetReportScreenshot(rp))
	}

	return r
}
