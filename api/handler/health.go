package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/gatherer/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// StatsProvider reports page pool utilisation.
type StatsProvider interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when > 80% of pages are active.
func Health(sp StatsProvider, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sp.Stats()

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Version:   Version,
		})
	}
}
