package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/models"
)

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when every run slot is taken.
func Health(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := d.Runner.Stats()

		status := "healthy"
		if stats.MaxConcurrent > 0 && stats.ActiveRuns >= stats.MaxConcurrent {
			status = "degraded"
		}
		pending := 0
		if d.Logins != nil {
			pending = d.Logins.Pending()
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:        status,
			Uptime:        stats.Uptime.Round(time.Second).String(),
			ActiveRuns:    stats.ActiveRuns,
			MaxConcurrent: stats.MaxConcurrent,
			PendingLogins: pending,
			Version:       d.Version,
		})
	}
}
