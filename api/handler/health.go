package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/marsdata/models"
	"github.com/use-agent/marsdata/runner"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatusReporter exposes the state of the run trigger.
type StatusReporter interface {
	LastRun() *runner.Status
	Mode() string
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when the most recent run failed.
func Health(sr StatusReporter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:    "healthy",
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			FetchMode: sr.Mode(),
			Version:   Version,
		}
		if last := sr.LastRun(); last != nil {
			resp.LastRun = last.At.UTC().Format(time.RFC3339)
			if last.Err != nil {
				resp.Status = "degraded"
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
