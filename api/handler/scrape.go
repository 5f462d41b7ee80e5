package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/marsdata/models"
	"github.com/use-agent/marsdata/runner"
)

// Trigger starts one scrape run and waits for it.
type Trigger interface {
	RunNow(ctx context.Context) (*runner.Result, error)
}

// Scrape returns a handler for POST /api/v1/scrape.
func Scrape(tr Trigger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		res, err := tr.RunNow(c.Request.Context())
		if err != nil {
			respondError(c, err, time.Since(start).Milliseconds())
			return
		}

		c.JSON(http.StatusOK, models.ScrapeResponse{
			Success:    true,
			RunID:      res.Record.RunID,
			ScrapedAt:  res.Record.LastModified.Format(time.RFC3339),
			Changed:    res.Changed,
			DurationMs: time.Since(start).Milliseconds(),
		})
	}
}

// RunNow returns a handler for GET /scrape, the operator button on the
// index page. The outcome is binary: a redirect to the refreshed index, or
// a plain failure message.
func RunNow(tr Trigger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := tr.RunNow(c.Request.Context()); err != nil {
			slog.Warn("scrape trigger failed", "error", err)
			c.String(http.StatusBadGateway, "Scraping Failed")
			return
		}
		c.Redirect(http.StatusFound, "/")
	}
}
