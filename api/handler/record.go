package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/marsdata/cache"
	"github.com/use-agent/marsdata/models"
	"github.com/use-agent/marsdata/render"
	"github.com/use-agent/marsdata/store"
)

// RecordReader loads the stored record.
type RecordReader interface {
	Latest(ctx context.Context) (*models.ScrapeRecord, error)
}

const (
	contentHTML     = "text/html; charset=utf-8"
	contentMarkdown = "text/markdown; charset=utf-8"
	contentJSON     = "application/json; charset=utf-8"
)

// Index returns a handler for GET /, the page showing the stored record.
// An empty store renders the page with placeholders.
func Index(rr RecordReader, rd *render.Renderer, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v, hit := cc.Get("index"); hit {
			c.Data(http.StatusOK, v.ContentType, v.Body)
			return
		}

		gen := cc.Generation()
		rec, err := rr.Latest(c.Request.Context())
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("load record failed", "error", err)
			c.String(http.StatusInternalServerError, "Could not load Mars data")
			return
		}

		body, err := rd.Index(rec)
		if err != nil {
			slog.Error("render index failed", "error", err)
			c.String(http.StatusInternalServerError, "Could not render Mars data")
			return
		}
		if rec != nil {
			cc.SetIfGen("index", gen, &cache.View{ContentType: contentHTML, Body: body})
		}
		c.Data(http.StatusOK, contentHTML, body)
	}
}

// Record returns a handler for GET /api/v1/mars.
func Record(rr RecordReader, rd *render.Renderer, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.RecordQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, models.RecordResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		q.Defaults()

		key := q.CacheKey()
		if v, hit := cc.Get(key); hit {
			c.Header("X-Cache", "hit")
			c.Data(http.StatusOK, v.ContentType, v.Body)
			return
		}

		gen := cc.Generation()
		rec, err := rr.Latest(c.Request.Context())
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.RecordResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeNotFound,
					Message: "no scrape has been stored yet",
				},
			})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.RecordResponse{
				Success: false,
				Error:   asScrapeError(err).ToDetail(),
			})
			return
		}

		view, err := renderView(rd, rec, &q)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.RecordResponse{
				Success: false,
				Error:   models.NewScrapeError(models.ErrCodeInternal, "render failed", err).ToDetail(),
			})
			return
		}
		cc.SetIfGen(key, gen, view)
		c.Header("X-Cache", "miss")
		c.Data(http.StatusOK, view.ContentType, view.Body)
	}
}

func renderView(rd *render.Renderer, rec *models.ScrapeRecord, q *models.RecordQuery) (*cache.View, error) {
	switch q.Format {
	case "markdown":
		body, err := rd.Markdown(rec, q.Citations)
		if err != nil {
			return nil, err
		}
		return &cache.View{ContentType: contentMarkdown, Body: body}, nil
	case "html":
		body, err := rd.Fragment(rec)
		if err != nil {
			return nil, err
		}
		return &cache.View{ContentType: contentHTML, Body: body}, nil
	default:
		body, err := json.Marshal(models.RecordResponse{Success: true, Record: rec})
		if err != nil {
			return nil, err
		}
		return &cache.View{ContentType: contentJSON, Body: body}, nil
	}
}
