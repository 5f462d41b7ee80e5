package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/marsdata/api/handler"
	"github.com/use-agent/marsdata/api/middleware"
	"github.com/use-agent/marsdata/cache"
	"github.com/use-agent/marsdata/config"
	"github.com/use-agent/marsdata/render"
)

// Runner triggers scrape runs and reports on them.
type Runner interface {
	handler.Trigger
	handler.StatusReporter
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:     Recovery → Logger
//	/api/v1:    Auth → RateLimit on POST /scrape only
//
// The index page, its /scrape button and the read API stay open. ctx stops
// background middleware goroutines.
func NewRouter(ctx context.Context, cfg *config.Config, rn Runner, rr handler.RecordReader, rd *render.Renderer, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/", handler.Index(rr, rd, cc))
	r.GET("/scrape", handler.RunNow(rn))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(rn, startTime))
	v1.GET("/mars", handler.Record(rr, rd, cc))

	protected := v1.Group("")
	protected.Use(middleware.Auth(cfg.Auth))
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))
	protected.POST("/scrape", handler.Scrape(rn))

	return r
}
