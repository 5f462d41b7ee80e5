package scraper

import (
	"context"
	"fmt"

	"github.com/use-agent/marsdata/config"
	"github.com/use-agent/marsdata/pipeline"
)

// Acquirer hands out one rendering session per pipeline run.
type Acquirer interface {
	// Acquire opens a session. The caller must Close it.
	Acquire(ctx context.Context) (pipeline.Session, error)

	// Mode names the session implementation ("browser" or "http").
	Mode() string

	// Close releases shared resources such as the browser process.
	Close()
}

// HTTPAcquirer creates static HTTP sessions.
type HTTPAcquirer struct {
	cfg   config.FetchConfig
	proxy string
}

// NewHTTPAcquirer returns an Acquirer of HTTPSessions.
func NewHTTPAcquirer(cfg config.FetchConfig, proxy string) *HTTPAcquirer {
	return &HTTPAcquirer{cfg: cfg, proxy: proxy}
}

func (a *HTTPAcquirer) Acquire(context.Context) (pipeline.Session, error) {
	return NewHTTPSession(a.cfg, a.proxy), nil
}

func (a *HTTPAcquirer) Mode() string { return "http" }

func (a *HTTPAcquirer) Close() {}

// NewAcquirer picks the session implementation named by cfg.Fetch.Mode.
func NewAcquirer(cfg *config.Config) (Acquirer, error) {
	switch cfg.Fetch.Mode {
	case "browser", "":
		b, err := NewBrowser(cfg.Browser, cfg.Pipeline.ReadyWait)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "http":
		return NewHTTPAcquirer(cfg.Fetch, cfg.Browser.Proxy), nil
	default:
		return nil, fmt.Errorf("unknown fetch mode %q (want browser or http)", cfg.Fetch.Mode)
	}
}
