package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/marsdata/config"
	"github.com/use-agent/marsdata/models"
	"github.com/use-agent/marsdata/pipeline"
)

// Browser owns the Chrome process. Each pipeline run acquires its own tab
// through Acquire and must close it when done.
type Browser struct {
	browser  *rod.Browser
	cfg      config.BrowserConfig
	findWait time.Duration
}

// NewBrowser launches Chrome with the configured flags and connects to it.
func NewBrowser(cfg config.BrowserConfig, findWait time.Duration) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	return &Browser{browser: browser, cfg: cfg, findWait: findWait}, nil
}

// Mode implements Acquirer.
func (b *Browser) Mode() string { return "browser" }

// Acquire opens a fresh tab configured with stealth, extra headers and
// resource blocking.
func (b *Browser) Acquire(ctx context.Context) (pipeline.Session, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open browser tab", err)
	}
	// Drop the acquire context so later calls bind their own.
	page = page.Context(context.Background())

	if b.cfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	if err := (proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": "en-US,en;q=0.9"}),
	}).Call(page); err != nil {
		slog.Debug("extra headers not set", "error", err)
	}

	router := setupHijack(page, b.cfg.BlockedResourceTypes, b.cfg.BlockAds)

	return &rodSession{
		page:       page,
		router:     router,
		navTimeout: b.cfg.NavigationTimeout,
		findWait:   b.findWait,
	}, nil
}

// Close kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	slog.Info("closing browser")
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
}
