package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Fetch     FetchConfig
	Pipeline  PipelineConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all browser traffic.
	Proxy string

	// Stealth injects anti-bot-detection evasions into every tab.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types the tab never loads.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to well-known ad and tracking domains.
	BlockAds bool // default: true

	// NavigationTimeout is the max time for a single page load.
	NavigationTimeout time.Duration // default: 30s
}

// FetchConfig selects the rendering session implementation.
type FetchConfig struct {
	// Mode is "browser" (headless Chrome) or "http" (static fetch, no JS).
	Mode string // default: "browser"

	// HTTPTimeout is the per-request deadline of the http session.
	HTTPTimeout time.Duration // default: 15s
}

// PipelineConfig lists the fixed scrape targets.
type PipelineConfig struct {
	NewsURL string

	ImageURL string
	// ImageOrigin is prepended to the relative featured image path.
	ImageOrigin string

	FactsURL string
	// FactsValueLabel is the canonical name of the facts value column.
	FactsValueLabel string // default: "value"

	HemispheresEnabled bool // default: true
	HemispheresURL     string
	HemisphereCount    int // default: 4

	// ReadyWait is the readiness wait budget applied to every target.
	ReadyWait time.Duration // default: 1s

	// RunTimeout bounds a whole pipeline run.
	RunTimeout time.Duration // default: 3m
}

// StoreConfig controls record persistence.
type StoreConfig struct {
	// DSN is the sqlite data source name.
	DSN string // default: "file:mars.db?_pragma=busy_timeout(5000)"
}

// AuthConfig controls API key authentication of the /api/v1 trigger.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// CacheConfig controls the rendered view cache.
type CacheConfig struct {
	// TTL is how long a rendered view is served before re-rendering.
	TTL time.Duration // default: 10m
}

// WebhookConfig controls run notifications.
type WebhookConfig struct {
	// URL receives a signed POST after every run. Empty disables webhooks.
	URL string

	// Secret signs the payload with HMAC-SHA256 when non-empty.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("MARS_HOST", "0.0.0.0"),
			Port: envIntOr("MARS_PORT", 8080),
			Mode: envOr("MARS_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:             envBoolOr("MARS_HEADLESS", true),
			NoSandbox:            envBoolOr("MARS_NO_SANDBOX", false),
			BrowserBin:           os.Getenv("MARS_BROWSER_BIN"),
			Proxy:                os.Getenv("MARS_PROXY"),
			Stealth:              envBoolOr("MARS_STEALTH", true),
			BlockedResourceTypes: envSliceOr("MARS_BLOCKED_RESOURCES", []string{"Font", "Media"}),
			BlockAds:             envBoolOr("MARS_BLOCK_ADS", true),
			NavigationTimeout:    envDurationOr("MARS_NAV_TIMEOUT", 30*time.Second),
		},
		Fetch: FetchConfig{
			Mode:        envOr("MARS_FETCH_MODE", "browser"),
			HTTPTimeout: envDurationOr("MARS_HTTP_TIMEOUT", 15*time.Second),
		},
		Pipeline: PipelineConfig{
			NewsURL:            envOr("MARS_NEWS_URL", "https://mars.nasa.gov/news/"),
			ImageURL:           envOr("MARS_IMAGE_URL", "https://www.jpl.nasa.gov/spaceimages/?search=&category=Mars"),
			ImageOrigin:        envOr("MARS_IMAGE_ORIGIN", "https://www.jpl.nasa.gov"),
			FactsURL:           envOr("MARS_FACTS_URL", "https://space-facts.com/mars/"),
			FactsValueLabel:    envOr("MARS_FACTS_VALUE_LABEL", "value"),
			HemispheresEnabled: envBoolOr("MARS_HEMISPHERES", true),
			HemispheresURL:     envOr("MARS_HEMISPHERES_URL", "https://astrogeology.usgs.gov/search/results?q=hemisphere+enhanced&k1=target&v1=Mars"),
			HemisphereCount:    envIntOr("MARS_HEMISPHERE_COUNT", 4),
			ReadyWait:          envDurationOr("MARS_READY_WAIT", time.Second),
			RunTimeout:         envDurationOr("MARS_RUN_TIMEOUT", 3*time.Minute),
		},
		Store: StoreConfig{
			DSN: envOr("MARS_DB_DSN", "file:mars.db?_pragma=busy_timeout(5000)"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("MARS_AUTH_ENABLED", true),
			APIKeys: envSliceOr("MARS_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("MARS_RATE_RPS", 1.0),
			Burst:             envIntOr("MARS_RATE_BURST", 3),
		},
		Cache: CacheConfig{
			TTL: envDurationOr("MARS_CACHE_TTL", 10*time.Minute),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("MARS_WEBHOOK_URL"),
			Secret: os.Getenv("MARS_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("MARS_LOG_LEVEL", "info"),
			Format: envOr("MARS_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
