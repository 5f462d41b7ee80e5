package models

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Success indicates whether the run completed and the record was stored.
	Success bool `json:"success"`

	// RunID identifies the stored record. Empty on failure.
	RunID string `json:"run_id,omitempty"`

	// ScrapedAt is the record timestamp in RFC 3339 form.
	ScrapedAt string `json:"scraped_at,omitempty"`

	// Changed reports whether the content differs from the previously
	// stored record.
	Changed bool `json:"changed"`

	// DurationMs is the end-to-end run duration in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// RecordResponse is the JSON form of GET /api/v1/mars.
type RecordResponse struct {
	Success bool          `json:"success"`
	Record  *ScrapeRecord `json:"record,omitempty"`
	Error   *ErrorDetail  `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"` // "healthy" or "degraded"
	Uptime    string `json:"uptime"`
	FetchMode string `json:"fetch_mode"`
	LastRun   string `json:"last_run,omitempty"`
	Version   string `json:"version"`
}
