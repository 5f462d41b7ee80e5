package models

// RecordQuery holds the query parameters of GET /api/v1/mars.
type RecordQuery struct {
	// Format selects the representation.
	// Allowed: "json" (default), "markdown", "html".
	Format string `form:"format" binding:"omitempty,oneof=json markdown html"`

	// Citations turns Markdown links into numbered references.
	Citations bool `form:"citations"`
}

// Defaults applies default values to unset fields.
func (q *RecordQuery) Defaults() {
	if q.Format == "" {
		q.Format = "json"
	}
}

// CacheKey identifies the rendered view this query asks for.
func (q *RecordQuery) CacheKey() string {
	if q.Format == "markdown" && q.Citations {
		return "markdown+citations"
	}
	return q.Format
}
