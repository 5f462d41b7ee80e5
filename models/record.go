package models

import "time"

// FactsTable is the normalized form of a two-column facts table.
// Header always holds the canonical labels ("description" and the value
// label); Rows keep the source order.
type FactsTable struct {
	Header [2]string `json:"header"`
	Rows   []FactRow `json:"rows"`
}

// FactRow is one labelled row of a facts table.
type FactRow struct {
	Description string `json:"description"`
	Value       string `json:"value"`
}

// Map returns the table as a label → value mapping keyed by the first column.
// A repeated label keeps the value of its last occurrence.
func (t *FactsTable) Map() map[string]string {
	if t == nil {
		return nil
	}
	m := make(map[string]string, len(t.Rows))
	for _, r := range t.Rows {
		m[r.Description] = r.Value
	}
	return m
}

// Hemisphere is one {title, image URL} pair from the hemisphere results list.
// Either field may be nil when the detail page lacked it.
type Hemisphere struct {
	Title  *string `json:"title"`
	ImgURL *string `json:"img_url"`
}

// ScrapeRecord is the normalized output of one pipeline run.
//
// Absent fields are nil. "Not found" and "found but empty" are both nil.
type ScrapeRecord struct {
	// RunID identifies the pipeline run that produced this record.
	RunID string `json:"run_id"`

	NewsTitle     *string `json:"news_title"`
	NewsParagraph *string `json:"news_paragraph"`

	// FeaturedImage is the absolute URL of the featured image.
	FeaturedImage *string `json:"featured_image"`

	Facts *FactsTable `json:"facts"`

	// Hemispheres holds exactly one entry per list index visited, in
	// source order.
	Hemispheres []Hemisphere `json:"hemispheres"`

	// LastModified is when the run finished extracting.
	LastModified time.Time `json:"last_modified"`

	// Fingerprint is an exact 64-bit digest of the content fields. It ignores
	// RunID and LastModified so that two runs over unchanged pages agree.
	Fingerprint uint64 `json:"fingerprint,string"`
}

// Text normalizes s into the absence convention used by ScrapeRecord:
// the empty string becomes nil.
func Text(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "" for an absent field.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
