// Package render turns the stored Scrape Record into the index page and its
// Markdown equivalent.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/use-agent/marsdata/models"
)

//go:embed templates/index.html
var templateFS embed.FS

// Renderer is safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
	md   *converter.Converter
}

func New() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("render: parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, md: newMarkdownConverter()}, nil
}

// newMarkdownConverter keeps tables as GFM tables with minimal padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

type hemisphereView struct {
	Title  string
	ImgURL string
}

// pageView flattens a record for the template. A nil record renders the
// empty-store placeholder.
type pageView struct {
	HasRecord     bool
	RunID         string
	LastModified  string
	NewsTitle     string
	NewsParagraph string
	FeaturedImage string
	HasFacts      bool
	FactsHeader   [2]string
	Facts         []models.FactRow
	Hemispheres   []hemisphereView
}

func newPageView(rec *models.ScrapeRecord) pageView {
	if rec == nil {
		return pageView{}
	}
	v := pageView{
		HasRecord:     true,
		RunID:         rec.RunID,
		LastModified:  rec.LastModified.UTC().Format(time.RFC1123),
		NewsTitle:     models.Deref(rec.NewsTitle),
		NewsParagraph: models.Deref(rec.NewsParagraph),
		FeaturedImage: models.Deref(rec.FeaturedImage),
	}
	if rec.Facts != nil {
		v.HasFacts = true
		v.FactsHeader = rec.Facts.Header
		v.Facts = rec.Facts.Rows
	}
	for _, h := range rec.Hemispheres {
		v.Hemispheres = append(v.Hemispheres, hemisphereView{
			Title:  models.Deref(h.Title),
			ImgURL: models.Deref(h.ImgURL),
		})
	}
	return v
}

// Index renders the full index page.
func (r *Renderer) Index(rec *models.ScrapeRecord) ([]byte, error) {
	return r.execute("index", rec)
}

// Fragment renders only the record section of the index page.
func (r *Renderer) Fragment(rec *models.ScrapeRecord) ([]byte, error) {
	return r.execute("record", rec)
}

func (r *Renderer) execute(name string, rec *models.ScrapeRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, newPageView(rec)); err != nil {
		return nil, fmt.Errorf("render: execute %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Markdown converts the record section to Markdown. With citations set,
// inline links become numbered references.
func (r *Renderer) Markdown(rec *models.ScrapeRecord, citations bool) ([]byte, error) {
	fragment, err := r.Fragment(rec)
	if err != nil {
		return nil, err
	}
	md, err := r.md.ConvertString(string(fragment))
	if err != nil {
		return nil, fmt.Errorf("render: convert markdown: %w", err)
	}
	if citations {
		md = ConvertToCitations(md)
	}
	return []byte(md), nil
}
