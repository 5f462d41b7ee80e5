package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/use-agent/marsdata/models"
)

// Field keys of the record.
const (
	FieldNewsTitle     = "news_title"
	FieldNewsParagraph = "news_paragraph"
	FieldFeaturedImage = "featured_image"
	FieldFacts         = "facts"
)

// Pipeline visits a fixed list of targets with one session and merges the
// extracted fields into a ScrapeRecord. A Pipeline is immutable after New
// and can be reused across runs, but each Run needs its own Session.
type Pipeline struct {
	targets     []Target
	hemispheres *HemisphereTarget
	now         func() time.Time
	newID       func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHemispheres enables the repeated-item hemisphere variant.
func WithHemispheres(h HemisphereTarget) Option {
	return func(p *Pipeline) { p.hemispheres = &h }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator overrides the run id source.
func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// New builds a pipeline, compiling every rule selector up front.
func New(targets []Target, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		targets: make([]Target, len(targets)),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for i, t := range targets {
		t.Steps = append([]Step(nil), t.Steps...)
		t.Rules = append([]Rule(nil), t.Rules...)
		if err := t.compile(); err != nil {
			return nil, err
		}
		p.targets[i] = t
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.hemispheres != nil {
		if err := p.hemispheres.compile(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Run executes one pass over all targets.
//
// Per-field extraction failures degrade to absence. Run fails, returning no
// record, only when a page cannot be reached or the session reports an
// error other than ErrNotFound.
func (p *Pipeline) Run(ctx context.Context, s Session) (*models.ScrapeRecord, error) {
	start := time.Now()
	results := make(map[string]FieldResult)

	for i := range p.targets {
		t := &p.targets[i]
		if err := p.visit(ctx, s, t, results); err != nil {
			return nil, err
		}
	}

	var hemispheres []models.Hemisphere
	if p.hemispheres != nil {
		var err error
		hemispheres, err = p.collectHemispheres(ctx, s, p.hemispheres)
		if err != nil {
			return nil, err
		}
	}

	rec := merge(results, hemispheres)
	rec.RunID = p.newID()
	rec.LastModified = p.now().UTC()
	rec.Fingerprint = rec.ComputeFingerprint()

	slog.Info("pipeline run complete",
		"run_id", rec.RunID,
		"targets", len(p.targets),
		"absent", countAbsent(results),
		"hemispheres", len(hemispheres),
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return rec, nil
}

// visit navigates to one target, performs its steps and applies its rules.
func (p *Pipeline) visit(ctx context.Context, s Session, t *Target, results map[string]FieldResult) error {
	if err := s.Navigate(ctx, t.URL); err != nil {
		return categorizeError(err, fmt.Sprintf("navigation to %s failed", t.Name))
	}
	wait(ctx, s, t.Ready, t.Name)

	for i, step := range t.Steps {
		if err := activate(ctx, s, step.Locator); err != nil {
			if errors.Is(err, ErrNotFound) {
				slog.Debug("step element not found, continuing",
					"target", t.Name, "step", i, "locator", step.Locator.String())
				continue
			}
			return categorizeError(err, fmt.Sprintf("%s: step %d failed", t.Name, i))
		}
		wait(ctx, s, step.After, t.Name)
	}

	doc, err := snapshot(ctx, s, t.Name)
	if err != nil {
		return err
	}
	for i := range t.Rules {
		r := &t.Rules[i]
		res := applyRule(doc, r)
		if res.Absent() {
			slog.Debug("field absent", "target", t.Name, "field", r.Field, "selector", r.Selector)
		}
		results[r.Field] = res
	}
	return nil
}

// collectHemispheres opens each of the first h.Count entries on the results
// page, extracts {title, image} from its detail view and goes back.
// A missing entry or detail field only affects its own index.
func (p *Pipeline) collectHemispheres(ctx context.Context, s Session, h *HemisphereTarget) ([]models.Hemisphere, error) {
	if err := s.Navigate(ctx, h.URL); err != nil {
		return nil, categorizeError(err, "navigation to hemisphere results failed")
	}
	wait(ctx, s, h.Ready, "hemispheres")

	items := make([]models.Hemisphere, h.Count)
	for i := 0; i < h.Count; i++ {
		loc := h.Item
		loc.Index = i

		err := activate(ctx, s, loc)
		if errors.Is(err, ErrNotFound) {
			slog.Debug("hemisphere entry not found", "index", i, "locator", loc.String())
			continue
		}
		if err != nil {
			return nil, categorizeError(err, fmt.Sprintf("hemisphere entry %d: activation failed", i))
		}

		wait(ctx, s, h.Detail, "hemisphere detail")
		doc, err := snapshot(ctx, s, "hemisphere detail")
		if err != nil {
			return nil, err
		}
		items[i] = models.Hemisphere{
			Title:  applyRule(doc, &h.Title).Text,
			ImgURL: applyRule(doc, &h.Image).Text,
		}

		if err := p.returnToResults(ctx, s, h); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// returnToResults goes back to the results list, falling back to a fresh
// navigation when the session has no usable history.
func (p *Pipeline) returnToResults(ctx context.Context, s Session, h *HemisphereTarget) error {
	if err := s.Back(ctx); err != nil {
		slog.Debug("back navigation failed, reloading results", "error", err)
		if err := s.Navigate(ctx, h.URL); err != nil {
			return categorizeError(err, "navigation to hemisphere results failed")
		}
	}
	wait(ctx, s, h.Ready, "hemispheres")
	return nil
}

// activate finds and clicks one element.
func activate(ctx context.Context, s Session, loc Locator) error {
	el, err := s.Find(ctx, loc)
	if err != nil {
		return err
	}
	return el.Activate(ctx)
}

// wait applies a readiness predicate. A timeout is not an error.
func wait(ctx context.Context, s Session, r Ready, name string) {
	if r.Selector == "" {
		return
	}
	if !s.WaitFor(ctx, r.Selector, r.Wait) {
		slog.Debug("readiness wait timed out, extracting anyway",
			"target", name, "selector", r.Selector, "wait", r.Wait.String())
	}
}

// snapshot captures and parses the current document.
func snapshot(ctx context.Context, s Session, name string) (*goquery.Selection, error) {
	raw, err := s.HTML(ctx)
	if err != nil {
		return nil, categorizeError(err, fmt.Sprintf("%s: failed to read page HTML", name))
	}
	doc, err := parseSnapshot(raw)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, name+": unparseable snapshot", err)
	}
	return doc.Selection, nil
}

// merge assembles field results into a record.
func merge(results map[string]FieldResult, hemispheres []models.Hemisphere) *models.ScrapeRecord {
	return &models.ScrapeRecord{
		NewsTitle:     results[FieldNewsTitle].Text,
		NewsParagraph: results[FieldNewsParagraph].Text,
		FeaturedImage: results[FieldFeaturedImage].Text,
		Facts:         results[FieldFacts].Table,
		Hemispheres:   hemispheres,
	}
}

func countAbsent(results map[string]FieldResult) int {
	n := 0
	for _, r := range results {
		if r.Absent() {
			n++
		}
	}
	return n
}

// categorizeError wraps raw session errors into typed ScrapeErrors so the
// API layer can map them to status codes.
func categorizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "run canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
