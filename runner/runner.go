// Package runner implements the "run now" trigger: one pipeline run from
// session acquisition to the stored record.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/marsdata/cache"
	"github.com/use-agent/marsdata/config"
	"github.com/use-agent/marsdata/models"
	"github.com/use-agent/marsdata/pipeline"
	"github.com/use-agent/marsdata/scraper"
	"github.com/use-agent/marsdata/webhook"
)

// Scraper runs the extraction pipeline over an acquired session.
type Scraper interface {
	Run(ctx context.Context, s pipeline.Session) (*models.ScrapeRecord, error)
}

// RecordStore persists the single current record.
type RecordStore interface {
	Upsert(ctx context.Context, rec *models.ScrapeRecord) (changed bool, err error)
}

// Result describes one stored run.
type Result struct {
	Record   *models.ScrapeRecord
	Changed  bool
	Duration time.Duration
}

// Status is the outcome of the most recent finished run.
type Status struct {
	At  time.Time
	Err error
}

type Runner struct {
	scraper  Scraper
	acquirer scraper.Acquirer
	store    RecordStore
	cache    *cache.Cache
	webhook  config.WebhookConfig
	timeout  time.Duration

	running sync.Mutex

	mu   sync.RWMutex
	last *Status
}

// Option configures a Runner.
type Option func(*Runner)

// WithCache invalidates c after every stored run.
func WithCache(c *cache.Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithWebhook notifies cfg.URL after every run.
func WithWebhook(cfg config.WebhookConfig) Option {
	return func(r *Runner) { r.webhook = cfg }
}

// WithTimeout bounds each run. Zero means no bound beyond the caller's ctx.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

func New(sc Scraper, acq scraper.Acquirer, st RecordStore, opts ...Option) *Runner {
	r := &Runner{scraper: sc, acquirer: acq, store: st}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunNow acquires a session, runs the pipeline and stores the record.
// Only one run executes at a time; a concurrent call fails immediately
// with RUN_IN_PROGRESS. On any failure nothing is stored.
func (r *Runner) RunNow(ctx context.Context) (*Result, error) {
	if !r.running.TryLock() {
		return nil, models.NewScrapeError(models.ErrCodeRunInProgress, "a scrape run is already in progress", nil)
	}
	defer r.running.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := r.run(ctx)
	if err != nil {
		slog.Error("scrape run failed", "error", err, "duration", time.Since(start).Round(time.Millisecond).String())
		r.finish(err)
		r.notify(webhook.EventFailed, "", toDetail(err))
		return nil, err
	}
	res.Duration = time.Since(start)

	slog.Info("scrape run stored",
		"run_id", res.Record.RunID,
		"changed", res.Changed,
		"duration", res.Duration.Round(time.Millisecond).String(),
	)
	r.finish(nil)
	r.notify(webhook.EventCompleted, res.Record.RunID, map[string]any{
		"changed": res.Changed,
		"record":  res.Record,
	})
	return res, nil
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	sess, err := r.acquirer.Acquire(ctx)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "could not open a rendering session", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Warn("session close failed", "error", err)
		}
	}()

	rec, err := r.scraper.Run(ctx, sess)
	if err != nil {
		return nil, err
	}

	changed, err := r.store.Upsert(ctx, rec)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStore, "could not store the scrape record", err)
	}
	if r.cache != nil {
		r.cache.Invalidate()
	}
	return &Result{Record: rec, Changed: changed}, nil
}

func (r *Runner) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &Status{At: time.Now(), Err: err}
}

func (r *Runner) notify(eventType, runID string, data any) {
	if r.webhook.URL == "" {
		return
	}
	webhook.DeliverAsync(r.webhook.URL, r.webhook.Secret, &webhook.Event{
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}, nil)
}

// LastRun returns the outcome of the most recent finished run, or nil if
// none has finished since startup.
func (r *Runner) LastRun() *Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return nil
	}
	s := *r.last
	return &s
}

// Mode names the session implementation in use.
func (r *Runner) Mode() string {
	return r.acquirer.Mode()
}

func toDetail(err error) *models.ErrorDetail {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se.ToDetail()
	}
	return &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
}
