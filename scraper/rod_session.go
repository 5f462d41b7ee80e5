package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/marsdata/pipeline"
	"github.com/ysmood/gson"
)

// rodSession is a pipeline.Session backed by one Chrome tab.
type rodSession struct {
	page       *rod.Page
	router     *rod.HijackRouter
	navTimeout time.Duration
	findWait   time.Duration
}

// Navigate loads url and waits for the DOM to settle (best-effort).
func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx).Timeout(s.navTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.settle(p)
	return nil
}

// settle waits for the DOM to stop changing. Failure to converge is fine;
// readiness is checked separately by WaitFor.
func (s *rodSession) settle(p *rod.Page) {
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// WaitFor polls for selector until budget elapses.
func (s *rodSession) WaitFor(ctx context.Context, selector string, budget time.Duration) bool {
	p := s.page.Context(ctx).Timeout(budget)
	defer p.CancelTimeout()

	_, err := p.Element(selector)
	return err == nil
}

// Find resolves loc. CSS locators are matched against the current DOM
// without waiting; text locators wait up to findWait for a matching link.
func (s *rodSession) Find(ctx context.Context, loc pipeline.Locator) (pipeline.Element, error) {
	p := s.page.Context(ctx)

	if loc.CSS != "" {
		els, err := p.Elements(loc.CSS)
		if err != nil {
			return nil, s.notFound(ctx, loc, err)
		}
		if loc.Index >= len(els) {
			return nil, fmt.Errorf("%s: %w", loc, pipeline.ErrNotFound)
		}
		return &rodElement{session: s, el: els[loc.Index]}, nil
	}

	tp := p.Timeout(s.findWait)
	defer tp.CancelTimeout()

	el, err := tp.ElementR("a", "/"+regexp.QuoteMeta(loc.Text)+"/i")
	if err != nil {
		return nil, s.notFound(ctx, loc, err)
	}
	return &rodElement{session: s, el: el}, nil
}

// notFound maps lookup failures to pipeline.ErrNotFound unless the run's
// own context is done.
func (s *rodSession) notFound(ctx context.Context, loc pipeline.Locator, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var nf *rod.ElementNotFoundError
	if errors.As(err, &nf) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", loc, pipeline.ErrNotFound)
	}
	return fmt.Errorf("find %s: %w", loc, err)
}

func (s *rodSession) Back(ctx context.Context) error {
	p := s.page.Context(ctx).Timeout(s.navTimeout)
	defer p.CancelTimeout()

	if err := p.NavigateBack(); err != nil {
		return fmt.Errorf("navigate back: %w", err)
	}
	s.settle(p)
	return nil
}

// Close blanks the tab to release the DOM and closes it.
func (s *rodSession) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
	}
	if err := s.page.Navigate("about:blank"); err != nil {
		slog.Warn("cleanup: failed to navigate to about:blank", "error", err)
	}
	return s.page.Close()
}

type rodElement struct {
	session *rodSession
	el      *rod.Element
}

// Activate clicks the element and lets any resulting navigation settle.
func (e *rodElement) Activate(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		slog.Debug("scroll into view failed", "error", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	e.session.settle(e.session.page.Context(ctx))
	return nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
