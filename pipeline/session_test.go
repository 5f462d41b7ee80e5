package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// fakeSession is an in-memory Session over static HTML fixtures keyed by
// absolute URL. Activating an element follows the href of the element or
// its nearest link ancestor.
type fakeSession struct {
	pages     map[string]string
	unreach   map[string]bool
	neverRdy  bool
	current   string
	history   []string
	navigated []string
	waits     []string
	closed    bool
}

func newFakeSession(pages map[string]string) *fakeSession {
	return &fakeSession{pages: pages, unreach: map[string]bool{}}
}

func (f *fakeSession) Navigate(_ context.Context, u string) error {
	if f.unreach[u] {
		return fmt.Errorf("dial tcp: lookup %s: no such host", u)
	}
	if _, ok := f.pages[u]; !ok {
		return fmt.Errorf("HTTP 404 for %s", u)
	}
	if f.current != "" {
		f.history = append(f.history, f.current)
	}
	f.current = u
	f.navigated = append(f.navigated, u)
	return nil
}

func (f *fakeSession) HTML(context.Context) (string, error) {
	if f.current == "" {
		return "", errors.New("no page loaded")
	}
	return f.pages[f.current], nil
}

func (f *fakeSession) WaitFor(_ context.Context, selector string, _ time.Duration) bool {
	f.waits = append(f.waits, selector)
	if f.neverRdy {
		return false
	}
	doc, err := f.doc()
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

func (f *fakeSession) Find(_ context.Context, loc Locator) (Element, error) {
	doc, err := f.doc()
	if err != nil {
		return nil, err
	}
	var sel *goquery.Selection
	if loc.CSS != "" {
		sel = doc.Find(loc.CSS).Eq(loc.Index)
	} else {
		needle := strings.ToLower(loc.Text)
		sel = doc.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(s.Text()), needle)
		}).First()
	}
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	href, ok := sel.Closest("a[href]").Attr("href")
	if !ok {
		href, ok = sel.Attr("href")
	}
	return &fakeElement{session: f, href: href, ok: ok}, nil
}

func (f *fakeSession) Back(context.Context) error {
	if len(f.history) == 0 {
		return errors.New("no history")
	}
	f.current = f.history[len(f.history)-1]
	f.history = f.history[:len(f.history)-1]
	return nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSession) doc() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(f.pages[f.current]))
}

type fakeElement struct {
	session *fakeSession
	href    string
	ok      bool
}

func (e *fakeElement) Activate(ctx context.Context) error {
	if !e.ok {
		return nil
	}
	base, err := url.Parse(e.session.current)
	if err != nil {
		return err
	}
	ref, err := base.Parse(e.href)
	if err != nil {
		return err
	}
	return e.session.Navigate(ctx, ref.String())
}
