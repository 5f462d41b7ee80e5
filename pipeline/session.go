package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrNotFound reports that a locator matched nothing in the current page.
// It is the only session error the pipeline treats as field absence; every
// other error fails the run.
var ErrNotFound = errors.New("element not found")

// Session is a controllable page-rendering agent. The pipeline drives one
// Session sequentially and never closes it; whoever acquired it does.
type Session interface {
	// Navigate loads url and returns once the document is available.
	Navigate(ctx context.Context, url string) error

	// HTML returns a snapshot of the current rendered document.
	HTML(ctx context.Context) (string, error)

	// WaitFor waits up to budget for selector to be present and reports
	// whether it appeared.
	WaitFor(ctx context.Context, selector string, budget time.Duration) bool

	// Find resolves a locator against the current page. It returns
	// ErrNotFound (possibly wrapped) when nothing matches.
	Find(ctx context.Context, loc Locator) (Element, error)

	// Back returns to the previous page in the session history.
	Back(ctx context.Context) error

	// Close releases the session.
	Close() error
}

// Element is an opaque handle to a located element.
type Element interface {
	// Activate clicks the element (or follows its link).
	Activate(ctx context.Context) error
}

// Locator identifies one element on a page: either the Index-th element
// matching CSS, or the first link whose text contains Text
// (case-insensitive). CSS wins when both are set.
type Locator struct {
	CSS   string
	Text  string
	Index int
}

func (l Locator) String() string {
	if l.CSS != "" {
		if l.Index > 0 {
			return l.CSS + "[" + strconv.Itoa(l.Index) + "]"
		}
		return l.CSS
	}
	return "link text " + `"` + l.Text + `"`
}
