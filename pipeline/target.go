package pipeline

import (
	"fmt"
	"time"

	"github.com/andybalholm/cascadia"
)

// Projection selects how a matched element becomes a value.
type Projection int

const (
	// ProjectText takes the trimmed text content of the first match.
	ProjectText Projection = iota
	// ProjectAttr takes the value of Rule.Attr on the first match.
	ProjectAttr
	// ProjectTable parses the first matched table into a FactsTable.
	ProjectTable
)

func (p Projection) String() string {
	switch p {
	case ProjectText:
		return "text"
	case ProjectAttr:
		return "attr"
	case ProjectTable:
		return "table"
	default:
		return fmt.Sprintf("projection(%d)", int(p))
	}
}

// Ready is a best-effort readiness predicate: wait up to Wait for Selector.
// A zero Selector means "don't wait".
type Ready struct {
	Selector string
	Wait     time.Duration
}

// Step is an element activation performed after navigation and before the
// snapshot (e.g. opening a lightbox). After is waited on once the element
// has been activated.
type Step struct {
	Locator Locator
	After   Ready
}

// Rule is one extraction rule: a structural path plus a projection.
type Rule struct {
	// Field is the key the result is merged under.
	Field string

	// Scope optionally narrows the search to the first element matching it.
	Scope string

	// Selector is applied inside Scope (or the document); the first match
	// is projected.
	Selector string

	Projection Projection

	// Attr is the attribute read by ProjectAttr.
	Attr string

	// Origin, when set, is prepended to the projected value verbatim.
	Origin string

	// ValueLabel is the canonical name of the second table column.
	// Defaults to "value".
	ValueLabel string

	scope    cascadia.Selector
	selector cascadia.Selector
}

// Target is one page visited by the pipeline.
type Target struct {
	Name  string
	URL   string
	Ready Ready
	Steps []Step
	Rules []Rule
}

// HemisphereTarget describes the repeated-item variant: a results page with
// Count entries, each opened, extracted and navigated back from in turn.
type HemisphereTarget struct {
	URL   string
	Ready Ready

	// Item locates the list entry to open; its Index is overwritten per
	// iteration.
	Item Locator

	// Count is the fixed number of entries visited.
	Count int

	// Detail is the readiness predicate of an entry's detail view.
	Detail Ready

	Title Rule
	Image Rule
}

// compile parses the rule's selectors. Rules are compiled once when the
// pipeline is built so a bad selector fails fast.
func (r *Rule) compile() error {
	if r.Field == "" {
		return fmt.Errorf("rule has no field")
	}
	sel := r.Selector
	if sel == "" {
		if r.Projection != ProjectTable {
			return fmt.Errorf("rule %q: selector is required", r.Field)
		}
		sel = "table"
		r.Selector = sel
	}
	if r.Projection == ProjectAttr && r.Attr == "" {
		return fmt.Errorf("rule %q: attr projection requires an attribute name", r.Field)
	}

	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return fmt.Errorf("rule %q: selector %q: %w", r.Field, sel, err)
	}
	r.selector = compiled

	if r.Scope != "" {
		scope, err := cascadia.Compile(r.Scope)
		if err != nil {
			return fmt.Errorf("rule %q: scope %q: %w", r.Field, r.Scope, err)
		}
		r.scope = scope
	}
	if r.ValueLabel == "" {
		r.ValueLabel = "value"
	}
	return nil
}

func (t *Target) compile() error {
	if t.URL == "" {
		return fmt.Errorf("target %q: url is required", t.Name)
	}
	for i := range t.Steps {
		if t.Steps[i].Locator.CSS == "" && t.Steps[i].Locator.Text == "" {
			return fmt.Errorf("target %q: step %d has an empty locator", t.Name, i)
		}
	}
	for i := range t.Rules {
		if err := t.Rules[i].compile(); err != nil {
			return fmt.Errorf("target %q: %w", t.Name, err)
		}
	}
	return nil
}

func (h *HemisphereTarget) compile() error {
	if h.URL == "" {
		return fmt.Errorf("hemispheres: url is required")
	}
	if h.Count <= 0 {
		return fmt.Errorf("hemispheres: count must be positive, got %d", h.Count)
	}
	if h.Item.CSS == "" && h.Item.Text == "" {
		return fmt.Errorf("hemispheres: item locator is empty")
	}
	if err := h.Title.compile(); err != nil {
		return fmt.Errorf("hemispheres: %w", err)
	}
	if err := h.Image.compile(); err != nil {
		return fmt.Errorf("hemispheres: %w", err)
	}
	return nil
}
