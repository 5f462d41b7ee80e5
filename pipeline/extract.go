package pipeline

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/marsdata/models"
)

// FieldResult is the outcome of one rule. Both fields nil is the absence
// marker.
type FieldResult struct {
	Text  *string
	Table *models.FactsTable
}

// Absent reports whether the rule produced nothing.
func (f FieldResult) Absent() bool {
	return f.Text == nil && f.Table == nil
}

// parseSnapshot turns a rendered HTML snapshot into a queryable document.
func parseSnapshot(rawHTML string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return doc, nil
}

// applyRule evaluates r against root. A missing scope, selector match or
// attribute yields the absence marker; it never fails.
func applyRule(root *goquery.Selection, r *Rule) FieldResult {
	if r.scope != nil {
		root = root.FindMatcher(r.scope).First()
		if root.Length() == 0 {
			return FieldResult{}
		}
	}

	match := root.FindMatcher(r.selector).First()
	if match.Length() == 0 {
		return FieldResult{}
	}

	switch r.Projection {
	case ProjectText:
		return FieldResult{Text: models.Text(strings.TrimSpace(match.Text()))}

	case ProjectAttr:
		val, ok := match.Attr(r.Attr)
		val = strings.TrimSpace(val)
		if !ok || val == "" {
			return FieldResult{}
		}
		if r.Origin != "" {
			val = JoinOrigin(r.Origin, val)
		}
		return FieldResult{Text: &val}

	case ProjectTable:
		if t := parseTable(match, r.ValueLabel); t != nil {
			return FieldResult{Table: t}
		}
		return FieldResult{}

	default:
		return FieldResult{}
	}
}

// JoinOrigin builds an absolute URL from a site origin and a path relative
// to it. It is plain concatenation: no slash cleanup, no resolution.
func JoinOrigin(origin, rel string) string {
	return origin + rel
}

// parseTable converts a two-column table into a FactsTable.
//
// Rows come from the table's own <tr> elements (nested tables are ignored).
// A first row made only of <th> cells is the header row and is dropped;
// otherwise every row is data. Rows with fewer than two cells are skipped
// and cells beyond the second are ignored. The header is always relabelled
// to ("description", valueLabel).
func parseTable(table *goquery.Selection, valueLabel string) *models.FactsTable {
	out := &models.FactsTable{Header: [2]string{"description", valueLabel}}

	first := true
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if !row.Closest("table").IsSelection(table) {
			return
		}
		cells := row.ChildrenFiltered("th, td")
		if first {
			first = false
			if cells.Length() > 0 && cells.Length() == cells.Filter("th").Length() {
				return
			}
		}
		if cells.Length() < 2 {
			return
		}
		out.Rows = append(out.Rows, models.FactRow{
			Description: cleanCell(cells.Eq(0).Text()),
			Value:       cleanCell(cells.Eq(1).Text()),
		})
	})

	if len(out.Rows) == 0 {
		return nil
	}
	return out
}

// cleanCell trims a cell and collapses internal whitespace runs.
func cleanCell(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
