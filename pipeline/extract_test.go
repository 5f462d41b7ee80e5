package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/marsdata/models"
)

func compiled(t *testing.T, r Rule) *Rule {
	t.Helper()
	require.NoError(t, r.compile())
	return &r
}

func apply(t *testing.T, html string, r Rule) FieldResult {
	t.Helper()
	doc, err := parseSnapshot(html)
	require.NoError(t, err)
	return applyRule(doc.Selection, compiled(t, r))
}

func TestJoinOrigin(t *testing.T) {
	tests := []struct {
		origin, rel, want string
	}{
		{"https://example.org", "/img/a.jpg", "https://example.org/img/a.jpg"},
		{"https://example.org/", "/img/a.jpg", "https://example.org//img/a.jpg"},
		{"https://example.org", "img/a.jpg", "https://example.orgimg/a.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinOrigin(tt.origin, tt.rel))
	}
}

func TestApplyRule_AttrWithOrigin(t *testing.T) {
	res := apply(t, `<figure class="lede"><a><img src="/img/a.jpg"></a></figure>`, Rule{
		Field: "img", Selector: "figure.lede a img", Projection: ProjectAttr, Attr: "src", Origin: "https://example.org",
	})
	assert.Equal(t, "https://example.org/img/a.jpg", models.Deref(res.Text))
}

func TestApplyRule_AttrWithoutOriginKeepsValue(t *testing.T) {
	res := apply(t, `<div class="downloads"><a href="https://x.test/a.jpg">Sample</a><a href="/b.tif">Original</a></div>`, Rule{
		Field: "img", Scope: "div.downloads", Selector: `a:contains("Sample")`, Projection: ProjectAttr, Attr: "href",
	})
	assert.Equal(t, "https://x.test/a.jpg", models.Deref(res.Text))
}

func TestApplyRule_TextTakesFirstMatch(t *testing.T) {
	res := apply(t, `<p class="t"> first </p><p class="t">second</p>`, Rule{
		Field: "t", Selector: "p.t", Projection: ProjectText,
	})
	assert.Equal(t, "first", models.Deref(res.Text))
}

func TestApplyRule_Absence(t *testing.T) {
	tests := []struct {
		name string
		html string
		rule Rule
	}{
		{"no match", `<p>x</p>`, Rule{Field: "f", Selector: "div.missing", Projection: ProjectText}},
		{"scope missing", `<div class="content_title">x</div>`, Rule{Field: "f", Scope: "li.slide", Selector: "div.content_title", Projection: ProjectText}},
		{"nested element missing", `<li class="slide"><span>x</span></li>`, Rule{Field: "f", Scope: "li.slide", Selector: "div.content_title", Projection: ProjectText}},
		{"attribute missing", `<img alt="x">`, Rule{Field: "f", Selector: "img", Projection: ProjectAttr, Attr: "src"}},
		{"attribute empty", `<img src="  ">`, Rule{Field: "f", Selector: "img", Projection: ProjectAttr, Attr: "src", Origin: "https://o"}},
		{"no table", `<div></div>`, Rule{Field: "f", Projection: ProjectTable}},
		{"table without data rows", `<table><tr><th>a</th><th>b</th></tr></table>`, Rule{Field: "f", Projection: ProjectTable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := apply(t, tt.html, tt.rule)
			assert.True(t, res.Absent(), "got %+v", res)
		})
	}
}

func tableHTML(rows [][2]string, header bool) string {
	var b strings.Builder
	b.WriteString("<table>")
	if header {
		b.WriteString("<thead><tr><th>Mars - Earth Comparison</th><th>Mars</th></tr></thead>")
	}
	b.WriteString("<tbody>")
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>", r[0], r[1])
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

func TestParseTable_NRowsKeyedByFirstColumn(t *testing.T) {
	rows := [][2]string{
		{"Equatorial Diameter:", "6,792 km"},
		{"Polar Diameter:", "6,752 km"},
		{"Mass:", "6.39 × 10^23 kg"},
		{"Moons:", "2 (Phobos & Deimos)"},
		{"Orbit Distance:", "227,943,824 km"},
	}

	res := apply(t, tableHTML(rows, false), Rule{Field: "facts", Projection: ProjectTable})
	require.NotNil(t, res.Table)
	assert.Equal(t, [2]string{"description", "value"}, res.Table.Header)

	m := res.Table.Map()
	assert.Len(t, m, len(rows))
	for _, r := range rows {
		assert.Equal(t, r[1], m[r[0]])
	}
	assert.Equal(t, "Equatorial Diameter:", res.Table.Rows[0].Description)
}

func TestParseTable_RowOrderDoesNotChangeMapping(t *testing.T) {
	rows := [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}
	reversed := [][2]string{{"c", "3"}, {"b", "2"}, {"a", "1"}}

	fwd := apply(t, tableHTML(rows, false), Rule{Field: "facts", Projection: ProjectTable})
	rev := apply(t, tableHTML(reversed, false), Rule{Field: "facts", Projection: ProjectTable})
	assert.Equal(t, fwd.Table.Map(), rev.Table.Map())
}

func TestParseTable_HeaderRowRelabelled(t *testing.T) {
	rows := [][2]string{{"Diameter:", "6,779 km"}, {"Mass:", "6.39 × 10^23 kg"}}

	res := apply(t, tableHTML(rows, true), Rule{Field: "facts", Projection: ProjectTable, ValueLabel: "Mars"})
	require.NotNil(t, res.Table)
	assert.Equal(t, [2]string{"description", "Mars"}, res.Table.Header)
	assert.Len(t, res.Table.Rows, 2)
	assert.NotContains(t, res.Table.Map(), "Mars - Earth Comparison")
}

func TestParseTable_FirstTableOnly(t *testing.T) {
	html := tableHTML([][2]string{{"first", "1"}}, false) + tableHTML([][2]string{{"second", "2"}}, false)

	res := apply(t, html, Rule{Field: "facts", Projection: ProjectTable})
	assert.Equal(t, map[string]string{"first": "1"}, res.Table.Map())
}

func TestParseTable_IgnoresNestedTablesAndShortRows(t *testing.T) {
	html := `<table>
		<tr><td>Only one cell</td></tr>
		<tr><td>Label</td><td>Value <table><tr><td>inner</td><td>x</td></tr></table></td><td>extra</td></tr>
	</table>`

	res := apply(t, html, Rule{Field: "facts", Projection: ProjectTable})
	require.NotNil(t, res.Table)
	require.Len(t, res.Table.Rows, 1)
	assert.Equal(t, "Label", res.Table.Rows[0].Description)
	assert.NotContains(t, res.Table.Map(), "inner")
}
