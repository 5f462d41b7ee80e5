package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/marsdata/config"
	"github.com/use-agent/marsdata/models"
)

const (
	newsURL    = "https://news.test/news/"
	imageURL   = "https://images.test/spaceimages/?category=Mars"
	lightbox   = "https://images.test/lightbox"
	detailURL  = "https://images.test/spaceimages/details.php?id=PIA1"
	factsURL   = "https://facts.test/mars/"
	resultsURL = "https://hemi.test/search/results"
)

const newsHTML = `<html><body>
<ul class="item_list">
  <li class="slide">
    <div class="content_title"><a href="/news/1">NASA's Perseverance Rover Lands</a></div>
    <div class="article_teaser_body">  The rover touched down in Jezero Crater.  </div>
  </li>
  <li class="slide">
    <div class="content_title">Older story</div>
    <div class="article_teaser_body">Older teaser</div>
  </li>
</ul>
</body></html>`

const factsHTML = `<html><body>
<table id="tablepress-p-mars">
  <tr><td>Equatorial Diameter:</td><td>6,792 km</td></tr>
  <tr><td>Polar Diameter:</td><td>6,752 km</td></tr>
  <tr><td>Mass:</td><td>6.39 × 10^23 kg</td></tr>
</table>
<table><tr><td>Earth</td><td>ignored</td></tr></table>
</body></html>`

var hemisphereSlugs = []string{"cerberus", "schiaparelli", "syrtis_major", "valles_marineris"}

var hemisphereTitles = map[string]string{
	"cerberus":         "Cerberus Hemisphere Enhanced",
	"schiaparelli":     "Schiaparelli Hemisphere Enhanced",
	"syrtis_major":     "Syrtis Major Hemisphere Enhanced",
	"valles_marineris": "Valles Marineris Hemisphere Enhanced",
}

func hemisphereTitle(slug string) string { return hemisphereTitles[slug] }

func fixturePages() map[string]string {
	pages := map[string]string{
		newsURL:   newsHTML,
		imageURL:  `<html><body><a id="full_image" href="/lightbox">FULL IMAGE</a></body></html>`,
		lightbox:  `<html><body><div class="fancybox"><a href="/spaceimages/details.php?id=PIA1">More Info</a></div></body></html>`,
		detailURL: `<html><body><figure class="lede"><a href="/x"><img src="/spaceimages/images/largesize/PIA1_hires.jpg"></a></figure></body></html>`,
		factsURL:  factsHTML,
	}

	var list strings.Builder
	list.WriteString(`<html><body><div class="collapsible results">`)
	for _, slug := range hemisphereSlugs {
		list.WriteString(`<div class="item"><a class="product-item" href="/search/map/` + slug + `"><h3>` +
			hemisphereTitle(slug) + `</h3></a></div>`)
		pages["https://hemi.test/search/map/"+slug] = `<html><body><h2 class="title">` + hemisphereTitle(slug) +
			`</h2><div class="downloads"><ul><li><a href="https://hemi.test/download/` + slug +
			`.jpg">Sample</a></li><li><a href="https://hemi.test/download/` + slug + `.tif">Original</a></li></ul></div></body></html>`
	}
	list.WriteString(`</div></body></html>`)
	pages[resultsURL] = list.String()
	return pages
}

func fixtureConfig() config.PipelineConfig {
	return config.PipelineConfig{
		NewsURL:            newsURL,
		ImageURL:           imageURL,
		ImageOrigin:        "https://images.test",
		FactsURL:           factsURL,
		FactsValueLabel:    "value",
		HemispheresEnabled: true,
		HemispheresURL:     resultsURL,
		HemisphereCount:    4,
		ReadyWait:          10 * time.Millisecond,
	}
}

func newFixturePipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewMars(fixtureConfig(), opts...)
	require.NoError(t, err)
	return p
}

func TestRun_FullFixture(t *testing.T) {
	s := newFakeSession(fixturePages())
	p := newFixturePipeline(t, WithIDGenerator(func() string { return "run-1" }))

	rec, err := p.Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "NASA's Perseverance Rover Lands", models.Deref(rec.NewsTitle))
	assert.Equal(t, "The rover touched down in Jezero Crater.", models.Deref(rec.NewsParagraph))
	assert.Equal(t, "https://images.test/spaceimages/images/largesize/PIA1_hires.jpg", models.Deref(rec.FeaturedImage))

	require.NotNil(t, rec.Facts)
	assert.Equal(t, [2]string{"description", "value"}, rec.Facts.Header)
	assert.Equal(t, map[string]string{
		"Equatorial Diameter:": "6,792 km",
		"Polar Diameter:":      "6,752 km",
		"Mass:":                "6.39 × 10^23 kg",
	}, rec.Facts.Map())

	require.Len(t, rec.Hemispheres, 4)
	for i, slug := range hemisphereSlugs {
		assert.Equal(t, hemisphereTitle(slug), models.Deref(rec.Hemispheres[i].Title), "index %d", i)
		assert.Equal(t, "https://hemi.test/download/"+slug+".jpg", models.Deref(rec.Hemispheres[i].ImgURL), "index %d", i)
	}
	assert.NotZero(t, rec.Fingerprint)
	assert.False(t, s.closed, "pipeline must not close a session it did not acquire")
}

func TestRun_ReadinessTimeoutStillExtracts(t *testing.T) {
	s := newFakeSession(fixturePages())
	s.neverRdy = true

	rec, err := newFixturePipeline(t).Run(context.Background(), s)
	require.NoError(t, err)

	assert.NotEmpty(t, s.waits)
	assert.NotNil(t, rec.NewsTitle)
	assert.NotNil(t, rec.FeaturedImage)
	assert.NotNil(t, rec.Facts)
	assert.Len(t, rec.Hemispheres, 4)
}

func TestRun_MissingFieldIsIsolated(t *testing.T) {
	pages := fixturePages()
	pages[newsURL] = `<ul class="item_list"><li class="slide"><div class="content_title">Only a title</div></li></ul>`

	rec, err := newFixturePipeline(t).Run(context.Background(), newFakeSession(pages))
	require.NoError(t, err)

	assert.Equal(t, "Only a title", models.Deref(rec.NewsTitle))
	assert.Nil(t, rec.NewsParagraph)
	assert.NotNil(t, rec.FeaturedImage)
	assert.NotNil(t, rec.Facts)
}

func TestRun_MissingScopeAbsentsBothNewsFields(t *testing.T) {
	pages := fixturePages()
	pages[newsURL] = `<html><body><p>Site redesigned</p></body></html>`

	rec, err := newFixturePipeline(t).Run(context.Background(), newFakeSession(pages))
	require.NoError(t, err)

	assert.Nil(t, rec.NewsTitle)
	assert.Nil(t, rec.NewsParagraph)
	assert.NotNil(t, rec.FeaturedImage)
}

func TestRun_EmptyTextIsAbsent(t *testing.T) {
	pages := fixturePages()
	pages[newsURL] = `<ul class="item_list"><li class="slide"><div class="content_title">   </div><div class="article_teaser_body">x</div></li></ul>`

	rec, err := newFixturePipeline(t).Run(context.Background(), newFakeSession(pages))
	require.NoError(t, err)

	assert.Nil(t, rec.NewsTitle)
	assert.Equal(t, "x", models.Deref(rec.NewsParagraph))
}

func TestRun_MissingStepElementDegradesToAbsence(t *testing.T) {
	pages := fixturePages()
	pages[imageURL] = `<html><body><p>No lightbox button today</p></body></html>`

	rec, err := newFixturePipeline(t).Run(context.Background(), newFakeSession(pages))
	require.NoError(t, err)

	assert.Nil(t, rec.FeaturedImage)
	assert.NotNil(t, rec.NewsTitle)
	assert.NotNil(t, rec.Facts)
}

func TestRun_MissingImageAttributeIsAbsent(t *testing.T) {
	pages := fixturePages()
	pages[detailURL] = `<figure class="lede"><a href="/x"><img alt="no src"></a></figure>`

	rec, err := newFixturePipeline(t).Run(context.Background(), newFakeSession(pages))
	require.NoError(t, err)
	assert.Nil(t, rec.FeaturedImage)
}

func TestRun_NoTableIsAbsent(t *testing.T) {
	pages := fixturePages()
	pages[factsURL] = `<html><body><p>facts moved</p></body></html>`

	rec, err := newFixturePipeline(t).Run(context.Background(), newFakeSession(pages))
	require.NoError(t, err)
	assert.Nil(t, rec.Facts)
	assert.NotNil(t, rec.NewsTitle)
}

func TestRun_HemisphereEntryMissingFields(t *testing.T) {
	pages := fixturePages()
	pages["https://hemi.test/search/map/syrtis_major"] = `<html><body><p>Temporarily unavailable</p></body></html>`

	rec, err := newFixturePipeline(t).Run(context.Background(), newFakeSession(pages))
	require.NoError(t, err)

	require.Len(t, rec.Hemispheres, 4)
	assert.Nil(t, rec.Hemispheres[2].Title)
	assert.Nil(t, rec.Hemispheres[2].ImgURL)
	for _, i := range []int{0, 1, 3} {
		assert.Equal(t, hemisphereTitle(hemisphereSlugs[i]), models.Deref(rec.Hemispheres[i].Title))
		assert.NotNil(t, rec.Hemispheres[i].ImgURL)
	}
}

func TestRun_HemisphereFewerEntries(t *testing.T) {
	pages := fixturePages()
	pages[resultsURL] = strings.Replace(pages[resultsURL],
		`<div class="item"><a class="product-item" href="/search/map/valles_marineris">`, `<div class="item"><a class="gone" href="/x">`, 1)

	rec, err := newFixturePipeline(t).Run(context.Background(), newFakeSession(pages))
	require.NoError(t, err)

	require.Len(t, rec.Hemispheres, 4)
	assert.NotNil(t, rec.Hemispheres[2].Title)
	assert.Equal(t, models.Hemisphere{}, rec.Hemispheres[3])
}

func TestRun_BackFailureReloadsResults(t *testing.T) {
	s := &noBackSession{newFakeSession(fixturePages())}

	rec, err := newFixturePipeline(t).Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, rec.Hemispheres, 4)
	for i := range rec.Hemispheres {
		assert.NotNil(t, rec.Hemispheres[i].Title, "index %d", i)
	}
}

type noBackSession struct{ *fakeSession }

func (noBackSession) Back(context.Context) error { return errors.New("history unavailable") }

func TestRun_UnreachableTargetFailsRun(t *testing.T) {
	s := newFakeSession(fixturePages())
	s.unreach[factsURL] = true

	rec, err := newFixturePipeline(t).Run(context.Background(), s)
	require.Error(t, err)
	assert.Nil(t, rec)

	var se *models.ScrapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, models.ErrCodeNavigation, se.Code)
}

func TestRun_CanceledContextIsTimeout(t *testing.T) {
	s := &cancelSession{newFakeSession(fixturePages())}

	_, err := newFixturePipeline(t).Run(context.Background(), s)
	var se *models.ScrapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, models.ErrCodeTimeout, se.Code)
}

type cancelSession struct{ *fakeSession }

func (cancelSession) Navigate(context.Context, string) error { return context.DeadlineExceeded }

func TestRun_IdempotentModuloTime(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newFixturePipeline(t, WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))

	first, err := p.Run(context.Background(), newFakeSession(fixturePages()))
	require.NoError(t, err)
	second, err := p.Run(context.Background(), newFakeSession(fixturePages()))
	require.NoError(t, err)

	assert.NotEqual(t, first.LastModified, second.LastModified)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	a, b := *first, *second
	a.LastModified, b.LastModified = time.Time{}, time.Time{}
	a.RunID, b.RunID = "", ""
	assert.Equal(t, a, b)
}

func TestRun_WithoutHemispheres(t *testing.T) {
	cfg := fixtureConfig()
	cfg.HemispheresEnabled = false
	p, err := NewMars(cfg)
	require.NoError(t, err)

	s := newFakeSession(fixturePages())
	rec, err := p.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Nil(t, rec.Hemispheres)
	assert.NotContains(t, s.navigated, resultsURL)
}

func TestNew_InvalidSelector(t *testing.T) {
	_, err := New([]Target{{
		Name:  "broken",
		URL:   "https://x.test/",
		Rules: []Rule{{Field: "f", Selector: "div[", Projection: ProjectText}},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestNew_AttrRuleRequiresAttribute(t *testing.T) {
	_, err := New([]Target{{
		Name:  "img",
		URL:   "https://x.test/",
		Rules: []Rule{{Field: "f", Selector: "img", Projection: ProjectAttr}},
	}})
	require.Error(t, err)
}

func TestNew_HemisphereCountMustBePositive(t *testing.T) {
	cfg := fixtureConfig()
	cfg.HemisphereCount = 0
	_, err := NewMars(cfg)
	require.Error(t, err)
}
