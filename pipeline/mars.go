package pipeline

import (
	"github.com/use-agent/marsdata/config"
)

// NewMars builds the pipeline over the fixed Mars pages.
func NewMars(cfg config.PipelineConfig, opts ...Option) (*Pipeline, error) {
	if cfg.HemispheresEnabled {
		opts = append([]Option{WithHemispheres(MarsHemispheres(cfg))}, opts...)
	}
	return New(MarsTargets(cfg), opts...)
}

// MarsTargets returns the news, featured image and facts targets.
func MarsTargets(cfg config.PipelineConfig) []Target {
	const slide = "ul.item_list li.slide"

	return []Target{
		{
			Name:  "news",
			URL:   cfg.NewsURL,
			Ready: Ready{Selector: slide, Wait: cfg.ReadyWait},
			Rules: []Rule{
				{Field: FieldNewsTitle, Scope: slide, Selector: "div.content_title", Projection: ProjectText},
				{Field: FieldNewsParagraph, Scope: slide, Selector: "div.article_teaser_body", Projection: ProjectText},
			},
		},
		{
			Name:  "featured_image",
			URL:   cfg.ImageURL,
			Ready: Ready{Selector: "#full_image", Wait: cfg.ReadyWait},
			Steps: []Step{
				{
					Locator: Locator{CSS: "#full_image"},
					After:   Ready{Selector: "a[href]", Wait: cfg.ReadyWait},
				},
				{
					Locator: Locator{Text: "more info"},
					After:   Ready{Selector: "figure.lede", Wait: cfg.ReadyWait},
				},
			},
			Rules: []Rule{
				{
					Field:      FieldFeaturedImage,
					Selector:   "figure.lede a img",
					Projection: ProjectAttr,
					Attr:       "src",
					Origin:     cfg.ImageOrigin,
				},
			},
		},
		{
			Name:  "facts",
			URL:   cfg.FactsURL,
			Ready: Ready{Selector: "table", Wait: cfg.ReadyWait},
			Rules: []Rule{
				{Field: FieldFacts, Selector: "table", Projection: ProjectTable, ValueLabel: cfg.FactsValueLabel},
			},
		},
	}
}

// MarsHemispheres returns the hemisphere results target.
func MarsHemispheres(cfg config.PipelineConfig) HemisphereTarget {
	return HemisphereTarget{
		URL:    cfg.HemispheresURL,
		Ready:  Ready{Selector: "a.product-item h3", Wait: cfg.ReadyWait},
		Item:   Locator{CSS: "a.product-item h3"},
		Count:  cfg.HemisphereCount,
		Detail: Ready{Selector: "h2.title", Wait: cfg.ReadyWait},
		Title: Rule{
			Field:      "hemisphere_title",
			Selector:   "h2.title",
			Projection: ProjectText,
		},
		Image: Rule{
			Field:      "hemisphere_img_url",
			Scope:      "div.downloads",
			Selector:   `a:contains("Sample")`,
			Projection: ProjectAttr,
			Attr:       "href",
		},
	}
}
