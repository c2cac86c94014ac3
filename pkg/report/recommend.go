package report

import (
	"fmt"

	"github.com/auditkit/site-auditor/pkg/models"
)

// Recommendation is one actionable finding, grouped by area.
type Recommendation struct {
	Area string `json:"area"`
	Text string `json:"text"`
}

// Recommend derives findings from an analysis. Areas come out in the order
// SEO, Content, Products.
func Recommend(a *models.AnalysisResult) []Recommendation {
	var out []Recommendation
	add := func(area, format string, args ...any) {
		out = append(out, Recommendation{Area: area, Text: fmt.Sprintf(format, args...)})
	}
	if len(a.Products) == 0 {
		add("Content", "No product pages were found; check product_url_patterns and product_page_selectors")
		return out
	}

	seo := a.SEO
	if seo.MetaDescriptionPct < 100 {
		add("SEO", "Add meta descriptions: %.0f%% of product pages have one", seo.MetaDescriptionPct)
	}
	if seo.H1Pct < 100 {
		add("SEO", "Give every product page an <h1>: %.0f%% have one", seo.H1Pct)
	}
	if seo.AltTextPct < 100 {
		add("SEO", "Add alt text to all images: %.0f%% of pages are fully covered", seo.AltTextPct)
	}
	if seo.StructuredDataPct < 50 {
		add("SEO", "Publish structured data (JSON-LD or microdata) on product pages")
	}

	cq := a.ContentQuality
	if cq.AvgDescriptionLength < 100 {
		add("Content", "Expand product descriptions: they average %.0f words", cq.AvgDescriptionLength)
	}
	if cq.AvgReadingEase > 0 && cq.AvgReadingEase < 60 {
		add("Content", "Simplify description wording (reading ease %.1f)", cq.AvgReadingEase)
	}
	if n := len(a.Duplicates); n > 0 {
		add("Content", "Rewrite %d group(s) of duplicated product descriptions", n)
	}

	var noImages, weakSpecs, noPrice int
	for _, p := range a.Products {
		if p.Images.Count == 0 {
			noImages++
		}
		if p.Specs == nil || p.Specs.Completeness < 50 {
			weakSpecs++
		}
		if p.Price == nil {
			noPrice++
		}
	}
	if noImages > 0 {
		add("Products", "%d product(s) have no images", noImages)
	}
	if weakSpecs > 0 {
		add("Products", "%d product(s) have missing or thin specifications", weakSpecs)
	}
	if noPrice > 0 {
		add("Products", "%d product(s) show no price", noPrice)
	}
	return out
}
