package analyze

import (
	"sort"
	"strings"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/models"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// Summarize builds the site headline from the extracted products.
func Summarize(pagesCrawled int, products []models.ExtractionRecord) models.SiteSummary {
	s := models.SiteSummary{PagesCrawled: pagesCrawled, TotalProducts: len(products)}

	var prices []float64
	for _, p := range products {
		if p.PriceNumeric != nil {
			prices = append(prices, *p.PriceNumeric)
		}
	}
	if len(prices) > 0 {
		sort.Float64s(prices)
		sum := 0.0
		for _, v := range prices {
			sum += v
		}
		s.Price = &models.PriceSummary{
			Count:  len(prices),
			Min:    prices[0],
			Max:    prices[len(prices)-1],
			Avg:    round2(sum / float64(len(prices))),
			Median: prices[len(prices)/2],
		}
	}
	s.AvgDescriptionLength = avgDescriptionWords(products)
	return s
}

// ContentQualityOf rates descriptions across products.
func ContentQualityOf(products []models.ExtractionRecord) models.ContentQuality {
	cq := models.ContentQuality{AvgDescriptionLength: avgDescriptionWords(products)}
	total, n := 0.0, 0
	for _, p := range products {
		if ta := AnalyzeText(p.Text(config.FieldDescription), nil); ta != nil {
			total += ta.ReadingEase
			n++
		}
	}
	if n > 0 {
		cq.AvgReadingEase = round2(total / float64(n))
	}
	cq.Rating = DescriptionLengthLabel(cq.AvgDescriptionLength)
	cq.Readability = ReadabilityLabel(cq.AvgReadingEase)
	return cq
}

// DescriptionLengthLabel interprets an average description length in words.
func DescriptionLengthLabel(words float64) string {
	switch {
	case words >= 300:
		return "Excellent - Comprehensive descriptions"
	case words >= 200:
		return "Good - Detailed descriptions"
	case words >= 100:
		return "Average - Adequate descriptions"
	case words >= 50:
		return "Below Average - Brief descriptions"
	default:
		return "Poor - Very limited descriptions"
	}
}

// SEO weights, in percent of the overall score.
const (
	seoWeightMetaDescription = 0.25
	seoWeightH1              = 0.25
	seoWeightAltText         = 0.20
	seoWeightH2              = 0.10
	seoWeightMetaKeywords    = 0.10
	seoWeightStructuredData  = 0.10
)

// SEOOf computes the share of product pages carrying each SEO signal and a
// weighted score.
func SEOOf(products []models.ExtractionRecord) models.SEOAnalysis {
	total := len(products)
	if total == 0 {
		return models.SEOAnalysis{Quality: "Unknown"}
	}
	var desc, kw, h1, h2, alt, sd int
	for _, p := range products {
		m := p.Metrics
		if m.HasMetaDescription {
			desc++
		}
		if m.HasMetaKeywords {
			kw++
		}
		if m.HasH1 {
			h1++
		}
		if m.HasH2 {
			h2++
		}
		if m.HasAltText {
			alt++
		}
		if m.HasStructuredData {
			sd++
		}
	}
	pct := func(n int) float64 { return round2(float64(n) / float64(total) * 100) }
	seo := models.SEOAnalysis{
		MetaDescriptionPct: pct(desc),
		MetaKeywordsPct:    pct(kw),
		H1Pct:              pct(h1),
		H2Pct:              pct(h2),
		AltTextPct:         pct(alt),
		StructuredDataPct:  pct(sd),
	}
	seo.Score = round2(seo.MetaDescriptionPct*seoWeightMetaDescription +
		seo.H1Pct*seoWeightH1 +
		seo.AltTextPct*seoWeightAltText +
		seo.H2Pct*seoWeightH2 +
		seo.MetaKeywordsPct*seoWeightMetaKeywords +
		seo.StructuredDataPct*seoWeightStructuredData)
	seo.Quality = QualityLabel(seo.Score)
	return seo
}

// QualityLabel maps a 0-100 score to a five-step rating.
func QualityLabel(score float64) string {
	switch {
	case score >= 90:
		return "Excellent"
	case score >= 75:
		return "Good"
	case score >= 50:
		return "Average"
	case score >= 25:
		return "Below Average"
	default:
		return "Poor"
	}
}

// Duplicates groups products whose descriptions are identical after case
// and whitespace folding. Groups keep discovery order; groups are ordered by
// their first member.
func Duplicates(products []models.ExtractionRecord) []models.DuplicateGroup {
	byHash := make(map[string]*models.DuplicateGroup)
	var order []string
	for _, p := range products {
		desc := strings.Join(strings.Fields(strings.ToLower(p.Text(config.FieldDescription))), " ")
		if desc == "" {
			continue
		}
		h := utils.StringHash(desc)
		g, ok := byHash[h]
		if !ok {
			g = &models.DuplicateGroup{Hash: h}
			byHash[h] = g
			order = append(order, h)
		}
		g.URLs = append(g.URLs, p.URL)
	}
	var groups []models.DuplicateGroup
	for _, h := range order {
		if g := byHash[h]; len(g.URLs) > 1 {
			groups = append(groups, *g)
		}
	}
	return groups
}

func avgDescriptionWords(products []models.ExtractionRecord) float64 {
	words, n := 0, 0
	for _, p := range products {
		if desc := p.Text(config.FieldDescription); desc != "" {
			words += len(strings.Fields(desc))
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return round2(float64(words) / float64(n))
}
