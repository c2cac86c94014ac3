package analyze

import (
	"slices"
	"sort"
	"strings"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/models"
)

// specCategories are matched in this order; a key lands in the first
// category with a keyword contained in it.
var specCategories = []struct {
	name     string
	keywords []string
}{
	{"dimensions", []string{"length", "width", "height", "diameter", "size", "dimensions"}},
	{"performance", []string{"power", "speed", "capacity", "efficiency", "output", "performance"}},
	{"physical", []string{"weight", "material", "color", "finish"}},
	{"technical", []string{"voltage", "current", "frequency", "resistance", "temperature"}},
}

// AnalyzeProduct scores one extracted product.
func AnalyzeProduct(rec models.ExtractionRecord, tokens *TokenCounter) models.AnalysisRecord {
	out := models.AnalysisRecord{
		URL:      rec.URL,
		Sequence: rec.Sequence,
		Name:     rec.Text(config.FieldName),
		SKU:      rec.Text(config.FieldSKU),
	}

	if desc := rec.Text(config.FieldDescription); desc != "" {
		out.WordCount = len(strings.Fields(desc))
		out.Description = AnalyzeText(desc, tokens)
	}
	if len(rec.Specifications) > 0 {
		out.Specs = AnalyzeSpecs(rec.Specifications)
	}
	out.Images = AnalyzeImages(rec.Values(config.FieldImages))
	if raw := rec.Text(config.FieldPrice); raw != "" || rec.PriceNumeric != nil {
		out.Price = AnalyzePrice(raw, rec.PriceNumeric)
	}

	for name := range rec.Fields {
		if slices.Contains(config.StandardFields, name) {
			continue
		}
		if out.CustomFields == nil {
			out.CustomFields = make(map[string]string)
		}
		out.CustomFields[name] = strings.Join(rec.Values(name), ", ")
	}
	return out
}

// AnalyzeSpecs groups specification keys into categories and grades coverage.
func AnalyzeSpecs(specs map[string]string) *models.SpecAnalysis {
	keys := make([]string, 0, len(specs))
	for k := range specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sa := &models.SpecAnalysis{Count: len(specs), Categories: make(map[string][]string, len(specCategories))}
	for _, c := range specCategories {
		sa.Categories[c.name] = []string{}
	}
	for _, key := range keys {
		lower := strings.ToLower(key)
		placed := false
		for _, c := range specCategories {
			if containsAny(lower, c.keywords) {
				sa.Categories[c.name] = append(sa.Categories[c.name], key)
				placed = true
				break
			}
		}
		if !placed {
			sa.Uncategorized = append(sa.Uncategorized, key)
		}
	}

	present := 0
	for _, c := range specCategories {
		if len(sa.Categories[c.name]) > 0 {
			present++
		}
	}
	sa.Completeness = round2(float64(present) / float64(len(specCategories)) * 100)
	sa.Quality = CompletenessLabel(sa.Completeness)
	return sa
}

// CompletenessLabel interprets a specification completeness percentage.
func CompletenessLabel(score float64) string {
	switch {
	case score >= 90:
		return "Excellent - Very comprehensive specifications"
	case score >= 75:
		return "Good - Comprehensive specifications"
	case score >= 50:
		return "Average - Adequate specifications"
	case score >= 25:
		return "Below Average - Limited specifications"
	default:
		return "Poor - Very limited specifications"
	}
}

// AnalyzeImages classifies image URLs by name and scores coverage out of 10.
func AnalyzeImages(images []string) models.ImageAnalysis {
	ia := models.ImageAnalysis{Count: len(images)}
	for _, img := range images {
		lower := strings.ToLower(img)
		switch {
		case containsAny(lower, []string{"thumbnail", "thumb", "small"}):
			ia.Thumbnails++
		case containsAny(lower, []string{"large", "zoom", "big"}):
			ia.Large++
		default:
			ia.Standard++
		}
	}

	base := 0
	switch {
	case ia.Count >= 5:
		base = 5
	case ia.Count >= 3:
		base = 4
	case ia.Count >= 2:
		base = 3
	case ia.Count == 1:
		base = 2
	}
	bonus := 0
	if ia.Thumbnails > 0 {
		bonus++
	}
	if ia.Large > 0 {
		bonus += 2
	}
	ia.Score = min(10, base+bonus)
	ia.Quality = ImageLabel(ia.Score)
	return ia
}

// ImageLabel interprets an image score.
func ImageLabel(score int) string {
	switch {
	case score >= 8:
		return "Excellent - Multiple high-quality images"
	case score >= 6:
		return "Good - Sufficient images with some variety"
	case score >= 4:
		return "Average - Basic image coverage"
	case score >= 2:
		return "Below Average - Limited images"
	default:
		return "Poor - Inadequate images"
	}
}

// AnalyzePrice inspects how a price is written.
func AnalyzePrice(raw string, numeric *float64) *models.PriceAnalysis {
	pa := &models.PriceAnalysis{Raw: raw, Numeric: numeric}
	switch {
	case strings.Contains(raw, "$"):
		pa.Currency = "USD"
	case strings.Contains(raw, "€"):
		pa.Currency = "EUR"
	case strings.Contains(raw, "£"):
		pa.Currency = "GBP"
	case strings.Contains(raw, "¥"):
		pa.Currency = "JPY"
	}
	pa.HasDecimal = strings.Contains(raw, ".")
	pa.HasThousandsSeparator = strings.Contains(raw, ",") && !strings.HasSuffix(raw, ",00")
	return pa
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
