package analyze

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditkit/site-auditor/pkg/models"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func product(seq int, fields map[string]string) models.ExtractionRecord {
	rec := models.ExtractionRecord{
		URL:      fmt.Sprintf("https://shop.example.com/product/%d", seq),
		Sequence: seq,
		Fields:   make(map[string]models.FieldValue),
	}
	for k, v := range fields {
		rec.Fields[k] = models.FieldValue{Value: v, Rule: ".x::text"}
	}
	return rec
}

func TestAnalyzeText(t *testing.T) {
	t.Run("blank", func(t *testing.T) {
		assert.Nil(t, AnalyzeText("   ", nil))
	})

	t.Run("positive copy", func(t *testing.T) {
		ta := AnalyzeText("An excellent and reliable widget. It is durable.", nil)
		require.NotNil(t, ta)
		assert.Equal(t, 8, ta.WordCount)
		assert.Equal(t, 2, ta.SentenceCount)
		assert.Equal(t, 4.0, ta.AvgSentenceLength)
		assert.Equal(t, "Very Positive", ta.Sentiment)
		assert.Equal(t, -1, ta.TokenCount)
	})

	t.Run("negative copy", func(t *testing.T) {
		ta := AnalyzeText("This widget is poor. The design is cheap and the finish is disappointing. Returns are difficult.", nil)
		require.NotNil(t, ta)
		assert.Equal(t, 16, ta.WordCount)
		assert.Equal(t, 3, ta.SentenceCount)
		assert.Equal(t, "Very Negative", ta.Sentiment)
	})

	t.Run("simple text reads easily", func(t *testing.T) {
		ta := AnalyzeText("The cat sat. The dog ran. We had fun.", nil)
		require.NotNil(t, ta)
		assert.Greater(t, ta.ReadingEase, 90.0)
		assert.Equal(t, "Very Easy - 5th grade level", ta.Readability)
	})

	t.Run("key phrases skip stop words", func(t *testing.T) {
		ta := AnalyzeText("Premium steel frame. The premium steel frame lasts. Premium steel wins.", nil)
		require.NotNil(t, ta)
		require.NotEmpty(t, ta.KeyPhrases)
		assert.Equal(t, "premium steel", ta.KeyPhrases[0])
		assert.LessOrEqual(t, len(ta.KeyPhrases), maxKeyPhrases)
	})
}

func TestLabels(t *testing.T) {
	readability := []struct {
		score float64
		want  string
	}{
		{95, "Very Easy - 5th grade level"},
		{85, "Easy - 6th grade level"},
		{75, "Fairly Easy - 7th grade level"},
		{65, "Standard - 8th-9th grade level"},
		{55, "Fairly Difficult - 10th-12th grade level"},
		{35, "Difficult - College level"},
		{10, "Very Difficult - College graduate level"},
	}
	for _, tt := range readability {
		t.Run(fmt.Sprintf("readability %v", tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, ReadabilityLabel(tt.score))
		})
	}

	sentiment := []struct {
		score float64
		want  string
	}{
		{6, "Very Positive"}, {5, "Positive"}, {2, "Neutral"}, {-2, "Negative"}, {-5, "Very Negative"},
	}
	for _, tt := range sentiment {
		t.Run(fmt.Sprintf("sentiment %v", tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, SentimentLabel(tt.score))
		})
	}

	assert.Equal(t, "Excellent", QualityLabel(90))
	assert.Equal(t, "Good", QualityLabel(75))
	assert.Equal(t, "Average", QualityLabel(50))
	assert.Equal(t, "Below Average", QualityLabel(25))
	assert.Equal(t, "Poor", QualityLabel(24.99))

	assert.Equal(t, "Excellent - Comprehensive descriptions", DescriptionLengthLabel(300))
	assert.Equal(t, "Below Average - Brief descriptions", DescriptionLengthLabel(50))
	assert.Equal(t, "Poor - Very limited descriptions", DescriptionLengthLabel(49))
}

func TestAnalyzeImages(t *testing.T) {
	tests := []struct {
		name   string
		images []string
		score  int
		label  string
	}{
		{"none", nil, 0, "Poor - Inadequate images"},
		{"one standard", []string{"/a.jpg"}, 2, "Below Average - Limited images"},
		{"three with large and thumb", []string{"/a-large.jpg", "/a-thumb.jpg", "/b.jpg"}, 7, "Good - Sufficient images with some variety"},
		{"five with zoom", []string{"/1.jpg", "/2.jpg", "/3.jpg", "/4.jpg", "/zoom.jpg"}, 7, "Good - Sufficient images with some variety"},
		{"six with both", []string{"/1.jpg", "/2.jpg", "/3.jpg", "/4.jpg", "/big.jpg", "/small.jpg"}, 8, "Excellent - Multiple high-quality images"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ia := AnalyzeImages(tt.images)
			assert.Equal(t, len(tt.images), ia.Count)
			assert.Equal(t, ia.Count, ia.Thumbnails+ia.Large+ia.Standard)
			assert.Equal(t, tt.score, ia.Score)
			assert.Equal(t, tt.label, ia.Quality)
		})
	}
}

func TestAnalyzePrice(t *testing.T) {
	v := 1299.99
	tests := []struct {
		raw       string
		currency  string
		decimal   bool
		thousands bool
	}{
		{"$1,299.99", "USD", true, true},
		{"€45", "EUR", false, false},
		{"£10,00", "GBP", false, false},
		{"¥500", "JPY", false, false},
		{"1299", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			pa := AnalyzePrice(tt.raw, &v)
			assert.Equal(t, tt.currency, pa.Currency)
			assert.Equal(t, tt.decimal, pa.HasDecimal)
			assert.Equal(t, tt.thousands, pa.HasThousandsSeparator)
		})
	}
}

func TestAnalyzeSpecs(t *testing.T) {
	sa := AnalyzeSpecs(map[string]string{
		"Width":    "30 cm",
		"Height":   "12 cm",
		"Weight":   "2.5 kg",
		"Voltage":  "220 V",
		"Warranty": "2 years",
	})
	assert.Equal(t, 5, sa.Count)
	assert.Equal(t, []string{"Height", "Width"}, sa.Categories["dimensions"])
	assert.Equal(t, []string{"Weight"}, sa.Categories["physical"])
	assert.Empty(t, sa.Categories["performance"])
	assert.Equal(t, []string{"Warranty"}, sa.Uncategorized)
	assert.Equal(t, 75.0, sa.Completeness)
	assert.Equal(t, "Good - Comprehensive specifications", sa.Quality)
}

func TestAnalyzeProduct(t *testing.T) {
	price := 19.5
	rec := product(2, map[string]string{
		"name":         "Basic Widget",
		"sku":          "WID-002",
		"price":        "$19.50",
		"description":  "A basic widget. It works.",
		"availability": "In stock",
	})
	rec.PriceNumeric = &price
	rec.Fields["images"] = models.FieldValue{Values: []string{"/w2.jpg"}}

	ar := AnalyzeProduct(rec, nil)
	assert.Equal(t, "Basic Widget", ar.Name)
	assert.Equal(t, "WID-002", ar.SKU)
	assert.Equal(t, 5, ar.WordCount)
	require.NotNil(t, ar.Description)
	require.NotNil(t, ar.Price)
	assert.Equal(t, "USD", ar.Price.Currency)
	assert.Nil(t, ar.Specs)
	assert.Equal(t, 1, ar.Images.Count)
	assert.Equal(t, map[string]string{"availability": "In stock"}, ar.CustomFields)

	t.Run("missing fields stay absent", func(t *testing.T) {
		ar := AnalyzeProduct(product(3, nil), nil)
		assert.Nil(t, ar.Description)
		assert.Nil(t, ar.Price)
		assert.Nil(t, ar.CustomFields)
		assert.Zero(t, ar.Images.Score)
	})
}

func TestSiteAnalyses(t *testing.T) {
	p1, p2, p3 := 10.0, 30.0, 20.0
	products := []models.ExtractionRecord{
		product(0, map[string]string{"description": "Same words here."}),
		product(1, map[string]string{"description": "same   WORDS here."}),
		product(2, map[string]string{"description": "Something different entirely for this one."}),
	}
	products[0].PriceNumeric = &p1
	products[1].PriceNumeric = &p2
	products[2].PriceNumeric = &p3
	products[0].Metrics = models.ContentMetrics{HasMetaDescription: true, HasH1: true, HasAltText: true}
	products[1].Metrics = models.ContentMetrics{HasMetaDescription: true, HasH1: true, HasAltText: true, HasH2: true}

	t.Run("summary", func(t *testing.T) {
		s := Summarize(10, products)
		assert.Equal(t, 10, s.PagesCrawled)
		assert.Equal(t, 3, s.TotalProducts)
		require.NotNil(t, s.Price)
		assert.Equal(t, 10.0, s.Price.Min)
		assert.Equal(t, 30.0, s.Price.Max)
		assert.Equal(t, 20.0, s.Price.Avg)
		assert.Equal(t, 20.0, s.Price.Median)
		assert.InDelta(t, 4.0, s.AvgDescriptionLength, 0.01)
	})

	t.Run("no prices", func(t *testing.T) {
		assert.Nil(t, Summarize(1, []models.ExtractionRecord{product(0, nil)}).Price)
	})

	t.Run("seo", func(t *testing.T) {
		seo := SEOOf(products)
		assert.InDelta(t, 66.67, seo.MetaDescriptionPct, 0.01)
		assert.InDelta(t, 33.33, seo.H2Pct, 0.01)
		// 66.67*.25 + 66.67*.25 + 66.67*.2 + 33.33*.1
		assert.InDelta(t, 50.0, seo.Score, 0.01)
		assert.Equal(t, "Average", seo.Quality)
		assert.Equal(t, "Unknown", SEOOf(nil).Quality)
	})

	t.Run("duplicates", func(t *testing.T) {
		groups := Duplicates(products)
		require.Len(t, groups, 1)
		assert.Equal(t, []string{products[0].URL, products[1].URL}, groups[0].URLs)
	})

	t.Run("content quality", func(t *testing.T) {
		cq := ContentQualityOf(products)
		assert.Equal(t, "Poor - Very limited descriptions", cq.Rating)
		assert.NotEmpty(t, cq.Readability)
	})
}

func TestAnalyzerPreservesOrder(t *testing.T) {
	tokens, err := NewTokenCounter("cl100k_base")
	require.NoError(t, err)

	var products []models.ExtractionRecord
	for i := range 25 {
		products = append(products, product(24-i, map[string]string{
			"name":        fmt.Sprintf("Widget %d", 24-i),
			"description": "A sturdy widget for everyday use.",
		}))
	}
	in := &models.ExtractResult{BaseName: "shop_20260101_120000", PagesCrawled: 40, Products: products}

	var calls int
	a := New(tokens, 4, testLogger())
	out, err := a.Analyze(context.Background(), in, func(done, total int) {
		calls++
		assert.Equal(t, 25, total)
	})
	require.NoError(t, err)
	require.Len(t, out.Products, len(products))
	for i := range products {
		assert.Equal(t, products[i].URL, out.Products[i].URL)
		assert.Greater(t, out.Products[i].Description.TokenCount, 0)
	}
	assert.Equal(t, 25, calls)
	assert.Equal(t, 40, out.Summary.PagesCrawled)
	assert.Equal(t, "shop_20260101_120000", out.BaseName)
}

func TestAnalyzerEmptyInput(t *testing.T) {
	out, err := New(nil, 2, testLogger()).Analyze(context.Background(), &models.ExtractResult{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, out.Products)
	assert.Empty(t, out.Products)
}

func TestAnalyzerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := &models.ExtractResult{Products: []models.ExtractionRecord{product(0, nil)}}
	_, err := New(nil, 1, testLogger()).Analyze(ctx, in, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewTokenCounter(t *testing.T) {
	_, err := NewTokenCounter("nope")
	assert.Error(t, err)

	var nilCounter *TokenCounter
	assert.Equal(t, -1, nilCounter.Count("hello"))
}
