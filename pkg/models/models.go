package models

import "time"

// WorkItem is a URL admitted to the crawl frontier
type WorkItem struct {
	URL      string
	Key      string // Normalized form recorded in the visited set
	Depth    int
	Sequence int // Admission order; ties in depth pop in this order
}

// PageDBEntry stores the crawl outcome of a page URL in the visited store
type PageDBEntry struct {
	Status      PageStatus `json:"status"`
	ErrorType   string     `json:"error_type,omitempty"`
	ProcessedAt time.Time  `json:"processed_at,omitempty"`
	LastAttempt time.Time  `json:"last_attempt"`
	Depth       int        `json:"depth"`
	ContentHash string     `json:"content_hash,omitempty"`
}

// --- Crawl stage ---

// PageRecord is one fetched page. Immutable once written.
type PageRecord struct {
	URL             string    `json:"url"`
	FinalURL        string    `json:"final_url,omitempty"`
	Sequence        int       `json:"sequence"`
	Depth           int       `json:"depth"`
	StatusCode      int       `json:"status_code"`
	IsProductPage   bool      `json:"is_product_page"`
	MatchedRule     string    `json:"matched_rule,omitempty"`
	RawContent      string    `json:"raw_content"` // Blob path relative to the data dir
	ContentHash     string    `json:"content_hash"`
	ContentLength   int       `json:"content_length"`
	Title           string    `json:"title,omitempty"`
	DiscoveredLinks []string  `json:"discovered_links,omitempty"`
	DiscoveredAt    time.Time `json:"discovered_at"`
}

// CrawlResult is the crawl stage checkpoint.
type CrawlResult struct {
	BaseName     string        `json:"base_name"`
	StartURL     string        `json:"start_url"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Cancelled    bool          `json:"cancelled"`
	TimedOut     bool          `json:"timed_out,omitempty"`
	PagesVisited int           `json:"pages_visited"` // Admitted URLs, including failures
	PagesFailed  int           `json:"pages_failed"`
	Pages        []PageRecord  `json:"pages"`
	Failures     []PageFailure `json:"failures,omitempty"`
}

// PageFailure is an admitted URL that produced no PageRecord.
type PageFailure struct {
	URL       string `json:"url"`
	ErrorType string `json:"error_type"`
}

// ProductPages returns product pages in discovery order.
func (c *CrawlResult) ProductPages() []PageRecord {
	var out []PageRecord
	for _, p := range c.Pages {
		if p.IsProductPage {
			out = append(out, p)
		}
	}
	return out
}

// --- Extract stage ---

// FieldValue is a resolved field: the winning rule's value (or values for
// multi-valued fields) and which rule produced it.
type FieldValue struct {
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
	Rule   string   `json:"rule"`
	Rank   int      `json:"rank"` // 0-based position of Rule in the cascade
}

// Meta holds document-level metadata.
type Meta struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
}

// Dimension is a measurement derived from a specification value.
type Dimension struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
	Raw   string  `json:"raw"`
}

// ContentMetrics are page-level counts and SEO signals.
type ContentMetrics struct {
	MainTextWords      int  `json:"main_text_words"`
	H1Count            int  `json:"h1_count"`
	H2Count            int  `json:"h2_count"`
	ImageCount         int  `json:"image_count"`
	ImagesWithAlt      int  `json:"images_with_alt"`
	HasMetaDescription bool `json:"has_meta_description"`
	HasMetaKeywords    bool `json:"has_meta_keywords"`
	HasH1              bool `json:"has_h1"`
	HasH2              bool `json:"has_h2"`
	HasAltText         bool `json:"has_alt_text"` // Every image has a non-empty alt
	HasStructuredData  bool `json:"has_structured_data"`
}

// ExtractionRecord is the structured data of one product page, derived
// deterministically from its PageRecord and the audit configuration.
type ExtractionRecord struct {
	URL                 string                `json:"url"`
	Sequence            int                   `json:"sequence"`
	Fields              map[string]FieldValue `json:"fields"`
	PriceNumeric        *float64              `json:"price_numeric,omitempty"`
	Specifications      map[string]string     `json:"specifications,omitempty"`
	Dimensions          map[string]Dimension  `json:"dimensions,omitempty"`
	DescriptionMarkdown string                `json:"description_markdown,omitempty"`
	Meta                Meta                  `json:"meta"`
	Metrics             ContentMetrics        `json:"metrics"`
}

// Text returns the single value of field, or "" when absent.
func (r *ExtractionRecord) Text(field string) string {
	if v, ok := r.Fields[field]; ok {
		if v.Value != "" {
			return v.Value
		}
		if len(v.Values) > 0 {
			return v.Values[0]
		}
	}
	return ""
}

// Values returns all values of field.
func (r *ExtractionRecord) Values(field string) []string {
	v, ok := r.Fields[field]
	if !ok {
		return nil
	}
	if len(v.Values) > 0 {
		return v.Values
	}
	if v.Value != "" {
		return []string{v.Value}
	}
	return nil
}

// ExtractResult is the extract stage checkpoint.
type ExtractResult struct {
	BaseName     string             `json:"base_name"`
	Source       string             `json:"source"`
	PagesCrawled int                `json:"pages_crawled"`
	Products     []ExtractionRecord `json:"products"`
}

// --- Analyze stage ---

// TextAnalysis scores a block of prose.
type TextAnalysis struct {
	WordCount         int      `json:"word_count"`
	SentenceCount     int      `json:"sentence_count"`
	AvgSentenceLength float64  `json:"avg_sentence_length"`
	ReadingEase       float64  `json:"reading_ease"`
	GradeLevel        float64  `json:"grade_level"`
	Readability       string   `json:"readability"`
	SentimentScore    float64  `json:"sentiment_score"`
	Sentiment         string   `json:"sentiment"`
	KeyPhrases        []string `json:"key_phrases,omitempty"`
	TokenCount        int      `json:"token_count"`
}

// SpecAnalysis grades specification coverage.
type SpecAnalysis struct {
	Count         int                 `json:"count"`
	Categories    map[string][]string `json:"categories"`
	Uncategorized []string            `json:"uncategorized,omitempty"`
	Completeness  float64             `json:"completeness"` // Percent of categories present
	Quality       string              `json:"quality"`
}

// ImageAnalysis grades product imagery.
type ImageAnalysis struct {
	Count      int    `json:"count"`
	Thumbnails int    `json:"thumbnails"`
	Large      int    `json:"large"`
	Standard   int    `json:"standard"`
	Score      int    `json:"score"` // 0-10
	Quality    string `json:"quality"`
}

// PriceAnalysis describes how a price is presented.
type PriceAnalysis struct {
	Raw                   string   `json:"raw"`
	Numeric               *float64 `json:"numeric,omitempty"`
	Currency              string   `json:"currency,omitempty"`
	HasDecimal            bool     `json:"has_decimal"`
	HasThousandsSeparator bool     `json:"has_thousands_separator"`
}

// AnalysisRecord is the per-product analysis; exactly one per ExtractionRecord.
type AnalysisRecord struct {
	URL          string            `json:"url"`
	Sequence     int               `json:"sequence"`
	Name         string            `json:"name,omitempty"`
	SKU          string            `json:"sku,omitempty"`
	WordCount    int               `json:"word_count"`
	Description  *TextAnalysis     `json:"description,omitempty"`
	Specs        *SpecAnalysis     `json:"specs,omitempty"`
	Images       ImageAnalysis     `json:"images"`
	Price        *PriceAnalysis    `json:"price,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// PriceSummary aggregates numeric prices across products.
type PriceSummary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
}

// SiteSummary is the headline of an audit.
type SiteSummary struct {
	PagesCrawled         int           `json:"pages_crawled"`
	TotalProducts        int           `json:"total_products"`
	Price                *PriceSummary `json:"price,omitempty"`
	AvgDescriptionLength float64       `json:"avg_description_length"`
}

// ContentQuality rates descriptions across the site.
type ContentQuality struct {
	AvgDescriptionLength float64 `json:"avg_description_length"`
	Rating               string  `json:"rating"`
	AvgReadingEase       float64 `json:"avg_reading_ease"`
	Readability          string  `json:"readability"`
}

// SEOAnalysis holds the share of pages carrying each signal, in percent.
type SEOAnalysis struct {
	MetaDescriptionPct float64 `json:"meta_description_pct"`
	MetaKeywordsPct    float64 `json:"meta_keywords_pct"`
	H1Pct              float64 `json:"h1_pct"`
	H2Pct              float64 `json:"h2_pct"`
	AltTextPct         float64 `json:"alt_text_pct"`
	StructuredDataPct  float64 `json:"structured_data_pct"`
	Score              float64 `json:"score"`
	Quality            string  `json:"quality"`
}

// DuplicateGroup lists products sharing identical description content.
type DuplicateGroup struct {
	Hash string   `json:"hash"`
	URLs []string `json:"urls"`
}

// AnalysisResult is the analyze stage checkpoint.
type AnalysisResult struct {
	BaseName       string           `json:"base_name"`
	Source         string           `json:"source"`
	GeneratedAt    time.Time        `json:"generated_at"`
	Summary        SiteSummary      `json:"summary"`
	ContentQuality ContentQuality   `json:"content_quality"`
	SEO            SEOAnalysis      `json:"seo"`
	Duplicates     []DuplicateGroup `json:"duplicates,omitempty"`
	Products       []AnalysisRecord `json:"products"`
}
