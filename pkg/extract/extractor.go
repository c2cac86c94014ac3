package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/models"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// Extractor turns stored product pages into ExtractionRecords. It is safe
// for concurrent use once built.
type Extractor struct {
	cascades []Cascade
	log      *logrus.Entry
}

// NewExtractor compiles every configured cascade. Malformed rules are
// logged once here and skipped during resolution.
func NewExtractor(cfg *config.AuditConfig, log *logrus.Entry) *Extractor {
	e := &Extractor{log: log}
	for _, f := range cfg.Fields() {
		c := NewCascade(f.Name, f.Cascade, f.Multi)
		for _, bad := range c.Malformed() {
			log.WithField("field", f.Name).Warnf("Ignoring malformed rule %q: %v", bad.Raw, bad.Err())
		}
		e.cascades = append(e.cascades, c)
	}
	return e
}

// Extract builds the record for page from its raw HTML. Fields with no
// matching rule are absent from the record.
func (e *Extractor) Extract(page models.PageRecord, rawHTML []byte) (models.ExtractionRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return models.ExtractionRecord{}, fmt.Errorf("%w: HTML of %s: %v", utils.ErrParsing, page.URL, err)
	}

	rec := models.ExtractionRecord{
		URL:      page.URL,
		Sequence: page.Sequence,
		Fields:   make(map[string]models.FieldValue),
		Meta:     ExtractMeta(doc),
	}

	for _, c := range e.cascades {
		m, ok := c.Resolve(doc.Selection)
		if !ok {
			continue
		}
		rec.Fields[c.Field] = m.FieldValue(c.Multi)

		switch c.Field {
		case config.FieldPrice:
			if v, ok := ParsePrice(rec.Fields[c.Field].Value); ok {
				rec.PriceNumeric = &v
			}
		case config.FieldSpecs:
			specs := ParseSpecifications(m.Nodes)
			if len(specs) > 0 {
				rec.Specifications = specs
				if dims := ParseDimensions(specs); len(dims) > 0 {
					rec.Dimensions = dims
				}
			}
		case config.FieldDescription:
			if m.Rule.Kind == KindHTML {
				rec.DescriptionMarkdown = toMarkdown(m.Values[0], e.log)
			}
		case config.FieldImages:
			rec.Fields[c.Field] = absolutize(rec.Fields[c.Field], page)
		}
	}

	rec.Metrics = ContentMetricsFor(doc, rawHTML, pageURL(page), e.log)
	return rec, nil
}

// ExtractMeta reads <title>, meta description and meta keywords.
func ExtractMeta(doc *goquery.Document) models.Meta {
	meta := models.Meta{Title: CollapseWhitespace(doc.Find("title").First().Text())}
	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		content = CollapseWhitespace(content)
		switch strings.ToLower(name) {
		case "description":
			if meta.Description == "" {
				meta.Description = content
			}
		case "keywords":
			if meta.Keywords == "" {
				meta.Keywords = content
			}
		}
	})
	return meta
}

// ContentMetricsFor counts headings and images and detects SEO signals.
// The main text word count comes from readability; on failure it falls
// back to the body text.
func ContentMetricsFor(doc *goquery.Document, rawHTML []byte, base *url.URL, log *logrus.Entry) models.ContentMetrics {
	meta := ExtractMeta(doc)
	m := models.ContentMetrics{
		H1Count:            doc.Find("h1").Length(),
		H2Count:            doc.Find("h2").Length(),
		HasMetaDescription: meta.Description != "",
		HasMetaKeywords:    meta.Keywords != "",
		HasStructuredData:  doc.Find(`script[type="application/ld+json"], [itemscope]`).Length() > 0,
	}
	m.HasH1 = m.H1Count > 0
	m.HasH2 = m.H2Count > 0

	imgs := doc.Find("img")
	m.ImageCount = imgs.Length()
	imgs.Each(func(_ int, s *goquery.Selection) {
		if alt, ok := s.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			m.ImagesWithAlt++
		}
	})
	m.HasAltText = m.ImageCount > 0 && m.ImagesWithAlt == m.ImageCount

	article, err := readability.FromReader(bytes.NewReader(rawHTML), base)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		m.MainTextWords = len(strings.Fields(article.TextContent))
	} else {
		if err != nil {
			log.Debugf("Readability failed, counting body text: %v", err)
		}
		m.MainTextWords = len(strings.Fields(VisibleText(doc.Find("body"))))
	}
	return m
}

func toMarkdown(fragment string, log *logrus.Entry) string {
	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(fragment)
	if err != nil {
		log.Debugf("Markdown conversion failed: %v", err)
		return ""
	}
	return strings.TrimSpace(out)
}

func pageURL(page models.PageRecord) *url.URL {
	raw := page.FinalURL
	if raw == "" {
		raw = page.URL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u
}

// absolutize resolves relative image URLs against the page URL.
func absolutize(fv models.FieldValue, page models.PageRecord) models.FieldValue {
	base := pageURL(page)
	if base == nil {
		return fv
	}
	out := make([]string, 0, len(fv.Values))
	for _, v := range fv.Values {
		if ref, err := url.Parse(v); err == nil {
			v = base.ResolveReference(ref).String()
		}
		out = append(out, v)
	}
	fv.Values = out
	return fv
}
