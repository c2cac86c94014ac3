package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/auditkit/site-auditor/pkg/utils"
)

// Standard product fields, in extraction order.
const (
	FieldName        = "name"
	FieldPrice       = "price"
	FieldDescription = "description"
	FieldSKU         = "sku"
	FieldImages      = "images"
	FieldSpecs       = "specs"
)

// StandardFields lists every built-in field.
var StandardFields = []string{FieldName, FieldPrice, FieldDescription, FieldSKU, FieldImages, FieldSpecs}

// Report formats.
const (
	FormatText = "text"
	FormatHTML = "html"
	FormatCSV  = "csv"
)

// AllReportFormats is the default and the set of accepted formats.
var AllReportFormats = []string{FormatText, FormatHTML, FormatCSV}

// DefaultProductURLPatterns apply when product_url_patterns is absent.
var DefaultProductURLPatterns = []string{`/product/`, `/item/`, `[pP]roduct[-_]?[dD]etail`}

// DefaultProductPageSelectors apply when product_page_selectors is absent.
var DefaultProductPageSelectors = []string{`div.product`, `div.product-detail`, `#product`}

// DefaultFieldCascades apply per standard field when its cascade is absent.
var DefaultFieldCascades = map[string][]string{
	FieldName: {
		"h1.product-title::text",
		"h1[itemprop='name']::text",
		"h1::text",
		".page-title span::text",
	},
	FieldPrice: {
		".price::text",
		"[itemprop='price']::text",
		".product-price::text",
		"span.price::text",
		".product-info-price .price::text",
	},
	FieldDescription: {
		".product-description",
		"[itemprop='description']",
		".description",
		".product.attribute.description .value",
		"div.product.attribute.description",
	},
	FieldSKU: {
		"[itemprop='sku']::text",
		".product-sku::text",
		".sku::text",
		".product.attribute.sku .value::text",
	},
	FieldImages: {
		".product-image::attr(src)",
		"[itemprop='image']::attr(src)",
		".product img::attr(src)",
		".gallery-placeholder img::attr(src)",
		".fotorama__img::attr(src)",
	},
	FieldSpecs: {
		".product-specs",
		".specifications",
		"table.specs",
		".additional-attributes",
		".product-attributes",
	},
}

// DefaultCustomCascade is the cascade used for a custom field declared
// without selectors.
func DefaultCustomCascade(name string) []string {
	return []string{
		"." + name + "::text",
		`[itemprop="` + name + `"]::text`,
	}
}

// FieldSelectors is a custom field's cascade as given on the wire: null, a
// comma-separated string, or a list of rules.
type FieldSelectors []string

// UnmarshalJSON accepts null, "a, b" and ["a", "b"].
func (f *FieldSelectors) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = splitSelectors(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("custom field selectors must be null, a string or a list of strings: %w", err)
	}
	*f = list
	return nil
}

func splitSelectors(s string) FieldSelectors {
	var out FieldSelectors
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// AuditConfig is the per-job audit request. It is validated once at job start
// and treated as read-only afterwards.
type AuditConfig struct {
	StartURL              string
	AllowedDomains        []string
	ProductURLPatterns    []string // nil = defaults, empty = none
	ProductPageSelectors  []string // nil = defaults, empty = none
	DetectByFieldPresence bool
	FieldCascades         map[string][]string // standard field -> cascade
	CustomFields          map[string]FieldSelectors
	ExtractFields         []string
	CrawlLimit            int // 0 = unbounded
	ReportFormats         []string
}

// wireAuditConfig mirrors the accepted JSON shape, including aliases.
type wireAuditConfig struct {
	StartURL              string                    `json:"start_url"`
	AllowedDomain         string                    `json:"allowed_domain"`
	AllowedDomains        []string                  `json:"allowed_domains"`
	ProductURLPatterns    *[]string                 `json:"product_url_patterns"`
	ProductPageSelectors  *[]string                 `json:"product_page_selectors"`
	DetectByFieldPresence bool                      `json:"detect_by_field_presence"`
	CustomFields          map[string]FieldSelectors `json:"custom_fields"`
	ExtractFields         []string                  `json:"extract_fields"`
	CrawlLimit            *int                      `json:"crawl_limit"`
	ReportFormats         []string                  `json:"report_formats"`
}

// UnmarshalJSON decodes the wire format. Per-field cascades are read from
// "<field>_selectors" or "product_<field>_selectors".
func (a *AuditConfig) UnmarshalJSON(data []byte) error {
	var w wireAuditConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = AuditConfig{
		StartURL:              w.StartURL,
		DetectByFieldPresence: w.DetectByFieldPresence,
		CustomFields:          w.CustomFields,
		ExtractFields:         w.ExtractFields,
		ReportFormats:         w.ReportFormats,
		FieldCascades:         make(map[string][]string),
	}
	a.AllowedDomains = append(a.AllowedDomains, w.AllowedDomains...)
	if w.AllowedDomain != "" {
		a.AllowedDomains = append(a.AllowedDomains, w.AllowedDomain)
	}
	if w.ProductURLPatterns != nil {
		a.ProductURLPatterns = append([]string{}, *w.ProductURLPatterns...)
	}
	if w.ProductPageSelectors != nil {
		a.ProductPageSelectors = append([]string{}, *w.ProductPageSelectors...)
	}
	if w.CrawlLimit != nil {
		a.CrawlLimit = *w.CrawlLimit
	}

	for _, field := range StandardFields {
		for _, key := range []string{field + "_selectors", "product_" + field + "_selectors"} {
			msg, ok := raw[key]
			if !ok || bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
				continue
			}
			var sel FieldSelectors
			if err := json.Unmarshal(msg, &sel); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			a.FieldCascades[field] = append([]string{}, sel...)
			break
		}
	}
	return nil
}

// ParseAuditConfig decodes a JSON audit request.
func ParseAuditConfig(data []byte) (*AuditConfig, error) {
	cfg := &AuditConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: audit config JSON: %v", utils.ErrParsing, err)
	}
	return cfg, nil
}

// LoadAuditConfig reads an audit request from a .json, .yaml or .yml file.
// YAML is converted to JSON so both share one decoder.
func LoadAuditConfig(path string) (*AuditConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", utils.ErrFilesystem, path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err := ParseAuditConfigYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return cfg, nil
	}
	return ParseAuditConfig(data)
}

// ParseAuditConfigYAML decodes a YAML audit request. The document is
// converted to JSON so both forms share one decoder.
func ParseAuditConfigYAML(data []byte) (*AuditConfig, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: audit config YAML: %v", utils.ErrParsing, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: converting audit config YAML: %v", utils.ErrParsing, err)
	}
	return ParseAuditConfig(data)
}

// MarshalJSON emits the canonical wire form; used when persisting the
// effective configuration alongside a run.
func (a AuditConfig) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"start_url":                a.StartURL,
		"allowed_domains":          a.AllowedDomains,
		"product_url_patterns":     a.ProductURLPatterns,
		"product_page_selectors":   a.ProductPageSelectors,
		"detect_by_field_presence": a.DetectByFieldPresence,
		"custom_fields":            a.CustomFields,
		"extract_fields":           a.ExtractFields,
		"crawl_limit":              a.CrawlLimit,
		"report_formats":           a.ReportFormats,
	}
	for field, cascade := range a.FieldCascades {
		out[field+"_selectors"] = cascade
	}
	return json.Marshal(out)
}
