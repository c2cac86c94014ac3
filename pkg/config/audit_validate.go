package config

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/auditkit/site-auditor/pkg/utils"
)

// FieldSpec is one field the extractor resolves, in resolution order.
type FieldSpec struct {
	Name    string
	Cascade []string
	Multi   bool // collect all values of the winning rule
	Custom  bool
}

// Validate normalizes the request in place and applies defaults. It must run
// before the job changes state; a returned error leaves the caller untouched.
func (a *AuditConfig) Validate() (warnings []string, err error) {
	a.StartURL = strings.TrimSpace(a.StartURL)
	if a.StartURL == "" {
		return nil, fmt.Errorf("%w: start_url is required", utils.ErrConfigValidation)
	}
	start, perr := url.Parse(a.StartURL)
	if perr != nil || (start.Scheme != "http" && start.Scheme != "https") || start.Hostname() == "" {
		return nil, fmt.Errorf("%w: start_url %q must be an absolute http(s) URL", utils.ErrConfigValidation, a.StartURL)
	}

	domains := make([]string, 0, len(a.AllowedDomains))
	for _, d := range a.AllowedDomains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d == "" || slices.Contains(domains, d) {
			continue
		}
		domains = append(domains, d)
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("%w: allowed_domain is required", utils.ErrConfigValidation)
	}
	a.AllowedDomains = domains
	if !HostAllowed(start.Hostname(), domains) {
		return nil, fmt.Errorf("%w: start_url host %q is outside allowed_domains %v",
			utils.ErrConfigValidation, start.Hostname(), domains)
	}

	if a.ProductURLPatterns == nil {
		a.ProductURLPatterns = slices.Clone(DefaultProductURLPatterns)
	}
	if _, err := utils.CompileRegexPatterns("product_url_patterns", a.ProductURLPatterns); err != nil {
		return nil, err
	}
	if a.ProductPageSelectors == nil {
		a.ProductPageSelectors = slices.Clone(DefaultProductPageSelectors)
	}
	if len(a.ProductURLPatterns) == 0 && len(a.ProductPageSelectors) == 0 {
		warnings = append(warnings, "product_url_patterns and product_page_selectors are both empty, no page will be classified as a product")
	}

	if a.CrawlLimit < 0 {
		return nil, fmt.Errorf("%w: crawl_limit must be a positive integer", utils.ErrConfigValidation)
	}

	if len(a.ExtractFields) == 0 {
		a.ExtractFields = slices.Clone(StandardFields)
	} else {
		fields := make([]string, 0, len(a.ExtractFields))
		for _, f := range a.ExtractFields {
			f = strings.ToLower(strings.TrimSpace(f))
			if !slices.Contains(StandardFields, f) {
				return nil, fmt.Errorf("%w: unknown extract field %q", utils.ErrConfigValidation, f)
			}
			if !slices.Contains(fields, f) {
				fields = append(fields, f)
			}
		}
		a.ExtractFields = fields
	}

	if a.FieldCascades == nil {
		a.FieldCascades = make(map[string][]string)
	}
	for _, f := range a.ExtractFields {
		cascade, ok := a.FieldCascades[f]
		if !ok {
			a.FieldCascades[f] = slices.Clone(DefaultFieldCascades[f])
			continue
		}
		cascade = trimRules(cascade)
		if len(cascade) == 0 {
			warnings = append(warnings, fmt.Sprintf("field %q has an empty cascade and will not be extracted", f))
		}
		a.FieldCascades[f] = cascade
	}

	custom := make(map[string]FieldSelectors, len(a.CustomFields))
	for name, sel := range a.CustomFields {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: custom field names must be non-empty", utils.ErrConfigValidation)
		}
		if _, dup := custom[trimmed]; dup {
			return nil, fmt.Errorf("%w: duplicate custom field %q", utils.ErrConfigValidation, trimmed)
		}
		if slices.Contains(StandardFields, trimmed) {
			return nil, fmt.Errorf("%w: custom field %q shadows a standard field", utils.ErrConfigValidation, trimmed)
		}
		rules := trimRules(sel)
		if sel == nil {
			rules = DefaultCustomCascade(trimmed)
		} else if len(rules) == 0 {
			warnings = append(warnings, fmt.Sprintf("custom field %q has an empty cascade and will not be extracted", trimmed))
		}
		custom[trimmed] = rules
	}
	a.CustomFields = custom

	if len(a.ReportFormats) == 0 {
		a.ReportFormats = slices.Clone(AllReportFormats)
	} else {
		formats := make([]string, 0, len(a.ReportFormats))
		for _, f := range a.ReportFormats {
			f = strings.ToLower(strings.TrimSpace(f))
			if !slices.Contains(AllReportFormats, f) {
				return nil, fmt.Errorf("%w: unknown report format %q", utils.ErrConfigValidation, f)
			}
			if !slices.Contains(formats, f) {
				formats = append(formats, f)
			}
		}
		a.ReportFormats = formats
	}

	return warnings, nil
}

// Fields returns the fields to extract: standard fields in their fixed order,
// then custom fields by name. Fields whose cascade is empty are omitted.
func (a *AuditConfig) Fields() []FieldSpec {
	var specs []FieldSpec
	for _, f := range StandardFields {
		if !slices.Contains(a.ExtractFields, f) {
			continue
		}
		if cascade := a.FieldCascades[f]; len(cascade) > 0 {
			specs = append(specs, FieldSpec{Name: f, Cascade: cascade, Multi: f == FieldImages})
		}
	}
	names := make([]string, 0, len(a.CustomFields))
	for name := range a.CustomFields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if cascade := a.CustomFields[name]; len(cascade) > 0 {
			specs = append(specs, FieldSpec{Name: name, Cascade: cascade, Custom: true})
		}
	}
	return specs
}

// PrimaryDomain is the first allowed domain, used to name run artifacts.
func (a *AuditConfig) PrimaryDomain() string {
	if len(a.AllowedDomains) > 0 {
		return a.AllowedDomains[0]
	}
	if u, err := url.Parse(a.StartURL); err == nil {
		return u.Hostname()
	}
	return "site"
}

// HostAllowed reports whether host equals an allowed domain or is a
// subdomain of one. Comparison is case-insensitive.
func HostAllowed(host string, domains []string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func trimRules(rules []string) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
