package classify

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/extract"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// Result is a classification outcome. MatchedRule names the rule that
// decided a positive result ("url:<pattern>", "selector:<sel>" or "fields").
type Result struct {
	IsProduct   bool
	MatchedRule string
}

type pageSelector struct {
	raw     string
	matcher cascadia.Selector
}

// Classifier decides whether a page is a product page. It holds only
// compiled, read-only rules and is safe for concurrent use.
type Classifier struct {
	patterns  []*regexp.Regexp
	selectors []pageSelector
	name      extract.Cascade
	price     extract.Cascade
	byFields  bool
}

// New compiles the classifier rules of a validated config. Invalid URL
// patterns are a configuration error; malformed selectors are logged and
// never match.
func New(cfg *config.AuditConfig, log *logrus.Entry) (*Classifier, error) {
	patterns, err := utils.CompileRegexPatterns("product_url_patterns", cfg.ProductURLPatterns)
	if err != nil {
		return nil, err
	}
	c := &Classifier{patterns: patterns, byFields: cfg.DetectByFieldPresence}
	for _, raw := range cfg.ProductPageSelectors {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		m, err := cascadia.Compile(raw)
		if err != nil {
			log.Warnf("Ignoring malformed product page selector %q: %v", raw, err)
			continue
		}
		c.selectors = append(c.selectors, pageSelector{raw: raw, matcher: m})
	}
	if c.byFields {
		c.name = extract.NewCascade(config.FieldName, cascadeOrDefault(cfg, config.FieldName), false)
		c.price = extract.NewCascade(config.FieldPrice, cascadeOrDefault(cfg, config.FieldPrice), false)
	}
	return c, nil
}

// Classify tests URL patterns in order, then structural selectors in order;
// the first hit decides. With no patterns and no selectors every page is
// rejected, whatever the field heuristic would say.
func (c *Classifier) Classify(pageURL string, doc *goquery.Document) Result {
	if len(c.patterns) == 0 && len(c.selectors) == 0 {
		return Result{}
	}
	for _, re := range c.patterns {
		if re.MatchString(pageURL) {
			return Result{IsProduct: true, MatchedRule: "url:" + re.String()}
		}
	}
	if doc == nil {
		return Result{}
	}
	for _, s := range c.selectors {
		if doc.FindMatcher(s.matcher).Length() > 0 {
			return Result{IsProduct: true, MatchedRule: "selector:" + s.raw}
		}
	}
	if c.byFields {
		_, hasName := c.name.Resolve(doc.Selection)
		_, hasPrice := c.price.Resolve(doc.Selection)
		if hasName && hasPrice {
			return Result{IsProduct: true, MatchedRule: "fields:name+price"}
		}
	}
	return Result{}
}

func cascadeOrDefault(cfg *config.AuditConfig, field string) []string {
	if rules, ok := cfg.FieldCascades[field]; ok && len(rules) > 0 {
		return rules
	}
	return config.DefaultFieldCascades[field]
}
