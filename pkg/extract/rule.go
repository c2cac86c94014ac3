package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// RuleKind selects what a rule reads from its matched nodes.
type RuleKind int

const (
	// KindHTML reads the outer HTML of the node (bare selector).
	KindHTML RuleKind = iota
	// KindText reads the node's text content ("sel::text").
	KindText
	// KindAttr reads one attribute ("sel::attr(name)").
	KindAttr
)

func (k RuleKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAttr:
		return "attr"
	default:
		return "html"
	}
}

var attrSuffix = regexp.MustCompile(`^(.*?)::attr\(\s*([^)\s]+)\s*\)$`)

// Rule is one compiled extraction rule. A rule whose selector does not
// parse stays in its cascade and never matches.
type Rule struct {
	Raw      string
	Selector string
	Kind     RuleKind
	Attr     string
	matcher  cascadia.Selector
	err      error
}

// ParseRule compiles raw. It never fails; check Err for malformed rules.
func ParseRule(raw string) Rule {
	r := Rule{Raw: raw}
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasSuffix(s, "::text"):
		r.Kind = KindText
		s = strings.TrimSuffix(s, "::text")
	case attrSuffix.MatchString(s):
		m := attrSuffix.FindStringSubmatch(s)
		r.Kind = KindAttr
		s, r.Attr = m[1], m[2]
	case strings.Contains(s, "::"):
		r.err = fmt.Errorf("unsupported pseudo-element in %q", raw)
		return r
	}
	r.Selector = strings.TrimSpace(s)
	if r.Selector == "" {
		r.err = fmt.Errorf("empty selector in %q", raw)
		return r
	}
	r.matcher, r.err = cascadia.Compile(r.Selector)
	return r
}

// Err reports why the rule is malformed, or nil.
func (r Rule) Err() error { return r.err }

// Find returns the nodes matched under root; a malformed rule matches nothing.
func (r Rule) Find(root *goquery.Selection) *goquery.Selection {
	if r.err != nil {
		return root.Slice(0, 0)
	}
	return root.FindMatcher(r.matcher)
}

// Values returns the non-blank value of each matched node in document order.
// For KindHTML a node counts as blank when its visible text is blank.
func (r Rule) Values(root *goquery.Selection) []string {
	var out []string
	r.Find(root).Each(func(_ int, s *goquery.Selection) {
		if v, ok := r.value(s); ok {
			out = append(out, v)
		}
	})
	return out
}

// First returns the first non-blank value and its node.
func (r Rule) First(root *goquery.Selection) (string, *goquery.Selection, bool) {
	var (
		val  string
		node *goquery.Selection
	)
	r.Find(root).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := r.value(s); ok {
			val, node = v, s
			return false
		}
		return true
	})
	return val, node, node != nil
}

func (r Rule) value(s *goquery.Selection) (string, bool) {
	switch r.Kind {
	case KindText:
		v := VisibleText(s)
		return v, v != ""
	case KindAttr:
		v, _ := s.Attr(r.Attr)
		v = strings.TrimSpace(v)
		return v, v != ""
	default:
		if VisibleText(s) == "" {
			return "", false
		}
		html, err := goquery.OuterHtml(s)
		if err != nil {
			return "", false
		}
		return html, true
	}
}

// CollapseWhitespace trims s and folds every whitespace run into one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
