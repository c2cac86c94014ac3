package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/auditkit/site-auditor/pkg/models"
)

// Cascade is the ordered rule list of one field.
type Cascade struct {
	Field string
	Rules []Rule
	Multi bool
}

// NewCascade compiles rules for field. Malformed rules are kept; they never match.
func NewCascade(field string, rules []string, multi bool) Cascade {
	c := Cascade{Field: field, Multi: multi, Rules: make([]Rule, 0, len(rules))}
	for _, raw := range rules {
		c.Rules = append(c.Rules, ParseRule(raw))
	}
	return c
}

// Malformed returns the rules that failed to compile.
func (c Cascade) Malformed() []Rule {
	var bad []Rule
	for _, r := range c.Rules {
		if r.Err() != nil {
			bad = append(bad, r)
		}
	}
	return bad
}

// Match is the outcome of resolving a cascade.
type Match struct {
	Rule   Rule
	Rank   int
	Values []string
	Nodes  *goquery.Selection // Nodes that produced Values
}

// Resolve walks the rules in order and stops at the first one yielding a
// non-blank value. Multi-valued cascades take every value of that one rule;
// values are never merged across rules. ok is false when nothing matched.
func (c Cascade) Resolve(root *goquery.Selection) (m Match, ok bool) {
	for rank, rule := range c.Rules {
		if rule.Err() != nil {
			continue
		}
		if c.Multi {
			vals := rule.Values(root)
			if len(vals) == 0 {
				continue
			}
			return Match{Rule: rule, Rank: rank, Values: dedupe(vals), Nodes: rule.Find(root)}, true
		}
		val, node, found := rule.First(root)
		if found {
			return Match{Rule: rule, Rank: rank, Values: []string{val}, Nodes: node}, true
		}
	}
	return Match{}, false
}

// FieldValue converts the match into its stored form. HTML values are
// reduced to visible text.
func (m Match) FieldValue(multi bool) models.FieldValue {
	fv := models.FieldValue{Rule: m.Rule.Raw, Rank: m.Rank}
	vals := m.Values
	if m.Rule.Kind == KindHTML {
		vals = make([]string, len(m.Values))
		for i, v := range m.Values {
			vals[i] = CleanHTML(v)
		}
	}
	if multi {
		fv.Values = vals
	} else if len(vals) > 0 {
		fv.Value = vals[0]
	}
	return fv
}

func dedupe(vals []string) []string {
	seen := make(map[string]struct{}, len(vals))
	out := vals[:0:0]
	for _, v := range vals {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
