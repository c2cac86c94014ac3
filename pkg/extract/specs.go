package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/auditkit/site-auditor/pkg/models"
)

var (
	priceNumber   = regexp.MustCompile(`\d+\.?\d*`)
	measureNumber = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(mm|cm|inches|inch|in|ft|feet|foot|kg|g|lbs|lb|ounces|ounce|oz|m)?\b`)
)

// dimensionAliases maps spec-key tokens to the dimension they name.
var dimensionAliases = map[string]string{
	"length": "length", "len": "length", "l": "length",
	"width": "width", "w": "width", "wide": "width",
	"height": "height", "h": "height", "tall": "height",
	"diameter": "diameter", "dia": "diameter", "φ": "diameter",
	"weight": "weight", "wt": "weight",
}

// ParsePrice extracts the numeric amount from a displayed price. Thousands
// separators are removed first, so "1,299.99" yields 1299.99.
func ParsePrice(raw string) (float64, bool) {
	m := priceNumber.FindString(strings.ReplaceAll(raw, ",", ""))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(m, "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseSpecifications reads key/value pairs from spec markup: table rows
// (th/td or td/td), definition lists and "key: value" list items or lines.
// The first occurrence of a key wins.
func ParseSpecifications(nodes *goquery.Selection) map[string]string {
	specs := make(map[string]string)
	add := func(k, v string) {
		k = strings.TrimSuffix(CollapseWhitespace(k), ":")
		k = strings.TrimSpace(k)
		v = CollapseWhitespace(v)
		if k == "" || v == "" {
			return
		}
		if _, exists := specs[k]; !exists {
			specs[k] = v
		}
	}

	nodes.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Children().Filter("th, td")
		if cells.Length() >= 2 {
			add(VisibleText(cells.Eq(0)), VisibleText(cells.Eq(1)))
		}
	})
	nodes.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		if dd := dt.NextFiltered("dd"); dd.Length() > 0 {
			add(VisibleText(dt), VisibleText(dd))
		}
	})
	nodes.Find("li").Each(func(_ int, li *goquery.Selection) {
		if k, v, ok := strings.Cut(VisibleText(li), ":"); ok {
			add(k, v)
		}
	})
	if len(specs) == 0 {
		nodes.Each(func(_ int, n *goquery.Selection) {
			for _, line := range textLines(n) {
				if k, v, ok := strings.Cut(line, ":"); ok {
					add(k, v)
				}
			}
		})
	}
	return specs
}

// textLines splits the node's text at block and <br> boundaries.
func textLines(n *goquery.Selection) []string {
	html, err := n.Html()
	if err != nil {
		return nil
	}
	for _, tag := range []string{"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>"} {
		html = strings.ReplaceAll(html, tag, "\n"+tag)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = CollapseWhitespace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ParseDimensions derives measurements from specifications whose key names
// a dimension, matching aliases as whole tokens ("Width (cm)" but not "Wheel").
func ParseDimensions(specs map[string]string) map[string]models.Dimension {
	keys := make([]string, 0, len(specs))
	for k := range specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dims := make(map[string]models.Dimension)
	for _, key := range keys {
		dim := dimensionFor(key)
		if dim == "" {
			continue
		}
		if _, seen := dims[dim]; seen {
			continue
		}
		value := specs[key]
		m := measureNumber.FindStringSubmatch(value)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		unit := strings.ToLower(m[2])
		if unit == "" {
			unit = unitFromKey(key)
		}
		dims[dim] = models.Dimension{Value: v, Unit: unit, Raw: value}
	}
	return dims
}

func dimensionFor(key string) string {
	for _, tok := range tokens(key) {
		if dim, ok := dimensionAliases[tok]; ok {
			return dim
		}
	}
	return ""
}

// unitFromKey picks a unit from a key such as "Weight (kg)".
func unitFromKey(key string) string {
	for _, tok := range tokens(key) {
		switch tok {
		case "mm", "cm", "m", "in", "inch", "inches", "ft", "foot", "feet", "g", "kg", "lb", "lbs", "oz", "ounce", "ounces":
			return tok
		}
	}
	return ""
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
