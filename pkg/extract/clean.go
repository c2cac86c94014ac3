package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// VisibleText returns the text under s with script and style content
// dropped, tag boundaries turned into spaces and whitespace collapsed.
func VisibleText(s *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				parts = append(parts, c.Text())
			case "script", "style", "noscript", "template", "#comment":
			default:
				walk(c)
			}
		})
	}
	if goquery.NodeName(s) == "#text" {
		return CollapseWhitespace(s.Text())
	}
	walk(s)
	return CollapseWhitespace(strings.Join(parts, " "))
}

// CleanHTML reduces an HTML fragment to its visible text.
func CleanHTML(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return CollapseWhitespace(fragment)
	}
	return VisibleText(doc.Selection)
}
