package parse

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks returns the absolute http(s) links of every a[href] in doc,
// resolved against base, deduplicated by normalized form and in document
// order. Scope filtering is left to the caller.
func ExtractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if rel := strings.ToLower(a.AttrOr("rel", "")); strings.Contains(rel, "nofollow") {
			return
		}
		u, err := base.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return
		}
		key := NormalizeURL(u)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		u.Fragment = ""
		u.RawFragment = ""
		links = append(links, u.String())
	})
	return links
}
