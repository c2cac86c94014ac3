package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const textWidth = 80

var (
	heavyRule = strings.Repeat("=", textWidth)
	lightRule = strings.Repeat("-", textWidth)
)

type textRenderer struct{}

func (textRenderer) render(w io.Writer, v *view) error {
	b := bufio.NewWriter(w)
	section := func(title string) {
		fmt.Fprintf(b, "%s\n%s\n", title, lightRule)
	}

	fmt.Fprintf(b, "%s\nWEBSITE AUDIT REPORT\n%s\n\n", heavyRule, heavyRule)

	section("REPORT INFORMATION")
	fmt.Fprintf(b, "Generated: %s\n", v.Generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(b, "Source: %s\n", orNA(v.Source))
	fmt.Fprintf(b, "Analysis Date: %s\n", v.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(b, "Pages Crawled: %d\n", v.Summary.PagesCrawled)
	fmt.Fprintf(b, "Products Analyzed: %d\n\n", len(v.Products))

	section("EXECUTIVE SUMMARY")
	fmt.Fprintf(b, "SEO Score: %.1f/100 (%s)\n", v.SEO.Score, v.SEO.Quality)
	fmt.Fprintf(b, "Content: %s\n", v.ContentQuality.Rating)
	fmt.Fprintf(b, "Readability: %s\n", v.ContentQuality.Readability)
	fmt.Fprintf(b, "Duplicate Description Groups: %d\n\n", len(v.Duplicates))

	section("SITE SUMMARY")
	fmt.Fprintf(b, "Total Products: %d\n", v.Summary.TotalProducts)
	fmt.Fprintf(b, "Average Description Length: %.1f words\n", v.Summary.AvgDescriptionLength)
	if p := v.Summary.Price; p != nil {
		fmt.Fprintf(b, "Prices Found: %d\n", p.Count)
		fmt.Fprintf(b, "Price Range: %.2f - %.2f\n", p.Min, p.Max)
		fmt.Fprintf(b, "Average Price: %.2f\n", p.Avg)
		fmt.Fprintf(b, "Median Price: %.2f\n", p.Median)
	} else {
		b.WriteString("Prices Found: 0\n")
	}
	b.WriteString("\n")

	section("SEO ANALYSIS")
	fmt.Fprintf(b, "Meta Descriptions: %.1f%%\n", v.SEO.MetaDescriptionPct)
	fmt.Fprintf(b, "Meta Keywords: %.1f%%\n", v.SEO.MetaKeywordsPct)
	fmt.Fprintf(b, "H1 Headings: %.1f%%\n", v.SEO.H1Pct)
	fmt.Fprintf(b, "H2 Headings: %.1f%%\n", v.SEO.H2Pct)
	fmt.Fprintf(b, "Image Alt Text: %.1f%%\n", v.SEO.AltTextPct)
	fmt.Fprintf(b, "Structured Data: %.1f%%\n\n", v.SEO.StructuredDataPct)

	if len(v.Duplicates) > 0 {
		section("DUPLICATE CONTENT")
		for i, g := range v.Duplicates {
			fmt.Fprintf(b, "Group %d:\n", i+1)
			for _, u := range g.URLs {
				fmt.Fprintf(b, "  - %s\n", u)
			}
		}
		b.WriteString("\n")
	}

	section("PRODUCT DETAILS")
	if len(v.Products) == 0 {
		b.WriteString("No products found.\n")
	}
	for i, p := range v.Products {
		fmt.Fprintf(b, "%d. %s\n", i+1, orDefault(p.Name, "Unknown"))
		fmt.Fprintf(b, "   URL: %s\n", p.URL)
		fmt.Fprintf(b, "   SKU: %s\n", orNA(p.SKU))
		if p.Price != nil {
			fmt.Fprintf(b, "   Price: %s", orNA(p.Price.Raw))
			if p.Price.Currency != "" {
				fmt.Fprintf(b, " (%s)", p.Price.Currency)
			}
			b.WriteString("\n")
		}
		if d := p.Description; d != nil {
			fmt.Fprintf(b, "   Description: %d words, %s, sentiment %s\n", d.WordCount, d.Readability, d.Sentiment)
			if len(d.KeyPhrases) > 0 {
				fmt.Fprintf(b, "   Key Phrases: %s\n", strings.Join(d.KeyPhrases, ", "))
			}
		} else {
			b.WriteString("   Description: missing\n")
		}
		fmt.Fprintf(b, "   Images: %d (%d/10, %s)\n", p.Images.Count, p.Images.Score, p.Images.Quality)
		if s := p.Specs; s != nil {
			fmt.Fprintf(b, "   Specifications: %d (%.0f%% complete, %s)\n", s.Count, s.Completeness, s.Quality)
		}
		for _, k := range sortedKeys(p.CustomFields) {
			fmt.Fprintf(b, "   %s: %s\n", k, p.CustomFields[k])
		}
		b.WriteString("\n")
	}

	if len(v.Recommendations) > 0 {
		section("RECOMMENDATIONS")
		area := ""
		for _, r := range v.Recommendations {
			if r.Area != area {
				area = r.Area
				fmt.Fprintf(b, "%s:\n", area)
			}
			fmt.Fprintf(b, "  - %s\n", r.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(b, "%s\nEnd of Report\n%s\n", heavyRule, heavyRule)
	return b.Flush()
}

func orNA(s string) string { return orDefault(s, "N/A") }

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
