package report

import (
	"bytes"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type htmlRenderer struct {
	tmpl *template.Template
	md   goldmark.Markdown
}

func newHTMLRenderer() htmlRenderer {
	h := htmlRenderer{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
	h.tmpl = template.Must(template.New("report").Funcs(template.FuncMap{
		"markdown":   h.markdown,
		"orNA":       orNA,
		"sortedKeys": sortedKeys,
		"datetime":   func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	}).Parse(htmlTemplate))
	return h
}

func (h htmlRenderer) render(w io.Writer, v *view) error {
	return h.tmpl.Execute(w, v)
}

// markdown renders description markdown. Raw HTML in the source is dropped
// by goldmark's default renderer, so the result is safe to inline.
func (h htmlRenderer) markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Website Audit Report</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; margin: 0; padding: 20px; color: #2c3e50; }
h1 { text-align: center; }
.section { margin-bottom: 20px; padding: 15px; background-color: #f9f9f9; border-radius: 5px; }
.product { border-top: 1px solid #ddd; padding-top: 10px; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ddd; padding: 4px 8px; text-align: left; }
</style>
</head>
<body>
<h1>Website Audit Report</h1>

<div class="section">
<h2>Report Information</h2>
<p>Generated: {{datetime .Generated}}</p>
<p>Source: {{orNA .Source}}</p>
<p>Analysis Date: {{datetime .GeneratedAt}}</p>
<p>Pages Crawled: {{.Summary.PagesCrawled}}</p>
<p>Products Analyzed: {{len .Products}}</p>
</div>

<div class="section">
<h2>Executive Summary</h2>
<table>
<tr><th>SEO Score</th><td>{{printf "%.1f" .SEO.Score}}/100 ({{.SEO.Quality}})</td></tr>
<tr><th>Content</th><td>{{.ContentQuality.Rating}}</td></tr>
<tr><th>Readability</th><td>{{.ContentQuality.Readability}}</td></tr>
<tr><th>Average Description Length</th><td>{{printf "%.1f" .Summary.AvgDescriptionLength}} words</td></tr>
{{- with .Summary.Price}}
<tr><th>Price Range</th><td>{{printf "%.2f" .Min}} - {{printf "%.2f" .Max}} (avg {{printf "%.2f" .Avg}}, median {{printf "%.2f" .Median}})</td></tr>
{{- end}}
</table>
</div>

<div class="section">
<h2>SEO Analysis</h2>
<table>
<tr><th>Meta Descriptions</th><td>{{printf "%.1f" .SEO.MetaDescriptionPct}}%</td></tr>
<tr><th>Meta Keywords</th><td>{{printf "%.1f" .SEO.MetaKeywordsPct}}%</td></tr>
<tr><th>H1 Headings</th><td>{{printf "%.1f" .SEO.H1Pct}}%</td></tr>
<tr><th>H2 Headings</th><td>{{printf "%.1f" .SEO.H2Pct}}%</td></tr>
<tr><th>Image Alt Text</th><td>{{printf "%.1f" .SEO.AltTextPct}}%</td></tr>
<tr><th>Structured Data</th><td>{{printf "%.1f" .SEO.StructuredDataPct}}%</td></tr>
</table>
</div>
{{- if .Duplicates}}

<div class="section">
<h2>Duplicate Content</h2>
{{- range .Duplicates}}
<ul>{{range .URLs}}<li><a href="{{.}}">{{.}}</a></li>{{end}}</ul>
{{- end}}
</div>
{{- end}}

<div class="section">
<h2>Products</h2>
{{- if not .Products}}
<p>No products found.</p>
{{- end}}
{{- $md := .Markdown}}
{{- range .Products}}
<div class="product">
<h3>{{if .Name}}{{.Name}}{{else}}Unknown{{end}}</h3>
<p><a href="{{.URL}}">{{.URL}}</a> &middot; SKU: {{orNA .SKU}}{{with .Price}} &middot; Price: {{orNA .Raw}}{{with .Currency}} ({{.}}){{end}}{{end}}</p>
{{- with index $md .URL}}
<div class="description">{{markdown .}}</div>
{{- end}}
<table>
{{- with .Description}}
<tr><th>Words</th><td>{{.WordCount}}</td></tr>
<tr><th>Readability</th><td>{{printf "%.1f" .ReadingEase}} ({{.Readability}})</td></tr>
<tr><th>Sentiment</th><td>{{.Sentiment}}</td></tr>
{{- if .KeyPhrases}}
<tr><th>Key Phrases</th><td>{{range $i, $p := .KeyPhrases}}{{if $i}}, {{end}}{{$p}}{{end}}</td></tr>
{{- end}}
{{- end}}
<tr><th>Images</th><td>{{.Images.Count}} ({{.Images.Score}}/10, {{.Images.Quality}})</td></tr>
{{- with .Specs}}
<tr><th>Specifications</th><td>{{.Count}} ({{printf "%.0f" .Completeness}}% complete, {{.Quality}})</td></tr>
{{- end}}
{{- $custom := .CustomFields}}
{{- range sortedKeys $custom}}
<tr><th>{{.}}</th><td>{{index $custom .}}</td></tr>
{{- end}}
</table>
</div>
{{- end}}
</div>
{{- if .Recommendations}}

<div class="section">
<h2>Recommendations</h2>
<ul>
{{- range .Recommendations}}
<li><strong>{{.Area}}:</strong> {{.Text}}</li>
{{- end}}
</ul>
</div>
{{- end}}
</body>
</html>
`
