// Package report renders analysis checkpoints into text, HTML and CSV
// artifacts and lists what has been rendered so far.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/models"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// Input is everything a renderer may draw on. Extracted is optional and only
// supplies description markdown to the HTML report.
type Input struct {
	Analysis  *models.AnalysisResult
	Extracted *models.ExtractResult
}

// view is the render-ready form of Input: products in discovery order and
// the recommendations derived from the analysis.
type view struct {
	*models.AnalysisResult
	Generated       time.Time
	Products        []models.AnalysisRecord
	Markdown        map[string]string
	Recommendations []Recommendation
}

type renderer interface {
	render(w io.Writer, v *view) error
}

var renderers = map[string]struct {
	ext string
	r   renderer
}{
	config.FormatText: {".txt", textRenderer{}},
	config.FormatHTML: {".html", newHTMLRenderer()},
	config.FormatCSV:  {".csv", csvRenderer{}},
}

// ExtensionFor returns the file extension for a report format, or "" when the
// format is unknown.
func ExtensionFor(format string) string {
	return renderers[format].ext
}

// Result lists the artifacts written and the formats that failed.
type Result struct {
	Files  map[string]string `json:"files"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Generator writes report artifacts into a single directory.
type Generator struct {
	dir string
	log *logrus.Entry
	now func() time.Time
}

// NewGenerator returns a Generator writing into dir.
func NewGenerator(dir string, log *logrus.Entry) *Generator {
	return &Generator{dir: dir, log: log.WithField("component", "report"), now: time.Now}
}

// Generate renders every requested format as <dir>/<base><ext>. Formats are
// independent: a failing format is logged and recorded in Result.Failed. The
// returned error is non-nil only when every format failed.
func (g *Generator) Generate(ctx context.Context, base string, formats []string, in Input) (*Result, error) {
	if in.Analysis == nil {
		return nil, fmt.Errorf("%w: no analysis to render", utils.ErrRender)
	}
	if len(formats) == 0 {
		formats = config.AllReportFormats
	}
	v := newView(in, g.now())

	res := &Result{Files: make(map[string]string)}
	var errs []error
	for _, format := range formats {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		path, err := g.renderOne(format, base, v)
		if err != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[format] = err.Error()
			errs = append(errs, err)
			g.log.WithError(err).WithField("format", format).Error("Report format failed")
			continue
		}
		res.Files[format] = path
		g.log.WithField("format", format).Infof("Wrote %s report to %s", format, path)
	}
	if len(res.Files) == 0 {
		return res, fmt.Errorf("%w: every report format failed: %w", utils.ErrRender, errors.Join(errs...))
	}
	return res, nil
}

func (g *Generator) renderOne(format, base string, v *view) (path string, err error) {
	entry, ok := renderers[format]
	if !ok {
		return "", fmt.Errorf("%w: unknown format %q", utils.ErrRender, format)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s renderer panicked: %v", utils.ErrRender, format, r)
		}
	}()

	var buf bytes.Buffer
	if err := entry.r.render(&buf, v); err != nil {
		return "", fmt.Errorf("%w: %s: %w", utils.ErrRender, format, err)
	}
	path = filepath.Join(g.dir, base+entry.ext)
	if err := utils.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return "", err
	}
	return path, nil
}

func newView(in Input, generated time.Time) *view {
	products := slices.Clone(in.Analysis.Products)
	sort.SliceStable(products, func(i, j int) bool { return products[i].Sequence < products[j].Sequence })

	md := make(map[string]string)
	if in.Extracted != nil {
		for _, p := range in.Extracted.Products {
			if p.DescriptionMarkdown != "" {
				md[p.URL] = p.DescriptionMarkdown
			}
		}
	}
	return &view{
		AnalysisResult:  in.Analysis,
		Generated:       generated,
		Products:        products,
		Markdown:        md,
		Recommendations: Recommend(in.Analysis),
	}
}

// Listing groups report file names by format.
type Listing struct {
	Text []string `json:"text"`
	HTML []string `json:"html"`
	CSV  []string `json:"csv"`
}

var runToken = regexp.MustCompile(`\d{8}_\d{6}$`)

// ListReports lists the artifacts in dir, newest run first. A missing
// directory is an empty listing.
func ListReports(dir string) (*Listing, error) {
	l := &Listing{Text: []string{}, HTML: []string{}, CSV: []string{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %w", utils.ErrFilesystem, dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch filepath.Ext(name) {
		case ".txt":
			l.Text = append(l.Text, name)
		case ".html":
			l.HTML = append(l.HTML, name)
		case ".csv":
			l.CSV = append(l.CSV, name)
		}
	}
	for _, names := range [][]string{l.Text, l.HTML, l.CSV} {
		sort.Slice(names, func(i, j int) bool { return newer(names[i], names[j]) })
	}
	return l, nil
}

// newer orders by the run timestamp token embedded in the name, falling back
// to the name itself.
func newer(a, b string) bool {
	ta := runToken.FindString(strings.TrimSuffix(a, filepath.Ext(a)))
	tb := runToken.FindString(strings.TrimSuffix(b, filepath.Ext(b)))
	if ta != tb {
		return ta > tb
	}
	return a > b
}
