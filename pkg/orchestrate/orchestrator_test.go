package orchestrate

import (
	"context"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/crawler"
	"github.com/auditkit/site-auditor/pkg/fetch"
	"github.com/auditkit/site-auditor/pkg/models"
	"github.com/auditkit/site-auditor/pkg/testsite"
	"github.com/auditkit/site-auditor/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		DataDir:           t.TempDir(),
		StateDir:          t.TempDir(),
		NumWorkers:        3,
		RequestsPerSecond: 1000,
		Burst:             10,
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     5 * time.Millisecond,
		MaxRetries:        1,
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

func testAudit(t *testing.T, shop *testsite.Shop, limit int) *config.AuditConfig {
	t.Helper()
	cfg := &config.AuditConfig{
		StartURL:       shop.PageURL("/"),
		AllowedDomains: []string{shop.Host()},
		CrawlLimit:     limit,
		CustomFields:   map[string]config.FieldSelectors{"availability": {".stock-status::text"}},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

// fakeReporter records what the pipeline reports.
type fakeReporter struct {
	mu       sync.Mutex
	stages   []Stage
	progress []float64
	stop     atomic.Bool
}

func (r *fakeReporter) StageStarted(s Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, s)
}

func (r *fakeReporter) Progress(pct float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, pct)
}

func (r *fakeReporter) CancelRequested() bool { return r.stop.Load() }

// stoppingSource requests a stop once it has served n pages.
type stoppingSource struct {
	inner crawler.PageSource
	rep   *fakeReporter
	n     int64
	seen  atomic.Int64
}

func (s *stoppingSource) Fetch(ctx context.Context, target *url.URL) (*fetch.Page, error) {
	page, err := s.inner.Fetch(ctx, target)
	if s.seen.Add(1) >= s.n {
		s.rep.stop.Store(true)
	}
	return page, err
}

func shopPipeline(t *testing.T, shop *testsite.Shop, wrap func(crawler.PageSource) crawler.PageSource) (*Pipeline, *config.AppConfig) {
	t.Helper()
	app := testAppConfig(t)
	var src crawler.PageSource = fetch.NewPageFetcher(app, shop.Client(), testLogger())
	if wrap != nil {
		src = wrap(src)
	}
	now := func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return New(app, Options{Source: src, Now: now}, testLogger()), app
}

func TestPipelineRunsAllStages(t *testing.T) {
	shop := testsite.NewShop(t)
	p, _ := shopPipeline(t, shop, nil)
	rep := &fakeReporter{}

	out, err := p.Run(context.Background(), testAudit(t, shop, 0), rep)
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageCrawl, StageExtract, StageAnalyze, StageReport, StageCompleted}, rep.stages)
	require.NotEmpty(t, rep.progress)
	assert.Equal(t, 100.0, rep.progress[len(rep.progress)-1])
	for _, v := range rep.progress {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}

	assert.True(t, strings.HasSuffix(out.BaseName, "_20260304_050607"))
	assert.Len(t, out.Crawl.Pages, testsite.PageCount)
	require.Len(t, out.Extract.Products, len(testsite.Products))
	require.Len(t, out.Analysis.Products, len(testsite.Products))
	assert.Len(t, out.Reports.Files, 3)

	t.Run("custom field without a match is absent", func(t *testing.T) {
		for _, rec := range out.Extract.Products {
			assert.NotContains(t, rec.Fields, "availability")
			assert.NotEmpty(t, rec.Text(config.FieldName))
		}
	})

	t.Run("checkpoints on disk", func(t *testing.T) {
		layout := p.Layout()
		var crawl models.CrawlResult
		require.NoError(t, utils.ReadJSON(layout.Raw(out.BaseName), &crawl))
		assert.Len(t, crawl.Pages, testsite.PageCount)

		var extracted models.ExtractResult
		require.NoError(t, utils.ReadJSON(layout.Processed(out.BaseName), &extracted))
		assert.Len(t, extracted.Products, len(testsite.Products))

		var analysis models.AnalysisResult
		require.NoError(t, utils.ReadJSON(layout.Analyzed(out.BaseName), &analysis))
		assert.Equal(t, testsite.PageCount, analysis.Summary.PagesCrawled)

		visited, err := os.ReadFile(layout.VisitedLog(out.BaseName))
		require.NoError(t, err)
		assert.Equal(t, testsite.PageCount, strings.Count(string(visited), "\n"))
		assert.Contains(t, string(visited), "success\t"+shop.PageURL("/product/widget-1"))

		for _, path := range out.Reports.Files {
			assert.FileExists(t, path)
		}
	})

	t.Run("reports list products in discovery order", func(t *testing.T) {
		data, err := os.ReadFile(out.Reports.Files[config.FormatCSV])
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 1+len(testsite.Products))

		bySeq := slices.Clone(out.Analysis.Products)
		slices.SortFunc(bySeq, func(a, b models.AnalysisRecord) int { return a.Sequence - b.Sequence })
		for i, p := range bySeq {
			assert.Contains(t, lines[i+1], p.URL)
		}
	})
}

func TestPipelineStopStillReports(t *testing.T) {
	shop := testsite.NewShop(t)
	rep := &fakeReporter{}
	p, _ := shopPipeline(t, shop, func(src crawler.PageSource) crawler.PageSource {
		return &stoppingSource{inner: src, rep: rep, n: 2}
	})

	out, err := p.Run(context.Background(), testAudit(t, shop, 0), rep)
	require.NoError(t, err)

	assert.True(t, out.Crawl.Cancelled)
	assert.Less(t, len(out.Crawl.Pages), testsite.PageCount)
	assert.Equal(t, StageCompleted, rep.stages[len(rep.stages)-1])
	assert.Len(t, out.Reports.Files, 3)
}

func TestPipelineRespectsCrawlLimit(t *testing.T) {
	shop := testsite.NewShop(t)
	p, _ := shopPipeline(t, shop, nil)
	audit := testAudit(t, shop, 5)
	audit.ProductURLPatterns = []string{"/product/"}

	rep := &fakeReporter{}
	out, err := p.Run(context.Background(), audit, rep)
	require.NoError(t, err)

	assert.Equal(t, 5, out.Crawl.PagesVisited)
	assert.Len(t, out.Crawl.Pages, 5)
	assert.Len(t, out.Crawl.ProductPages(), len(testsite.Products))
	require.Len(t, out.Extract.Products, len(testsite.Products))
	assert.Equal(t, 100.0, rep.progress[len(rep.progress)-1])
	assert.Equal(t, StageCompleted, rep.stages[len(rep.stages)-1])
}

func TestPipelinePersistentVisitedStore(t *testing.T) {
	shop := testsite.NewShop(t)
	p, app := shopPipeline(t, shop, nil)
	app.PersistVisited = true

	out, err := p.Run(context.Background(), testAudit(t, shop, 0), &fakeReporter{})
	require.NoError(t, err)

	visited, err := os.ReadFile(p.Layout().VisitedLog(out.BaseName))
	require.NoError(t, err)
	assert.Equal(t, testsite.PageCount, strings.Count(string(visited), "\n"))
	assert.Contains(t, string(visited), "success\t")
}

func TestPipelineContextCancelled(t *testing.T) {
	shop := testsite.NewShop(t)
	p, _ := shopPipeline(t, shop, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, testAudit(t, shop, 0), &fakeReporter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipelineSelectedFormats(t *testing.T) {
	shop := testsite.NewShop(t)
	p, _ := shopPipeline(t, shop, nil)
	audit := testAudit(t, shop, 0)
	audit.ReportFormats = []string{config.FormatCSV}

	out, err := p.Run(context.Background(), audit, &fakeReporter{})
	require.NoError(t, err)
	assert.Len(t, out.Reports.Files, 1)
	assert.Contains(t, out.Reports.Files, config.FormatCSV)
}

func TestLayout(t *testing.T) {
	l := Layout{DataDir: "/data"}
	base := "shop_example_com_20260101_000000"
	assert.Equal(t, "/data/raw/"+base+".json", l.Raw(base))
	assert.Equal(t, "/data/raw/"+base+"_visited.txt", l.VisitedLog(base))
	assert.Equal(t, "/data/processed/"+base+".json", l.Processed(base))
	assert.Equal(t, "/data/analyzed/"+base+".json", l.Analyzed(base))
	assert.Equal(t, "/data/reports", l.ReportsDir())
}
