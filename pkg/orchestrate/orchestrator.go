// Package orchestrate runs the four audit stages in order, checkpointing
// each stage's output before the next one starts.
package orchestrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/auditkit/site-auditor/pkg/analyze"
	"github.com/auditkit/site-auditor/pkg/classify"
	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/crawler"
	"github.com/auditkit/site-auditor/pkg/extract"
	"github.com/auditkit/site-auditor/pkg/fetch"
	"github.com/auditkit/site-auditor/pkg/models"
	"github.com/auditkit/site-auditor/pkg/report"
	"github.com/auditkit/site-auditor/pkg/scope"
	"github.com/auditkit/site-auditor/pkg/storage"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// Stage names the pipeline step currently executing.
type Stage string

const (
	StageCrawl     Stage = "crawl"
	StageExtract   Stage = "extract"
	StageAnalyze   Stage = "analyze"
	StageReport    Stage = "report"
	StageCompleted Stage = "completed"
)

// Reporter is the pipeline's only channel back to whoever owns the job.
type Reporter interface {
	StageStarted(stage Stage)
	// Progress receives overall completion in percent. Callers may see
	// values out of order; the receiver keeps the maximum.
	Progress(pct float64)
	// CancelRequested reports the cooperative stop flag.
	CancelRequested() bool
}

// Outcome is everything one pipeline run produced.
type Outcome struct {
	BaseName string
	Crawl    *models.CrawlResult
	Extract  *models.ExtractResult
	Analysis *models.AnalysisResult
	Reports  *report.Result
}

// Options tune a Pipeline. The zero value fetches over HTTP with the app
// config's settings.
type Options struct {
	Source crawler.PageSource // nil = HTTP fetcher built from AppConfig
	Now    func() time.Time
}

const (
	gcInterval       = 5 * time.Minute
	evictionInterval = time.Minute
)

// Pipeline runs crawl, extract, analyze and report for one audit config.
type Pipeline struct {
	app    *config.AppConfig
	opts   Options
	layout Layout
	log    *logrus.Entry
}

// New builds a Pipeline. app must be validated.
func New(app *config.AppConfig, opts Options, log *logrus.Entry) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{app: app, opts: opts, layout: Layout{DataDir: app.DataDir}, log: log}
}

// Layout returns where the pipeline writes its artifacts.
func (p *Pipeline) Layout() Layout { return p.layout }

// Run executes the pipeline for a validated audit. A stop request ends the
// crawl early and the remaining stages run on what was collected; only ctx
// cancellation or a stage failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, audit *config.AuditConfig, rep Reporter) (*Outcome, error) {
	started := p.opts.Now()
	out := &Outcome{BaseName: utils.RunBaseName(audit.PrimaryDomain(), started)}
	log := p.log.WithField("run", out.BaseName)
	weights := p.app.ProgressWeights
	if weights.Sum() != 100 {
		weights = config.DefaultProgressWeights
	}

	log.Infof("Starting audit of %s", audit.StartURL)

	// Crawl
	rep.StageStarted(StageCrawl)
	crawl, err := p.crawl(ctx, audit, out.BaseName, rep, weights, log)
	if err != nil {
		return out, err
	}
	out.Crawl = crawl
	rep.Progress(float64(weights.Crawl))
	if crawl.Cancelled {
		log.Infof("Stop requested; continuing with %d collected page(s)", len(crawl.Pages))
	}

	// Extract
	if err := ctx.Err(); err != nil {
		return out, err
	}
	rep.StageStarted(StageExtract)
	extracted, err := p.extract(ctx, audit, crawl, func(done, total int) {
		rep.Progress(float64(weights.Crawl) + float64(weights.Extract)*float64(done)/float64(total))
	}, log)
	if err != nil {
		return out, err
	}
	out.Extract = extracted
	if err := p.checkpoint(p.layout.Processed(out.BaseName), extracted); err != nil {
		return out, err
	}
	base := float64(weights.Crawl + weights.Extract)
	rep.Progress(base)

	// Analyze
	if err := ctx.Err(); err != nil {
		return out, err
	}
	rep.StageStarted(StageAnalyze)
	tokens, err := analyze.NewTokenCounter(p.app.TokenizerEncoding)
	if err != nil {
		log.WithError(err).Warn("Token counts disabled")
	}
	analysis, err := analyze.New(tokens, p.app.AnalyzeWorkers, log.WithField("component", "analyze")).
		Analyze(ctx, extracted, func(done, total int) {
			rep.Progress(base + float64(weights.Analyze)*float64(done)/float64(total))
		})
	if err != nil {
		return out, fmt.Errorf("analyze: %w", err)
	}
	out.Analysis = analysis
	if err := p.checkpoint(p.layout.Analyzed(out.BaseName), analysis); err != nil {
		return out, err
	}
	rep.Progress(base + float64(weights.Analyze))

	// Report
	if err := ctx.Err(); err != nil {
		return out, err
	}
	rep.StageStarted(StageReport)
	res, err := report.NewGenerator(p.layout.ReportsDir(), log).
		Generate(ctx, out.BaseName, audit.ReportFormats, report.Input{Analysis: analysis, Extracted: extracted})
	out.Reports = res
	if err != nil {
		return out, err
	}
	rep.Progress(100)
	rep.StageStarted(StageCompleted)

	p.logSummary(log, out, time.Since(started))
	return out, nil
}

func (p *Pipeline) crawl(ctx context.Context, audit *config.AuditConfig, baseName string, rep Reporter, weights config.ProgressWeights, log *logrus.Entry) (*models.CrawlResult, error) {
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	var visited scope.VisitedSet = scope.NewMemoryVisited(audit.CrawlLimit)
	var store *storage.BadgerStore
	if p.app.PersistVisited {
		s, err := storage.NewBadgerStore(ctx, p.app.StateDir, baseName, log.WithField("component", "store"))
		if err != nil {
			return nil, err
		}
		defer func() {
			stopBackground()
			s.Close()
		}()
		go s.RunGC(bgCtx, gcInterval)
		store = s
		visited = scope.NewStoreVisited(s)
	}

	source := p.opts.Source
	if source == nil {
		client := fetch.NewClient(p.app.HTTPClientSettings, log)
		pf := fetch.NewPageFetcher(p.app, client, log.WithField("component", "fetch"))
		go pf.Gate().RunEviction(bgCtx, evictionInterval)
		source = pf
	}

	classifier, err := classify.New(audit, log.WithField("component", "classify"))
	if err != nil {
		return nil, err
	}
	guard := scope.NewGuard(audit.AllowedDomains, audit.CrawlLimit, visited, rep.CancelRequested)

	opts := crawler.Options{
		BaseName:           baseName,
		DataDir:            p.app.DataDir,
		Workers:            p.app.NumWorkers,
		GlobalCrawlTimeout: p.app.GlobalCrawlTimeout,
		Cancelled:          rep.CancelRequested,
		OnProgress: func(pr crawler.Progress) {
			rep.Progress(float64(weights.Crawl) * pr.Fraction())
		},
	}
	if store != nil {
		opts.Store = store
	}
	c, err := crawler.New(audit, source, guard, classifier, opts, log.WithField("component", "crawler"))
	if err != nil {
		return nil, err
	}

	result, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.checkpoint(p.layout.Raw(baseName), result); err != nil {
		return nil, err
	}

	visitedLog := p.layout.VisitedLog(baseName)
	if store != nil {
		err = store.WriteVisitedLog(visitedLog)
	} else {
		err = writeVisitedLog(visitedLog, result)
	}
	if err != nil {
		// Informational only; later stages read the checkpoint.
		log.WithError(err).Warn("Failed to write visited log")
	}
	return result, nil
}

// extract turns every product page into an ExtractionRecord. Pages whose
// blob cannot be read or parsed are logged and left out.
func (p *Pipeline) extract(ctx context.Context, audit *config.AuditConfig, crawl *models.CrawlResult, onProgress func(done, total int), log *logrus.Entry) (*models.ExtractResult, error) {
	extractor := extract.NewExtractor(audit, log.WithField("component", "extract"))
	pages := crawl.ProductPages()
	records := make([]*models.ExtractionRecord, len(pages))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.app.AnalyzeWorkers))
	for i, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer func() { onProgress(int(done.Add(1)), len(pages)) }()

			raw, err := os.ReadFile(filepath.Join(p.app.DataDir, filepath.FromSlash(page.RawContent)))
			if err != nil {
				log.WithError(err).WithField("url", page.URL).Error("Missing page blob")
				return nil
			}
			rec, err := extractor.Extract(page, raw)
			if err != nil {
				log.WithError(err).WithField("url", page.URL).Error("Extraction failed")
				return nil
			}
			records[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &models.ExtractResult{
		BaseName:     crawl.BaseName,
		Source:       p.layout.Raw(crawl.BaseName),
		PagesCrawled: len(crawl.Pages),
		Products:     make([]models.ExtractionRecord, 0, len(pages)),
	}
	for _, rec := range records {
		if rec != nil {
			result.Products = append(result.Products, *rec)
		}
	}
	log.Infof("Extracted %d of %d product page(s)", len(result.Products), len(pages))
	return result, nil
}

func (p *Pipeline) checkpoint(path string, v any) error {
	if err := utils.WriteJSONAtomic(path, v); err != nil {
		return fmt.Errorf("%w: %s: %w", utils.ErrCheckpoint, path, err)
	}
	p.log.Debugf("Checkpoint written: %s", path)
	return nil
}

// writeVisitedLog writes one "<status>\t<url>" line per admitted URL, in
// the same shape as the persistent store's log.
func writeVisitedLog(path string, crawl *models.CrawlResult) error {
	lines := make([]string, 0, len(crawl.Pages)+len(crawl.Failures))
	for _, pg := range crawl.Pages {
		lines = append(lines, string(models.PageStatusSuccess)+"\t"+pg.URL)
	}
	for _, f := range crawl.Failures {
		lines = append(lines, string(models.PageStatusFailure)+"\t"+f.URL)
	}
	sort.Strings(lines)
	data := strings.Join(lines, "\n")
	if data != "" {
		data += "\n"
	}
	return utils.WriteFileAtomic(path, []byte(data), 0644)
}

func (p *Pipeline) logSummary(log *logrus.Entry, out *Outcome, elapsed time.Duration) {
	log.Info("============================================")
	log.Infof("Audit completed in %v", elapsed.Round(time.Millisecond))
	log.Infof("  Pages crawled: %d (%d failed)", len(out.Crawl.Pages), out.Crawl.PagesFailed)
	log.Infof("  Products: %d", len(out.Analysis.Products))
	log.Infof("  SEO score: %.1f (%s)", out.Analysis.SEO.Score, out.Analysis.SEO.Quality)
	formats := make([]string, 0, len(out.Reports.Files))
	for f := range out.Reports.Files {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	log.Infof("  Reports: %s", strings.Join(formats, ", "))
	log.Info("============================================")
}
