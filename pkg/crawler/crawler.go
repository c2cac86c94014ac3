package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/classify"
	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/extract"
	"github.com/auditkit/site-auditor/pkg/fetch"
	"github.com/auditkit/site-auditor/pkg/models"
	"github.com/auditkit/site-auditor/pkg/parse"
	"github.com/auditkit/site-auditor/pkg/queue"
	"github.com/auditkit/site-auditor/pkg/scope"
	"github.com/auditkit/site-auditor/pkg/storage"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// PageSource fetches a single HTML page. *fetch.PageFetcher implements it.
type PageSource interface {
	Fetch(ctx context.Context, target *url.URL) (*fetch.Page, error)
}

// Progress is a snapshot of the crawl counters.
type Progress struct {
	Visited   int // admitted by the scope guard
	Processed int // fetched, failed or skipped
	Queued    int // admitted but not yet processed
	Limit     int // 0 = unbounded
}

// Fraction returns crawl completion in [0,1]: visited/limit when bounded,
// otherwise processed/(processed+queued).
func (p Progress) Fraction() float64 {
	var f float64
	if p.Limit > 0 {
		f = float64(p.Visited) / float64(p.Limit)
	} else if total := p.Processed + p.Queued; total > 0 {
		f = float64(p.Processed) / float64(total)
	}
	return min(f, 1)
}

// Options configure one crawl run.
type Options struct {
	BaseName           string
	DataDir            string
	Workers            int
	GlobalCrawlTimeout time.Duration
	Store              storage.PageStore // optional; receives per-page status
	Cancelled          func() bool       // cooperative stop flag; may be nil
	OnProgress         func(Progress)    // may be nil
	ProgressInterval   time.Duration     // periodic progress log; 0 = 30s
}

// Crawler runs the crawl stage of one audit: it seeds the frontier with the
// start URL, fetches admitted pages with a worker pool, classifies them and
// admits discovered links through the scope guard.
type Crawler struct {
	log        *logrus.Entry
	audit      *config.AuditConfig
	opts       Options
	source     PageSource
	guard      *scope.Guard
	classifier *classify.Classifier
	frontier   *queue.Frontier
	blobDir    string // absolute directory for page blobs
	blobRel    string // blobDir relative to DataDir, slash separated

	wg          sync.WaitGroup // one count per admitted, unprocessed page
	processed   atomic.Int64
	failed      atomic.Int64
	pending     atomic.Int64
	limitLogged atomic.Bool

	mu       sync.Mutex
	pages    []models.PageRecord
	failures []models.PageFailure
}

// New prepares a crawl. The blob directory raw/<base>_pages is created here.
func New(audit *config.AuditConfig, source PageSource, guard *scope.Guard, classifier *classify.Classifier, opts Options, log *logrus.Entry) (*Crawler, error) {
	if opts.BaseName == "" {
		return nil, fmt.Errorf("%w: crawl needs a run base name", utils.ErrConfigValidation)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Cancelled == nil {
		opts.Cancelled = func() bool { return false }
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 30 * time.Second
	}

	rel := path.Join("raw", opts.BaseName+"_pages")
	dir := filepath.Join(opts.DataDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating page directory %s: %w", utils.ErrFilesystem, dir, err)
	}

	return &Crawler{
		log:        log,
		audit:      audit,
		opts:       opts,
		source:     source,
		guard:      guard,
		classifier: classifier,
		frontier:   queue.NewFrontier(log.WithField("component", "frontier")),
		blobDir:    dir,
		blobRel:    rel,
	}, nil
}

// Run crawls until the frontier drains or the guard stops admitting pages.
// A stop request or the global crawl timeout ends the crawl early without an
// error; the pages collected so far are returned. Only cancellation of ctx
// itself is reported as an error.
func (c *Crawler) Run(ctx context.Context) (*models.CrawlResult, error) {
	startedAt := time.Now()
	result := &models.CrawlResult{
		BaseName:  c.opts.BaseName,
		StartURL:  c.audit.StartURL,
		StartedAt: startedAt,
	}
	runLog := c.log.WithFields(logrus.Fields{"start_url": c.audit.StartURL, "crawl_limit": c.guard.Limit()})

	crawlCtx := ctx
	if c.opts.GlobalCrawlTimeout > 0 {
		var cancel context.CancelFunc
		crawlCtx, cancel = context.WithTimeout(ctx, c.opts.GlobalCrawlTimeout)
		defer cancel()
	}

	seed := c.guard.Admit(c.audit.StartURL)
	if seed.Decision != scope.Admitted {
		return nil, fmt.Errorf("%w: start URL %s not admitted (%s)", utils.ErrScopeViolation, c.audit.StartURL, seed.Decision)
	}

	// The seed must be counted before anything waits on c.wg.
	c.enqueue(models.WorkItem{URL: c.audit.StartURL, Key: seed.Normalized, Depth: 0, Sequence: seed.Sequence})
	c.report()

	runLog.Infof("Crawl starting with %d worker(s)", c.opts.Workers)
	var workers sync.WaitGroup
	for i := 1; i <= c.opts.Workers; i++ {
		workers.Add(1)
		workerLog := c.log.WithField("worker_id", i)
		go func() {
			defer workers.Done()
			c.worker(crawlCtx, workerLog)
		}()
	}

	waiterDone := make(chan struct{})
	go func() {
		defer close(waiterDone)
		ticker := time.NewTicker(c.opts.ProgressInterval)
		defer ticker.Stop()

		tasksDone := make(chan struct{})
		go func() { c.wg.Wait(); close(tasksDone) }()
		for {
			select {
			case <-tasksDone:
				runLog.Debug("Waiter: all admitted pages processed")
				c.frontier.Close()
				return
			case <-crawlCtx.Done():
				runLog.Warnf("Waiter: crawl context done (%v), closing frontier", crawlCtx.Err())
				c.frontier.Close()
				return
			case <-ticker.C:
				p := c.progress()
				runLog.WithFields(logrus.Fields{
					"visited":   p.Visited,
					"processed": p.Processed,
					"queued":    p.Queued,
				}).Info("Crawl progress")
			}
		}
	}()

	<-waiterDone
	workers.Wait()
	if dropped := c.frontier.Drain(); len(dropped) > 0 {
		runLog.Infof("Dropped %d queued page(s) that were never fetched", len(dropped))
	}

	c.mu.Lock()
	pages := append([]models.PageRecord(nil), c.pages...)
	failures := append([]models.PageFailure(nil), c.failures...)
	c.mu.Unlock()
	sort.Slice(pages, func(i, j int) bool { return pages[i].Sequence < pages[j].Sequence })
	sort.Slice(failures, func(i, j int) bool { return failures[i].URL < failures[j].URL })

	result.FinishedAt = time.Now()
	result.Pages = pages
	result.Failures = failures
	result.PagesVisited = c.guard.Visited()
	result.PagesFailed = int(c.failed.Load())
	result.Cancelled = c.opts.Cancelled()
	result.TimedOut = ctx.Err() == nil && errors.Is(crawlCtx.Err(), context.DeadlineExceeded)

	summaryLog := c.log.WithField("domain", c.audit.PrimaryDomain())
	summaryLog.Info("========================================================================")
	summaryLog.Info("CRAWL FINISHED")
	summaryLog.Infof("Duration:         %v", result.FinishedAt.Sub(startedAt).Round(time.Millisecond))
	summaryLog.Infof("Final Stats: Visited: %d, Fetched: %d, Failed: %d, Product pages: %d",
		result.PagesVisited, len(result.Pages), result.PagesFailed, len(result.ProductPages()))
	if result.Cancelled {
		summaryLog.Info("Crawl was stopped on request; continuing with collected pages")
	}
	if result.TimedOut {
		summaryLog.Warnf("Global crawl timeout of %v reached; continuing with collected pages", c.opts.GlobalCrawlTimeout)
	}
	summaryLog.Info("========================================================================")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// worker pops items until the frontier is closed and empty.
func (c *Crawler) worker(ctx context.Context, workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")
	for {
		item, ok := c.frontier.Pop()
		if !ok {
			return
		}
		c.processPage(ctx, item, workerLog)
	}
}

func (c *Crawler) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || c.opts.Cancelled()
}

func (c *Crawler) processPage(ctx context.Context, item models.WorkItem, workerLog *logrus.Entry) {
	taskLog := workerLog.WithFields(logrus.Fields{"url": item.URL, "depth": item.Depth})
	startTime := time.Now()

	var taskErr error
	skipped := false
	contentHash := ""

	defer func() {
		if r := recover(); r != nil {
			skipped = false
			taskErr = fmt.Errorf("panic: %v", r)
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"duration":    time.Since(startTime).String(),
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processPage")
		}

		entry := &models.PageDBEntry{LastAttempt: time.Now(), Depth: item.Depth}
		switch {
		case taskErr != nil:
			category := utils.CategorizeError(taskErr)
			entry.Status = models.PageStatusFailure
			entry.ErrorType = category
			c.failed.Add(1)
			c.mu.Lock()
			c.failures = append(c.failures, models.PageFailure{URL: item.URL, ErrorType: category})
			c.mu.Unlock()
			taskLog.WithFields(logrus.Fields{
				"category": category,
				"duration": time.Since(startTime).String(),
			}).Warnf("Failed to crawl %s: %v", item.URL, taskErr)
		case skipped:
			entry.Status = models.PageStatusSkipped
			taskLog.Debug("Page skipped")
		default:
			entry.Status = models.PageStatusSuccess
			entry.ProcessedAt = entry.LastAttempt
			entry.ContentHash = contentHash
		}

		if c.opts.Store != nil && item.Key != "" {
			if err := c.opts.Store.UpdatePageStatus(item.Key, entry); err != nil {
				taskLog.Errorf("Failed to update page status to '%s': %v", entry.Status, err)
			}
		}

		c.processed.Add(1)
		c.pending.Add(-1)
		c.report()
		c.wg.Done()
	}()

	if c.stopped(ctx) {
		skipped = true
		return
	}

	target, err := url.Parse(item.URL)
	if err != nil {
		taskErr = fmt.Errorf("%w: URL %q: %w", utils.ErrParsing, item.URL, err)
		return
	}

	page, err := c.source.Fetch(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			skipped = true
			return
		}
		taskErr = err
		return
	}

	if !config.HostAllowed(page.FinalURL.Hostname(), c.audit.AllowedDomains) {
		taskErr = fmt.Errorf("%w: redirected to %s", utils.ErrScopeViolation, page.FinalURL)
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		taskErr = fmt.Errorf("%w: HTML of %s: %w", utils.ErrParsing, item.URL, err)
		return
	}

	contentHash = utils.ContentHash(page.Body)
	blob, err := c.storeBlob(contentHash, page.Body)
	if err != nil {
		taskErr = err
		return
	}

	class := c.classifier.Classify(page.FinalURL.String(), doc)
	links := parse.ExtractLinks(doc, page.FinalURL)
	admitted := c.admitLinks(links, item.Depth+1, taskLog)

	rec := models.PageRecord{
		URL:             item.URL,
		Sequence:        item.Sequence,
		Depth:           item.Depth,
		StatusCode:      page.StatusCode,
		IsProductPage:   class.IsProduct,
		MatchedRule:     class.MatchedRule,
		RawContent:      blob,
		ContentHash:     contentHash,
		ContentLength:   len(page.Body),
		Title:           extract.ExtractMeta(doc).Title,
		DiscoveredLinks: admitted,
		DiscoveredAt:    time.Now(),
	}
	if final := page.FinalURL.String(); final != item.URL {
		rec.FinalURL = final
	}

	c.mu.Lock()
	c.pages = append(c.pages, rec)
	c.mu.Unlock()

	if class.IsProduct {
		taskLog.WithField("rule", class.MatchedRule).Infof("Found product page: %s", item.URL)
	} else {
		taskLog.Debugf("Crawled %s (%d new links)", item.URL, len(admitted))
	}
}

// admitLinks passes links through the scope guard and queues the admitted
// ones at depth. It stops at the first limit or cancel rejection, since no
// later link can be admitted either.
func (c *Crawler) admitLinks(links []string, depth int, taskLog *logrus.Entry) []string {
	var admitted []string
	for _, link := range links {
		adm := c.guard.Admit(link)
		switch adm.Decision {
		case scope.Admitted:
			c.enqueue(models.WorkItem{URL: link, Key: adm.Normalized, Depth: depth, Sequence: adm.Sequence})
			admitted = append(admitted, link)
		case scope.RejectedLimit:
			if c.limitLogged.CompareAndSwap(false, true) {
				c.log.Infof("Crawl limit of %d pages reached; no further pages will be queued", c.guard.Limit())
			}
			return admitted
		case scope.RejectedCancelled:
			return admitted
		case scope.RejectedError:
			taskLog.Errorf("Visited set error for %s: %v", link, adm.Err)
		default:
			taskLog.Tracef("Link %s rejected: %s", link, adm.Decision)
		}
	}
	return admitted
}

func (c *Crawler) enqueue(item models.WorkItem) {
	c.wg.Add(1)
	c.pending.Add(1)
	if !c.frontier.Push(item) {
		c.pending.Add(-1)
		c.wg.Done()
	}
}

// storeBlob writes body to <blobDir>/<hash>.html unless an identical page
// was already stored, and returns the path relative to the data dir.
func (c *Crawler) storeBlob(hash string, body []byte) (string, error) {
	name := hash + ".html"
	full := filepath.Join(c.blobDir, name)
	if _, err := os.Stat(full); err == nil {
		return path.Join(c.blobRel, name), nil
	}
	if err := utils.WriteFileAtomic(full, body, 0644); err != nil {
		return "", err
	}
	return path.Join(c.blobRel, name), nil
}

func (c *Crawler) progress() Progress {
	return Progress{
		Visited:   c.guard.Visited(),
		Processed: int(c.processed.Load()),
		Queued:    int(max(c.pending.Load(), 0)),
		Limit:     c.guard.Limit(),
	}
}

func (c *Crawler) report() {
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(c.progress())
	}
}
