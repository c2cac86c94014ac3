package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditkit/site-auditor/pkg/classify"
	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/fetch"
	"github.com/auditkit/site-auditor/pkg/models"
	"github.com/auditkit/site-auditor/pkg/scope"
	"github.com/auditkit/site-auditor/pkg/storage"
	"github.com/auditkit/site-auditor/pkg/testsite"
	"github.com/auditkit/site-auditor/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func appConfig() *config.AppConfig {
	return &config.AppConfig{
		UserAgent:               "audit-test/1.0",
		MaxRequests:             4,
		MaxRequestsPerHost:      4,
		Burst:                   1,
		MaxRetries:              1,
		InitialRetryDelay:       time.Millisecond,
		MaxRetryDelay:           5 * time.Millisecond,
		SemaphoreAcquireTimeout: time.Second,
		MaxPageSizeBytes:        1 << 20,
	}
}

func auditConfig(t *testing.T, startURL string, limit int) *config.AuditConfig {
	t.Helper()
	u, err := url.Parse(startURL)
	require.NoError(t, err)
	cfg := &config.AuditConfig{StartURL: startURL, AllowedDomains: []string{u.Hostname()}, CrawlLimit: limit}
	_, err = cfg.Validate()
	require.NoError(t, err)
	return cfg
}

type harness struct {
	audit   *config.AuditConfig
	guard   *scope.Guard
	dataDir string
	stop    atomic.Bool
}

func newCrawler(t *testing.T, h *harness, source PageSource, mutate func(*Options)) *Crawler {
	t.Helper()
	classifier, err := classify.New(h.audit, testLogger())
	require.NoError(t, err)
	if h.guard == nil {
		h.guard = scope.NewGuard(h.audit.AllowedDomains, h.audit.CrawlLimit, scope.NewMemoryVisited(0), h.stop.Load)
	}
	h.dataDir = t.TempDir()
	opts := Options{
		BaseName:  "shop_20260101_120000",
		DataDir:   h.dataDir,
		Workers:   3,
		Cancelled: h.stop.Load,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(h.audit, source, h.guard, classifier, opts, testLogger())
	require.NoError(t, err)
	return c
}

func shopSource(shop *testsite.Shop) PageSource {
	return fetch.NewPageFetcher(appConfig(), shop.Client(), testLogger())
}

func TestCrawlShop(t *testing.T) {
	shop := testsite.NewShop(t)
	h := &harness{audit: auditConfig(t, shop.PageURL("/"), 0)}
	c := newCrawler(t, h, shopSource(shop), nil)

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Pages, testsite.PageCount)
	assert.Equal(t, testsite.PageCount, result.PagesVisited)
	assert.Zero(t, result.PagesFailed)
	assert.False(t, result.Cancelled)
	assert.Equal(t, shop.PageURL("/"), result.StartURL)

	products := result.ProductPages()
	require.Len(t, products, 3)
	for _, p := range products {
		assert.Contains(t, p.URL, "/product/")
		assert.NotEmpty(t, p.MatchedRule)
	}

	t.Run("pages sorted by admission sequence", func(t *testing.T) {
		assert.Equal(t, shop.PageURL("/"), result.Pages[0].URL)
		for i, p := range result.Pages {
			assert.Equal(t, i, p.Sequence)
		}
	})

	t.Run("blobs stored by content hash", func(t *testing.T) {
		for _, p := range result.Pages {
			data, err := os.ReadFile(filepath.Join(h.dataDir, filepath.FromSlash(p.RawContent)))
			require.NoError(t, err)
			assert.Equal(t, p.ContentHash, utils.ContentHash(data))
			assert.Equal(t, len(data), p.ContentLength)
		}
	})

	t.Run("discovered links are newly admitted only", func(t *testing.T) {
		seen := make(map[string]bool)
		for _, p := range result.Pages {
			for _, l := range p.DiscoveredLinks {
				assert.False(t, seen[l], "link %s admitted twice", l)
				seen[l] = true
				u, err := url.Parse(l)
				require.NoError(t, err)
				assert.Empty(t, u.Fragment)
			}
		}
		assert.Len(t, seen, testsite.PageCount-1)
	})
}

func TestCrawlRespectsLimit(t *testing.T) {
	shop := testsite.NewShop(t)
	h := &harness{audit: auditConfig(t, shop.PageURL("/"), 4)}
	var mu sync.Mutex
	var samples []Progress
	c := newCrawler(t, h, shopSource(shop), func(o *Options) {
		o.OnProgress = func(p Progress) {
			mu.Lock()
			samples = append(samples, p)
			mu.Unlock()
		}
	})

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.PagesVisited)
	assert.Len(t, result.Pages, 4)
	assert.LessOrEqual(t, shop.Hits.Load(), int64(4))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, samples)
	last := samples[len(samples)-1]
	assert.Equal(t, 4, last.Limit)
	assert.InDelta(t, 1.0, last.Fraction(), 0.0001)
}

type stubSource struct {
	pages map[string]string
	delay time.Duration
	calls atomic.Int64
	onGet func(n int64)
}

func (s *stubSource) Fetch(ctx context.Context, target *url.URL) (*fetch.Page, error) {
	n := s.calls.Add(1)
	if s.onGet != nil {
		s.onGet(n)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	body, ok := s.pages[target.Path]
	if !ok {
		return nil, utils.WrapErrorf(utils.ErrClientHTTPError, "status 404 Not Found")
	}
	return &fetch.Page{FinalURL: target, StatusCode: 200, ContentType: "text/html", Body: []byte(body)}, nil
}

func chainSite(n int) map[string]string {
	pages := make(map[string]string)
	for i := range n {
		pages[pagePath(i)] = `<html><body><a href="` + pagePath(i+1) + `">next</a><a href="/missing">gone</a></body></html>`
	}
	return pages
}

func pagePath(i int) string {
	if i == 0 {
		return "/"
	}
	return fmt.Sprintf("/p%d", i)
}

func TestCrawlSeedNeverLost(t *testing.T) {
	src := &stubSource{pages: map[string]string{"/": "<html><body>only page</body></html>"}}
	for i := range 200 {
		h := &harness{audit: auditConfig(t, "https://shop.example.com/", 0)}
		c := newCrawler(t, h, src, func(o *Options) { o.Workers = 4 })

		result, err := c.Run(context.Background())
		require.NoError(t, err)
		require.Len(t, result.Pages, 1, "run %d", i)
	}
}

func TestCrawlRecordsFailures(t *testing.T) {
	src := &stubSource{pages: chainSite(3)}
	h := &harness{audit: auditConfig(t, "https://shop.example.com/", 0)}
	c := newCrawler(t, h, src, func(o *Options) { o.Workers = 1 })

	result, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Pages, 3)
	// /missing and the fourth chain link both 404
	assert.Equal(t, 2, result.PagesFailed)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "HTTP_404", result.Failures[0].ErrorType)
	assert.Equal(t, 5, result.PagesVisited)
}

func TestCrawlStopRequest(t *testing.T) {
	h := &harness{audit: auditConfig(t, "https://shop.example.com/", 0)}
	src := &stubSource{pages: chainSite(20)}
	src.onGet = func(n int64) {
		if n == 3 {
			h.stop.Store(true)
		}
	}
	c := newCrawler(t, h, src, func(o *Options) { o.Workers = 1 })

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.LessOrEqual(t, src.calls.Load(), int64(4))
	assert.NotEmpty(t, result.Pages)
	assert.Less(t, len(result.Pages), 20)
}

func TestCrawlContextCancelled(t *testing.T) {
	h := &harness{audit: auditConfig(t, "https://shop.example.com/", 0)}
	src := &stubSource{pages: chainSite(50), delay: 20 * time.Millisecond}
	c := newCrawler(t, h, src, func(o *Options) { o.Workers = 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	var result *models.CrawlResult
	var err error
	go func() {
		result, err = c.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not stop after context cancellation")
	}
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	require.NotNil(t, result)
	assert.False(t, result.TimedOut)
}

func TestCrawlGlobalTimeoutIsNotAnError(t *testing.T) {
	h := &harness{audit: auditConfig(t, "https://shop.example.com/", 0)}
	src := &stubSource{pages: chainSite(50), delay: 20 * time.Millisecond}
	c := newCrawler(t, h, src, func(o *Options) { o.GlobalCrawlTimeout = 60 * time.Millisecond })

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.Less(t, len(result.Pages), 50)
}

func TestCrawlRedirectOutOfScope(t *testing.T) {
	h := &harness{audit: auditConfig(t, "https://shop.example.com/", 0)}
	src := &redirectSource{to: "https://elsewhere.example.org/"}
	c := newCrawler(t, h, src, nil)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Pages)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "Policy_Scope", result.Failures[0].ErrorType)
}

type redirectSource struct{ to string }

func (r *redirectSource) Fetch(ctx context.Context, target *url.URL) (*fetch.Page, error) {
	final, _ := url.Parse(r.to)
	return &fetch.Page{FinalURL: final, StatusCode: 200, Body: []byte("<html></html>")}, nil
}

type panicSource struct{}

func (panicSource) Fetch(ctx context.Context, target *url.URL) (*fetch.Page, error) {
	panic("boom")
}

func TestCrawlRecoversFromPanics(t *testing.T) {
	h := &harness{audit: auditConfig(t, "https://shop.example.com/", 0)}
	c := newCrawler(t, h, panicSource{}, nil)

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PagesFailed)
}

func TestCrawlUpdatesPersistentStatus(t *testing.T) {
	store, err := storage.NewBadgerStore(context.Background(), t.TempDir(), "run", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{audit: auditConfig(t, "https://shop.example.com/", 0)}
	h.guard = scope.NewGuard(h.audit.AllowedDomains, 0, scope.NewStoreVisited(store), h.stop.Load)
	src := &stubSource{pages: chainSite(2)}
	c := newCrawler(t, h, src, func(o *Options) { o.Store = store })

	result, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Pages, 2)

	counts, err := store.StatusCounts()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.PageStatusSuccess])
	assert.Equal(t, 2, counts[models.PageStatusFailure])
}

func TestProgressFraction(t *testing.T) {
	tests := []struct {
		name string
		p    Progress
		want float64
	}{
		{"bounded", Progress{Visited: 5, Limit: 10}, 0.5},
		{"bounded clamps", Progress{Visited: 12, Limit: 10}, 1},
		{"unbounded", Progress{Processed: 3, Queued: 1}, 0.75},
		{"nothing yet", Progress{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.p.Fraction(), 0.0001)
		})
	}
}

func TestNewRequiresBaseName(t *testing.T) {
	h := &harness{audit: auditConfig(t, "https://shop.example.com/", 0)}
	classifier, err := classify.New(h.audit, testLogger())
	require.NoError(t, err)
	_, err = New(h.audit, &stubSource{}, scope.NewGuard(nil, 0, scope.NewMemoryVisited(0), nil), classifier, Options{}, testLogger())
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}
