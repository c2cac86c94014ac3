package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// Page is a fetched HTML document.
type Page struct {
	FinalURL    *url.URL // after redirects
	StatusCode  int
	ContentType string
	Body        []byte
}

// PageFetcher fetches HTML pages politely: robots.txt, the request gate,
// retries, and a body size cap.
type PageFetcher struct {
	fetcher        *Fetcher
	gate           *Gate
	robots         *RobotsHandler // nil when robots.txt is ignored
	userAgent      string
	maxBytes       int64
	perPageTimeout time.Duration
	log            *logrus.Entry
}

// NewPageFetcher wires a PageFetcher over client using cfg. cfg must be validated.
func NewPageFetcher(cfg *config.AppConfig, client *http.Client, log *logrus.Entry) *PageFetcher {
	fetcher := NewFetcher(client, RetryPolicyFrom(cfg), log)
	gate := NewGate(cfg, log)
	pf := &PageFetcher{
		fetcher:        fetcher,
		gate:           gate,
		userAgent:      cfg.UserAgent,
		maxBytes:       cfg.MaxPageSizeBytes,
		perPageTimeout: cfg.PerPageTimeout,
		log:            log,
	}
	if !cfg.IgnoreRobotsTxt {
		pf.robots = NewRobotsHandler(fetcher, gate, cfg.UserAgent, log.WithField("component", "robots"))
	}
	return pf
}

// Gate returns the request gate (for eviction housekeeping).
func (p *PageFetcher) Gate() *Gate { return p.gate }

// Fetch GETs target and returns the body when the response is a 2xx HTML
// document no larger than the size cap.
func (p *PageFetcher) Fetch(ctx context.Context, target *url.URL) (*Page, error) {
	if p.perPageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.perPageTimeout)
		defer cancel()
	}

	if p.robots != nil && !p.robots.Allowed(ctx, target) {
		return nil, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, target.RequestURI())
	}

	release, err := p.gate.Enter(ctx, target.Hostname())
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := p.fetcher.FetchWithRetry(ctx, req)
	if err != nil {
		if resp != nil {
			drain(resp)
		}
		return nil, err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !isHTML(contentType) {
		io.Copy(io.Discard, io.LimitReader(resp.Body, p.maxBytes))
		return nil, fmt.Errorf("%w: content type %q", utils.ErrNotHTML, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if int64(len(body)) > p.maxBytes {
		return nil, fmt.Errorf("%w: page exceeds max size (%d bytes)", utils.ErrResponseBodyRead, p.maxBytes)
	}

	return &Page{
		FinalURL:    resp.Request.URL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// isHTML treats a missing Content-Type as HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
