package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// robots.txt bodies larger than this are truncated before parsing
const maxRobotsBytes = 512 * 1024

// RobotsHandler fetches, caches and checks robots.txt per scheme+host.
// A host whose robots.txt cannot be fetched or parsed is treated as allowing everything.
type RobotsHandler struct {
	fetcher   *Fetcher
	gate      *Gate
	userAgent string
	cache     map[string]*robotstxt.RobotsData // nil entry = unavailable
	cacheMu   sync.Mutex
	inflight  singleflight.Group
	log       *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler that fetches through gate.
func NewRobotsHandler(fetcher *Fetcher, gate *Gate, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:   fetcher,
		gate:      gate,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		log:       log,
	}
}

// GetRobotsData returns the parsed robots.txt for target's host, fetching it
// once per host. Concurrent callers for the same host share one fetch.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	key := target.Scheme + "://" + target.Host

	rh.cacheMu.Lock()
	data, found := rh.cache[key]
	rh.cacheMu.Unlock()
	if found {
		return data
	}

	v, _, _ := rh.inflight.Do(key, func() (any, error) {
		rh.cacheMu.Lock()
		cached, ok := rh.cache[key]
		rh.cacheMu.Unlock()
		if ok {
			return cached, nil
		}
		data := rh.fetchRobots(ctx, target)
		rh.cacheMu.Lock()
		rh.cache[key] = data
		rh.cacheMu.Unlock()
		return data, nil
	})
	return v.(*robotstxt.RobotsData)
}

func (rh *RobotsHandler) fetchRobots(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	robotsURL := (&url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithField("robots_url", robotsURL)

	release, err := rh.gate.Enter(ctx, target.Hostname())
	if err != nil {
		robotsLog.Warnf("Skipping robots.txt: %v", err)
		return nil
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", rh.userAgent)

	resp, err := rh.fetcher.FetchWithRetry(ctx, req)
	if err != nil {
		if resp != nil {
			drain(resp)
		}
		robotsLog.Debugf("No usable robots.txt: %v", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		robotsLog.Warnf("Error reading robots.txt: %v", err)
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		return nil
	}

	if group := data.FindGroup(rh.userAgent); group != nil && group.CrawlDelay > 0 {
		rh.gate.Limiter().SlowDown(target.Hostname(), group.CrawlDelay)
	}
	robotsLog.Debug("Fetched robots.txt")
	return data
}

// Allowed reports whether the configured user agent may fetch target.
func (rh *RobotsHandler) Allowed(ctx context.Context, target *url.URL) bool {
	data := rh.GetRobotsData(ctx, target)
	if data == nil {
		return true
	}
	return data.TestAgent(target.RequestURI(), rh.userAgent)
}
