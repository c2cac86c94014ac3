package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HostLimiter paces requests per host with a token bucket each.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	log      *logrus.Entry
}

// NewHostLimiter allows perSecond requests per host (<= 0 disables pacing).
func NewHostLimiter(perSecond float64, burst int, log *logrus.Entry) *HostLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{limiters: make(map[string]*rate.Limiter), limit: limit, burst: burst, log: log}
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until host may be requested again or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.limiter(host).Wait(ctx)
}

// SlowDown lowers host's rate to one request per delay when that is slower
// than the current rate. Used for robots.txt Crawl-delay.
func (h *HostLimiter) SlowDown(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	l := h.limiter(host)
	if want := rate.Every(delay); want < l.Limit() {
		l.SetLimit(want)
		h.log.WithFields(logrus.Fields{"host": host, "delay": delay}).Info("Honoring robots.txt crawl delay")
	}
}
