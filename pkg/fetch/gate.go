package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// Gate bundles the politeness controls every outgoing request passes:
// the global request semaphore, the per-host semaphore and the per-host
// rate limiter.
type Gate struct {
	global     *semaphore.Weighted
	hosts      *HostSemaphorePool
	limiter    *HostLimiter
	semTimeout time.Duration
	log        *logrus.Entry
}

// NewGate builds a Gate from cfg.
func NewGate(cfg *config.AppConfig, log *logrus.Entry) *Gate {
	return &Gate{
		global:     semaphore.NewWeighted(int64(max(cfg.MaxRequests, 1))),
		hosts:      NewHostSemaphorePool(cfg.MaxRequestsPerHost),
		limiter:    NewHostLimiter(cfg.RequestsPerSecond, cfg.Burst, log),
		semTimeout: cfg.SemaphoreAcquireTimeout,
		log:        log,
	}
}

// Enter waits for all three controls. The returned func releases the
// semaphores and must be called exactly once on success.
func (g *Gate) Enter(ctx context.Context, host string) (func(), error) {
	acquireCtx := ctx
	if g.semTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, g.semTimeout)
		defer cancel()
	}

	if err := g.global.Acquire(acquireCtx, 1); err != nil {
		return nil, g.acquireErr(ctx, "global", err)
	}
	releaseHost, err := g.hosts.Acquire(acquireCtx, host)
	if err != nil {
		g.global.Release(1)
		return nil, g.acquireErr(ctx, "host "+host, err)
	}
	if err := g.limiter.Wait(ctx, host); err != nil {
		releaseHost()
		g.global.Release(1)
		return nil, err
	}
	return func() {
		releaseHost()
		g.global.Release(1)
	}, nil
}

func (g *Gate) acquireErr(ctx context.Context, which string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s semaphore: %w", utils.ErrSemaphoreTimeout, which, err)
}

// Limiter exposes the per-host limiter (robots crawl-delay adjusts it).
func (g *Gate) Limiter() *HostLimiter { return g.limiter }

// RunEviction drops idle per-host semaphores every interval until ctx is
// done. Rate limiters are kept so robots.txt crawl delays survive.
func (g *Gate) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if hosts := g.hosts.Evict(interval); len(hosts) > 0 {
				g.log.WithField("hosts", hosts).Debugf("Evicted %d idle host semaphore(s)", len(hosts))
			}
		case <-ctx.Done():
			return
		}
	}
}
