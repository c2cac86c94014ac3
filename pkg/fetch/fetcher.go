package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// RetryPolicy bounds FetchWithRetry.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// RetryPolicyFrom reads the retry settings of cfg.
func RetryPolicyFrom(cfg *config.AppConfig) RetryPolicy {
	return RetryPolicy{MaxRetries: cfg.MaxRetries, InitialDelay: cfg.InitialRetryDelay, MaxDelay: cfg.MaxRetryDelay}
}

// backoff returns the delay before retry attempt n (n >= 1): initial * 2^(n-1),
// capped at MaxDelay, with +/-10% jitter.
func (p RetryPolicy) backoff(n int) time.Duration {
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(2, float64(n-1)))
	if delay <= 0 || (p.MaxDelay > 0 && delay > p.MaxDelay) {
		delay = p.MaxDelay
	}
	if window := int64(delay) / 5; window > 0 {
		delay += time.Duration(rand.Int63n(window)) - delay/10
	}
	return max(delay, 0)
}

// Fetcher performs HTTP requests with retry on transient failures
type Fetcher struct {
	client *http.Client
	policy RetryPolicy
	log    *logrus.Entry
}

// NewFetcher creates a Fetcher
func NewFetcher(client *http.Client, policy RetryPolicy, log *logrus.Entry) *Fetcher {
	return &Fetcher{client: client, policy: policy, log: log}
}

// FetchWithRetry performs req, retrying network errors, 5xx and 429 with
// exponential backoff. A 2xx response is returned with a nil error. Other
// 4xx and unexpected statuses return the response together with a wrapped
// error and are not retried; the caller must close the body in both cases.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	reqLog := f.log.WithField("url", req.URL.String())

	for attempt := 0; attempt <= f.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.policy.backoff(attempt)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": f.policy.MaxRetries, "delay": delay}).Debug("Retrying request")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		} else if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			reqLog.WithField("attempt", attempt).Debugf("Network error: %v", err)
			lastErr = err
			continue
		}

		status := resp.StatusCode
		switch {
		case status >= 200 && status < 300:
			return resp, nil
		case status >= 500:
			lastErr = fmt.Errorf("%w: status %d", utils.ErrServerHTTPError, status)
			drain(resp)
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, status)
			drain(resp)
		case status >= 400:
			return resp, fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, status)
		default:
			return resp, fmt.Errorf("%w: status %d", utils.ErrOtherHTTPError, status)
		}
	}

	reqLog.Warnf("All %d fetch attempts failed. Last error: %v", f.policy.MaxRetries+1, lastErr)
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
