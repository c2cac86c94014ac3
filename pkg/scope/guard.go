package scope

import (
	"fmt"
	"sync"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/parse"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// Decision is the outcome of an admission check.
type Decision int

const (
	Admitted Decision = iota
	RejectedInvalid
	RejectedDomain
	RejectedVisited
	RejectedLimit
	RejectedCancelled
	RejectedError
)

func (d Decision) String() string {
	switch d {
	case Admitted:
		return "admitted"
	case RejectedInvalid:
		return "invalid_url"
	case RejectedDomain:
		return "out_of_domain"
	case RejectedVisited:
		return "already_visited"
	case RejectedLimit:
		return "crawl_limit"
	case RejectedCancelled:
		return "cancelled"
	default:
		return "store_error"
	}
}

// Admission describes one Admit call. Sequence is the 0-based admission
// order and is only set when Decision is Admitted.
type Admission struct {
	Decision   Decision
	Normalized string
	Sequence   int
	Err        error
}

// Guard enforces crawl scope. Each Admit runs its checks and the insert
// under one lock, so concurrent workers can never exceed the limit or admit
// a URL twice.
type Guard struct {
	mu        sync.Mutex
	domains   []string
	limit     int
	visited   VisitedSet
	cancelled func() bool
	admitted  int
}

// NewGuard builds a guard. limit <= 0 means unbounded; cancelled may be nil.
func NewGuard(domains []string, limit int, visited VisitedSet, cancelled func() bool) *Guard {
	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	return &Guard{domains: domains, limit: limit, visited: visited, cancelled: cancelled}
}

// Admit checks, in order: allowed domain, already visited, crawl limit,
// cancellation. When every check passes the URL is recorded as visited.
func (g *Guard) Admit(rawURL string) Admission {
	normalized, u, err := parse.ParseAndNormalize(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return Admission{Decision: RejectedInvalid, Err: fmt.Errorf("%w: %q", utils.ErrParsing, rawURL)}
	}

	if !config.HostAllowed(u.Hostname(), g.domains) {
		return Admission{Decision: RejectedDomain, Normalized: normalized}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	seen, err := g.visited.Contains(normalized)
	if err != nil {
		return Admission{Decision: RejectedError, Normalized: normalized, Err: err}
	}
	if seen {
		return Admission{Decision: RejectedVisited, Normalized: normalized}
	}
	if g.limit > 0 && g.visited.Len() >= g.limit {
		return Admission{Decision: RejectedLimit, Normalized: normalized}
	}
	if g.cancelled() {
		return Admission{Decision: RejectedCancelled, Normalized: normalized}
	}

	added, err := g.visited.Add(normalized)
	if err != nil {
		return Admission{Decision: RejectedError, Normalized: normalized, Err: err}
	}
	if !added {
		return Admission{Decision: RejectedVisited, Normalized: normalized}
	}
	seq := g.admitted
	g.admitted++
	return Admission{Decision: Admitted, Normalized: normalized, Sequence: seq}
}

// Visited returns the number of recorded URLs.
func (g *Guard) Visited() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.visited.Len()
}

// Limit returns the configured crawl limit (0 = unbounded).
func (g *Guard) Limit() int { return g.limit }

// Exhausted reports whether no further URL can be admitted.
func (g *Guard) Exhausted() bool {
	if g.cancelled() {
		return true
	}
	return g.limit > 0 && g.Visited() >= g.limit
}
