package scope

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/auditkit/site-auditor/pkg/models"
)

// VisitedSet records normalized URLs. The Guard serializes every call, so
// implementations need not lock.
type VisitedSet interface {
	// Add records key, reporting whether it was absent before.
	Add(key string) (bool, error)
	// Contains reports whether key was recorded.
	Contains(key string) (bool, error)
	// Len is the number of recorded keys.
	Len() int
}

// MemoryVisited is an exact in-memory set fronted by a bloom filter, so the
// common "never seen" lookup skips the map.
type MemoryVisited struct {
	seen   map[string]struct{}
	filter *bloom.BloomFilter
}

// NewMemoryVisited sizes the filter for expected keys (0 picks a default).
func NewMemoryVisited(expected int) *MemoryVisited {
	if expected <= 0 {
		expected = 10000
	}
	return &MemoryVisited{
		seen:   make(map[string]struct{}, min(expected, 4096)),
		filter: bloom.NewWithEstimates(uint(expected), 0.01),
	}
}

func (m *MemoryVisited) Add(key string) (bool, error) {
	if found, _ := m.Contains(key); found {
		return false, nil
	}
	m.seen[key] = struct{}{}
	m.filter.AddString(key)
	return true, nil
}

func (m *MemoryVisited) Contains(key string) (bool, error) {
	if !m.filter.TestString(key) {
		return false, nil
	}
	_, ok := m.seen[key]
	return ok, nil
}

func (m *MemoryVisited) Len() int { return len(m.seen) }

// PageStore is the subset of the persistent store the guard needs.
type PageStore interface {
	MarkPageVisited(normalizedPageURL string) (bool, error)
	CheckPageStatus(normalizedPageURL string) (models.PageStatus, *models.PageDBEntry, error)
	GetVisitedCount() (int, error)
}

// StoreVisited adapts a persistent PageStore (Badger) to VisitedSet.
type StoreVisited struct {
	store PageStore
}

// NewStoreVisited wraps store.
func NewStoreVisited(store PageStore) *StoreVisited {
	return &StoreVisited{store: store}
}

func (s *StoreVisited) Add(key string) (bool, error) {
	return s.store.MarkPageVisited(key)
}

func (s *StoreVisited) Contains(key string) (bool, error) {
	status, _, err := s.store.CheckPageStatus(key)
	if err != nil {
		return false, err
	}
	return status != models.PageStatusNotFound, nil
}

func (s *StoreVisited) Len() int {
	n, _ := s.store.GetVisitedCount()
	return n
}
