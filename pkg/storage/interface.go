package storage

import (
	"context"
	"time"

	"github.com/auditkit/site-auditor/pkg/models"
)

// PageStore handles page visitation state
type PageStore interface {
	// MarkPageVisited marks a page URL as visited (pending state)
	// Returns true if the URL was newly added, false if it already existed
	MarkPageVisited(normalizedPageURL string) (bool, error)

	// CheckPageStatus retrieves the status and details of a page URL
	// Returns status (PageStatusSuccess, PageStatusFailure, PageStatusPending, PageStatusNotFound, PageStatusDBError),
	// the PageDBEntry if found and parsed, and any error
	CheckPageStatus(normalizedPageURL string) (status models.PageStatus, entry *models.PageDBEntry, err error)

	// UpdatePageStatus updates the status and details for a page URL
	UpdatePageStatus(normalizedPageURL string, entry *models.PageDBEntry) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetVisitedCount returns the number of page keys in the store
	GetVisitedCount() (int, error)

	// StatusCounts tallies stored pages by status
	StatusCounts() (map[models.PageStatus]int, error)

	// WriteVisitedLog writes all page keys (URLs) with their status to filePath
	WriteVisitedLog(filePath string) error

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// VisitedStore combines all store interfaces for components that need full access
type VisitedStore interface {
	PageStore
	StoreAdmin
}

// AuditRecord is one row of the audit history.
type AuditRecord struct {
	JobID        string
	StartURL     string
	BaseName     string
	State        string
	StartedAt    time.Time
	FinishedAt   time.Time
	PagesCrawled int
	Products     int
	Reports      []string
	Error        string
}

// HistoryStore persists finished audit runs.
type HistoryStore interface {
	// Record inserts or replaces the row for rec.JobID
	Record(ctx context.Context, rec AuditRecord) error
	// List returns up to limit records, newest first (limit <= 0 means all)
	List(ctx context.Context, limit int) ([]AuditRecord, error)
	// Get returns the record for jobID or utils.ErrNotFound
	Get(ctx context.Context, jobID string) (*AuditRecord, error)
	Close() error
}
