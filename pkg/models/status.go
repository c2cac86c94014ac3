package models

// PageStatus is the crawl state of one admitted URL in the visited store
type PageStatus string

const (
	PageStatusUnset    PageStatus = ""          // Zero value = unset/unknown
	PageStatusPending  PageStatus = "pending"   // Admitted, not fetched yet
	PageStatusSuccess  PageStatus = "success"   // Fetched and recorded
	PageStatusFailure  PageStatus = "failure"   // Fetch or parse failed
	PageStatusSkipped  PageStatus = "skipped"   // Fetched nothing by policy (robots, redirect out of scope, non-HTML)
	PageStatusNotFound PageStatus = "not_found" // Not in the store
	PageStatusDBError  PageStatus = "db_error"  // Store lookup failed
)

// String implements fmt.Stringer for logging
func (s PageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid reports whether s may be persisted.
func (s PageStatus) IsValid() bool {
	switch s {
	case PageStatusPending, PageStatusSuccess, PageStatusFailure, PageStatusSkipped:
		return true
	}
	return false
}
