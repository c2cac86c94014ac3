package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/auditkit/site-auditor/pkg/utils"
)

// Compile-time interface verification.
var _ HistoryStore = (*SQLiteHistory)(nil)

// SQLiteHistory stores audit runs in a SQLite database.
type SQLiteHistory struct {
	db   *sql.DB
	path string
}

// OpenHistory opens (creating if needed) the history database at path.
// Use ":memory:" for an in-memory database.
func OpenHistory(path string) (*SQLiteHistory, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("%w: creating history dir: %w", utils.ErrFilesystem, err)
		}
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open history database: %w", utils.ErrDatabase, err)
	}

	// SQLite only supports one writer at a time.
	conn.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %s: %w", utils.ErrDatabase, p, err)
		}
	}

	h := &SQLiteHistory{db: conn, path: path}
	if err := h.createSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to create schema: %w", utils.ErrDatabase, err)
	}
	return h, nil
}

func (h *SQLiteHistory) createSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS audits (
			job_id TEXT PRIMARY KEY,
			start_url TEXT NOT NULL,
			base_name TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT '',
			pages_crawled INTEGER NOT NULL DEFAULT 0,
			products INTEGER NOT NULL DEFAULT 0,
			reports TEXT NOT NULL DEFAULT '[]',
			error TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_audits_started_at ON audits(started_at);
	`)
	return err
}

// Record inserts or replaces the row for rec.JobID.
func (h *SQLiteHistory) Record(ctx context.Context, rec AuditRecord) error {
	if rec.JobID == "" {
		return fmt.Errorf("%w: audit record without job id", utils.ErrDatabase)
	}
	reports, err := json.Marshal(nonNil(rec.Reports))
	if err != nil {
		return fmt.Errorf("%w: encoding reports: %w", utils.ErrParsing, err)
	}
	finished := ""
	if !rec.FinishedAt.IsZero() {
		finished = rec.FinishedAt.UTC().Format(historyTimeLayout)
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO audits (job_id, start_url, base_name, state, started_at, finished_at, pages_crawled, products, reports, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			start_url = excluded.start_url,
			base_name = excluded.base_name,
			state = excluded.state,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			pages_crawled = excluded.pages_crawled,
			products = excluded.products,
			reports = excluded.reports,
			error = excluded.error
	`, rec.JobID, rec.StartURL, rec.BaseName, rec.State, rec.StartedAt.UTC().Format(historyTimeLayout),
		finished, rec.PagesCrawled, rec.Products, string(reports), rec.Error)
	if err != nil {
		return fmt.Errorf("%w: recording audit %s: %w", utils.ErrDatabase, rec.JobID, err)
	}
	return nil
}

// Fixed-width so started_at sorts lexically.
const historyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectAudits = `
	SELECT job_id, start_url, base_name, state, started_at, finished_at, pages_crawled, products, reports, error
	FROM audits`

// List returns up to limit records, newest first.
func (h *SQLiteHistory) List(ctx context.Context, limit int) ([]AuditRecord, error) {
	query := selectAudits + " ORDER BY started_at DESC, job_id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing audits: %w", utils.ErrDatabase, err)
	}
	defer rows.Close()

	records := []AuditRecord{}
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing audits: %w", utils.ErrDatabase, err)
	}
	return records, nil
}

// Get returns the record for jobID.
func (h *SQLiteHistory) Get(ctx context.Context, jobID string) (*AuditRecord, error) {
	row := h.db.QueryRowContext(ctx, selectAudits+" WHERE job_id = ?", jobID)
	rec, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: audit %s", utils.ErrNotFound, jobID)
	}
	return rec, err
}

// Close closes the database connection.
func (h *SQLiteHistory) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAudit(s scanner) (*AuditRecord, error) {
	var rec AuditRecord
	var started, finished, reports string
	err := s.Scan(&rec.JobID, &rec.StartURL, &rec.BaseName, &rec.State, &started, &finished,
		&rec.PagesCrawled, &rec.Products, &reports, &rec.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scanning audit row: %w", utils.ErrDatabase, err)
	}

	if rec.StartedAt, err = time.Parse(historyTimeLayout, started); err != nil {
		return nil, fmt.Errorf("%w: parsing started_at: %w", utils.ErrParsing, err)
	}
	if finished != "" {
		if rec.FinishedAt, err = time.Parse(historyTimeLayout, finished); err != nil {
			return nil, fmt.Errorf("%w: parsing finished_at: %w", utils.ErrParsing, err)
		}
	}
	if err := json.Unmarshal([]byte(reports), &rec.Reports); err != nil {
		return nil, fmt.Errorf("%w: decoding reports: %w", utils.ErrParsing, err)
	}
	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
