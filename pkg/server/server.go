// Package server exposes the audit job and its reports over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/job"
	"github.com/auditkit/site-auditor/pkg/report"
	"github.com/auditkit/site-auditor/pkg/storage"
	"github.com/auditkit/site-auditor/pkg/utils"
)

const maxConfigBytes = 1 << 20

// Jobs is the part of job.Controller the server drives.
type Jobs interface {
	Start(audit *config.AuditConfig) (string, error)
	Status() job.Snapshot
	Stop() error
	ClearLog()
}

// Server routes the job control and report endpoints.
type Server struct {
	router     *http.ServeMux
	jobs       Jobs
	reportsDir string
	history    storage.HistoryStore // optional
	log        *logrus.Entry
}

// New builds a Server. history may be nil, in which case /audits is empty.
func New(jobs Jobs, reportsDir string, history storage.HistoryStore, log *logrus.Entry) *Server {
	s := &Server{
		router:     http.NewServeMux(),
		jobs:       jobs,
		reportsDir: reportsDir,
		history:    history,
		log:        log.WithField("component", "server"),
	}
	s.router.HandleFunc("POST /start_audit", s.handleStart)
	s.router.HandleFunc("GET /audit_status", s.handleStatus)
	s.router.HandleFunc("POST /stop_audit", s.handleStop)
	s.router.HandleFunc("GET /clear_log", s.handleClearLog)
	s.router.HandleFunc("GET /reports", s.handleReports)
	s.router.HandleFunc("GET /report/{name}", s.handleReport)
	s.router.HandleFunc("GET /audits", s.handleAudits)
	s.router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Infof("Listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"job_id,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "could not read request body"})
		return
	}
	audit, err := config.ParseAuditConfig(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: err.Error()})
		return
	}

	id, err := s.jobs.Start(audit)
	switch {
	case errors.Is(err, utils.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, statusResponse{Status: "error", Message: "An audit is already running"})
	case errors.Is(err, utils.ErrConfigValidation):
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: err.Error()})
	case err != nil:
		s.log.WithError(err).Error("Failed to start audit")
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: err.Error()})
	default:
		writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Audit started", JobID: id})
	}
}

type auditStatus struct {
	Running  bool              `json:"running"`
	Step     string            `json:"step"`
	Progress int               `json:"progress"`
	Log      []string          `json:"log"`
	State    job.State         `json:"state"`
	JobID    string            `json:"job_id,omitempty"`
	Reports  map[string]string `json:"reports,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.jobs.Status()
	st := auditStatus{
		Running:  snap.State.Active(),
		Step:     string(snap.Stage),
		Progress: snap.Progress,
		Log:      snap.Log,
		State:    snap.State,
		JobID:    snap.JobID,
		Error:    snap.Error,
	}
	for format, path := range snap.Reports {
		if st.Reports == nil {
			st.Reports = make(map[string]string)
		}
		st.Reports[format] = filepath.Base(path)
	}
	switch snap.State {
	case job.StateIdle:
		st.Step = "not_started"
	case job.StateFailed:
		st.Step = "failed"
	}
	if st.Log == nil {
		st.Log = []string{}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Stop(); err != nil {
		writeJSON(w, http.StatusConflict, statusResponse{Status: "error", Message: "No audit is running"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: "Stop requested"})
}

func (s *Server) handleClearLog(w http.ResponseWriter, r *http.Request) {
	s.jobs.ClearLog()
	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	l, err := report.ListReports(s.reportsDir)
	if err != nil {
		s.log.WithError(err).Error("Failed to list reports")
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: "could not list reports"})
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	path, err := utils.SafeJoin(s.reportsDir, r.PathValue("name"))
	if err != nil {
		http.Error(w, "invalid report name", http.StatusBadRequest)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "report not found", http.StatusNotFound)
			return
		}
		s.log.WithError(err).Error("Failed to open report")
		http.Error(w, "could not read report", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

type auditEntry struct {
	JobID        string    `json:"job_id"`
	StartURL     string    `json:"start_url"`
	BaseName     string    `json:"base_name"`
	State        string    `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	PagesCrawled int       `json:"pages_crawled"`
	Products     int       `json:"products"`
	Reports      []string  `json:"reports"`
	Error        string    `json:"error,omitempty"`
}

func (s *Server) handleAudits(w http.ResponseWriter, r *http.Request) {
	entries := []auditEntry{}
	if s.history != nil {
		recs, err := s.history.List(r.Context(), 50)
		if err != nil {
			s.log.WithError(err).Error("Failed to list audit history")
			writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: "could not read audit history"})
			return
		}
		for _, rec := range recs {
			e := auditEntry(rec)
			if e.Reports == nil {
				e.Reports = []string{}
			}
			for i, p := range e.Reports {
				e.Reports[i] = filepath.Base(p)
			}
			entries = append(entries, e)
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
