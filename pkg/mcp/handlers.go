package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/job"
	"github.com/auditkit/site-auditor/pkg/report"
	"github.com/auditkit/site-auditor/pkg/utils"
)

const maxReportBytes = 5 * 1024 * 1024

// handleStartAudit handles the start_audit tool
func (s *Server) handleStartAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := strings.TrimSpace(request.GetString("config", ""))
	if raw == "" {
		return mcp.NewToolResultError("config parameter is required"), nil
	}

	audit, err := parseAuditArg(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := s.cfg.Jobs.Start(audit)
	if errors.Is(err, utils.ErrAlreadyRunning) {
		snap := s.cfg.Jobs.Status()
		return mcp.NewToolResultError(fmt.Sprintf("an audit is already in progress (job_id %s, %s, progress %d%%)",
			snap.JobID, snap.State, snap.Progress)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start audit: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(map[string]any{
		"status":    "started",
		"message":   "Audit started",
		"job_id":    id,
		"start_url": audit.StartURL,
	})), nil
}

// parseAuditArg accepts the audit config as JSON or YAML.
func parseAuditArg(raw string) (*config.AuditConfig, error) {
	if strings.HasPrefix(raw, "{") {
		return config.ParseAuditConfig([]byte(raw))
	}
	return config.ParseAuditConfigYAML([]byte(raw))
}

// handleAuditStatus handles the audit_status tool
func (s *Server) handleAuditStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.cfg.Jobs.Status()
	if n := request.GetInt("log_lines", 0); n > 0 && n < len(snap.Log) {
		snap.Log = snap.Log[len(snap.Log)-n:]
	}
	if snap.Log == nil {
		snap.Log = []string{}
	}

	result := map[string]any{
		"state":    snap.State,
		"running":  snap.State.Active(),
		"stage":    snap.Stage,
		"progress": snap.Progress,
		"log":      snap.Log,
	}
	if snap.State == job.StateIdle {
		result["stage"] = "not_started"
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	result["job_id"] = snap.JobID
	result["start_url"] = snap.StartURL
	result["started_at"] = snap.StartedAt.Format(time.RFC3339)
	if !snap.FinishedAt.IsZero() {
		result["finished_at"] = snap.FinishedAt.Format(time.RFC3339)
		result["duration_seconds"] = snap.FinishedAt.Sub(snap.StartedAt).Seconds()
	}
	if snap.BaseName != "" {
		result["base_name"] = snap.BaseName
	}
	if len(snap.Reports) > 0 {
		names := make(map[string]string, len(snap.Reports))
		for format, path := range snap.Reports {
			names[format] = filepath.Base(path)
		}
		result["reports"] = names
	}
	if snap.Error != "" {
		result["error"] = snap.Error
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleStopAudit handles the stop_audit tool
func (s *Server) handleStopAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.cfg.Jobs.Stop(); err != nil {
		return mcp.NewToolResultError("no audit is running"), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]any{
		"status":  "stopping",
		"message": "Stop requested; reports will be generated from the pages crawled so far",
	})), nil
}

// handleClearLog handles the clear_log tool
func (s *Server) handleClearLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.cfg.Jobs.ClearLog()
	return mcp.NewToolResultText(formatJSON(map[string]any{"status": "cleared"})), nil
}

// handleListReports handles the list_reports tool
func (s *Server) handleListReports(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	l, err := report.ListReports(s.cfg.ReportsDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reports: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]any{
		"text":  l.Text,
		"html":  l.HTML,
		"csv":   l.CSV,
		"total": len(l.Text) + len(l.HTML) + len(l.CSV),
	})), nil
}

// handleGetReport handles the get_report tool
func (s *Server) handleGetReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	path, err := utils.SafeJoin(s.cfg.ReportsDir, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid report name %q", name)), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return mcp.NewToolResultError(fmt.Sprintf("report %q not found", name)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to open report: %v", err)), nil
	}
	if info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("report %q not found", name)), nil
	}
	if info.Size() > maxReportBytes {
		return mcp.NewToolResultError(fmt.Sprintf("report %q is too large (%d bytes); download it over HTTP instead", name, info.Size())), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read report: %v", err)), nil
	}
	content := string(data)

	format := "text"
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		format = "csv"
	case ".html", ".htm":
		format = "html"
		if !request.GetBool("raw", false) {
			converted, err := md.NewConverter("", true, nil).ConvertString(content)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to convert report to markdown: %v", err)), nil
			}
			content = strings.TrimSpace(converted)
			format = "markdown"
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]any{
		"name":    name,
		"format":  format,
		"content": content,
	})), nil
}

// handleAuditHistory handles the audit_history tool
func (s *Server) handleAuditHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	audits := make([]map[string]any, 0)
	if s.cfg.History != nil {
		recs, err := s.cfg.History.List(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read audit history: %v", err)), nil
		}
		for _, rec := range recs {
			reports := make([]string, 0, len(rec.Reports))
			for _, p := range rec.Reports {
				reports = append(reports, filepath.Base(p))
			}
			entry := map[string]any{
				"job_id":        rec.JobID,
				"start_url":     rec.StartURL,
				"state":         rec.State,
				"started_at":    rec.StartedAt.Format(time.RFC3339),
				"pages_crawled": rec.PagesCrawled,
				"products":      rec.Products,
				"reports":       reports,
			}
			if rec.Error != "" {
				entry["error"] = rec.Error
			}
			audits = append(audits, entry)
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]any{
		"audits": audits,
		"total":  len(audits),
	})), nil
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]any) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
