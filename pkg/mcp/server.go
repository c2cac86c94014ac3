package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/job"
	"github.com/auditkit/site-auditor/pkg/storage"
)

const serverName = "site-auditor"

// Jobs is the part of job.Controller the tools drive.
type Jobs interface {
	Start(audit *config.AuditConfig) (string, error)
	Status() job.Snapshot
	Stop() error
	ClearLog()
}

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	Jobs       Jobs
	ReportsDir string
	History    storage.HistoryStore // optional
	Transport  string               // "stdio" or "sse"
	Addr       string               // SSE listen address
	Version    string
	Logger     *logrus.Logger
}

// Server exposes the audit job to MCP clients.
type Server struct {
	mcpServer *server.MCPServer
	cfg       *ServerConfig
	log       *logrus.Entry
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Jobs == nil {
		return nil, fmt.Errorf("jobs controller is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		mcpServer: server.NewMCPServer(serverName, cfg.Version, server.WithLogging()),
		cfg:       cfg,
		log:       cfg.Logger.WithField("component", "mcp"),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_audit",
		mcp.WithDescription("Start a site audit in the background. Only one audit runs at a time. Returns the job ID."),
		mcp.WithString("config",
			mcp.Required(),
			mcp.Description("Audit configuration as a JSON object or YAML document; start_url is required"),
		),
	), s.handleStartAudit)

	s.mcpServer.AddTool(mcp.NewTool("audit_status",
		mcp.WithDescription("Get the state, stage, progress and recent log of the current audit"),
		mcp.WithNumber("log_lines",
			mcp.Description("Return only the last N log lines (default: all)"),
		),
	), s.handleAuditStatus)

	s.mcpServer.AddTool(mcp.NewTool("stop_audit",
		mcp.WithDescription("Stop crawling; reports are still produced from the pages collected so far"),
	), s.handleStopAudit)

	s.mcpServer.AddTool(mcp.NewTool("clear_log",
		mcp.WithDescription("Clear the audit log buffer"),
	), s.handleClearLog)

	s.mcpServer.AddTool(mcp.NewTool("list_reports",
		mcp.WithDescription("List generated report files, newest first, grouped by format"),
	), s.handleListReports)

	s.mcpServer.AddTool(mcp.NewTool("get_report",
		mcp.WithDescription("Return the content of a report file. HTML reports are converted to markdown."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Report file name as returned by list_reports"),
		),
		mcp.WithBoolean("raw",
			mcp.Description("Return HTML reports unconverted"),
		),
	), s.handleGetReport)

	s.mcpServer.AddTool(mcp.NewTool("audit_history",
		mcp.WithDescription("List past audits with their outcome and report files"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of audits to return (default: 20, max: 200)"),
		),
	), s.handleAuditHistory)

	s.log.Debug("Registered 7 MCP tools")
}

// Run serves on the configured transport until it fails or, for SSE, ctx ends.
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.Transport {
	case "stdio", "":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := s.cfg.Addr
		if addr == "" {
			addr = ":8081"
		}
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sse := server.NewSSEServer(s.mcpServer)
		errCh := make(chan error, 1)
		go func() { errCh <- sse.Start(addr) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return sse.Shutdown(context.Background())
		}
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}
