package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/job"
	"github.com/auditkit/site-auditor/pkg/orchestrate"
	"github.com/auditkit/site-auditor/pkg/storage"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx         context.Context
	Stdout      io.Writer
	Stderr      io.Writer
	Log         *logrus.Logger
	App         *config.AppConfig
	AppWarnings []string
	ConfigPath  string
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config   string `short:"c" default:"config.yaml" help:"Path to YAML app config (missing file means defaults)"`
	LogLevel string `name:"loglevel" default:"info" help:"Log level (debug, info, warn, error)"`

	Serve     ServeCmd     `cmd:"" help:"Serve the audit HTTP API"`
	Run       RunCmd       `cmd:"" help:"Run one audit in the foreground and write its reports"`
	Validate  ValidateCmd  `cmd:"" help:"Validate the app config and, optionally, an audit config"`
	Reports   ReportsCmd   `cmd:"" help:"List generated reports"`
	History   HistoryCmd   `cmd:"" help:"List past audits"`
	McpServer McpServerCmd `cmd:"" name:"mcp-server" help:"Start an MCP server for AI tool integration"`
	Version   VersionCmd   `cmd:"" help:"Show version info"`
}

// ServeCmd is the "serve" subcommand.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides listen_addr)"`
}

// RunCmd is the "run" subcommand.
type RunCmd struct {
	Audit   string   `arg:"" type:"existingfile" help:"Audit config file (.json, .yaml or .yml)"`
	Limit   int      `help:"Override crawl_limit (0 keeps the file's value)"`
	Formats []string `short:"f" help:"Report formats to write (text, html, csv)"`
}

// ValidateCmd is the "validate" subcommand.
type ValidateCmd struct {
	Audit string `arg:"" optional:"" help:"Audit config file to check as well"`
}

// ReportsCmd is the "reports" subcommand.
type ReportsCmd struct {
	JSON bool `help:"Print the listing as JSON"`
}

// HistoryCmd is the "history" subcommand.
type HistoryCmd struct {
	Limit int `short:"n" default:"20" help:"Maximum number of audits to show"`
}

// McpServerCmd is the "mcp-server" subcommand.
type McpServerCmd struct {
	Transport string `default:"stdio" enum:"stdio,sse" help:"Transport type (stdio, sse)"`
	Addr      string `default:":8081" help:"Listen address for the sse transport"`
}

// VersionCmd is the "version" subcommand.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run(deps *Dependencies) error {
	fmt.Fprintf(deps.Stdout, "site-auditor %s\n", version)
	return nil
}

func (d *Dependencies) logWarnings() {
	for _, w := range d.AppWarnings {
		d.Log.Warn(w)
	}
}

// openHistory opens the audit history database. Failure only disables
// history; it never blocks an audit.
func (d *Dependencies) openHistory() storage.HistoryStore {
	h, err := storage.OpenHistory(d.App.HistoryDB)
	if err != nil {
		d.Log.WithError(err).Warnf("Audit history disabled: cannot open %s", d.App.HistoryDB)
		return nil
	}
	return h
}

func (d *Dependencies) newController(history storage.HistoryStore) *job.Controller {
	app := d.App
	return job.NewController(job.Options{
		NewRunner: func(log *logrus.Entry) job.Runner {
			return orchestrate.New(app, orchestrate.Options{}, log)
		},
		History:     history,
		Output:      d.Stderr,
		Level:       d.Log.GetLevel(),
		Formatter:   d.Log.Formatter,
		LogCapacity: app.LogCapacity,
	})
}

func (d *Dependencies) layout() orchestrate.Layout {
	return orchestrate.Layout{DataDir: d.App.DataDir}
}

func closeHistory(h storage.HistoryStore) {
	if h != nil {
		_ = h.Close()
	}
}
