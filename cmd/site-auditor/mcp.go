package main

import (
	"context"
	"time"

	"github.com/auditkit/site-auditor/pkg/mcp"
)

// Run executes the mcp-server command. Logs go to stderr; stdio transport
// owns stdout.
func (c *McpServerCmd) Run(deps *Dependencies) error {
	deps.logWarnings()
	history := deps.openHistory()
	defer closeHistory(history)
	jobs := deps.newController(history)

	srv, err := mcp.NewServer(&mcp.ServerConfig{
		Jobs:       jobs,
		ReportsDir: deps.layout().ReportsDir(),
		History:    history,
		Transport:  c.Transport,
		Addr:       c.Addr,
		Version:    version,
		Logger:     deps.Log,
	})
	if err != nil {
		return err
	}

	runErr := srv.Run(deps.Ctx)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := jobs.Shutdown(ctx); err != nil {
		deps.Log.WithError(err).Warn("Audit did not finish before shutdown")
	}
	return runErr
}
