package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/server"
)

// Run executes the serve command.
func (c *ServeCmd) Run(deps *Dependencies) error {
	deps.logWarnings()
	addr := c.Addr
	if addr == "" {
		addr = deps.App.ListenAddr
	}

	history := deps.openHistory()
	defer closeHistory(history)
	jobs := deps.newController(history)

	srv := server.New(jobs, deps.layout().ReportsDir(), history, logrus.NewEntry(deps.Log))
	err := srv.ListenAndServe(deps.Ctx, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if shutdownErr := jobs.Shutdown(ctx); shutdownErr != nil {
		deps.Log.WithError(shutdownErr).Warn("Audit did not finish before shutdown")
	}
	return err
}
