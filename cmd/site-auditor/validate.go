package main

import (
	"fmt"

	"github.com/auditkit/site-auditor/pkg/config"
)

// Run executes the validate command.
func (c *ValidateCmd) Run(deps *Dependencies) error {
	for _, w := range deps.AppWarnings {
		fmt.Fprintf(deps.Stdout, "WARN: %s\n", w)
	}
	fmt.Fprintf(deps.Stdout, "OK: app config (data_dir=%s, workers=%d, %.2f req/s per host)\n",
		deps.App.DataDir, deps.App.NumWorkers, deps.App.RequestsPerSecond)

	if c.Audit == "" {
		fmt.Fprintln(deps.Stdout, "Configuration valid")
		return nil
	}

	audit, err := config.LoadAuditConfig(c.Audit)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "ERROR: %v\n", err)
		return err
	}
	warnings, err := audit.Validate()
	for _, w := range warnings {
		fmt.Fprintf(deps.Stdout, "WARN: [audit] %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(deps.Stderr, "ERROR: [audit] %v\n", err)
		return err
	}
	fmt.Fprintf(deps.Stdout, "OK: audit config for %s (domains: %v, formats: %v)\n",
		audit.StartURL, audit.AllowedDomains, audit.ReportFormats)
	fmt.Fprintln(deps.Stdout, "Configuration valid")
	return nil
}
