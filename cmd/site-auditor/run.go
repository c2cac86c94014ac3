package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/auditkit/site-auditor/pkg/config"
	"github.com/auditkit/site-auditor/pkg/job"
)

const progressInterval = 5 * time.Second

// Run executes the run command. The first interrupt stops the crawl and
// still writes reports from the pages collected so far.
func (c *RunCmd) Run(deps *Dependencies) error {
	deps.logWarnings()
	audit, err := config.LoadAuditConfig(c.Audit)
	if err != nil {
		return err
	}
	if c.Limit > 0 {
		audit.CrawlLimit = c.Limit
	}
	if len(c.Formats) > 0 {
		audit.ReportFormats = c.Formats
	}

	history := deps.openHistory()
	defer closeHistory(history)
	jobs := deps.newController(history)

	id, err := jobs.Start(audit)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		jobs.Wait()
		close(done)
	}()

	interrupted := deps.Ctx.Done()
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
wait:
	for {
		select {
		case <-done:
			break wait
		case <-interrupted:
			interrupted = nil
			if err := jobs.Stop(); err == nil {
				deps.Log.Warn("Interrupted: stopping the crawl, reports will cover the pages collected so far")
			}
		case <-ticker.C:
			s := jobs.Status()
			deps.Log.Infof("Progress: %d%% (%s)", s.Progress, s.Stage)
		}
	}

	s := jobs.Status()
	if s.State == job.StateFailed {
		return fmt.Errorf("audit %s failed: %s", id, s.Error)
	}

	fmt.Fprintf(deps.Stdout, "Audit %s completed: %s\n", id, s.BaseName)
	formats := make([]string, 0, len(s.Reports))
	for f := range s.Reports {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	for _, f := range formats {
		fmt.Fprintf(deps.Stdout, "  %-5s %s\n", f, s.Reports[f])
	}
	return nil
}
