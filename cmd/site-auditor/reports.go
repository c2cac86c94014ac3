package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/auditkit/site-auditor/pkg/report"
)

// Run executes the reports command.
func (c *ReportsCmd) Run(deps *Dependencies) error {
	l, err := report.ListReports(deps.layout().ReportsDir())
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	}

	if len(l.Text)+len(l.HTML)+len(l.CSV) == 0 {
		fmt.Fprintln(deps.Stdout, "No reports found. Use 'site-auditor run' to create one.")
		return nil
	}
	for _, group := range []struct {
		name  string
		files []string
	}{{"Text", l.Text}, {"HTML", l.HTML}, {"CSV", l.CSV}} {
		fmt.Fprintf(deps.Stdout, "%s (%d):\n", group.name, len(group.files))
		for _, f := range group.files {
			fmt.Fprintf(deps.Stdout, "  %s\n", f)
		}
	}
	return nil
}

// Run executes the history command.
func (c *HistoryCmd) Run(deps *Dependencies) error {
	history := deps.openHistory()
	if history == nil {
		return fmt.Errorf("audit history is unavailable at %s", deps.App.HistoryDB)
	}
	defer closeHistory(history)

	recs, err := history.List(deps.Ctx, c.Limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(deps.Stdout, "No audits recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(deps.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATE\tPAGES\tPRODUCTS\tSTART URL\tJOB")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.State, r.PagesCrawled, r.Products, r.StartURL, r.JobID)
	}
	return w.Flush()
}
