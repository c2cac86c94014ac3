package orchestrate

import "path/filepath"

// Layout maps a run's base name to its files under the data directory:
//
//	raw/<base>.json           crawl checkpoint
//	raw/<base>_pages/         page blobs, named by content hash
//	raw/<base>_visited.txt    admitted URLs with their crawl status
//	processed/<base>.json     extract checkpoint
//	analyzed/<base>.json      analysis checkpoint
//	reports/<base>.{txt,html,csv}
type Layout struct {
	DataDir string
}

func (l Layout) Raw(base string) string { return filepath.Join(l.DataDir, "raw", base+".json") }

func (l Layout) VisitedLog(base string) string {
	return filepath.Join(l.DataDir, "raw", base+"_visited.txt")
}

func (l Layout) Processed(base string) string {
	return filepath.Join(l.DataDir, "processed", base+".json")
}

func (l Layout) Analyzed(base string) string {
	return filepath.Join(l.DataDir, "analyzed", base+".json")
}

func (l Layout) ReportsDir() string { return filepath.Join(l.DataDir, "reports") }
