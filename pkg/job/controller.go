// Package job owns the single audit job of the process: it starts the
// pipeline in the background, relays its stage, progress and log, and
// handles stop requests.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/auditkit/site-auditor/pkg/config"
	joblog "github.com/auditkit/site-auditor/pkg/log"
	"github.com/auditkit/site-auditor/pkg/orchestrate"
	"github.com/auditkit/site-auditor/pkg/storage"
	"github.com/auditkit/site-auditor/pkg/utils"
)

// State is the lifecycle state of the job.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Active reports whether a pipeline is executing.
func (s State) Active() bool { return s == StateRunning || s == StateStopping }

// Runner executes one audit. *orchestrate.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, audit *config.AuditConfig, rep orchestrate.Reporter) (*orchestrate.Outcome, error)
}

// RunnerFactory builds the Runner for a job around that job's logger.
type RunnerFactory func(log *logrus.Entry) Runner

// Snapshot is a consistent copy of the job's observable state.
type Snapshot struct {
	JobID      string            `json:"job_id,omitempty"`
	State      State             `json:"state"`
	Stage      orchestrate.Stage `json:"stage,omitempty"`
	Progress   int               `json:"progress"`
	Log        []string          `json:"log"`
	StartURL   string            `json:"start_url,omitempty"`
	BaseName   string            `json:"base_name,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitzero"`
	FinishedAt time.Time         `json:"finished_at,omitzero"`
	Reports    map[string]string `json:"reports,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Options configure a Controller.
type Options struct {
	NewRunner   RunnerFactory
	History     storage.HistoryStore // optional
	Output      io.Writer            // job logs also go here; nil = stderr
	Level       logrus.Level         // 0 (panic) means Info
	Formatter   logrus.Formatter     // nil = text with full timestamps
	LogCapacity int
}

// job is the mutable state of the current (or last) run.
type job struct {
	id         string
	state      State
	stage      orchestrate.Stage
	progress   int
	startURL   string
	baseName   string
	startedAt  time.Time
	finishedAt time.Time
	reports    map[string]string
	err        string
	stop       atomic.Bool
	cancel     context.CancelFunc
	done       chan struct{}
	log        *logrus.Entry
}

// Controller runs at most one audit job at a time. Safe for concurrent use.
type Controller struct {
	opts Options
	ring *joblog.RingLog

	mu  sync.RWMutex
	cur *job
}

// NewController returns an idle Controller.
func NewController(opts Options) *Controller {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Level == logrus.PanicLevel {
		opts.Level = logrus.InfoLevel
	}
	if opts.Formatter == nil {
		opts.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}
	return &Controller{opts: opts, ring: joblog.NewRingLog(opts.LogCapacity)}
}

// Start launches a fresh job. It fails with utils.ErrAlreadyRunning while a
// job is running or stopping, before audit is even looked at, and with
// utils.ErrConfigValidation on a bad config. Neither touches the current job.
func (c *Controller) Start(audit *config.AuditConfig) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil && c.cur.state.Active() {
		return "", fmt.Errorf("%w: job %s is %s", utils.ErrAlreadyRunning, c.cur.id, c.cur.state)
	}

	if audit == nil {
		return "", fmt.Errorf("%w: missing audit config", utils.ErrConfigValidation)
	}
	warnings, err := audit.Validate()
	if err != nil {
		if !errors.Is(err, utils.ErrConfigValidation) {
			err = fmt.Errorf("%w: %w", utils.ErrConfigValidation, err)
		}
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:        uuid.NewString(),
		state:     StateRunning,
		stage:     orchestrate.StageCrawl,
		startURL:  audit.StartURL,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	j.log = c.jobLogger(j.id)
	c.ring.Clear()
	c.cur = j

	for _, w := range warnings {
		j.log.Warn(w)
	}
	j.log.Infof("Audit %s started for %s", j.id, audit.StartURL)

	go c.run(ctx, j, audit)
	return j.id, nil
}

func (c *Controller) jobLogger(id string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(c.opts.Output)
	l.SetLevel(c.opts.Level)
	l.SetFormatter(c.opts.Formatter)
	l.AddHook(joblog.NewBufferHook(c.ring, logrus.InfoLevel))
	return l.WithField("job_id", id)
}

func (c *Controller) run(ctx context.Context, j *job, audit *config.AuditConfig) {
	defer close(j.done)
	defer j.cancel()

	var (
		out *orchestrate.Outcome
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pipeline panicked: %v", r)
			}
		}()
		out, err = c.opts.NewRunner(j.log).Run(ctx, audit, &reporter{c: c, j: j})
	}()

	// Log and record before the state flips; the next Start clears the ring.
	finishedAt := time.Now()
	state := StateCompleted
	if err != nil {
		state = StateFailed
		j.log.WithError(err).Errorf("Audit failed: %v", err)
	} else {
		j.log.Info("Audit completed")
	}
	c.record(j, state, finishedAt, out, err)

	c.mu.Lock()
	j.finishedAt = finishedAt
	if out != nil {
		j.baseName = out.BaseName
		if out.Reports != nil {
			j.reports = out.Reports.Files
		}
	}
	j.state = state
	if err != nil {
		j.err = err.Error()
	} else {
		j.stage = orchestrate.StageCompleted
		j.progress = 100
	}
	c.mu.Unlock()
}

// record writes the finished job to the history store. The job's id, start
// URL and start time never change after Start, so no lock is needed.
func (c *Controller) record(j *job, state State, finishedAt time.Time, out *orchestrate.Outcome, runErr error) {
	if c.opts.History == nil {
		return
	}
	rec := storage.AuditRecord{
		JobID:      j.id,
		StartURL:   j.startURL,
		State:      string(state),
		StartedAt:  j.startedAt,
		FinishedAt: finishedAt,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if out != nil {
		rec.BaseName = out.BaseName
		if out.Reports != nil {
			for _, path := range out.Reports.Files {
				rec.Reports = append(rec.Reports, path)
			}
		}
		if out.Crawl != nil {
			rec.PagesCrawled = len(out.Crawl.Pages)
		}
		if out.Analysis != nil {
			rec.Products = len(out.Analysis.Products)
		}
	}
	sort.Strings(rec.Reports)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.opts.History.Record(ctx, rec); err != nil {
		j.log.WithError(err).Warn("Failed to record audit history")
	}
}

// Status returns a snapshot of the current job, or an idle snapshot.
func (c *Controller) Status() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{State: StateIdle, Log: c.ring.Lines()}
	j := c.cur
	if j == nil {
		return s
	}
	s.JobID = j.id
	s.State = j.state
	s.Stage = j.stage
	s.Progress = j.progress
	s.StartURL = j.startURL
	s.BaseName = j.baseName
	s.StartedAt = j.startedAt
	s.FinishedAt = j.finishedAt
	s.Error = j.err
	if len(j.reports) > 0 {
		s.Reports = make(map[string]string, len(j.reports))
		for k, v := range j.reports {
			s.Reports[k] = v
		}
	}
	return s
}

// Stop asks the running job to wind down: the crawl ends at its current
// point and the remaining stages run on what was collected. It does not
// wait. A second Stop while stopping is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	j := c.cur
	if j == nil || !j.state.Active() {
		c.mu.Unlock()
		return utils.ErrNotRunning
	}
	if j.state == StateStopping {
		c.mu.Unlock()
		return nil
	}
	j.state = StateStopping
	j.stop.Store(true)
	c.mu.Unlock()

	j.log.Info("Stop requested; finishing with the pages collected so far")
	return nil
}

// ClearLog empties the job log. State and progress are untouched.
func (c *Controller) ClearLog() {
	c.ring.Clear()
}

// Wait blocks until the current job, if any, has finished.
func (c *Controller) Wait() {
	c.mu.RLock()
	j := c.cur
	c.mu.RUnlock()
	if j != nil {
		<-j.done
	}
}

// Shutdown cancels the running job outright and waits for it to return or
// for ctx to expire.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.RLock()
	j := c.cur
	c.mu.RUnlock()
	if j == nil {
		return nil
	}
	j.cancel()
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reporter relays pipeline events into one job. Events from a job that is
// no longer current are dropped.
type reporter struct {
	c *Controller
	j *job
}

func (r *reporter) StageStarted(stage orchestrate.Stage) {
	r.c.mu.Lock()
	if r.c.cur == r.j {
		r.j.stage = stage
	}
	r.c.mu.Unlock()
	if stage != orchestrate.StageCompleted {
		r.j.log.Infof("Stage: %s", stage)
	}
}

// Progress keeps the maximum seen, clamped to 0-99 until the job completes.
func (r *reporter) Progress(pct float64) {
	p := min(max(int(pct), 0), 99)
	r.c.mu.Lock()
	if r.c.cur == r.j && p > r.j.progress {
		r.j.progress = p
	}
	r.c.mu.Unlock()
}

func (r *reporter) CancelRequested() bool { return r.j.stop.Load() }
