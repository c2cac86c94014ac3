package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LineTimeLayout prefixes every job log line.
const LineTimeLayout = "2006-01-02 15:04:05"

// DefaultCapacity is the number of lines a RingLog keeps by default.
const DefaultCapacity = 100

// RingLog keeps the most recent capacity lines, oldest first.
// Safe for concurrent use.
type RingLog struct {
	mu       sync.Mutex
	lines    []string
	capacity int
	now      func() time.Time
}

// NewRingLog creates a log holding at most capacity lines (<= 0 uses DefaultCapacity).
func NewRingLog(capacity int) *RingLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingLog{capacity: capacity, now: time.Now}
}

// Append adds "[<timestamp>] msg", evicting the oldest line when full.
func (r *RingLog) Append(msg string) {
	line := fmt.Sprintf("[%s] %s", r.now().Format(LineTimeLayout), msg)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) >= r.capacity {
		copy(r.lines, r.lines[len(r.lines)-r.capacity+1:])
		r.lines = r.lines[:r.capacity-1]
	}
	r.lines = append(r.lines, line)
}

// Lines returns a copy of the buffered lines.
func (r *RingLog) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Clear drops all lines.
func (r *RingLog) Clear() {
	r.mu.Lock()
	r.lines = nil
	r.mu.Unlock()
}

// BufferHook copies log entries at or above a level into a RingLog.
type BufferHook struct {
	sink   *RingLog
	levels []logrus.Level
}

// NewBufferHook builds a hook for entries at minLevel or more severe.
func NewBufferHook(sink *RingLog, minLevel logrus.Level) *BufferHook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &BufferHook{sink: sink, levels: levels}
}

func (h *BufferHook) Levels() []logrus.Level { return h.levels }

func (h *BufferHook) Fire(entry *logrus.Entry) error {
	msg := entry.Message
	switch {
	case entry.Level <= logrus.ErrorLevel:
		msg = "ERROR: " + msg
	case entry.Level == logrus.WarnLevel:
		msg = "WARNING: " + msg
	}
	h.sink.Append(msg)
	return nil
}
