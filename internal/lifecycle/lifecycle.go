package lifecycle

import (
	"log"
	"sync"
)

// Tracker holds the process-wide job counters and log buffer. All access
// goes through one mutex; nothing blocking happens while it is held.
type Tracker struct {
	mu       sync.Mutex
	logs     []string
	started  int
	finished int
}

// Stats is a point-in-time copy of the tracker state.
type Stats struct {
	Logs         []string `json:"logs"`
	StartedJobs  int      `json:"started_jobs"`
	FinishedJobs int      `json:"finished_jobs"`
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// MarkStarted increments the started-jobs counter.
func (t *Tracker) MarkStarted() {
	t.mu.Lock()
	t.started++
	t.mu.Unlock()
}

// MarkFinished increments the finished-jobs counter.
func (t *Tracker) MarkFinished() {
	t.mu.Lock()
	t.finished++
	t.mu.Unlock()
}

// Log appends msg to the buffer and forwards it to the process logger.
// The buffer is append-only for the life of the process.
func (t *Tracker) Log(msg string) {
	t.mu.Lock()
	t.logs = append(t.logs, msg)
	t.mu.Unlock()
	log.Print(msg)
}

// Snapshot returns a consistent copy of the logs and counters. The
// returned slice is owned by the caller.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	logs := make([]string, len(t.logs))
	copy(logs, t.logs)
	return Stats{
		Logs:         logs,
		StartedJobs:  t.started,
		FinishedJobs: t.finished,
	}
}
