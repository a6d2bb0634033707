// Package status holds the shared activity snapshot read by the CLI, the
// HTTP API, and MCP clients. Writers swap a fresh immutable snapshot;
// readers never take a lock, so a status query is never stuck behind a slow
// capture in progress.
package status

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is an atomically consistent projection of recent activity.
// Observers always see a complete snapshot, never a partial update.
type Snapshot struct {
	LastCaptureTime       time.Time `json:"last_capture_time"`
	LastError             string    `json:"last_error,omitempty"`
	LastTarget            string    `json:"last_target,omitempty"`
	CurrentDocument       string    `json:"current_document,omitempty"`
	RowsInCurrentDocument int       `json:"rows_in_current_document"`

	PollerRunning  bool   `json:"poller_running"`
	PollerTarget   string `json:"poller_target,omitempty"`
	PollerInterval string `json:"poller_interval,omitempty"`
}

// Reporter publishes snapshots. Reads are wait-free; writes are serialized
// internally so the coordinator and the poller lifecycle can both publish.
type Reporter struct {
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

func NewReporter() *Reporter {
	r := &Reporter{}
	r.cur.Store(&Snapshot{})
	return r
}

// Snapshot returns the current snapshot by value.
func (r *Reporter) Snapshot() Snapshot {
	return *r.cur.Load()
}

// Update applies mutate to a copy of the current snapshot and swaps the copy
// in. Observers never see a half-applied mutation.
func (r *Reporter) Update(mutate func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := *r.cur.Load()
	mutate(&next)
	r.cur.Store(&next)
}
