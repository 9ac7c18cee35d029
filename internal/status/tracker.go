// Package status keeps an in-memory snapshot of what the collector is doing,
// served read-only by the ops endpoint.
package status

import (
	"sync"
	"time"
)

// State is the scheduler lifecycle stage.
type State string

const (
	StateStarting      State = "starting"
	StateBootstrapping State = "bootstrapping"
	StateCollecting    State = "collecting"
	StateShuttingDown  State = "shutting_down"
)

// Snapshot is a point-in-time copy of the tracker.
type Snapshot struct {
	State           State     `json:"state"`
	Provider        string    `json:"provider"`
	QueueReady      bool      `json:"queueReady"`
	StartedAt       time.Time `json:"startedAt"`
	LastCycleAt     time.Time `json:"lastCycleAt"`
	LastOutcome     string    `json:"lastOutcome,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
	Cycles          int       `json:"cycles"`
	FailedCycles    int       `json:"failedCycles"`
	BackfillSamples int       `json:"backfillSamples"`
	BackfillFailed  int       `json:"backfillFailed"`
}

// Tracker is a concurrency-safe status holder.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker in the starting state.
func NewTracker(provider string) *Tracker {
	t := &Tracker{now: time.Now}
	t.snap = Snapshot{
		State:     StateStarting,
		Provider:  provider,
		StartedAt: t.now().UTC(),
	}
	return t
}

// SetState records a lifecycle transition.
func (t *Tracker) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.State = s
}

// SetQueueReady records the readiness probe result.
func (t *Tracker) SetQueueReady(ready bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.QueueReady = ready
}

// RecordBackfill stores bootstrap totals.
func (t *Tracker) RecordBackfill(samples, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.BackfillSamples = samples
	t.snap.BackfillFailed = failed
}

// RecordCycle stores the outcome of one collection cycle.
func (t *Tracker) RecordCycle(outcome string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Cycles++
	t.snap.LastCycleAt = t.now().UTC()
	t.snap.LastOutcome = outcome
	t.snap.LastError = ""
	if err != nil {
		t.snap.FailedCycles++
		t.snap.LastError = err.Error()
	}
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
