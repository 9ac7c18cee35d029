package status

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsCycles(t *testing.T) {
	tr := NewTracker("open-meteo")
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	snap := tr.Snapshot()
	assert.Equal(t, StateStarting, snap.State)
	assert.Equal(t, "open-meteo", snap.Provider)
	assert.Zero(t, snap.Cycles)

	tr.RecordCycle("publish_error", errors.New("broker down"))
	snap = tr.Snapshot()
	assert.Equal(t, 1, snap.Cycles)
	assert.Equal(t, 1, snap.FailedCycles)
	assert.Equal(t, "publish_error", snap.LastOutcome)
	assert.Equal(t, "broker down", snap.LastError)
	assert.Equal(t, fixed, snap.LastCycleAt)

	tr.RecordCycle("ok", nil)
	snap = tr.Snapshot()
	assert.Equal(t, 2, snap.Cycles)
	assert.Equal(t, 1, snap.FailedCycles)
	assert.Empty(t, snap.LastError, "a successful cycle clears the last error")
}

func TestTrackerStateAndBackfill(t *testing.T) {
	tr := NewTracker("open-meteo")

	tr.SetState(StateBootstrapping)
	tr.SetQueueReady(true)
	tr.RecordBackfill(20, 2)

	snap := tr.Snapshot()
	assert.Equal(t, StateBootstrapping, snap.State)
	assert.True(t, snap.QueueReady)
	assert.Equal(t, 20, snap.BackfillSamples)
	assert.Equal(t, 2, snap.BackfillFailed)
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker("openweather")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.RecordCycle("ok", nil)
		}()
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tr.Snapshot().Cycles)
}
