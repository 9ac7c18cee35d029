package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-collector/internal/status"
	"github.com/i474232898/weather-collector/internal/weather"
)

type fakeCollector struct {
	calls       []string
	cycleErrs   []error
	panicOn     int
	backfillErr error
	backfillRes weather.BackfillResult
}

func (c *fakeCollector) CollectOnce(context.Context) error {
	c.calls = append(c.calls, "collect")
	n := c.count("collect")
	if c.panicOn == n {
		panic("boom")
	}
	if n <= len(c.cycleErrs) {
		return c.cycleErrs[n-1]
	}
	return nil
}

func (c *fakeCollector) Backfill(_ context.Context, hours int) (weather.BackfillResult, error) {
	c.calls = append(c.calls, "backfill")
	return c.backfillRes, c.backfillErr
}

func (c *fakeCollector) count(name string) int {
	n := 0
	for _, call := range c.calls {
		if call == name {
			n++
		}
	}
	return n
}

type fakeProbe struct {
	ready bool
	calls *[]string
}

func (p fakeProbe) WaitUntilReady(context.Context) bool {
	*p.calls = append(*p.calls, "probe")
	return p.ready
}

// recordingSleep records requested waits and cancels ctx once stopAfter
// sleeps have been requested.
type recordingSleep struct {
	waits     []time.Duration
	stopAfter int
	cancel    context.CancelFunc
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	if len(r.waits) >= r.stopAfter {
		r.cancel()
		return ctx.Err()
	}
	return nil
}

func testOptions() Options {
	return Options{
		StartupDelay:  10 * time.Second,
		Interval:      time.Hour,
		BackfillHours: 20,
		Cooldown:      time.Minute,
	}
}

func newTestScheduler(c *fakeCollector, ready bool, opts Options, stopAfter int) (*Scheduler, *recordingSleep, *status.Tracker, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	tracker := status.NewTracker("open-meteo")
	s := New(c, fakeProbe{ready: ready, calls: &c.calls}, tracker, opts, nil)
	rs := &recordingSleep{stopAfter: stopAfter, cancel: cancel}
	s.sleep = rs.sleep
	return s, rs, tracker, ctx
}

func TestRunStartupSequence(t *testing.T) {
	c := &fakeCollector{backfillRes: weather.BackfillResult{Samples: 20, Published: 20}}
	s, rs, tracker, ctx := newTestScheduler(c, true, testOptions(), 3)

	require.NoError(t, s.Run(ctx))

	assert.Equal(t, []string{"probe", "backfill", "collect", "collect"}, c.calls)
	assert.Equal(t, []time.Duration{10 * time.Second, time.Hour, time.Hour}, rs.waits)

	snap := tracker.Snapshot()
	assert.Equal(t, status.StateShuttingDown, snap.State)
	assert.True(t, snap.QueueReady)
	assert.Equal(t, 20, snap.BackfillSamples)
	assert.Equal(t, 2, snap.Cycles)
}

func TestRunContinuesWhenProbeFails(t *testing.T) {
	c := &fakeCollector{}
	s, _, tracker, ctx := newTestScheduler(c, false, testOptions(), 2)

	require.NoError(t, s.Run(ctx))

	assert.Equal(t, []string{"probe", "backfill", "collect"}, c.calls)
	assert.False(t, tracker.Snapshot().QueueReady)
}

func TestRunSkipsBackfillWhenDisabled(t *testing.T) {
	c := &fakeCollector{}
	opts := testOptions()
	opts.BackfillHours = 0
	s, _, _, ctx := newTestScheduler(c, true, opts, 2)

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, []string{"probe", "collect"}, c.calls)
}

func TestRunBackfillFailureDoesNotStopCollection(t *testing.T) {
	for name, err := range map[string]error{
		"unsupported": weather.ErrHistoryUnsupported,
		"fetch":       &weather.FetchError{Provider: weather.ProviderOpenMeteo, Err: errors.New("503")},
	} {
		t.Run(name, func(t *testing.T) {
			c := &fakeCollector{backfillErr: err}
			s, _, _, ctx := newTestScheduler(c, true, testOptions(), 2)

			require.NoError(t, s.Run(ctx))
			assert.Equal(t, []string{"probe", "backfill", "collect"}, c.calls)
		})
	}
}

func TestClassifiedFailuresKeepNormalInterval(t *testing.T) {
	c := &fakeCollector{cycleErrs: []error{
		&weather.FetchError{Provider: weather.ProviderOpenMeteo, Err: errors.New("timeout")},
		&weather.PublishError{Queue: "weather-data", Attempts: 3, Err: errors.New("refused")},
	}}
	s, rs, tracker, ctx := newTestScheduler(c, true, testOptions(), 4)

	require.NoError(t, s.Run(ctx))

	assert.Equal(t, []time.Duration{10 * time.Second, time.Hour, time.Hour, time.Hour}, rs.waits)
	snap := tracker.Snapshot()
	assert.Equal(t, 3, snap.Cycles)
	assert.Equal(t, 2, snap.FailedCycles)
	assert.Equal(t, "ok", snap.LastOutcome)
}

func TestUnexpectedErrorTriggersCooldown(t *testing.T) {
	c := &fakeCollector{cycleErrs: []error{errors.New("nil map write")}}
	s, rs, tracker, ctx := newTestScheduler(c, true, testOptions(), 3)

	require.NoError(t, s.Run(ctx))

	assert.Equal(t, []time.Duration{10 * time.Second, time.Minute, time.Hour}, rs.waits)
	assert.Equal(t, 2, tracker.Snapshot().Cycles)
}

func TestPanicInCycleIsRecovered(t *testing.T) {
	c := &fakeCollector{panicOn: 1}
	s, rs, tracker, ctx := newTestScheduler(c, true, testOptions(), 3)

	require.NoError(t, s.Run(ctx))

	assert.Equal(t, []time.Duration{10 * time.Second, time.Minute, time.Hour}, rs.waits)
	assert.Equal(t, 2, c.count("collect"))
	assert.Equal(t, "ok", tracker.Snapshot().LastOutcome)
}

func TestRunStopsDuringStartupDelay(t *testing.T) {
	c := &fakeCollector{}
	s, rs, tracker, ctx := newTestScheduler(c, true, testOptions(), 1)

	require.NoError(t, s.Run(ctx))

	assert.Empty(t, c.calls)
	assert.Len(t, rs.waits, 1)
	assert.Equal(t, status.StateShuttingDown, tracker.Snapshot().State)
}

func TestRunWithRealSleepReturnsPromptly(t *testing.T) {
	c := &fakeCollector{}
	s := New(c, nil, nil, Options{StartupDelay: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
