package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/i474232898/weather-collector/internal/metrics"
	"github.com/i474232898/weather-collector/internal/retry"
	"github.com/i474232898/weather-collector/internal/status"
	"github.com/i474232898/weather-collector/internal/weather"
)

const (
	DefaultStartupDelay  = 10 * time.Second
	DefaultInterval      = time.Hour
	DefaultBackfillHours = 20
	DefaultCooldown      = 60 * time.Second
)

// Collector is the pipeline driven by the scheduler.
type Collector interface {
	CollectOnce(ctx context.Context) error
	Backfill(ctx context.Context, pastHours int) (weather.BackfillResult, error)
}

// ReadinessWaiter blocks until the queue answers or gives up.
type ReadinessWaiter interface {
	WaitUntilReady(ctx context.Context) bool
}

// Options controls the scheduler timing.
type Options struct {
	StartupDelay  time.Duration
	Interval      time.Duration
	BackfillHours int // 0 disables the bootstrap backfill
	Cooldown      time.Duration
}

var errPanic = errors.New("collection cycle panicked")

// Scheduler runs the startup sequence and then one collection cycle per
// interval until its context is cancelled.
type Scheduler struct {
	collector Collector
	probe     ReadinessWaiter
	tracker   *status.Tracker
	opts      Options
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a new Scheduler. probe may be nil to skip the readiness wait.
func New(collector Collector, probe ReadinessWaiter, tracker *status.Tracker, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.StartupDelay < 0 {
		opts.StartupDelay = 0
	}
	if tracker == nil {
		tracker = status.NewTracker("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		collector: collector,
		probe:     probe,
		tracker:   tracker,
		opts:      opts,
		logger:    logger,
		sleep:     retry.Sleep,
	}
}

// Run blocks until ctx is cancelled and then returns nil. Cycle failures
// never stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.tracker.SetState(status.StateShuttingDown)

	s.tracker.SetState(status.StateStarting)
	s.logger.Info("weather collector starting",
		"startup_delay", s.opts.StartupDelay,
		"interval", s.opts.Interval,
		"backfill_hours", s.opts.BackfillHours,
	)
	if err := s.sleep(ctx, s.opts.StartupDelay); err != nil {
		return s.stopped()
	}

	if s.probe != nil {
		ready := s.probe.WaitUntilReady(ctx)
		s.tracker.SetQueueReady(ready)
		if ctx.Err() != nil {
			return s.stopped()
		}
		if !ready {
			s.logger.Warn("queue not reachable, continuing; publishes will retry")
		}
	}

	s.bootstrap(ctx)
	if ctx.Err() != nil {
		return s.stopped()
	}

	s.tracker.SetState(status.StateCollecting)
	for {
		wait := s.collect(ctx)
		if ctx.Err() != nil {
			return s.stopped()
		}
		if err := s.sleep(ctx, wait); err != nil {
			return s.stopped()
		}
	}
}

func (s *Scheduler) bootstrap(ctx context.Context) {
	if s.opts.BackfillHours <= 0 {
		s.logger.Info("historical backfill disabled")
		return
	}

	s.tracker.SetState(status.StateBootstrapping)
	res, err := s.collector.Backfill(ctx, s.opts.BackfillHours)
	s.tracker.RecordBackfill(res.Samples, res.Failed)

	switch {
	case err == nil:
	case errors.Is(err, weather.ErrHistoryUnsupported):
		s.logger.Info("source has no historical data, skipping backfill")
	case ctx.Err() != nil:
	default:
		s.logger.Error("historical backfill failed, skipping", "err", err)
	}
}

// collect runs one cycle and returns how long to wait before the next.
func (s *Scheduler) collect(ctx context.Context) time.Duration {
	err := s.runCycle(ctx)
	if ctx.Err() != nil {
		return 0
	}

	outcome := weather.Outcome(err)
	metrics.Cycles.WithLabelValues(outcome).Inc()
	s.tracker.RecordCycle(outcome, err)

	switch {
	case err == nil:
		s.logger.Info("collection cycle complete", "next_in", s.opts.Interval)
		return s.opts.Interval
	case weather.IsClassified(err):
		s.logger.Error("collection cycle failed", "outcome", outcome, "err", err, "next_in", s.opts.Interval)
		return s.opts.Interval
	default:
		s.logger.Error("unexpected error in collection loop", "err", err, "retry_in", s.opts.Cooldown)
		return s.opts.Cooldown
	}
}

func (s *Scheduler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return s.collector.CollectOnce(ctx)
}

func (s *Scheduler) stopped() error {
	s.logger.Info("weather collector stopped by user")
	return nil
}
