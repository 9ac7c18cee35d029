package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/i474232898/weather-collector/internal/metrics"
	"github.com/i474232898/weather-collector/internal/retry"
)

const (
	DefaultProbeAttempts = 30
	DefaultProbeInterval = 2 * time.Second
)

// ErrProbeTimeout is returned when the queue never became reachable.
var ErrProbeTimeout = errors.New("queue readiness probe timed out")

// Checker performs one readiness check.
type Checker interface {
	CheckReady(ctx context.Context) error
}

// Probe polls a Checker until it succeeds or attempts run out.
type Probe struct {
	checker Checker
	policy  retry.Policy
	logger  *slog.Logger
}

// NewProbe creates a probe. Non-positive values fall back to the defaults.
func NewProbe(checker Checker, maxAttempts int, interval time.Duration, logger *slog.Logger) *Probe {
	if maxAttempts <= 0 {
		maxAttempts = DefaultProbeAttempts
	}
	if interval < 0 {
		interval = DefaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		checker: checker,
		policy:  retry.Policy{Attempts: maxAttempts, Delay: interval},
		logger:  logger,
	}
}

// Wait blocks until the queue is ready. It returns an error wrapping
// ErrProbeTimeout when attempts are exhausted, or ctx's error.
func (p *Probe) Wait(ctx context.Context) error {
	notify := func(err error, attempt int, next time.Duration) {
		p.logger.Warn("queue not ready yet",
			"attempt", attempt,
			"max_attempts", p.policy.Attempts,
			"retry_in", next,
			"err", err,
		)
	}

	attempts, err := retry.Do(ctx, p.policy, p.checker.CheckReady, notify)
	switch {
	case err == nil:
		metrics.QueueReady.Set(1)
		p.logger.Info("queue is ready", "attempts", attempts)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		metrics.QueueReady.Set(0)
		return fmt.Errorf("%w after %d attempts: %v", ErrProbeTimeout, attempts, err)
	}
}

// WaitUntilReady is Wait reduced to a boolean; failures are logged.
func (p *Probe) WaitUntilReady(ctx context.Context) bool {
	if err := p.Wait(ctx); err != nil {
		p.logger.Warn("queue readiness probe failed", "err", err)
		return false
	}
	return true
}
