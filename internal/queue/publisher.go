// Package queue delivers weather records to a durable broker queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/i474232898/weather-collector/internal/metrics"
	"github.com/i474232898/weather-collector/internal/retry"
	"github.com/i474232898/weather-collector/internal/weather"
)

const (
	// DefaultAttempts is the number of publish attempts per record.
	DefaultAttempts = 3
	// DefaultRetryDelay is the wait between publish attempts.
	DefaultRetryDelay = 5 * time.Second
	// DefaultDialTimeout bounds a single broker connect.
	DefaultDialTimeout = 10 * time.Second

	contentType = "application/json"
	appID       = "weather-collector"
)

var (
	// ErrEmptyQueue indicates that the queue name is missing.
	ErrEmptyQueue = errors.New("empty queue name")
	// ErrNoBrokers indicates that no broker address was configured.
	ErrNoBrokers = errors.New("no broker addresses configured")
)

// Option customises a publisher.
type Option func(*options)

type options struct {
	policy      retry.Policy
	dialTimeout time.Duration
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		policy:      retry.Policy{Attempts: DefaultAttempts, Delay: DefaultRetryDelay},
		dialTimeout: DefaultDialTimeout,
		logger:      slog.Default(),
	}
}

// WithRetryPolicy overrides the publish retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithDialTimeout overrides the broker connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// encode renders rec as the JSON message body.
func encode(queue string, rec weather.WeatherRecord) ([]byte, error) {
	if rec.RawData == nil {
		rec.RawData = map[string]any{}
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, &weather.PublishError{Queue: queue, Attempts: 0, Err: fmt.Errorf("encode record: %w", err)}
	}
	return body, nil
}

// publishWithRetry runs attempt under the configured policy and converts
// exhaustion into a *weather.PublishError.
func publishWithRetry(ctx context.Context, backend, queue string, o options, attempt func(ctx context.Context) error) error {
	op := func(ctx context.Context) error {
		err := attempt(ctx)
		metrics.PublishAttempts.WithLabelValues(backend, metrics.Result(err)).Inc()
		return err
	}
	notify := func(err error, n int, next time.Duration) {
		o.logger.Warn("publish attempt failed",
			"backend", backend,
			"queue", queue,
			"attempt", n,
			"max_attempts", o.policy.Attempts,
			"retry_in", next,
			"err", err,
		)
	}

	attempts, err := retry.Do(ctx, o.policy, op, notify)
	if err != nil {
		return &weather.PublishError{Queue: queue, Attempts: attempts, Err: err}
	}
	o.logger.Info("message sent to queue", "backend", backend, "queue", queue, "attempts", attempts)
	return nil
}
