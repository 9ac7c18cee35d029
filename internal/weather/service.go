package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/i474232898/weather-collector/internal/metrics"
	"github.com/i474232898/weather-collector/internal/retry"
)

// ErrHistoryUnsupported is returned by Backfill when the configured source
// cannot serve historical data.
var ErrHistoryUnsupported = errors.New("source does not support historical data")

// DefaultSampleDelay spaces out backfill publishes.
const DefaultSampleDelay = 200 * time.Millisecond

// Service runs the fetch -> normalize -> publish pipeline.
type Service struct {
	source      Source
	normalizer  *Normalizer
	publisher   Publisher
	logger      *slog.Logger
	sampleDelay time.Duration
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithSampleDelay sets the pause between backfill samples.
func WithSampleDelay(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.sampleDelay = d
	}
}

// NewService creates a new Service.
func NewService(source Source, normalizer *Normalizer, publisher Publisher, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		source:      source,
		normalizer:  normalizer,
		publisher:   publisher,
		logger:      logger,
		sampleDelay: DefaultSampleDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CollectOnce runs a single cycle. The returned error is a *FetchError,
// *NormalizeError or *PublishError for expected failures.
func (s *Service) CollectOnce(ctx context.Context) error {
	kind := s.source.Kind()
	s.logger.Info("starting weather data collection", "provider", kind)

	raw, err := s.source.FetchCurrent(ctx)
	if err != nil {
		return err
	}

	rec, err := s.normalizer.Normalize(raw, kind)
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, rec); err != nil {
		return err
	}

	s.logger.Info("weather data collected and sent",
		"provider", kind,
		"temperature", rec.Temperature,
		"humidity", rec.Humidity,
		"condition", rec.Condition,
		"timestamp", rec.Timestamp,
	)
	return nil
}

// BackfillResult summarises a Backfill run.
type BackfillResult struct {
	Samples   int
	Published int
	Failed    int
}

// Backfill fetches the last pastHours hourly samples and publishes each one
// in chronological order. A failing sample is logged and skipped. The error
// is non-nil only when the history could not be fetched or read at all, or
// when ctx was cancelled.
func (s *Service) Backfill(ctx context.Context, pastHours int) (BackfillResult, error) {
	var res BackfillResult

	hs, ok := s.source.(HistoricalSource)
	if !ok {
		return res, ErrHistoryUnsupported
	}

	s.logger.Info("fetching historical weather data", "provider", hs.Kind(), "past_hours", pastHours)
	raw, err := hs.FetchHistorical(ctx, pastHours)
	if err != nil {
		return res, err
	}

	indices, err := s.normalizer.HourlyIndices(raw)
	if err != nil {
		return res, err
	}
	res.Samples = len(indices)

	for n, i := range indices {
		if n > 0 {
			if err := retry.Sleep(ctx, s.sampleDelay); err != nil {
				return res, fmt.Errorf("backfill interrupted: %w", err)
			}
		}

		if err := s.backfillSample(ctx, raw, i); err != nil {
			res.Failed++
			metrics.BackfillSamples.WithLabelValues(Outcome(err)).Inc()
			s.logger.Warn("skipping historical sample", "index", i, "err", err)
			continue
		}
		res.Published++
		metrics.BackfillSamples.WithLabelValues("ok").Inc()
	}

	s.logger.Info("historical backfill finished",
		"samples", res.Samples,
		"published", res.Published,
		"failed", res.Failed,
	)
	return res, nil
}

func (s *Service) backfillSample(ctx context.Context, raw RawPayload, i int) error {
	rec, err := s.normalizer.NormalizeHourly(raw, i)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, rec)
}
