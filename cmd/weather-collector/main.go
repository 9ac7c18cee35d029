package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/i474232898/weather-collector/internal/api/http"
	"github.com/i474232898/weather-collector/internal/config"
	"github.com/i474232898/weather-collector/internal/logging"
	"github.com/i474232898/weather-collector/internal/queue"
	"github.com/i474232898/weather-collector/internal/scheduler"
	"github.com/i474232898/weather-collector/internal/status"
	"github.com/i474232898/weather-collector/internal/weather"
	"github.com/i474232898/weather-collector/internal/weather/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := logging.Init(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	loc := cfg.Location()
	source, err := providers.New(cfg.ProviderKind(), httpClient, providers.Settings{
		Location: loc,
		Timezone: cfg.Timezone,
		APIKey:   cfg.OpenWeatherAPIKey,
	})
	if err != nil {
		logger.Error("failed to create weather source", "err", err)
		os.Exit(1)
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		logger.Error("failed to create queue publisher", "err", err)
		os.Exit(1)
	}

	normalizer := weather.NewNormalizer(loc, logger)
	service := weather.NewService(source, normalizer, publisher, logger)
	probe := queue.NewProbe(publisher, queue.DefaultProbeAttempts, queue.DefaultProbeInterval, logger)
	tracker := status.NewTracker(string(source.Kind()))

	sched := scheduler.New(service, probe, tracker, scheduler.Options{
		StartupDelay:  cfg.StartupDelay,
		Interval:      cfg.CollectionInterval(),
		BackfillHours: cfg.BackfillHours,
		Cooldown:      scheduler.DefaultCooldown,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.HTTPAddr != "" {
		app := httpapi.NewApp(tracker)
		go func() {
			logger.Info("ops endpoint listening", "addr", cfg.HTTPAddr)
			if err := app.Listen(cfg.HTTPAddr); err != nil {
				logger.Error("ops endpoint stopped", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				logger.Error("error during shutdown", "err", err)
			}
		}()
	}

	logger.Info("weather collector configured",
		"provider", source.Kind(),
		"coordinates", loc.Coordinates(),
		"queue_backend", cfg.QueueBackend,
		"queue", cfg.QueueName,
	)
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped", "err", err)
	}
}

type readyPublisher interface {
	weather.Publisher
	queue.Checker
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (readyPublisher, error) {
	opts := []queue.Option{queue.WithLogger(logger)}

	switch cfg.QueueBackend {
	case config.BackendRabbitMQ:
		p, err := queue.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.QueueName, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.BackendKafka:
		p, err := queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.QueueName, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.QueueBackend)
	}
}
