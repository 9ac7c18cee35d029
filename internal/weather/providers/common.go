package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-collector/internal/metrics"
	"github.com/i474232898/weather-collector/internal/weather"
)

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errMissingAPIKey = errors.New("api key is not configured")
	errEmptyBody     = errors.New("empty response body")
)

// Settings carries what the providers need from configuration.
type Settings struct {
	Location weather.Location
	Timezone string
	APIKey   string
}

// New builds the source for kind. Only one source is active per process.
func New(kind weather.ProviderKind, client *http.Client, s Settings) (weather.Source, error) {
	switch kind {
	case weather.ProviderOpenMeteo:
		return NewOpenMeteoProvider(client, s.Location, s.Timezone), nil
	case weather.ProviderOpenWeather:
		return NewOpenWeatherProvider(client, s.Location, s.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown weather provider %q", kind)
	}
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// getJSON issues a single GET through the circuit breaker and decodes the
// body as generic JSON. Every failure is returned as a *weather.FetchError.
func getJSON(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	kind weather.ProviderKind,
	rawURL string,
) (weather.RawPayload, error) {
	start := time.Now()
	payload, err := doGetJSON(ctx, client, cb, rawURL)
	metrics.FetchDuration.WithLabelValues(string(kind), metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &weather.FetchError{Provider: kind, Err: err}
	}
	return payload, nil
}

func doGetJSON(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, rawURL string) (weather.RawPayload, error) {
	if client == nil {
		return nil, errNoHTTPClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		// Handle rate limiting and server errors explicitly.
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%w: %d: %s", errUnexpected, resp.StatusCode, snippet)
		}

		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		var payload weather.RawPayload
		if decErr := dec.Decode(&payload); decErr != nil {
			if errors.Is(decErr, io.EOF) {
				return nil, errEmptyBody
			}
			return nil, fmt.Errorf("decode response: %w", decErr)
		}
		if payload == nil {
			return nil, errEmptyBody
		}
		return payload, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return nil, err
	}

	payload, ok := result.(weather.RawPayload)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return payload, nil
}
