package weather

import (
	"context"
)

// Source abstracts a weather data source (Open-Meteo, OpenWeatherMap).
type Source interface {
	Kind() ProviderKind
	FetchCurrent(ctx context.Context) (RawPayload, error)
}

// HistoricalSource is implemented by sources that can return the last
// pastHours hourly samples in a single request.
type HistoricalSource interface {
	Source
	FetchHistorical(ctx context.Context, pastHours int) (RawPayload, error)
}

// Publisher is the contract the queue layer must satisfy.
type Publisher interface {
	// Publish delivers rec durably, retrying internally. A *PublishError is
	// returned once all attempts are exhausted.
	Publish(ctx context.Context, rec WeatherRecord) error
	// CheckReady performs a single connectivity probe without retrying.
	CheckReady(ctx context.Context) error
}
