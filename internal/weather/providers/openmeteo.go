package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-collector/internal/weather"
)

const (
	openMeteoCurrentFields = "temperature_2m,relative_humidity_2m,wind_speed_10m,weather_code,pressure_msl,apparent_temperature"
	openMeteoRainField     = "precipitation_probability"
)

var _ weather.HistoricalSource = (*OpenMeteoProvider)(nil)

// OpenMeteoProvider implements weather.HistoricalSource for Open-Meteo.
// It is coordinate based and needs no API key.
type OpenMeteoProvider struct {
	baseURL  string
	loc      weather.Location
	timezone string
	client   *http.Client
	circuit  *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, loc weather.Location, timezone string) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		baseURL:  "https://api.open-meteo.com/v1/forecast",
		loc:      loc,
		timezone: timezone,
		client:   client,
		circuit:  newCircuitBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Kind() weather.ProviderKind {
	return weather.ProviderOpenMeteo
}

// FetchCurrent returns current conditions plus the hourly precipitation
// probability forecast.
func (p *OpenMeteoProvider) FetchCurrent(ctx context.Context) (weather.RawPayload, error) {
	values := p.baseQuery()
	values.Set("current", openMeteoCurrentFields)
	values.Set("hourly", openMeteoRainField)

	return getJSON(ctx, p.client, p.circuit, p.Kind(), p.url(values))
}

// FetchHistorical returns the last pastHours hourly samples with the same
// fields as FetchCurrent, as parallel arrays under "hourly".
func (p *OpenMeteoProvider) FetchHistorical(ctx context.Context, pastHours int) (weather.RawPayload, error) {
	if pastHours <= 0 {
		return nil, &weather.FetchError{Provider: p.Kind(), Err: fmt.Errorf("past hours must be positive, got %d", pastHours)}
	}

	values := p.baseQuery()
	values.Set("hourly", openMeteoCurrentFields+","+openMeteoRainField)
	values.Set("past_hours", strconv.Itoa(pastHours))
	values.Set("forecast_hours", "0")

	return getJSON(ctx, p.client, p.circuit, p.Kind(), p.url(values))
}

func (p *OpenMeteoProvider) baseQuery() url.Values {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(p.loc.Latitude, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(p.loc.Longitude, 'f', -1, 64))
	if p.timezone != "" {
		values.Set("timezone", p.timezone)
	}
	return values
}

func (p *OpenMeteoProvider) url(values url.Values) string {
	return fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
}
