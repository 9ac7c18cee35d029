package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-collector/internal/weather"
)

var _ weather.Source = (*OpenWeatherProvider)(nil)

// OpenWeatherProvider implements weather.Source for OpenWeatherMap.
// It is city based and has no historical endpoint on the free tier.
type OpenWeatherProvider struct {
	apiKey  string
	baseURL string
	loc     weather.Location
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, loc weather.Location, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		loc:     loc,
		client:  client,
		circuit: newCircuitBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Kind() weather.ProviderKind {
	return weather.ProviderOpenWeather
}

func (p *OpenWeatherProvider) FetchCurrent(ctx context.Context) (weather.RawPayload, error) {
	if p.apiKey == "" {
		return nil, &weather.FetchError{Provider: p.Kind(), Err: errMissingAPIKey}
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")

	// city,country
	q := p.loc.City
	if p.loc.Country != "" {
		q = fmt.Sprintf("%s,%s", p.loc.City, p.loc.Country)
	}
	values.Set("q", q)

	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
	return getJSON(ctx, p.client, p.circuit, p.Kind(), u)
}
