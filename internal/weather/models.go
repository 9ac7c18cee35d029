package weather

import "strconv"

// ProviderKind identifies which upstream provider produced a raw payload.
type ProviderKind string

const (
	ProviderOpenMeteo   ProviderKind = "open-meteo"
	ProviderOpenWeather ProviderKind = "openweather"
)

// RawPayload is a provider response decoded as generic JSON. Numbers are
// held as json.Number so re-encoding keeps their original form.
type RawPayload map[string]any

// Location represents the single place this collector tracks.
// Coordinates drive Open-Meteo, City/Country drive OpenWeather.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
}

// Coordinates renders the coordinate description used in records.
func (l Location) Coordinates() string {
	return "Lat: " + formatCoord(l.Latitude) + ", Lon: " + formatCoord(l.Longitude)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WeatherRecord is the canonical message published to the queue.
// All fields are always encoded; RawData is never nil.
type WeatherRecord struct {
	Location        string         `json:"location"`
	Temperature     float64        `json:"temperature"`
	Humidity        float64        `json:"humidity"`
	WindSpeed       float64        `json:"windSpeed"`
	Condition       string         `json:"condition"`
	RainProbability float64        `json:"rainProbability"`
	Pressure        float64        `json:"pressure"`
	FeelsLike       float64        `json:"feelsLike"`
	Timestamp       string         `json:"timestamp"`
	RawData         map[string]any `json:"rawData"`
}
