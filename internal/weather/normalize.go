package weather

import (
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/i474232898/weather-collector/internal/common"
)

// Normalizer maps provider payloads onto WeatherRecord. It holds no mutable
// state; the same input always yields the same record unless the payload
// lacks an observation time and the capture-time fallback is used.
type Normalizer struct {
	loc    Location
	now    func() time.Time
	logger *slog.Logger
}

// NormalizerOption customises a Normalizer.
type NormalizerOption func(*Normalizer)

// WithClock overrides the clock used for the capture-time fallback.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		n.now = now
	}
}

// NewNormalizer creates a Normalizer for the configured location.
func NewNormalizer(loc Location, logger *slog.Logger, opts ...NormalizerOption) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts a current-conditions payload of the given provider.
func (n *Normalizer) Normalize(raw RawPayload, kind ProviderKind) (WeatherRecord, error) {
	if raw == nil {
		return WeatherRecord{}, newNormalizeError(kind, "empty payload")
	}

	var (
		rec WeatherRecord
		err error
	)
	switch kind {
	case ProviderOpenMeteo:
		rec, err = n.normalizeOpenMeteo(raw)
	case ProviderOpenWeather:
		rec = n.normalizeOpenWeather(raw)
	default:
		err = newNormalizeError(kind, "unsupported provider")
	}
	if err != nil {
		return WeatherRecord{}, err
	}

	n.logger.Debug("normalized record",
		"provider", kind,
		"temperature", rec.Temperature,
		"humidity", rec.Humidity,
		"timestamp", rec.Timestamp,
	)
	return rec, nil
}

// NormalizeHourly converts sample i of an Open-Meteo historical payload. The
// sample is read across the parallel hourly arrays and handled exactly like
// a "current" object.
func (n *Normalizer) NormalizeHourly(raw RawPayload, i int) (WeatherRecord, error) {
	hourly, times, err := hourlyTimes(raw)
	if err != nil {
		return WeatherRecord{}, err
	}
	if i < 0 || i >= len(times) {
		return WeatherRecord{}, newNormalizeError(ProviderOpenMeteo, "hourly index %d out of range [0,%d)", i, len(times))
	}
	ts, ok := times[i].(string)
	if !ok || ts == "" {
		return WeatherRecord{}, newNormalizeError(ProviderOpenMeteo, "hourly sample %d has no time", i)
	}

	sample := map[string]any{"time": ts}
	for field, v := range hourly {
		if field == "time" {
			continue
		}
		values, ok := v.([]any)
		if !ok || i >= len(values) || values[i] == nil {
			continue
		}
		sample[field] = values[i]
	}

	rain, _ := number(sample["precipitation_probability"])
	rec := n.fromOpenMeteoSample(sample, rain)

	n.logger.Debug("normalized hourly sample",
		"provider", ProviderOpenMeteo,
		"index", i,
		"timestamp", rec.Timestamp,
	)
	return rec, nil
}

// HourlyIndices returns the indices of the hourly samples ordered by
// ascending observation time.
func (n *Normalizer) HourlyIndices(raw RawPayload) ([]int, error) {
	_, times, err := hourlyTimes(raw)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, _ := times[idx[a]].(string)
		tb, _ := times[idx[b]].(string)
		return ta < tb
	})
	return idx, nil
}

func hourlyTimes(raw RawPayload) (map[string]any, []any, error) {
	if raw == nil {
		return nil, nil, newNormalizeError(ProviderOpenMeteo, "empty payload")
	}
	hourly, ok := object(raw["hourly"])
	if !ok {
		return nil, nil, newNormalizeError(ProviderOpenMeteo, "missing hourly object")
	}
	times, ok := hourly["time"].([]any)
	if !ok {
		return nil, nil, newNormalizeError(ProviderOpenMeteo, "missing hourly.time array")
	}
	return hourly, times, nil
}

func (n *Normalizer) normalizeOpenMeteo(raw RawPayload) (WeatherRecord, error) {
	current, ok := object(raw["current"])
	if !ok {
		return WeatherRecord{}, newNormalizeError(ProviderOpenMeteo, "missing current object")
	}

	// Rain probability for the next hour.
	var rain float64
	if hourly, ok := object(raw["hourly"]); ok {
		if probs, ok := hourly["precipitation_probability"].([]any); ok && len(probs) > 0 {
			rain, _ = number(probs[0])
		}
	}

	return n.fromOpenMeteoSample(current, rain), nil
}

func (n *Normalizer) fromOpenMeteoSample(sample map[string]any, rain float64) WeatherRecord {
	condition := UnknownCondition
	if code, ok := number(sample["weather_code"]); ok {
		condition = ConditionForCode(int(code))
	}

	return WeatherRecord{
		Location:        n.loc.Coordinates(),
		Temperature:     round(sample["temperature_2m"]),
		Humidity:        round(sample["relative_humidity_2m"]),
		WindSpeed:       round(sample["wind_speed_10m"]),
		Condition:       condition,
		RainProbability: common.Round2(rain),
		Pressure:        round(sample["pressure_msl"]),
		FeelsLike:       round(sample["apparent_temperature"]),
		Timestamp:       n.timestamp(sample["time"]),
		RawData:         copyMap(sample),
	}
}

func (n *Normalizer) normalizeOpenWeather(raw RawPayload) WeatherRecord {
	main, _ := object(raw["main"])
	wind, _ := object(raw["wind"])

	condition := UnknownCondition
	if items, ok := raw["weather"].([]any); ok && len(items) > 0 {
		if first, ok := object(items[0]); ok {
			if desc, ok := first["description"].(string); ok && desc != "" {
				condition = common.Title(desc)
			}
		}
	}

	name, _ := raw["name"].(string)
	if name == "" {
		name = n.loc.City
	}

	// OpenWeather reports m/s in metric units.
	speed, _ := number(wind["speed"])

	ts := n.now().UTC().Format(time.RFC3339)
	if dt, ok := number(raw["dt"]); ok && dt > 0 {
		ts = time.Unix(int64(dt), 0).UTC().Format(time.RFC3339)
	}

	return WeatherRecord{
		Location:        name + ", " + n.loc.Country,
		Temperature:     round(main["temp"]),
		Humidity:        round(main["humidity"]),
		WindSpeed:       common.Round2(speed * 3.6),
		Condition:       condition,
		RainProbability: 0, // not offered by the free tier
		Pressure:        round(main["pressure"]),
		FeelsLike:       round(main["feels_like"]),
		Timestamp:       ts,
		RawData:         copyMap(raw),
	}
}

func (n *Normalizer) timestamp(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return n.now().UTC().Format(time.RFC3339)
}

func round(v any) float64 {
	f, _ := number(v)
	return common.Round2(f)
}

// number extracts a float from a decoded JSON value.
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func object(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case RawPayload:
		return m, true
	default:
		return nil, false
	}
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
