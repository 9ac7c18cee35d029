package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-collector/internal/weather"
)

var testLoc = weather.Location{Latitude: -22.9249, Longitude: -45.4625, City: "Pindamonhangaba", Country: "BR"}

// recordingServer answers every request with status and body and keeps the
// last query it saw.
func recordingServer(t *testing.T, status int, body string) (*httptest.Server, func() url.Values) {
	t.Helper()
	var (
		mu   sync.Mutex
		last url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		last = r.URL.Query()
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() url.Values {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func newOpenMeteo(srv *httptest.Server) *OpenMeteoProvider {
	p := NewOpenMeteoProvider(&http.Client{Timeout: 2 * time.Second}, testLoc, "America/Sao_Paulo")
	p.baseURL = srv.URL
	return p
}

func TestOpenMeteoFetchCurrentQuery(t *testing.T) {
	srv, last := recordingServer(t, http.StatusOK, `{"current": {"temperature_2m": 23.456, "weather_code": 2}}`)
	p := newOpenMeteo(srv)

	raw, err := p.FetchCurrent(context.Background())
	require.NoError(t, err)

	q := last()
	assert.Equal(t, "-22.9249", q.Get("latitude"))
	assert.Equal(t, "-45.4625", q.Get("longitude"))
	assert.Equal(t, openMeteoCurrentFields, q.Get("current"))
	assert.Equal(t, "precipitation_probability", q.Get("hourly"))
	assert.Equal(t, "America/Sao_Paulo", q.Get("timezone"))
	assert.Empty(t, q.Get("past_hours"))

	rec, err := weather.NewNormalizer(testLoc, nil).Normalize(raw, p.Kind())
	require.NoError(t, err)
	assert.Equal(t, 23.46, rec.Temperature)
	assert.Equal(t, "Partly Cloudy", rec.Condition)
}

func TestOpenMeteoFetchHistoricalQuery(t *testing.T) {
	srv, last := recordingServer(t, http.StatusOK, `{"hourly": {"time": ["2025-03-01T00:00"]}}`)
	p := newOpenMeteo(srv)

	raw, err := p.FetchHistorical(context.Background(), 20)
	require.NoError(t, err)
	assert.Contains(t, raw, "hourly")

	q := last()
	assert.Equal(t, "20", q.Get("past_hours"))
	assert.Equal(t, "0", q.Get("forecast_hours"))
	assert.Equal(t, openMeteoCurrentFields+",precipitation_probability", q.Get("hourly"))
	assert.Empty(t, q.Get("current"))
}

func TestOpenMeteoFetchHistoricalRejectsNonPositiveHours(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusOK, `{}`)
	_, err := newOpenMeteo(srv).FetchHistorical(context.Background(), 0)

	var fe *weather.FetchError
	assert.True(t, errors.As(err, &fe))
}

func TestFetchErrors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   error
	}{
		"server error":   {http.StatusBadGateway, `oops`, errServerError},
		"rate limited":   {http.StatusTooManyRequests, `{}`, errRateLimited},
		"client error":   {http.StatusBadRequest, `{"reason": "bad latitude"}`, errUnexpected},
		"malformed json": {http.StatusOK, `{"current": `, nil},
		"empty body":     {http.StatusOK, ``, errEmptyBody},
		"null body":      {http.StatusOK, `null`, errEmptyBody},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := recordingServer(t, tc.status, tc.body)

			_, err := newOpenMeteo(srv).FetchCurrent(context.Background())

			var fe *weather.FetchError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, weather.ProviderOpenMeteo, fe.Provider)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestFetchNetworkError(t *testing.T) {
	srv, _ := recordingServer(t, http.StatusOK, `{}`)
	p := newOpenMeteo(srv)
	srv.Close()

	_, err := p.FetchCurrent(context.Background())
	assert.Equal(t, "fetch_error", weather.Outcome(err))
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	p := newOpenMeteo(srv)

	for i := 0; i < 5; i++ {
		_, err := p.FetchCurrent(context.Background())
		require.ErrorIs(t, err, errServerError)
	}

	_, err := p.FetchCurrent(context.Background())
	assert.ErrorIs(t, err, errCircuitOpen)
	assert.Equal(t, int32(5), hits.Load(), "open circuit must not reach the provider")
}

func TestOpenWeatherFetchCurrentQuery(t *testing.T) {
	srv, last := recordingServer(t, http.StatusOK, `{"main": {"temp": 20}, "name": "Pindamonhangaba"}`)
	p := NewOpenWeatherProvider(http.DefaultClient, testLoc, "secret")
	p.baseURL = srv.URL

	raw, err := p.FetchCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Pindamonhangaba", raw["name"])

	q := last()
	assert.Equal(t, "Pindamonhangaba,BR", q.Get("q"))
	assert.Equal(t, "secret", q.Get("appid"))
	assert.Equal(t, "metric", q.Get("units"))
}

func TestOpenWeatherRequiresAPIKey(t *testing.T) {
	srv, last := recordingServer(t, http.StatusOK, `{}`)
	p := NewOpenWeatherProvider(http.DefaultClient, testLoc, "")
	p.baseURL = srv.URL

	_, err := p.FetchCurrent(context.Background())

	assert.ErrorIs(t, err, errMissingAPIKey)
	assert.Nil(t, last(), "no request is sent without a key")
}

func TestOpenWeatherHasNoHistory(t *testing.T) {
	var src weather.Source = NewOpenWeatherProvider(http.DefaultClient, testLoc, "k")
	_, ok := src.(weather.HistoricalSource)
	assert.False(t, ok)
}

func TestNewSelectsProvider(t *testing.T) {
	s := Settings{Location: testLoc, Timezone: "UTC", APIKey: "k"}

	src, err := New(weather.ProviderOpenMeteo, http.DefaultClient, s)
	require.NoError(t, err)
	assert.IsType(t, &OpenMeteoProvider{}, src)

	src, err = New(weather.ProviderOpenWeather, http.DefaultClient, s)
	require.NoError(t, err)
	assert.IsType(t, &OpenWeatherProvider{}, src)

	_, err = New("weatherapi", http.DefaultClient, s)
	assert.Error(t, err)
}
