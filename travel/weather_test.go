package travel

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weatherServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// hourlyPayload builds a forecast body with n entries starting at start,
// one hour apart, fixed temperature and precipitation probability.
func hourlyPayload(n int, start time.Time, temp, precip int) string {
	var entries []string
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Hour).Format("2006-01-02T15:04:05Z")
		entries = append(entries, fmt.Sprintf(
			`{"time":"%s","values":{"temperature":%d,"precipitationProbability":%d,"weatherCode":1000}}`,
			ts, temp, precip,
		))
	}
	return fmt.Sprintf(`{"timelines":{"hourly":[%s]}}`, strings.Join(entries, ","))
}

func TestHourlyWeather_MissingCredential(t *testing.T) {
	c := NewWeatherClient(WeatherConfig{})
	out := c.HourlyWeather(context.Background(), "Beijing")
	assert.Equal(t, missingWeatherKeyMessage, out)
}

func TestHourlyWeather_TwelveLineWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	srv := weatherServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Dali", q.Get("location"))
		assert.Equal(t, "k", q.Get("apikey"))
		assert.Equal(t, "1h", q.Get("timesteps"))
		assert.Equal(t, "metric", q.Get("units"))
		fmt.Fprint(w, hourlyPayload(15, start, 22, 10))
	})

	c := NewWeatherClient(WeatherConfig{APIKey: "k", BaseURL: srv.URL})
	out := c.HourlyWeather(context.Background(), "Dali")

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 12)
	assert.Contains(t, lines[0], "14:00")
	assert.Contains(t, lines[0], "22")
	assert.Contains(t, lines[0], "10%")
}

func TestHourlyWeather_Chronological(t *testing.T) {
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	srv := weatherServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, hourlyPayload(12, start, 18, 40))
	})

	c := NewWeatherClient(WeatherConfig{APIKey: "k", BaseURL: srv.URL})
	out := c.HourlyWeather(context.Background(), "Shanghai")

	var prev string
	for _, line := range strings.Split(out, "\n") {
		timeOfDay := strings.TrimPrefix(strings.SplitN(line, " ", 2)[0], "⏰")
		assert.GreaterOrEqual(t, timeOfDay, prev)
		prev = timeOfDay
	}
}

func TestHourlyWeather_PrecipitationDefaultsToZero(t *testing.T) {
	srv := weatherServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"timelines":{"hourly":[{"time":"2024-01-01T09:00:00Z","values":{"temperature":5}}]}}`)
	})

	c := NewWeatherClient(WeatherConfig{APIKey: "k", BaseURL: srv.URL})
	out := c.HourlyWeather(context.Background(), "Harbin")
	assert.Contains(t, out, "0%")
	assert.Contains(t, out, "09:00")
}

func TestHourlyWeather_MalformedResponse(t *testing.T) {
	srv := weatherServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code":401001,"message":"invalid api key"}`)
	})

	c := NewWeatherClient(WeatherConfig{APIKey: "bad", BaseURL: srv.URL})
	out := c.HourlyWeather(context.Background(), "Beijing")
	assert.Contains(t, out, "invalid api key")
}

func TestHourlyWeather_UnknownErrorFallback(t *testing.T) {
	srv := weatherServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	c := NewWeatherClient(WeatherConfig{APIKey: "k", BaseURL: srv.URL})
	out := c.HourlyWeather(context.Background(), "Beijing")
	assert.Contains(t, out, "unknown error")
}

func TestHourlyWeather_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewWeatherClient(WeatherConfig{APIKey: "k", BaseURL: srv.URL, Attempts: 1})
	out := c.HourlyWeather(context.Background(), "Beijing")
	assert.Contains(t, out, "Weather lookup error")
}

func TestHourlyWeather_Idempotent(t *testing.T) {
	start := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	srv := weatherServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, hourlyPayload(6, start, 12, 55))
	})

	c := NewWeatherClient(WeatherConfig{APIKey: "k", BaseURL: srv.URL})
	first := c.HourlyWeather(context.Background(), "Kyoto")
	second := c.HourlyWeather(context.Background(), "Kyoto")
	assert.Equal(t, first, second)
}

func TestWeatherTool_Declaration(t *testing.T) {
	c := NewWeatherClient(WeatherConfig{APIKey: "k"})
	wt := c.Tool()

	assert.Equal(t, WeatherToolName, wt.Name())
	params := wt.Parameters()
	props := params["properties"].(map[string]any)
	assert.Contains(t, props, "location")
	assert.Equal(t, []string{"location"}, params["required"])
}

func TestWeatherTool_CallThroughRegistryShape(t *testing.T) {
	start := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	srv := weatherServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, hourlyPayload(3, start, 22, 10))
	})

	c := NewWeatherClient(WeatherConfig{APIKey: "k", BaseURL: srv.URL})
	wt := c.Tool()

	tc := newTestToolContext(t)
	result, err := wt.Call(tc, map[string]any{"location": "Dali"})
	require.NoError(t, err)
	assert.Contains(t, result.(string), "14:00")
}
