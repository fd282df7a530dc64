package travel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tripmate-ai/tripmate/core"
	"github.com/tripmate-ai/tripmate/tool"
)

// DefaultWeatherBaseURL is the Tomorrow.io forecast endpoint.
const DefaultWeatherBaseURL = "https://api.tomorrow.io/v4/weather/forecast"

// maxForecastHours bounds the forecast window folded into the model prompt.
const maxForecastHours = 12

// missingWeatherKeyMessage is returned when no weather credential is configured.
const missingWeatherKeyMessage = "Error: weather API key is not configured."

// WeatherConfig configures a WeatherClient. Credentials are passed explicitly;
// the connector never reads the process environment.
type WeatherConfig struct {
	APIKey     string
	BaseURL    string       // Defaults to DefaultWeatherBaseURL
	HTTPClient *http.Client // Defaults to a client with a 15s timeout
	Attempts   uint         // Transport retry attempts, defaults to 3
}

// WeatherClient is a stateless connector for the Tomorrow.io hourly forecast
// API. Safe for concurrent use.
type WeatherClient struct {
	cfg WeatherConfig
}

// NewWeatherClient constructs a weather connector from explicit configuration.
func NewWeatherClient(cfg WeatherConfig) *WeatherClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWeatherBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = defaultHTTPClient()
	}
	return &WeatherClient{cfg: cfg}
}

// HourlyWeather fetches the hourly forecast for a free-text location and
// reduces it to at most 12 chronological lines, one per hour, each carrying
// local time of day, temperature in Celsius and precipitation probability.
// Weather condition codes are passed through uninterpreted. All failure modes
// return a descriptive string.
func (c *WeatherClient) HourlyWeather(ctx context.Context, location string) string {
	if c.cfg.APIKey == "" {
		return missingWeatherKeyMessage
	}

	q := url.Values{}
	q.Set("location", location)
	q.Set("apikey", c.cfg.APIKey)
	q.Set("timesteps", "1h")
	q.Set("units", "metric")

	body, err := fetchJSON(ctx, c.cfg.HTTPClient, c.cfg.Attempts, c.cfg.BaseURL+"?"+q.Encode())
	if err != nil {
		return fmt.Sprintf("Weather lookup error: %v", err)
	}

	data := gjson.ParseBytes(body)
	if !data.Get("timelines").Exists() {
		msg := data.Get("message").String()
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Sprintf("Weather request failed: %s", msg)
	}

	var lines []string
	for _, hour := range data.Get("timelines.hourly").Array() {
		if len(lines) >= maxForecastHours {
			break
		}
		lines = append(lines, formatHour(hour))
	}

	return strings.Join(lines, "\n")
}

// formatHour renders one forecast entry. Time of day is the first five
// characters after the ISO-8601 date/time separator; precipitation
// probability defaults to 0 when the provider omits it.
func formatHour(hour gjson.Result) string {
	timeOfDay := "??:??"
	if _, rest, found := strings.Cut(hour.Get("time").String(), "T"); found && len(rest) >= 5 {
		timeOfDay = rest[:5]
	}

	temp := "N/A"
	if t := hour.Get("values.temperature"); t.Exists() {
		temp = t.String()
	}

	rain := "0"
	if p := hour.Get("values.precipitationProbability"); p.Exists() {
		rain = p.String()
	}

	return fmt.Sprintf("⏰%s | 🌡️%s°C | ☔rain:%s%%", timeOfDay, temp, rain)
}

// WeatherToolName is the stable capability name under which the connector is
// registered, distinct from its method name.
const WeatherToolName = "hourly_weather"

const weatherToolDescription = "Get the hourly weather forecast for the next 12 hours at a location: " +
	"temperature, precipitation probability and conditions. " +
	"Location is a free-text place name; pinyin or English names are most reliable."

// Tool exposes the connector as a registered capability with validated
// argument binding.
func (c *WeatherClient) Tool() *tool.FunctionTool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{
				"type":        "string",
				"description": "City or place name, e.g. \"Beijing\", \"Dali\", \"Tokyo\"",
			},
		},
		"required": []string{"location"},
	}

	return tool.NewFunctionTool(
		WeatherToolName,
		weatherToolDescription,
		params,
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			location, _ := args["location"].(string)
			return c.HourlyWeather(tc.Context(), location), nil
		},
	)
}
