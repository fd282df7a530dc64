package tripmate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripmate-ai/tripmate/chat"
	"github.com/tripmate-ai/tripmate/config"
	"github.com/tripmate-ai/tripmate/core"
	"github.com/tripmate-ai/tripmate/model"
	"github.com/tripmate-ai/tripmate/travel"
)

const placesPayload = `{
  "status": "1",
  "info": "OK",
  "pois": [
    {"name": "喜洲粑粑老店", "address": "喜洲古镇四方街", "type": "餐饮服务", "biz_ext": {"rating": "4.7", "cost": "25.00"}},
    {"name": "大理古城", "address": "大理市一塔路", "type": "风景名胜", "biz_ext": {"rating": "4.5", "cost": []}}
  ]
}`

const weatherPayload = `{
  "timelines": {
    "hourly": [
      {"time": "2024-05-01T09:00:00+08:00", "values": {"temperature": 18, "precipitationProbability": 5}},
      {"time": "2024-05-01T10:00:00+08:00", "values": {"temperature": 20, "precipitationProbability": 10}}
    ]
  }
}`

// planAnswer covers all four recommendation dimensions.
const planAnswer = `为您定制的大理轻松亲子方案：
衣：早晚温差大，备一件薄外套。
食：推荐喜洲粑粑老店，人均25元。
住/玩：住大理古城附近，上午逛古城，下午洱海边散步。
行：景点间建议打车，带孩子更省心。`

type connectorServers struct {
	placesHits  atomic.Int64
	weatherHits atomic.Int64
	places      *httptest.Server
	weather     *httptest.Server
}

func startConnectorServers(t *testing.T) *connectorServers {
	t.Helper()
	cs := &connectorServers{}
	cs.places = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.placesHits.Add(1)
		w.Write([]byte(placesPayload))
	}))
	cs.weather = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.weatherHits.Add(1)
		w.Write([]byte(weatherPayload))
	}))
	t.Cleanup(cs.places.Close)
	t.Cleanup(cs.weather.Close)
	return cs
}

func testConfig(cs *connectorServers) *config.Config {
	cfg := config.Default()
	cfg.Model.Provider = "mock"
	cfg.Places = config.PlacesConfig{APIKey: "test-key", BaseURL: cs.places.URL}
	cfg.Weather = config.WeatherConfig{APIKey: "test-key", BaseURL: cs.weather.URL}
	return cfg
}

func TestAssistant_RegistersBothConnectors(t *testing.T) {
	cs := startConnectorServers(t)
	asst, err := New(testConfig(cs))
	require.NoError(t, err)
	defer asst.Close()

	names := asst.Tools().Names()
	assert.Equal(t, []string{travel.PlacesToolName, travel.WeatherToolName}, names)
}

func TestAssistant_DestinationOnlyAsksBeforePlanning(t *testing.T) {
	cs := startConnectorServers(t)
	scripted := model.NewScriptedModel(model.TextTurn("should never be used"))

	asst, err := New(testConfig(cs), func(o *Options) { o.Model = scripted })
	require.NoError(t, err)
	defer asst.Close()

	driver := asst.Chat("s1")
	answer, err := driver.Send(context.Background(), "我想去大理")
	require.NoError(t, err)

	// A clarifying question comes back, covering party size and travel style
	assert.Contains(t, answer, "大理")
	assert.Contains(t, answer, "几位出行")
	assert.Contains(t, answer, "度假")

	// No model call and no connector traffic happened
	assert.Empty(t, scripted.Requests())
	assert.Zero(t, cs.placesHits.Load())
	assert.Zero(t, cs.weatherHits.Load())

	// The destination is remembered for the next turn
	sess, err := asst.SessionStore().Get("s1")
	require.NoError(t, err)
	dest, ok := sess.GetState(travel.StateDestination)
	assert.True(t, ok)
	assert.Equal(t, "大理", dest)
}

func TestAssistant_CompleteProfileProducesFullPlan(t *testing.T) {
	cs := startConnectorServers(t)
	scripted := model.NewScriptedModel(
		model.ToolCallTurn(core.FunctionCall{
			ID:        "call-weather",
			Name:      travel.WeatherToolName,
			Arguments: `{"location":"大理"}`,
		}),
		model.ToolCallTurn(core.FunctionCall{
			ID:        "call-places",
			Name:      travel.PlacesToolName,
			Arguments: `{"keyword":"美食","city":"大理"}`,
		}),
		model.TextTurn(planAnswer),
	)

	asst, err := New(testConfig(cs), func(o *Options) { o.Model = scripted })
	require.NoError(t, err)
	defer asst.Close()

	driver := asst.Chat("s1")
	answer, err := driver.Send(context.Background(), "我们一家人想去大理玩，有小孩，喜欢轻松的度假风")
	require.NoError(t, err)
	assert.Equal(t, planAnswer, answer)

	// Both connectors served real requests before the plan was produced
	assert.GreaterOrEqual(t, cs.weatherHits.Load(), int64(1))
	assert.GreaterOrEqual(t, cs.placesHits.Load(), int64(1))

	// The plan covers every required dimension
	assert.Empty(t, travel.MissingDimensions(answer))

	// Three model calls: weather round, places round, final plan
	requests := scripted.Requests()
	require.Len(t, requests, 3)

	// The follow-up requests carry the tool results back to the model
	foundToolResult := false
	for _, content := range requests[2].Contents {
		if content.Role == "tool" {
			foundToolResult = true
		}
	}
	assert.True(t, foundToolResult, "tool responses must flow back into the conversation")

	// The full traveler profile reached the session state
	sess, err := asst.SessionStore().Get("s1")
	require.NoError(t, err)
	party, ok := sess.GetState(travel.StatePartySize)
	require.True(t, ok)
	assert.Equal(t, "family", party)
	style, ok := sess.GetState(travel.StateStyle)
	require.True(t, ok)
	assert.Equal(t, "relaxed", style)
}

func TestAssistant_SecondTurnReusesKnownProfile(t *testing.T) {
	cs := startConnectorServers(t)
	scripted := model.NewScriptedModel(model.TextTurn(planAnswer))

	asst, err := New(testConfig(cs), func(o *Options) { o.Model = scripted })
	require.NoError(t, err)
	defer asst.Close()

	driver := asst.Chat("s1")

	// Turn 1 only names the destination and gets the clarifying question
	_, err = driver.Send(context.Background(), "我想去大理")
	require.NoError(t, err)
	require.Empty(t, scripted.Requests())

	// Turn 2 fills in the rest; the destination from turn 1 still counts
	_, err = driver.Send(context.Background(), "带孩子一起，想轻松一点度假")
	require.NoError(t, err)
	assert.NotEmpty(t, scripted.Requests(), "a complete profile reaches the model")
}

func TestAssistant_ChatRendererOverride(t *testing.T) {
	cs := startConnectorServers(t)
	scripted := model.NewScriptedModel(model.TextTurn("你好"))

	asst, err := New(testConfig(cs), func(o *Options) { o.Model = scripted })
	require.NoError(t, err)
	defer asst.Close()

	rendered := false
	driver := asst.Chat("s1", func(o *chat.Options) {
		o.Renderer = funcRenderer{onFinal: func(string) { rendered = true }}
	})

	_, err = driver.Send(context.Background(), "你好")
	require.NoError(t, err)
	assert.True(t, rendered)
}

func TestBuildStore_UnknownBackend(t *testing.T) {
	_, err := buildStore(config.SessionConfig{Backend: "redis"})
	require.Error(t, err)
}

func TestBuildModel_UnknownProvider(t *testing.T) {
	_, err := buildModel(config.ModelConfig{Provider: "llama-at-home"})
	require.Error(t, err)
}

type funcRenderer struct {
	onFinal func(string)
}

func (funcRenderer) Fragment(chat.Fragment, string) {}
func (r funcRenderer) Final(text string)            { r.onFinal(text) }
func (funcRenderer) Error(error)                    {}
