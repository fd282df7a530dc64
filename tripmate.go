// Package tripmate assembles the travel assistant from configuration: the LLM
// provider, the place search and weather connectors, the tool registry, the
// session store and the agent loop, exposed through a single Assistant type.
package tripmate

import (
	"fmt"
	"io"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/tripmate-ai/tripmate/agent"
	"github.com/tripmate-ai/tripmate/chat"
	"github.com/tripmate-ai/tripmate/config"
	"github.com/tripmate-ai/tripmate/core"
	"github.com/tripmate-ai/tripmate/logging"
	"github.com/tripmate-ai/tripmate/model"
	anthropicmodel "github.com/tripmate-ai/tripmate/model/anthropic"
	openaimodel "github.com/tripmate-ai/tripmate/model/openai"
	"github.com/tripmate-ai/tripmate/runner"
	"github.com/tripmate-ai/tripmate/session"
	"github.com/tripmate-ai/tripmate/tool"
	"github.com/tripmate-ai/tripmate/travel"
)

// AgentName is the author recorded on every assistant event.
const AgentName = "TripMate"

// Options override the pieces New would otherwise build from configuration.
// Tests use them to inject scripted models, test HTTP servers and in-memory
// stores.
type Options struct {
	Logger       logging.Logger
	Model        model.Model
	SessionStore core.SessionStore
	HTTPClient   *http.Client // shared by both connectors
}

// Assistant is a fully wired travel assistant. Create one with New, open chat
// sessions with Chat, and Close it when done.
type Assistant struct {
	cfg      *config.Config
	agent    *agent.TravelAgent
	runner   *runner.Runner
	registry *tool.Registry
	store    core.SessionStore
	logger   logging.Logger
}

// New builds an Assistant from validated configuration.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Assistant, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), "text", false)
	}

	llm := opts.Model
	if llm == nil {
		var err error
		if llm, err = buildModel(cfg.Model); err != nil {
			return nil, err
		}
	}

	places := travel.NewPlacesClient(travel.PlacesConfig{
		APIKey:     cfg.Places.APIKey,
		BaseURL:    cfg.Places.BaseURL,
		HTTPClient: opts.HTTPClient,
	})
	weather := travel.NewWeatherClient(travel.WeatherConfig{
		APIKey:     cfg.Weather.APIKey,
		BaseURL:    cfg.Weather.BaseURL,
		HTTPClient: opts.HTTPClient,
	})

	registry := tool.NewRegistry()
	registry.MustRegister(places.Tool())
	registry.MustRegister(weather.Tool())

	store := opts.SessionStore
	if store == nil {
		var err error
		if store, err = buildStore(cfg.Session); err != nil {
			return nil, err
		}
	}

	travelAgent := agent.New(AgentName, llm, registry, func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText(travel.Instructions())
		o.Preflight = profilePreflight
		o.Postcheck = planPostcheck
	})

	r := runner.New(travelAgent, func(o *runner.Options) {
		o.SessionStore = store
		o.Logger = logger
	})

	return &Assistant{
		cfg:      cfg,
		agent:    travelAgent,
		runner:   r,
		registry: registry,
		store:    store,
		logger:   logger,
	}, nil
}

// buildModel selects the LLM provider from configuration.
func buildModel(mc config.ModelConfig) (model.Model, error) {
	switch mc.Provider {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			o.Model = mc.Name
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
			if mc.Temp > 0 {
				o.Temperature = mc.Temp
			}
			if mc.RoleLabel == "developer" {
				o.RoleLabel = openaimodel.RoleLabelDeveloper
			}
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.Model = anthropic.Model(mc.Name)
			o.APIKey = mc.APIKey
			if mc.Temp > 0 {
				o.Temperature = mc.Temp
			}
		}), nil
	case "mock":
		return model.NewMockModel(mc.Name, "mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider: %s", mc.Provider)
	}
}

// buildStore selects the session backend from configuration.
func buildStore(sc config.SessionConfig) (core.SessionStore, error) {
	switch sc.Backend {
	case "", "memory":
		return session.NewInMemoryStore(), nil
	case "sqlite":
		return session.OpenSQLite(sc.Path)
	case "postgres":
		return session.OpenPostgres(sc.DSN)
	default:
		return nil, fmt.Errorf("unknown session backend: %s", sc.Backend)
	}
}

// profilePreflight extracts traveler facts from the utterance, merges them
// with what previous turns already established, stages the new facts as a
// state delta and short-circuits into a clarifying question when the profile
// is still incomplete.
func profilePreflight(rc *core.RunContext, userText string) (string, bool) {
	extracted := travel.ExtractProfile(userText)
	known := travel.ProfileFromState(rc.GetState)
	merged := known.Merge(extracted)

	if delta := extracted.StateDelta(); len(delta) > 0 {
		rc.ApplyStateDelta(delta)
	}

	return travel.Preflight(merged)
}

// planPostcheck audits a tool-assisted plan against the required
// recommendation dimensions.
func planPostcheck(answer string, _ []string) []string {
	return travel.MissingDimensions(answer)
}

// Chat opens a conversation driver bound to the given session.
func (a *Assistant) Chat(sessionID string, optFns ...func(o *chat.Options)) *chat.Driver {
	fns := append([]func(o *chat.Options){func(o *chat.Options) {
		o.Logger = a.logger
	}}, optFns...)
	return chat.NewDriver(a.runner, sessionID, fns...)
}

// Runner exposes the underlying turn runner.
func (a *Assistant) Runner() *runner.Runner { return a.runner }

// Tools exposes the assembled tool registry.
func (a *Assistant) Tools() *tool.Registry { return a.registry }

// SessionStore exposes the configured session backend.
func (a *Assistant) SessionStore() core.SessionStore { return a.store }

// Close releases the session backend if it holds external resources.
func (a *Assistant) Close() error {
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
