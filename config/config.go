// Package config loads and validates the application configuration from an
// optional YAML file with environment variable overrides. Validation is
// fail-closed: an assistant never starts with a missing provider credential.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Places  PlacesConfig  `yaml:"places"`
	Weather WeatherConfig `yaml:"weather"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig selects and configures the LLM provider.
type ModelConfig struct {
	Provider  string  `yaml:"provider"` // "openai", "anthropic" or "mock"
	Name      string  `yaml:"name"`
	APIKey    string  `yaml:"api_key"`
	BaseURL   string  `yaml:"base_url"`
	RoleLabel string  `yaml:"role_label"` // "system" or "developer", openai only
	Temp      float64 `yaml:"temperature"`
}

// PlacesConfig configures the place search connector.
type PlacesConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// WeatherConfig configures the hourly weather connector.
type WeatherConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SessionConfig selects the session persistence backend.
type SessionConfig struct {
	Backend string `yaml:"backend"` // "memory", "sqlite" or "postgres"
	Path    string `yaml:"path"`    // sqlite database file
	DSN     string `yaml:"dsn"`     // postgres connection string
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is provided: mock-free
// defaults that still require credentials from the environment.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:  "openai",
			Name:      "gpt-4o-mini",
			RoleLabel: "system",
			Temp:      0.7,
		},
		Session: SessionConfig{Backend: "memory"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from an optional file, applies environment
// overrides and validates the result. An empty path yields Default plus
// environment values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables when present.
func (c *Config) applyEnv() {
	if v := os.Getenv("GAODE_API_KEY"); v != "" {
		c.Places.APIKey = v
	}
	if v := os.Getenv("TOMORROW_API_KEY"); v != "" {
		c.Weather.APIKey = v
	}
	if v := os.Getenv("TRIPMATE_MODEL_PROVIDER"); v != "" {
		c.Model.Provider = v
	}
	if v := os.Getenv("TRIPMATE_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("TRIPMATE_SESSION_BACKEND"); v != "" {
		c.Session.Backend = v
	}
	if v := os.Getenv("TRIPMATE_SESSION_DSN"); v != "" {
		c.Session.DSN = v
	}

	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case "openai":
			c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
		if c.Model.APIKey == "" {
			return fmt.Errorf("model.api_key is required for provider %q", c.Model.Provider)
		}
		if c.Model.Name == "" {
			return fmt.Errorf("model.name is required")
		}
	case "mock":
	default:
		return fmt.Errorf("model.provider must be 'openai', 'anthropic' or 'mock'")
	}

	if c.Model.RoleLabel != "" && c.Model.RoleLabel != "system" && c.Model.RoleLabel != "developer" {
		return fmt.Errorf("model.role_label must be 'system' or 'developer'")
	}

	// Connector credentials are startup-fatal: an assistant whose tools can
	// only ever report a missing key must not come up at all.
	if c.Places.APIKey == "" {
		return fmt.Errorf("places.api_key is required (set GAODE_API_KEY)")
	}
	if c.Weather.APIKey == "" {
		return fmt.Errorf("weather.api_key is required (set TOMORROW_API_KEY)")
	}

	switch c.Session.Backend {
	case "", "memory":
	case "sqlite":
		if c.Session.Path == "" {
			return fmt.Errorf("session.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Session.DSN == "" {
			return fmt.Errorf("session.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("session.backend must be 'memory', 'sqlite' or 'postgres'")
	}

	return nil
}
