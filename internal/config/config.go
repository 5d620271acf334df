// Package config provides configuration helpers for go-valet commands.
package config

import (
	"errors"
	"os"
	"path/filepath"
)

// DefaultBackend is the Daily Bots connect endpoint used when
// VALET_BACKEND_URL is not set.
const DefaultBackend = "https://api.daily.co/v1/bots/start"

// Config holds all configuration for the valet client.
// Flag parsing is done in cmd/valet/main.go; this struct is data only.
type Config struct {
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string

	// BackendURL is the session negotiation endpoint.
	BackendURL string

	// DataDir holds persisted state (fact memory, OAuth tokens).
	DataDir string

	// API keys (typically from environment variables).
	BotsAPIKey string // Daily Bots bearer token
	OpenAIKey  string // forwarded to the backend for the LLM service

	// Google OAuth (for the calendar provider; optional).
	GoogleClientID     string
	GoogleClientSecret string
}

// DefaultConfig returns sensible defaults for valet configuration.
func DefaultConfig() Config {
	dataDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".valet")
	}
	return Config{
		LogLevel:   "info",
		BackendURL: DefaultBackend,
		DataDir:    dataDir,
	}
}

// LoadEnv loads configuration values from environment variables.
// Call this after flag parsing to apply environment overrides.
func (c *Config) LoadEnv() {
	if v := os.Getenv("VALET_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("VALET_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DAILY_BOTS_API_KEY"); v != "" {
		c.BotsAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIKey = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.GoogleClientSecret = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend URL is required (VALET_BACKEND_URL)")
	}
	if c.DataDir == "" {
		return errors.New("data directory is required (VALET_DATA_DIR)")
	}
	return nil
}
