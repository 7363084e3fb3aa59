// Package config carries process configuration. Server-level settings come
// from the environment (a .env file is loaded by main); selector tables and
// scripted check policy live in an optional YAML file layered over compiled
// defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LaunchMode selects how browsers are started.
type LaunchMode string

const (
	// LaunchLocal starts Chromium through the local Playwright runtime.
	LaunchLocal LaunchMode = "local"
	// LaunchDocker runs each browser in its own container, attached over CDP.
	LaunchDocker LaunchMode = "docker"
)

// Config is the environment-driven server configuration.
type Config struct {
	Addr          string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	ArtifactDir   string
	ChecksFile    string
	LaunchMode    LaunchMode
	BrowserImage  string
	Headless      bool
	MaxSessions   int64
	SessionMaxAge time.Duration
	SweepInterval time.Duration
	RatePerHour   int
	RateBurst     int
}

// FromEnv builds a Config from environment variables with sensible
// defaults for everything but the API key.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Addr:          envOr("UIWATCH_ADDR", ":8080"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   envOr("UIWATCH_ORACLE_MODEL", "gpt-4o"),
		ArtifactDir:   envOr("UIWATCH_ARTIFACT_DIR", "./storage/screenshots"),
		ChecksFile:    os.Getenv("UIWATCH_CHECKS_FILE"),
		LaunchMode:    LaunchMode(envOr("UIWATCH_LAUNCH_MODE", string(LaunchLocal))),
		BrowserImage:  envOr("UIWATCH_BROWSER_IMAGE", "browserless/chrome:latest"),
		Headless:      envBool("UIWATCH_HEADLESS", true),
		MaxSessions:   int64(envInt("UIWATCH_MAX_SESSIONS", 10)),
		SessionMaxAge: envDuration("UIWATCH_SESSION_MAX_AGE", 10*time.Minute),
		SweepInterval: envDuration("UIWATCH_SWEEP_INTERVAL", time.Minute),
		RatePerHour:   envInt("UIWATCH_RATE_PER_HOUR", 100),
		RateBurst:     envInt("UIWATCH_RATE_BURST", 10),
	}

	if cfg.LaunchMode != LaunchLocal && cfg.LaunchMode != LaunchDocker {
		return nil, fmt.Errorf("unsupported launch mode %q", cfg.LaunchMode)
	}
	if cfg.MaxSessions < 1 {
		return nil, fmt.Errorf("max sessions must be at least 1")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
