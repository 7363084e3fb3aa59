package models

import (
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of a browser session.
type SessionStatus string

const (
	// StatusInitializing means the session is mid-authentication and is
	// waiting for a second-factor code before it can accept instructions.
	StatusInitializing SessionStatus = "initializing"

	// StatusActive means the session is authenticated and idle.
	StatusActive SessionStatus = "active"

	// StatusExecuting means an instruction or scripted check currently owns
	// the session's browser.
	StatusExecuting SessionStatus = "executing"

	// StatusIdle means the session has not seen activity recently.
	StatusIdle SessionStatus = "idle"
)

// Environment identifies which deployment of the target application a
// session is pointed at. It is derived once from the start URL and never
// changes afterwards.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvStaging    Environment = "staging"
)

// DetectEnvironment derives the environment from a target URL.
func DetectEnvironment(url, stagingHostFragment string) Environment {
	if stagingHostFragment != "" && strings.Contains(url, stagingHostFragment) {
		return EnvStaging
	}
	return EnvProduction
}

// SessionInfo is the externally visible view of a session. The browser
// handle itself never leaves the registry.
type SessionInfo struct {
	ID             string        `json:"id"`
	Status         SessionStatus `json:"status"`
	Environment    Environment   `json:"environment"`
	TargetURL      string        `json:"targetUrl,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
}
