package models

import "time"

// StartLoginRequest is the payload for starting a login flow.
type StartLoginRequest struct {
	StartURL   string `json:"startUrl"`
	Credential string `json:"credential,omitempty"`
}

// StartLoginResponse reports where the login flow landed.
type StartLoginResponse struct {
	Success      bool          `json:"success"`
	SessionID    string        `json:"sessionId,omitempty"`
	Status       SessionStatus `json:"status,omitempty"`
	RequiresCode bool          `json:"requiresCode,omitempty"`
	Error        string        `json:"error,omitempty"`
	Logs         []string      `json:"logs"`
}

// SubmitCodeRequest carries the one-time verification code.
type SubmitCodeRequest struct {
	Code string `json:"code"`
}

// SubmitCodeResponse reports the outcome of second-factor submission.
type SubmitCodeResponse struct {
	Success     bool          `json:"success"`
	Status      SessionStatus `json:"status,omitempty"`
	ArtifactURL string        `json:"artifactUrl,omitempty"`
	CurrentURL  string        `json:"currentUrl,omitempty"`
	Error       string        `json:"error,omitempty"`
	Logs        []string      `json:"logs"`
}

// InstructionRequest carries a single user-issued instruction.
type InstructionRequest struct {
	Instruction string `json:"instruction"`
}

// InstructionResponse returns the artifacts bracketing one instruction.
type InstructionResponse struct {
	Success           bool     `json:"success"`
	Logs              []string `json:"logs"`
	BeforeArtifactURL string   `json:"beforeArtifactUrl,omitempty"`
	AfterArtifactURL  string   `json:"afterArtifactUrl,omitempty"`
	CurrentURL        string   `json:"currentUrl,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// CheckStepResult is one sub-step of a scripted check.
type CheckStepResult struct {
	Name         string    `json:"name"`
	Passed       bool      `json:"passed"`
	Message      string    `json:"message"`
	ArtifactURL  string    `json:"artifactUrl,omitempty"`
	ArtifactURLs []string  `json:"artifactUrls,omitempty"`
	ElapsedMs    int64     `json:"elapsedMs,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// CheckResult aggregates a scripted check run. Passed is true only when
// every sub-step passed; individual failures never abort siblings.
type CheckResult struct {
	Success     bool              `json:"success"`
	CheckID     string            `json:"checkId"`
	Environment Environment       `json:"environment"`
	Passed      bool              `json:"passed"`
	Steps       []CheckStepResult `json:"steps"`
	Summary     string            `json:"summary"`
	Error       string            `json:"error,omitempty"`
}

// ArtifactInfo describes one persisted screenshot artifact.
type ArtifactInfo struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusResponse is the generic success/error envelope.
type StatusResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Logs    []string `json:"logs,omitempty"`
}
