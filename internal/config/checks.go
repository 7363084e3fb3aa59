package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/uiwatch/uiwatch/pkg/models"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Selectors are the locator strings used against the target application.
// They are the only application-specific knowledge in the process and are
// meant to be overridden per deployment.
type Selectors struct {
	Login  LoginSelectors  `yaml:"login"`
	OTP    OTPSelectors    `yaml:"otp"`
	Search SearchSelectors `yaml:"search"`
	Docs   DocsSelectors   `yaml:"docs"`
}

// LoginSelectors locate the credential form.
type LoginSelectors struct {
	EmailInput   string `yaml:"emailInput"`
	SubmitButton string `yaml:"submitButton"`
	// PathFragment marks login URLs; leaving it is the structural signal
	// that authentication succeeded.
	PathFragment string `yaml:"pathFragment"`
}

// OTPSelectors locate the one-time-code form.
type OTPSelectors struct {
	Input string `yaml:"input"`
	// TextCondition is a JS expression that is truthy when the page shows
	// second-factor copy; it backs up the structural input check.
	TextCondition string `yaml:"textCondition"`
}

// SearchSelectors locate the search surface used by instructions and the
// search-results check.
type SearchSelectors struct {
	Path              string `yaml:"path"`
	Input             string `yaml:"input"`
	SendButton        string `yaml:"sendButton"`
	ResponseContainer string `yaml:"responseContainer"`
	NewSearchButton   string `yaml:"newSearchButton"`
}

// DocsSelectors locate the documentation area used by the docs-loading
// check. ItemPattern is a fmt pattern taking the 1-based document index as
// %[1]d, possibly more than once.
type DocsSelectors struct {
	Path        string `yaml:"path"`
	ItemPattern string `yaml:"itemPattern"`
}

// Waits are the settle and timeout policy knobs. The defaults mirror the
// empirically tuned values the checks were written against; they are
// config, not behavior.
type Waits struct {
	PageSettle        Duration `yaml:"pageSettle"`
	SecondFactor      Duration `yaml:"secondFactor"`
	CodeSettle        Duration `yaml:"codeSettle"`
	InstructionWait   Duration `yaml:"instructionWait"`
	InstructionSettle Duration `yaml:"instructionSettle"`
	StructuralProbe   Duration `yaml:"structuralProbe"`
}

// DocsCheck is the policy for the docs-loading scripted check.
type DocsCheck struct {
	Count       int      `yaml:"count"`
	Interval    Duration `yaml:"interval"`
	MaxAttempts int      `yaml:"maxAttempts"`
}

// SearchCheck is the policy for the search-results scripted check.
type SearchCheck struct {
	Queries     []string `yaml:"queries"`
	Interval    Duration `yaml:"interval"`
	MaxAttempts int      `yaml:"maxAttempts"`
}

// ChecksConfig bundles selectors, waits, and check policy, with an
// optional staging override for selector drift between environments.
type ChecksConfig struct {
	StagingHostFragment string      `yaml:"stagingHostFragment"`
	Selectors           Selectors   `yaml:"selectors"`
	Staging             *Selectors  `yaml:"staging,omitempty"`
	Waits               Waits       `yaml:"waits"`
	DocsLoading         DocsCheck   `yaml:"docsLoading"`
	SearchResults       SearchCheck `yaml:"searchResults"`
}

// DefaultChecks returns the compiled-in selector tables and check policy.
func DefaultChecks() *ChecksConfig {
	return &ChecksConfig{
		StagingHostFragment: "staging.",
		Selectors: Selectors{
			Login: LoginSelectors{
				EmailInput:   `input[type="email"], input[placeholder*="email" i]`,
				SubmitButton: `button[type="submit"]`,
				PathFragment: "/auth/login",
			},
			OTP: OTPSelectors{
				Input: `input[type="text"][maxlength="6"], input[placeholder*="code" i]`,
				TextCondition: `(() => {
					const t = document.body.textContent || '';
					return t.includes('one-time passcode') || t.includes('enter the code') || t.includes('verification code') || t.includes('6-digit code');
				})()`,
			},
			Search: SearchSelectors{
				Path:              "/ai-search",
				Input:             `textarea[placeholder*="Ask" i], input[placeholder*="search" i]`,
				SendButton:        `button[aria-label="Send"], button[type="submit"]`,
				ResponseContainer: `[data-testid="ai-response"], [class*="response"]`,
				NewSearchButton:   `button:has-text("New Search")`,
			},
			Docs: DocsSelectors{
				Path:        "/ai-docs",
				ItemPattern: `[data-testid="doc-item"]:nth-of-type(%[1]d), main a[href*="doc"]:nth-of-type(%[1]d)`,
			},
		},
		Waits: Waits{
			PageSettle:        Duration(time.Second),
			SecondFactor:      Duration(10 * time.Second),
			CodeSettle:        Duration(time.Second),
			InstructionWait:   Duration(30 * time.Second),
			InstructionSettle: Duration(2 * time.Second),
			StructuralProbe:   Duration(time.Second),
		},
		DocsLoading: DocsCheck{
			Count:       3,
			Interval:    Duration(4 * time.Second),
			MaxAttempts: 3,
		},
		SearchResults: SearchCheck{
			Queries: []string{
				"What is a calculated field?",
				"What is a worker object?",
			},
			Interval:    Duration(5 * time.Second),
			MaxAttempts: 6,
		},
	}
}

// LoadChecks layers a YAML file over the defaults. An empty path returns
// the defaults unchanged.
func LoadChecks(path string) (*ChecksConfig, error) {
	cfg := DefaultChecks()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checks file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse checks file: %w", err)
	}
	if cfg.DocsLoading.Count < 1 || cfg.DocsLoading.MaxAttempts < 1 {
		return nil, fmt.Errorf("docsLoading count and maxAttempts must be at least 1")
	}
	if len(cfg.SearchResults.Queries) == 0 || cfg.SearchResults.MaxAttempts < 1 {
		return nil, fmt.Errorf("searchResults needs at least one query and attempt")
	}
	return cfg, nil
}

// SelectorsFor returns the selector set for an environment, falling back
// to the default set when no staging override is configured.
func (c *ChecksConfig) SelectorsFor(env models.Environment) Selectors {
	if env == models.EnvStaging && c.Staging != nil {
		return *c.Staging
	}
	return c.Selectors
}
