// Package flow drives a fresh browser from a start URL to an authenticated
// session. It owns the login state machine and the second-factor entry
// point; everything downstream assumes an active session already exists.
package flow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uiwatch/uiwatch/internal/artifact"
	"github.com/uiwatch/uiwatch/internal/browser"
	"github.com/uiwatch/uiwatch/internal/config"
	"github.com/uiwatch/uiwatch/internal/driver"
	"github.com/uiwatch/uiwatch/internal/oracle"
	"github.com/uiwatch/uiwatch/internal/session"
	"github.com/uiwatch/uiwatch/pkg/models"
)

// loggedInConfidence is the minimum oracle confidence to accept a page as
// already authenticated without structural evidence.
const loggedInConfidence = 70

// Flow wires the launcher, registry, oracle, and artifact store into the
// login state machine.
type Flow struct {
	registry   *session.Registry
	launcher   browser.Launcher
	classifier oracle.Classifier
	artifacts  *artifact.Store
	cfg        *config.ChecksConfig
}

// New creates a Flow. All dependencies are required except the artifact
// store, which may be nil in tests.
func New(registry *session.Registry, launcher browser.Launcher, classifier oracle.Classifier, artifacts *artifact.Store, cfg *config.ChecksConfig) *Flow {
	return &Flow{
		registry:   registry,
		launcher:   launcher,
		classifier: classifier,
		artifacts:  artifacts,
		cfg:        cfg,
	}
}

// StartResult reports where the login flow landed. Logs carries the
// human-readable step trace and is populated even when Start errors.
type StartResult struct {
	SessionID    string
	Status       models.SessionStatus
	RequiresCode bool
	Logs         []string
}

// SubmitResult reports the outcome of a second-factor submission.
type SubmitResult struct {
	ArtifactURL string
	CurrentURL  string
	Logs        []string
}

// secondFactorOutcome is the result of racing URL change against a code
// prompt after credential submission.
type secondFactorOutcome int

const (
	leftLoginPath secondFactorOutcome = iota
	codePromptAppeared
	nothingHappened
)

// Start launches a browser, navigates to startURL, and runs the login state
// machine to completion. Terminal successes register a session; every
// terminal failure closes the launched browser before returning.
func (f *Flow) Start(ctx context.Context, startURL, credential string) (StartResult, error) {
	res := StartResult{}

	env := models.DetectEnvironment(startURL, f.cfg.StagingHostFragment)
	sel := f.cfg.SelectorsFor(env)
	res.Logs = f.logf(res.Logs, "starting login flow against %s (%s)", startURL, env)

	handle, err := f.launcher.Launch(ctx, uuid.New().String())
	if err != nil {
		return res, fmt.Errorf("failed to launch browser: %w", err)
	}
	registered := false
	defer func() {
		if !registered {
			if cerr := handle.Close(); cerr != nil {
				log.Printf("[flow] error closing browser after failed login: %v", cerr)
			}
		}
	}()

	if err := handle.Navigate(startURL); err != nil {
		return res, fmt.Errorf("failed to open start URL: %w", err)
	}
	time.Sleep(f.cfg.Waits.PageSettle.Std())
	res.Logs = f.logf(res.Logs, "page loaded, current URL: %s", handle.CurrentURL())

	// A deep link is remembered so it can be restored after OTP; a plain
	// login URL is not.
	targetURL := ""
	if !strings.Contains(startURL, sel.Login.PathFragment) {
		targetURL = startURL
	}

	// Vision first: a rich authenticated UI is unambiguous, so the oracle
	// decides "already logged in" before any structural probing.
	image, err := handle.Screenshot(false)
	if err != nil {
		return res, fmt.Errorf("failed to capture initial screenshot: %w", err)
	}
	classification, err := f.classifier.Classify(ctx, image, oracle.LoginStateRubric)
	if err != nil {
		return res, fmt.Errorf("failed to classify initial page: %w", err)
	}
	res.Logs = f.logf(res.Logs, "initial classification: %s (confidence %d)", classification.Label, classification.Confidence)

	if classification.Label == oracle.LabelLoggedIn && classification.Confidence > loggedInConfidence {
		s, err := f.register(handle, env, targetURL, credential, models.StatusActive)
		if err != nil {
			return res, err
		}
		registered = true
		res.SessionID = s.ID
		res.Status = models.StatusActive
		res.Logs = f.logf(res.Logs, "already authenticated, session %s is active", s.ID)
		return res, nil
	}

	// Structure next: input types discriminate login-page vs OTP-page
	// cheaply and unambiguously.
	outcome, err := handle.WaitForLocator(sel.Login.EmailInput, f.cfg.Waits.StructuralProbe.Std())
	if err != nil {
		return res, fmt.Errorf("failed to probe for login form: %w", err)
	}

	if outcome == driver.Found {
		if credential == "" {
			res.Logs = f.logf(res.Logs, "login form present but no credential was supplied")
			return res, fmt.Errorf("%w: credential required", models.ErrAuthenticationFailed)
		}

		res.Logs = f.logf(res.Logs, "filling credential and submitting")
		if err := handle.Fill(sel.Login.EmailInput, credential); err != nil {
			return res, fmt.Errorf("failed to fill credential: %w", err)
		}
		if err := handle.Click(sel.Login.SubmitButton); err != nil {
			return res, fmt.Errorf("failed to submit credential: %w", err)
		}

		switch f.awaitSecondFactor(handle, sel, f.cfg.Waits.SecondFactor.Std()) {
		case leftLoginPath:
			if targetURL != "" {
				if err := handle.Navigate(targetURL); err != nil {
					return res, fmt.Errorf("failed to open target URL after login: %w", err)
				}
				time.Sleep(f.cfg.Waits.PageSettle.Std())
			}
			s, err := f.register(handle, env, targetURL, credential, models.StatusActive)
			if err != nil {
				return res, err
			}
			registered = true
			res.SessionID = s.ID
			res.Status = models.StatusActive
			res.Logs = f.logf(res.Logs, "authenticated without second factor, session %s is active", s.ID)
			return res, nil

		case codePromptAppeared:
			s, err := f.register(handle, env, targetURL, credential, models.StatusInitializing)
			if err != nil {
				return res, err
			}
			registered = true
			res.SessionID = s.ID
			res.Status = models.StatusInitializing
			res.RequiresCode = true
			res.Logs = f.logf(res.Logs, "verification code requested, session %s awaits the code", s.ID)
			return res, nil

		default:
			msg := f.loginErrorMessage(handle)
			res.Logs = f.logf(res.Logs, "login stalled: %s", msg)
			return res, fmt.Errorf("%w: %s", models.ErrAuthenticationFailed, msg)
		}
	}

	// No login form. A code input means a previous credential step already
	// happened in this browser profile.
	outcome, err = handle.WaitForLocator(sel.OTP.Input, f.cfg.Waits.StructuralProbe.Std())
	if err != nil {
		return res, fmt.Errorf("failed to probe for code input: %w", err)
	}
	if outcome == driver.Found {
		s, err := f.register(handle, env, targetURL, credential, models.StatusInitializing)
		if err != nil {
			return res, err
		}
		registered = true
		res.SessionID = s.ID
		res.Status = models.StatusInitializing
		res.RequiresCode = true
		res.Logs = f.logf(res.Logs, "verification code requested, session %s awaits the code", s.ID)
		return res, nil
	}

	res.Logs = f.logf(res.Logs, "page shows neither an authenticated UI nor a known login form")
	return res, fmt.Errorf("%w: unrecognized page state at %s", models.ErrAuthenticationFailed, handle.CurrentURL())
}

// SubmitCode completes authentication for a session created in the
// initializing state. Failure tears the session down; the caller must
// restart the whole flow.
func (f *Flow) SubmitCode(ctx context.Context, sessionID, code string) (SubmitResult, error) {
	res := SubmitResult{}

	s, release, err := f.registry.Acquire(sessionID)
	if err != nil {
		return res, err
	}
	defer release()

	sel := f.cfg.SelectorsFor(s.Environment)
	res.Logs = f.logf(res.Logs, "submitting verification code for session %s", s.ID)

	if err := s.Handle.Fill(sel.OTP.Input, code); err != nil {
		f.registry.Remove(s.ID)
		return res, fmt.Errorf("%w: failed to enter code: %v", models.ErrAuthenticationFailed, err)
	}
	time.Sleep(f.cfg.Waits.CodeSettle.Std())

	if strings.Contains(s.Handle.CurrentURL(), sel.Login.PathFragment) {
		res.Logs = f.logf(res.Logs, "still on the login page after code submission, tearing session down")
		f.registry.Remove(s.ID)
		return res, fmt.Errorf("%w: login failed, the code was not accepted", models.ErrAuthenticationFailed)
	}

	if s.TargetURL != "" {
		res.Logs = f.logf(res.Logs, "navigating to %s", s.TargetURL)
		if err := s.Handle.Navigate(s.TargetURL); err != nil {
			f.registry.Remove(s.ID)
			return res, fmt.Errorf("%w: failed to open target URL after login: %v", models.ErrAuthenticationFailed, err)
		}
		time.Sleep(f.cfg.Waits.PageSettle.Std())
	}

	if f.artifacts != nil {
		image, err := s.Handle.Screenshot(true)
		if err != nil {
			log.Printf("[flow] confirmation screenshot failed for session %s: %v", s.ID, err)
		} else if url, err := f.artifacts.Save("login", s.ID, "confirmed", image); err != nil {
			log.Printf("[flow] saving confirmation artifact failed for session %s: %v", s.ID, err)
		} else {
			res.ArtifactURL = url
		}
	}

	f.registry.SetStatus(s.ID, models.StatusActive)
	res.CurrentURL = s.Handle.CurrentURL()
	res.Logs = f.logf(res.Logs, "session %s is active at %s", s.ID, res.CurrentURL)
	return res, nil
}

// awaitSecondFactor races the URL leaving the login path against a code
// prompt appearing, within the given budget. The locator waits pace the
// loop.
func (f *Flow) awaitSecondFactor(h driver.Handle, sel config.Selectors, timeout time.Duration) secondFactorOutcome {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !strings.Contains(h.CurrentURL(), sel.Login.PathFragment) {
			return leftLoginPath
		}
		if out, err := h.WaitForLocator(sel.OTP.Input, 500*time.Millisecond); err == nil && out == driver.Found {
			return codePromptAppeared
		}
		if out, err := h.WaitForCondition(sel.OTP.TextCondition, 250*time.Millisecond); err == nil && out == driver.Found {
			return codePromptAppeared
		}
	}
	return nothingHappened
}

// loginErrorMessage inspects the stalled page's text for known failure
// phrases and maps them to an operator-friendly message.
func (f *Flow) loginErrorMessage(h driver.Handle) string {
	raw, err := h.Evaluate("document.body ? document.body.innerText : ''")
	if err != nil {
		return "failed to reach the verification step"
	}
	text, _ := raw.(string)
	text = strings.ToLower(text)

	switch {
	case strings.Contains(text, "invalid"):
		return "the application rejected the credential as invalid"
	case strings.Contains(text, "not found"):
		return "the application reported the account as not found"
	case strings.Contains(text, "unable") || strings.Contains(text, "error"):
		return "the application reported a login error"
	}
	return "failed to reach the verification step"
}

func (f *Flow) register(handle driver.Handle, env models.Environment, targetURL, credential string, status models.SessionStatus) (*session.Session, error) {
	s, err := f.registry.Create(handle, env, targetURL, credential)
	if err != nil {
		return nil, err
	}
	if status == models.StatusActive {
		f.registry.SetStatus(s.ID, models.StatusActive)
	}
	return s, nil
}

func (f *Flow) logf(logs []string, format string, args ...interface{}) []string {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[flow] %s", msg)
	return append(logs, msg)
}
