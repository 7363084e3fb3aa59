// Package executor runs a single user instruction against an active
// session, bracketing it with before and after screenshots.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/uiwatch/uiwatch/internal/artifact"
	"github.com/uiwatch/uiwatch/internal/config"
	"github.com/uiwatch/uiwatch/internal/driver"
	"github.com/uiwatch/uiwatch/internal/session"
)

// Executor dispatches instructions through the session registry so two
// instructions can never interleave on one browser.
type Executor struct {
	registry  *session.Registry
	artifacts *artifact.Store
	cfg       *config.ChecksConfig
}

// New creates an Executor.
func New(registry *session.Registry, artifacts *artifact.Store, cfg *config.ChecksConfig) *Executor {
	return &Executor{
		registry:  registry,
		artifacts: artifacts,
		cfg:       cfg,
	}
}

// Result carries the artifacts and trace of one instruction. Failed is the
// caller-facing verdict; driver errors are folded into Logs rather than
// returned, so the session stays usable for the next instruction.
type Result struct {
	Failed            bool
	Logs              []string
	BeforeArtifactURL string
	AfterArtifactURL  string
	CurrentURL        string
}

// Execute acquires the session, types the instruction into the search
// surface, submits it, and waits a bounded window for a response. A missing
// response element is logged and tolerated; only registry-level errors
// (unknown or busy session) are returned as errors.
func (e *Executor) Execute(ctx context.Context, sessionID, instruction string) (Result, error) {
	res := Result{}

	s, release, err := e.registry.Acquire(sessionID)
	if err != nil {
		return res, err
	}
	defer release()

	sel := e.cfg.SelectorsFor(s.Environment)
	res.Logs = e.logf(res.Logs, "executing instruction on session %s: %s", s.ID, instruction)

	if url, err := e.capture(s, "before"); err != nil {
		res.Logs = e.logf(res.Logs, "before screenshot failed: %v", err)
	} else {
		res.BeforeArtifactURL = url
	}

	if err := e.drive(ctx, s, sel, instruction, &res); err != nil {
		res.Logs = e.logf(res.Logs, "instruction failed: %v", err)
		res.Failed = true
	}

	if url, err := e.capture(s, "after"); err != nil {
		res.Logs = e.logf(res.Logs, "after screenshot failed: %v", err)
	} else {
		res.AfterArtifactURL = url
	}

	res.CurrentURL = s.Handle.CurrentURL()
	return res, nil
}

// drive performs the fill, submit, and bounded response wait. Any error
// here is reported through the result, never propagated past Execute.
func (e *Executor) drive(ctx context.Context, s *session.Session, sel config.Selectors, instruction string, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Handle.Fill(sel.Search.Input, instruction); err != nil {
		return fmt.Errorf("failed to fill instruction: %w", err)
	}
	if err := s.Handle.Click(sel.Search.SendButton); err != nil {
		return fmt.Errorf("failed to submit instruction: %w", err)
	}
	res.Logs = e.logf(res.Logs, "instruction submitted, waiting for a response")

	outcome, err := s.Handle.WaitForLocator(sel.Search.ResponseContainer, e.cfg.Waits.InstructionWait.Std())
	if err != nil {
		return fmt.Errorf("response wait failed: %w", err)
	}
	if outcome == driver.TimedOut {
		res.Logs = e.logf(res.Logs, "no response element within %s, continuing anyway", e.cfg.Waits.InstructionWait.Std())
	} else {
		res.Logs = e.logf(res.Logs, "response element appeared")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.cfg.Waits.InstructionSettle.Std()):
	}
	return nil
}

func (e *Executor) capture(s *session.Session, label string) (string, error) {
	image, err := s.Handle.Screenshot(false)
	if err != nil {
		return "", err
	}
	if e.artifacts == nil {
		return "", nil
	}
	return e.artifacts.Save("instruction", s.ID, label, image)
}

func (e *Executor) logf(logs []string, format string, args ...interface{}) []string {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[executor] %s", msg)
	return append(logs, msg)
}
