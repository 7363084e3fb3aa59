// Package check runs the bundled scripted checks against an active
// session. Each check is a sequence of isolated sub-steps built on the
// polling classification loop; one failing sub-step never aborts its
// siblings.
package check

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/uiwatch/uiwatch/internal/artifact"
	"github.com/uiwatch/uiwatch/internal/config"
	"github.com/uiwatch/uiwatch/internal/oracle"
	"github.com/uiwatch/uiwatch/internal/poll"
	"github.com/uiwatch/uiwatch/internal/session"
	"github.com/uiwatch/uiwatch/pkg/models"
)

// Check ids accepted by Run.
const (
	DocsLoading   = "docs-loading"
	SearchResults = "search-results"
)

// Runner executes scripted checks.
type Runner struct {
	registry   *session.Registry
	classifier oracle.Classifier
	artifacts  *artifact.Store
	cfg        *config.ChecksConfig
}

// New creates a Runner.
func New(registry *session.Registry, classifier oracle.Classifier, artifacts *artifact.Store, cfg *config.ChecksConfig) *Runner {
	return &Runner{
		registry:   registry,
		classifier: classifier,
		artifacts:  artifacts,
		cfg:        cfg,
	}
}

// IDs returns the bundled check ids.
func IDs() []string {
	return []string{DocsLoading, SearchResults}
}

// Run executes the named check on the session. The session is held
// exclusively for the whole run; concurrent instructions fail busy rather
// than interleave.
func (r *Runner) Run(ctx context.Context, sessionID, checkID string) (models.CheckResult, error) {
	s, release, err := r.registry.Acquire(sessionID)
	if err != nil {
		return models.CheckResult{}, err
	}
	defer release()

	result := models.CheckResult{
		Success:     true,
		CheckID:     checkID,
		Environment: s.Environment,
	}

	switch checkID {
	case DocsLoading:
		result.Steps = r.runDocsLoading(ctx, s)
	case SearchResults:
		result.Steps = r.runSearchResults(ctx, s)
	default:
		return models.CheckResult{}, fmt.Errorf("%w: unknown check %q", models.ErrNotFound, checkID)
	}

	result.Passed = true
	for _, step := range result.Steps {
		if !step.Passed {
			result.Passed = false
		}
	}
	result.Summary = summarize(checkID, s.Environment, result.Passed, result.Steps)
	log.Printf("[check] %s on session %s: passed=%v", checkID, s.ID, result.Passed)
	return result, nil
}

// runDocsLoading opens the first N documents in the docs area and verifies
// each one renders content, using the document-content rubric.
func (r *Runner) runDocsLoading(ctx context.Context, s *session.Session) []models.CheckStepResult {
	sel := r.cfg.SelectorsFor(s.Environment)
	policy := r.cfg.DocsLoading

	docsURL := pageOrigin(s.Handle.CurrentURL()) + sel.Docs.Path
	if err := r.open(s, docsURL); err != nil {
		return []models.CheckStepResult{failedStep("open docs area", fmt.Sprintf("failed to open %s: %v", docsURL, err))}
	}

	steps := make([]models.CheckStepResult, 0, policy.Count)
	for i := 1; i <= policy.Count; i++ {
		steps = append(steps, r.checkDocument(ctx, s, sel, i))

		// Back to the list for the next document.
		if i < policy.Count {
			if err := r.open(s, docsURL); err != nil {
				steps = append(steps, failedStep("return to docs list", err.Error()))
				break
			}
		}
	}
	return steps
}

func (r *Runner) checkDocument(ctx context.Context, s *session.Session, sel config.Selectors, index int) models.CheckStepResult {
	step := models.CheckStepResult{
		Name:      fmt.Sprintf("document %d", index),
		Timestamp: time.Now(),
	}

	locator := fmt.Sprintf(sel.Docs.ItemPattern, index)
	if err := s.Handle.Click(locator); err != nil {
		step.Message = fmt.Sprintf("failed to open document %d: %v", index, err)
		return step
	}

	policy := r.cfg.DocsLoading
	result, err := poll.Run(ctx, poll.Spec{
		Capture: func() ([]byte, error) { return s.Handle.Screenshot(false) },
		Classify: func(ctx context.Context, image []byte) (oracle.Classification, error) {
			return r.classifier.Classify(ctx, image, oracle.DocumentContentRubric)
		},
		Decide: func(label string) poll.Decision {
			switch label {
			case oracle.LabelContentLoaded:
				return poll.Success
			case oracle.LabelContentMissing:
				return poll.Failure
			}
			return poll.Continue
		},
		Persist:     r.persister("check-docs", s.ID, fmt.Sprintf("doc%d", index)),
		Interval:    policy.Interval.Std(),
		MaxAttempts: policy.MaxAttempts,
	})
	if err != nil {
		step.Message = fmt.Sprintf("document %d check aborted: %v", index, err)
		return step
	}

	step.ArtifactURL = result.LastArtifactURL()
	step.ArtifactURLs = result.ArtifactURLs()
	step.ElapsedMs = result.Elapsed.Milliseconds()

	switch result.Outcome {
	case poll.OutcomeSuccess:
		step.Passed = true
		step.Message = fmt.Sprintf("document %d loaded after %d attempt(s)", index, result.Attempts)
	case poll.OutcomeFailure:
		step.Message = fmt.Sprintf("document %d rendered without content", index)
	default:
		step.Message = fmt.Sprintf("document %d never finished loading within %d attempts", index, result.Attempts)
	}
	return step
}

// runSearchResults submits each configured query on the search surface and
// polls until an answer appears, recording per-query response time.
func (r *Runner) runSearchResults(ctx context.Context, s *session.Session) []models.CheckStepResult {
	sel := r.cfg.SelectorsFor(s.Environment)
	policy := r.cfg.SearchResults

	searchURL := pageOrigin(s.Handle.CurrentURL()) + sel.Search.Path
	if err := r.open(s, searchURL); err != nil {
		return []models.CheckStepResult{failedStep("open search area", fmt.Sprintf("failed to open %s: %v", searchURL, err))}
	}

	steps := make([]models.CheckStepResult, 0, len(policy.Queries))
	for i, query := range policy.Queries {
		steps = append(steps, r.checkQuery(ctx, s, sel, i+1, query))

		if i < len(policy.Queries)-1 {
			// Prefer the in-app reset; fall back to reloading the page.
			if err := s.Handle.Click(sel.Search.NewSearchButton); err != nil {
				if err := r.open(s, searchURL); err != nil {
					steps = append(steps, failedStep("reset search", err.Error()))
					break
				}
			} else {
				time.Sleep(r.cfg.Waits.PageSettle.Std())
			}
		}
	}
	return steps
}

func (r *Runner) checkQuery(ctx context.Context, s *session.Session, sel config.Selectors, index int, query string) models.CheckStepResult {
	step := models.CheckStepResult{
		Name:      fmt.Sprintf("query %d: %s", index, query),
		Timestamp: time.Now(),
	}

	if err := s.Handle.Fill(sel.Search.Input, query); err != nil {
		step.Message = fmt.Sprintf("failed to enter query: %v", err)
		return step
	}
	if err := s.Handle.Click(sel.Search.SendButton); err != nil {
		step.Message = fmt.Sprintf("failed to send query: %v", err)
		return step
	}

	policy := r.cfg.SearchResults
	rubric := oracle.SearchStateRubric(query)
	result, err := poll.Run(ctx, poll.Spec{
		Capture: func() ([]byte, error) { return s.Handle.Screenshot(false) },
		Classify: func(ctx context.Context, image []byte) (oracle.Classification, error) {
			return r.classifier.Classify(ctx, image, rubric)
		},
		Decide: func(label string) poll.Decision {
			switch label {
			case oracle.LabelAnswerReturned:
				return poll.Success
			case oracle.LabelSearchFailed:
				return poll.Failure
			}
			return poll.Continue
		},
		Persist:     r.persister("check-search", s.ID, fmt.Sprintf("query%d", index)),
		Interval:    policy.Interval.Std(),
		MaxAttempts: policy.MaxAttempts,
	})
	if err != nil {
		step.Message = fmt.Sprintf("query check aborted: %v", err)
		return step
	}

	step.ArtifactURL = result.LastArtifactURL()
	step.ArtifactURLs = result.ArtifactURLs()
	step.ElapsedMs = result.Elapsed.Milliseconds()

	switch result.Outcome {
	case poll.OutcomeSuccess:
		step.Passed = true
		step.Message = fmt.Sprintf("answer returned in %.1fs", result.Elapsed.Seconds())
	case poll.OutcomeFailure:
		step.Message = "the application reported the search as failed"
	default:
		step.Message = fmt.Sprintf("no answer within %d attempts (%.1fs)", result.Attempts, result.Elapsed.Seconds())
	}
	return step
}

// persister adapts the artifact store to the poll loop's Persist hook.
// Returns nil when no store is configured.
func (r *Runner) persister(prefix, sessionID, label string) func(int, string, []byte) (string, error) {
	if r.artifacts == nil {
		return nil
	}
	return func(attempt int, _ string, image []byte) (string, error) {
		return r.artifacts.Save(prefix, sessionID, fmt.Sprintf("%s-attempt%d", label, attempt), image)
	}
}

func (r *Runner) open(s *session.Session, target string) error {
	if err := s.Handle.Navigate(target); err != nil {
		return err
	}
	time.Sleep(r.cfg.Waits.PageSettle.Std())
	return nil
}

func failedStep(name, message string) models.CheckStepResult {
	return models.CheckStepResult{
		Name:      name,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// summarize renders the operator-facing report with one checked or crossed
// line per sub-step.
func summarize(checkID string, env models.Environment, passed bool, steps []models.CheckStepResult) string {
	var b strings.Builder

	verdict := "PASSED"
	if !passed {
		verdict = "FAILED"
	}
	fmt.Fprintf(&b, "[%s] %s: %s\n", env, checkID, verdict)
	for _, step := range steps {
		mark := "✗"
		if step.Passed {
			mark = "✓"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", mark, step.Name, step.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// pageOrigin reduces a URL to scheme://host so check areas can be reached
// from wherever the session currently is.
func pageOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	return u.Scheme + "://" + u.Host
}
