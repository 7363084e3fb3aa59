// Package poll implements the bounded observe-classify-decide loop that
// underlies every asynchronous UI check. The loop itself is policy-free:
// capture, classification, label mapping, interval, and attempt budget all
// come from the caller.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/uiwatch/uiwatch/internal/oracle"
)

// Decision maps a classification label to what the loop should do next.
type Decision int

const (
	// Continue means the observed state is still in progress; poll again.
	Continue Decision = iota
	// Success terminates the loop with OutcomeSuccess.
	Success
	// Failure terminates the loop with OutcomeFailure.
	Failure
)

// Outcome is the terminal result of one loop run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// Observation is one captured frame plus its classification. The image
// bytes are dropped after persistence; only the artifact URL survives the
// iteration.
type Observation struct {
	CapturedAt     time.Time
	Classification oracle.Classification
	ArtifactURL    string
}

// Spec parameterizes one loop run.
type Spec struct {
	// Capture grabs the current frame.
	Capture func() ([]byte, error)

	// Classify labels a frame. An error here is a hard failure of the whole
	// poll, never a "continue".
	Classify func(ctx context.Context, image []byte) (oracle.Classification, error)

	// Decide maps a label to a Decision. Unrecognized labels should return
	// Continue.
	Decide func(label string) Decision

	// Persist writes the frame as an audit artifact and returns its URL.
	// Called for every iteration, including the terminal one, before the
	// classification is acted on. Optional.
	Persist func(attempt int, label string, image []byte) (string, error)

	// Interval is the sleep before each capture.
	Interval time.Duration

	// MaxAttempts bounds the loop. Must be at least 1.
	MaxAttempts int
}

// Result is the terminal outcome of a loop run.
type Result struct {
	Outcome      Outcome
	Attempts     int
	Elapsed      time.Duration
	Observations []Observation
}

// Run executes the loop until a terminal label, the attempt budget, or
// context cancellation. Capture, classification, and persistence errors
// abort the run immediately.
func Run(ctx context.Context, spec Spec) (Result, error) {
	if spec.MaxAttempts < 1 {
		return Result{}, fmt.Errorf("poll: max attempts must be at least 1")
	}

	start := time.Now()
	result := Result{}

	for result.Attempts < spec.MaxAttempts {
		if err := sleep(ctx, spec.Interval); err != nil {
			return result, err
		}
		result.Attempts++

		image, err := spec.Capture()
		if err != nil {
			result.Elapsed = time.Since(start)
			return result, fmt.Errorf("poll: capture failed on attempt %d: %w", result.Attempts, err)
		}

		classification, err := spec.Classify(ctx, image)
		if err != nil {
			result.Elapsed = time.Since(start)
			return result, fmt.Errorf("poll: classification failed on attempt %d: %w", result.Attempts, err)
		}

		obs := Observation{
			CapturedAt:     time.Now(),
			Classification: classification,
		}

		if spec.Persist != nil {
			url, err := spec.Persist(result.Attempts, classification.Label, image)
			if err != nil {
				result.Elapsed = time.Since(start)
				return result, fmt.Errorf("poll: artifact persistence failed on attempt %d: %w", result.Attempts, err)
			}
			obs.ArtifactURL = url
		}

		result.Observations = append(result.Observations, obs)

		switch spec.Decide(classification.Label) {
		case Success:
			result.Outcome = OutcomeSuccess
			result.Elapsed = time.Since(start)
			return result, nil
		case Failure:
			result.Outcome = OutcomeFailure
			result.Elapsed = time.Since(start)
			return result, nil
		}
	}

	result.Outcome = OutcomeTimeout
	result.Elapsed = time.Since(start)
	return result, nil
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastArtifactURL returns the artifact of the final observation, if any.
func (r Result) LastArtifactURL() string {
	if len(r.Observations) == 0 {
		return ""
	}
	return r.Observations[len(r.Observations)-1].ArtifactURL
}

// ArtifactURLs returns the artifact URLs of all observations in order.
func (r Result) ArtifactURLs() []string {
	urls := make([]string, 0, len(r.Observations))
	for _, obs := range r.Observations {
		if obs.ArtifactURL != "" {
			urls = append(urls, obs.ArtifactURL)
		}
	}
	return urls
}
