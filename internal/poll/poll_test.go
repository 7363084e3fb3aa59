package poll

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uiwatch/uiwatch/internal/oracle"
)

// scriptedSpec builds a Spec whose classifications come from the given
// label sequence, with no real sleeping.
func scriptedSpec(labels []string, maxAttempts int) Spec {
	attempt := 0
	return Spec{
		Capture: func() ([]byte, error) { return []byte("frame"), nil },
		Classify: func(context.Context, []byte) (oracle.Classification, error) {
			label := labels[attempt]
			attempt++
			return oracle.Classification{Label: label, Confidence: 90}, nil
		},
		Decide: func(label string) Decision {
			switch label {
			case "done":
				return Success
			case "broken":
				return Failure
			}
			return Continue
		},
		MaxAttempts: maxAttempts,
	}
}

func TestSuccessAtAttemptK(t *testing.T) {
	spec := scriptedSpec([]string{"working", "working", "done"}, 5)

	result, err := Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, result.Observations, 3)
}

func TestTimeoutAfterMaxAttempts(t *testing.T) {
	spec := scriptedSpec([]string{"working", "working", "working"}, 3)

	result, err := Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, result.Outcome)
	assert.Equal(t, 3, result.Attempts)
}

func TestFailureStopsImmediately(t *testing.T) {
	spec := scriptedSpec([]string{"broken", "done"}, 5)

	result, err := Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailure, result.Outcome)
	assert.Equal(t, 1, result.Attempts)
}

func TestUnrecognizedLabelContinues(t *testing.T) {
	spec := scriptedSpec([]string{"gibberish", "done"}, 5)

	result, err := Run(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 2, result.Attempts)
}

func TestClassifyErrorIsHardFailure(t *testing.T) {
	oracleDown := errors.New("oracle down")
	spec := Spec{
		Capture: func() ([]byte, error) { return []byte("frame"), nil },
		Classify: func(context.Context, []byte) (oracle.Classification, error) {
			return oracle.Classification{}, oracleDown
		},
		Decide:      func(string) Decision { return Continue },
		MaxAttempts: 5,
	}

	result, err := Run(context.Background(), spec)
	require.ErrorIs(t, err, oracleDown)
	assert.Equal(t, 1, result.Attempts)
}

func TestCaptureErrorIsHardFailure(t *testing.T) {
	captureErr := errors.New("page gone")
	spec := Spec{
		Capture:     func() ([]byte, error) { return nil, captureErr },
		Classify:    nil,
		Decide:      func(string) Decision { return Continue },
		MaxAttempts: 5,
	}

	_, err := Run(context.Background(), spec)
	assert.ErrorIs(t, err, captureErr)
}

func TestPersistErrorIsHardFailure(t *testing.T) {
	diskFull := errors.New("disk full")
	spec := scriptedSpec([]string{"done"}, 1)
	spec.Persist = func(int, string, []byte) (string, error) {
		return "", diskFull
	}

	_, err := Run(context.Background(), spec)
	assert.ErrorIs(t, err, diskFull)
}

func TestPersistRunsBeforeDecision(t *testing.T) {
	var persisted []string
	spec := scriptedSpec([]string{"working", "done"}, 5)
	spec.Persist = func(attempt int, label string, _ []byte) (string, error) {
		persisted = append(persisted, label)
		return fmt.Sprintf("/screenshots/frame-%d.png", attempt), nil
	}

	result, err := Run(context.Background(), spec)
	require.NoError(t, err)

	// The terminal observation is persisted too.
	assert.Equal(t, []string{"working", "done"}, persisted)
	assert.Equal(t, "/screenshots/frame-2.png", result.LastArtifactURL())
	assert.Equal(t, []string{"/screenshots/frame-1.png", "/screenshots/frame-2.png"}, result.ArtifactURLs())
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spec := scriptedSpec([]string{"working"}, 5)
	spec.Interval = time.Minute

	result, err := Run(ctx, spec)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Attempts)
}

func TestZeroAttemptsRejected(t *testing.T) {
	_, err := Run(context.Background(), Spec{MaxAttempts: 0})
	assert.Error(t, err)
}
