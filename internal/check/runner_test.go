package check

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uiwatch/uiwatch/internal/config"
	"github.com/uiwatch/uiwatch/internal/driver"
	"github.com/uiwatch/uiwatch/internal/oracle"
	"github.com/uiwatch/uiwatch/internal/session"
	"github.com/uiwatch/uiwatch/pkg/models"
)

type fakeHandle struct {
	url        string
	filled     map[string]string
	clicked    []string
	failClicks map[string]error
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		url:        "https://app.example.com/home",
		filled:     make(map[string]string),
		failClicks: make(map[string]error),
	}
}

func (f *fakeHandle) Navigate(url string) error {
	f.url = url
	return nil
}

func (f *fakeHandle) Fill(locator, text string) error {
	f.filled[locator] = text
	return nil
}

func (f *fakeHandle) Click(locator string) error {
	if err, ok := f.failClicks[locator]; ok {
		return err
	}
	f.clicked = append(f.clicked, locator)
	return nil
}

func (f *fakeHandle) WaitForLocator(string, time.Duration) (driver.WaitOutcome, error) {
	return driver.Found, nil
}

func (f *fakeHandle) WaitForCondition(string, time.Duration) (driver.WaitOutcome, error) {
	return driver.Found, nil
}

func (f *fakeHandle) Screenshot(bool) ([]byte, error)      { return []byte("png"), nil }
func (f *fakeHandle) CurrentURL() string                   { return f.url }
func (f *fakeHandle) Evaluate(string) (interface{}, error) { return nil, nil }
func (f *fakeHandle) Close() error                         { return nil }

// scriptClassifier returns labels in order, repeating the last one when the
// script runs out. The sentinel "ERR" produces a hard oracle error.
type scriptClassifier struct {
	labels []string
	calls  int
}

func (c *scriptClassifier) Classify(context.Context, []byte, string) (oracle.Classification, error) {
	i := c.calls
	if i >= len(c.labels) {
		i = len(c.labels) - 1
	}
	c.calls++
	label := c.labels[i]
	if label == "ERR" {
		return oracle.Classification{}, fmt.Errorf("%w: oracle down", models.ErrOracleUnavailable)
	}
	return oracle.Classification{Label: label, Confidence: 90}, nil
}

func testChecks() *config.ChecksConfig {
	cfg := config.DefaultChecks()
	cfg.Waits.PageSettle = 0
	cfg.DocsLoading.Interval = 0
	cfg.DocsLoading.MaxAttempts = 2
	cfg.SearchResults.Interval = 0
	cfg.SearchResults.MaxAttempts = 3
	return cfg
}

func newTestRunner(t *testing.T, h driver.Handle, classifier oracle.Classifier, cfg *config.ChecksConfig) (*Runner, string) {
	t.Helper()
	registry := session.NewRegistry(10, 10*time.Minute)
	s, err := registry.Create(h, models.EnvProduction, "", "")
	require.NoError(t, err)
	registry.SetStatus(s.ID, models.StatusActive)
	return New(registry, classifier, nil, cfg), s.ID
}

func TestDocsLoadingAllPass(t *testing.T) {
	cfg := testChecks()
	h := newFakeHandle()
	classifier := &scriptClassifier{labels: []string{oracle.LabelContentLoaded}}

	r, id := newTestRunner(t, h, classifier, cfg)

	res, err := r.Run(context.Background(), id, DocsLoading)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Len(t, res.Steps, cfg.DocsLoading.Count)
	assert.Contains(t, res.Summary, "PASSED")
	assert.Contains(t, res.Summary, "✓ document 1")

	// One open per document plus the initial list navigation and returns.
	assert.Equal(t, "https://app.example.com"+cfg.Selectors.Docs.Path, h.url)
}

func TestDocsLoadingStepIsolation(t *testing.T) {
	cfg := testChecks()
	h := newFakeHandle()
	h.failClicks[fmt.Sprintf(cfg.Selectors.Docs.ItemPattern, 2)] = errors.New("nothing to click")
	classifier := &scriptClassifier{labels: []string{oracle.LabelContentLoaded}}

	r, id := newTestRunner(t, h, classifier, cfg)

	res, err := r.Run(context.Background(), id, DocsLoading)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Steps, 3)
	assert.True(t, res.Steps[0].Passed)
	assert.False(t, res.Steps[1].Passed)
	assert.True(t, res.Steps[2].Passed, "a failing sibling must not abort later documents")
	assert.Contains(t, res.Summary, "✗ document 2")
}

func TestDocsLoadingContentMissing(t *testing.T) {
	cfg := testChecks()
	cfg.DocsLoading.Count = 1
	h := newFakeHandle()
	classifier := &scriptClassifier{labels: []string{oracle.LabelContentMissing}}

	r, id := newTestRunner(t, h, classifier, cfg)

	res, err := r.Run(context.Background(), id, DocsLoading)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Steps[0].Message, "without content")
}

func TestSearchResultsAllPass(t *testing.T) {
	cfg := testChecks()
	h := newFakeHandle()
	classifier := &scriptClassifier{labels: []string{oracle.LabelAnswerReturned}}

	r, id := newTestRunner(t, h, classifier, cfg)

	res, err := r.Run(context.Background(), id, SearchResults)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	require.Len(t, res.Steps, len(cfg.SearchResults.Queries))

	lastQuery := cfg.SearchResults.Queries[len(cfg.SearchResults.Queries)-1]
	assert.Equal(t, lastQuery, h.filled[cfg.Selectors.Search.Input])
	assert.Contains(t, res.Summary, "answer returned")
}

func TestSearchResultsPollsUntilAnswer(t *testing.T) {
	cfg := testChecks()
	cfg.SearchResults.Queries = []string{"only query"}
	h := newFakeHandle()
	classifier := &scriptClassifier{labels: []string{
		oracle.LabelSearching,
		oracle.LabelSearching,
		oracle.LabelAnswerReturned,
	}}

	r, id := newTestRunner(t, h, classifier, cfg)

	res, err := r.Run(context.Background(), id, SearchResults)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 3, classifier.calls)
}

func TestSearchResultsTimeout(t *testing.T) {
	cfg := testChecks()
	cfg.SearchResults.Queries = []string{"only query"}
	h := newFakeHandle()
	classifier := &scriptClassifier{labels: []string{oracle.LabelSearching}}

	r, id := newTestRunner(t, h, classifier, cfg)

	res, err := r.Run(context.Background(), id, SearchResults)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Steps[0].Message, "no answer within")
}

func TestOracleOutageRecordedPerStep(t *testing.T) {
	cfg := testChecks()
	cfg.SearchResults.Queries = []string{"first", "second"}
	h := newFakeHandle()
	classifier := &scriptClassifier{labels: []string{
		"ERR",
		oracle.LabelAnswerReturned,
	}}

	r, id := newTestRunner(t, h, classifier, cfg)

	res, err := r.Run(context.Background(), id, SearchResults)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Steps, 2)
	assert.Contains(t, res.Steps[0].Message, "aborted")
	assert.True(t, res.Steps[1].Passed, "an oracle outage on one query must not abort the next")
}

func TestUnknownCheckID(t *testing.T) {
	h := newFakeHandle()
	r, id := newTestRunner(t, h, &scriptClassifier{labels: []string{"x"}}, testChecks())

	_, err := r.Run(context.Background(), id, "no-such-check")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUnknownSession(t *testing.T) {
	h := newFakeHandle()
	r, _ := newTestRunner(t, h, &scriptClassifier{labels: []string{"x"}}, testChecks())

	_, err := r.Run(context.Background(), "no-such-id", DocsLoading)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSummaryCarriesEnvironmentTag(t *testing.T) {
	cfg := testChecks()
	cfg.DocsLoading.Count = 1
	h := newFakeHandle()
	classifier := &scriptClassifier{labels: []string{oracle.LabelContentLoaded}}

	r, id := newTestRunner(t, h, classifier, cfg)

	res, err := r.Run(context.Background(), id, DocsLoading)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Summary, "[production]"), res.Summary)
}
