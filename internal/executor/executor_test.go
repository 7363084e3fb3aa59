package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uiwatch/uiwatch/internal/config"
	"github.com/uiwatch/uiwatch/internal/driver"
	"github.com/uiwatch/uiwatch/internal/session"
	"github.com/uiwatch/uiwatch/pkg/models"
)

type fakeHandle struct {
	url      string
	visible  map[string]bool
	filled   map[string]string
	clicked  []string
	fillErr  error
	clickErr error
	shotErr  error
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		url:     "https://app.example.com/home",
		visible: make(map[string]bool),
		filled:  make(map[string]string),
	}
}

func (f *fakeHandle) Navigate(url string) error {
	f.url = url
	return nil
}

func (f *fakeHandle) Fill(locator, text string) error {
	if f.fillErr != nil {
		return f.fillErr
	}
	f.filled[locator] = text
	return nil
}

func (f *fakeHandle) Click(locator string) error {
	if f.clickErr != nil {
		return f.clickErr
	}
	f.clicked = append(f.clicked, locator)
	return nil
}

func (f *fakeHandle) WaitForLocator(locator string, _ time.Duration) (driver.WaitOutcome, error) {
	if f.visible[locator] {
		return driver.Found, nil
	}
	return driver.TimedOut, nil
}

func (f *fakeHandle) WaitForCondition(_ string, _ time.Duration) (driver.WaitOutcome, error) {
	return driver.TimedOut, nil
}

func (f *fakeHandle) Screenshot(bool) ([]byte, error) {
	if f.shotErr != nil {
		return nil, f.shotErr
	}
	return []byte("png"), nil
}

func (f *fakeHandle) CurrentURL() string                   { return f.url }
func (f *fakeHandle) Evaluate(string) (interface{}, error) { return nil, nil }
func (f *fakeHandle) Close() error                         { return nil }

func testChecks() *config.ChecksConfig {
	cfg := config.DefaultChecks()
	cfg.Waits.InstructionWait = config.Duration(time.Millisecond)
	cfg.Waits.InstructionSettle = 0
	return cfg
}

func activeSession(t *testing.T, registry *session.Registry, h driver.Handle) *session.Session {
	t.Helper()
	s, err := registry.Create(h, models.EnvProduction, "", "")
	require.NoError(t, err)
	registry.SetStatus(s.ID, models.StatusActive)
	return s
}

func TestExecuteHappyPath(t *testing.T) {
	cfg := testChecks()
	registry := session.NewRegistry(10, 10*time.Minute)
	h := newFakeHandle()
	h.visible[cfg.Selectors.Search.ResponseContainer] = true

	e := New(registry, nil, cfg)
	s := activeSession(t, registry, h)

	res, err := e.Execute(context.Background(), s.ID, "show me the weekly report")
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Equal(t, "show me the weekly report", h.filled[cfg.Selectors.Search.Input])
	assert.Contains(t, h.clicked, cfg.Selectors.Search.SendButton)
	assert.Equal(t, h.url, res.CurrentURL)

	got, err := registry.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestExecuteToleratesResponseTimeout(t *testing.T) {
	cfg := testChecks()
	registry := session.NewRegistry(10, 10*time.Minute)
	h := newFakeHandle()

	e := New(registry, nil, cfg)
	s := activeSession(t, registry, h)

	res, err := e.Execute(context.Background(), s.ID, "anything")
	require.NoError(t, err)
	assert.False(t, res.Failed)

	found := false
	for _, line := range res.Logs {
		if line == "no response element within 1ms, continuing anyway" {
			found = true
		}
	}
	assert.True(t, found, "timeout should be logged, got %v", res.Logs)
}

func TestExecuteDriverErrorRestoresActive(t *testing.T) {
	cfg := testChecks()
	registry := session.NewRegistry(10, 10*time.Minute)
	h := newFakeHandle()
	h.fillErr = errors.New("element detached")

	e := New(registry, nil, cfg)
	s := activeSession(t, registry, h)

	res, err := e.Execute(context.Background(), s.ID, "anything")
	require.NoError(t, err)
	assert.True(t, res.Failed)

	got, err := registry.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestExecuteScreenshotFailureIsNotFatal(t *testing.T) {
	cfg := testChecks()
	registry := session.NewRegistry(10, 10*time.Minute)
	h := newFakeHandle()
	h.visible[cfg.Selectors.Search.ResponseContainer] = true
	h.shotErr = errors.New("page closed")

	e := New(registry, nil, cfg)
	s := activeSession(t, registry, h)

	res, err := e.Execute(context.Background(), s.ID, "anything")
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Empty(t, res.BeforeArtifactURL)
	assert.Empty(t, res.AfterArtifactURL)
}

func TestExecuteCancelledContext(t *testing.T) {
	cfg := testChecks()
	// A long settle that the cancelled context must cut short.
	cfg.Waits.InstructionSettle = config.Duration(time.Minute)
	registry := session.NewRegistry(10, 10*time.Minute)
	h := newFakeHandle()
	h.visible[cfg.Selectors.Search.ResponseContainer] = true

	e := New(registry, nil, cfg)
	s := activeSession(t, registry, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res, err := e.Execute(ctx, s.ID, "anything")
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Less(t, time.Since(start), 10*time.Second)

	got, err := registry.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestExecuteBusySession(t *testing.T) {
	cfg := testChecks()
	registry := session.NewRegistry(10, 10*time.Minute)
	h := newFakeHandle()

	e := New(registry, nil, cfg)
	s := activeSession(t, registry, h)

	_, release, err := registry.Acquire(s.ID)
	require.NoError(t, err)
	defer release()

	_, err = e.Execute(context.Background(), s.ID, "anything")
	assert.ErrorIs(t, err, models.ErrSessionBusy)
}

func TestExecuteUnknownSession(t *testing.T) {
	registry := session.NewRegistry(10, 10*time.Minute)
	e := New(registry, nil, testChecks())

	_, err := e.Execute(context.Background(), "no-such-id", "anything")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
