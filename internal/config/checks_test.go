package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uiwatch/uiwatch/pkg/models"
)

func TestDefaultChecks(t *testing.T) {
	cfg := DefaultChecks()

	assert.Equal(t, 3, cfg.DocsLoading.Count)
	assert.Equal(t, 4*time.Second, cfg.DocsLoading.Interval.Std())
	assert.Equal(t, 3, cfg.DocsLoading.MaxAttempts)

	assert.Len(t, cfg.SearchResults.Queries, 2)
	assert.Equal(t, 5*time.Second, cfg.SearchResults.Interval.Std())
	assert.Equal(t, 6, cfg.SearchResults.MaxAttempts)

	assert.Equal(t, 10*time.Second, cfg.Waits.SecondFactor.Std())
	assert.Equal(t, time.Second, cfg.Waits.PageSettle.Std())
	assert.NotEmpty(t, cfg.Selectors.Login.EmailInput)
	assert.NotEmpty(t, cfg.Selectors.Login.PathFragment)
}

func TestLoadChecksEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadChecks("")
	require.NoError(t, err)
	assert.Equal(t, DefaultChecks().DocsLoading, cfg.DocsLoading)
}

func TestLoadChecksOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stagingHostFragment: "qa."
waits:
  secondFactor: 30s
docsLoading:
  count: 5
searchResults:
  queries:
    - "custom question"
  interval: 2s
  maxAttempts: 4
`), 0644))

	cfg, err := LoadChecks(path)
	require.NoError(t, err)

	assert.Equal(t, "qa.", cfg.StagingHostFragment)
	assert.Equal(t, 30*time.Second, cfg.Waits.SecondFactor.Std())
	assert.Equal(t, 5, cfg.DocsLoading.Count)
	assert.Equal(t, []string{"custom question"}, cfg.SearchResults.Queries)
	assert.Equal(t, 2*time.Second, cfg.SearchResults.Interval.Std())
	assert.Equal(t, 4, cfg.SearchResults.MaxAttempts)

	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultChecks().Selectors.Login.EmailInput, cfg.Selectors.Login.EmailInput)
	assert.Equal(t, 3, cfg.DocsLoading.MaxAttempts)
}

func TestLoadChecksInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("waits:\n  secondFactor: soon\n"), 0644))

	_, err := LoadChecks(path)
	assert.Error(t, err)
}

func TestLoadChecksRejectsEmptyQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checks.yaml")
	require.NoError(t, os.WriteFile(path, []byte("searchResults:\n  queries: []\n"), 0644))

	_, err := LoadChecks(path)
	assert.Error(t, err)
}

func TestLoadChecksMissingFile(t *testing.T) {
	_, err := LoadChecks(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSelectorsForStagingOverride(t *testing.T) {
	cfg := DefaultChecks()

	assert.Equal(t, cfg.Selectors, cfg.SelectorsFor(models.EnvStaging))

	staging := cfg.Selectors
	staging.Login.EmailInput = `input[name="qa-email"]`
	cfg.Staging = &staging

	assert.Equal(t, `input[name="qa-email"]`, cfg.SelectorsFor(models.EnvStaging).Login.EmailInput)
	assert.Equal(t, DefaultChecks().Selectors.Login.EmailInput, cfg.SelectorsFor(models.EnvProduction).Login.EmailInput)
}
