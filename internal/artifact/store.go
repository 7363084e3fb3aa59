// Package artifact persists observation screenshots as audit files. Every
// frame the oracle sees is written here first, named so an operator can
// reconstruct what happened: purpose prefix, state label, session id,
// timestamp.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/uiwatch/uiwatch/pkg/models"
)

var imagePattern = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif)$`)

// Store writes screenshot artifacts to a directory and serves their
// metadata. Files are referenced by URL in API responses, never inlined.
type Store struct {
	dir     string
	baseURL string
}

// NewStore creates the artifact directory if needed. baseURL is the public
// path prefix artifacts are served under, e.g. "/screenshots".
func NewStore(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Save writes one PNG artifact and returns its URL. The filename encodes
// {prefix}-{label}-{sessionID}-{timestamp}.png; label carries the sequence
// or state information ("q1-poll3-searching", "before", ...).
func (s *Store) Save(prefix, sessionID, label string, image []byte) (string, error) {
	name := fmt.Sprintf("%s-%s-%s-%s.png",
		sanitize(prefix), sanitize(label), sanitize(sessionID), timestamp())

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, image, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", name, err)
	}

	return s.baseURL + "/" + name, nil
}

// List returns metadata for every stored image, newest first.
func (s *Store) List() ([]models.ArtifactInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	artifacts := make([]models.ArtifactInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !imagePattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, models.ArtifactInfo{
			Name:      entry.Name(),
			URL:       s.baseURL + "/" + entry.Name(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// Delete removes one artifact by name. Names are flattened to their base so
// a crafted name cannot escape the artifact directory.
func (s *Store) Delete(name string) error {
	name = filepath.Base(name)
	path := filepath.Join(s.dir, name)

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("artifact %s: %w", name, models.ErrNotFound)
		}
		return fmt.Errorf("failed to stat artifact %s: %w", name, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", name, err)
	}
	return nil
}

// Dir returns the directory artifacts are stored in, for static serving.
func (s *Store) Dir() string {
	return s.dir
}

// timestamp renders UTC time with filesystem-safe separators.
func timestamp() string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	return strings.ReplaceAll(ts, ".", "-")
}

// sanitize keeps filename parts to a safe alphabet.
func sanitize(part string) string {
	var b strings.Builder
	for _, r := range part {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
