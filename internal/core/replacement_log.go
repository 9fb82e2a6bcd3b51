package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JonMunkholm/ecpack/internal/transform"
)

// ReplacementLogFile persists the log of the latest PINFL run. Each run
// replaces the shared file and the running owner's own copy next to it, so
// concurrent owners never lose their log to each other. A reader never sees
// a half-written log.
type ReplacementLogFile struct {
	path string
	mu   sync.Mutex
}

// NewReplacementLogFile returns a writer for path. An empty path disables
// persistence.
func NewReplacementLogFile(path string) *ReplacementLogFile {
	return &ReplacementLogFile{path: path}
}

// Path returns the shared log location.
func (f *ReplacementLogFile) Path() string { return f.path }

// OwnerPath returns where owner's log is kept: the shared path with the
// owner appended to the base name. It is empty when persistence is off or
// owner is empty.
func (f *ReplacementLogFile) OwnerPath(owner string) string {
	if f == nil || f.path == "" || owner == "" {
		return ""
	}
	ext := filepath.Ext(f.path)
	return strings.TrimSuffix(f.path, ext) + "_" + fileSafe(owner) + ext
}

// Write overwrites the owner's log and the shared log with entries and
// returns the text written.
func (f *ReplacementLogFile) Write(owner string, entries transform.ReplacementLog) (string, error) {
	var buf bytes.Buffer
	if _, err := entries.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("format replacement log: %w", err)
	}
	if f == nil || f.path == "" {
		return buf.String(), nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if p := f.OwnerPath(owner); p != "" {
		if err := replaceFile(p, buf.Bytes()); err != nil {
			return "", err
		}
	}
	if err := replaceFile(f.path, buf.Bytes()); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// replaceFile writes data to a temp file beside path and renames it over
// path.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("replacement log dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".replacements-*")
	if err != nil {
		return fmt.Errorf("replacement log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("replacement log mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write replacement log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write replacement log: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace log file: %w", err)
	}
	return nil
}
