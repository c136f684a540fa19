// Package storage provides line-oriented file stores used as the bot's
// persistence layer. Each store owns exactly one file and serializes all
// access to it, so a read-modify-write on one file can never interleave
// with another on the same file.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LineStore persists one logical record per line in a single text file.
// All operations are safe for concurrent use; a missing file reads as empty.
type LineStore struct {
	mu   sync.Mutex
	path string
}

// NewLineStore constructs a LineStore for the given file path.
func NewLineStore(path string) *LineStore {
	return &LineStore{path: path}
}

// Path returns the backing file path.
func (s *LineStore) Path() string { return s.path }

// Lines returns all non-empty lines of the file in order.
func (s *LineStore) Lines() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Append adds one line to the end of the file, creating it if needed.
func (s *LineStore) Append(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", s.path, err)
	}
	defer f.Close()
	if _, err = f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("storage: append %s: %w", s.path, err)
	}
	return nil
}

// Overwrite replaces the file contents with the given lines. The new
// contents are written to a temporary file and renamed over the target,
// so a crash never leaves a partially written file behind.
func (s *LineStore) Overwrite(lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overwriteLocked(lines)
}

// Update applies fn to the current lines and overwrites the file with the
// result, all under the store lock. It is the primitive for operations of
// the form "read, decide, write" that must not interleave.
func (s *LineStore) Update(fn func(lines []string) []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLocked()
	if err != nil {
		return err
	}
	return s.overwriteLocked(fn(lines))
}

func (s *LineStore) readLocked() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", s.path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (s *LineStore) overwriteLocked(lines []string) error {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp for %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: write temp for %s: %w", s.path, err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: close temp for %s: %w", s.path, err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: replace %s: %w", s.path, err)
	}
	return nil
}
