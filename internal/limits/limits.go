// Package limits resolves how many credentials a user may receive. A
// per-user override, when present, shadows the global default, so the
// administrator can adjust a single user's quota without touching the
// shared policy while new users keep inheriting changes to the default.
package limits

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nevskii/vpnkeybot/internal/storage"
)

// DefaultGlobalLimit applies when no global limit has ever been stored.
const DefaultGlobalLimit = 10

// ErrInvalidLimit indicates a limit value that is not a positive integer.
var ErrInvalidLimit = errors.New("limit must be a positive integer")

// Store resolves effective per-user credential limits.
type Store struct {
	global    *storage.LineStore
	overrides *storage.LineStore
}

// NewStore constructs a Store over the global-limit and override files.
func NewStore(global, overrides *storage.LineStore) *Store {
	return &Store{global: global, overrides: overrides}
}

// GlobalLimit returns the stored global default, or DefaultGlobalLimit
// when the file is missing or unparseable.
func (s *Store) GlobalLimit() (int, error) {
	lines, err := s.global.Lines()
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return DefaultGlobalLimit, nil
	}
	n, errParse := strconv.Atoi(strings.TrimSpace(lines[0]))
	if errParse != nil || n <= 0 {
		return DefaultGlobalLimit, nil
	}
	return n, nil
}

// SetGlobalLimit stores a new global default. n must be positive.
func (s *Store) SetGlobalLimit(n int) error {
	if n <= 0 {
		return ErrInvalidLimit
	}
	return s.global.Overwrite([]string{strconv.Itoa(n)})
}

// EffectiveLimit returns the user's override when one exists, else the
// global default.
func (s *Store) EffectiveLimit(userID int64) (int, error) {
	overrides, err := s.userOverrides()
	if err != nil {
		return 0, err
	}
	if n, ok := overrides[userID]; ok {
		return n, nil
	}
	return s.GlobalLimit()
}

// SetUserLimit stores an override for userID. n must be positive.
func (s *Store) SetUserLimit(userID int64, n int) error {
	if n <= 0 {
		return ErrInvalidLimit
	}
	prefix := strconv.FormatInt(userID, 10) + ":"
	entry := fmt.Sprintf("%d:%d", userID, n)
	return s.overrides.Update(func(lines []string) []string {
		out := lines[:0]
		for _, line := range lines {
			if !strings.HasPrefix(line, prefix) {
				out = append(out, line)
			}
		}
		return append(out, entry)
	})
}

// ClearUserLimit removes the override for userID, reverting the user to
// the current global default. Clearing an absent override is a no-op.
func (s *Store) ClearUserLimit(userID int64) error {
	prefix := strconv.FormatInt(userID, 10) + ":"
	return s.overrides.Update(func(lines []string) []string {
		out := lines[:0]
		for _, line := range lines {
			if !strings.HasPrefix(line, prefix) {
				out = append(out, line)
			}
		}
		return out
	})
}

func (s *Store) userOverrides() (map[int64]int, error) {
	lines, err := s.overrides.Lines()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int, len(lines))
	for _, line := range lines {
		idPart, limitPart, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		id, errID := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		n, errN := strconv.Atoi(strings.TrimSpace(limitPart))
		if errID != nil || errN != nil || n <= 0 {
			continue
		}
		out[id] = n
	}
	return out, nil
}
