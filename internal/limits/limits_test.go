package limits

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/nevskii/vpnkeybot/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(
		storage.NewLineStore(filepath.Join(dir, "key_limit.txt")),
		storage.NewLineStore(filepath.Join(dir, "user_limits.txt")),
	)
}

func TestGlobalLimitDefaultsToTen(t *testing.T) {
	s := newTestStore(t)

	n, err := s.GlobalLimit()
	if err != nil {
		t.Fatalf("global limit: %v", err)
	}
	if n != DefaultGlobalLimit {
		t.Fatalf("expected default %d, got %d", DefaultGlobalLimit, n)
	}
}

func TestSetGlobalLimitRejectsNonPositive(t *testing.T) {
	s := newTestStore(t)

	for _, n := range []int{0, -3} {
		if err := s.SetGlobalLimit(n); !errors.Is(err, ErrInvalidLimit) {
			t.Fatalf("expected ErrInvalidLimit for %d, got %v", n, err)
		}
	}
}

func TestSetUserLimitRejectsNonPositive(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetUserLimit(100, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestOverrideShadowsGlobalDefault(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetGlobalLimit(1); err != nil {
		t.Fatalf("set global: %v", err)
	}
	if err := s.SetUserLimit(100, 3); err != nil {
		t.Fatalf("set user limit: %v", err)
	}

	n, err := s.EffectiveLimit(100)
	if err != nil {
		t.Fatalf("effective limit: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected override 3 for user 100, got %d", n)
	}

	// A fresh user without an override still sees the global default.
	n, err = s.EffectiveLimit(400)
	if err != nil {
		t.Fatalf("effective limit: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected global default 1 for user 400, got %d", n)
	}
}

func TestOverrideIndependentOfLaterGlobalChanges(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetUserLimit(100, 3); err != nil {
		t.Fatalf("set user limit: %v", err)
	}
	if err := s.SetGlobalLimit(20); err != nil {
		t.Fatalf("set global: %v", err)
	}

	n, err := s.EffectiveLimit(100)
	if err != nil {
		t.Fatalf("effective limit: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected override 3 to survive global change, got %d", n)
	}
}

func TestSetUserLimitReplacesPreviousOverride(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetUserLimit(100, 3); err != nil {
		t.Fatalf("set user limit: %v", err)
	}
	if err := s.SetUserLimit(100, 7); err != nil {
		t.Fatalf("set user limit again: %v", err)
	}

	n, err := s.EffectiveLimit(100)
	if err != nil {
		t.Fatalf("effective limit: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected latest override 7, got %d", n)
	}
}

func TestClearUserLimitRevertsToGlobal(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetGlobalLimit(5); err != nil {
		t.Fatalf("set global: %v", err)
	}
	if err := s.SetUserLimit(100, 2); err != nil {
		t.Fatalf("set user limit: %v", err)
	}
	if err := s.ClearUserLimit(100); err != nil {
		t.Fatalf("clear user limit: %v", err)
	}

	n, err := s.EffectiveLimit(100)
	if err != nil {
		t.Fatalf("effective limit: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected global 5 after clearing override, got %d", n)
	}
}
