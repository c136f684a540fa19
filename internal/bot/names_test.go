package bot

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestDisplayNamePrefersUsername(t *testing.T) {
	if got := displayName("alice", "Alice", "Smith"); got != "@alice" {
		t.Fatalf("expected @alice, got %s", got)
	}
}

func TestDisplayNameFallsBackToFullName(t *testing.T) {
	if got := displayName("", "Alice", "Smith"); got != "Alice Smith" {
		t.Fatalf("expected Alice Smith, got %s", got)
	}
	if got := displayName("", "Alice", ""); got != "Alice" {
		t.Fatalf("expected Alice, got %s", got)
	}
}

func TestDisplayNamePlaceholder(t *testing.T) {
	if got := displayName("", "", ""); got != unknownName {
		t.Fatalf("expected placeholder, got %s", got)
	}
	if got := userDisplayName(nil); got != unknownName {
		t.Fatalf("expected placeholder for nil sender, got %s", got)
	}
}

func TestUserDisplayName(t *testing.T) {
	from := &tgbotapi.User{UserName: "bob", FirstName: "Bob"}
	if got := userDisplayName(from); got != "@bob" {
		t.Fatalf("expected @bob, got %s", got)
	}
}
