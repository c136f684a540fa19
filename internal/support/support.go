// Package support builds and persists support tickets and suggestion
// notes before they are relayed to the administrator.
package support

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nevskii/vpnkeybot/internal/storage"
)

const timestampLayout = "2006-01-02 15:04:05 -0700"

// Kind distinguishes ticket categories.
type Kind string

// Ticket kinds.
const (
	KindIssue      Kind = "issue"
	KindSuggestion Kind = "suggestion"
)

// Ticket is one support request or suggestion from a user.
type Ticket struct {
	ID        string
	Kind      Kind
	UserID    int64
	Username  string
	Operator  string
	Text      string
	CreatedAt time.Time
}

// Log persists tickets to the support-requests file.
type Log struct {
	store *storage.LineStore
	now   func() time.Time
}

// NewLog constructs a Log over the support-requests store.
func NewLog(store *storage.LineStore) *Log {
	return &Log{store: store, now: time.Now}
}

// NewIssue creates and persists a support ticket for a VPN problem.
func (l *Log) NewIssue(userID int64, username, operator, description string) (Ticket, error) {
	return l.record(Ticket{
		Kind:     KindIssue,
		UserID:   userID,
		Username: username,
		Operator: operator,
		Text:     description,
	})
}

// NewSuggestion creates and persists a suggestion note.
func (l *Log) NewSuggestion(userID int64, username, text string) (Ticket, error) {
	return l.record(Ticket{
		Kind:     KindSuggestion,
		UserID:   userID,
		Username: username,
		Text:     text,
	})
}

func (l *Log) record(t Ticket) (Ticket, error) {
	t.ID = uuid.NewString()
	t.CreatedAt = l.now()

	line := fmt.Sprintf("%s | %s | %s | user=%d (%s)",
		t.CreatedAt.Format(timestampLayout), t.ID, t.Kind, t.UserID, t.Username)
	if t.Operator != "" {
		line += " | operator=" + sanitize(t.Operator)
	}
	line += " | " + sanitize(t.Text)

	if err := l.store.Append(line); err != nil {
		return Ticket{}, err
	}
	return t, nil
}

// sanitize keeps persisted tickets one line per record.
func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' {
			out = append(out, ' ')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
