// Package ledger keeps the append-only history of credential issuances.
// Every hand-off is recorded twice: a machine-readable index line used for
// membership and count checks, and a human-readable audit line. Neither
// file is ever rewritten, so per-user counts can only grow.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nevskii/vpnkeybot/internal/storage"
)

const timestampLayout = "2006-01-02 15:04:05"

// Ledger records issuance events and answers per-user usage queries.
type Ledger struct {
	index    *storage.LineStore
	auditLog *storage.LineStore
	now      func() time.Time
}

// New constructs a Ledger over the index and audit-log stores.
func New(index, auditLog *storage.LineStore) *Ledger {
	return &Ledger{index: index, auditLog: auditLog, now: time.Now}
}

// Record appends one issuance event for userID. username is the display
// name at the time of issuance; it is kept only in the audit line.
func (l *Ledger) Record(userID int64, username, filename string) error {
	auditLine := fmt.Sprintf("%s - User: %s (ID: %d) - Key: %s",
		l.now().Format(timestampLayout), username, userID, filename)
	if err := l.index.Append(indexEntry(userID, filename)); err != nil {
		return err
	}
	return l.auditLog.Append(auditLine)
}

// CountFor returns how many credentials userID has received.
func (l *Ledger) CountFor(userID int64) (int, error) {
	entries, err := l.entriesFor(userID)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// HasAny reports whether userID has ever received a credential.
func (l *Ledger) HasAny(userID int64) (bool, error) {
	n, err := l.CountFor(userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EventsFor returns the filenames issued to userID in chronological order.
func (l *Ledger) EventsFor(userID int64) ([]string, error) {
	return l.entriesFor(userID)
}

// Contains reports whether any issuance event references filename. Used
// by the startup reconciliation pass over staged credentials.
func (l *Ledger) Contains(filename string) (bool, error) {
	lines, err := l.index.Lines()
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if _, name, ok := splitIndexEntry(line); ok && name == filename {
			return true, nil
		}
	}
	return false, nil
}

// TotalIssued returns the total number of issuance events.
func (l *Ledger) TotalIssued() (int, error) {
	lines, err := l.index.Lines()
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}

func (l *Ledger) entriesFor(userID int64) ([]string, error) {
	lines, err := l.index.Lines()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range lines {
		id, name, ok := splitIndexEntry(line)
		if ok && id == userID {
			out = append(out, name)
		}
	}
	return out, nil
}

func indexEntry(userID int64, filename string) string {
	return fmt.Sprintf("%d:%s", userID, filename)
}

func splitIndexEntry(line string) (int64, string, bool) {
	idPart, name, ok := strings.Cut(line, ":")
	if !ok || name == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, name, true
}
