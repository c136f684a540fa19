// Package sites maintains the block-list exception file: URLs users asked
// to route outside the VPN tunnel. The set only grows here; pruning is an
// operator action on the file itself.
package sites

import (
	"errors"
	"strings"

	"github.com/nevskii/vpnkeybot/internal/storage"
)

// ErrInvalidURL indicates the submitted value is not an http(s) URL.
var ErrInvalidURL = errors.New("invalid site url")

// List is the set of site exceptions.
type List struct {
	store *storage.LineStore
}

// NewList constructs a List over the exceptions file.
func NewList(store *storage.LineStore) *List {
	return &List{store: store}
}

// Add inserts url into the exception set. It reports whether the URL was
// new; adding an existing URL is a no-op.
func (l *List) Add(url string) (bool, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return false, ErrInvalidURL
	}

	added := false
	err := l.store.Update(func(lines []string) []string {
		for _, line := range lines {
			if line == url {
				return lines
			}
		}
		added = true
		return append(lines, url)
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// All returns every exception URL in file order.
func (l *List) All() ([]string, error) {
	return l.store.Lines()
}
