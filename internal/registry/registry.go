// Package registry tracks which chat users are authorized to use the bot
// and which are banned. The two sets are kept in independent files and the
// ban set takes precedence at every gated operation.
package registry

import (
	"strconv"

	"github.com/nevskii/vpnkeybot/internal/storage"
)

// Registry maintains the authorized and banned user-ID sets.
type Registry struct {
	adminID    int64
	authorized *storage.LineStore
	banned     *storage.LineStore
}

// New constructs a Registry over the given stores. adminID identifies the
// privileged administrator, who is always treated as authorized.
func New(adminID int64, authorized, banned *storage.LineStore) *Registry {
	return &Registry{adminID: adminID, authorized: authorized, banned: banned}
}

// AdminID returns the privileged administrator's user ID.
func (r *Registry) AdminID() int64 { return r.adminID }

// IsAdmin reports whether userID is the privileged administrator.
func (r *Registry) IsAdmin(userID int64) bool { return userID == r.adminID }

// IsBanned reports whether userID is in the banned set.
func (r *Registry) IsBanned(userID int64) (bool, error) {
	return contains(r.banned, userID)
}

// IsAuthorized reports whether userID is in the authorized set. The
// administrator is always authorized.
func (r *Registry) IsAuthorized(userID int64) (bool, error) {
	if r.IsAdmin(userID) {
		return true, nil
	}
	return contains(r.authorized, userID)
}

// Grant adds userID to the authorized set. It is idempotent and does not
// touch the ban list.
func (r *Registry) Grant(userID int64) error {
	return addUnique(r.authorized, userID)
}

// Deny adds userID to the banned set. It is idempotent and does not
// consult the authorized set; the two sets are maintained independently
// and the ban set wins at every gated operation.
func (r *Registry) Deny(userID int64) error {
	return addUnique(r.banned, userID)
}

// Unban removes userID from the banned set. Removing an absent user is a
// no-op.
func (r *Registry) Unban(userID int64) error {
	entry := strconv.FormatInt(userID, 10)
	return r.banned.Update(func(lines []string) []string {
		out := lines[:0]
		for _, line := range lines {
			if line != entry {
				out = append(out, line)
			}
		}
		return out
	})
}

// Authorized returns the authorized user IDs in file order.
func (r *Registry) Authorized() ([]int64, error) {
	return ids(r.authorized)
}

// Banned returns the banned user IDs in file order.
func (r *Registry) Banned() ([]int64, error) {
	return ids(r.banned)
}

func contains(store *storage.LineStore, userID int64) (bool, error) {
	lines, err := store.Lines()
	if err != nil {
		return false, err
	}
	entry := strconv.FormatInt(userID, 10)
	for _, line := range lines {
		if line == entry {
			return true, nil
		}
	}
	return false, nil
}

func addUnique(store *storage.LineStore, userID int64) error {
	entry := strconv.FormatInt(userID, 10)
	return store.Update(func(lines []string) []string {
		for _, line := range lines {
			if line == entry {
				return lines
			}
		}
		return append(lines, entry)
	})
}

func ids(store *storage.LineStore) ([]int64, error) {
	lines, err := store.Lines()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(lines))
	for _, line := range lines {
		id, errParse := strconv.ParseInt(line, 10, 64)
		if errParse != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
