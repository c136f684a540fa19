// Package session tracks each user's position in a multi-step
// conversational flow. Every non-idle state can be cancelled back to Idle,
// so no flow ever leaves a user stuck without an escape.
package session

import "sync"

// State identifies where a user is in a conversational flow.
type State int

// Conversational states. Idle is the zero value.
const (
	Idle State = iota
	AwaitingOperator
	AwaitingDescription
	AwaitingReplyText
	AwaitingBroadcastText
	AwaitingLimitValue
	AwaitingGlobalLimit
	AwaitingSiteURL
	AwaitingArchive
	AwaitingSuggestionText
)

// Session is one user's conversational state plus the scratch data
// accumulated along the flow.
type Session struct {
	State State
	// SelectedUserID is the target of an in-progress admin action.
	SelectedUserID int64
	// Operator is the mobile carrier captured by the support flow.
	Operator string
	// ReplyToID is the user a support reply will be sent to.
	ReplyToID int64
}

// Store holds per-user sessions in memory. Sessions are conversational
// scratch state only and do not survive a restart.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewStore constructs an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Get returns a copy of the user's session, or an idle one if none exists.
func (s *Store) Get(userID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return *sess
	}
	return Session{}
}

// Update applies fn to the user's session under the store lock, creating
// an idle session first if none exists.
func (s *Store) Update(userID int64, fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{}
		s.sessions[userID] = sess
	}
	fn(sess)
}

// SetState transitions the user to the given state, keeping scratch data.
func (s *Store) SetState(userID int64, state State) {
	s.Update(userID, func(sess *Session) { sess.State = state })
}

// Reset returns the user to Idle and clears all scratch data. It is the
// universal cancel transition.
func (s *Store) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}
