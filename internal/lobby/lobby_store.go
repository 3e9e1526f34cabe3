// internal/lobby/lobby_store.go
package lobby

import (
	"sync"

	"github.com/google/uuid"
)

// SessionStore indexes live sessions by id and by logged-in user name.
type SessionStore struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*Session
	byName map[string]*Session
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		byID:   make(map[uuid.UUID]*Session),
		byName: make(map[string]*Session),
	}
}

func (s *SessionStore) Add(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sess.ID] = sess
}

// Remove drops the session and its user binding.
func (s *SessionStore) Remove(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, sess.ID)
	if cur, ok := s.byName[sess.user.Name]; ok && cur == sess {
		delete(s.byName, sess.user.Name)
	}
}

// Bind records that sess is logged in as name.
func (s *SessionStore) Bind(name string, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[name] = sess
}

func (s *SessionStore) Unbind(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byName, name)
}

// ByName returns the session logged in as name, if any.
func (s *SessionStore) ByName(name string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byName[name]
	return sess, ok
}

// All returns a snapshot of every session.
func (s *SessionStore) All() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.byID))
	for _, sess := range s.byID {
		out = append(out, sess)
	}
	return out
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
