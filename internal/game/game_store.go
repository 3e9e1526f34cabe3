package game

import (
	"sync"
)

// MatchStore tracks the running matches by room name.
type MatchStore struct {
	mu      sync.Mutex
	matches map[string]*Match
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches: make(map[string]*Match),
	}
}

// AddMatch registers m unless its room already has a running match.
func (s *MatchStore) AddMatch(m *Match) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[m.Room]; exists {
		return false
	}
	s.matches[m.Room] = m
	return true
}

func (s *MatchStore) GetMatch(room string) (*Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, exists := s.matches[room]
	return m, exists
}

func (s *MatchStore) DeleteMatch(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, room)
}

// Len returns the number of running matches.
func (s *MatchStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}
