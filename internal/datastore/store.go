// internal/datastore/store.go
package datastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/models"
)

var (
	ErrNoSuchUser    = errors.New("no such user")
	ErrNoSuchRoom    = errors.New("no such room")
	ErrUserExists    = errors.New("user already exists")
	ErrDuplicateRoom = errors.New("duplicate room")
	ErrMissingID     = errors.New("missing id")
)

// Store holds the user and room tables plus the game log sink.
// It is owned by a single goroutine (the Server loop) and is not safe for concurrent use.
type Store struct {
	users map[int]*models.User
	rooms map[int]*models.Room

	nextUserID int
	nextRoomID int
	nextLogID  int

	gameLogPath string
	log         *logrus.Logger
	now         func() time.Time
}

// NewStore returns an empty store that appends game logs to gameLogPath.
func NewStore(gameLogPath string, logger *logrus.Logger) *Store {
	return &Store{
		users:       make(map[int]*models.User),
		rooms:       make(map[int]*models.Room),
		gameLogPath: gameLogPath,
		log:         logger,
		now:         time.Now,
	}
}

// gameLogEntry is one line of the game log file.
type gameLogEntry struct {
	ID int `json:"id"`
	models.GameLog
}

// CreateUser inserts u with the next user id.
func (s *Store) CreateUser(u models.User) (int, error) {
	if _, ok := s.findUser(u.Name); ok {
		return -1, ErrUserExists
	}
	u.Normalize()
	u.ID = s.nextUserID
	s.nextUserID++
	if u.LastLogin.IsZero() {
		u.LastLogin = s.now()
	}
	s.users[u.ID] = &u
	s.log.WithFields(logrus.Fields{"id": u.ID, "name": u.Name}).Info("created user")
	return u.ID, nil
}

// CreateRoom inserts r with the next room id. Names must be unique.
func (s *Store) CreateRoom(r models.Room) (int, error) {
	if _, ok := s.findRoom(r.Name); ok {
		return -1, ErrDuplicateRoom
	}
	r.Normalize()
	r.ID = s.nextRoomID
	s.nextRoomID++
	s.rooms[r.ID] = &r
	s.log.WithFields(logrus.Fields{
		"id":         r.ID,
		"name":       r.Name,
		"host":       r.HostUser,
		"visibility": r.Visibility,
	}).Info("created room")
	return r.ID, nil
}

// AppendGameLog writes g as one JSON line to the game log file. Nothing is kept in memory.
func (s *Store) AppendGameLog(g models.GameLog) (int, error) {
	if g.EndedAt.IsZero() {
		g.EndedAt = s.now()
	}
	id := s.nextLogID
	line, err := json.Marshal(gameLogEntry{ID: id, GameLog: g})
	if err != nil {
		return -1, fmt.Errorf("marshal game log: %w", err)
	}
	if dir := filepath.Dir(s.gameLogPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return -1, fmt.Errorf("create game log dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.gameLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return -1, fmt.Errorf("open game log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return -1, fmt.Errorf("append game log: %w", err)
	}
	s.nextLogID++
	s.log.WithFields(logrus.Fields{"id": id, "room": g.Room}).Info("appended game log")
	return id, nil
}

// QueryUser looks a user up by id when id is non-nil, else by name.
func (s *Store) QueryUser(id *int, name string) (models.User, error) {
	if id != nil {
		if u, ok := s.users[*id]; ok {
			return *u, nil
		}
		return models.User{}, ErrNoSuchUser
	}
	if u, ok := s.findUser(name); ok {
		return *u, nil
	}
	return models.User{}, ErrNoSuchUser
}

// QueryRoom looks a room up by id when id is non-nil, else by name.
func (s *Store) QueryRoom(id *int, name string) (models.Room, error) {
	if id != nil {
		if r, ok := s.rooms[*id]; ok {
			return copyRoom(r), nil
		}
		return models.Room{}, ErrNoSuchRoom
	}
	if r, ok := s.findRoom(name); ok {
		return copyRoom(r), nil
	}
	return models.Room{}, ErrNoSuchRoom
}

// SearchUsers returns every idle user ordered by id.
func (s *Store) SearchUsers() []models.User {
	var out []models.User
	for _, id := range sortedKeys(s.users) {
		if u := s.users[id]; u.Status == models.StatusIdle {
			out = append(out, *u)
		}
	}
	return out
}

// SearchRooms returns every room with the given visibility ordered by id.
func (s *Store) SearchRooms(vis models.Visibility) []models.Room {
	var out []models.Room
	for _, id := range sortedKeys(s.rooms) {
		if r := s.rooms[id]; r.Visibility == vis {
			out = append(out, copyRoom(r))
		}
	}
	return out
}

// UpdateUser merges p onto the stored user.
func (s *Store) UpdateUser(p models.UserPatch) (models.User, error) {
	if p.ID == nil {
		return models.User{}, ErrMissingID
	}
	u, ok := s.users[*p.ID]
	if !ok {
		s.log.WithField("id", *p.ID).Warn("update user: not found")
		return models.User{}, ErrNoSuchUser
	}
	if p.Name != nil && *p.Name != u.Name {
		if other, taken := s.findUser(*p.Name); taken && other.ID != u.ID {
			return models.User{}, ErrUserExists
		}
	}
	p.Apply(u)
	s.log.WithFields(logrus.Fields{"id": u.ID, "status": u.Status, "room": u.RoomName}).Debug("updated user")
	return *u, nil
}

// UpdateRoom merges p onto the stored room.
func (s *Store) UpdateRoom(p models.RoomPatch) (models.Room, error) {
	if p.ID == nil {
		return models.Room{}, ErrMissingID
	}
	r, ok := s.rooms[*p.ID]
	if !ok {
		s.log.WithField("id", *p.ID).Warn("update room: not found")
		return models.Room{}, ErrNoSuchRoom
	}
	if p.Name != nil && *p.Name != r.Name {
		if other, taken := s.findRoom(*p.Name); taken && other.ID != r.ID {
			return models.Room{}, ErrDuplicateRoom
		}
	}
	p.Apply(r)
	s.log.WithFields(logrus.Fields{"id": r.ID, "name": r.Name, "status": r.Status}).Debug("updated room")
	return copyRoom(r), nil
}

// DeleteRoom removes the room with the given name.
func (s *Store) DeleteRoom(name string) error {
	r, ok := s.findRoom(name)
	if !ok {
		s.log.WithField("name", name).Warn("delete room: not found")
		return ErrNoSuchRoom
	}
	delete(s.rooms, r.ID)
	s.log.WithFields(logrus.Fields{"id": r.ID, "name": name}).Info("deleted room")
	return nil
}

func (s *Store) findUser(name string) (*models.User, bool) {
	if name == "" {
		return nil, false
	}
	for _, u := range s.users {
		if u.Name == name {
			return u, true
		}
	}
	return nil, false
}

func (s *Store) findRoom(name string) (*models.Room, bool) {
	if name == "" {
		return nil, false
	}
	for _, r := range s.rooms {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

func copyRoom(r *models.Room) models.Room {
	out := *r
	out.InviteList = append([]int{}, r.InviteList...)
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
