package datastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/models"
)

// LoadUsers replaces the user table with the records in path. A missing file
// leaves the table empty. Every loaded user starts offline and outside any room,
// since rooms are not persisted.
func (s *Store) LoadUsers(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.WithField("path", path).Info("no user file found, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read users file: %w", err)
	}

	var users []models.User
	if err := json.Unmarshal(data, &users); err != nil {
		return fmt.Errorf("parse users file: %w", err)
	}

	s.users = make(map[int]*models.User, len(users))
	s.nextUserID = 0
	for i := range users {
		u := users[i]
		u.Status = models.StatusOffline
		u.RoomName = models.NoRoom
		u.Normalize()
		s.users[u.ID] = &u
		if u.ID >= s.nextUserID {
			s.nextUserID = u.ID + 1
		}
	}
	s.log.WithField("count", len(users)).Info("loaded users")
	return nil
}

// SaveUsers rewrites path with the whole user table.
func (s *Store) SaveUsers(path string) error {
	users := make([]models.User, 0, len(s.users))
	for _, id := range sortedKeys(s.users) {
		users = append(users, *s.users[id])
	}
	data, err := json.MarshalIndent(users, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal users: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create users dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace users file: %w", err)
	}
	s.log.WithFields(logrus.Fields{"path": path, "count": len(users)}).Info("users saved")
	return nil
}
