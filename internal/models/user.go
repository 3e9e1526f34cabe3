package models

import "time"

// UserStatus is where a user currently is in the lobby lifecycle.
type UserStatus string

const (
	StatusOffline UserStatus = "offline"
	StatusIdle    UserStatus = "idle"
	StatusRoom    UserStatus = "room"
	StatusPlaying UserStatus = "playing"
)

// NoRoom is the roomName of a user that is not in any room.
const NoRoom = "-1"

// Valid reports whether s is one of the known statuses.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusOffline, StatusIdle, StatusRoom, StatusPlaying:
		return true
	}
	return false
}

// User is the canonical user record owned by the data store.
type User struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Password  string     `json:"password"`
	Status    UserStatus `json:"status"`
	RoomName  string     `json:"roomName"`
	LastLogin time.Time  `json:"lastLogin"`
}

// Normalize fills defaults so the record always has the canonical shape.
func (u *User) Normalize() {
	if !u.Status.Valid() {
		u.Status = StatusIdle
	}
	if u.RoomName == "" {
		u.RoomName = NoRoom
	}
}

// UserPatch is a partial update. Nil fields are left untouched.
type UserPatch struct {
	ID        *int        `json:"id"`
	Name      *string     `json:"name,omitempty"`
	Password  *string     `json:"password,omitempty"`
	Status    *UserStatus `json:"status,omitempty"`
	RoomName  *string     `json:"roomName,omitempty"`
	LastLogin *time.Time  `json:"lastLogin,omitempty"`
}

// NewUserPatch starts a patch for the user with the given id.
func NewUserPatch(id int) UserPatch {
	return UserPatch{ID: &id}
}

// WithStatus sets the status field of the patch.
func (p UserPatch) WithStatus(s UserStatus) UserPatch {
	p.Status = &s
	return p
}

// WithRoom sets the roomName field of the patch.
func (p UserPatch) WithRoom(name string) UserPatch {
	p.RoomName = &name
	return p
}

// WithLastLogin sets the lastLogin field of the patch.
func (p UserPatch) WithLastLogin(t time.Time) UserPatch {
	p.LastLogin = &t
	return p
}

// Apply merges the patch onto u and re-normalizes it.
func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Password != nil {
		u.Password = *p.Password
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	if p.RoomName != nil {
		u.RoomName = *p.RoomName
	}
	if p.LastLogin != nil {
		u.LastLogin = *p.LastLogin
	}
	u.Normalize()
}
