// internal/models/room.go
package models

// Visibility controls who may join a room.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// RoomStatus is idle until a match starts in the room.
type RoomStatus string

const (
	RoomIdle    RoomStatus = "idle"
	RoomPlaying RoomStatus = "playing"
)

// Room is a named matchmaking unit with a host, an optional opponent and an invite list.
type Room struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	HostUser   string     `json:"hostUser"`
	OppoUser   string     `json:"oppoUser"`
	Visibility Visibility `json:"visibility"`
	InviteList []int      `json:"inviteList"`
	Status     RoomStatus `json:"status"`
}

// Normalize fills defaults and removes duplicate invitees, keeping first occurrences.
func (r *Room) Normalize() {
	if r.Visibility != VisibilityPublic && r.Visibility != VisibilityPrivate {
		r.Visibility = VisibilityPublic
	}
	if r.Status != RoomIdle && r.Status != RoomPlaying {
		r.Status = RoomIdle
	}
	seen := make(map[int]bool, len(r.InviteList))
	invites := make([]int, 0, len(r.InviteList))
	for _, id := range r.InviteList {
		if seen[id] {
			continue
		}
		seen[id] = true
		invites = append(invites, id)
	}
	r.InviteList = invites
}

// IsInvited reports whether userID is on the invite list.
func (r Room) IsInvited(userID int) bool {
	for _, id := range r.InviteList {
		if id == userID {
			return true
		}
	}
	return false
}

// Invite adds userID to the invite list. Inviting twice is a no-op.
func (r *Room) Invite(userID int) bool {
	if r.IsInvited(userID) {
		return false
	}
	r.InviteList = append(r.InviteList, userID)
	return true
}

// CanJoin reports whether a user may enter the room.
func (r Room) CanJoin(userID int) bool {
	return r.Visibility == VisibilityPublic || r.IsInvited(userID)
}

// Full reports whether both seats are taken.
func (r Room) Full() bool {
	return r.HostUser != "" && r.OppoUser != ""
}

// RoomPatch is a partial update. Nil fields are left untouched.
type RoomPatch struct {
	ID         *int        `json:"id"`
	Name       *string     `json:"name,omitempty"`
	HostUser   *string     `json:"hostUser,omitempty"`
	OppoUser   *string     `json:"oppoUser,omitempty"`
	Visibility *Visibility `json:"visibility,omitempty"`
	InviteList *[]int      `json:"inviteList,omitempty"`
	Status     *RoomStatus `json:"status,omitempty"`
}

// NewRoomPatch starts a patch for the room with the given id.
func NewRoomPatch(id int) RoomPatch {
	return RoomPatch{ID: &id}
}

// WithStatus sets the status field of the patch.
func (p RoomPatch) WithStatus(s RoomStatus) RoomPatch {
	p.Status = &s
	return p
}

// WithOppo sets the oppoUser field of the patch.
func (p RoomPatch) WithOppo(name string) RoomPatch {
	p.OppoUser = &name
	return p
}

// WithInvites sets the inviteList field of the patch.
func (p RoomPatch) WithInvites(ids []int) RoomPatch {
	p.InviteList = &ids
	return p
}

// Apply merges the patch onto r and re-normalizes it.
func (p RoomPatch) Apply(r *Room) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.HostUser != nil {
		r.HostUser = *p.HostUser
	}
	if p.OppoUser != nil {
		r.OppoUser = *p.OppoUser
	}
	if p.Visibility != nil {
		r.Visibility = *p.Visibility
	}
	if p.InviteList != nil {
		r.InviteList = append([]int(nil), (*p.InviteList)...)
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	r.Normalize()
}
