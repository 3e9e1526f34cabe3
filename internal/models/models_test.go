package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserPatchMergesOnlyProvidedFields(t *testing.T) {
	u := User{ID: 3, Name: "alice", Password: "pw1", Status: StatusOffline, RoomName: NoRoom}

	var p UserPatch
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"status":"idle","bogus":true}`), &p))
	p.Apply(&u)

	assert.Equal(t, StatusIdle, u.Status)
	assert.Equal(t, "alice", u.Name)
	assert.Equal(t, "pw1", u.Password)
	assert.Equal(t, NoRoom, u.RoomName)
}

func TestUserNormalize(t *testing.T) {
	u := User{Status: "sleeping"}
	u.Normalize()
	assert.Equal(t, StatusIdle, u.Status)
	assert.Equal(t, NoRoom, u.RoomName)
}

func TestRoomInviteIsIdempotent(t *testing.T) {
	r := Room{Name: "r1", Visibility: VisibilityPrivate}
	for i := 0; i < 5; i++ {
		r.Invite(7)
	}
	assert.Equal(t, []int{7}, r.InviteList)
	assert.True(t, r.CanJoin(7))
	assert.False(t, r.CanJoin(8))
}

func TestRoomNormalizeDeduplicatesInvites(t *testing.T) {
	r := Room{InviteList: []int{2, 1, 2, 3, 1}, Visibility: "secret", Status: "busy"}
	r.Normalize()
	assert.Equal(t, []int{2, 1, 3}, r.InviteList)
	assert.Equal(t, VisibilityPublic, r.Visibility)
	assert.Equal(t, RoomIdle, r.Status)
}

func TestRoomPatchApply(t *testing.T) {
	r := Room{ID: 1, Name: "r1", HostUser: "alice", Visibility: VisibilityPublic, Status: RoomIdle}
	NewRoomPatch(1).WithOppo("bob").WithStatus(RoomPlaying).Apply(&r)

	assert.Equal(t, "bob", r.OppoUser)
	assert.Equal(t, RoomPlaying, r.Status)
	assert.Equal(t, "alice", r.HostUser)
	assert.True(t, r.Full())
	assert.NotNil(t, r.InviteList)
}

func TestGameLogWinner(t *testing.T) {
	g := GameLog{
		HostResult: PlayerResult{Name: "alice", Outcome: OutcomeLose},
		OppoResult: PlayerResult{Name: "bob", Outcome: OutcomeWin},
	}
	assert.Equal(t, "bob", g.Winner())

	g.HostResult.Outcome, g.OppoResult.Outcome = OutcomeDraw, OutcomeDraw
	assert.Empty(t, g.Winner())
}
