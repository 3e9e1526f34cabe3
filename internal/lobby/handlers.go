// internal/lobby/handlers.go
package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/database"
	"github.com/toshiishere/network-programming/internal/game"
	"github.com/toshiishere/network-programming/internal/middleware"
	"github.com/toshiishere/network-programming/internal/models"
	"github.com/toshiishere/network-programming/internal/protocol"
)

const (
	reasonUnknownAction = "unknown action"
	reasonBadLogin      = "wrong password or already online"
	reasonNoUser        = "user does not exist"
)

// request is the union of every client verb's fields.
type request struct {
	Action     string `json:"action"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	RoomName   string `json:"roomname"`
	Visibility string `json:"visibility"`
	Room       string `json:"room"`
}

// startMessage is pushed to both players when their match is ready.
type startMessage struct {
	Action  string `json:"action"`
	Room    string `json:"room"`
	MatchID string `json:"matchId"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Ticket  string `json:"ticket"`
	Seat    int    `json:"seat"`
}

// roomClosedMessage tells an opponent that the host left and the room is gone.
type roomClosedMessage struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

type handlerFunc func(c *Coordinator, ctx context.Context, s *Session, req request) protocol.Response

type verb struct {
	states []State
	fn     handlerFunc
}

var verbs = map[string]verb{
	"register":  {[]State{Unauthenticated}, (*Coordinator).handleRegister},
	"login":     {[]State{Unauthenticated}, (*Coordinator).handleLogin},
	"create":    {[]State{Idle}, (*Coordinator).handleCreate},
	"join":      {[]State{Idle, InRoom}, (*Coordinator).handleJoin},
	"curroom":   {[]State{Idle, InRoom}, (*Coordinator).handleCurRoom},
	"curinvite": {[]State{Idle, InRoom}, (*Coordinator).handleCurInvite},
	"invite":    {[]State{Idle, InRoom}, (*Coordinator).handleInvite},
	"start":     {[]State{InRoom}, (*Coordinator).handleStart},
	"leave":     {[]State{InRoom}, (*Coordinator).handleLeave},
	"logout":    {[]State{Idle, InRoom}, (*Coordinator).handleLogout},
}

func (v verb) allowed(st State) bool {
	for _, s := range v.states {
		if s == st {
			return true
		}
	}
	return false
}

// dispatch decodes one client frame and runs the matching verb.
func (c *Coordinator) dispatch(ctx context.Context, s *Session, data []byte) protocol.Response {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.Failure("invalid JSON")
	}
	done := middleware.LogRequest(c.log, s.Remote, req.Action)

	v, ok := verbs[req.Action]
	if !ok || !v.allowed(s.state) {
		done(protocol.StatusFailed, reasonUnknownAction)
		return protocol.Failure(reasonUnknownAction)
	}
	resp := v.fn(c, ctx, s, req)
	done(resp.Response, resp.Reason)
	return resp
}

// storeFailure turns a data store error into a client reply.
func (c *Coordinator) storeFailure(s *Session, action string, err error) protocol.Response {
	var remote *database.RemoteError
	if errors.As(err, &remote) {
		return protocol.Failure(remote.Reason)
	}
	c.log.WithFields(logrus.Fields{"session": s.ID, "action": action, "error": err}).Error("data store call failed")
	return protocol.Failure("data store unavailable")
}

func (c *Coordinator) handleRegister(ctx context.Context, s *Session, req request) protocol.Response {
	if req.Name == "" || req.Password == "" {
		return protocol.Failure("missing name or password")
	}
	u := models.User{Name: req.Name, Password: req.Password, Status: models.StatusOffline, RoomName: models.NoRoom}
	if _, err := c.store.CreateUser(ctx, u); err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	return protocol.Success(nil)
}

func (c *Coordinator) handleLogin(ctx context.Context, s *Session, req request) protocol.Response {
	u, err := c.store.GetUserByName(ctx, req.Name)
	if err != nil {
		if database.IsNotFound(err) {
			return protocol.Failure(reasonNoUser)
		}
		return c.storeFailure(s, req.Action, err)
	}
	if u.Password != req.Password || u.Status != models.StatusOffline {
		return protocol.Failure(reasonBadLogin)
	}
	if _, taken := c.sessions.ByName(u.Name); taken {
		return protocol.Failure(reasonBadLogin)
	}

	p := models.NewUserPatch(u.ID).
		WithStatus(models.StatusIdle).
		WithRoom(models.NoRoom).
		WithLastLogin(time.Now())
	if err := c.store.UpdateUser(ctx, p); err != nil {
		return c.storeFailure(s, req.Action, err)
	}

	s.user = models.User{ID: u.ID, Name: u.Name, Status: models.StatusIdle, RoomName: models.NoRoom}
	s.state = Idle
	c.sessions.Bind(u.Name, s)
	c.log.WithFields(logrus.Fields{"session": s.ID, "user": u.Name}).Info("user logged in")
	return protocol.Success(map[string]any{"id": u.ID, "name": u.Name})
}

func (c *Coordinator) handleCreate(ctx context.Context, s *Session, req request) protocol.Response {
	if req.RoomName == "" {
		return protocol.Failure("missing roomname")
	}
	vis := models.Visibility(req.Visibility)
	switch vis {
	case "":
		vis = models.VisibilityPublic
	case models.VisibilityPublic, models.VisibilityPrivate:
	default:
		return protocol.Failure("invalid visibility")
	}

	r := models.Room{
		Name:       req.RoomName,
		HostUser:   s.user.Name,
		Visibility: vis,
		InviteList: []int{},
		Status:     models.RoomIdle,
	}
	id, err := c.store.CreateRoom(ctx, r)
	if err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	r.ID = id
	if err := c.enterRoom(ctx, s, r.Name); err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	return protocol.Success(r)
}

func (c *Coordinator) handleJoin(ctx context.Context, s *Session, req request) protocol.Response {
	r, err := c.store.GetRoomByName(ctx, req.RoomName)
	if err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	if r.HostUser == s.user.Name || r.OppoUser == s.user.Name {
		if s.state == InRoom && s.room == r.Name {
			return protocol.Success(r)
		}
	}
	if !r.CanJoin(s.user.ID) {
		return protocol.Failure("not invited")
	}
	if r.Status == models.RoomPlaying {
		return protocol.Failure("room is playing")
	}
	if r.OppoUser != "" && r.OppoUser != s.user.Name {
		return protocol.Failure("room full")
	}

	if s.state == InRoom {
		if err := c.leaveRoom(ctx, s); err != nil {
			return c.storeFailure(s, req.Action, err)
		}
	}
	if err := c.store.UpdateRoom(ctx, models.NewRoomPatch(r.ID).WithOppo(s.user.Name)); err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	r.OppoUser = s.user.Name
	if err := c.enterRoom(ctx, s, r.Name); err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	return protocol.Success(r)
}

func (c *Coordinator) handleCurRoom(ctx context.Context, s *Session, req request) protocol.Response {
	if s.state != InRoom {
		rooms, err := c.store.ListRooms(ctx, models.VisibilityPublic)
		if err != nil {
			return c.storeFailure(s, req.Action, err)
		}
		return protocol.Success(rooms)
	}
	r, err := c.store.GetRoomByName(ctx, s.room)
	if err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	return protocol.Success([]models.Room{r})
}

func (c *Coordinator) handleCurInvite(ctx context.Context, s *Session, req request) protocol.Response {
	rooms, err := c.store.ListRooms(ctx, models.VisibilityPrivate)
	if err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	invites := make([]models.Room, 0, len(rooms))
	for _, r := range rooms {
		if r.IsInvited(s.user.ID) {
			invites = append(invites, r)
		}
	}
	if len(invites) == 0 {
		return protocol.Failure("no invites")
	}
	return protocol.Success(invites)
}

func (c *Coordinator) handleInvite(ctx context.Context, s *Session, req request) protocol.Response {
	name := req.Room
	if name == "" {
		name = s.room
	}
	r, err := c.store.GetRoomByName(ctx, name)
	if err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	if r.HostUser != s.user.Name {
		return protocol.Failure("only the host can invite")
	}
	target, err := c.store.GetUserByName(ctx, req.Name)
	if err != nil {
		if database.IsNotFound(err) {
			return protocol.Failure(reasonNoUser)
		}
		return c.storeFailure(s, req.Action, err)
	}
	if r.Invite(target.ID) {
		if err := c.store.UpdateRoom(ctx, models.NewRoomPatch(r.ID).WithInvites(r.InviteList)); err != nil {
			return c.storeFailure(s, req.Action, err)
		}
	}
	return protocol.Success(nil)
}

func (c *Coordinator) handleStart(ctx context.Context, s *Session, req request) protocol.Response {
	r, err := c.store.GetRoomByName(ctx, s.room)
	if err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	if !r.Full() {
		return protocol.Failure("waiting for opponent")
	}
	if r.Status == models.RoomPlaying {
		return protocol.Failure("room is playing")
	}
	host, hostOK := c.sessions.ByName(r.HostUser)
	oppo, oppoOK := c.sessions.ByName(r.OppoUser)
	if !hostOK || !oppoOK || host.state != InRoom || oppo.state != InRoom {
		return protocol.Failure("opponent not connected")
	}

	if err := c.setPlaying(ctx, r, host, oppo, true); err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	r.Status = models.RoomPlaying

	launch, err := c.launcher.Start(ctx, game.Seating{Room: r, Host: host.user, Oppo: oppo.user})
	if err != nil {
		c.log.WithFields(logrus.Fields{"room": r.Name, "error": err}).Error("failed to launch match")
		if rerr := c.setPlaying(ctx, r, host, oppo, false); rerr != nil {
			c.log.WithFields(logrus.Fields{"room": r.Name, "error": rerr}).Error("failed to roll back room")
		}
		return protocol.Failure("failed to start match")
	}

	host.state, oppo.state = InMatch, InMatch
	msg := startMessage{Action: "start", Room: r.Name, MatchID: launch.MatchID.String(), Host: launch.Host, Port: launch.Port}
	hostMsg, oppoMsg := msg, msg
	hostMsg.Ticket, hostMsg.Seat = launch.HostTicket, 1
	oppoMsg.Ticket, oppoMsg.Seat = launch.OppoTicket, 2
	c.afterReply = append(c.afterReply,
		func() { host.send(c.log, hostMsg) },
		func() { oppo.send(c.log, oppoMsg) },
	)

	c.log.WithFields(logrus.Fields{"room": r.Name, "match": launch.MatchID, "port": launch.Port}).Info("match started")
	return protocol.Success(nil)
}

func (c *Coordinator) handleLeave(ctx context.Context, s *Session, req request) protocol.Response {
	if err := c.leaveRoom(ctx, s); err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	return protocol.Success(nil)
}

func (c *Coordinator) handleLogout(ctx context.Context, s *Session, req request) protocol.Response {
	if err := c.logout(ctx, s); err != nil {
		return c.storeFailure(s, req.Action, err)
	}
	return protocol.Success(nil)
}

// enterRoom records room membership on both the user record and the session.
func (c *Coordinator) enterRoom(ctx context.Context, s *Session, room string) error {
	if err := c.store.UpdateUser(ctx, models.NewUserPatch(s.user.ID).WithStatus(models.StatusRoom).WithRoom(room)); err != nil {
		return err
	}
	s.room = room
	s.state = InRoom
	return nil
}

// leaveRoom detaches s from its room. A departing host deletes the room and
// sends the opponent back to idle.
func (c *Coordinator) leaveRoom(ctx context.Context, s *Session) error {
	r, err := c.store.GetRoomByName(ctx, s.room)
	switch {
	case database.IsNotFound(err):
	case err != nil:
		return err
	case r.HostUser == s.user.Name:
		if err := c.store.DeleteRoom(ctx, r.Name); err != nil {
			return err
		}
		if r.OppoUser != "" {
			c.evict(ctx, r.OppoUser, r.Name)
		}
	case r.OppoUser == s.user.Name:
		if err := c.store.UpdateRoom(ctx, models.NewRoomPatch(r.ID).WithOppo("")); err != nil {
			return err
		}
	}

	if err := c.store.UpdateUser(ctx, models.NewUserPatch(s.user.ID).WithStatus(models.StatusIdle).WithRoom(models.NoRoom)); err != nil {
		return err
	}
	s.room = ""
	s.state = Idle
	return nil
}

// evict returns the opponent of a deleted room to idle.
func (c *Coordinator) evict(ctx context.Context, name, room string) {
	o, ok := c.sessions.ByName(name)
	if !ok || o.room != room {
		return
	}
	if err := c.store.UpdateUser(ctx, models.NewUserPatch(o.user.ID).WithStatus(models.StatusIdle).WithRoom(models.NoRoom)); err != nil {
		c.log.WithFields(logrus.Fields{"user": name, "error": err}).Warn("failed to reset opponent")
		return
	}
	o.room = ""
	o.state = Idle
	c.afterReply = append(c.afterReply, func() {
		o.send(c.log, roomClosedMessage{Action: "roomclosed", Room: room})
	})
}

func (c *Coordinator) logout(ctx context.Context, s *Session) error {
	if s.state == InRoom {
		if err := c.leaveRoom(ctx, s); err != nil {
			return err
		}
	}
	if err := c.store.UpdateUser(ctx, models.NewUserPatch(s.user.ID).WithStatus(models.StatusOffline).WithRoom(models.NoRoom)); err != nil {
		return err
	}
	c.sessions.Unbind(s.user.Name)
	c.log.WithFields(logrus.Fields{"session": s.ID, "user": s.user.Name}).Info("user logged out")
	s.user = models.User{}
	s.state = Unauthenticated
	return nil
}

// setPlaying flips the room and both players between playing and in-room.
func (c *Coordinator) setPlaying(ctx context.Context, r models.Room, host, oppo *Session, playing bool) error {
	roomStatus, userStatus := models.RoomIdle, models.StatusRoom
	if playing {
		roomStatus, userStatus = models.RoomPlaying, models.StatusPlaying
	}
	if err := c.store.UpdateRoom(ctx, models.NewRoomPatch(r.ID).WithStatus(roomStatus)); err != nil {
		return err
	}
	for _, p := range []*Session{host, oppo} {
		if err := c.store.UpdateUser(ctx, models.NewUserPatch(p.user.ID).WithStatus(userStatus).WithRoom(r.Name)); err != nil {
			return err
		}
	}
	return nil
}
