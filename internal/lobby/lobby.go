// internal/lobby/lobby.go
package lobby

import (
	"context"
	"errors"
	"net"

	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/game"
	"github.com/toshiishere/network-programming/internal/middleware"
	"github.com/toshiishere/network-programming/internal/models"
	"github.com/toshiishere/network-programming/internal/protocol"
)

// ErrStoreUnavailable is returned by Serve once the data store connection breaks.
var ErrStoreUnavailable = errors.New("data store unavailable")

// DataStore is the set of data store calls the lobby makes.
type DataStore interface {
	CreateUser(ctx context.Context, u models.User) (int, error)
	GetUserByName(ctx context.Context, name string) (models.User, error)
	UpdateUser(ctx context.Context, p models.UserPatch) error
	CreateRoom(ctx context.Context, r models.Room) (int, error)
	GetRoomByName(ctx context.Context, name string) (models.Room, error)
	ListRooms(ctx context.Context, vis models.Visibility) ([]models.Room, error)
	UpdateRoom(ctx context.Context, p models.RoomPatch) error
	DeleteRoom(ctx context.Context, name string) error
	Done() <-chan struct{}
	Err() error
}

// MatchLauncher starts matches and reports when they are over.
type MatchLauncher interface {
	Start(ctx context.Context, s game.Seating) (game.Launch, error)
	Completions() <-chan game.Completion
}

type eventKind int

const (
	eventConnected eventKind = iota
	eventMessage
	eventClosed
)

type event struct {
	kind    eventKind
	session *Session
	data    []byte
	err     error
}

// Coordinator owns every client session. All requests are handled one at a
// time on the goroutine running Serve.
type Coordinator struct {
	store    DataStore
	launcher MatchLauncher
	sessions *SessionStore
	log      *logrus.Logger

	events chan event
	// afterReply holds pushes that must reach clients after the current reply.
	afterReply []func()
}

// NewCoordinator wires a coordinator to its data store and match launcher.
func NewCoordinator(store DataStore, launcher MatchLauncher, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		launcher: launcher,
		sessions: NewSessionStore(),
		log:      logger,
		events:   make(chan event),
	}
}

// Serve accepts clients on ln and dispatches their requests until ctx is
// cancelled or the data store goes away. ln is closed on return.
func (c *Coordinator) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer ln.Close()

	go c.acceptLoop(ctx, ln)
	c.log.WithField("addr", ln.Addr().String()).Info("lobby listening")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-c.store.Done():
			c.log.WithError(c.store.Err()).Error("lost data store connection")
			c.shutdown()
			return ErrStoreUnavailable
		case ev := <-c.events:
			c.handleEvent(ctx, ev)
		case comp := <-c.launcher.Completions():
			c.handleCompletion(ctx, comp)
		}
	}
}

func (c *Coordinator) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() == nil {
				c.log.WithError(err).Warn("lobby accept failed")
			}
			return
		}
		s := newSession(protocol.NewConn(conn))
		middleware.LogConnect(c.log, s.Remote, "lobby")
		if !c.post(ctx, event{kind: eventConnected, session: s}) {
			conn.Close()
			return
		}
		go s.writeLoop(c.log)
		go c.readLoop(ctx, s)
	}
}

// readLoop forwards each frame from the client to the dispatch loop.
func (c *Coordinator) readLoop(ctx context.Context, s *Session) {
	for {
		data, err := s.conn.Receive()
		if err != nil {
			if errors.Is(err, protocol.ErrDisconnected) {
				err = nil
			}
			c.post(ctx, event{kind: eventClosed, session: s, err: err})
			return
		}
		if !c.post(ctx, event{kind: eventMessage, session: s, data: data}) {
			return
		}
	}
}

func (c *Coordinator) post(ctx context.Context, ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, ev event) {
	s := ev.session
	switch ev.kind {
	case eventConnected:
		c.sessions.Add(s)
	case eventMessage:
		resp := c.dispatch(ctx, s, ev.data)
		s.send(c.log, resp)
		pushes := c.afterReply
		c.afterReply = nil
		for _, push := range pushes {
			push()
		}
	case eventClosed:
		middleware.LogDisconnect(c.log, s.Remote, "lobby", ev.err)
		c.disconnect(ctx, s)
	}
}

// disconnect is leave plus logout. A session in a match is kept until the
// match completes so the players can be returned to their room first.
func (c *Coordinator) disconnect(ctx context.Context, s *Session) {
	if s.state == InMatch {
		s.gone = true
		return
	}
	if s.authenticated() {
		if err := c.logout(ctx, s); err != nil {
			c.log.WithFields(logrus.Fields{"session": s.ID, "user": s.user.Name, "error": err}).Warn("cleanup after disconnect failed")
		}
	}
	c.remove(s)
}

func (c *Coordinator) remove(s *Session) {
	c.sessions.Remove(s)
	if !s.removed {
		s.removed = true
		close(s.out)
	}
}

// handleCompletion returns both players of a finished match to their room.
func (c *Coordinator) handleCompletion(ctx context.Context, comp game.Completion) {
	entry := c.log.WithFields(logrus.Fields{
		"room":   comp.Room,
		"match":  comp.Result.MatchID,
		"winner": comp.Result.Log.Winner(),
	})
	if comp.Err != nil {
		entry.WithError(comp.Err).Warn("match completed with cleanup errors")
	} else {
		entry.Info("match completed")
	}

	for _, name := range []string{comp.Host, comp.Oppo} {
		s, ok := c.sessions.ByName(name)
		if !ok || s.state != InMatch {
			continue
		}
		s.state = InRoom
		s.room = comp.Room
		if s.gone {
			c.disconnect(ctx, s)
		}
	}
}

func (c *Coordinator) shutdown() {
	for _, s := range c.sessions.All() {
		c.remove(s)
	}
}
