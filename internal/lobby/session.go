// internal/lobby/session.go
package lobby

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/models"
	"github.com/toshiishere/network-programming/internal/protocol"
)

// State is where a client connection is in the lobby lifecycle.
type State int

const (
	Unauthenticated State = iota
	Idle
	InRoom
	InMatch
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Idle:
		return "idle"
	case InRoom:
		return "in_room"
	case InMatch:
		return "in_match"
	}
	return "unknown"
}

// outboxSize bounds how far a slow client may fall behind before it is dropped.
const outboxSize = 32

// Session is one client connection. Everything except the outbox is owned by
// the coordinator's dispatch loop.
type Session struct {
	ID     uuid.UUID
	Remote string

	conn *protocol.Conn
	out  chan any

	state State
	// user is the transient copy of the logged-in user; only ID and Name are relied on.
	user models.User
	room string

	// gone is set when the connection closed during a match; cleanup waits for the match.
	gone    bool
	removed bool
}

func newSession(conn *protocol.Conn) *Session {
	return &Session{
		ID:     uuid.New(),
		Remote: conn.RemoteAddr().String(),
		conn:   conn,
		out:    make(chan any, outboxSize),
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	return s.state
}

// writeLoop drains the outbox onto the connection until the outbox is closed.
func (s *Session) writeLoop(log *logrus.Logger) {
	for msg := range s.out {
		if err := s.conn.SendJSON(msg); err != nil {
			log.WithFields(logrus.Fields{"session": s.ID, "error": err}).Debug("write to client failed")
			s.conn.Close()
		}
	}
	s.conn.Close()
}

// send queues msg for the client. A full outbox closes the connection.
func (s *Session) send(log *logrus.Logger, msg any) {
	if s.removed {
		return
	}
	select {
	case s.out <- msg:
	default:
		log.WithField("session", s.ID).Warn("client outbox full, dropping connection")
		s.conn.Close()
	}
}

func (s *Session) authenticated() bool {
	return s.state != Unauthenticated
}
