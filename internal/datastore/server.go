// internal/datastore/server.go
package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/middleware"
	"github.com/toshiishere/network-programming/internal/models"
	"github.com/toshiishere/network-programming/internal/protocol"
)

// Server exposes a Store over the wire protocol to exactly one trusted peer.
type Server struct {
	store *Store
	log   *logrus.Logger
}

// NewServer wraps store.
func NewServer(store *Store, logger *logrus.Logger) *Server {
	return &Server{store: store, log: logger}
}

// Serve blocks until a single peer connects, closes the listener, then answers
// requests one at a time until the peer disconnects or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stopAccept := context.AfterFunc(ctx, func() { ln.Close() })
	conn, err := ln.Accept()
	stopAccept()
	ln.Close()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("accept coordinator: %w", err)
	}
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	middleware.LogConnect(s.log, remote, "datastore")
	stopConn := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopConn()

	for {
		data, err := protocol.Receive(conn)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, protocol.ErrDisconnected) {
				middleware.LogDisconnect(s.log, remote, "datastore", nil)
				return nil
			}
			middleware.LogDisconnect(s.log, remote, "datastore", err)
			return fmt.Errorf("receive request: %w", err)
		}

		resp := s.Handle(data)
		if err := protocol.SendJSON(conn, resp); err != nil {
			middleware.LogDisconnect(s.log, remote, "datastore", err)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send response: %w", err)
		}
	}
}

// Handle decodes one raw request and returns the reply.
func (s *Server) Handle(data []byte) protocol.Response {
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.log.Warnf("invalid JSON from coordinator: %v", err)
		return protocol.Failure("invalid JSON")
	}

	switch req.Action {
	case protocol.ActionCreate:
		return s.create(req)
	case protocol.ActionQuery:
		return s.query(req)
	case protocol.ActionSearch:
		return s.search(req)
	case protocol.ActionUpdate:
		return s.update(req)
	case protocol.ActionDelete:
		return s.delete(req)
	}
	return protocol.Failure("unknown action")
}

func (s *Server) create(req protocol.Request) protocol.Response {
	var (
		id  int
		err error
	)
	switch req.Type {
	case protocol.TypeUser:
		var u models.User
		if err := decodeData(req, &u); err != nil {
			return protocol.Failure(err.Error())
		}
		id, err = s.store.CreateUser(u)
	case protocol.TypeRoom:
		var r models.Room
		if err := decodeData(req, &r); err != nil {
			return protocol.Failure(err.Error())
		}
		id, err = s.store.CreateRoom(r)
	case protocol.TypeGameLog:
		var g models.GameLog
		if err := decodeData(req, &g); err != nil {
			return protocol.Failure(err.Error())
		}
		id, err = s.store.AppendGameLog(g)
	default:
		return protocol.Failure("unsupported type")
	}
	if err != nil {
		s.log.Warnf("create %s failed: %v", req.Type, err)
		return protocol.Failure(err.Error())
	}
	return protocol.Created(id)
}

func (s *Server) query(req protocol.Request) protocol.Response {
	switch req.Type {
	case protocol.TypeUser:
		u, err := s.store.QueryUser(req.ID, req.Name)
		if err != nil {
			return protocol.Failure(err.Error())
		}
		return protocol.Success(u)
	case protocol.TypeRoom:
		r, err := s.store.QueryRoom(req.ID, req.Name)
		if err != nil {
			return protocol.Failure(err.Error())
		}
		return protocol.Success(r)
	}
	return protocol.Failure("unsupported type")
}

func (s *Server) search(req protocol.Request) protocol.Response {
	switch req.Type {
	case protocol.TypeUser:
		users := s.store.SearchUsers()
		if len(users) == 0 {
			return protocol.Failure(protocol.ReasonNoUsers)
		}
		return protocol.Success(users)
	case protocol.TypeRoom:
		vis := models.Visibility(req.Visibility)
		if vis == "" {
			vis = models.VisibilityPublic
		}
		rooms := s.store.SearchRooms(vis)
		if len(rooms) == 0 {
			return protocol.Failure(protocol.ReasonNoRooms)
		}
		return protocol.Success(rooms)
	}
	return protocol.Failure("unsupported type")
}

func (s *Server) update(req protocol.Request) protocol.Response {
	switch req.Type {
	case protocol.TypeUser:
		var p models.UserPatch
		if err := decodeData(req, &p); err != nil {
			return protocol.Failure(err.Error())
		}
		u, err := s.store.UpdateUser(p)
		if err != nil {
			return protocol.Failure("update failed: " + err.Error())
		}
		return protocol.Success(u)
	case protocol.TypeRoom:
		var p models.RoomPatch
		if err := decodeData(req, &p); err != nil {
			return protocol.Failure(err.Error())
		}
		r, err := s.store.UpdateRoom(p)
		if err != nil {
			return protocol.Failure("update failed: " + err.Error())
		}
		return protocol.Success(r)
	}
	return protocol.Failure("unsupported type")
}

func (s *Server) delete(req protocol.Request) protocol.Response {
	if req.Type != protocol.TypeRoom {
		return protocol.Failure("unsupported type")
	}
	if err := s.store.DeleteRoom(req.Name); err != nil {
		return protocol.Failure("delete failed: " + err.Error())
	}
	return protocol.Success(nil)
}

func decodeData(req protocol.Request, v any) error {
	if len(req.Data) == 0 {
		return errors.New("missing data")
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		return errors.New("invalid data")
	}
	return nil
}
