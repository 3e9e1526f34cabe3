// internal/game/match.go
package game

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/middleware"
	"github.com/toshiishere/network-programming/internal/models"
	"github.com/toshiishere/network-programming/internal/protocol"
	"github.com/toshiishere/network-programming/internal/tetris"
)

// TicketVerifier resolves a match ticket to the user it was issued to.
type TicketVerifier interface {
	Verify(ticket, matchID string) (string, error)
}

// Config tunes a single match.
type Config struct {
	TickInterval time.Duration
	JoinTimeout  time.Duration
	// WriteTimeout bounds each send to a player. A player who cannot take a
	// frame in time is treated as disconnected.
	WriteTimeout time.Duration
	DropInterval int
	// Seed feeds both piece bags so the two players see the same sequence. Zero picks one from the clock.
	Seed int64
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.DropInterval <= 0 {
		c.DropInterval = tetris.DefaultDropInterval
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Result is what a finished match reports back to its launcher.
type Result struct {
	MatchID uuid.UUID
	Frames  int
	Log     models.GameLog
	Aborted bool
}

type joinRequest struct {
	Action string `json:"action"`
	Ticket string `json:"ticket"`
}

type joinReply struct {
	Seat    int    `json:"seat"`
	Room    string `json:"room"`
	MatchID string `json:"matchId"`
}

type actionMessage struct {
	Action string `json:"action"`
}

// frameMessage is broadcast to both players every tick.
type frameMessage struct {
	Frame int             `json:"frame"`
	P1    tetris.Snapshot `json:"p1"`
	P2    tetris.Snapshot `json:"p2"`
}

type gameOverMessage struct {
	Action string              `json:"action"`
	Winner string              `json:"winner"`
	P1     models.PlayerResult `json:"p1"`
	P2     models.PlayerResult `json:"p2"`
}

// player is one seat of a match. The connection reader goroutine only touches
// the fields guarded by mu.
type player struct {
	name   string
	seat   int
	engine *tetris.Engine
	conn   *protocol.Conn

	mu      sync.Mutex
	pending tetris.Action
	joined  bool
	gone    bool
}

func (p *player) setAction(a tetris.Action) {
	p.mu.Lock()
	p.pending = a
	p.mu.Unlock()
}

// takeAction returns the latest action received since the previous tick.
func (p *player) takeAction() tetris.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.pending
	p.pending = tetris.None
	return a
}

func (p *player) markGone() {
	p.mu.Lock()
	p.gone = true
	p.mu.Unlock()
}

func (p *player) isGone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gone || !p.joined
}

// Match owns two engines and the connections of the two seated players.
// Seat 1 is the room host, seat 2 the opponent.
type Match struct {
	ID   uuid.UUID
	Room string

	ln       net.Listener
	verifier TicketVerifier
	cfg      Config
	log      *logrus.Logger

	players [2]*player
	frame   int
}

// NewMatch prepares a match for room on ln. Run must be called to play it.
func NewMatch(id uuid.UUID, room models.Room, ln net.Listener, verifier TicketVerifier, cfg Config, logger *logrus.Logger) *Match {
	cfg = cfg.withDefaults()
	m := &Match{
		ID:       id,
		Room:     room.Name,
		ln:       ln,
		verifier: verifier,
		cfg:      cfg,
		log:      logger,
	}
	for i, name := range []string{room.HostUser, room.OppoUser} {
		m.players[i] = &player{
			name:   name,
			seat:   i + 1,
			engine: tetris.New(cfg.Seed, cfg.DropInterval),
		}
	}
	return m
}

// Port is the TCP port players must connect to.
func (m *Match) Port() int {
	if addr, ok := m.ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Run admits the players, plays until a board tops out or a player leaves, and
// returns the outcome. Cancelling ctx aborts the match.
func (m *Match) Run(ctx context.Context) Result {
	m.log.WithFields(logrus.Fields{"match": m.ID, "room": m.Room, "port": m.Port()}).Info("match waiting for players")
	m.admit(ctx)
	defer m.closeAll()

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return m.finish(true)
		}

		if m.players[0].isGone() || m.players[1].isGone() {
			return m.finish(false)
		}

		m.frame++
		for _, p := range m.players {
			p.engine.Step(p.takeAction())
		}
		m.broadcast(frameMessage{
			Frame: m.frame,
			P1:    m.players[0].engine.Snapshot(),
			P2:    m.players[1].engine.Snapshot(),
		})

		if m.players[0].engine.State().GameOver || m.players[1].engine.State().GameOver {
			return m.finish(false)
		}
	}
}

type candidate struct {
	name string
	conn *protocol.Conn
}

// admit accepts connections until both seats are taken or the join timeout
// passes. The listener is closed on return.
func (m *Match) admit(ctx context.Context) {
	arrivals := make(chan candidate)
	stop := make(chan struct{})
	defer close(stop)
	defer m.ln.Close()

	go m.acceptLoop(arrivals, stop)

	timer := time.NewTimer(m.cfg.JoinTimeout)
	defer timer.Stop()

	seated := 0
	for seated < 2 {
		select {
		case c := <-arrivals:
			p := m.playerByName(c.name)
			if p == nil || p.joined {
				_ = m.sendTo(c.conn, protocol.Failure("seat already taken"))
				c.conn.Close()
				continue
			}
			p.mu.Lock()
			p.conn = c.conn
			p.joined = true
			p.mu.Unlock()
			seated++
			if err := m.sendTo(c.conn, protocol.Success(joinReply{Seat: p.seat, Room: m.Room, MatchID: m.ID.String()})); err != nil {
				m.drop(p, err)
			}
			go m.readActions(p)
			m.log.WithFields(logrus.Fields{"match": m.ID, "user": p.name, "seat": p.seat}).Info("player joined match")
		case <-timer.C:
			m.log.WithField("match", m.ID).Warn("join timeout, starting with missing players")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Match) acceptLoop(arrivals chan<- candidate, stop <-chan struct{}) {
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			return
		}
		go m.handshake(protocol.NewConn(conn), arrivals, stop)
	}
}

// handshake reads the join request and verifies its ticket.
func (m *Match) handshake(conn *protocol.Conn, arrivals chan<- candidate, stop <-chan struct{}) {
	remote := conn.RemoteAddr().String()
	middleware.LogConnect(m.log, remote, "match")

	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.JoinTimeout))
	data, err := conn.Receive()
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		middleware.LogDisconnect(m.log, remote, "match", err)
		conn.Close()
		return
	}

	var req joinRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Action != "join" {
		_ = m.sendTo(conn, protocol.Failure("unknown action"))
		conn.Close()
		return
	}
	name, err := m.verifier.Verify(req.Ticket, m.ID.String())
	if err != nil {
		m.log.WithFields(logrus.Fields{"match": m.ID, "remote": remote, "error": err}).Warn("rejected match ticket")
		_ = m.sendTo(conn, protocol.Failure("invalid ticket"))
		conn.Close()
		return
	}

	select {
	case arrivals <- candidate{name: name, conn: conn}:
	case <-stop:
		_ = m.sendTo(conn, protocol.Failure("match already started"))
		conn.Close()
	}
}

// readActions keeps the latest well-formed action of p until its connection closes.
func (m *Match) readActions(p *player) {
	remote := p.conn.RemoteAddr().String()
	for {
		data, err := p.conn.Receive()
		if err != nil {
			p.markGone()
			middleware.LogDisconnect(m.log, remote, "match", nil)
			return
		}
		var msg actionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if a, ok := tetris.ParseAction(msg.Action); ok {
			p.setAction(a)
		}
	}
}

func (m *Match) playerByName(name string) *player {
	for _, p := range m.players {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (m *Match) broadcast(v any) {
	for _, p := range m.players {
		if p.isGone() {
			continue
		}
		if err := m.sendTo(p.conn, v); err != nil {
			m.drop(p, err)
		}
	}
}

// sendTo writes one message under the match write deadline.
func (m *Match) sendTo(conn *protocol.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return conn.SendJSON(v)
}

// drop marks p as gone after a failed send. The frame may be half written,
// so the connection is closed as well.
func (m *Match) drop(p *player, err error) {
	m.log.WithFields(logrus.Fields{"match": m.ID, "user": p.name, "error": err}).Warn("dropping player after failed send")
	p.markGone()
	p.conn.Close()
}

func (m *Match) closeAll() {
	for _, p := range m.players {
		if p.conn != nil {
			p.conn.Close()
		}
	}
}

// finish decides the outcome and tells whoever is still connected.
func (m *Match) finish(aborted bool) Result {
	host, oppo := m.players[0], m.players[1]
	hs, ops := m.standing(host), m.standing(oppo)
	ho, oo := decide(hs, ops)

	gl := models.GameLog{
		Room:       m.Room,
		HostResult: m.playerResult(host, hs, ho),
		OppoResult: m.playerResult(oppo, ops, oo),
		EndedAt:    time.Now(),
	}
	m.broadcast(gameOverMessage{
		Action: "gameover",
		Winner: gl.Winner(),
		P1:     gl.HostResult,
		P2:     gl.OppoResult,
	})

	m.log.WithFields(logrus.Fields{
		"match":   m.ID,
		"room":    m.Room,
		"frames":  m.frame,
		"winner":  gl.Winner(),
		"p1":      gl.HostResult.Score,
		"p2":      gl.OppoResult.Score,
		"aborted": aborted,
	}).Info("match finished")

	return Result{MatchID: m.ID, Frames: m.frame, Log: gl, Aborted: aborted}
}

func (m *Match) standing(p *player) standing {
	st := p.engine.State()
	return standing{score: st.Score, toppedOut: st.GameOver, gone: p.isGone()}
}

func (m *Match) playerResult(p *player, s standing, o models.Outcome) models.PlayerResult {
	st := p.engine.State()
	return models.PlayerResult{
		Name:         p.name,
		Score:        st.Score,
		Lines:        st.Lines,
		Level:        st.Level,
		Outcome:      o,
		Disconnected: s.gone,
	}
}
