// internal/game/launcher.go
package game

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/models"
)

var ErrMatchRunning = errors.New("match already running")

// ResultStore is the part of the data store client a finished match needs.
type ResultStore interface {
	CreateGameLog(ctx context.Context, g models.GameLog) (int, error)
	UpdateRoom(ctx context.Context, p models.RoomPatch) error
	UpdateUser(ctx context.Context, p models.UserPatch) error
}

// Publisher forwards finished matches to downstream consumers. Optional.
type Publisher interface {
	PublishMatchResult(ctx context.Context, g models.GameLog) error
}

// TicketIssuer signs the per-player tickets handed out at start.
type TicketIssuer interface {
	TicketVerifier
	Issue(user, matchID string) (string, error)
}

// LauncherConfig controls where match listeners bind.
type LauncherConfig struct {
	Host string
	// BasePort plus the room id is the match port. Zero binds an ephemeral port.
	BasePort   int
	RPCTimeout time.Duration
	Match      Config
}

// Seating is the room plus the two user records that will play in it.
type Seating struct {
	Room models.Room
	Host models.User
	Oppo models.User
}

// Launch is what the lobby hands to the two players.
type Launch struct {
	MatchID    uuid.UUID
	Host       string
	Port       int
	HostTicket string
	OppoTicket string
}

// Completion is delivered once per launched match, after the data store has
// been updated.
type Completion struct {
	Room   string
	Host   string
	Oppo   string
	Result Result
	Err    error
}

// Launcher starts matches and supervises them until their cleanup is done.
type Launcher struct {
	cfg       LauncherConfig
	store     ResultStore
	publisher Publisher
	tickets   TicketIssuer
	matches   *MatchStore
	log       *logrus.Logger

	completions chan Completion
	wg          sync.WaitGroup
}

// NewLauncher builds a launcher. publisher may be nil.
func NewLauncher(cfg LauncherConfig, store ResultStore, publisher Publisher, tickets TicketIssuer, logger *logrus.Logger) *Launcher {
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 5 * time.Second
	}
	return &Launcher{
		cfg:         cfg,
		store:       store,
		publisher:   publisher,
		tickets:     tickets,
		matches:     NewMatchStore(),
		log:         logger,
		completions: make(chan Completion, 16),
	}
}

// Completions yields one value per finished match.
func (l *Launcher) Completions() <-chan Completion {
	return l.completions
}

// Running reports how many matches are in progress.
func (l *Launcher) Running() int {
	return l.matches.Len()
}

// Wait blocks until every launched match has finished its cleanup.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

// Start binds the match listener, issues tickets and runs the match in its own goroutine.
func (l *Launcher) Start(ctx context.Context, s Seating) (Launch, error) {
	if _, running := l.matches.GetMatch(s.Room.Name); running {
		return Launch{}, ErrMatchRunning
	}

	port := 0
	if l.cfg.BasePort > 0 {
		port = l.cfg.BasePort + s.Room.ID
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(l.cfg.Host, strconv.Itoa(port)))
	if err != nil {
		return Launch{}, fmt.Errorf("failed to bind match port %d: %w", port, err)
	}

	id := uuid.New()
	hostTicket, err := l.tickets.Issue(s.Host.Name, id.String())
	if err != nil {
		ln.Close()
		return Launch{}, fmt.Errorf("failed to issue ticket: %w", err)
	}
	oppoTicket, err := l.tickets.Issue(s.Oppo.Name, id.String())
	if err != nil {
		ln.Close()
		return Launch{}, fmt.Errorf("failed to issue ticket: %w", err)
	}

	m := NewMatch(id, s.Room, ln, l.tickets, l.cfg.Match, l.log)
	if !l.matches.AddMatch(m) {
		ln.Close()
		return Launch{}, ErrMatchRunning
	}

	l.wg.Add(1)
	go l.supervise(ctx, m, s)

	return Launch{
		MatchID:    id,
		Host:       l.cfg.Host,
		Port:       m.Port(),
		HostTicket: hostTicket,
		OppoTicket: oppoTicket,
	}, nil
}

func (l *Launcher) supervise(ctx context.Context, m *Match, s Seating) {
	defer l.wg.Done()

	res := l.play(ctx, m)
	c := Completion{Room: s.Room.Name, Host: s.Host.Name, Oppo: s.Oppo.Name, Result: res}
	c.Err = l.cleanup(ctx, s, res)
	l.matches.DeleteMatch(m.Room)

	select {
	case l.completions <- c:
	case <-ctx.Done():
	}
}

// play runs the match and turns a panic into an aborted result so cleanup still happens.
func (l *Launcher) play(ctx context.Context, m *Match) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithFields(logrus.Fields{"match": m.ID, "panic": r}).Error("match crashed")
			m.closeAll()
			res = m.finish(true)
		}
	}()
	return m.Run(ctx)
}

// cleanup writes the game log, frees the room and returns both players to it.
// It runs even when ctx is already cancelled.
func (l *Launcher) cleanup(ctx context.Context, s Seating, res Result) error {
	rpcCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.RPCTimeout)
	defer cancel()

	var errs []error
	if _, err := l.store.CreateGameLog(rpcCtx, res.Log); err != nil {
		errs = append(errs, fmt.Errorf("create gamelog: %w", err))
	}
	if err := l.store.UpdateRoom(rpcCtx, models.NewRoomPatch(s.Room.ID).WithStatus(models.RoomIdle)); err != nil {
		errs = append(errs, fmt.Errorf("reset room: %w", err))
	}
	for _, u := range []models.User{s.Host, s.Oppo} {
		p := models.NewUserPatch(u.ID).WithStatus(models.StatusRoom).WithRoom(s.Room.Name)
		if err := l.store.UpdateUser(rpcCtx, p); err != nil {
			errs = append(errs, fmt.Errorf("reset user %s: %w", u.Name, err))
		}
	}

	if l.publisher != nil {
		if err := l.publisher.PublishMatchResult(rpcCtx, res.Log); err != nil {
			l.log.WithFields(logrus.Fields{"room": s.Room.Name, "error": err}).Warn("failed to publish match result")
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		l.log.WithFields(logrus.Fields{"room": s.Room.Name, "error": err}).Error("match cleanup incomplete")
	}
	return err
}
