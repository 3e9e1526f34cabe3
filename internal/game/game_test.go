// internal/game/game_test.go
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toshiishere/network-programming/internal/auth"
	"github.com/toshiishere/network-programming/internal/models"
	"github.com/toshiishere/network-programming/internal/protocol"
	"github.com/toshiishere/network-programming/internal/tetris"
)

var testRoom = models.Room{ID: 3, Name: "r1", HostUser: "alice", OppoUser: "bob"}

func fastConfig() Config {
	return Config{TickInterval: 5 * time.Millisecond, JoinTimeout: 2 * time.Second, DropInterval: 1000, Seed: 1}
}

type matchHarness struct {
	m       *Match
	tickets *auth.Tickets
	results chan Result
	cancel  context.CancelFunc
}

func startMatch(t *testing.T, cfg Config) *matchHarness {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return startMatchOn(t, cfg, ln)
}

func startMatchOn(t *testing.T, cfg Config, ln net.Listener) *matchHarness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	tickets, err := auth.NewTickets(time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &matchHarness{
		m:       NewMatch(uuid.New(), testRoom, ln, tickets, cfg, logger),
		tickets: tickets,
		results: make(chan Result, 1),
		cancel:  cancel,
	}
	go func() { h.results <- h.m.Run(ctx) }()
	t.Cleanup(cancel)
	return h
}

func (h *matchHarness) ticket(t *testing.T, user string) string {
	t.Helper()
	tok, err := h.tickets.Issue(user, h.m.ID.String())
	require.NoError(t, err)
	return tok
}

func (h *matchHarness) result(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-h.results:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("match did not finish")
		return Result{}
	}
}

func joinMatch(t *testing.T, port int, ticket string) (*protocol.Conn, protocol.Response) {
	t.Helper()
	c, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	conn := protocol.NewConn(c)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SendJSON(joinRequest{Action: "join", Ticket: ticket}))
	var resp protocol.Response
	require.NoError(t, protocol.ReceiveJSON(conn, &resp))
	return conn, resp
}

type playerView struct {
	last  frameMessage
	over  gameOverMessage
	count int
}

// watch reads frames until the gameover message arrives.
func watch(conn *protocol.Conn) (playerView, error) {
	var v playerView
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		data, err := conn.Receive()
		if err != nil {
			return v, err
		}
		var head struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			return v, err
		}
		if head.Action == "gameover" {
			return v, json.Unmarshal(data, &v.over)
		}
		if err := json.Unmarshal(data, &v.last); err != nil {
			return v, err
		}
		v.count++
	}
}

func TestMatchHardDropTopsOut(t *testing.T) {
	h := startMatch(t, fastConfig())

	alice, resp := joinMatch(t, h.m.Port(), h.ticket(t, "alice"))
	require.True(t, resp.OK(), resp.Reason)
	var seat joinReply
	require.NoError(t, json.Unmarshal(resp.Data, &seat))
	assert.Equal(t, 1, seat.Seat)

	bob, resp := joinMatch(t, h.m.Port(), h.ticket(t, "bob"))
	require.True(t, resp.OK(), resp.Reason)
	require.NoError(t, json.Unmarshal(resp.Data, &seat))
	assert.Equal(t, 2, seat.Seat)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(2 * time.Millisecond):
				if alice.SendJSON(actionMessage{Action: "HardDrop"}) != nil {
					return
				}
			}
		}
	}()

	bobView := make(chan playerView, 1)
	go func() {
		v, _ := watch(bob)
		bobView <- v
	}()

	av, err := watch(alice)
	require.NoError(t, err)
	assert.Positive(t, av.count)
	assert.Len(t, av.last.P1.Board, tetris.Width*tetris.Height)
	assert.Equal(t, "bob", av.over.Winner)
	assert.Equal(t, models.OutcomeLose, av.over.P1.Outcome)

	bv := <-bobView
	assert.Equal(t, "bob", bv.over.Winner)

	res := h.result(t)
	assert.False(t, res.Aborted)
	assert.Equal(t, "r1", res.Log.Room)
	assert.Equal(t, "alice", res.Log.HostResult.Name)
	assert.Equal(t, models.OutcomeLose, res.Log.HostResult.Outcome)
	assert.Equal(t, models.OutcomeWin, res.Log.OppoResult.Outcome)
	assert.False(t, res.Log.HostResult.Disconnected)
	assert.Positive(t, res.Frames)
}

func TestMatchDisconnectLoses(t *testing.T) {
	h := startMatch(t, fastConfig())

	alice, resp := joinMatch(t, h.m.Port(), h.ticket(t, "alice"))
	require.True(t, resp.OK())
	bob, resp := joinMatch(t, h.m.Port(), h.ticket(t, "bob"))
	require.True(t, resp.OK())

	time.Sleep(20 * time.Millisecond)
	bob.Close()

	av, err := watch(alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", av.over.Winner)

	res := h.result(t)
	assert.Equal(t, models.OutcomeWin, res.Log.HostResult.Outcome)
	assert.Equal(t, models.OutcomeLose, res.Log.OppoResult.Outcome)
	assert.True(t, res.Log.OppoResult.Disconnected)
}

// smallBufferListener shrinks the send buffer of every accepted connection so a
// peer that stops reading blocks the sender quickly.
type smallBufferListener struct {
	net.Listener
}

func (l smallBufferListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetWriteBuffer(4096)
	}
	return c, err
}

func TestMatchDropsPlayerWhoStopsReading(t *testing.T) {
	cfg := fastConfig()
	cfg.TickInterval = time.Millisecond
	cfg.WriteTimeout = 100 * time.Millisecond
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h := startMatchOn(t, cfg, smallBufferListener{ln})

	alice, resp := joinMatch(t, h.m.Port(), h.ticket(t, "alice"))
	require.True(t, resp.OK())
	if tc, ok := alice.Conn.(*net.TCPConn); ok {
		require.NoError(t, tc.SetReadBuffer(4096))
	}
	bob, resp := joinMatch(t, h.m.Port(), h.ticket(t, "bob"))
	require.True(t, resp.OK())

	bobView := make(chan playerView, 1)
	go func() {
		v, _ := watch(bob)
		bobView <- v
	}()

	res := h.result(t)
	assert.True(t, res.Log.HostResult.Disconnected, "the stalled reader is dropped")
	assert.Equal(t, models.OutcomeLose, res.Log.HostResult.Outcome)
	assert.Equal(t, models.OutcomeWin, res.Log.OppoResult.Outcome)
	assert.False(t, res.Log.OppoResult.Disconnected)
	assert.Equal(t, "bob", (<-bobView).over.Winner)
}

func TestMatchJoinTimeoutCountsAsDisconnect(t *testing.T) {
	cfg := fastConfig()
	cfg.JoinTimeout = 100 * time.Millisecond
	h := startMatch(t, cfg)

	alice, resp := joinMatch(t, h.m.Port(), h.ticket(t, "alice"))
	require.True(t, resp.OK())

	av, err := watch(alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", av.over.Winner)

	res := h.result(t)
	assert.Zero(t, res.Frames)
	assert.True(t, res.Log.OppoResult.Disconnected)
	assert.Equal(t, "bob", res.Log.OppoResult.Name)
}

func TestMatchRejectsBadTickets(t *testing.T) {
	h := startMatch(t, fastConfig())

	other, err := h.tickets.Issue("alice", uuid.NewString())
	require.NoError(t, err)
	_, resp := joinMatch(t, h.m.Port(), other)
	assert.Equal(t, "invalid ticket", resp.Reason)

	_, resp = joinMatch(t, h.m.Port(), h.ticket(t, "alice"))
	require.True(t, resp.OK())
	_, resp = joinMatch(t, h.m.Port(), h.ticket(t, "alice"))
	assert.Equal(t, "seat already taken", resp.Reason)

	h.cancel()
	res := h.result(t)
	assert.True(t, res.Aborted)
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name   string
		a, b   standing
		oa, ob models.Outcome
	}{
		{"leaver loses despite score", standing{score: 900, gone: true}, standing{score: 0}, models.OutcomeLose, models.OutcomeWin},
		{"top out loses", standing{score: 800, toppedOut: true}, standing{score: 100}, models.OutcomeLose, models.OutcomeWin},
		{"both topped out higher score wins", standing{score: 300, toppedOut: true}, standing{score: 100, toppedOut: true}, models.OutcomeWin, models.OutcomeLose},
		{"both gone equal score draws", standing{gone: true}, standing{gone: true}, models.OutcomeDraw, models.OutcomeDraw},
		{"aborted by score", standing{score: 100}, standing{score: 500}, models.OutcomeLose, models.OutcomeWin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			oa, ob := decide(tc.a, tc.b)
			assert.Equal(t, tc.oa, oa)
			assert.Equal(t, tc.ob, ob)
		})
	}
}

// fakeResults records the cleanup calls a launcher makes.
type fakeResults struct {
	mu        sync.Mutex
	logs      []models.GameLog
	rooms     []models.RoomPatch
	users     []models.UserPatch
	published []models.GameLog
	failRoom  bool
}

func (f *fakeResults) CreateGameLog(_ context.Context, g models.GameLog) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, g)
	return len(f.logs) - 1, nil
}

func (f *fakeResults) UpdateRoom(_ context.Context, p models.RoomPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRoom {
		return errors.New("no such room")
	}
	f.rooms = append(f.rooms, p)
	return nil
}

func (f *fakeResults) UpdateUser(_ context.Context, p models.UserPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, p)
	return nil
}

func (f *fakeResults) PublishMatchResult(_ context.Context, g models.GameLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, g)
	return nil
}

func newTestLauncher(t *testing.T, store *fakeResults) *Launcher {
	t.Helper()
	logger, _ := test.NewNullLogger()
	tickets, err := auth.NewTickets(time.Minute)
	require.NoError(t, err)
	cfg := LauncherConfig{Host: "127.0.0.1", Match: fastConfig()}
	return NewLauncher(cfg, store, store, tickets, logger)
}

func seating() Seating {
	return Seating{
		Room: testRoom,
		Host: models.User{ID: 0, Name: "alice"},
		Oppo: models.User{ID: 1, Name: "bob"},
	}
}

func waitCompletion(t *testing.T, l *Launcher) Completion {
	t.Helper()
	select {
	case c := <-l.Completions():
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no completion")
		return Completion{}
	}
}

func TestLauncherCleansUpAfterMatch(t *testing.T) {
	store := &fakeResults{}
	l := newTestLauncher(t, store)

	launch, err := l.Start(context.Background(), seating())
	require.NoError(t, err)
	assert.NotZero(t, launch.Port)
	assert.NotEqual(t, launch.HostTicket, launch.OppoTicket)

	_, err = l.Start(context.Background(), seating())
	assert.ErrorIs(t, err, ErrMatchRunning)

	alice, resp := joinMatch(t, launch.Port, launch.HostTicket)
	require.True(t, resp.OK())
	_, resp = joinMatch(t, launch.Port, launch.OppoTicket)
	require.True(t, resp.OK())
	alice.Close()

	c := waitCompletion(t, l)
	require.NoError(t, c.Err)
	assert.Equal(t, "r1", c.Room)
	assert.Equal(t, models.OutcomeWin, c.Result.Log.OppoResult.Outcome)
	assert.Zero(t, l.Running())

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.logs, 1)
	assert.Equal(t, "r1", store.logs[0].Room)
	require.Len(t, store.rooms, 1)
	assert.Equal(t, testRoom.ID, *store.rooms[0].ID)
	assert.Equal(t, models.RoomIdle, *store.rooms[0].Status)
	require.Len(t, store.users, 2)
	for _, p := range store.users {
		assert.Equal(t, models.StatusRoom, *p.Status)
		assert.Equal(t, "r1", *p.RoomName)
	}
	assert.Len(t, store.published, 1)
}

func TestLauncherReportsCleanupFailure(t *testing.T) {
	store := &fakeResults{failRoom: true}
	l := newTestLauncher(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := l.Start(ctx, seating())
	require.NoError(t, err)
	cancel()

	l.Wait()
	c := waitCompletion(t, l)
	assert.True(t, c.Result.Aborted)
	assert.ErrorContains(t, c.Err, "reset room")

	// the other cleanup calls still went through
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.logs, 1)
	assert.Len(t, store.users, 2)
}

func TestMatchStore(t *testing.T) {
	s := NewMatchStore()
	m := &Match{Room: "r1"}
	assert.True(t, s.AddMatch(m))
	assert.False(t, s.AddMatch(&Match{Room: "r1"}))

	got, ok := s.GetMatch("r1")
	require.True(t, ok)
	assert.Same(t, m, got)
	assert.Equal(t, 1, s.Len())

	s.DeleteMatch("r1")
	_, ok = s.GetMatch("r1")
	assert.False(t, ok)
}
