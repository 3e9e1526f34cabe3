package database

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toshiishere/network-programming/internal/datastore"
	"github.com/toshiishere/network-programming/internal/models"
	"github.com/toshiishere/network-programming/internal/protocol"
)

// newStoreClient connects a client to a real data store. stop shuts the store
// down and waits for it to exit.
func newStoreClient(t *testing.T) (c *Client, stop func()) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store := datastore.NewStore(filepath.Join(t.TempDir(), "gamelog.json"), logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = datastore.NewServer(store, logger).Serve(ctx, ln)
	}()

	c, err = Dial(context.Background(), ln.Addr().String(), time.Second, logger)
	require.NoError(t, err)
	stop = func() {
		cancel()
		<-served
	}
	t.Cleanup(func() {
		stop()
		c.Close()
	})
	return c, stop
}

func TestClientUserAndRoomCalls(t *testing.T) {
	c, _ := newStoreClient(t)
	ctx := context.Background()

	id, err := c.CreateUser(ctx, models.User{Name: "alice", Password: "pw1", Status: models.StatusOffline})
	require.NoError(t, err)

	_, err = c.CreateUser(ctx, models.User{Name: "alice"})
	assert.Equal(t, "user already exists", Reason(err))

	u, err := c.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)

	_, err = c.GetUserByName(ctx, "nobody")
	assert.True(t, IsNotFound(err))

	require.NoError(t, c.UpdateUser(ctx, models.NewUserPatch(id).WithStatus(models.StatusIdle)))
	u, err = c.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusIdle, u.Status)

	rooms, err := c.ListRooms(ctx, models.VisibilityPublic)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	rid, err := c.CreateRoom(ctx, models.Room{Name: "r1", HostUser: "alice"})
	require.NoError(t, err)
	require.NoError(t, c.UpdateRoom(ctx, models.NewRoomPatch(rid).WithOppo("bob")))

	r, err := c.GetRoomByName(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "bob", r.OppoUser)

	_, err = c.CreateGameLog(ctx, models.GameLog{Room: "r1"})
	require.NoError(t, err)

	require.NoError(t, c.DeleteRoom(ctx, "r1"))
	assert.Error(t, c.DeleteRoom(ctx, "r1"))
}

func TestClientBreaksWhenStoreGoesAway(t *testing.T) {
	c, stop := newStoreClient(t)
	stop()

	select {
	case <-c.Done():
		t.Fatal("client must not notice before the next call")
	default:
	}

	_, err := c.GetUserByName(context.Background(), "alice")
	require.ErrorIs(t, err, ErrUnavailable)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done was not closed")
	}
	assert.Error(t, c.Err())

	_, err = c.ListRooms(context.Background(), models.VisibilityPublic)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClientTimeoutDiscardsLateReply(t *testing.T) {
	logger, _ := test.NewNullLogger()
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()
	c := NewClient(clientSide, 50*time.Millisecond, logger)
	defer c.Close()

	release := make(chan struct{})
	go func() {
		if _, err := protocol.Receive(serverSide); err != nil {
			return
		}
		<-release
		_ = protocol.SendJSON(serverSide, protocol.Failure("no such user"))

		if _, err := protocol.Receive(serverSide); err != nil {
			return
		}
		_ = protocol.SendJSON(serverSide, protocol.Success(models.User{ID: 4, Name: "bob"}))
	}()

	_, err := c.GetUserByName(context.Background(), "slow")
	require.ErrorIs(t, err, ErrTimeout)
	assert.NoError(t, c.Err(), "a timeout does not break the connection")
	close(release)

	u, err := c.GetUserByName(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 4, u.ID)
}

func TestListRoomsOnlyTreatsEmptySearchAsEmpty(t *testing.T) {
	logger, _ := test.NewNullLogger()
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()
	c := NewClient(clientSide, time.Second, logger)
	defer c.Close()

	go func() {
		for _, reason := range []string{protocol.ReasonNoRooms, "unsupported type"} {
			if _, err := protocol.Receive(serverSide); err != nil {
				return
			}
			_ = protocol.SendJSON(serverSide, protocol.Failure(reason))
		}
	}()

	rooms, err := c.ListRooms(context.Background(), models.VisibilityPublic)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	_, err = c.ListRooms(context.Background(), models.VisibilityPrivate)
	assert.Equal(t, "unsupported type", Reason(err))
}

func TestClientBreaksOnTimeoutMidReply(t *testing.T) {
	logger, _ := test.NewNullLogger()
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()
	c := NewClient(clientSide, 50*time.Millisecond, logger)
	defer c.Close()

	go func() {
		if _, err := protocol.Receive(serverSide); err != nil {
			return
		}
		_, _ = serverSide.Write([]byte{0, 0})
	}()

	_, err := c.GetUserByName(context.Background(), "slow")
	require.ErrorIs(t, err, ErrUnavailable, "a half-read header cannot be resynchronized")
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done was not closed")
	}
}
