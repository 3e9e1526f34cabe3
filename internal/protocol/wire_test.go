package protocol

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	for _, size := range []int{1, 17, 4096, MaxPayload} {
		payload := bytes.Repeat([]byte{'x'}, size)
		payload[0] = '{'

		a, b := net.Pipe()
		errCh := make(chan error, 1)
		go func() { errCh <- Send(a, payload) }()

		got, err := Receive(b)
		require.NoError(t, err, "size %d", size)
		require.NoError(t, <-errCh)
		assert.Equal(t, payload, got, "size %d", size)

		a.Close()
		b.Close()
	}
}

func TestReceiveRejectsOversizedFrameWithoutReadingBody(t *testing.T) {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxPayload+1)
	buf.Write(hdr[:])
	buf.WriteString("body bytes")

	_, err := Receive(&buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Equal(t, "body bytes", buf.String(), "body must be left unread")
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	err := Send(&buf, make([]byte, MaxPayload+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}

func TestReceiveDisconnected(t *testing.T) {
	_, err := Receive(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrDisconnected)

	a, b := net.Pipe()
	a.Close()
	_, err = Receive(b)
	assert.ErrorIs(t, err, ErrDisconnected)
}

func TestReceiveShortReads(t *testing.T) {
	_, err := Receive(bytes.NewReader([]byte{0, 0}))
	assert.ErrorIs(t, err, ErrShortRead)

	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 10)
	buf.Write(hdr[:])
	buf.WriteString("abc")
	_, err = Receive(&buf)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestReceiveTimeoutMidHeaderIsShortRead(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() { _, _ = a.Write([]byte{0, 0}) }()
	require.NoError(t, b.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, err := Receive(b)
	assert.ErrorIs(t, err, ErrShortRead)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)

	require.NoError(t, b.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	_, err = Receive(b)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.NotErrorIs(t, err, ErrShortRead, "nothing read yet")
}

func TestSendFailsPastWriteDeadline(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.SetWriteDeadline(time.Now().Add(20*time.Millisecond)))
	err := NewConn(a).SendJSON(map[string]string{"action": "gameover"})
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestJSONHelpers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendJSON(&buf, Failure("unknown action")))

	var resp Response
	require.NoError(t, ReceiveJSON(&buf, &resp))
	assert.False(t, resp.OK())
	assert.Equal(t, "unknown action", resp.Reason)

	buf.Reset()
	require.NoError(t, Send(&buf, []byte("not json")))
	assert.Error(t, ReceiveJSON(&buf, &resp))
}

func TestConnSerializesWriters(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ca := NewConn(a)
	const writers = 8
	for i := 0; i < writers; i++ {
		go func(i int) {
			_ = ca.SendJSON(map[string]int{"n": i})
		}(i)
	}

	seen := map[int]bool{}
	for i := 0; i < writers; i++ {
		var msg map[string]int
		require.NoError(t, ReceiveJSON(b, &msg))
		seen[msg["n"]] = true
	}
	assert.Len(t, seen, writers)
}
