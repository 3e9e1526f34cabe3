// internal/protocol/wire.go
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
)

// MaxPayload is the largest frame body accepted on any connection.
const MaxPayload = 65536

// headerSize is the 4-byte big-endian length prefix in front of every frame.
const headerSize = 4

var (
	// ErrDisconnected is returned by Receive when the peer closed the connection
	// before any byte of a new header arrived.
	ErrDisconnected = errors.New("disconnected")
	// ErrShortRead is returned when a header or body could not be read in full.
	// Any partial data is discarded and the stream is out of sync.
	ErrShortRead = errors.New("short read")
	// ErrFrameTooLarge is returned for declared or outgoing lengths above MaxPayload.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Send writes payload as a single length-prefixed frame.
func Send(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(len(payload)))
	copy(frame[headerSize:], payload)
	return writeFull(w, frame)
}

// Receive reads exactly one frame and returns its body.
func Receive(r io.Reader) ([]byte, error) {
	var hdr [headerSize]byte
	if got, err := io.ReadFull(r, hdr[:]); err != nil {
		switch {
		case got > 0:
			return nil, fmt.Errorf("%w: incomplete header: %w", ErrShortRead, err)
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, syscall.ECONNRESET):
			return nil, ErrDisconnected
		default:
			return nil, err
		}
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxPayload {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: body: %w", ErrShortRead, err)
	}
	return body, nil
}

// SendJSON marshals v and sends it as one frame.
func SendJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return Send(w, data)
}

// ReceiveJSON reads one frame and unmarshals it into v.
func ReceiveJSON(r io.Reader, v any) error {
	data, err := Receive(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// writeFull keeps writing until the whole buffer is out. Short writes are
// continued; any error, including a passed write deadline, is fatal.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		buf = buf[n:]
		if err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("write frame: %w", io.ErrShortWrite)
		}
	}
	return nil
}

// Conn is a framed connection that is safe for concurrent senders.
type Conn struct {
	net.Conn
	wmu sync.Mutex
}

// NewConn wraps c.
func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c}
}

// Send writes one frame, serialized against other writers.
func (c *Conn) Send(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return Send(c.Conn, payload)
}

// SendJSON marshals v and writes it as one frame.
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return c.Send(data)
}

// Receive reads one frame. Only one goroutine may receive at a time.
func (c *Conn) Receive() ([]byte, error) {
	return Receive(c.Conn)
}
