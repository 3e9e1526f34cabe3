package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/toshiishere/network-programming/internal/protocol"
)

// ErrUnavailable is returned by every call once the data store connection has failed.
var ErrUnavailable = errors.New("data store unavailable")

// ErrTimeout is returned when the data store did not answer within the RPC timeout.
var ErrTimeout = errors.New("data store timeout")

// RemoteError is a failed reply from the data store.
type RemoteError struct {
	Reason string
}

func (e *RemoteError) Error() string {
	if e.Reason == "" {
		return "data store request failed"
	}
	return e.Reason
}

// IsNotFound reports whether err is a "no such <type>" reply.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && strings.HasPrefix(re.Reason, "no such")
}

// Reason returns the data store's failure reason, or "" for transport errors.
func Reason(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

// Client is the lobby's single connection to the data store. Round trips are
// serialized, so it may be shared by the lobby loop and the match runtimes.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
	log     *logrus.Logger

	done     chan struct{}
	failOnce sync.Once
	err      error

	// stale counts replies still owed for timed-out requests
	stale int
}

// Dial connects to the data store at addr.
func Dial(ctx context.Context, addr string, timeout time.Duration, logger *logrus.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to reach data store at %s: %w", addr, err)
	}
	logger.Infof("Connected to data store at %s", addr)
	return NewClient(conn, timeout, logger), nil
}

// NewClient wraps an established connection. timeout bounds every round trip.
func NewClient(conn net.Conn, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		conn:    conn,
		timeout: timeout,
		log:     logger,
		done:    make(chan struct{}),
	}
}

// Done is closed once the connection is unusable.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the transport error that broke the connection, if any.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.fail(net.ErrClosed)
	return nil
}

func (c *Client) fail(err error) {
	c.failOnce.Do(func() {
		c.err = err
		c.conn.Close()
		close(c.done)
	})
}

func (c *Client) call(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return protocol.Response{}, ErrUnavailable
	default:
	}

	var deadline time.Time
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)

	// replies to requests that timed out earlier are still in flight
	for c.stale > 0 {
		var discard protocol.Response
		if err := protocol.ReceiveJSON(c.conn, &discard); err != nil {
			return protocol.Response{}, c.transportError(req, err, inSync(err))
		}
		c.stale--
	}

	if err := protocol.SendJSON(c.conn, req); err != nil {
		return protocol.Response{}, c.transportError(req, err, false)
	}
	var resp protocol.Response
	if err := protocol.ReceiveJSON(c.conn, &resp); err != nil {
		recoverable := inSync(err)
		if recoverable {
			c.stale++
		}
		return protocol.Response{}, c.transportError(req, err, recoverable)
	}
	if !resp.OK() {
		return resp, &RemoteError{Reason: resp.Reason}
	}
	return resp, nil
}

// transportError fails the in-flight request. A timeout while waiting for a reply
// leaves the connection usable; anything else breaks it for good.
func (c *Client) transportError(req protocol.Request, err error, recoverable bool) error {
	fields := logrus.Fields{"action": req.Action, "type": req.Type, "error": err}
	if recoverable {
		c.log.WithFields(fields).Warn("data store round trip timed out")
		return fmt.Errorf("%s %s: %w", req.Action, req.Type, ErrTimeout)
	}
	c.log.WithFields(fields).Error("data store round trip failed")
	c.fail(err)
	return fmt.Errorf("%s %s: %w", req.Action, req.Type, ErrUnavailable)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// inSync reports whether a failed read left the stream on a frame boundary:
// the deadline passed before any byte of the reply arrived.
func inSync(err error) bool {
	return isTimeout(err) && !errors.Is(err, protocol.ErrShortRead)
}
