package ftpclient

import (
	"context"
	"net"
	gosync "sync"
	"time"

	"github.com/jlaffaye/ftp"
)

// interrupter is implemented by server connections whose blocked I/O can be
// broken from another goroutine.
type interrupter interface {
	Interrupt()
}

// connTracker hands out the sockets of one FTP session, control and data
// connections alike, and can force every open one to fail.
type connTracker struct {
	dialer net.Dialer

	mu    gosync.Mutex
	ctx   context.Context //nolint:containedctx // bounds the initial dial only
	conns map[*trackedConn]struct{}
}

func newConnTracker(ctx context.Context, timeout time.Duration) *connTracker {
	return &connTracker{
		dialer: net.Dialer{Timeout: timeout},
		ctx:    ctx,
		conns:  make(map[*trackedConn]struct{}),
	}
}

// dial matches the signature ftp.DialWithDialFunc expects.
func (t *connTracker) dial(network, address string) (net.Conn, error) {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()

	nc, err := t.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	tc := &trackedConn{Conn: nc, tracker: t}

	t.mu.Lock()
	t.conns[tc] = struct{}{}
	t.mu.Unlock()

	return tc, nil
}

// detach stops later data connections from inheriting the dial context.
func (t *connTracker) detach() {
	t.mu.Lock()
	t.ctx = context.Background()
	t.mu.Unlock()
}

// Interrupt sets a deadline in the past on every open socket so that any
// read or write in progress returns immediately.
func (t *connTracker) Interrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()

	past := time.Unix(1, 0)
	for tc := range t.conns {
		_ = tc.SetDeadline(past)
	}
}

func (t *connTracker) forget(tc *trackedConn) {
	t.mu.Lock()
	delete(t.conns, tc)
	t.mu.Unlock()
}

type trackedConn struct {
	net.Conn
	tracker *connTracker
}

func (c *trackedConn) Close() error {
	c.tracker.forget(c)
	return c.Conn.Close()
}

// trackedServer is an *ftp.ServerConn whose sockets come from a connTracker.
type trackedServer struct {
	*ftp.ServerConn
	tracker *connTracker
}

func (s *trackedServer) Interrupt() { s.tracker.Interrupt() }

func dialServer(ctx context.Context, addr string, timeout time.Duration) (serverConn, error) {
	tracker := newConnTracker(ctx, timeout)

	// The greeting read happens inside ftp.Dial.
	stop := context.AfterFunc(ctx, tracker.Interrupt)
	defer stop()

	sc, err := ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithDialFunc(tracker.dial))
	if err != nil {
		return nil, err
	}

	tracker.detach()

	return &trackedServer{ServerConn: sc, tracker: tracker}, nil
}

// guard runs fn while ctx may cut it short. When ctx ends first the session
// sockets are interrupted and the call reports ErrConnectionLost, since the
// control connection is out of step with the server from then on.
func (c *Conn) guard(ctx context.Context, op, remotePath string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	intr, ok := c.sc.(interrupter)
	if !ok {
		return wrapError(op, remotePath, fn())
	}

	stop := context.AfterFunc(ctx, intr.Interrupt)
	err := fn()

	if !stop() {
		return &Error{
			Op:      op,
			Path:    remotePath,
			Message: "interrupted: " + context.Cause(ctx).Error(),
			Err:     ErrConnectionLost,
		}
	}

	return wrapError(op, remotePath, err)
}
