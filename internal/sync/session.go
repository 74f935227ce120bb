package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
)

// SessionState is the lifecycle state of the engine's single session.
type SessionState int

// Session states.
const (
	SessionClosed SessionState = iota
	SessionOpen
)

func (s SessionState) String() string {
	if s == SessionOpen {
		return "open"
	}

	return "closed"
}

// SessionManager owns the engine's one transfer session. It opens the
// session lazily and keeps it open across a whole batch or tree walk; only
// Close (or a lost connection) tears it down.
type SessionManager struct {
	dial   DialFunc
	logger *slog.Logger

	mu   gosync.Mutex
	conn Conn
}

// NewSessionManager creates a manager in the Closed state.
func NewSessionManager(dial DialFunc, logger *slog.Logger) *SessionManager {
	return &SessionManager{dial: dial, logger: logger}
}

// Connect opens the session unless it is already open. A failure is logged
// and leaves the state Closed; the returned error wraps ErrSessionClosed.
func (m *SessionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return nil
	}

	conn, err := m.dial(ctx)
	if err != nil {
		m.logger.Error("connection failed", slog.String("error", err.Error()))
		return fmt.Errorf("%w: connect: %w", ErrSessionClosed, err)
	}

	m.conn = conn
	m.logger.Debug("session opened")

	return nil
}

// Conn returns the open session, or ErrSessionClosed.
func (m *SessionManager) Conn() (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil, ErrSessionClosed
	}

	return m.conn, nil
}

// State reports whether a session is open.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return SessionClosed
	}

	return SessionOpen
}

// Close closes the session if open. Closing a closed manager is a no-op.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}

	m.logger.Debug("session closed")

	if err := conn.Close(); err != nil {
		return fmt.Errorf("sync: closing session: %w", err)
	}

	return nil
}

// Invalidate drops a session whose connection is known to be dead so the
// next Connect dials again. The underlying connection is closed best-effort.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn == nil {
		return
	}

	m.logger.Warn("session lost, will reconnect on next use")

	if err := conn.Close(); err != nil {
		m.logger.Debug("closing lost session", slog.String("error", err.Error()))
	}
}
