package sync

import (
	"errors"
	"fmt"

	"github.com/tonimelisma/ftpsync/internal/ftpclient"
)

// Sentinel errors returned by the engine.
var (
	// ErrSessionClosed is returned by operations that need a session while
	// none is open, typically after a failed connect.
	ErrSessionClosed = errors.New("sync: session closed")

	// ErrUnknownCommand is returned for a Command whose Kind is not recognized.
	ErrUnknownCommand = errors.New("sync: unknown command")

	// ErrQueueStopped is returned when the queue no longer accepts work.
	ErrQueueStopped = errors.New("sync: queue stopped")
)

// TransferError records which operation failed on which path. Any transfer
// failure other than an already-absent delete surfaces as a TransferError.
type TransferError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("sync: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// isAlreadyAbsent reports whether a remove failed only because the target
// does not exist on the remote side.
func isAlreadyAbsent(err error) bool {
	return errors.Is(err, ftpclient.ErrNotFound)
}

// isConnectionLost reports whether err means the session is unusable.
func isConnectionLost(err error) bool {
	return errors.Is(err, ftpclient.ErrConnectionLost)
}
