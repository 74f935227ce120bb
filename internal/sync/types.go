// Package sync keeps a local directory tree and a remote FTP tree in
// correspondence. It provides the debounced command queue that turns local
// change events into serialized remote operations, the bulk pull/push tree
// walks, the session lifecycle around the transfer client, and the transfer
// timer that reports elapsed time and bytes.
package sync

import (
	"context"
	"io"

	"github.com/tonimelisma/ftpsync/internal/ftpclient"
)

// CommandKind identifies the remote operation a queued Command performs.
type CommandKind int

// Command kinds. Values start at 1 so the zero value is never a valid kind.
const (
	CommandPut CommandKind = iota + 1
	CommandRemove
	CommandRmDir
)

func (k CommandKind) String() string {
	switch k {
	case CommandPut:
		return "put"
	case CommandRemove:
		return "remove"
	case CommandRmDir:
		return "rmdir"
	default:
		return "unknown"
	}
}

// Command is one queued remote operation. Path is slash-separated and
// relative to the local root; it addresses the mirrored remote path too.
// Commands are comparable; (Kind, Path) is the dedup identity.
type Command struct {
	Kind CommandKind
	Path string
}

// EventType is the kind of local change reported by a change-event source.
type EventType string

// Change event types, named after the events of common file watchers.
const (
	EventChange    EventType = "change"
	EventAdd       EventType = "add"
	EventUnlink    EventType = "unlink"
	EventUnlinkDir EventType = "unlinkDir"
)

// ChangeEvent is one local filesystem change. Path is slash-separated and
// relative to the local root.
type ChangeEvent struct {
	Type EventType
	Path string
}

// Conn is the transfer client contract the engine requires from an open
// session. Satisfied by *ftpclient.Conn. RemoveFile and RemoveDir report a
// missing target with an error matching ftpclient.ErrNotFound.
type Conn interface {
	List(ctx context.Context, remotePath string) ([]ftpclient.Entry, error)
	Upload(ctx context.Context, remotePath string, r io.Reader) error
	Download(ctx context.Context, remotePath string, w io.Writer) error
	RemoveFile(ctx context.Context, remotePath string) error
	RemoveDir(ctx context.Context, remotePath string) error
	EnsureDir(ctx context.Context, remotePath string) error
	ChangeDir(ctx context.Context, remotePath string) error
	ProgressTracker
	Close() error
}

// ProgressTracker delivers cumulative byte counts while a transfer runs.
type ProgressTracker interface {
	TrackProgress(fn ftpclient.ProgressFunc)
}

// DialFunc opens a new logged-in session.
type DialFunc func(ctx context.Context) (Conn, error)
