package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
)

// ErrNotSynchronizable is returned by PutFile for names the path policy
// rejects.
var ErrNotSynchronizable = errors.New("sync: name is not synchronizable")

// Execute runs one queued command on the shared session. A missing remote
// target on remove or rmdir is reported as OpAbsent, not as a failure.
func (e *Engine) Execute(ctx context.Context, cmd Command) OpResult {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	switch cmd.Kind {
	case CommandPut:
		return e.executePut(ctx, cmd)
	case CommandRemove, CommandRmDir:
		return e.executeDelete(ctx, cmd)
	default:
		return e.failedResult(cmd, &TransferError{
			Op:   cmd.Kind.String(),
			Path: cmd.Path,
			Err:  fmt.Errorf("%w: kind %d", ErrUnknownCommand, int(cmd.Kind)),
		})
	}
}

func (e *Engine) executePut(ctx context.Context, cmd Command) OpResult {
	e.logger.Info("uploading", slog.String("op", ">"), slog.String("path", cmd.Path))

	conn, err := e.conn(ctx)
	if err != nil {
		return e.failedResult(cmd, &TransferError{Op: "put", Path: cmd.Path, Err: err})
	}

	timer := NewTransferTimer(e.clock, e.logger)
	timer.Start(conn)

	n, err := e.uploadFile(ctx, conn, cmd.Path, true)

	timer.Stop()

	if err != nil {
		return e.failedResult(cmd, err)
	}

	return OpResult{Command: cmd, Status: OpDone, Bytes: n}
}

func (e *Engine) executeDelete(ctx context.Context, cmd Command) OpResult {
	remote := e.uploadPath(cmd.Path)

	display := cmd.Path
	if cmd.Kind == CommandRmDir {
		display += "/"
	}

	e.logger.Info("deleting", slog.String("op", "X"), slog.String("path", display))

	conn, err := e.conn(ctx)
	if err != nil {
		return e.failedResult(cmd, &TransferError{Op: cmd.Kind.String(), Path: cmd.Path, Err: err})
	}

	if cmd.Kind == CommandRmDir {
		err = conn.RemoveDir(ctx, remote)
	} else {
		err = conn.RemoveFile(ctx, remote)
	}

	if isAlreadyAbsent(err) {
		e.logger.Debug("remote delete: already absent", slog.String("path", remote))
		return OpResult{Command: cmd, Status: OpAbsent}
	}

	if err != nil {
		return e.failedResult(cmd, &TransferError{Op: cmd.Kind.String(), Path: remote, Err: err})
	}

	return OpResult{Command: cmd, Status: OpDone}
}

// failedResult builds an OpFailed result. A lost connection also drops the
// session so the next command reconnects.
func (e *Engine) failedResult(cmd Command, err error) OpResult {
	if isConnectionLost(err) {
		e.session.Invalidate()
	}

	return OpResult{Command: cmd, Status: OpFailed, Err: err}
}

// uploadFile copies the local file at rel to its mirrored remote path and
// returns the number of bytes sent. With ensureParent the remote parent
// directory is created first.
func (e *Engine) uploadFile(ctx context.Context, conn Conn, rel string, ensureParent bool) (int64, error) {
	f, err := e.fs.Open(localName(rel))
	if err != nil {
		return 0, &TransferError{Op: "open", Path: rel, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, &TransferError{Op: "stat", Path: rel, Err: err}
	}

	if info.IsDir() {
		return 0, &TransferError{Op: "put", Path: rel, Err: errors.New("is a directory")}
	}

	remote := e.uploadPath(rel)

	if ensureParent {
		if err := conn.EnsureDir(ctx, path.Dir(remote)); err != nil {
			return 0, &TransferError{Op: "mkdir", Path: path.Dir(remote), Err: err}
		}
	}

	if err := conn.Upload(ctx, remote, e.limiter.Reader(ctx, f)); err != nil {
		return 0, &TransferError{Op: "upload", Path: remote, Err: err}
	}

	return info.Size(), nil
}
