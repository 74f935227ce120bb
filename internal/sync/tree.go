package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tonimelisma/ftpsync/internal/ftpclient"
)

// PullAll mirrors the remote tree under root into the local tree, skipping
// files that look unchanged. The session is closed afterwards whether the
// walk succeeded or not. A failure aborts the whole walk; it is logged,
// recorded in the report and returned.
func (e *Engine) PullAll(ctx context.Context, root string, opts PullOptions) (*TreeReport, error) {
	rel, err := cleanRel(root)
	if err != nil {
		return nil, err
	}

	filter, err := NewPullFilter(opts, e.logger)
	if err != nil {
		return nil, err
	}

	return e.runTree(ctx, TreePull, rel, func(conn Conn, report *TreeReport) error {
		return e.pullDir(ctx, conn, filter, rel, report)
	})
}

// PushAll uploads every synchronizable local file under root to its
// mirrored remote path. There is no diffing: every file is sent. Remote
// directories are created as the walk reaches them.
func (e *Engine) PushAll(ctx context.Context, root string) (*TreeReport, error) {
	rel, err := cleanRel(root)
	if err != nil {
		return nil, err
	}

	return e.runTree(ctx, TreePush, rel, func(conn Conn, report *TreeReport) error {
		remote := e.uploadPath(rel)
		if err := conn.EnsureDir(ctx, remote); err != nil {
			return &TransferError{Op: "mkdir", Path: remote, Err: err}
		}

		report.Dirs++

		return e.pushDir(ctx, conn, rel, report)
	})
}

// PutFile uploads a single local file immediately, bypassing the queue.
// The remote parent directory is created if needed.
func (e *Engine) PutFile(ctx context.Context, p string) (*TreeReport, error) {
	rel, err := cleanRel(p)
	if err != nil {
		return nil, err
	}

	if !IsSynchronizable(rel) {
		return nil, fmt.Errorf("%w: %s", ErrNotSynchronizable, rel)
	}

	return e.runTree(ctx, TreePut, rel, func(conn Conn, report *TreeReport) error {
		e.logger.Info("uploading", slog.String("op", ">"), slog.String("path", rel))

		if _, err := e.uploadFile(ctx, conn, rel, true); err != nil {
			return err
		}

		report.Uploaded++

		return nil
	})
}

func (e *Engine) pullDir(ctx context.Context, conn Conn, filter *PullFilter, rel string, report *TreeReport) error {
	if err := e.fs.MkdirAll(localName(rel), 0o755); err != nil {
		return fmt.Errorf("sync: creating local directory %s: %w", rel, err)
	}

	remote := e.remotePath(rel)

	if err := conn.ChangeDir(ctx, remote); err != nil {
		return &TransferError{Op: "cwd", Path: remote, Err: err}
	}

	entries, err := conn.List(ctx, remote)
	if err != nil {
		return &TransferError{Op: "list", Path: remote, Err: err}
	}

	for i := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry := &entries[i]
		child := path.Join(rel, entry.Name)

		switch {
		case entry.IsDir:
			if res := filter.CheckDir(child); !res.Included {
				report.Skipped++
				continue
			}

			report.Dirs++

			if err := e.pullDir(ctx, conn, filter, child, report); err != nil {
				return err
			}

		case entry.IsFile:
			if res := filter.CheckFile(child, entry.Size); !res.Included {
				report.Skipped++
				continue
			}

			if e.unchanged(child, entry) {
				e.logger.Info("unchanged", slog.String("op", "S"), slog.String("path", child))
				report.Skipped++

				continue
			}

			if err := e.download(ctx, conn, child, entry); err != nil {
				return err
			}

			report.Downloaded++
		}
	}

	return nil
}

// unchanged reports whether the local file at rel matches the remote entry:
// same size and local timestamp within skipTolerance of the remote mtime.
func (e *Engine) unchanged(rel string, entry *ftpclient.Entry) bool {
	name := localName(rel)

	info, err := e.fs.Stat(name)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	if info.Size() != entry.Size {
		return false
	}

	diff := entry.ModTime.Sub(e.localStamp(name, info))
	if diff < 0 {
		diff = -diff
	}

	return diff < skipTolerance
}

func (e *Engine) download(ctx context.Context, conn Conn, rel string, entry *ftpclient.Entry) error {
	e.logger.Info("downloading",
		slog.String("op", "<"),
		slog.String("path", rel),
		slog.String("size", FormatBytes(entry.Size)),
	)

	name := localName(rel)
	remote := e.remotePath(rel)

	// Write to a hidden sibling; the target is replaced only after a
	// complete transfer.
	perm := os.FileMode(0o644)
	if info, statErr := e.fs.Stat(name); statErr == nil {
		perm = info.Mode().Perm()
	}

	f, err := afero.TempFile(e.fs, filepath.Dir(name), "."+filepath.Base(name)+".*.part")
	if err != nil {
		return fmt.Errorf("sync: creating local file %s: %w", rel, err)
	}

	tmp := f.Name()

	if err := conn.Download(ctx, remote, e.limiter.Writer(ctx, f)); err != nil {
		f.Close()
		e.discard(tmp)

		return &TransferError{Op: "download", Path: remote, Err: err}
	}

	if err := f.Close(); err != nil {
		e.discard(tmp)
		return fmt.Errorf("sync: writing local file %s: %w", rel, err)
	}

	if err := e.fs.Chmod(tmp, perm); err != nil {
		e.logger.Warn("setting local file mode",
			slog.String("path", rel), slog.String("error", err.Error()))
	}

	if err := e.fs.Rename(tmp, name); err != nil {
		e.discard(tmp)
		return fmt.Errorf("sync: replacing local file %s: %w", rel, err)
	}

	if e.preserveTimes && !entry.ModTime.IsZero() {
		if err := e.fs.Chtimes(name, entry.ModTime, entry.ModTime); err != nil {
			e.logger.Warn("setting local file times",
				slog.String("path", rel), slog.String("error", err.Error()))
		}
	}

	return nil
}

// discard removes a partial download.
func (e *Engine) discard(tmp string) {
	if err := e.fs.Remove(tmp); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("removing partial download",
			slog.String("path", tmp), slog.String("error", err.Error()))
	}
}

func (e *Engine) pushDir(ctx context.Context, conn Conn, rel string, report *TreeReport) error {
	infos, err := afero.ReadDir(e.fs, localName(rel))
	if err != nil {
		return fmt.Errorf("sync: reading local directory %s: %w", rel, err)
	}

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}

		child := path.Join(rel, info.Name())

		if info.Mode()&os.ModeSymlink != 0 {
			target, statErr := e.fs.Stat(localName(child))
			if statErr != nil {
				e.logger.Warn("skipping broken symlink",
					slog.String("path", child), slog.String("error", statErr.Error()))
				report.Skipped++

				continue
			}

			info = target
		}

		switch {
		case info.Mode().IsRegular():
			if !IsSynchronizable(info.Name()) {
				e.logger.Debug("excluded from push", slog.String("path", child))
				report.Skipped++

				continue
			}

			e.logger.Info("uploading", slog.String("op", ">"), slog.String("path", child))

			if _, err := e.uploadFile(ctx, conn, child, false); err != nil {
				return err
			}

			report.Uploaded++

		case info.IsDir():
			remote := e.uploadPath(child)
			if err := conn.EnsureDir(ctx, remote); err != nil {
				return &TransferError{Op: "mkdir", Path: remote, Err: err}
			}

			report.Dirs++

			if err := e.pushDir(ctx, conn, child, report); err != nil {
				return err
			}
		}
	}

	return nil
}
