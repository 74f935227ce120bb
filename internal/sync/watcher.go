package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
)

// Watch error backoff: starts at 1s, doubles per consecutive error, caps at 30s.
const (
	watchErrInitBackoff = time.Second
	watchErrBackoffMult = 2
	watchErrMaxBackoff  = 30 * time.Second
)

// FsWatcher is the subset of *fsnotify.Watcher used by LocalWatcher.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWatcher{w: w}, nil
}

func (f *fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWatcher) Remove(name string) error      { return f.w.Remove(name) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// LocalWatcher is the change-event source for watch mode. It watches the
// directory tree at localRoot/root recursively and emits add, change,
// unlink and unlinkDir events with slash-separated paths relative to
// localRoot, spelled as they are on disk. Hidden directories are not watched.
type LocalWatcher struct {
	localRoot string
	root      string
	clock     clockwork.Clock
	logger    *slog.Logger

	watcherFactory func() (FsWatcher, error)

	mu   stdsync.Mutex
	dirs map[string]bool // watched directories, relative to localRoot
}

// NewLocalWatcher creates a watcher for the subtree root (relative) below
// the absolute directory localRoot.
func NewLocalWatcher(localRoot, root string, clock clockwork.Clock, logger *slog.Logger) *LocalWatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &LocalWatcher{
		localRoot:      localRoot,
		root:           root,
		clock:          clock,
		logger:         logger,
		watcherFactory: newFsnotifyWatcher,
		dirs:           make(map[string]bool),
	}
}

// Run registers the tree and forwards change events to events until ctx is
// canceled. events is not closed.
func (w *LocalWatcher) Run(ctx context.Context, events chan<- ChangeEvent) error {
	watcher, err := w.watcherFactory()
	if err != nil {
		return fmt.Errorf("sync: creating filesystem watcher: %w", err)
	}
	defer watcher.Close()

	top := filepath.Join(w.localRoot, filepath.FromSlash(w.root))

	info, err := os.Stat(top)
	if err != nil {
		return fmt.Errorf("sync: watch root: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("sync: watch root %s is not a directory", top)
	}

	if err := w.addTree(watcher, top); err != nil {
		return err
	}

	w.logger.Info("filesystem watcher started",
		slog.String("root", top), slog.Int("directories", w.watchedCount()))

	return w.watchLoop(ctx, watcher, events)
}

// addTree registers a watch on every non-hidden directory below top.
func (w *LocalWatcher) addTree(watcher FsWatcher, top string) error {
	return filepath.WalkDir(top, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("walk error", slog.String("path", p), slog.String("error", walkErr.Error()))
			return skipEntry(d)
		}

		if !d.IsDir() {
			return nil
		}

		if p != top && isHiddenName(d.Name()) {
			return filepath.SkipDir
		}

		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("sync: watching %s: %w", p, err)
		}

		if rel, ok := w.relPath(p); ok {
			w.markDir(rel)
		}

		return nil
	})
}

func (w *LocalWatcher) watchLoop(ctx context.Context, watcher FsWatcher, events chan<- ChangeEvent) error {
	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case fsEvent, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			w.handleFsEvent(ctx, fsEvent, watcher, events)

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-w.clock.After(errBackoff):
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}
		}
	}
}

// handleFsEvent translates one fsnotify event into change events.
func (w *LocalWatcher) handleFsEvent(ctx context.Context, fsEvent fsnotify.Event, watcher FsWatcher, events chan<- ChangeEvent) {
	// Mode changes are not synced.
	if fsEvent.Has(fsnotify.Chmod) && !fsEvent.Has(fsnotify.Create) && !fsEvent.Has(fsnotify.Write) {
		return
	}

	rel, ok := w.relPath(fsEvent.Name)
	if !ok {
		return
	}

	switch {
	case fsEvent.Has(fsnotify.Create):
		w.handleCreate(ctx, fsEvent.Name, rel, watcher, events)

	case fsEvent.Has(fsnotify.Write):
		info, err := os.Stat(fsEvent.Name)
		if err != nil || info.IsDir() {
			return
		}

		w.send(ctx, events, ChangeEvent{Type: EventChange, Path: rel})

	case fsEvent.Has(fsnotify.Remove) || fsEvent.Has(fsnotify.Rename):
		w.handleDelete(ctx, fsEvent.Name, rel, watcher, events)
	}
}

func (w *LocalWatcher) handleCreate(ctx context.Context, fsPath, rel string, watcher FsWatcher, events chan<- ChangeEvent) {
	info, err := os.Stat(fsPath)
	if err != nil {
		// Removed again before we got to it.
		w.logger.Debug("stat failed for created path",
			slog.String("path", rel), slog.String("error", err.Error()))

		return
	}

	if !info.IsDir() {
		w.send(ctx, events, ChangeEvent{Type: EventAdd, Path: rel})
		return
	}

	if isHiddenName(info.Name()) {
		return
	}

	if err := watcher.Add(fsPath); err != nil {
		w.logger.Warn("failed to add watch on new directory",
			slog.String("path", rel), slog.String("error", err.Error()))

		return
	}

	w.markDir(rel)
	w.scanNewDirectory(ctx, fsPath, rel, watcher, events)
}

// scanNewDirectory emits add events for files that appeared in a new
// directory before its watch was registered, recursing into subdirectories.
func (w *LocalWatcher) scanNewDirectory(ctx context.Context, dirPath, dirRel string, watcher FsWatcher, events chan<- ChangeEvent) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		w.logger.Debug("scan new directory failed",
			slog.String("path", dirRel), slog.String("error", err.Error()))

		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		entryPath := filepath.Join(dirPath, entry.Name())
		entryRel := dirRel + "/" + entry.Name()

		if !entry.IsDir() {
			w.send(ctx, events, ChangeEvent{Type: EventAdd, Path: entryRel})
			continue
		}

		if isHiddenName(entry.Name()) {
			continue
		}

		if err := watcher.Add(entryPath); err != nil {
			w.logger.Warn("failed to add watch on nested directory",
				slog.String("path", entryRel), slog.String("error", err.Error()))

			continue
		}

		w.markDir(entryRel)
		w.scanNewDirectory(ctx, entryPath, entryRel, watcher, events)
	}
}

// handleDelete emits unlinkDir for a path known as a watched directory and
// unlink for anything else.
func (w *LocalWatcher) handleDelete(ctx context.Context, fsPath, rel string, watcher FsWatcher, events chan<- ChangeEvent) {
	if !w.isDir(rel) {
		w.send(ctx, events, ChangeEvent{Type: EventUnlink, Path: rel})
		return
	}

	w.forgetTree(rel)

	// fsnotify drops the watch of a removed directory itself, but a renamed
	// one keeps it; the error for the former is expected.
	if err := watcher.Remove(fsPath); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		w.logger.Debug("removing watch", slog.String("path", rel), slog.String("error", err.Error()))
	}

	w.send(ctx, events, ChangeEvent{Type: EventUnlinkDir, Path: rel})
}

// send blocks until the event is accepted or ctx is canceled.
func (w *LocalWatcher) send(ctx context.Context, events chan<- ChangeEvent, ev ChangeEvent) {
	w.logger.Debug("local change", slog.String("type", string(ev.Type)), slog.String("path", ev.Path))

	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// relPath converts an OS path below localRoot to the event path form.
func (w *LocalWatcher) relPath(fsPath string) (string, bool) {
	rel, err := filepath.Rel(w.localRoot, fsPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		w.logger.Debug("ignoring path outside local root", slog.String("path", fsPath))
		return "", false
	}

	return filepath.ToSlash(rel), true
}

func (w *LocalWatcher) markDir(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.dirs[rel] = true
}

func (w *LocalWatcher) isDir(rel string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.dirs[rel]
}

// forgetTree drops rel and every watched directory below it.
func (w *LocalWatcher) forgetTree(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prefix := rel + "/"
	for d := range w.dirs {
		if d == rel || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
}

func (w *LocalWatcher) watchedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.dirs)
}

func isHiddenName(name string) bool {
	return strings.HasPrefix(name, ".")
}

func skipEntry(d fs.DirEntry) error {
	if d != nil && d.IsDir() {
		return filepath.SkipDir
	}

	return nil
}
