package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"
)

// CompareTime selects which local timestamp a pull compares against the
// remote modification time.
type CompareTime string

// Local timestamps usable by the pull skip check.
const (
	CompareAccessTime CompareTime = "atime"
	CompareModTime    CompareTime = "mtime"
)

// skipTolerance is the maximum distance between remote and local timestamps
// for an equal-size file to count as unchanged.
const skipTolerance = time.Second

// DefaultRemoteRoot is the remote directory mirroring the local root.
const DefaultRemoteRoot = "/"

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	Dial          DialFunc      // opens a logged-in session
	LocalFs       afero.Fs      // rooted at the local root (afero.NewBasePathFs)
	RemoteRoot    string        // remote directory mirroring the local root; "" means "/"
	Debounce      time.Duration // zero means DefaultDebounce
	BatchTimeout  time.Duration // zero means no per-batch deadline
	CompareTime   CompareTime   // "" means CompareAccessTime
	PreserveTimes bool          // set local times to the remote mtime after a download
	Bandwidth     int64         // bytes per second across transfers; zero means unlimited
	Clock         clockwork.Clock
	Reporters     []Reporter
	Logger        *slog.Logger
}

// Engine ties the queue, the tree walks and the session together. Queued
// commands and tree walks share the one session; opMu keeps them from
// interleaving.
type Engine struct {
	fs            afero.Fs
	remoteRoot    string
	compareTime   CompareTime
	preserveTimes bool
	limiter       *BandwidthLimiter
	clock         clockwork.Clock
	reporters     []Reporter
	logger        *slog.Logger

	session *SessionManager
	queue   *Queue

	opMu stdsync.Mutex
}

// NewEngine creates an engine with a closed session and an empty queue.
// Queued batches run under ctx.
func NewEngine(ctx context.Context, cfg *EngineConfig) (*Engine, error) {
	if cfg.Dial == nil {
		return nil, errors.New("sync: engine requires a dial function")
	}

	if cfg.LocalFs == nil {
		return nil, errors.New("sync: engine requires a local filesystem")
	}

	compare := cfg.CompareTime
	switch compare {
	case "":
		compare = CompareAccessTime
	case CompareAccessTime, CompareModTime:
	default:
		return nil, fmt.Errorf("sync: unknown compare time %q", compare)
	}

	remoteRoot := cfg.RemoteRoot
	if remoteRoot == "" {
		remoteRoot = DefaultRemoteRoot
	}

	remoteRoot = path.Clean("/" + remoteRoot)

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := &Engine{
		fs:            cfg.LocalFs,
		remoteRoot:    remoteRoot,
		compareTime:   compare,
		preserveTimes: cfg.PreserveTimes,
		limiter:       NewBandwidthLimiter(cfg.Bandwidth, cfg.Logger),
		clock:         clock,
		reporters:     cfg.Reporters,
		logger:        cfg.Logger,
		session:       NewSessionManager(cfg.Dial, cfg.Logger),
	}

	e.queue = NewQueue(ctx, &QueueConfig{
		Executor:     e,
		Debounce:     cfg.Debounce,
		BatchTimeout: cfg.BatchTimeout,
		Clock:        clock,
		OnBatch:      e.batchDone,
		Logger:       cfg.Logger,
	})

	return e, nil
}

// Queue returns the engine's command queue.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// Session returns the engine's session manager.
func (e *Engine) Session() *SessionManager {
	return e.session
}

// Dispatch maps a change event to a queued command: Put for change and add,
// Remove for unlink, RmDir for unlinkDir. Returns whether a command was
// queued.
func (e *Engine) Dispatch(ev ChangeEvent) bool {
	switch ev.Type {
	case EventChange, EventAdd:
		return e.queue.EnqueuePut(ev.Path)
	case EventUnlink:
		return e.queue.EnqueueRemove(ev.Path)
	case EventUnlinkDir:
		return e.queue.EnqueueRmdir(ev.Path)
	default:
		e.logger.Warn("ignoring unknown change event",
			slog.String("type", string(ev.Type)), slog.String("path", ev.Path))

		return false
	}
}

// Watch subscribes to a change-event source and feeds every event into the
// queue until ctx is canceled or events is closed. Events already buffered
// in events when ctx ends are still dispatched. It does not drain the queue;
// call Shutdown for that.
func (e *Engine) Watch(ctx context.Context, events <-chan ChangeEvent) error {
	e.logger.Info("watching for local changes")

	for {
		select {
		case <-ctx.Done():
			e.dispatchBuffered(events)
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			e.Dispatch(ev)
		}
	}
}

func (e *Engine) dispatchBuffered(events <-chan ChangeEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}

			e.Dispatch(ev)
		default:
			return
		}
	}
}

// Shutdown stops the queue, waits for the running batch, executes anything
// still queued under ctx and closes the session.
func (e *Engine) Shutdown(ctx context.Context) error {
	_, stopErr := e.queue.Stop(ctx)

	e.opMu.Lock()
	closeErr := e.session.Close()
	e.opMu.Unlock()

	return errors.Join(stopErr, closeErr)
}

// Close closes the session. The queue keeps accepting commands and the next
// one reconnects.
func (e *Engine) Close() error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	return e.session.Close()
}

// conn returns the open session, connecting first if needed.
func (e *Engine) conn(ctx context.Context) (Conn, error) {
	if err := e.session.Connect(ctx); err != nil {
		return nil, err
	}

	return e.session.Conn()
}

// remotePath maps a path relative to the local root to its mirrored remote
// path.
func (e *Engine) remotePath(rel string) string {
	return path.Join(e.remoteRoot, rel)
}

// uploadPath is the remote path for changes made locally. Local names keep
// their on-disk spelling for file I/O; the remote name is NFC-composed.
func (e *Engine) uploadPath(rel string) string {
	return e.remotePath(norm.NFC.String(rel))
}

// localName maps a slash-separated relative path to a name in e.fs.
func localName(rel string) string {
	return filepath.FromSlash(rel)
}

// cleanRel normalizes a user-supplied path relative to the local root and
// rejects paths escaping it.
func cleanRel(p string) (string, error) {
	rel := path.Clean(strings.TrimPrefix(filepath.ToSlash(p), "/"))
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("sync: path %q escapes the local root", p)
	}

	return rel, nil
}

// localStamp returns the local timestamp compared against the remote
// modification time. Access times are read from the real file when the
// filesystem exposes one; otherwise the modification time is used.
func (e *Engine) localStamp(name string, fi os.FileInfo) time.Time {
	if e.compareTime == CompareModTime {
		return fi.ModTime()
	}

	osPath, ok := realPath(e.fs, name)
	if !ok {
		return fi.ModTime()
	}

	at, err := accessTime(osPath)
	if err != nil {
		e.logger.Debug("access time unavailable, using modification time",
			slog.String("path", name), slog.String("error", err.Error()))

		return fi.ModTime()
	}

	return at
}

// realPath resolves name to an OS path for filesystems backed by the OS.
func realPath(fsys afero.Fs, name string) (string, bool) {
	switch f := fsys.(type) {
	case *afero.BasePathFs:
		p, err := f.RealPath(name)
		return p, err == nil
	case *afero.OsFs:
		return name, true
	default:
		return "", false
	}
}

// batchDone forwards a finished batch to the reporters.
func (e *Engine) batchDone(r *BatchReport) {
	for _, rep := range e.reporters {
		rep.BatchDone(r)
	}
}

func (e *Engine) treeDone(r *TreeReport) {
	for _, rep := range e.reporters {
		rep.TreeDone(r)
	}
}

// runTree runs one bulk operation on a fresh or reused session: connect,
// time the transfer, always close the session afterwards. Errors are logged
// and recorded in the report as well as returned.
func (e *Engine) runTree(ctx context.Context, op TreeOp, root string, fn func(Conn, *TreeReport) error) (*TreeReport, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	report := &TreeReport{
		ID:        uuid.NewString(),
		Op:        op,
		Root:      root,
		StartedAt: e.clock.Now(),
	}

	logger := e.logger.With(slog.String("run_id", report.ID), slog.String("op", string(op)))

	err := e.withSession(ctx, logger, report, fn)

	if closeErr := e.session.Close(); closeErr != nil {
		logger.Warn("closing session", slog.String("error", closeErr.Error()))
	}

	report.Duration = e.clock.Since(report.StartedAt)
	report.Err = err

	if err != nil {
		logger.Error("operation failed", slog.String("root", root), slog.String("error", err.Error()))
	} else {
		logger.Info("operation complete",
			slog.String("root", root),
			slog.Int("downloaded", report.Downloaded),
			slog.Int("uploaded", report.Uploaded),
			slog.Int("skipped", report.Skipped),
		)
	}

	e.treeDone(report)

	return report, err
}

func (e *Engine) withSession(ctx context.Context, logger *slog.Logger, report *TreeReport, fn func(Conn, *TreeReport) error) error {
	conn, err := e.conn(ctx)
	if err != nil {
		return err
	}

	timer := NewTransferTimer(e.clock, logger)
	timer.Start(conn)

	err = fn(conn, report)

	stats := timer.Stop()
	report.Bytes = stats.Bytes

	if isConnectionLost(err) {
		e.session.Invalidate()
	}

	return err
}
