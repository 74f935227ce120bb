// Queue turns a stream of local change events into ordered, deduplicated
// batches of remote operations. Enqueue calls only touch memory; a debounced
// flush drains the queue into a batch that runs sequentially on one session.
// At most one batch runs at a time, and commands enqueued while a batch runs
// accumulate for the next one.

package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultDebounce is the quiet period a burst of change events must leave
// before the queue flushes.
const DefaultDebounce = 300 * time.Millisecond

// CommandExecutor runs one Command against the remote side.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd Command) OpResult
}

// ExecutorFunc adapts a plain function to CommandExecutor. A nil error is
// recorded as OpDone, anything else as OpFailed.
type ExecutorFunc func(ctx context.Context, cmd Command) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, cmd Command) OpResult {
	if err := f(ctx, cmd); err != nil {
		return OpResult{Command: cmd, Status: OpFailed, Err: err}
	}

	return OpResult{Command: cmd, Status: OpDone}
}

// QueueConfig holds the options for NewQueue.
type QueueConfig struct {
	Executor     CommandExecutor
	Debounce     time.Duration      // zero means DefaultDebounce
	BatchTimeout time.Duration      // zero means no per-batch deadline
	Clock        clockwork.Clock    // nil means the real clock
	OnBatch      func(*BatchReport) // optional, called after every batch
	Logger       *slog.Logger
}

// Queue is the debounced, serialized command buffer. All methods are safe
// for concurrent use.
type Queue struct {
	exec         CommandExecutor
	debounce     time.Duration
	batchTimeout time.Duration
	clock        clockwork.Clock
	onBatch      func(*BatchReport)
	logger       *slog.Logger
	ctx          context.Context

	mu       gosync.Mutex
	pending  []Command
	index    map[Command]struct{}
	batching bool // true while a batch drains; at most one batch at a time
	stopped  bool
	timer    clockwork.Timer
	inflight gosync.WaitGroup
}

// NewQueue creates an empty queue. Batches started by the debounce timer run
// under ctx (plus the optional batch timeout).
func NewQueue(ctx context.Context, cfg *QueueConfig) *Queue {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Queue{
		exec:         cfg.Executor,
		debounce:     debounce,
		batchTimeout: cfg.BatchTimeout,
		clock:        clock,
		onBatch:      cfg.OnBatch,
		logger:       cfg.Logger,
		ctx:          ctx,
		index:        make(map[Command]struct{}),
	}
}

// EnqueuePut queues an upload of p. Returns false when the name is not
// synchronizable, the same put is already queued, or the queue is stopped.
func (q *Queue) EnqueuePut(p string) bool {
	if !IsSynchronizable(p) {
		q.logger.Debug("ignoring unsynchronizable path", slog.String("path", p))
		return false
	}

	return q.add(Command{Kind: CommandPut, Path: p})
}

// EnqueueRemove queues a remote file deletion of p, with the same filtering
// and deduplication as EnqueuePut.
func (q *Queue) EnqueueRemove(p string) bool {
	if !IsSynchronizable(p) {
		q.logger.Debug("ignoring unsynchronizable path", slog.String("path", p))
		return false
	}

	return q.add(Command{Kind: CommandRemove, Path: p})
}

// EnqueueRmdir queues a remote directory deletion of p. Directory names are
// not filtered.
func (q *Queue) EnqueueRmdir(p string) bool {
	return q.add(Command{Kind: CommandRmDir, Path: p})
}

// Len returns the number of queued commands not yet part of a batch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// Pending returns a copy of the queued commands in insertion order.
func (q *Queue) Pending() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Command, len(q.pending))
	copy(out, q.pending)

	return out
}

// Busy reports whether a batch is currently executing.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.batching
}

// Stop stops accepting commands and cancels the pending debounce, waits for
// the in-flight batch, then executes whatever is still queued as one final
// batch under ctx. Returns that batch's report (nil if nothing was pending).
// Stopping a stopped queue is a no-op.
func (q *Queue) Stop(ctx context.Context) (*BatchReport, error) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil, nil
	}

	q.stopped = true
	if q.timer != nil {
		q.timer.Stop()
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("sync: waiting for in-flight batch: %w", ctx.Err())
	}

	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.index = make(map[Command]struct{})
	q.mu.Unlock()

	if len(batch) == 0 {
		return nil, nil
	}

	q.logger.Info("draining queued commands before shutdown", slog.Int("commands", len(batch)))

	report := q.runBatch(ctx, batch)

	return report, report.Err
}

// add appends cmd unless an equal command is already queued. The existing
// entry keeps its position.
func (q *Queue) add(cmd Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		q.logger.Debug("queue stopped, dropping command",
			slog.String("kind", cmd.Kind.String()), slog.String("path", cmd.Path))

		return false
	}

	if _, dup := q.index[cmd]; dup {
		return false
	}

	q.pending = append(q.pending, cmd)
	q.index[cmd] = struct{}{}

	q.logger.Debug("command queued",
		slog.String("kind", cmd.Kind.String()),
		slog.String("path", cmd.Path),
		slog.Int("queued", len(q.pending)),
	)

	q.scheduleLocked()

	return true
}

// scheduleLocked (re)starts the debounce timer. Caller holds q.mu.
func (q *Queue) scheduleLocked() {
	if q.timer != nil {
		q.timer.Stop()
	}

	q.timer = q.clock.AfterFunc(q.debounce, q.flush)
}

// flush is the debounce timer callback. It never waits for a running batch:
// if one is in flight it reschedules itself and returns.
func (q *Queue) flush() {
	q.mu.Lock()

	if q.stopped || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}

	if q.batching {
		q.scheduleLocked()
		q.mu.Unlock()

		return
	}

	// Snapshot and reset: commands arriving from now on go to the next batch.
	batch := q.pending
	q.pending = nil
	q.index = make(map[Command]struct{})
	q.batching = true
	q.inflight.Add(1)
	q.mu.Unlock()

	q.runBatch(q.ctx, batch)

	q.mu.Lock()
	q.batching = false
	if !q.stopped {
		q.scheduleLocked()
	}
	q.mu.Unlock()

	q.inflight.Done()
}

// runBatch executes batch sequentially in insertion order, stopping at the
// first failure. Earlier commands are not rolled back.
func (q *Queue) runBatch(ctx context.Context, batch []Command) *BatchReport {
	if q.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.batchTimeout)
		defer cancel()
	}

	report := &BatchReport{
		ID:        uuid.NewString(),
		StartedAt: q.clock.Now(),
		Results:   make([]OpResult, 0, len(batch)),
	}

	logger := q.logger.With(slog.String("batch_id", report.ID))
	logger.Info("publishing changes", slog.Int("commands", len(batch)))

	for i, cmd := range batch {
		res := q.exec.Execute(ctx, cmd)
		res.Command = cmd
		report.Results = append(report.Results, res)

		if res.Status != OpFailed {
			continue
		}

		report.Err = res.Err

		for _, rest := range batch[i+1:] {
			report.Results = append(report.Results, OpResult{Command: rest, Status: OpSkipped})
		}

		logger.Error("transfer failed",
			slog.String("kind", cmd.Kind.String()),
			slog.String("path", cmd.Path),
			slog.String("error", res.Err.Error()),
			slog.Int("skipped", len(batch)-i-1),
		)

		break
	}

	report.Duration = q.clock.Since(report.StartedAt)

	if report.Err == nil {
		logger.Info("changes published",
			slog.Int("commands", len(batch)),
			slog.Duration("duration", report.Duration.Round(time.Millisecond)),
		)
	}

	if q.onBatch != nil {
		q.onBatch(report)
	}

	return report
}
