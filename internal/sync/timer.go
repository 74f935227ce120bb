package sync

import (
	"log/slog"
	"strconv"
	gosync "sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"

	"github.com/tonimelisma/ftpsync/internal/ftpclient"
)

// TransferStats is the summary reported by TransferTimer.Stop.
type TransferStats struct {
	Duration time.Duration
	Bytes    int64
}

// TransferTimer measures one logical operation (a bulk pull, a bulk push or
// a single put). Not shared across concurrent operations.
type TransferTimer struct {
	clock  clockwork.Clock
	logger *slog.Logger

	mu      gosync.Mutex
	start   time.Time
	bytes   int64
	tracker ProgressTracker
}

// NewTransferTimer creates an idle timer.
func NewTransferTimer(clock clockwork.Clock, logger *slog.Logger) *TransferTimer {
	return &TransferTimer{clock: clock, logger: logger}
}

// Start records the start time, resets the byte counter and subscribes to
// the tracker's progress notifications.
func (t *TransferTimer) Start(tracker ProgressTracker) {
	t.mu.Lock()
	t.start = t.clock.Now()
	t.bytes = 0
	t.tracker = tracker
	t.mu.Unlock()

	if tracker != nil {
		tracker.TrackProgress(t.onProgress)
	}
}

// Stop unsubscribes, logs the transfer summary and returns it.
func (t *TransferTimer) Stop() TransferStats {
	t.mu.Lock()
	tracker := t.tracker
	t.tracker = nil
	t.mu.Unlock()

	if tracker != nil {
		tracker.TrackProgress(nil)
	}

	t.mu.Lock()
	stats := TransferStats{Duration: t.clock.Since(t.start), Bytes: t.bytes}
	t.mu.Unlock()

	t.logger.Info("transfer summary",
		slog.String("size", FormatBytes(stats.Bytes)),
		slog.Duration("duration", stats.Duration.Round(time.Millisecond)),
	)

	return stats
}

func (t *TransferTimer) onProgress(info ftpclient.ProgressInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.bytes = info.BytesOverall
}

// iecUnits pairs IEC multipliers with their suffixes, largest first.
var iecUnits = []struct {
	size   uint64
	suffix string
}{
	{humanize.EiByte, "EiB"},
	{humanize.PiByte, "PiB"},
	{humanize.TiByte, "TiB"},
	{humanize.GiByte, "GiB"},
	{humanize.MiByte, "MiB"},
	{humanize.KiByte, "KiB"},
}

// FormatBytes renders a byte count in IEC units with two decimals, e.g.
// "1.50KiB". Counts below one KiB are rendered as whole bytes, e.g. "512B".
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}

	u := uint64(n)
	for _, unit := range iecUnits {
		if u >= unit.size {
			return humanize.FormatFloat("#.##", float64(u)/float64(unit.size)) + unit.suffix
		}
	}

	return strconv.FormatInt(n, 10) + "B"
}
