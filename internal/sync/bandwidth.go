package sync

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/time/rate"
)

// burstMultiplier sets the token bucket burst relative to the per-second
// rate.
const burstMultiplier = 2

// BandwidthLimiter caps the combined throughput of uploads and downloads.
// A nil *BandwidthLimiter is unlimited.
type BandwidthLimiter struct {
	limiter *rate.Limiter
}

// NewBandwidthLimiter returns a limiter for bytesPerSec, or nil when
// bytesPerSec is zero or negative.
func NewBandwidthLimiter(bytesPerSec int64, logger *slog.Logger) *BandwidthLimiter {
	if bytesPerSec <= 0 {
		return nil
	}

	burst := int(bytesPerSec) * burstMultiplier

	logger.Debug("bandwidth limit enabled",
		slog.String("rate", FormatBytes(bytesPerSec)+"/s"),
		slog.Int("burst", burst),
	)

	return &BandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// Reader rate-limits r. Reads block until the bucket admits the bytes
// returned or ctx is done.
func (bl *BandwidthLimiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if bl == nil {
		return r
	}

	return &limitedReader{ctx: ctx, r: r, limiter: bl.limiter}
}

// Writer rate-limits w.
func (bl *BandwidthLimiter) Writer(ctx context.Context, w io.Writer) io.Writer {
	if bl == nil {
		return w
	}

	return &limitedWriter{ctx: ctx, w: w, limiter: bl.limiter}
}

type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (r *limitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if waitErr := waitN(r.ctx, r.limiter, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

type limitedWriter struct {
	ctx     context.Context
	w       io.Writer
	limiter *rate.Limiter
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		if waitErr := waitN(w.ctx, w.limiter, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

// waitN takes n tokens in burst-sized steps; WaitN rejects requests larger
// than the burst.
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()

	for n > 0 {
		take := min(n, burst)

		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}
