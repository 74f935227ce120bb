package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/ftpsync/internal/metrics"
	isync "github.com/tonimelisma/ftpsync/internal/sync"
)

// watchEventBuffer decouples the filesystem watcher from the queue.
const watchEventBuffer = 256

const (
	metricsReadHeaderTimeout = 10 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [root]",
		Short: "Publish local changes to the server as they happen",
		Long: `Watch root (default: sync.root) for local changes and publish them to the
server. Changes are collected until the tree has been quiet for the debounce
period, then uploaded and deleted in order; a batch stops at its first
failure.

On SIGINT/SIGTERM the batch in flight finishes and anything still queued is
published once, bounded by sync.shutdown_timeout. A second signal exits
immediately.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	logger := cc.Logger
	root := rootArg(cc, args)

	lock, err := acquireWatchLock(cfg.LocalRoot)
	if err != nil {
		return err
	}
	defer lock.release(logger)

	var (
		reporters []isync.Reporter
		collector *metrics.Collector
	)

	if cfg.Metrics.Listen != "" {
		collector = metrics.New()
		reporters = append(reporters, collector)
	}

	// Batches run under a context the first signal does not cancel, so the
	// batch in flight completes before the drain.
	base := context.WithoutCancel(cmd.Context())

	s, err := newSyncSession(base, cc, reporters...)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger)
	events := make(chan isync.ChangeEvent, watchEventBuffer)
	watcher := isync.NewLocalWatcher(cfg.LocalRoot, root, nil, logger)

	cc.Statusf("Watching %s (Ctrl-C to stop)\n", root)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx, events) })
	g.Go(func() error { return s.engine.Watch(gctx, events) })

	if collector != nil {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Listen, collector.Handler(), logger) })
	}

	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(base, cfg.ShutdownTimeout)
	defer cancel()

	shutdownErr := s.engine.Shutdown(drainCtx)
	if shutdownErr != nil {
		logger.Error("shutdown drain failed", slog.String("error", shutdownErr.Error()))
	} else {
		logger.Info("watch stopped")
	}

	return errors.Join(runErr, shutdownErr, s.closeJournal())
}

// serveMetrics serves handler at /metrics on addr until ctx is canceled.
func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	return serveMetricsOn(ctx, ln, handler, logger)
}

func serveMetricsOn(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
