package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// forcedExitCode is the status used when a second signal interrupts the
// queue drain.
const forcedExitCode = 130

// shutdownContext returns a context that is canceled on the first SIGINT or
// SIGTERM. The watcher stops feeding the queue at that point while the queue
// finishes its pending batch. A second signal exits the process.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	return notifyShutdown(parent, logger, os.Exit, syscall.SIGINT, syscall.SIGTERM)
}

func notifyShutdown(
	parent context.Context, logger *slog.Logger, exit func(int), sigs ...os.Signal,
) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("stopping watch, draining sync queue",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("second signal, abandoning pending sync commands",
				slog.String("signal", sig.String()),
			)
			exit(forcedExitCode)
		case <-parent.Done():
		}
	}()

	return ctx
}
