package main

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyShutdown_FirstSignalCancels(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	exited := make(chan int, 1)
	ctx := notifyShutdown(parent, testLogger(t), func(code int) { exited <- code }, syscall.SIGUSR1)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2s of the first signal")
	}

	select {
	case code := <-exited:
		t.Fatalf("exit(%d) called after a single signal", code)
	default:
	}
}

func TestNotifyShutdown_SecondSignalExits(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	exited := make(chan int, 1)
	ctx := notifyShutdown(parent, testLogger(t), func(code int) { exited <- code }, syscall.SIGUSR2)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))
	<-ctx.Done()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))

	select {
	case code := <-exited:
		assert.Equal(t, forcedExitCode, code)
	case <-time.After(2 * time.Second):
		t.Fatal("exit not called within 2s of the second signal")
	}
}

func TestShutdownContext_ParentCancel(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	ctx := shutdownContext(parent, testLogger(t))

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2s of parent cancel")
	}
}
