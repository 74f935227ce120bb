package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// watchLockName is created in the local root while a watcher runs. It is a
// dotfile, so the path policy never syncs it.
const watchLockName = ".ftpsync.lock"

// lockFilePermissions: owner rw, group/other r.
const lockFilePermissions = 0o644

var errWatchRunning = errors.New("another watch is already running for this local root")

// watchLock is an exclusive flock on the lock file, which also holds the
// watcher's PID.
type watchLock struct {
	fl *flock.Flock
}

func watchLockPath(localRoot string) string {
	return filepath.Join(localRoot, watchLockName)
}

// acquireWatchLock takes the lock without blocking. It fails with
// errWatchRunning when another process holds it.
func acquireWatchLock(localRoot string) (*watchLock, error) {
	path := watchLockPath(localRoot)
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if !locked {
		if pid, pidErr := readPIDFile(path); pidErr == nil {
			return nil, fmt.Errorf("%w (PID %d, lock %s)", errWatchRunning, pid, path)
		}

		return nil, fmt.Errorf("%w (lock %s)", errWatchRunning, path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), lockFilePermissions); err != nil {
		return nil, errors.Join(fmt.Errorf("writing PID to %s: %w", path, err), fl.Unlock())
	}

	return &watchLock{fl: fl}, nil
}

// release removes the lock file and drops the lock.
func (l *watchLock) release(logger *slog.Logger) {
	if err := os.Remove(l.fl.Path()); err != nil {
		logger.Warn("removing lock file", slog.String("path", l.fl.Path()), slog.String("error", err.Error()))
	}

	if err := l.fl.Unlock(); err != nil {
		logger.Warn("releasing lock", slog.String("path", l.fl.Path()), slog.String("error", err.Error()))
	}
}

// runningWatcher reports the PID of the watcher holding the lock for
// localRoot. A lock file nobody holds is stale.
func runningWatcher(localRoot string) (int, bool) {
	path := watchLockPath(localRoot)
	if _, err := os.Stat(path); err != nil {
		return 0, false
	}

	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return 0, false
	}

	if locked {
		fl.Unlock()
		return 0, false
	}

	pid, err := readPIDFile(path)
	if err != nil {
		return 0, true
	}

	return pid, true
}

// readPIDFile reads the PID from the given file path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}
