package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/tonimelisma/ftpsync/internal/ftpclient"
)

// testLogger returns a debug-level logger that writes to t.Log,
// so all activity appears in CI output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// remoteFile is one file held by fakeRemote.
type remoteFile struct {
	data    []byte
	modTime time.Time
}

// fakeRemote is an in-memory FTP server that satisfies Conn. Every call is
// recorded as "VERB /path" in calls. Errors can be injected per call string.
type fakeRemote struct {
	mu       gosync.Mutex
	files    map[string]*remoteFile
	dirs     map[string]bool
	calls    []string
	failOn   map[string]error
	progress ftpclient.ProgressFunc
	overall  int64
	now      time.Time
	dialErr  error
	dials    int
	closes   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files:  make(map[string]*remoteFile),
		dirs:   map[string]bool{"/": true},
		failOn: make(map[string]error),
		now:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRemote) dial(_ context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}

	return f, nil
}

// addFile stores a file and creates its parent directories.
func (f *fakeRemote) addFile(p, content string, modTime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[p] = &remoteFile{data: []byte(content), modTime: modTime}
	f.mkdirAllLocked(path.Dir(p))
}

func (f *fakeRemote) addDir(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mkdirAllLocked(p)
}

func (f *fakeRemote) fail(call string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failOn[call] = err
}

func (f *fakeRemote) file(p string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rf, ok := f.files[p]
	if !ok {
		return "", false
	}

	return string(rf.data), true
}

func (f *fakeRemote) hasDir(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.dirs[p]
}

// recorded returns the calls whose verb matches prefix, or all calls for "".
func (f *fakeRemote) recorded(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.calls {
		if prefix == "" || strings.HasPrefix(c, prefix+" ") {
			out = append(out, c)
		}
	}

	return out
}

func (f *fakeRemote) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closes
}

func (f *fakeRemote) mkdirAllLocked(p string) {
	for p != "/" && p != "." && p != "" {
		f.dirs[p] = true
		p = path.Dir(p)
	}
}

// begin records the call and returns an injected error, if any.
func (f *fakeRemote) begin(call string) error {
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func notFound(op, p string) error {
	return &ftpclient.Error{Code: 550, Op: op, Path: p, Message: "No such file or directory", Err: ftpclient.ErrNotFound}
}

func (f *fakeRemote) List(_ context.Context, p string) ([]ftpclient.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("LIST " + p); err != nil {
		return nil, err
	}

	if !f.dirs[p] {
		return nil, notFound("list", p)
	}

	var entries []ftpclient.Entry

	for d := range f.dirs {
		if d != p && path.Dir(d) == p {
			entries = append(entries, ftpclient.Entry{Name: path.Base(d), IsDir: true, ModTime: f.now})
		}
	}

	for name, rf := range f.files {
		if path.Dir(name) == p {
			entries = append(entries, ftpclient.Entry{
				Name: path.Base(name), IsFile: true, Size: int64(len(rf.data)), ModTime: rf.modTime,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}

func (f *fakeRemote) Upload(_ context.Context, p string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if err := f.begin("STOR " + p); err != nil {
		f.mu.Unlock()
		return err
	}

	if !f.dirs[path.Dir(p)] {
		f.mu.Unlock()
		return notFound("stor", p)
	}

	f.files[p] = &remoteFile{data: data, modTime: f.now}
	f.mu.Unlock()

	f.report(p, "upload", len(data))

	return nil
}

func (f *fakeRemote) Download(_ context.Context, p string, w io.Writer) error {
	f.mu.Lock()
	if err := f.begin("RETR " + p); err != nil {
		f.mu.Unlock()
		return err
	}

	rf, ok := f.files[p]
	f.mu.Unlock()

	if !ok {
		return notFound("retr", p)
	}

	n, err := io.Copy(w, bytes.NewReader(rf.data))
	if err != nil {
		return err
	}

	f.report(p, "download", int(n))

	return nil
}

func (f *fakeRemote) RemoveFile(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("DELE " + p); err != nil {
		return err
	}

	if _, ok := f.files[p]; !ok {
		return notFound("delete", p)
	}

	delete(f.files, p)

	return nil
}

func (f *fakeRemote) RemoveDir(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("RMD " + p); err != nil {
		return err
	}

	if !f.dirs[p] {
		return notFound("rmdir", p)
	}

	delete(f.dirs, p)

	return nil
}

func (f *fakeRemote) EnsureDir(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("MKDIR " + p); err != nil {
		return err
	}

	f.mkdirAllLocked(p)

	return nil
}

func (f *fakeRemote) ChangeDir(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.begin("CWD " + p); err != nil {
		return err
	}

	if !f.dirs[p] {
		return notFound("cwd", p)
	}

	return nil
}

func (f *fakeRemote) TrackProgress(fn ftpclient.ProgressFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.progress = fn
	f.overall = 0
}

func (f *fakeRemote) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closes++

	return nil
}

func (f *fakeRemote) report(name, kind string, n int) {
	f.mu.Lock()
	f.overall += int64(n)
	fn := f.progress
	info := ftpclient.ProgressInfo{Name: name, Type: kind, Bytes: int64(n), BytesOverall: f.overall}
	f.mu.Unlock()

	if fn != nil {
		fn(info)
	}
}

// recordingExecutor records every executed command. A command listed in
// fail fails with the mapped error; a command listed in block waits until
// its channel is closed.
type recordingExecutor struct {
	mu      gosync.Mutex
	ran     []Command
	fail    map[Command]error
	block   map[Command]chan struct{}
	started chan Command
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{
		fail:    make(map[Command]error),
		block:   make(map[Command]chan struct{}),
		started: make(chan Command, 64),
	}
}

func (e *recordingExecutor) Execute(ctx context.Context, cmd Command) OpResult {
	e.mu.Lock()
	e.ran = append(e.ran, cmd)
	wait := e.block[cmd]
	failErr := e.fail[cmd]
	e.mu.Unlock()

	e.started <- cmd

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return OpResult{Command: cmd, Status: OpFailed, Err: ctx.Err()}
		}
	}

	if failErr != nil {
		return OpResult{Command: cmd, Status: OpFailed, Err: failErr}
	}

	return OpResult{Command: cmd, Status: OpDone}
}

func (e *recordingExecutor) executed() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Command, len(e.ran))
	copy(out, e.ran)

	return out
}

func put(p string) Command    { return Command{Kind: CommandPut, Path: p} }
func remove(p string) Command { return Command{Kind: CommandRemove, Path: p} }
func rmdir(p string) Command  { return Command{Kind: CommandRmDir, Path: p} }

func errInjected(what string) error {
	return fmt.Errorf("injected failure: %s", what)
}
