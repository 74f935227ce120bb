package sync

import (
	"context"
	"errors"
	"io"
	gosync "sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/ftpsync/internal/ftpclient"
)

// recordingReporter collects every report it receives.
type recordingReporter struct {
	mu      gosync.Mutex
	batches []*BatchReport
	trees   []*TreeReport
}

func (r *recordingReporter) BatchDone(report *BatchReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches = append(r.batches, report)
}

func (r *recordingReporter) TreeDone(report *TreeReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trees = append(r.trees, report)
}

func (r *recordingReporter) batchReports() []*BatchReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*BatchReport(nil), r.batches...)
}

func (r *recordingReporter) treeReports() []*TreeReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*TreeReport(nil), r.trees...)
}

func TestNewEngine_Validation(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	logger := testLogger(t)

	_, err := NewEngine(context.Background(), &EngineConfig{LocalFs: afero.NewMemMapFs(), Logger: logger})
	assert.Error(t, err)

	_, err = NewEngine(context.Background(), &EngineConfig{Dial: remote.dial, Logger: logger})
	assert.Error(t, err)

	_, err = NewEngine(context.Background(), &EngineConfig{
		Dial: remote.dial, LocalFs: afero.NewMemMapFs(), CompareTime: "ctime", Logger: logger,
	})
	assert.Error(t, err)

	e, err := NewEngine(context.Background(), &EngineConfig{
		Dial: remote.dial, LocalFs: afero.NewMemMapFs(), RemoteRoot: "/www/", Logger: logger,
	})
	require.NoError(t, err)
	assert.Equal(t, "/www", e.remoteRoot)
	assert.Equal(t, CompareAccessTime, e.compareTime)
}

func TestExecute_PutEnsuresParentAndUploads(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeLocal(t, fsys, "theme/css/a.css", "body{}", time.Time{})

	remote := newFakeRemote()
	e := newTestEngine(t, remote, fsys)

	res := e.Execute(context.Background(), put("theme/css/a.css"))
	require.NoError(t, res.Err)
	assert.Equal(t, OpDone, res.Status)
	assert.Equal(t, int64(6), res.Bytes)

	assert.Equal(t, []string{"MKDIR /theme/css", "STOR /theme/css/a.css"}, remote.recorded(""))

	// Incremental transfers keep the session open.
	assert.Equal(t, SessionOpen, e.Session().State())
	assert.Equal(t, 0, remote.closeCount())
}

func TestExecute_ReusesSessionAcrossCommands(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeLocal(t, fsys, "theme/a.css", "a", time.Time{})
	writeLocal(t, fsys, "theme/b.css", "b", time.Time{})

	remote := newFakeRemote()
	e := newTestEngine(t, remote, fsys)

	e.Execute(context.Background(), put("theme/a.css"))
	e.Execute(context.Background(), put("theme/b.css"))

	assert.Equal(t, 1, remote.dials)
}

func TestExecute_DeleteAlreadyAbsentSucceeds(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	e := newTestEngine(t, remote, afero.NewMemMapFs())

	res := e.Execute(context.Background(), remove("theme/gone.css"))
	assert.Equal(t, OpAbsent, res.Status)
	assert.NoError(t, res.Err)

	res = e.Execute(context.Background(), rmdir("theme/gone"))
	assert.Equal(t, OpAbsent, res.Status)
	assert.NoError(t, res.Err)

	assert.Equal(t, []string{"DELE /theme/gone.css"}, remote.recorded("DELE"))
	assert.Equal(t, []string{"RMD /theme/gone"}, remote.recorded("RMD"))
}

func TestExecute_DeleteExisting(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.addFile("/theme/old/a.css", "a", remoteTime)

	e := newTestEngine(t, remote, afero.NewMemMapFs())

	assert.Equal(t, OpDone, e.Execute(context.Background(), remove("theme/old/a.css")).Status)
	assert.Equal(t, OpDone, e.Execute(context.Background(), rmdir("theme/old")).Status)

	_, ok := remote.file("/theme/old/a.css")
	assert.False(t, ok)
	assert.False(t, remote.hasDir("/theme/old"))
}

func TestExecute_DeleteFailure(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	boom := &ftpclient.Error{Code: 450, Op: "delete", Path: "/theme/a.css", Err: ftpclient.ErrTransient}
	remote.fail("DELE /theme/a.css", boom)

	e := newTestEngine(t, remote, afero.NewMemMapFs())

	res := e.Execute(context.Background(), remove("theme/a.css"))
	assert.Equal(t, OpFailed, res.Status)
	assert.ErrorIs(t, res.Err, ftpclient.ErrTransient)

	var te *TransferError
	require.ErrorAs(t, res.Err, &te)
	assert.Equal(t, "remove", te.Op)

	// Not a connection-level failure: the session stays up.
	assert.Equal(t, SessionOpen, e.Session().State())
}

func TestExecute_ConnectionLostInvalidatesSession(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	lost := &ftpclient.Error{Op: "delete", Path: "/theme/a.css", Err: ftpclient.ErrConnectionLost}
	remote.fail("DELE /theme/a.css", lost)

	e := newTestEngine(t, remote, afero.NewMemMapFs())

	res := e.Execute(context.Background(), remove("theme/a.css"))
	assert.Equal(t, OpFailed, res.Status)
	assert.Equal(t, SessionClosed, e.Session().State())

	e.Execute(context.Background(), remove("theme/b.css"))
	assert.Equal(t, 2, remote.dials)
}

func TestExecute_UnknownCommand(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	e := newTestEngine(t, remote, afero.NewMemMapFs())

	res := e.Execute(context.Background(), Command{Kind: CommandKind(42), Path: "theme/a.css"})
	assert.Equal(t, OpFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrUnknownCommand)
	assert.Empty(t, remote.recorded(""))
}

func TestExecute_ConnectFailure(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.dialErr = io.ErrUnexpectedEOF

	e := newTestEngine(t, remote, afero.NewMemMapFs())

	res := e.Execute(context.Background(), remove("theme/a.css"))
	assert.Equal(t, OpFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrSessionClosed)

	var te *TransferError
	assert.ErrorAs(t, res.Err, &te)
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	e := newTestEngine(t, remote, afero.NewMemMapFs())

	assert.True(t, e.Dispatch(ChangeEvent{Type: EventAdd, Path: "theme/a.css"}))
	assert.False(t, e.Dispatch(ChangeEvent{Type: EventChange, Path: "theme/a.css"}))
	assert.True(t, e.Dispatch(ChangeEvent{Type: EventUnlink, Path: "theme/b.css"}))
	assert.True(t, e.Dispatch(ChangeEvent{Type: EventUnlinkDir, Path: "theme/old"}))
	assert.False(t, e.Dispatch(ChangeEvent{Type: "rename", Path: "theme/c.css"}))
	assert.False(t, e.Dispatch(ChangeEvent{Type: EventAdd, Path: "theme/.swp"}))

	assert.Equal(t, []Command{
		put("theme/a.css"),
		remove("theme/b.css"),
		rmdir("theme/old"),
	}, e.Queue().Pending())
}

func TestWatch_FeedsQueueUntilClosed(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	e := newTestEngine(t, remote, afero.NewMemMapFs())

	events := make(chan ChangeEvent, 3)
	events <- ChangeEvent{Type: EventAdd, Path: "theme/a.css"}
	events <- ChangeEvent{Type: EventChange, Path: "theme/a.css"}
	events <- ChangeEvent{Type: EventUnlink, Path: "theme/b.css"}
	close(events)

	require.NoError(t, e.Watch(context.Background(), events))
	assert.Equal(t, []Command{put("theme/a.css"), remove("theme/b.css")}, e.Queue().Pending())
}

func TestWatch_StopsOnCancel(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	e := newTestEngine(t, remote, afero.NewMemMapFs())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, e.Watch(ctx, make(chan ChangeEvent)))
}

func TestWatch_DispatchesBufferedEventsOnCancel(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	e := newTestEngine(t, remote, afero.NewMemMapFs())

	events := make(chan ChangeEvent, 3)
	events <- ChangeEvent{Type: EventAdd, Path: "theme/a.css"}
	events <- ChangeEvent{Type: EventUnlink, Path: "theme/b.css"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, e.Watch(ctx, events))
	assert.Equal(t, []Command{put("theme/a.css"), remove("theme/b.css")}, e.Queue().Pending())
	assert.Empty(t, events)
}

func TestExecute_PutKeepsLocalSpellingAndComposesRemote(t *testing.T) {
	t.Parallel()

	decomposed := "theme/cafe\u0301.css"

	fsys := afero.NewMemMapFs()
	writeLocal(t, fsys, decomposed, "body{}", time.Time{})

	remote := newFakeRemote()
	remote.addDir("/theme")
	e := newTestEngine(t, remote, fsys)

	res := e.Execute(context.Background(), put(decomposed))
	require.NoError(t, res.Err)
	assert.Equal(t, OpDone, res.Status)

	got, ok := remote.file("/theme/caf\u00e9.css")
	require.True(t, ok)
	assert.Equal(t, "body{}", got)

	res = e.Execute(context.Background(), remove(decomposed))
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"DELE /theme/caf\u00e9.css"}, remote.recorded("DELE"))
}

func TestEngine_WatchBatchesEndToEnd(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeLocal(t, fsys, "theme/a.css", "a", time.Time{})
	writeLocal(t, fsys, "theme/b.css", "bb", time.Time{})

	remote := newFakeRemote()
	remote.addFile("/theme/old.css", "x", remoteTime)

	clock := clockwork.NewFakeClock()
	rec := &recordingReporter{}
	e := newTestEngine(t, remote, fsys, withClock(clock), withReporter(rec))

	e.Dispatch(ChangeEvent{Type: EventChange, Path: "theme/a.css"})
	e.Dispatch(ChangeEvent{Type: EventAdd, Path: "theme/b.css"})
	e.Dispatch(ChangeEvent{Type: EventChange, Path: "theme/a.css"})
	e.Dispatch(ChangeEvent{Type: EventUnlink, Path: "theme/old.css"})
	e.Dispatch(ChangeEvent{Type: EventUnlinkDir, Path: "theme/never"})

	clock.Advance(DefaultDebounce)

	require.Eventually(t, func() bool { return len(rec.batchReports()) == 1 }, 5*time.Second, time.Millisecond)

	batch := rec.batchReports()[0]
	require.NoError(t, batch.Err)
	assert.Equal(t, 3, batch.Count(OpDone))
	assert.Equal(t, 1, batch.Count(OpAbsent))
	assert.Equal(t, int64(3), batch.Bytes())

	assert.Equal(t, []string{
		"MKDIR /theme", "STOR /theme/a.css",
		"MKDIR /theme", "STOR /theme/b.css",
		"DELE /theme/old.css",
		"RMD /theme/never",
	}, remote.recorded(""))

	assert.Equal(t, 1, remote.dials)
	assert.Equal(t, 0, remote.closeCount())
}

func TestEngine_ShutdownDrainsAndCloses(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeLocal(t, fsys, "theme/a.css", "a", time.Time{})

	remote := newFakeRemote()
	rec := &recordingReporter{}
	e := newTestEngine(t, remote, fsys, withReporter(rec))

	e.Dispatch(ChangeEvent{Type: EventAdd, Path: "theme/a.css"})

	require.NoError(t, e.Shutdown(context.Background()))

	_, ok := remote.file("/theme/a.css")
	assert.True(t, ok)
	assert.Equal(t, 1, remote.closeCount())
	assert.Len(t, rec.batchReports(), 1)

	assert.False(t, e.Dispatch(ChangeEvent{Type: EventAdd, Path: "theme/a.css"}))
}

func TestEngine_ShutdownReportsDrainFailure(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	e := newTestEngine(t, remote, afero.NewMemMapFs())

	e.Dispatch(ChangeEvent{Type: EventAdd, Path: "theme/missing.css"})

	err := e.Shutdown(context.Background())
	require.Error(t, err)

	var te *TransferError
	assert.True(t, errors.As(err, &te))
}

func TestEngine_CloseKeepsQueueUsable(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	writeLocal(t, fsys, "theme/a.css", "a", time.Time{})

	remote := newFakeRemote()
	e := newTestEngine(t, remote, fsys)

	e.Execute(context.Background(), put("theme/a.css"))
	require.NoError(t, e.Close())
	assert.Equal(t, 1, remote.closeCount())

	res := e.Execute(context.Background(), put("theme/a.css"))
	assert.Equal(t, OpDone, res.Status)
	assert.Equal(t, 2, remote.dials)
}
