package manager

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/recollsup/internal/config"
	"github.com/loykin/recollsup/internal/history"
	"github.com/loykin/recollsup/internal/notify"
	"github.com/loykin/recollsup/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSystem struct {
	mu         sync.Mutex
	nextPID    int
	alive      map[int]bool
	listeners  map[int]*process.Listeners
	specs      []process.Spec
	spawnTimes []time.Time
	spawnErr   error
	ignoreTerm bool
	ignoreKill bool
	// live processes observed at spawn time
	overlap int
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{nextPID: 1000, alive: map[int]bool{}, listeners: map[int]*process.Listeners{}}
}

func (f *fakeSystem) Spawn(spec process.Spec, l *process.Listeners) (process.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	f.spawnTimes = append(f.spawnTimes, time.Now())
	if f.spawnErr != nil {
		return process.Identity{}, &process.SpawnError{Executable: spec.Executable, Err: f.spawnErr}
	}
	for _, a := range f.alive {
		if a {
			f.overlap++
		}
	}
	f.nextPID++
	f.alive[f.nextPID] = true
	f.listeners[f.nextPID] = l
	return process.Identity{PID: f.nextPID, StartedAt: time.Now()}, nil
}

func (f *fakeSystem) IsAlive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeSystem) SendSignal(pid int, sig process.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive[pid] {
		return process.ErrProcessGone
	}
	switch sig {
	case process.SignalTerminate:
		if !f.ignoreTerm {
			f.alive[pid] = false
		}
	case process.SignalKill:
		if !f.ignoreKill {
			f.alive[pid] = false
		}
	}
	return nil
}

// crash kills pid and fires its exit listener unless it was detached.
func (f *fakeSystem) crash(pid, code int) {
	f.mu.Lock()
	f.alive[pid] = false
	l := f.listeners[pid]
	f.mu.Unlock()
	if l != nil && !l.Detached() && l.OnExit != nil {
		l.OnExit(process.ExitInfo{PID: pid, Code: code, At: time.Now()})
	}
}

func (f *fakeSystem) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.specs)
}

func (f *fakeSystem) lastSpec() process.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[len(f.specs)-1]
}

type staticProvider struct {
	snap config.Snapshot
}

func (p staticProvider) Snapshot() (config.Snapshot, error) { return p.snap.Clone(), nil }

func testSnapshot() config.Snapshot {
	return config.Snapshot{
		HostKey:     "default",
		RecollIndex: "recollindex",
		ConfDir:     "/tmp/recoll-conf",
		Supervisor: config.SupervisorConfig{
			GraceTimeout:  30 * time.Millisecond,
			KillTimeout:   30 * time.Millisecond,
			PollInterval:  5 * time.Millisecond,
			MaxAttempts:   3,
			Cooldown:      20 * time.Millisecond,
			SuccessWindow: 10 * time.Second,
			LockFile:      "-",
		},
	}
}

func newTestSupervisor(t *testing.T, snap config.Snapshot, sys *fakeSystem, opts ...Option) (*Supervisor, *notify.Latch) {
	t.Helper()
	latch := &notify.Latch{}
	opts = append([]Option{WithSystem(sys), WithBaseEnv([]string{"PATH=/usr/bin"})}, opts...)
	s := New(staticProvider{snap: snap}, latch, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s, latch
}

func TestStartAndStop(t *testing.T) {
	sys := newFakeSystem()
	s, _ := newTestSupervisor(t, testSnapshot(), sys)

	require.NoError(t, <-s.Start([]string{"-k"}))
	assert.True(t, s.IsRunning())
	st := s.Status()
	assert.True(t, st.Running)
	assert.NotZero(t, st.PID)
	assert.Equal(t, []string{"-k"}, st.Extra)

	spec := sys.lastSpec()
	assert.Equal(t, "recollindex", spec.Executable)
	assert.Equal(t, []string{"-m", "-D", "-x", "-w", "0", "-c", "/tmp/recoll-conf", "-k"}, spec.Args)
	assert.Contains(t, spec.Env, "RECOLL_CONFDIR=/tmp/recoll-conf")

	require.NoError(t, <-s.Stop())
	assert.False(t, s.IsRunning())
	assert.Zero(t, s.PID())
	assert.Equal(t, 1, sys.spawnCount())
}

func TestDaemonArgsWithoutConfDir(t *testing.T) {
	assert.Equal(t, []string{"-m", "-D", "-x", "-w", "0", "-z"}, DaemonArgs("", []string{"-z"}))
}

func TestRestartsNeverOverlap(t *testing.T) {
	sys := newFakeSystem()
	sys.ignoreTerm = true
	s, _ := newTestSupervisor(t, testSnapshot(), sys)

	replies := []<-chan error{s.Start(nil), s.Restart(), s.Reindex(), s.Restart()}
	for _, r := range replies {
		require.NoError(t, <-r)
	}
	assert.Equal(t, 4, sys.spawnCount())
	assert.Zero(t, sys.overlap, "a daemon was spawned while another was alive")
	assert.Equal(t, []string{"-m", "-D", "-x", "-w", "0", "-c", "/tmp/recoll-conf", "-z"}, sys.lastSpec().Args)
}

func TestBackoffExhaustionNotifiesOnce(t *testing.T) {
	sys := newFakeSystem()
	sys.spawnErr = errors.New("no such file")
	hist := history.NewMemory(64)
	s, latch := newTestSupervisor(t, testSnapshot(), sys, WithHistory(hist))

	err := <-s.Start(nil)
	var se *process.SpawnError
	require.ErrorAs(t, err, &se)

	require.Eventually(t, func() bool { return latch.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 4, sys.spawnCount())
	assert.Equal(t, 1, latch.Count())
	assert.Equal(t, 3, latch.Last().Attempts)
	assert.Contains(t, latch.Last().LastError, "no such file")

	sys.mu.Lock()
	times := append([]time.Time(nil), sys.spawnTimes...)
	sys.mu.Unlock()
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), 20*time.Millisecond)
	}

	st := s.Status()
	assert.True(t, st.GaveUp)
	assert.False(t, st.Running)

	var gaveUp int
	for _, e := range hist.Recent(0) {
		if e.Type == history.EventGaveUp {
			gaveUp++
		}
	}
	assert.Equal(t, 1, gaveUp)
}

func TestManualStartResetsGaveUp(t *testing.T) {
	sys := newFakeSystem()
	sys.spawnErr = errors.New("broken")
	snap := testSnapshot()
	snap.Supervisor.MaxAttempts = 1
	s, latch := newTestSupervisor(t, snap, sys)

	<-s.Start(nil)
	require.Eventually(t, func() bool { return latch.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Status().GaveUp)

	sys.mu.Lock()
	sys.spawnErr = nil
	sys.mu.Unlock()
	require.NoError(t, <-s.Start(nil))
	st := s.Status()
	assert.False(t, st.GaveUp)
	assert.Zero(t, st.Attempts)
	assert.True(t, st.Running)
}

func TestUnexpectedExitRetriesAndStabilityResets(t *testing.T) {
	sys := newFakeSystem()
	snap := testSnapshot()
	snap.Supervisor.SuccessWindow = 60 * time.Millisecond
	s, _ := newTestSupervisor(t, snap, sys)

	require.NoError(t, <-s.Start(nil))
	first := s.PID()
	sys.crash(first, 1)

	require.Eventually(t, func() bool { return sys.spawnCount() == 2 && s.IsRunning() }, 2*time.Second, 5*time.Millisecond)
	st := s.Status()
	assert.Equal(t, 1, st.Attempts)
	assert.Contains(t, st.LastError, "exited with code 1")

	require.Eventually(t, func() bool { return s.Status().Attempts == 0 }, 2*time.Second, 5*time.Millisecond)

	sys.crash(s.PID(), 2)
	require.Eventually(t, func() bool { return sys.spawnCount() == 3 && s.IsRunning() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.Status().Attempts)
}

func TestStopCancelsPendingRetry(t *testing.T) {
	sys := newFakeSystem()
	snap := testSnapshot()
	snap.Supervisor.Cooldown = 80 * time.Millisecond
	s, _ := newTestSupervisor(t, snap, sys)

	require.NoError(t, <-s.Start(nil))
	sys.crash(s.PID(), 1)
	require.Eventually(t, func() bool { return s.Status().Attempts == 1 }, time.Second, 2*time.Millisecond)
	require.NoError(t, <-s.Stop())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, sys.spawnCount())
	assert.False(t, s.IsRunning())
}

func TestTerminationGaveUpBlocksSpawn(t *testing.T) {
	sys := newFakeSystem()
	sys.ignoreTerm = true
	sys.ignoreKill = true
	s, _ := newTestSupervisor(t, testSnapshot(), sys)

	require.NoError(t, <-s.Start(nil))
	pid := s.PID()

	err := <-s.Start(nil)
	require.ErrorIs(t, err, ErrTerminationGaveUp)
	assert.Equal(t, 1, sys.spawnCount())
	assert.Equal(t, pid, s.PID())
	assert.True(t, s.IsRunning())

	sys.mu.Lock()
	sys.ignoreKill = false
	sys.mu.Unlock()
	require.NoError(t, <-s.Stop())
	assert.False(t, s.IsRunning())
}

func TestDetachedExitDoesNotRetry(t *testing.T) {
	sys := newFakeSystem()
	s, _ := newTestSupervisor(t, testSnapshot(), sys)

	require.NoError(t, <-s.Start(nil))
	old := s.PID()
	require.NoError(t, <-s.Restart())
	sys.crash(old, 9)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 2, sys.spawnCount())
	assert.Zero(t, s.Status().Attempts)
}

func TestIndexLockExcludesSecondSupervisor(t *testing.T) {
	lockFile := filepath.Join(t.TempDir(), "conf", "recollsup.lock")
	snap := testSnapshot()
	snap.Supervisor.LockFile = lockFile
	snap.Supervisor.Cooldown = time.Hour

	a, _ := newTestSupervisor(t, snap, newFakeSystem())
	b, _ := newTestSupervisor(t, snap, newFakeSystem())

	require.NoError(t, <-a.Start(nil))
	err := <-b.Start(nil)
	require.ErrorIs(t, err, ErrLocked)
	assert.False(t, b.IsRunning())

	require.NoError(t, <-a.Stop())
	require.NoError(t, <-b.Start(nil))
	assert.True(t, b.IsRunning())
}

func TestGiveUpReleasesLockAndLogsOnce(t *testing.T) {
	lockFile := filepath.Join(t.TempDir(), "conf", "recollsup.lock")
	snap := testSnapshot()
	snap.Supervisor.LockFile = lockFile
	snap.Supervisor.MaxAttempts = 0

	var buf syncBuffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	latch := &notify.Latch{}
	sys := newFakeSystem()
	s := New(staticProvider{snap: snap}, notify.Multi{latch, notify.Log{Logger: log}}, WithSystem(sys), WithLogger(log))
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	require.NoError(t, <-s.Start(nil))
	_, err := acquireIndexLock(lockFile)
	require.ErrorIs(t, err, ErrLocked)

	sys.crash(s.PID(), 1)
	require.Eventually(t, func() bool { return latch.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		l, err := acquireIndexLock(lockFile)
		if err != nil {
			return false
		}
		_ = l.release()
		return true
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, strings.Count(buf.String(), "level=ERROR"), buf.String())

	// a manual start takes the lock again
	require.NoError(t, <-s.Start(nil))
	_, err = acquireIndexLock(lockFile)
	require.ErrorIs(t, err, ErrLocked)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

func TestCloseRejectsLaterRequests(t *testing.T) {
	sys := newFakeSystem()
	s := New(staticProvider{snap: testSnapshot()}, nil, WithSystem(sys))
	require.NoError(t, <-s.Start(nil))
	require.NoError(t, s.Close(context.Background()))
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, <-s.Start(nil), ErrQueueClosed)
	assert.NoError(t, s.Close(context.Background()))
}
