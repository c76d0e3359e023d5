package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProc struct {
	target string

	mu       sync.Mutex
	writes   []string
	writeErr error
	stderr   string
	killed   bool

	done chan struct{}
	once sync.Once
}

func newFakeProc(target string) *fakeProc {
	return &fakeProc{target: target, done: make(chan struct{})}
}

func (p *fakeProc) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, string(b))
	return len(b), nil
}

func (p *fakeProc) Done() <-chan struct{} { return p.done }

func (p *fakeProc) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit()
	return nil
}

func (p *fakeProc) exit() { p.once.Do(func() { close(p.done) }) }

func (p *fakeProc) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

func (p *fakeProc) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type fakeLauncher struct {
	mu      sync.Mutex
	procs   []*fakeProc
	exitNow string // when set, launched shells die at once with this stderr
	err     error
}

func (l *fakeLauncher) StartShell(target string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProc(target)
	if l.exitNow != "" {
		p.stderr = l.exitNow
		p.exit()
	}
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) last() *fakeProc {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.procs) == 0 {
		return nil
	}
	return l.procs[len(l.procs)-1]
}

func (l *fakeLauncher) all() []*fakeProc {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeProc(nil), l.procs...)
}

type fakeConnector struct {
	mu    sync.Mutex
	addrs []string
}

func (c *fakeConnector) Connect(_ context.Context, addr string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addrs = append(c.addrs, addr)
	return "connected to " + addr, nil
}

type statusChange struct {
	connected bool
	label     string
}

type recorder struct {
	mu       sync.Mutex
	logs     []string
	statuses []statusChange
	started  []string
	ended    map[string]EndReason
}

func newRecorder() *recorder { return &recorder{ended: map[string]EndReason{}} }

func (r *recorder) OnLog(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

func (r *recorder) OnStatusChanged(connected bool, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, statusChange{connected, label})
}

func (r *recorder) SessionStarted(id, target string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *recorder) SessionEnded(id string, reason EndReason, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended[id] = reason
}

func (r *recorder) count(msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.logs {
		if l == msg {
			n++
		}
	}
	return n
}

func (r *recorder) lastStatus() statusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return statusChange{}
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *recorder) endReason(id string) (EndReason, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reason, ok := r.ended[id]
	return reason, ok
}

func newTestSupervisor(l *fakeLauncher, rec *recorder, conn Connector) *Supervisor {
	return NewSupervisor(l, Options{
		Connector:      conn,
		Observer:       rec,
		Listener:       rec,
		LivenessWindow: 10 * time.Millisecond,
		Logger:         zerolog.Nop(),
	})
}

func TestConnect_Success(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)

	require.NoError(t, s.Connect(context.Background(), "emulator-5554"))

	assert.True(t, s.Running())
	assert.True(t, s.CheckHealth())
	assert.Equal(t, "emulator-5554", s.Target())
	assert.Equal(t, statusChange{true, "emulator-5554"}, rec.lastStatus())

	snap := s.Snapshot()
	assert.NotEmpty(t, snap.ID)
	assert.True(t, snap.Healthy)
	assert.Equal(t, []string{snap.ID}, rec.started)
}

func TestConnect_InvalidTargetStartsNothing(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)

	for _, target := range []string{"", "abc;reboot", "a b", "$(id)"} {
		err := s.Connect(context.Background(), target)
		assert.ErrorIs(t, err, ErrInvalidTarget, target)
	}
	assert.Empty(t, l.all())
	assert.False(t, s.Running())
}

func TestConnect_BareIPv4IsNormalized(t *testing.T) {
	l, rec, conn := &fakeLauncher{}, newRecorder(), &fakeConnector{}
	s := newTestSupervisor(l, rec, conn)

	require.NoError(t, s.Connect(context.Background(), "192.168.1.42"))

	assert.Equal(t, []string{"192.168.1.42:5555"}, conn.addrs)
	assert.Equal(t, "192.168.1.42:5555", l.last().target)
	assert.Equal(t, "192.168.1.42:5555", s.Target())
}

func TestConnect_IPWithPortSkipsPreliminaryConnect(t *testing.T) {
	l, rec, conn := &fakeLauncher{}, newRecorder(), &fakeConnector{}
	s := newTestSupervisor(l, rec, conn)

	require.NoError(t, s.Connect(context.Background(), "192.168.1.42:5555"))
	assert.Empty(t, conn.addrs)
}

func TestConnect_EarlyExitIsClassified(t *testing.T) {
	cases := []struct {
		stderr string
		want   error
	}{
		{"error: device offline", ErrDeviceOffline},
		{"error: device 'abc' not found", ErrDeviceNotFound},
		{"error: device unauthorized.\nThis adb server's $ADB_VENDOR_KEYS is not set", ErrUnauthorized},
		{"failed to connect to '10.0.0.2:5555': Connection refused", ErrConnectionRefused},
		{"something odd", ErrShellExited},
	}
	for _, tc := range cases {
		t.Run(tc.stderr, func(t *testing.T) {
			l, rec := &fakeLauncher{exitNow: tc.stderr}, newRecorder()
			s := newTestSupervisor(l, rec, nil)

			err := s.Connect(context.Background(), "abc")
			require.ErrorIs(t, err, tc.want)
			assert.False(t, s.Running())
			assert.Equal(t, statusChange{false, ""}, rec.lastStatus())
			assert.Empty(t, rec.started)
		})
	}
}

func TestConnect_LaunchError(t *testing.T) {
	l, rec := &fakeLauncher{err: errors.New("exec: \"adb\": executable file not found")}, newRecorder()
	s := newTestSupervisor(l, rec, nil)

	err := s.Connect(context.Background(), "abc")
	require.ErrorIs(t, err, ErrLaunchFailed)
	assert.False(t, s.Running())
}

func TestConnect_ReplacesPreviousSession(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)

	require.NoError(t, s.Connect(context.Background(), "first"))
	firstID := s.Snapshot().ID
	require.NoError(t, s.Connect(context.Background(), "second"))

	procs := l.all()
	require.Len(t, procs, 2)
	assert.True(t, procs[0].Killed())
	assert.False(t, procs[1].Killed())
	assert.Equal(t, "second", s.Target())

	reason, ok := rec.endReason(firstID)
	require.True(t, ok)
	assert.Equal(t, ReasonReplaced, reason)
}

func TestConnect_ConcurrentCallsLeaveOneSession(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Connect(context.Background(), fmt.Sprintf("dev-%d", i))
		}(i)
	}
	wg.Wait()

	alive := 0
	for _, p := range l.all() {
		if !p.Killed() {
			alive++
			assert.Equal(t, s.Target(), p.target)
		}
	}
	assert.Equal(t, 1, alive)
}

func TestStop_Idempotent(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)

	s.Stop()
	require.NoError(t, s.Connect(context.Background(), "abc"))
	id := s.Snapshot().ID
	s.Stop()
	s.Stop()

	assert.False(t, s.Running())
	assert.False(t, s.CheckHealth())
	assert.Equal(t, "", s.Target())
	assert.True(t, l.last().Killed())
	reason, _ := rec.endReason(id)
	assert.Equal(t, ReasonStopped, reason)
	assert.Equal(t, statusChange{false, ""}, rec.lastStatus())
}

func TestEnqueue_DroppedWhenNotRunning(t *testing.T) {
	s := newTestSupervisor(&fakeLauncher{}, newRecorder(), nil)

	assert.False(t, s.Enqueue("input keyevent 66"))
	assert.ErrorIs(t, s.SendText("hello"), ErrNotRunning)
	assert.ErrorIs(t, s.SendKey(66), ErrNotRunning)
	assert.ErrorIs(t, s.LaunchApp("com.android.chrome"), ErrNotRunning)
}

func TestSendText_WritesInOrder(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)
	require.NoError(t, s.Connect(context.Background(), "abc"))

	require.NoError(t, s.SendText("hi there\nbye"))
	require.NoError(t, s.SendKey(4))

	want := []string{
		"input text hi%sthere\n",
		"input keyevent 66\n",
		"input text bye\n",
		"input keyevent 4\n",
	}
	require.Eventually(t, func() bool { return len(l.last().Writes()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, l.last().Writes())
}

func TestLaunchApp_RejectsBadPackage(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)
	require.NoError(t, s.Connect(context.Background(), "abc"))

	assert.Error(t, s.LaunchApp("com.evil;reboot"))
	require.NoError(t, s.LaunchApp("com.android.chrome"))
	require.Eventually(t, func() bool { return len(l.last().Writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "monkey -p com.android.chrome -c android.intent.category.LAUNCHER 1\n", l.last().Writes()[0])
}

func TestEnqueue_FIFOAcrossProducers(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)
	require.NoError(t, s.Connect(context.Background(), "abc"))

	const producers, perProducer = 6, 200
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.True(t, s.Enqueue(fmt.Sprintf("%d %d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	proc := l.last()
	require.Eventually(t, func() bool { return len(proc.Writes()) == producers*perProducer }, 2*time.Second, 5*time.Millisecond)

	next := make([]int, producers)
	for _, w := range proc.Writes() {
		var p, i int
		_, err := fmt.Sscanf(w, "%d %d\n", &p, &i)
		require.NoError(t, err)
		require.Equal(t, next[p], i, "producer %d out of order", p)
		next[p]++
	}
}

func TestWorker_WriteFailureEndsSession(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)
	require.NoError(t, s.Connect(context.Background(), "abc"))
	id := s.Snapshot().ID

	proc := l.last()
	proc.mu.Lock()
	proc.writeErr = errors.New("broken pipe")
	proc.mu.Unlock()

	require.True(t, s.Enqueue("input keyevent 66"))
	require.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)

	reason, ok := rec.endReason(id)
	require.True(t, ok)
	assert.Equal(t, ReasonWriteFailed, reason)
	assert.False(t, s.Enqueue("input keyevent 66"))
	assert.Equal(t, statusChange{false, ""}, rec.lastStatus())
}

func TestMonitor_LostFiresOnce(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)
	require.NoError(t, s.Connect(context.Background(), "abc"))
	id := s.Snapshot().ID
	m := NewMonitor(s, time.Hour)

	assert.False(t, m.Check())
	l.last().exit()

	assert.True(t, m.Check())
	assert.False(t, m.Check())
	assert.False(t, m.Check())

	assert.Equal(t, 1, rec.count(LostMessage))
	assert.False(t, s.Running())
	reason, _ := rec.endReason(id)
	assert.Equal(t, ReasonLost, reason)
}

func TestMonitor_RunDetectsExit(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)
	require.NoError(t, s.Connect(context.Background(), "abc"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewMonitor(s, 5*time.Millisecond).Run(ctx)

	l.last().exit()
	require.Eventually(t, func() bool { return rec.count(LostMessage) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Running())
}

func TestMonitor_IgnoresStoppedSession(t *testing.T) {
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, nil)
	require.NoError(t, s.Connect(context.Background(), "abc"))
	s.Stop()

	assert.False(t, NewMonitor(s, time.Hour).Check())
	assert.Equal(t, 0, rec.count(LostMessage))
}

func TestObserverMayCallBack(t *testing.T) {
	l := &fakeLauncher{}
	var s *Supervisor
	obs := &callbackObserver{fn: func() { _ = s.Running(); _ = s.Snapshot() }}
	s = NewSupervisor(l, Options{Observer: obs, LivenessWindow: time.Millisecond, Logger: zerolog.Nop()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Connect(context.Background(), "abc")
		s.Stop()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("observer callback deadlocked the supervisor")
	}
}

type callbackObserver struct{ fn func() }

func (o *callbackObserver) OnLog(string)                 { o.fn() }
func (o *callbackObserver) OnStatusChanged(bool, string) { o.fn() }

// holdingObserver blocks inside the first "disconnected" callback until
// release is closed.
type holdingObserver struct {
	*recorder
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (o *holdingObserver) OnStatusChanged(connected bool, label string) {
	if !connected {
		o.once.Do(func() {
			close(o.entered)
			<-o.release
		})
	}
	o.recorder.OnStatusChanged(connected, label)
}

func TestStatusCallbacksFollowStateOrder(t *testing.T) {
	obs := &holdingObserver{recorder: newRecorder(), entered: make(chan struct{}), release: make(chan struct{})}
	s := NewSupervisor(&fakeLauncher{}, Options{Observer: obs, LivenessWindow: 10 * time.Millisecond, Logger: zerolog.Nop()})

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.Stop()
	}()
	<-obs.entered

	connected := make(chan error, 1)
	go func() { connected <- s.Connect(context.Background(), "abc") }()

	time.Sleep(50 * time.Millisecond)
	close(obs.release)
	<-stopped
	require.NoError(t, <-connected)

	assert.True(t, s.Running())
	assert.Equal(t, statusChange{true, "abc"}, obs.lastStatus())
}

type stallingConnector struct {
	started     chan struct{}
	release     chan struct{}
	hadDeadline chan bool
}

func (c *stallingConnector) Connect(ctx context.Context, addr string) (string, error) {
	_, ok := ctx.Deadline()
	c.hadDeadline <- ok
	close(c.started)
	select {
	case <-c.release:
		return "connected to " + addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestStop_NotBlockedByPreliminaryConnect(t *testing.T) {
	conn := &stallingConnector{started: make(chan struct{}), release: make(chan struct{}), hadDeadline: make(chan bool, 1)}
	l, rec := &fakeLauncher{}, newRecorder()
	s := newTestSupervisor(l, rec, conn)

	connected := make(chan error, 1)
	go func() { connected <- s.Connect(context.Background(), "192.168.1.42") }()
	<-conn.started
	assert.True(t, <-conn.hadDeadline, "preliminary connect needs a deadline")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.Stop()
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop waited for adb connect")
	}

	close(conn.release)
	require.NoError(t, <-connected)
	assert.Equal(t, "192.168.1.42:5555", s.Target())
}
