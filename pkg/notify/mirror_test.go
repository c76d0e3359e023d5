package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDump = `Current Notification Manager state:
  Notification List:
    NotificationRecord(0x0a1b2c3d: pkg=com.whatsapp user=UserHandle{0} id=1 tag=null importance=4 key=0|com.whatsapp|1|null|10123: Notification(channel=msg))
      uid=10123 userId=0
      tickerText=Message from Mom
    NotificationRecord(0x0e0f1011: pkg=com.android.systemui user=UserHandle{0} id=2)
      tickerText=null
    NotificationRecord(0x12131415: pkg=com.google.android.gm user=UserHandle{0} id=3)
      tickerText=New mail: Invoice #42
`

type stubRunner struct {
	mu    sync.Mutex
	out   string
	err   error
	calls []string
}

func (r *stubRunner) Run(_ context.Context, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strings.Join(args, " "))
	return r.out, r.err
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type collector struct {
	mu  sync.Mutex
	got []Notification
}

func (c *collector) OnNotification(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
}

func (c *collector) all() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.got...)
}

func TestParse(t *testing.T) {
	got := Parse(sampleDump)
	assert.Equal(t, []Notification{
		{Package: "com.whatsapp", Text: "Message from Mom"},
		{Package: "com.google.android.gm", Text: "New mail: Invoice #42"},
	}, got)
}

func TestParse_UnknownPackage(t *testing.T) {
	got := Parse("tickerText=orphan")
	require.Len(t, got, 1)
	assert.Equal(t, "Unknown", got[0].Package)
}

func TestPoll_Dedupes(t *testing.T) {
	r, sink := &stubRunner{out: sampleDump}, &collector{}
	m := NewMirror(r, sink, time.Hour, zerolog.Nop())

	n, err := m.Poll(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = m.Poll(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Len(t, sink.all(), 2)
	assert.Equal(t, []string{"-s abc shell dumpsys notification --noredact"}, r.calls[:1])
}

func TestMarkSeen_ClearsPastLimit(t *testing.T) {
	m := NewMirror(&stubRunner{}, nil, time.Hour, zerolog.Nop())

	for i := 0; i <= maxSeen; i++ {
		require.True(t, m.markSeen(fmt.Sprintf("pkg:%d", i)))
	}
	// The 51st entry tripped the clear, so early keys are new again.
	assert.True(t, m.markSeen("pkg:0"))
	assert.False(t, m.markSeen("pkg:0"))
}

func TestPoll_ErrorDeliversNothing(t *testing.T) {
	r, sink := &stubRunner{err: fmt.Errorf("device offline")}, &collector{}
	m := NewMirror(r, sink, time.Hour, zerolog.Nop())

	_, err := m.Poll(context.Background(), "abc")
	assert.Error(t, err)
	assert.Empty(t, sink.all())
}

func TestStartStop(t *testing.T) {
	r, sink := &stubRunner{out: sampleDump}, &collector{}
	m := NewMirror(r, sink, 5*time.Millisecond, zerolog.Nop())

	m.Start("abc")
	assert.Equal(t, "abc", m.Target())
	require.Eventually(t, func() bool { return r.callCount() >= 3 }, time.Second, 5*time.Millisecond)

	m.Stop()
	calls := r.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, r.callCount())
	assert.Equal(t, "", m.Target())
	assert.Len(t, sink.all(), 2)

	m.Stop()
}

func TestConcurrentStartsLeaveOnePoller(t *testing.T) {
	r := &stubRunner{out: sampleDump}
	m := NewMirror(r, &collector{}, 5*time.Millisecond, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Start(fmt.Sprintf("dev-%d", i))
		}(i)
	}
	wg.Wait()
	require.NotEmpty(t, m.Target())

	m.Stop()
	calls := r.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, r.callCount(), "a replaced poller kept running")
}
