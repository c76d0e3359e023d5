// Package notify mirrors device notifications to the PC by polling
// "dumpsys notification" over adb.
package notify

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultInterval = 5 * time.Second
	// maxSeen bounds the dedupe cache; past it the cache is cleared.
	maxSeen = 50
)

var pkgPattern = regexp.MustCompile(`pkg=([a-zA-Z0-9._]+)`)

// Notification is one ticker line from the device.
type Notification struct {
	Package string `json:"package"`
	Text    string `json:"text"`
}

// Key identifies a notification for deduplication.
func (n Notification) Key() string {
	return n.Package + ":" + n.Text
}

// Runner runs one-shot adb commands.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// Sink receives notifications that have not been seen before.
type Sink interface {
	OnNotification(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification)

func (f SinkFunc) OnNotification(n Notification) { f(n) }

// Parse extracts ticker notifications from dumpsys output. Each tickerText
// line is attributed to the most recent pkg= seen above it.
func Parse(dump string) []Notification {
	var out []Notification
	current := "Unknown"
	for _, line := range strings.Split(dump, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "pkg=") {
			if m := pkgPattern.FindStringSubmatch(line); m != nil {
				current = m[1]
			}
		}
		idx := strings.Index(line, "tickerText=")
		if idx < 0 || strings.Contains(line, "tickerText=null") {
			continue
		}
		text := line[idx+len("tickerText="):]
		if text == "" {
			continue
		}
		out = append(out, Notification{Package: current, Text: text})
	}
	return out
}

// Mirror polls one device at a time and forwards new notifications.
type Mirror struct {
	runner   Runner
	sink     Sink
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	seen   map[string]struct{}
	target string
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMirror(runner Runner, sink Sink, interval time.Duration, log zerolog.Logger) *Mirror {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Mirror{
		runner:   runner,
		sink:     sink,
		interval: interval,
		log:      log.With().Str("module", "notify").Logger(),
		seen:     make(map[string]struct{}),
	}
}

// Start begins polling target, replacing any previous poller.
func (m *Mirror) Start(target string) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	prevCancel, prevDone := m.cancel, m.done
	m.target, m.cancel, m.done = target, cancel, done
	m.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	go func() {
		defer close(done)
		m.loop(ctx, target)
	}()
	m.log.Info().Str("target", target).Msg("Notification mirror started")
}

// Stop ends polling and waits for the poller to exit.
func (m *Mirror) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done, m.target = nil, nil, ""
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.log.Info().Msg("Notification mirror stopped")
}

// Target returns the device being polled, or "".
func (m *Mirror) Target() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

func (m *Mirror) loop(ctx context.Context, target string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("Notification poller panicked")
		}
	}()

	if ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if _, err := m.Poll(ctx, target); err != nil && ctx.Err() == nil {
			m.log.Debug().Err(err).Msg("Notification poll failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches notifications once and delivers the unseen ones. It returns
// how many were delivered.
func (m *Mirror) Poll(ctx context.Context, target string) (int, error) {
	out, err := m.runner.Run(ctx, "-s", target, "shell", "dumpsys", "notification", "--noredact")
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, n := range Parse(out) {
		if !m.markSeen(n.Key()) {
			continue
		}
		delivered++
		if m.sink != nil {
			m.sink.OnNotification(n)
		}
	}
	return delivered, nil
}

// markSeen records key and reports whether it was new.
func (m *Mirror) markSeen(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false
	}
	m.seen[key] = struct{}{}
	if len(m.seen) > maxSeen {
		m.seen = make(map[string]struct{})
	}
	return true
}
