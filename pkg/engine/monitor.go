package engine

import (
	"context"
	"time"
)

// DefaultHealthInterval is how often the monitor polls the shell.
const DefaultHealthInterval = 2 * time.Second

// LostMessage is logged once when a running session's shell disappears.
const LostMessage = "connection lost"

// Monitor watches the supervisor and tears the session down when its shell
// dies behind its back.
type Monitor struct {
	sup      *Supervisor
	interval time.Duration
}

func NewMonitor(sup *Supervisor, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &Monitor{sup: sup, interval: interval}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check runs one poll. It reports true when it ended a session.
func (m *Monitor) Check() bool {
	sess := m.sup.current.Load()
	if sess == nil || !sess.running.Load() {
		return false
	}
	if m.sup.CheckHealth() {
		return false
	}
	m.sup.log.Warn().Str("target", sess.target).Msg("Shell died, session lost")
	return m.sup.end(sess, ReasonLost, LostMessage)
}
