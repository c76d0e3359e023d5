// Package engine owns the persistent adb shell session: connecting to a
// device, feeding it queued input commands and noticing when it dies.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"KeyBridge/pkg/input"
	"KeyBridge/pkg/types"
)

// DefaultLivenessWindow is how long a freshly launched shell must survive
// before the session counts as connected.
const DefaultLivenessWindow = time.Second

// PreliminaryConnectTimeout bounds the "adb connect" issued for bare IPs.
const PreliminaryConnectTimeout = 10 * time.Second

type session struct {
	id        string
	target    string
	proc      Process
	queue     *Queue
	createdAt time.Time
	running   atomic.Bool
}

// Options configure a Supervisor. Zero values fall back to defaults.
type Options struct {
	Connector      Connector
	Observer       Observer
	Listener       SessionListener
	LivenessWindow time.Duration
	Logger         zerolog.Logger
}

// Supervisor is the single owner of the session. At most one session exists
// at a time; Connect always tears the previous one down first.
type Supervisor struct {
	launcher  Launcher
	connector Connector
	observer  Observer
	listener  SessionListener
	window    time.Duration
	log       zerolog.Logger

	// deliverMu is held from the start of Connect, Stop or teardown until
	// their observer callbacks have run, so callbacks arrive in the order
	// the state changes happened. It is always taken before mu.
	deliverMu sync.Mutex

	// mu serializes Connect, Stop and teardown. Readers use current directly.
	mu      sync.Mutex
	current atomic.Pointer[session]
}

func NewSupervisor(launcher Launcher, opts Options) *Supervisor {
	s := &Supervisor{
		launcher:  launcher,
		connector: opts.Connector,
		observer:  opts.Observer,
		listener:  opts.Listener,
		window:    opts.LivenessWindow,
		log:       opts.Logger.With().Str("module", "engine").Logger(),
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.window <= 0 {
		s.window = DefaultLivenessWindow
	}
	return s
}

// Connect opens a persistent shell to target, replacing any existing session.
func (s *Supervisor) Connect(ctx context.Context, target string) (err error) {
	target, bare, err := NormalizeTarget(target)
	if err != nil {
		return err
	}

	// adb connect runs outside the locks so Stop is never stuck behind it.
	var prelim string
	if bare && s.connector != nil {
		cctx, cancel := context.WithTimeout(ctx, PreliminaryConnectTimeout)
		out, cerr := s.connector.Connect(cctx, target)
		cancel()
		if cerr != nil {
			s.log.Warn().Err(cerr).Str("target", target).Msg("Preliminary connect failed")
		}
		prelim = out
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	var notes pending
	defer notes.flush()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked(ReasonReplaced, &notes)
	if prelim != "" {
		s.logLine(&notes, prelim)
	}

	proc, err := s.launcher.StartShell(target)
	if err != nil {
		s.logLine(&notes, fmt.Sprintf("[!] Engine error: %v", err))
		s.statusLine(&notes, false, "")
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	timer := time.NewTimer(s.window)
	defer timer.Stop()
	select {
	case <-proc.Done():
		err := classifyExit(proc.Stderr())
		s.log.Warn().Err(err).Str("target", target).Msg("Shell exited during liveness window")
		s.logLine(&notes, fmt.Sprintf("[!] Could not connect to %s: %v", target, err))
		s.statusLine(&notes, false, "")
		return err
	case <-ctx.Done():
		_ = proc.Kill()
		s.statusLine(&notes, false, "")
		return ctx.Err()
	case <-timer.C:
	}

	sess := &session{
		id:        uuid.New().String(),
		target:    target,
		proc:      proc,
		queue:     NewQueue(),
		createdAt: time.Now(),
	}
	sess.running.Store(true)
	s.current.Store(sess)
	go s.deliver(sess)

	s.log.Info().Str("target", target).Str("session", sess.id).Msg("Session started")
	if s.listener != nil {
		l := s.listener
		notes.add(func() { l.SessionStarted(sess.id, sess.target, sess.createdAt) })
	}
	s.logLine(&notes, "[+] Connected to "+target)
	s.statusLine(&notes, true, target)
	return nil
}

// Stop ends the session if there is one and always reports disconnected.
// It is safe to call repeatedly.
func (s *Supervisor) Stop() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	var notes pending
	defer notes.flush()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.teardownLocked(ReasonStopped, &notes) {
		s.statusLine(&notes, false, "")
	}
}

// end tears sess down if it is still the current session. It reports false
// when sess was already replaced or stopped, which keeps end reasons and
// "connection lost" notices to one per session.
func (s *Supervisor) end(sess *session, reason EndReason, msg string) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	var notes pending
	defer notes.flush()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Load() != sess {
		sess.running.Store(false)
		return false
	}
	if msg != "" {
		s.logLine(&notes, msg)
	}
	return s.teardownLocked(reason, &notes)
}

func (s *Supervisor) teardownLocked(reason EndReason, notes *pending) bool {
	sess := s.current.Load()
	if sess == nil {
		return false
	}
	s.current.Store(nil)
	sess.running.Store(false)
	sess.queue.Close()
	if err := sess.proc.Kill(); err != nil {
		s.log.Warn().Err(err).Str("session", sess.id).Msg("Failed to kill shell")
	}

	s.log.Info().
		Str("target", sess.target).
		Str("session", sess.id).
		Str("reason", string(reason)).
		Msg("Session ended")
	if s.listener != nil {
		l := s.listener
		at := time.Now()
		notes.add(func() { l.SessionEnded(sess.id, reason, at) })
	}
	s.statusLine(notes, false, "")
	return true
}

func (s *Supervisor) logLine(notes *pending, msg string) {
	o := s.observer
	notes.add(func() { o.OnLog(msg) })
}

func (s *Supervisor) statusLine(notes *pending, connected bool, label string) {
	o := s.observer
	notes.add(func() { o.OnStatusChanged(connected, label) })
}

// CheckHealth reports whether the shell process exists and has not exited.
func (s *Supervisor) CheckHealth() bool {
	sess := s.current.Load()
	if sess == nil {
		return false
	}
	select {
	case <-sess.proc.Done():
		return false
	default:
		return true
	}
}

// Running reports whether a session is accepting commands.
func (s *Supervisor) Running() bool {
	sess := s.current.Load()
	return sess != nil && sess.running.Load()
}

// Target returns the device of the current session, or "".
func (s *Supervisor) Target() string {
	if sess := s.current.Load(); sess != nil {
		return sess.target
	}
	return ""
}

// Snapshot describes the current session.
func (s *Supervisor) Snapshot() types.SessionStatus {
	sess := s.current.Load()
	if sess == nil {
		return types.SessionStatus{}
	}
	return types.SessionStatus{
		ID:        sess.id,
		Target:    sess.target,
		Running:   sess.running.Load(),
		Healthy:   s.CheckHealth(),
		CreatedAt: sess.createdAt,
		Queued:    sess.queue.Len(),
	}
}

// Enqueue hands cmd to the delivery worker. Commands sent while no session
// is running are dropped and Enqueue reports false.
func (s *Supervisor) Enqueue(cmd string) bool {
	sess := s.current.Load()
	if sess == nil || !sess.running.Load() {
		return false
	}
	return sess.queue.Push(cmd)
}

// SendText types text on the device, pressing ENTER between lines.
func (s *Supervisor) SendText(text string) error {
	if !s.Running() {
		return ErrNotRunning
	}
	for _, cmd := range input.TextCommands(text) {
		if !s.Enqueue(cmd) {
			return ErrNotRunning
		}
	}
	return nil
}

// SendKey sends one Android keyevent.
func (s *Supervisor) SendKey(code int) error {
	if !s.Enqueue(input.KeyEventCommand(code)) {
		return ErrNotRunning
	}
	return nil
}

// LaunchApp starts pkg through its launcher activity.
func (s *Supervisor) LaunchApp(pkg string) error {
	cmd, err := input.LaunchCommand(pkg)
	if err != nil {
		return err
	}
	if !s.Enqueue(cmd) {
		return ErrNotRunning
	}
	s.observer.OnLog("[*] Launching " + pkg + "...")
	return nil
}
