package engine

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidTarget = errors.New("invalid target")
	ErrNotRunning    = errors.New("session not running")
	ErrLaunchFailed  = errors.New("failed to start shell")

	ErrConnectionRefused = errors.New("connection refused")
	ErrDeviceOffline     = errors.New("device offline")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrUnauthorized      = errors.New("device unauthorized")
	ErrShellExited       = errors.New("shell exited")
)

// EndReason says why a session ended.
type EndReason string

const (
	ReasonStopped     EndReason = "stopped"
	ReasonLost        EndReason = "lost"
	ReasonWriteFailed EndReason = "write_failed"
	ReasonReplaced    EndReason = "replaced"
)

// Observer receives user-visible log lines and connection status changes.
// Callbacks run after the supervisor releases its session lock, one state
// change at a time and in order. An observer may read supervisor state and
// send input from a callback, but must not call Connect or Stop.
type Observer interface {
	OnLog(msg string)
	OnStatusChanged(connected bool, deviceLabel string)
}

// SessionListener is told when sessions start and end.
type SessionListener interface {
	SessionStarted(id, target string, at time.Time)
	SessionEnded(id string, reason EndReason, at time.Time)
}

// Process is a running persistent shell.
type Process interface {
	Write(b []byte) (int, error)
	Done() <-chan struct{}
	Stderr() string
	Kill() error
}

// Launcher starts the persistent shell for a target.
type Launcher interface {
	StartShell(target string) (Process, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(target string) (Process, error)

func (f LauncherFunc) StartShell(target string) (Process, error) { return f(target) }

// Connector issues a one-shot "adb connect".
type Connector interface {
	Connect(ctx context.Context, address string) (string, error)
}

type nopObserver struct{}

func (nopObserver) OnLog(string)                 {}
func (nopObserver) OnStatusChanged(bool, string) {}

// pending collects observer callbacks to run after the lock is released.
type pending []func()

func (p *pending) add(fn func()) { *p = append(*p, fn) }

func (p *pending) flush() {
	for _, fn := range *p {
		fn()
	}
	*p = nil
}
