package bridge

import (
	"fmt"
	"io"
	"sync"
)

const maxStderr = 4096

// ShellProcess is a running "adb -s <target> shell" child.
// Writes go straight to its stdin; stdout is discarded.
type ShellProcess struct {
	stdin io.WriteCloser
	kill  func() error
	done  chan struct{}

	mu      sync.Mutex
	stderr  []byte
	exitErr error
}

// StartShell launches the persistent shell for target.
func (r *Runner) StartShell(target string) (*ShellProcess, error) {
	if target == "" {
		return nil, fmt.Errorf("target is required")
	}
	cmd := r.command(nil, "-s", target, "shell")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	p := &ShellProcess{
		stdin: stdin,
		done:  make(chan struct{}),
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = p.stderrWriter()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.path, err)
	}
	p.kill = cmd.Process.Kill

	r.log.Debug().Str("target", target).Int("pid", cmd.Process.Pid).Msg("Shell started")

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

type stderrWriter struct{ p *ShellProcess }

func (w stderrWriter) Write(b []byte) (int, error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	w.p.stderr = append(w.p.stderr, b...)
	if over := len(w.p.stderr) - maxStderr; over > 0 {
		w.p.stderr = w.p.stderr[over:]
	}
	return len(b), nil
}

func (p *ShellProcess) stderrWriter() io.Writer {
	return stderrWriter{p: p}
}

// Write sends raw bytes to the shell's stdin.
func (p *ShellProcess) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

// Done is closed once the process has exited.
func (p *ShellProcess) Done() <-chan struct{} {
	return p.done
}

// Stderr returns the tail of what the process wrote to stderr.
func (p *ShellProcess) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.stderr)
}

// Kill terminates the process. Killing an exited process is not an error.
func (p *ShellProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	_ = p.stdin.Close()
	if err := p.kill(); err != nil {
		select {
		case <-p.done:
			return nil
		default:
			return err
		}
	}
	return nil
}
