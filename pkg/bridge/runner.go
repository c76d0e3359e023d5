// Package bridge runs the external adb executable: one-shot commands with
// captured output, device enumeration and the long-lived "adb shell" process
// the engine types into.
package bridge

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds one-shot commands whose context carries no deadline.
const DefaultTimeout = 30 * time.Second

// DefaultPort is the TCP port adb listens on after "adb tcpip".
const DefaultPort = 5555

var proxyVars = []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "all_proxy", "no_proxy"}

// Runner invokes adb at a fixed path.
type Runner struct {
	path string
	log  zerolog.Logger
}

// NewRunner creates a Runner. An empty path is resolved with ResolvePath.
func NewRunner(path string, log zerolog.Logger) *Runner {
	if path == "" {
		path = ResolvePath("")
	}
	return &Runner{path: path, log: log.With().Str("module", "bridge").Logger()}
}

// ResolvePath prefers the configured path, then adb on PATH, then plain "adb".
func ResolvePath(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
	}
	if path, err := exec.LookPath("adb"); err == nil {
		return path
	}
	return "adb"
}

// Path returns the adb executable in use.
func (r *Runner) Path() string {
	return r.path
}

// command creates an exec.Cmd with a clean environment and no console window.
func (r *Runner) command(ctx context.Context, args ...string) *exec.Cmd {
	var cmd *exec.Cmd
	if ctx != nil {
		cmd = exec.CommandContext(ctx, r.path, args...)
	} else {
		cmd = exec.Command(r.path, args...)
	}
	cmd.Env = cleanEnv(os.Environ())
	hideWindow(cmd)
	return cmd
}

func cleanEnv(env []string) []string {
	newEnv := make([]string, 0, len(env))
	for _, e := range env {
		isProxy := false
		for _, v := range proxyVars {
			if strings.HasPrefix(e, v+"=") {
				isProxy = true
				break
			}
		}
		if !isProxy {
			newEnv = append(newEnv, e)
		}
	}
	return newEnv
}

// Run executes adb with args and returns its trimmed combined output.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	start := time.Now()
	output, err := r.command(ctx, args...).CombinedOutput()
	res := strings.TrimSpace(string(output))
	r.log.Debug().
		Strs("args", args).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("adb")
	if err != nil {
		return res, fmt.Errorf("adb %s failed: %w, output: %s", strings.Join(args, " "), err, res)
	}
	return res, nil
}

// Shell runs a one-shot shell command on target. An empty target lets adb pick the only device.
func (r *Runner) Shell(ctx context.Context, target string, shellCmd ...string) (string, error) {
	return r.Run(ctx, withTarget(target, append([]string{"shell"}, shellCmd...)...)...)
}

// Connect runs "adb connect address".
func (r *Runner) Connect(ctx context.Context, address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("address is required")
	}
	return r.Run(ctx, "connect", address)
}

// Disconnect runs "adb disconnect address". A device that is already gone is not an error.
func (r *Runner) Disconnect(ctx context.Context, address string) (string, error) {
	out, err := r.Run(ctx, "disconnect", address)
	if err != nil && strings.Contains(out, "no such device") {
		return out, nil
	}
	return out, err
}

// Pair runs "adb pair address code" for Android 11+ wireless debugging.
func (r *Runner) Pair(ctx context.Context, address, code string) (string, error) {
	if address == "" || code == "" {
		return "", fmt.Errorf("address and pairing code are required")
	}
	return r.Run(ctx, "pair", address, code)
}

// TCPIP restarts the adb daemon on the device in TCP mode.
func (r *Runner) TCPIP(ctx context.Context, target string, port int) (string, error) {
	return r.Run(ctx, withTarget(target, "tcpip", fmt.Sprint(port))...)
}

// Push copies a local file to remote on the device.
func (r *Runner) Push(ctx context.Context, target, local, remote string) (string, error) {
	if _, err := os.Stat(local); err != nil {
		return "", fmt.Errorf("local file: %w", err)
	}
	return r.Run(ctx, withTarget(target, "push", local, remote)...)
}

// DownloadsPath returns the remote path a file is pushed to by PushToDownloads.
func DownloadsPath(local string) string {
	return "/sdcard/Download/" + filepath.Base(local)
}

// PushToDownloads pushes local into the device's Download folder.
func (r *Runner) PushToDownloads(ctx context.Context, target, local string) (string, error) {
	remote := DownloadsPath(local)
	if _, err := r.Push(ctx, target, local, remote); err != nil {
		return "", err
	}
	return remote, nil
}

func withTarget(target string, args ...string) []string {
	if strings.TrimSpace(target) == "" {
		return args
	}
	return append([]string{"-s", target}, args...)
}
