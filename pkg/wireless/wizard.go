// Package wireless moves a USB-attached device onto Wi-Fi debugging: the
// one-shot setup wizard, Android 11+ pairing and the QR connect-back server.
package wireless

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"KeyBridge/pkg/types"
)

// State is a step of the setup wizard.
type State string

const (
	StateIdle          State = "idle"
	StateDiscoveringIP State = "discovering_ip"
	StateEnablingTCP   State = "enabling_tcp"
	StateWaiting       State = "waiting"
	StateConnecting    State = "connecting"
	StateStabilizing   State = "stabilizing"
	StateConnected     State = "connected"
	StateFailed        State = "failed"
)

const (
	DefaultPort       = 5555
	DefaultSettle     = 5 * time.Second
	DefaultAttempts   = 5
	DefaultRetryDelay = time.Second
)

var (
	ErrWizardBusy   = errors.New("wireless setup already in progress")
	ErrEmptyPairing = errors.New("pairing address and code are required")
	ErrNoIP         = errors.New("could not determine device IP")
	ErrConnect      = errors.New("adb connect failed")
	ErrUnstable     = errors.New("device did not answer over Wi-Fi")
	ErrPairFailed   = errors.New("pairing failed")
)

var srcPattern = regexp.MustCompile(`src (\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)

// usbTether is the subnet Android's RNDIS USB tethering hands out.
var usbTether = &net.IPNet{IP: net.IPv4(192, 168, 42, 0), Mask: net.CIDRMask(24, 32)}

// Runner runs the one-shot adb commands the wireless flows need.
type Runner interface {
	Shell(ctx context.Context, target string, shellCmd ...string) (string, error)
	Connect(ctx context.Context, address string) (string, error)
	Disconnect(ctx context.Context, address string) (string, error)
	Pair(ctx context.Context, address, code string) (string, error)
	TCPIP(ctx context.Context, target string, port int) (string, error)
}

// Session is what the wizard hands a working target to.
type Session interface {
	Connect(ctx context.Context, target string) error
}

// Reporter receives user-visible progress lines.
type Reporter interface {
	OnLog(msg string)
}

// Options tune the wizard. Zero values use the defaults above.
type Options struct {
	Port       int
	Settle     time.Duration
	Attempts   int
	RetryDelay time.Duration
	Reporter   Reporter
	OnState    func(State)
	Logger     zerolog.Logger
}

// Wizard runs the USB to Wi-Fi flow. Only one run may be active at a time.
type Wizard struct {
	runner  Runner
	session Session
	opts    Options
	log     zerolog.Logger
	busy    atomic.Bool
	state   atomic.Value
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewWizard(runner Runner, session Session, opts Options) *Wizard {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Settle == 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	w := &Wizard{
		runner:  runner,
		session: session,
		opts:    opts,
		log:     opts.Logger.With().Str("module", "wireless").Logger(),
		sleep:   sleepCtx,
	}
	w.state.Store(StateIdle)
	return w
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the step the current or last run reached.
func (w *Wizard) State() State {
	return w.state.Load().(State)
}

// Busy reports whether a run is in progress.
func (w *Wizard) Busy() bool {
	return w.busy.Load()
}

func (w *Wizard) enter(res *types.WizardResult, s State) {
	w.state.Store(s)
	res.State = string(s)
	w.log.Debug().Str("state", string(s)).Msg("Wizard state")
	if w.opts.OnState != nil {
		w.opts.OnState(s)
	}
}

func (w *Wizard) report(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	w.log.Info().Msg(msg)
	if w.opts.Reporter != nil {
		w.opts.Reporter.OnLog(msg)
	}
}

// Run takes the device on serial (or the only attached device when serial
// is empty) from USB to a Wi-Fi session. On success the session has been
// handed "ip:port" and the result state is connected.
func (w *Wizard) Run(ctx context.Context, serial string) (types.WizardResult, error) {
	if !w.busy.CompareAndSwap(false, true) {
		return types.WizardResult{State: string(w.State())}, ErrWizardBusy
	}
	defer w.busy.Store(false)

	var res types.WizardResult
	fail := func(err error) (types.WizardResult, error) {
		w.enter(&res, StateFailed)
		res.Error = err.Error()
		w.report("[!] Wireless setup failed: %v", err)
		return res, err
	}

	w.enter(&res, StateDiscoveringIP)
	ip, err := w.discover(ctx, serial)
	if err != nil {
		return fail(err)
	}
	res.IP = ip
	res.Target = fmt.Sprintf("%s:%d", ip, w.opts.Port)
	w.report("[*] Device IP: %s", ip)
	if IsUSBTether(ip) {
		warn := fmt.Sprintf("%s looks like a USB tethering address; the PC may not reach it over Wi-Fi", ip)
		res.Warnings = append(res.Warnings, warn)
		w.report("[!] Warning: %s", warn)
	}

	w.enter(&res, StateEnablingTCP)
	w.report("[*] Switching to TCP mode...")
	if _, err := w.runner.TCPIP(ctx, serial, w.opts.Port); err != nil {
		w.report("[!] Failed to switch mode: %v", err)
	} else {
		w.report("[+] ADB restarted on port %d. You can unplug USB soon.", w.opts.Port)
	}

	w.enter(&res, StateWaiting)
	if err := w.sleep(ctx, w.opts.Settle); err != nil {
		return fail(err)
	}

	w.enter(&res, StateConnecting)
	w.report("[*] Connecting to %s...", res.Target)
	out, err := w.runner.Connect(ctx, res.Target)
	if out != "" {
		w.report("%s", out)
	}
	if err != nil || !ConnectSucceeded(out) {
		return fail(fmt.Errorf("%w: %s", ErrConnect, strings.TrimSpace(out)))
	}

	w.enter(&res, StateStabilizing)
	for res.Attempts < w.opts.Attempts {
		if res.Attempts > 0 {
			if err := w.sleep(ctx, w.opts.RetryDelay); err != nil {
				return fail(err)
			}
		}
		res.Attempts++
		out, err := w.runner.Shell(ctx, res.Target, "echo", "ok")
		if err == nil && strings.TrimSpace(out) == "ok" {
			if err := w.session.Connect(ctx, res.Target); err != nil {
				return fail(err)
			}
			w.enter(&res, StateConnected)
			w.report("[+] Wireless connection ready on %s", res.Target)
			return res, nil
		}
		w.log.Debug().Int("attempt", res.Attempts).Str("output", out).Err(err).Msg("Device not ready yet")
	}
	return fail(fmt.Errorf("%w after %d attempts", ErrUnstable, res.Attempts))
}

// DeviceIP runs only the discovery step.
func (w *Wizard) DeviceIP(ctx context.Context, serial string) (string, error) {
	return w.discover(ctx, serial)
}

func (w *Wizard) discover(ctx context.Context, serial string) (string, error) {
	out, err := w.runner.Shell(ctx, serial, "ip", "route")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIP, err)
	}
	ip, ok := ParseRouteIP(out)
	if !ok {
		return "", ErrNoIP
	}
	return ip, nil
}

// Pair runs "adb pair". Both fields are required; nothing runs otherwise.
func (w *Wizard) Pair(ctx context.Context, address, code string) (string, error) {
	address, code = strings.TrimSpace(address), strings.TrimSpace(code)
	if address == "" || code == "" {
		return "", ErrEmptyPairing
	}
	w.report("[*] Pairing with %s...", address)
	out, err := w.runner.Pair(ctx, address, code)
	if err != nil || !PairSucceeded(out) {
		w.report("[!] Pairing failed: %s", strings.TrimSpace(out))
		return out, fmt.Errorf("%w: %s", ErrPairFailed, strings.TrimSpace(out))
	}
	w.report("[+] %s", strings.TrimSpace(out))
	return out, nil
}

// ParseRouteIP extracts the device address from "ip route" output,
// preferring the wlan line and falling back to any non-loopback src.
func ParseRouteIP(out string) (string, bool) {
	fallback := ""
	for _, line := range strings.Split(out, "\n") {
		m := srcPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ip := net.ParseIP(m[1])
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if strings.Contains(line, "wlan") {
			return m[1], true
		}
		if fallback == "" {
			fallback = m[1]
		}
	}
	return fallback, fallback != ""
}

// IsUSBTether reports whether ip sits in Android's USB tethering subnet.
func IsUSBTether(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && usbTether.Contains(parsed)
}

// ConnectSucceeded interprets "adb connect" output.
func ConnectSucceeded(out string) bool {
	lower := strings.ToLower(out)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "cannot") || strings.Contains(lower, "unable") {
		return false
	}
	return strings.Contains(lower, "connected")
}

// PairSucceeded interprets "adb pair" output.
func PairSucceeded(out string) bool {
	return strings.Contains(out, "Successfully paired")
}

