package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"

	"KeyBridge/pkg/bridge"
	"KeyBridge/pkg/cache"
	"KeyBridge/pkg/config"
	"KeyBridge/pkg/engine"
	"KeyBridge/pkg/history"
	"KeyBridge/pkg/input"
	"KeyBridge/pkg/notify"
	"KeyBridge/pkg/types"
	"KeyBridge/pkg/wireless"
)

const (
	maxRuntimeLogs    = 1000
	maxNotifications  = 200
	historyRetention  = 30 * 24 * time.Hour
	oneShotTimeout    = 30 * time.Second
	wizardRunDeadline = 2 * time.Minute
)

// ErrNoTarget is returned by Connect when no target was given and no
// previous session is remembered.
var ErrNoTarget = errors.New("no target given and no previous device remembered")

// App struct
type App struct {
	ctx      context.Context
	cancel   context.CancelFunc
	settings config.Settings
	version  string

	runner  *bridge.Runner
	engine  *engine.Supervisor
	monitor *engine.Monitor
	wizard  *wireless.Wizard
	qr      *wireless.QRServer
	config  *config.Store
	mirror  *notify.Mirror
	history *history.Store
	cache   *cache.Service

	wg sync.WaitGroup

	// Runtime logs
	runtimeLogs []string
	logsMu      sync.Mutex

	// Mirrored notifications, oldest first
	notifications []notify.Notification
	notifyMu      sync.Mutex

	readClipboard func() (string, error)
}

// NewApp wires every component from settings. Nothing runs until startup.
func NewApp(settings config.Settings, version string) (*App, error) {
	log := ModuleLogger("app")

	a := &App{
		settings:      settings,
		version:       version,
		readClipboard: clipboard.ReadAll,
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.runner = bridge.NewRunner(bridge.ResolvePath(settings.AdbPath), ModuleLogger("adb"))

	hist, err := history.Open(settings.DataDir, ModuleLogger("history"))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	a.history = hist

	a.cache, err = cache.New(cache.Config{
		Dir: settings.DataDir,
		LogFunc: func(format string, args ...interface{}) {
			log.Warn().Msgf(format, args...)
		},
	})
	if err != nil {
		hist.Close()
		return nil, fmt.Errorf("open device state: %w", err)
	}

	a.config = config.NewStore(settings.ConfigFile, ModuleLogger("config"))
	if err := a.config.Load(); err != nil {
		log.Warn().Err(err).Str("path", settings.ConfigFile).Msg("Using default macros")
	}

	launcher := engine.LauncherFunc(func(target string) (engine.Process, error) {
		p, err := a.runner.StartShell(target)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	a.engine = engine.NewSupervisor(launcher, engine.Options{
		Connector:      a.runner,
		Observer:       a,
		Listener:       a,
		LivenessWindow: settings.LivenessWindow,
		Logger:         Logger,
	})
	a.monitor = engine.NewMonitor(a.engine, settings.HealthInterval)

	a.wizard = wireless.NewWizard(a.runner, a.engine, wireless.Options{
		Reporter: a,
		Logger:   Logger,
	})
	a.qr = wireless.NewQRServer(a.runner, a.engine, a, Logger)

	a.mirror = notify.NewMirror(a.runner, notify.SinkFunc(a.onNotification), settings.NotifyInterval, Logger)

	return a, nil
}

// startup starts the background workers.
func (a *App) startup() {
	LogAppState(StateStarting, map[string]interface{}{
		"version": a.version,
		"adb":     a.runner.Path(),
		"dataDir": a.settings.DataDir,
	})

	a.goSafe("monitor", func() { a.monitor.Run(a.ctx) })

	a.config.OnChange(func() {
		a.OnLog("[*] Macros reloaded from " + a.config.Path())
	})
	if err := a.config.Watch(a.ctx); err != nil {
		LogWarn("app").Err(err).Msg("Config watcher unavailable")
	}

	if n, err := a.history.Prune(time.Now().Add(-historyRetention)); err != nil {
		LogWarn("app").Err(err).Msg("History prune failed")
	} else if n > 0 {
		LogInfo("app").Int64("sessions", n).Msg("Pruned old sessions")
	}

	LogAppState(StateReady, nil)
}

// Shutdown stops the session and every background worker.
func (a *App) Shutdown() {
	LogAppState(StateShuttingDown, nil)

	a.engine.Stop()
	a.mirror.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.qr.Stop(ctx); err != nil {
		LogWarn("app").Err(err).Msg("QR server shutdown")
	}

	a.cancel()
	a.wg.Wait()

	if err := a.history.Close(); err != nil {
		LogWarn("app").Err(err).Msg("Closing history")
	}
	LogAppState(StateStopped, nil)
}

// GetAppVersion returns the application version
func (a *App) GetAppVersion() string {
	return a.version
}

// goSafe runs fn in a tracked goroutine and logs instead of crashing on panic.
func (a *App) goSafe(module string, fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				LogPanic(module, r, string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// ========================================
// Observer and SessionListener
// ========================================

// OnLog records a user-facing status line.
func (a *App) OnLog(msg string) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)

	a.logsMu.Lock()
	a.runtimeLogs = append(a.runtimeLogs, line)
	if len(a.runtimeLogs) > maxRuntimeLogs {
		a.runtimeLogs = a.runtimeLogs[len(a.runtimeLogs)-maxRuntimeLogs:]
	}
	a.logsMu.Unlock()

	LogInfo("app").Str("category", "status").Msg(msg)

	if id := a.engine.Snapshot().ID; id != "" {
		if err := a.history.AddEvent(id, history.KindLog, msg); err != nil {
			LogDebug("app").Err(err).Msg("History event not stored")
		}
	}
}

// OnStatusChanged follows the session with the notification mirror.
func (a *App) OnStatusChanged(connected bool, label string) {
	if connected {
		a.mirror.Start(label)
	} else {
		a.mirror.Stop()
	}
}

func (a *App) SessionStarted(id, target string, at time.Time) {
	a.cache.Touch(target, at.UnixMilli())
	a.history.SessionStarted(id, target, at)
}

func (a *App) SessionEnded(id string, reason engine.EndReason, at time.Time) {
	a.history.SessionEnded(id, reason, at)
}

func (a *App) onNotification(n notify.Notification) {
	a.notifyMu.Lock()
	a.notifications = append(a.notifications, n)
	if len(a.notifications) > maxNotifications {
		a.notifications = a.notifications[len(a.notifications)-maxNotifications:]
	}
	a.notifyMu.Unlock()

	a.OnLog(fmt.Sprintf("[NOTIF] %s: %s", n.Package, n.Text))
}

// GetBackendLogs returns the last limit status lines, oldest first.
func (a *App) GetBackendLogs(limit int) []string {
	a.logsMu.Lock()
	defer a.logsMu.Unlock()
	return tail(a.runtimeLogs, limit)
}

// GetNotifications returns the last limit mirrored notifications.
func (a *App) GetNotifications(limit int) []notify.Notification {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	return tail(a.notifications, limit)
}

func tail[T any](items []T, limit int) []T {
	start := 0
	if limit > 0 && len(items) > limit {
		start = len(items) - limit
	}
	out := make([]T, len(items)-start)
	copy(out, items[start:])
	return out
}

// ========================================
// Session
// ========================================

// GetDevices lists devices known to adb with the time each last hosted a
// session.
func (a *App) GetDevices() ([]types.Device, error) {
	ctx, cancel := context.WithTimeout(a.ctx, oneShotTimeout)
	defer cancel()
	devices, err := a.runner.Devices(ctx)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		devices[i].LastActive = a.cache.GetLastActive(devices[i].ID)
	}
	return devices, nil
}

// Connect opens a session on target. An empty target reuses the device of
// the last successful session, or the only attached device.
func (a *App) Connect(target string) error {
	if target == "" {
		target = a.defaultTarget()
		if target == "" {
			return ErrNoTarget
		}
		a.OnLog("[*] Reconnecting to " + target)
	}

	LogUserAction(ActionDeviceConnect, target, nil)
	timer := StartOperation("engine", "connect").AddDetail("target", target)
	err := a.engine.Connect(a.ctx, target)
	timer.Finish(err)
	return err
}

func (a *App) defaultTarget() string {
	if last := a.cache.LastTarget(); last != "" {
		return last
	}
	devices, err := a.GetDevices()
	if err != nil {
		return ""
	}
	if attached := bridge.Attached(devices); len(attached) == 1 {
		return attached[0].ID
	}
	return ""
}

// Disconnect stops the session.
func (a *App) Disconnect() {
	LogUserAction(ActionDeviceDisconnect, a.engine.Target(), nil)
	a.engine.Stop()
}

// Status describes the current session.
func (a *App) Status() types.SessionStatus {
	return a.engine.Snapshot()
}

// ========================================
// Input
// ========================================

// SendText types text on the connected device.
func (a *App) SendText(text string) error {
	LogUserAction(ActionTextSend, a.engine.Target(), map[string]interface{}{
		"chars": len(text),
	})
	return a.engine.SendText(text)
}

// SendKey sends a named key or numeric keycode.
func (a *App) SendKey(key string) error {
	code, err := input.LookupKey(key)
	if err != nil {
		return err
	}
	LogUserAction(ActionKeySend, a.engine.Target(), map[string]interface{}{
		"key":  key,
		"code": code,
	})
	return a.engine.SendKey(code)
}

// LaunchApp launches a shortcut label or, failing that, a package name.
func (a *App) LaunchApp(nameOrPackage string) error {
	pkg, ok := a.config.App(nameOrPackage)
	if !ok {
		pkg = nameOrPackage
	}
	LogUserAction(ActionAppLaunch, a.engine.Target(), map[string]interface{}{
		"package": pkg,
	})
	return a.engine.LaunchApp(pkg)
}

// SendClipboard types the host clipboard on the device and returns the
// number of characters sent. Blank clipboards are skipped.
func (a *App) SendClipboard() (int, error) {
	text, err := a.readClipboard()
	if err != nil {
		return 0, fmt.Errorf("read clipboard: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	LogUserAction(ActionClipboardSend, a.engine.Target(), map[string]interface{}{
		"chars": len(text),
	})
	if err := a.engine.SendText(text); err != nil {
		return 0, err
	}
	return len([]rune(text)), nil
}

// ========================================
// Macros
// ========================================

func (a *App) Macros() map[string]string { return a.config.Macros() }

func (a *App) Apps() map[string]string { return a.config.Apps() }

// SendMacro types a saved macro.
func (a *App) SendMacro(name string) error {
	text, ok := a.config.Macro(name)
	if !ok {
		return fmt.Errorf("unknown macro %q", name)
	}
	LogUserAction(ActionMacroSend, a.engine.Target(), map[string]interface{}{
		"macro": name,
	})
	return a.engine.SendText(text)
}

func (a *App) AddMacro(name, text string) error {
	LogUserAction(ActionMacroAdd, "", map[string]interface{}{"macro": name})
	return a.config.AddMacro(name, text)
}

func (a *App) RemoveMacro(name string) (bool, error) {
	LogUserAction(ActionMacroRemove, "", map[string]interface{}{"macro": name})
	return a.config.RemoveMacro(name)
}

// ========================================
// Wireless
// ========================================

// Pair runs "adb pair" with a wireless debugging code.
func (a *App) Pair(address, code string) (string, error) {
	LogUserAction(ActionDevicePair, address, nil)
	ctx, cancel := context.WithTimeout(a.ctx, oneShotTimeout)
	defer cancel()
	return a.wizard.Pair(ctx, address, code)
}

// DeviceIP reads the Wi-Fi address of a USB device.
func (a *App) DeviceIP(serial string) (string, error) {
	ctx, cancel := context.WithTimeout(a.ctx, oneShotTimeout)
	defer cancel()
	return a.wizard.DeviceIP(ctx, serial)
}

// WirelessSetup moves a USB device to adb over Wi-Fi and connects to it.
func (a *App) WirelessSetup(serial string) (types.WizardResult, error) {
	LogUserAction(ActionWirelessSetup, serial, nil)
	ctx, cancel := context.WithTimeout(a.ctx, wizardRunDeadline)
	defer cancel()

	timer := StartOperation("wireless", "setup").AddDetail("serial", serial)
	res, err := a.wizard.Run(ctx, serial)
	timer.AddDetail("attempts", res.Attempts).Finish(err)
	return res, err
}

// StartQR starts the connect-back server and returns the URL to encode.
func (a *App) StartQR(addr string) (string, error) {
	url, err := a.qr.Start(addr)
	if err != nil {
		return "", err
	}
	a.OnLog("[*] Scan to connect: " + url)
	return url, nil
}

// ========================================
// Files
// ========================================

// PushFile copies local to the Downloads folder of the session device in
// the background and returns the remote path.
func (a *App) PushFile(local string) (string, error) {
	target := a.engine.Target()
	if target == "" {
		return "", engine.ErrNotRunning
	}
	if _, err := os.Stat(local); err != nil {
		return "", err
	}

	remote := bridge.DownloadsPath(local)
	LogUserAction(ActionFilePush, target, map[string]interface{}{
		"local":  local,
		"remote": remote,
	})

	a.goSafe("push", func() {
		ctx, cancel := context.WithTimeout(a.ctx, 10*time.Minute)
		defer cancel()
		a.OnLog(fmt.Sprintf("[*] Pushing %s...", local))
		if _, err := a.runner.PushToDownloads(ctx, target, local); err != nil {
			a.OnLog(fmt.Sprintf("[!] Push failed: %v", err))
			return
		}
		a.OnLog("[+] Pushed to " + remote)
	})
	return remote, nil
}

// ========================================
// History
// ========================================

// GetSessionHistory lists recent sessions newest first.
func (a *App) GetSessionHistory(limit int) ([]types.SessionRecord, error) {
	return a.history.Recent(limit)
}

// GetSessionEvents lists the status lines recorded during one session.
func (a *App) GetSessionEvents(sessionID string) ([]types.SessionEvent, error) {
	return a.history.Events(sessionID)
}

// GetFileLogs returns the log file path and its last limit lines.
func (a *App) GetFileLogs(limit int) (string, []string, error) {
	path := GetLogFilePath()
	if path == "" {
		return "", nil, errors.New("file logging is not enabled")
	}
	lines, err := ReadRecentLogs(limit)
	return path, lines, err
}
