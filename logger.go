package main

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ========================================
// Structured Logger
// ========================================

// Logger is the process-wide logger. Packages get a child of it.
var Logger zerolog.Logger

var persistentLogger *PersistentLogger

// LogLevel is the minimum level written.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// LogConfig configures InitLogger.
type LogConfig struct {
	Level      LogLevel
	Console    bool      // write human-readable output
	ConsoleOut io.Writer // defaults to stderr; stdout belongs to MCP in server mode
	File       bool      // also write JSON lines to FilePath
	FilePath   string
	MaxSizeMB  int // rotate when the file grows past this
	MaxAgeDays int
	MaxBackups int
	Compress   bool // gzip rotated files
	TimeFormat string
}

// DefaultLogConfig logs info and above to the console.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      LogLevelInfo,
		Console:    true,
		File:       false,
		MaxSizeMB:  10,
		MaxAgeDays: 7,
		MaxBackups: 5,
		Compress:   true,
		TimeFormat: time.RFC3339,
	}
}

// PersistentLogConfig adds a rotating file under logDir.
func PersistentLogConfig(logDir string) LogConfig {
	config := DefaultLogConfig()
	config.File = true
	config.FilePath = filepath.Join(logDir, "keybridge.log")
	return config
}

// ParseLogLevel maps "debug", "info", "warn" and "error" to a LogLevel.
// Anything else is info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// ========================================
// PersistentLogger - rotating log file
// ========================================

// PersistentLogger is an io.Writer that rotates by size and prunes by age
// and count.
type PersistentLogger struct {
	mu          sync.Mutex
	config      LogConfig
	currentFile *os.File
	currentSize int64
	logDir      string
	stopCh      chan struct{}
}

func NewPersistentLogger(config LogConfig) (*PersistentLogger, error) {
	logDir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	pl := &PersistentLogger{
		config: config,
		logDir: logDir,
		stopCh: make(chan struct{}),
	}
	if err := pl.openFile(); err != nil {
		return nil, err
	}

	go pl.cleanupRoutine()
	return pl, nil
}

func (pl *PersistentLogger) Write(p []byte) (n int, err error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.currentFile == nil {
		return 0, os.ErrClosed
	}
	if pl.config.MaxSizeMB > 0 && pl.currentSize+int64(len(p)) > int64(pl.config.MaxSizeMB)*1024*1024 {
		if err := pl.rotate(); err != nil {
			return 0, err
		}
	}

	n, err = pl.currentFile.Write(p)
	pl.currentSize += int64(n)
	return n, err
}

func (pl *PersistentLogger) openFile() error {
	file, err := os.OpenFile(pl.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	pl.currentFile = file
	pl.currentSize = info.Size()
	return nil
}

func (pl *PersistentLogger) rotate() error {
	if pl.currentFile != nil {
		pl.currentFile.Close()
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05.000")
	rotatedPath := filepath.Join(pl.logDir, fmt.Sprintf("keybridge_%s.log", timestamp))

	if err := os.Rename(pl.config.FilePath, rotatedPath); err != nil {
		// Keep logging into the same file if it cannot be moved aside.
		return pl.openFile()
	}

	if pl.config.Compress {
		go pl.compressFile(rotatedPath)
	}
	return pl.openFile()
}

func (pl *PersistentLogger) compressFile(filePath string) {
	src, err := os.Open(filePath)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(filePath + ".gz")
	if err != nil {
		return
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	defer gz.Close()

	if _, err := io.Copy(gz, src); err != nil {
		os.Remove(filePath + ".gz")
		return
	}
	os.Remove(filePath)
}

func (pl *PersistentLogger) cleanupRoutine() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	pl.cleanup()
	for {
		select {
		case <-pl.stopCh:
			return
		case <-ticker.C:
			pl.cleanup()
		}
	}
}

// cleanup removes rotated files older than MaxAgeDays or beyond MaxBackups.
func (pl *PersistentLogger) cleanup() {
	files, err := filepath.Glob(filepath.Join(pl.logDir, "keybridge_*.log*"))
	if err != nil {
		return
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var fileInfos []fileInfo
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		fileInfos = append(fileInfos, fileInfo{path: f, modTime: info.ModTime()})
	}

	sort.Slice(fileInfos, func(i, j int) bool {
		return fileInfos[i].modTime.After(fileInfos[j].modTime)
	})

	now := time.Now()
	for i, fi := range fileInfos {
		if pl.config.MaxAgeDays > 0 && now.Sub(fi.modTime) > time.Duration(pl.config.MaxAgeDays)*24*time.Hour {
			os.Remove(fi.path)
			continue
		}
		if pl.config.MaxBackups > 0 && i >= pl.config.MaxBackups {
			os.Remove(fi.path)
		}
	}
}

func (pl *PersistentLogger) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	select {
	case <-pl.stopCh:
	default:
		close(pl.stopCh)
	}
	if pl.currentFile != nil {
		err := pl.currentFile.Close()
		pl.currentFile = nil
		return err
	}
	return nil
}

// ========================================
// Initialization
// ========================================

// InitLogger replaces Logger according to config.
func InitLogger(config LogConfig) error {
	var writers []io.Writer

	out := config.ConsoleOut
	if out == nil {
		out = os.Stderr
	}
	if config.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		})
	}

	if config.File && config.FilePath != "" {
		pl, err := NewPersistentLogger(config)
		if err != nil {
			return err
		}
		if persistentLogger != nil {
			persistentLogger.Close()
		}
		persistentLogger = pl
		writers = append(writers, pl)
	}

	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	var level zerolog.Level
	switch config.Level {
	case LogLevelDebug:
		level = zerolog.DebugLevel
	case LogLevelWarn:
		level = zerolog.WarnLevel
	case LogLevelError:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return nil
}

// CloseLogger flushes and closes the log file, if any.
func CloseLogger() {
	if persistentLogger != nil {
		persistentLogger.Close()
		persistentLogger = nil
	}
}

// ========================================
// Helpers
// ========================================

// ModuleLogger returns a child logger tagged with module, for packages.
func ModuleLogger(module string) zerolog.Logger {
	return Logger.With().Str("module", module).Logger()
}

func LogDebug(module string) *zerolog.Event {
	return Logger.Debug().Str("module", module)
}

func LogInfo(module string) *zerolog.Event {
	return Logger.Info().Str("module", module)
}

func LogWarn(module string) *zerolog.Event {
	return Logger.Warn().Str("module", module)
}

func LogError(module string) *zerolog.Event {
	return Logger.Error().Str("module", module)
}

// addFields copies details onto event using typed fields where possible.
func addFields(event *zerolog.Event, details map[string]interface{}) *zerolog.Event {
	for k, v := range details {
		switch val := v.(type) {
		case string:
			event.Str(k, val)
		case int:
			event.Int(k, val)
		case int64:
			event.Int64(k, val)
		case float64:
			event.Float64(k, val)
		case bool:
			event.Bool(k, val)
		case error:
			event.AnErr(k, val)
		default:
			event.Interface(k, val)
		}
	}
	return event
}

// ========================================
// User actions
// ========================================

// UserAction names something a user asked for.
type UserAction string

const (
	ActionDeviceConnect    UserAction = "device_connect"
	ActionDeviceDisconnect UserAction = "device_disconnect"
	ActionDevicePair       UserAction = "device_pair"
	ActionWirelessSetup    UserAction = "wireless_setup"
	ActionTextSend         UserAction = "text_send"
	ActionKeySend          UserAction = "key_send"
	ActionAppLaunch        UserAction = "app_launch"
	ActionMacroSend        UserAction = "macro_send"
	ActionMacroAdd         UserAction = "macro_add"
	ActionMacroRemove      UserAction = "macro_remove"
	ActionFilePush         UserAction = "file_push"
	ActionClipboardSend    UserAction = "clipboard_send"
)

// LogUserAction records a user-initiated operation.
func LogUserAction(action UserAction, deviceID string, details map[string]interface{}) {
	event := Logger.Info().
		Str("category", "user_interaction").
		Str("action", string(action)).
		Str("device_id", deviceID)
	addFields(event, details).Msg("User action")
}

// ========================================
// App state
// ========================================

// AppState is a coarse lifecycle phase.
type AppState string

const (
	StateStarting     AppState = "starting"
	StateReady        AppState = "ready"
	StateShuttingDown AppState = "shutting_down"
	StateStopped      AppState = "stopped"
)

func LogAppState(state AppState, details map[string]interface{}) {
	event := Logger.Info().
		Str("category", "app_state").
		Str("state", string(state))
	addFields(event, details).Msg("App state changed")
}

// LogPanic records a recovered panic with its stack.
func LogPanic(module string, recovered interface{}, stack string) {
	Logger.Error().
		Str("module", module).
		Str("category", "panic").
		Interface("recovered", recovered).
		Str("stack", stack).
		Msg("Panic recovered")
}

// ========================================
// Operation timing
// ========================================

// OperationTimer logs how long an operation took.
type OperationTimer struct {
	module    string
	operation string
	startTime time.Time
	details   map[string]interface{}
}

func StartOperation(module, operation string) *OperationTimer {
	return &OperationTimer{
		module:    module,
		operation: operation,
		startTime: time.Now(),
		details:   make(map[string]interface{}),
	}
}

func (t *OperationTimer) AddDetail(key string, value interface{}) *OperationTimer {
	t.details[key] = value
	return t
}

// End logs success.
func (t *OperationTimer) End() {
	t.finish(Logger.Info(), nil).Msg("Operation completed")
}

// EndWithError logs failure.
func (t *OperationTimer) EndWithError(err error) {
	t.finish(Logger.Error(), err).Msg("Operation failed")
}

// Finish logs success or failure depending on err.
func (t *OperationTimer) Finish(err error) {
	if err != nil {
		t.EndWithError(err)
		return
	}
	t.End()
}

func (t *OperationTimer) finish(event *zerolog.Event, err error) *zerolog.Event {
	duration := time.Since(t.startTime)
	event = event.
		Str("module", t.module).
		Str("category", "performance").
		Str("operation", t.operation).
		Dur("duration", duration).
		Int64("duration_ms", duration.Milliseconds())
	if err != nil {
		event = event.Err(err)
	}
	return addFields(event, t.details)
}

// ========================================
// Log file access
// ========================================

// GetLogFilePath returns the active log file, or "" when file logging is off.
func GetLogFilePath() string {
	if persistentLogger != nil {
		return persistentLogger.config.FilePath
	}
	return ""
}

// ReadRecentLogs returns the last n lines of the active log file.
func ReadRecentLogs(n int) ([]string, error) {
	if persistentLogger == nil {
		return nil, fmt.Errorf("file logging is not enabled")
	}

	content, err := os.ReadFile(persistentLogger.config.FilePath)
	if err != nil {
		return nil, err
	}
	allLines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	if n <= 0 || len(allLines) <= n {
		return allLines, nil
	}
	return allLines[len(allLines)-n:], nil
}

func init() {
	_ = InitLogger(DefaultLogConfig())
}
