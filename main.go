package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"KeyBridge/mcp"
	"KeyBridge/pkg/config"
)

var version = "1.0.0"

func main() {
	mcpMode := flag.Bool("mcp", false, "serve the Model Context Protocol on stdio")
	target := flag.String("target", "", "device serial or ip[:port] to connect at startup")
	qrAddr := flag.String("qr", "", "listen address for the QR connect-back server, e.g. :0")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*mcpMode, *target, *qrAddr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
		os.Exit(1)
	}
}

func run(mcpMode bool, target, qrAddr string) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if settings.DataDir == "" {
		settings.DataDir = defaultDataDir()
	}
	if qrAddr != "" {
		settings.QRAddr = qrAddr
	}

	if err := InitLogger(logConfigFor(settings, mcpMode)); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer CloseLogger()

	app, err := NewApp(settings, version)
	if err != nil {
		return err
	}
	app.startup()
	defer app.Shutdown()

	if settings.QRAddr != "" {
		if _, err := app.StartQR(settings.QRAddr); err != nil {
			LogWarn("app").Err(err).Msg("QR server not started")
		}
	}

	if target != "" {
		if err := app.Connect(target); err != nil {
			LogWarn("app").Err(err).Str("target", target).Msg("Startup connect failed")
		}
	}

	if mcpMode {
		return mcp.NewMCPServer(NewMCPBridge(app)).Start()
	}
	return NewConsole(NewMCPBridge(app), os.Stdin, os.Stdout).Run()
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "KeyBridge")
}

// logConfigFor picks where logs go. MCP mode writes to stderr since stdout
// carries protocol frames. The console owns the terminal, so there logs only
// go to the rotating file.
func logConfigFor(settings config.Settings, mcpMode bool) LogConfig {
	var logConfig LogConfig
	switch {
	case !mcpMode:
		logConfig = PersistentLogConfig(settings.LogDir())
		logConfig.Console = false
	case settings.LogFile:
		logConfig = PersistentLogConfig(settings.LogDir())
	default:
		logConfig = DefaultLogConfig()
	}
	logConfig.Level = ParseLogLevel(settings.LogLevel)
	logConfig.ConsoleOut = os.Stderr
	return logConfig
}
