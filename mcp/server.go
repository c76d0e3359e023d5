// Package mcp exposes KeyBridge over the Model Context Protocol so that
// external clients can drive the input session of a connected device.
package mcp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"KeyBridge/pkg/notify"
	"KeyBridge/pkg/types"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type (
	Device        = types.Device
	SessionStatus = types.SessionStatus
	SessionRecord = types.SessionRecord
	SessionEvent  = types.SessionEvent
	WizardResult  = types.WizardResult
	Notification  = notify.Notification
)

// KeyBridgeApp is the surface of the application the MCP server drives.
type KeyBridgeApp interface {
	// Devices and session
	ListDevices() ([]Device, error)
	Connect(target string) error
	Disconnect()
	Status() SessionStatus

	// Input
	SendText(text string) error
	SendKey(key string) error
	LaunchApp(nameOrPackage string) error
	SendClipboard() (int, error)

	// Macros and shortcuts
	Macros() map[string]string
	SendMacro(name string) error
	AddMacro(name, text string) error
	RemoveMacro(name string) (bool, error)
	Apps() map[string]string

	// Wireless
	Pair(address, code string) (string, error)
	DeviceIP(serial string) (string, error)
	WirelessSetup(serial string) (WizardResult, error)

	// Files
	PushFile(local string) (string, error)

	// History and diagnostics
	SessionHistory(limit int) ([]SessionRecord, error)
	SessionEvents(sessionID string) ([]SessionEvent, error)
	RuntimeLogs(limit int) []string
	FileLogs(limit int) (string, []string, error)
	Notifications(limit int) []Notification

	GetAppVersion() string
}

// MCPServer wraps the MCP server and binds its tools to a KeyBridgeApp
type MCPServer struct {
	app       KeyBridgeApp
	server    *server.MCPServer
	stdio     *server.StdioServer
	mu        sync.Mutex
	isRunning bool
}

// NewMCPServer creates a new MCP server for KeyBridge
func NewMCPServer(app KeyBridgeApp) *MCPServer {
	mcpServer := server.NewMCPServer(
		"keybridge",
		app.GetAppVersion(),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithLogging(),
	)

	s := &MCPServer{
		app:    app,
		server: mcpServer,
	}

	s.registerTools()
	s.registerResources()

	return s
}

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	s.registerSessionTools()
	s.registerInputTools()
	s.registerMacroTools()
	s.registerWirelessTools()
	s.registerHistoryTools()
}

// registerResources registers all MCP resources
func (s *MCPServer) registerResources() {
	s.server.AddResource(
		mcp.NewResource(
			"keybridge://session",
			"Current input session",
			mcp.WithMIMEType("application/json"),
		),
		s.handleSessionResource,
	)

	s.server.AddResource(
		mcp.NewResource(
			"keybridge://macros",
			"Saved text macros",
			mcp.WithMIMEType("application/json"),
		),
		s.handleMacrosResource,
	)

	s.server.AddResource(
		mcp.NewResource(
			"keybridge://sessions",
			"Recent sessions",
			mcp.WithMIMEType("application/json"),
		),
		s.handleSessionsResource,
	)
}

// Start serves MCP over stdio and blocks until stdin closes or an
// interrupt arrives.
func (s *MCPServer) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	return s.run()
}

func (s *MCPServer) run() error {
	s.stdio = server.NewStdioServer(s.server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	// stdout carries the protocol
	fmt.Fprintln(os.Stderr, "[MCP] KeyBridge MCP Server started")
	err := s.stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[MCP] Server error: %v\n", err)
	}

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()

	return err
}

// Stop marks the server stopped. Listen returns once stdin closes.
func (s *MCPServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = false
}

// IsRunning returns whether the MCP server is running
func (s *MCPServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func stringArg(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return v
}

func limitArg(args map[string]interface{}, def int) int {
	if l, ok := args["limit"].(float64); ok && l > 0 {
		return int(l)
	}
	return def
}
