package main

import (
	"KeyBridge/mcp"
)

// MCPBridge bridges the main App to the MCP server
type MCPBridge struct {
	app *App
}

// NewMCPBridge creates a new MCP bridge
func NewMCPBridge(app *App) *MCPBridge {
	return &MCPBridge{app: app}
}

// Implement mcp.KeyBridgeApp interface

func (b *MCPBridge) ListDevices() ([]mcp.Device, error) {
	devices, err := b.app.GetDevices()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []mcp.Device{}
	}
	return devices, nil
}

func (b *MCPBridge) Connect(target string) error { return b.app.Connect(target) }

func (b *MCPBridge) Disconnect() { b.app.Disconnect() }

func (b *MCPBridge) Status() mcp.SessionStatus { return b.app.Status() }

func (b *MCPBridge) SendText(text string) error { return b.app.SendText(text) }

func (b *MCPBridge) SendKey(key string) error { return b.app.SendKey(key) }

func (b *MCPBridge) LaunchApp(nameOrPackage string) error { return b.app.LaunchApp(nameOrPackage) }

func (b *MCPBridge) SendClipboard() (int, error) { return b.app.SendClipboard() }

func (b *MCPBridge) Macros() map[string]string { return b.app.Macros() }

func (b *MCPBridge) SendMacro(name string) error { return b.app.SendMacro(name) }

func (b *MCPBridge) AddMacro(name, text string) error { return b.app.AddMacro(name, text) }

func (b *MCPBridge) RemoveMacro(name string) (bool, error) { return b.app.RemoveMacro(name) }

func (b *MCPBridge) Apps() map[string]string { return b.app.Apps() }

func (b *MCPBridge) Pair(address, code string) (string, error) { return b.app.Pair(address, code) }

func (b *MCPBridge) DeviceIP(serial string) (string, error) { return b.app.DeviceIP(serial) }

func (b *MCPBridge) WirelessSetup(serial string) (mcp.WizardResult, error) {
	return b.app.WirelessSetup(serial)
}

func (b *MCPBridge) PushFile(local string) (string, error) { return b.app.PushFile(local) }

func (b *MCPBridge) SessionHistory(limit int) ([]mcp.SessionRecord, error) {
	return b.app.GetSessionHistory(limit)
}

func (b *MCPBridge) SessionEvents(sessionID string) ([]mcp.SessionEvent, error) {
	return b.app.GetSessionEvents(sessionID)
}

func (b *MCPBridge) RuntimeLogs(limit int) []string { return b.app.GetBackendLogs(limit) }

func (b *MCPBridge) FileLogs(limit int) (string, []string, error) { return b.app.GetFileLogs(limit) }

func (b *MCPBridge) Notifications(limit int) []mcp.Notification {
	return b.app.GetNotifications(limit)
}

func (b *MCPBridge) GetAppVersion() string { return b.app.GetAppVersion() }

var _ mcp.KeyBridgeApp = (*MCPBridge)(nil)
