package mcp

import (
	"errors"
	"sync"
	"time"
)

// MockCall records a method call for verification
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockKeyBridgeApp is a mock implementation of KeyBridgeApp for testing
type MockKeyBridgeApp struct {
	mu    sync.Mutex
	Calls []MockCall

	// Devices and session
	ListDevicesResult []Device
	ListDevicesError  error
	ConnectError      error
	StatusResult      SessionStatus

	// Input
	SendTextError   error
	SendKeyError    error
	LaunchAppError  error
	ClipboardResult int
	ClipboardError  error

	// Macros
	MacrosResult      map[string]string
	AppsResult        map[string]string
	SendMacroError    error
	AddMacroError     error
	RemoveMacroResult bool
	RemoveMacroError  error

	// Wireless
	PairResult          string
	PairError           error
	DeviceIPResult      string
	DeviceIPError       error
	WirelessSetupResult WizardResult
	WirelessSetupError  error

	// Files
	PushFileResult string
	PushFileError  error

	// History
	SessionHistoryResult []SessionRecord
	SessionHistoryError  error
	SessionEventsResult  []SessionEvent
	SessionEventsError   error
	RuntimeLogsResult    []string
	FileLogsPath         string
	FileLogsResult       []string
	FileLogsError        error
	NotificationsResult  []Notification

	AppVersion string
}

// NewMockKeyBridgeApp creates a new MockKeyBridgeApp with sensible defaults
func NewMockKeyBridgeApp() *MockKeyBridgeApp {
	return &MockKeyBridgeApp{
		Calls:             make([]MockCall, 0),
		AppVersion:        "1.0.0-test",
		ListDevicesResult: []Device{},
		MacrosResult:      map[string]string{},
		AppsResult:        map[string]string{},
	}
}

func (m *MockKeyBridgeApp) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// GetCalls returns all recorded calls
func (m *MockKeyBridgeApp) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.Calls...)
}

// WasMethodCalled checks if a method was called
func (m *MockKeyBridgeApp) WasMethodCalled(method string) bool {
	return m.GetLastCallByMethod(method) != nil
}

// GetLastCallByMethod returns the last call to a specific method
func (m *MockKeyBridgeApp) GetLastCallByMethod(method string) *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Calls) - 1; i >= 0; i-- {
		if m.Calls[i].Method == method {
			c := m.Calls[i]
			return &c
		}
	}
	return nil
}

func (m *MockKeyBridgeApp) ListDevices() ([]Device, error) {
	m.recordCall("ListDevices")
	return m.ListDevicesResult, m.ListDevicesError
}

func (m *MockKeyBridgeApp) Connect(target string) error {
	m.recordCall("Connect", target)
	return m.ConnectError
}

func (m *MockKeyBridgeApp) Disconnect() {
	m.recordCall("Disconnect")
}

func (m *MockKeyBridgeApp) Status() SessionStatus {
	m.recordCall("Status")
	return m.StatusResult
}

func (m *MockKeyBridgeApp) SendText(text string) error {
	m.recordCall("SendText", text)
	return m.SendTextError
}

func (m *MockKeyBridgeApp) SendKey(key string) error {
	m.recordCall("SendKey", key)
	return m.SendKeyError
}

func (m *MockKeyBridgeApp) LaunchApp(nameOrPackage string) error {
	m.recordCall("LaunchApp", nameOrPackage)
	return m.LaunchAppError
}

func (m *MockKeyBridgeApp) SendClipboard() (int, error) {
	m.recordCall("SendClipboard")
	return m.ClipboardResult, m.ClipboardError
}

func (m *MockKeyBridgeApp) Macros() map[string]string {
	m.recordCall("Macros")
	return m.MacrosResult
}

func (m *MockKeyBridgeApp) SendMacro(name string) error {
	m.recordCall("SendMacro", name)
	return m.SendMacroError
}

func (m *MockKeyBridgeApp) AddMacro(name, text string) error {
	m.recordCall("AddMacro", name, text)
	return m.AddMacroError
}

func (m *MockKeyBridgeApp) RemoveMacro(name string) (bool, error) {
	m.recordCall("RemoveMacro", name)
	return m.RemoveMacroResult, m.RemoveMacroError
}

func (m *MockKeyBridgeApp) Apps() map[string]string {
	m.recordCall("Apps")
	return m.AppsResult
}

func (m *MockKeyBridgeApp) Pair(address, code string) (string, error) {
	m.recordCall("Pair", address, code)
	return m.PairResult, m.PairError
}

func (m *MockKeyBridgeApp) DeviceIP(serial string) (string, error) {
	m.recordCall("DeviceIP", serial)
	return m.DeviceIPResult, m.DeviceIPError
}

func (m *MockKeyBridgeApp) WirelessSetup(serial string) (WizardResult, error) {
	m.recordCall("WirelessSetup", serial)
	return m.WirelessSetupResult, m.WirelessSetupError
}

func (m *MockKeyBridgeApp) PushFile(local string) (string, error) {
	m.recordCall("PushFile", local)
	return m.PushFileResult, m.PushFileError
}

func (m *MockKeyBridgeApp) SessionHistory(limit int) ([]SessionRecord, error) {
	m.recordCall("SessionHistory", limit)
	return m.SessionHistoryResult, m.SessionHistoryError
}

func (m *MockKeyBridgeApp) SessionEvents(sessionID string) ([]SessionEvent, error) {
	m.recordCall("SessionEvents", sessionID)
	return m.SessionEventsResult, m.SessionEventsError
}

func (m *MockKeyBridgeApp) RuntimeLogs(limit int) []string {
	m.recordCall("RuntimeLogs", limit)
	return m.RuntimeLogsResult
}

func (m *MockKeyBridgeApp) FileLogs(limit int) (string, []string, error) {
	m.recordCall("FileLogs", limit)
	return m.FileLogsPath, m.FileLogsResult, m.FileLogsError
}

func (m *MockKeyBridgeApp) Notifications(limit int) []Notification {
	m.recordCall("Notifications", limit)
	return m.NotificationsResult
}

func (m *MockKeyBridgeApp) GetAppVersion() string {
	m.recordCall("GetAppVersion")
	return m.AppVersion
}

// === Test Helper Functions ===

// SetupWithDevices configures mock with sample devices
func (m *MockKeyBridgeApp) SetupWithDevices(devices ...Device) *MockKeyBridgeApp {
	m.ListDevicesResult = devices
	return m
}

// SetupConnected configures mock with a running session on target
func (m *MockKeyBridgeApp) SetupConnected(target string) *MockKeyBridgeApp {
	m.StatusResult = SessionStatus{
		ID:        "session-1",
		Target:    target,
		Running:   true,
		Healthy:   true,
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	return m
}

// Common errors for testing
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrNotConnected   = errors.New("not connected")
)

// SampleDevice creates a sample device for testing
func SampleDevice(id string) Device {
	return Device{
		ID:    id,
		State: "device",
		Model: "Pixel 7",
		Type:  "wired",
	}
}
