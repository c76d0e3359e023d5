package main

import (
	"encoding/json"
	"strings"
	"testing"

	"KeyBridge/mcp"
)

// Integration tests for MCP Bridge
// These run against a real App wired to the fake adb from app_test.go

func TestMCPBridge_ImplementsInterface(t *testing.T) {
	var _ mcp.KeyBridgeApp = NewMCPBridge(&App{})
}

func TestMCPBridge_StatusBeforeConnect(t *testing.T) {
	app, _ := newTestApp(t)
	bridge := NewMCPBridge(app)

	st := bridge.Status()
	if st.Running || st.Target != "" {
		t.Errorf("Expected idle status, got %+v", st)
	}
	if bridge.GetAppVersion() != "test" {
		t.Errorf("Unexpected version %q", bridge.GetAppVersion())
	}
}

func TestMCPBridge_ListDevices(t *testing.T) {
	app, _ := newTestApp(t)
	bridge := NewMCPBridge(app)

	devices, err := bridge.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 2 || devices[0].ID != "emulator-5554" {
		t.Fatalf("Unexpected devices: %+v", devices)
	}

	// tool results embed the slice as JSON
	data, err := json.Marshal(devices)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"id":"emulator-5554"`) {
		t.Errorf("Unexpected JSON: %s", data)
	}
}

func TestMCPBridge_SessionFlow(t *testing.T) {
	app, sink := newTestApp(t)
	bridge := NewMCPBridge(app)

	if err := bridge.Connect("emulator-5554"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := bridge.SendText("one\ntwo"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	waitForSink(t, sink, "input text one\ninput keyevent 66\ninput text two\n")

	bridge.Disconnect()

	records, err := bridge.SessionHistory(10)
	if err != nil {
		t.Fatalf("SessionHistory: %v", err)
	}
	if len(records) != 1 || records[0].EndReason != "stopped" {
		t.Fatalf("Unexpected history: %+v", records)
	}

	events, err := bridge.SessionEvents(records[0].ID)
	if err != nil {
		t.Fatalf("SessionEvents: %v", err)
	}
	if len(events) == 0 || events[0].SessionID != records[0].ID {
		t.Errorf("Unexpected events: %+v", events)
	}

	logs := bridge.RuntimeLogs(0)
	if len(logs) == 0 {
		t.Fatal("Expected runtime logs")
	}
	if last := bridge.RuntimeLogs(1); len(last) != 1 || last[0] != logs[len(logs)-1] {
		t.Errorf("RuntimeLogs(1) = %v", last)
	}
}

func TestMCPBridge_MacroRoundTrip(t *testing.T) {
	app, _ := newTestApp(t)
	bridge := NewMCPBridge(app)

	if err := bridge.AddMacro("Addr", "1 Main St"); err != nil {
		t.Fatalf("AddMacro: %v", err)
	}
	if bridge.Macros()["Addr"] != "1 Main St" {
		t.Error("Macro not visible through bridge")
	}
	if removed, _ := bridge.RemoveMacro("Addr"); !removed {
		t.Error("Expected macro to be removed")
	}
	if removed, _ := bridge.RemoveMacro("Addr"); removed {
		t.Error("Second remove should report false")
	}
}
