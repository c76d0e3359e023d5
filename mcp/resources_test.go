package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

// Helper to create a ReadResourceRequest
func makeResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func resourceText(t *testing.T, contents []mcp.ResourceContents) string {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("Expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("Expected TextResourceContents, got %T", contents[0])
	}
	if tc.MIMEType != "application/json" {
		t.Errorf("Expected JSON mime type, got %s", tc.MIMEType)
	}
	return tc.Text
}

func TestHandleSessionResource(t *testing.T) {
	mock := NewMockKeyBridgeApp().SetupConnected("emulator-5554")
	server := NewMCPServer(mock)

	contents, err := server.handleSessionResource(context.Background(), makeResourceRequest("keybridge://session"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var status SessionStatus
	if err := json.Unmarshal([]byte(resourceText(t, contents)), &status); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !status.Running || status.Target != "emulator-5554" {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestHandleMacrosResource(t *testing.T) {
	mock := NewMockKeyBridgeApp()
	mock.MacrosResult = map[string]string{"My Email": "me@example.com"}
	server := NewMCPServer(mock)

	contents, err := server.handleMacrosResource(context.Background(), makeResourceRequest("keybridge://macros"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var body struct {
		Macros map[string]string `json:"macros"`
	}
	if err := json.Unmarshal([]byte(resourceText(t, contents)), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Macros["My Email"] != "me@example.com" {
		t.Errorf("Unexpected macros: %v", body.Macros)
	}
}

func TestHandleSessionsResource_Empty(t *testing.T) {
	server := NewMCPServer(NewMockKeyBridgeApp())

	contents, err := server.handleSessionsResource(context.Background(), makeResourceRequest("keybridge://sessions"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := resourceText(t, contents); got != "[]" {
		t.Errorf("Expected empty array, got %s", got)
	}
}
