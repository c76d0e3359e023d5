package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerSessionTools registers device and session tools
func (s *MCPServer) registerSessionTools() {
	// device_list - List attached devices
	s.server.AddTool(
		mcp.NewTool("device_list",
			mcp.WithDescription("List Android devices known to adb"),
		),
		s.handleDeviceList,
	)

	// session_connect - Open the persistent input shell
	s.server.AddTool(
		mcp.NewTool("session_connect",
			mcp.WithDescription("Open a persistent input session. Replaces any running session. A bare IPv4 address is connected on port 5555 first."),
			mcp.WithString("target",
				mcp.Description("Device serial or ip[:port]. Empty reconnects to the last used target."),
			),
		),
		s.handleSessionConnect,
	)

	// session_stop - Stop the session
	s.server.AddTool(
		mcp.NewTool("session_stop",
			mcp.WithDescription("Stop the input session and drop queued commands"),
		),
		s.handleSessionStop,
	)

	// session_status - Describe the session
	s.server.AddTool(
		mcp.NewTool("session_status",
			mcp.WithDescription("Show whether an input session is running and on which device"),
		),
		s.handleSessionStatus,
	)
}

func (s *MCPServer) handleDeviceList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.app.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		return textResult("No devices connected"), nil
	}

	result := fmt.Sprintf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		model := d.Model
		if model == "" {
			model = "unknown"
		}
		result += fmt.Sprintf("%d. %s [%s]\n   Model: %s, State: %s\n", i+1, d.ID, d.Type, model, d.State)
		if d.LastActive > 0 {
			result += fmt.Sprintf("   Last session: %s\n", time.UnixMilli(d.LastActive).Format("2006-01-02 15:04"))
		}
	}

	jsonData, _ := json.MarshalIndent(devices, "", "  ")

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
			mcp.NewTextContent(fmt.Sprintf("\nJSON data:\n```json\n%s\n```", string(jsonData))),
		},
	}, nil
}

func (s *MCPServer) handleSessionConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target := stringArg(request.GetArguments(), "target")

	if err := s.app.Connect(target); err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(fmt.Sprintf("Connect failed: %v", err)),
			},
			IsError: true,
		}, nil
	}

	status := s.app.Status()
	return textResult(fmt.Sprintf("Connected to %s (session %s)", status.Target, status.ID)), nil
}

func (s *MCPServer) handleSessionStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.app.Disconnect()
	return textResult("Session stopped"), nil
}

func (s *MCPServer) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.app.Status()

	var result string
	if !status.Running {
		result = "Disconnected"
	} else {
		result = fmt.Sprintf("Connected to %s\nSession: %s\nStarted: %s\nHealthy: %v\nQueued: %d",
			status.Target, status.ID, status.CreatedAt.Format("2006-01-02 15:04:05"), status.Healthy, status.Queued)
	}

	return textResult(result), nil
}
