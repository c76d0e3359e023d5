package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerHistoryTools registers session history and diagnostics tools
func (s *MCPServer) registerHistoryTools() {
	s.server.AddTool(
		mcp.NewTool("session_history",
			mcp.WithDescription("List recent input sessions, newest first"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of sessions (default: 20)"),
			),
		),
		s.handleSessionHistory,
	)

	s.server.AddTool(
		mcp.NewTool("session_events",
			mcp.WithDescription("Show the status lines recorded during one session, oldest first"),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session ID from session_history"),
			),
		),
		s.handleSessionEvents,
	)

	s.server.AddTool(
		mcp.NewTool("runtime_logs",
			mcp.WithDescription("Show the most recent status lines (connects, launches, failures)"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of lines (default: 50)"),
			),
		),
		s.handleRuntimeLogs,
	)

	s.server.AddTool(
		mcp.NewTool("file_logs",
			mcp.WithDescription("Show the tail of the structured log file"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of lines (default: 100)"),
			),
		),
		s.handleFileLogs,
	)

	s.server.AddTool(
		mcp.NewTool("notification_list",
			mcp.WithDescription("Show notifications mirrored from the connected device"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of notifications (default: 20)"),
			),
		),
		s.handleNotificationList,
	)
}

func (s *MCPServer) handleSessionHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := limitArg(request.GetArguments(), 20)

	records, err := s.app.SessionHistory(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if len(records) == 0 {
		return textResult("No sessions recorded"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d session(s):\n\n", len(records))
	for i, r := range records {
		started := time.UnixMilli(r.StartTime).Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "%d. %s on %s\n   Started: %s", i+1, r.ID, r.Target, started)
		if r.EndTime > 0 {
			fmt.Fprintf(&b, ", ended after %s (%s)", time.Duration(r.EndTime-r.StartTime)*time.Millisecond, r.EndReason)
		} else {
			b.WriteString(", still open")
		}
		b.WriteString("\n")
	}

	return textResult(b.String()), nil
}

func (s *MCPServer) handleSessionEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(request.GetArguments(), "session_id")
	if id == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	events, err := s.app.SessionEvents(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	if len(events) == 0 {
		return textResult(fmt.Sprintf("No events recorded for session %s", id)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (%d event(s)):\n", id, len(events))
	for _, e := range events {
		fmt.Fprintf(&b, "%s %s\n", time.UnixMilli(e.Timestamp).Format("15:04:05"), e.Message)
	}
	return textResult(b.String()), nil
}

func (s *MCPServer) handleRuntimeLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lines := s.app.RuntimeLogs(limitArg(request.GetArguments(), 50))
	if len(lines) == 0 {
		return textResult("No log lines yet"), nil
	}
	return textResult(strings.Join(lines, "\n")), nil
}

func (s *MCPServer) handleFileLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, lines, err := s.app.FileLogs(limitArg(request.GetArguments(), 100))
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return textResult(fmt.Sprintf("%s:\n%s", path, strings.Join(lines, "\n"))), nil
}

func (s *MCPServer) handleNotificationList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := s.app.Notifications(limitArg(request.GetArguments(), 20))
	if len(items) == 0 {
		return textResult("No notifications mirrored"), nil
	}

	var b strings.Builder
	for _, n := range items {
		fmt.Fprintf(&b, "[%s] %s\n", n.Package, n.Text)
	}
	return textResult(b.String()), nil
}
