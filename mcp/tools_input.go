package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerInputTools registers text, key and app launch tools
func (s *MCPServer) registerInputTools() {
	// input_text - Type text on the device
	s.server.AddTool(
		mcp.NewTool("input_text",
			mcp.WithDescription("Type text on the device. Newlines are sent as Enter key presses."),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("Text to type; newlines become Enter presses"),
			),
		),
		s.handleInputText,
	)

	// input_key - Send one key event
	s.server.AddTool(
		mcp.NewTool("input_key",
			mcp.WithDescription("Send a key event such as enter, backspace, tab, back, home_btn or a numeric Android keycode"),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("Key name or Android keycode number"),
			),
		),
		s.handleInputKey,
	)

	// app_launch - Launch an app
	s.server.AddTool(
		mcp.NewTool("app_launch",
			mcp.WithDescription("Launch an app by shortcut label (e.g. Chrome) or package name"),
			mcp.WithString("app",
				mcp.Required(),
				mcp.Description("Shortcut label or package name"),
			),
		),
		s.handleAppLaunch,
	)

	// clipboard_send - Type the host clipboard
	s.server.AddTool(
		mcp.NewTool("clipboard_send",
			mcp.WithDescription("Type the contents of this computer's clipboard on the device. A blank clipboard sends nothing."),
		),
		s.handleClipboardSend,
	)
}

func (s *MCPServer) handleInputText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, ok := request.GetArguments()["text"].(string)
	if !ok || text == "" {
		return nil, fmt.Errorf("text is required")
	}

	if err := s.app.SendText(text); err != nil {
		return nil, fmt.Errorf("failed to send text: %w", err)
	}

	lines := strings.Count(text, "\n") + 1
	return textResult(fmt.Sprintf("Queued %d line(s)", lines)), nil
}

func (s *MCPServer) handleInputKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := stringArg(request.GetArguments(), "key")
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}

	if err := s.app.SendKey(key); err != nil {
		return nil, fmt.Errorf("failed to send key: %w", err)
	}

	return textResult(fmt.Sprintf("Sent key %s", key)), nil
}

func (s *MCPServer) handleAppLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	app := stringArg(request.GetArguments(), "app")
	if app == "" {
		return nil, fmt.Errorf("app is required")
	}

	if err := s.app.LaunchApp(app); err != nil {
		return nil, fmt.Errorf("failed to launch app: %w", err)
	}

	return textResult(fmt.Sprintf("Launching %s", app)), nil
}

func (s *MCPServer) handleClipboardSend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.app.SendClipboard()
	if err != nil {
		return nil, fmt.Errorf("failed to send clipboard: %w", err)
	}
	if n == 0 {
		return textResult("Clipboard is empty, nothing sent"), nil
	}
	return textResult(fmt.Sprintf("Sent %d character(s) from the clipboard", n)), nil
}

// registerMacroTools registers macro management tools
func (s *MCPServer) registerMacroTools() {
	s.server.AddTool(
		mcp.NewTool("macro_list",
			mcp.WithDescription("List saved text macros and app shortcuts"),
		),
		s.handleMacroList,
	)

	s.server.AddTool(
		mcp.NewTool("macro_send",
			mcp.WithDescription("Type a saved macro on the device"),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Macro name"),
			),
		),
		s.handleMacroSend,
	)

	s.server.AddTool(
		mcp.NewTool("macro_add",
			mcp.WithDescription("Save a text macro, replacing one with the same name"),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Macro name"),
			),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("Macro text"),
			),
		),
		s.handleMacroAdd,
	)

	s.server.AddTool(
		mcp.NewTool("macro_remove",
			mcp.WithDescription("Delete a saved macro"),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Macro name"),
			),
		),
		s.handleMacroRemove,
	)
}

func (s *MCPServer) handleMacroList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	macros := s.app.Macros()
	apps := s.app.Apps()

	var b strings.Builder
	fmt.Fprintf(&b, "Macros (%d):\n", len(macros))
	for _, name := range sortedKeys(macros) {
		fmt.Fprintf(&b, "- %s: %q\n", name, macros[name])
	}
	fmt.Fprintf(&b, "\nApps (%d):\n", len(apps))
	for _, label := range sortedKeys(apps) {
		fmt.Fprintf(&b, "- %s: %s\n", label, apps[label])
	}

	return textResult(b.String()), nil
}

func (s *MCPServer) handleMacroSend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := stringArg(request.GetArguments(), "name")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	if err := s.app.SendMacro(name); err != nil {
		return nil, fmt.Errorf("failed to send macro: %w", err)
	}

	return textResult(fmt.Sprintf("Sent macro %s", name)), nil
}

func (s *MCPServer) handleMacroAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	name := stringArg(args, "name")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	text, ok := args["text"].(string)
	if !ok {
		return nil, fmt.Errorf("text is required")
	}

	if err := s.app.AddMacro(name, text); err != nil {
		return nil, fmt.Errorf("failed to save macro: %w", err)
	}

	return textResult(fmt.Sprintf("Saved macro %s", name)), nil
}

func (s *MCPServer) handleMacroRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := stringArg(request.GetArguments(), "name")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	removed, err := s.app.RemoveMacro(name)
	if err != nil {
		return nil, fmt.Errorf("failed to remove macro: %w", err)
	}
	if !removed {
		return textResult(fmt.Sprintf("No macro named %s", name)), nil
	}

	return textResult(fmt.Sprintf("Removed macro %s", name)), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
