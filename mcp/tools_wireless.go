package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerWirelessTools registers pairing, Wi-Fi setup and file push tools
func (s *MCPServer) registerWirelessTools() {
	// device_pair - Pair with a device using a pairing code
	s.server.AddTool(
		mcp.NewTool("device_pair",
			mcp.WithDescription("Pair with a device using wireless debugging"),
			mcp.WithString("address",
				mcp.Required(),
				mcp.Description("Pairing address shown on the device (IP:port)"),
			),
			mcp.WithString("code",
				mcp.Required(),
				mcp.Description("Six digit pairing code"),
			),
		),
		s.handleDevicePair,
	)

	// device_ip - Discover the Wi-Fi address of a USB device
	s.server.AddTool(
		mcp.NewTool("device_ip",
			mcp.WithDescription("Read the wlan0 IPv4 address of a device"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("USB serial of the device"),
			),
		),
		s.handleDeviceIP,
	)

	// wireless_setup - Run the USB to Wi-Fi wizard
	s.server.AddTool(
		mcp.NewTool("wireless_setup",
			mcp.WithDescription("Switch a USB device to adb over Wi-Fi and open an input session on it"),
			mcp.WithString("device_id",
				mcp.Required(),
				mcp.Description("USB serial of the device"),
			),
		),
		s.handleWirelessSetup,
	)

	// file_push - Push a file to Downloads
	s.server.AddTool(
		mcp.NewTool("file_push",
			mcp.WithDescription("Push a local file to /sdcard/Download on the connected device"),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Local file path"),
			),
		),
		s.handleFilePush,
	)
}

func (s *MCPServer) handleDevicePair(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	address, ok := args["address"].(string)
	if !ok || address == "" {
		return nil, fmt.Errorf("address is required")
	}
	code, ok := args["code"].(string)
	if !ok || code == "" {
		return nil, fmt.Errorf("pairing code is required")
	}

	result, err := s.app.Pair(address, code)
	if err != nil {
		return nil, fmt.Errorf("failed to pair: %w", err)
	}

	return textResult(result), nil
}

func (s *MCPServer) handleDeviceIP(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID := stringArg(request.GetArguments(), "device_id")
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	ip, err := s.app.DeviceIP(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get device IP: %w", err)
	}

	return textResult(fmt.Sprintf("Device %s IP address: %s", deviceID, ip)), nil
}

func (s *MCPServer) handleWirelessSetup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID := stringArg(request.GetArguments(), "device_id")
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	res, err := s.app.WirelessSetup(deviceID)

	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", res.State)
	if res.IP != "" {
		fmt.Fprintf(&b, "IP: %s\n", res.IP)
	}
	if res.Target != "" {
		fmt.Fprintf(&b, "Target: %s\n", res.Target)
	}
	if res.Attempts > 0 {
		fmt.Fprintf(&b, "Attempts: %d\n", res.Attempts)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}

	if err != nil {
		fmt.Fprintf(&b, "Error: %v\n", err)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(b.String())},
			IsError: true,
		}, nil
	}

	return textResult(b.String()), nil
}

func (s *MCPServer) handleFilePush(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := stringArg(request.GetArguments(), "path")
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	remote, err := s.app.PushFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to push file: %w", err)
	}

	return textResult(fmt.Sprintf("Pushing %s to %s", path, remote)), nil
}
