package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", uri, err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

// handleSessionResource handles the keybridge://session resource
func (s *MCPServer) handleSessionResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, s.app.Status())
}

// handleMacrosResource handles the keybridge://macros resource
func (s *MCPServer) handleMacrosResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, map[string]interface{}{
		"macros": s.app.Macros(),
		"apps":   s.app.Apps(),
	})
}

// handleSessionsResource handles the keybridge://sessions resource
func (s *MCPServer) handleSessionsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	records, err := s.app.SessionHistory(50)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if records == nil {
		records = []SessionRecord{}
	}
	return jsonResource(request.Params.URI, records)
}
