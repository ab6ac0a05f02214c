// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcptest provides in-process MCP servers for tests: a generic tool
// server and a fake Coral message relay.
package mcptest

import (
	"context"
	"net/http/httptest"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Handler handles one tool invocation.
type Handler func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// Server wraps an mcp-go server.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server.
func NewServer(name, version string) *Server {
	return &Server{mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false))}
}

// RegisterTool registers a tool with the server.
func (s *Server) RegisterTool(tool mcp.Tool, handler Handler) {
	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		return handler(ctx, args)
	})
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// StartSSE serves the server over SSE; clients connect to URL + "/sse".
func (s *Server) StartSSE() *httptest.Server {
	return server.NewTestServer(s.mcpServer)
}

// ServeStdio serves the server on stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Text builds a text tool result.
func Text(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

// Failure builds a tool result flagged as an error.
func Failure(text string) *mcp.CallToolResult {
	res := Text(text)
	res.IsError = true
	return res
}
