// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/coral-aci-agent/pkg/core"
	"github.com/jllopis/coral-aci-agent/pkg/errors"
	"github.com/jllopis/coral-aci-agent/pkg/llm"
)

// ToolCaller abstracts MCP tool execution for adapters.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// ToolAdapter exposes one MCP tool as a core.Tool.
type ToolAdapter struct {
	tool   mcp.Tool
	caller ToolCaller
}

// NewToolAdapter builds a core.Tool backed by an MCP tool definition and caller.
func NewToolAdapter(tool mcp.Tool, caller ToolCaller) (*ToolAdapter, error) {
	if tool.Name == "" {
		return nil, stderrors.New("mcp tool name is required")
	}
	if caller == nil {
		return nil, stderrors.New("tool caller is required")
	}
	return &ToolAdapter{tool: tool, caller: caller}, nil
}

// Adapt wraps every tool in the catalog with caller.
func Adapt(catalog Catalog, caller ToolCaller) ([]core.Tool, error) {
	tools := catalog.Tools()
	out := make([]core.Tool, 0, len(tools))
	for _, tool := range tools {
		adapter, err := NewToolAdapter(tool, caller)
		if err != nil {
			return nil, err
		}
		out = append(out, adapter)
	}
	return out, nil
}

// Name returns the MCP tool name.
func (t *ToolAdapter) Name() string {
	return t.tool.Name
}

// Definition returns the model-facing function definition.
func (t *ToolAdapter) Definition() llm.Tool {
	return ToolDefinition(t.tool)
}

// Call decodes the model's JSON arguments, checks required fields and
// invokes the tool. A result flagged as an error is returned as an error.
func (t *ToolAdapter) Call(ctx context.Context, arguments string) (string, error) {
	args, err := decodeArguments(arguments)
	if err != nil {
		return "", errors.New(errors.CodeInvalidInput, fmt.Sprintf("tool %s: invalid arguments", t.tool.Name), err).
			WithAttribute("tool", t.tool.Name).
			WithRecoverable(false)
	}
	if err := validateRequiredArgs(t.tool, args); err != nil {
		return "", errors.New(errors.CodeInvalidInput, fmt.Sprintf("tool %s: invalid arguments", t.tool.Name), err).
			WithAttribute("tool", t.tool.Name).
			WithRecoverable(false)
	}

	result, err := t.caller.CallTool(ctx, t.tool.Name, args)
	if err != nil {
		return "", err
	}
	return resultText(t.tool.Name, result)
}

// ToolDefinition converts an MCP tool into an LLM function tool definition.
func ToolDefinition(tool mcp.Tool) llm.Tool {
	var params any
	if len(tool.RawInputSchema) > 0 {
		params = tool.RawInputSchema
	} else {
		schema := tool.InputSchema
		if schema.Type == "" {
			schema.Type = "object"
		}
		params = schema
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		},
	}
}

func decodeArguments(arguments string) (map[string]any, error) {
	trimmed := strings.TrimSpace(arguments)
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}
	return decoded, nil
}

func validateRequiredArgs(tool mcp.Tool, args map[string]any) error {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("missing required field %q", key)
		}
	}
	return nil
}

func resultText(name string, result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", errors.New(errors.CodeToolFailure, fmt.Sprintf("tool %s returned no result", name), nil).
			WithAttribute("tool", name)
	}
	text := extractTextContent(result.Content)
	if result.IsError {
		return "", errors.New(errors.CodeToolFailure, fmt.Sprintf("tool %s failed", name), stderrors.New(text)).
			WithAttribute("tool", name).
			WithRecoverable(true)
	}
	if text != "" {
		return text, nil
	}
	if result.StructuredContent != nil {
		raw, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return "", errors.New(errors.CodeToolFailure, fmt.Sprintf("tool %s: encode structured result", name), err)
		}
		return string(raw), nil
	}
	return "", nil
}

func extractTextContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ core.Tool = (*ToolAdapter)(nil)
