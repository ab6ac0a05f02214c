// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// CatalogKind tells which shape a tool listing arrived in.
type CatalogKind int

const (
	// CatalogEmpty is a listing with nothing usable in it.
	CatalogEmpty CatalogKind = iota
	// CatalogTools is a raw sequence of tools.
	CatalogTools
	// CatalogResult is a list-tools response wrapping the tools.
	CatalogResult
)

// Catalog is a tool listing as returned at the protocol boundary.
type Catalog struct {
	kind   CatalogKind
	tools  []mcp.Tool
	result *mcp.ListToolsResult
}

// CatalogFromTools wraps a raw tool sequence.
func CatalogFromTools(tools []mcp.Tool) Catalog {
	return Catalog{kind: CatalogTools, tools: tools}
}

// CatalogFromResult wraps a list-tools response. A nil response is empty.
func CatalogFromResult(res *mcp.ListToolsResult) Catalog {
	if res == nil {
		return Catalog{kind: CatalogEmpty}
	}
	return Catalog{kind: CatalogResult, result: res}
}

// Kind returns the catalog variant.
func (c Catalog) Kind() CatalogKind {
	return c.kind
}

// Tools returns the listed tools whatever the variant.
func (c Catalog) Tools() []mcp.Tool {
	switch c.kind {
	case CatalogTools:
		return c.tools
	case CatalogResult:
		return c.result.Tools
	default:
		return nil
	}
}

// Len returns the number of tools.
func (c Catalog) Len() int {
	return len(c.Tools())
}

// ToolDescriptor is a tool name with its parameter schema.
type ToolDescriptor struct {
	Name   string
	Schema json.RawMessage
}

// Descriptors renders each tool's schema. The raw schema sent by the server
// wins over the structured one; a tool without a schema gets {}.
func (c Catalog) Descriptors() ([]ToolDescriptor, error) {
	tools := c.Tools()
	out := make([]ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		schema, err := toolSchema(tool)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		out = append(out, ToolDescriptor{Name: tool.Name, Schema: schema})
	}
	return out, nil
}

func toolSchema(tool mcp.Tool) (json.RawMessage, error) {
	if len(tool.RawInputSchema) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, tool.RawInputSchema); err != nil {
			return nil, fmt.Errorf("invalid raw input schema: %w", err)
		}
		return buf.Bytes(), nil
	}
	if tool.InputSchema.Type == "" && len(tool.InputSchema.Properties) == 0 && len(tool.InputSchema.Required) == 0 {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	return raw, nil
}

// CatalogSource is anything that can produce a tool catalog, usually a *Client.
type CatalogSource interface {
	Catalog(ctx context.Context) (Catalog, error)
}

// CatalogFunc adapts a function to CatalogSource.
type CatalogFunc func(ctx context.Context) (Catalog, error)

// Catalog implements CatalogSource.
func (f CatalogFunc) Catalog(ctx context.Context) (Catalog, error) {
	return f(ctx)
}
