// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// rawSchemaSession lists tools straight over the transport so every input
// schema keeps the keywords the server sent. mcp-go decodes inputSchema into
// a struct holding only type, properties, required and $defs.
type rawSchemaSession struct {
	*client.Client
	seq atomic.Int64
}

func newRawSchemaSession(c *client.Client) *rawSchemaSession {
	return &rawSchemaSession{Client: c}
}

// ListTools follows pagination and returns every tool with RawInputSchema
// set next to the decoded InputSchema.
func (s *rawSchemaSession) ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	cursor := request.Params.Cursor
	var out *mcp.ListToolsResult
	for {
		page, err := s.listPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = page
		} else {
			out.Tools = append(out.Tools, page.Tools...)
		}
		if page.NextCursor == "" {
			out.NextCursor = ""
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cursor = page.NextCursor
	}
}

func (s *rawSchemaSession) listPage(ctx context.Context, cursor mcp.Cursor) (*mcp.ListToolsResult, error) {
	var params any
	if cursor != "" {
		params = mcp.PaginatedParams{Cursor: cursor}
	}
	// String ids never collide with the client's own integer ids.
	resp, err := s.GetTransport().SendRequest(ctx, transport.JSONRPCRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(fmt.Sprintf("tools-list-%d", s.seq.Add(1))),
		Method:  string(mcp.MethodToolsList),
		Params:  params,
	})
	if err != nil {
		return nil, transport.NewError(err)
	}
	if resp.Error != nil {
		return nil, resp.Error.AsError()
	}
	return decodeToolsPage(resp.Result)
}

// decodeToolsPage decodes a tools/list result and attaches each tool's
// inputSchema bytes as RawInputSchema.
func decodeToolsPage(raw json.RawMessage) (*mcp.ListToolsResult, error) {
	var page mcp.ListToolsResult
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	var schemas struct {
		Tools []struct {
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &schemas); err != nil {
		return nil, fmt.Errorf("decode tool schemas: %w", err)
	}
	for i := range page.Tools {
		if i >= len(schemas.Tools) {
			break
		}
		if schema := schemas.Tools[i].InputSchema; len(schema) > 0 && string(schema) != "null" {
			page.Tools[i].RawInputSchema = schema
		}
	}
	return &page, nil
}
