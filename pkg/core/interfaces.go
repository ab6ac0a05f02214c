// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"

	"github.com/jllopis/coral-aci-agent/pkg/llm"
)

// Tool is a callable capability exposed to the model, typically backed by MCP.
type Tool interface {
	Name() string
	Definition() llm.Tool
	// Call runs the tool with the model's JSON-encoded arguments and returns
	// the text fed back to the model.
	Call(ctx context.Context, arguments string) (string, error)
}
