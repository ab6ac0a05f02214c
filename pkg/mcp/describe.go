// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jllopis/coral-aci-agent/pkg/errors"
	"github.com/jllopis/coral-aci-agent/pkg/telemetry"
)

const (
	// NoToolsAvailable is rendered for an empty catalog.
	NoToolsAvailable = "No tools available"
	// ErrorRetrievingTools is rendered when listing fails for any reason.
	ErrorRetrievingTools = "Error retrieving tools"
)

var braceEscaper = strings.NewReplacer("{", "{{", "}", "}}")

// EscapeBraces doubles every brace so text survives placeholder substitution.
func EscapeBraces(s string) string {
	return braceEscaper.Replace(s)
}

// DescribeTools renders one "Tool: <name>, Schema: <schema>" line per tool
// with braces doubled. It never fails: an empty catalog yields
// NoToolsAvailable and any error, or panic, yields ErrorRetrievingTools
// after logging it.
func DescribeTools(ctx context.Context, src CatalogSource, logger *slog.Logger) (out string) {
	if logger == nil {
		logger = slog.Default()
	}
	name := "mcp"

	defer func() {
		if r := recover(); r != nil {
			err := errors.New(errors.CodeInternal, fmt.Sprintf("panic while listing tools: %v", r), nil)
			logger.ErrorContext(ctx, "error retrieving tools", append([]any{slog.String("server", name)}, telemetry.ErrorAttrs(err)...)...)
			out = ErrorRetrievingTools
		}
	}()

	if src == nil {
		err := errors.New(errors.CodeInvalidInput, "no catalog source", nil)
		logger.ErrorContext(ctx, "error retrieving tools", telemetry.ErrorAttrs(err)...)
		return ErrorRetrievingTools
	}
	name = sourceName(src)
	logger.InfoContext(ctx, "listing tools", slog.String("server", name))
	catalog, err := src.Catalog(ctx)
	if err == nil {
		var descs []ToolDescriptor
		descs, err = catalog.Descriptors()
		if err == nil {
			logger.InfoContext(ctx, "retrieved tools", slog.String("server", name), slog.Int("count", len(descs)))
			return formatDescriptors(descs)
		}
		err = errors.New(errors.CodeInvalidInput, "malformed tool metadata", err)
	}
	logger.ErrorContext(ctx, "error retrieving tools", append([]any{slog.String("server", name)}, telemetry.ErrorAttrs(err)...)...)
	return ErrorRetrievingTools
}

func formatDescriptors(descs []ToolDescriptor) string {
	if len(descs) == 0 {
		return NoToolsAvailable
	}
	lines := make([]string, 0, len(descs))
	for _, d := range descs {
		lines = append(lines, fmt.Sprintf("Tool: %s, Schema: %s", d.Name, EscapeBraces(string(d.Schema))))
	}
	return strings.Join(lines, "\n")
}

func sourceName(src CatalogSource) string {
	if n, ok := src.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "mcp"
}
