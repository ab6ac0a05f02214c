// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic provides an Anthropic Messages API provider.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jllopis/coral-aci-agent/pkg/llm"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
)

// Provider implements llm.Provider for the Anthropic API.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

type settings struct {
	model      string
	maxTokens  int64
	clientOpts []option.RequestOption
}

// Option configures the Provider.
type Option func(*settings)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithMaxTokens sets the maximum tokens for responses.
func WithMaxTokens(tokens int64) Option {
	return func(s *settings) {
		if tokens > 0 {
			s.maxTokens = tokens
		}
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		if url != "" {
			s.clientOpts = append(s.clientOpts, option.WithBaseURL(url))
		}
	}
}

// WithAPIKey sets the API key. Without it ANTHROPIC_API_KEY is used.
func WithAPIKey(apiKey string) Option {
	return func(s *settings) {
		if apiKey != "" {
			s.clientOpts = append(s.clientOpts, option.WithAPIKey(apiKey))
		}
	}
}

// New creates a new Anthropic provider.
func New(opts ...Option) *Provider {
	s := settings{model: DefaultModel, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(&s)
	}
	return &Provider{
		client:    anthropic.NewClient(s.clientOpts...),
		model:     s.model,
		maxTokens: s.maxTokens,
	}
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var system []string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		messages = appendMessage(messages, msg)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			converted, err := convertTool(tool)
			if err != nil {
				return nil, err
			}
			tools = append(tools, converted)
		}
		params.Tools = tools
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic message failed: %w", err)
	}
	return convertResponse(message), nil
}

// appendMessage converts msg and appends it. Consecutive tool results are
// merged into a single user turn, as the API requires.
func appendMessage(messages []anthropic.MessageParam, msg llm.Message) []anthropic.MessageParam {
	switch msg.Role {
	case llm.RoleUser:
		return append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
	case llm.RoleAssistant:
		if len(msg.ToolCalls) == 0 {
			return append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			input := map[string]any{}
			if tc.Function.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}
		return append(messages, anthropic.NewAssistantMessage(blocks...))
	case llm.RoleTool:
		block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)
		if n := len(messages); n > 0 && messages[n-1].Role == anthropic.MessageParamRoleUser && isToolResultTurn(messages[n-1]) {
			messages[n-1].Content = append(messages[n-1].Content, block)
			return messages
		}
		return append(messages, anthropic.NewUserMessage(block))
	default:
		return append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
	}
}

func isToolResultTurn(msg anthropic.MessageParam) bool {
	for _, block := range msg.Content {
		if block.OfToolResult == nil {
			return false
		}
	}
	return len(msg.Content) > 0
}

func convertTool(tool llm.Tool) (anthropic.ToolUnionParam, error) {
	var schema anthropic.ToolInputSchemaParam
	if tool.Function.Parameters != nil {
		raw, err := json.Marshal(tool.Function.Parameters)
		if err != nil {
			return anthropic.ToolUnionParam{}, fmt.Errorf("anthropic: tool %s schema: %w", tool.Function.Name, err)
		}
		if err := json.Unmarshal(raw, &schema); err != nil {
			return anthropic.ToolUnionParam{}, fmt.Errorf("anthropic: tool %s schema: %w", tool.Function.Name, err)
		}
	}
	param := anthropic.ToolParam{
		Name:        tool.Function.Name,
		InputSchema: schema,
	}
	if tool.Function.Description != "" {
		param.Description = anthropic.String(tool.Function.Description)
	}
	return anthropic.ToolUnionParam{OfTool: &param}, nil
}

func convertResponse(message *anthropic.Message) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}

	var text strings.Builder
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := "{}"
			if raw, err := json.Marshal(block.Input); err == nil && len(raw) > 0 && string(raw) != "null" {
				args = string(raw)
			}
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:   block.ID,
				Type: llm.ToolTypeFunction,
				Function: llm.FunctionCall{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}
	resp.Content = text.String()
	return resp
}

var _ llm.Provider = (*Provider)(nil)
