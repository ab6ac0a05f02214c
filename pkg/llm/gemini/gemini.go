// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini provides a Google Gemini API provider.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/jllopis/coral-aci-agent/pkg/llm"
)

const DefaultModel = "gemini-2.0-flash"

// Provider implements llm.Provider for the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

type settings struct {
	model  string
	config genai.ClientConfig
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

// WithAPIKey sets the API key. Without it GOOGLE_API_KEY or GEMINI_API_KEY
// is read from the environment.
func WithAPIKey(apiKey string) Option {
	return func(s *settings) { s.config.APIKey = apiKey }
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.config.HTTPOptions.BaseURL = url }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.config.HTTPClient = c }
}

// New creates a Gemini provider.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	s := settings{model: DefaultModel, config: genai.ClientConfig{Backend: genai.BackendGeminiAPI}}
	for _, opt := range opts {
		opt(&s)
	}
	client, err := genai.NewClient(ctx, &s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Provider{client: client, model: s.model}, nil
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	contents, systemInstruction := convertMessages(req.Messages)
	config := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if len(req.Tools) > 0 {
		decls, err := convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	return convertResponse(resp), nil
}

// convertMessages maps history to Gemini contents. Gemini answers function
// calls by name, so tool results are matched to the call that produced them.
func convertMessages(messages []llm.Message) ([]*genai.Content, string) {
	var system []string
	callNames := make(map[string]string)
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case llm.RoleAssistant:
			content := &genai.Content{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				callNames[tc.ID] = tc.Function.Name
				var args map[string]any
				if tc.Function.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Function.Name, Args: args},
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		case llm.RoleTool:
			name := callNames[msg.ToolCallID]
			if name == "" {
				name = msg.ToolCallID
			}
			var result map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &result); err != nil {
				result = map[string]any{"result": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{Name: name, Response: result},
				}},
			})
		}
	}
	return contents, strings.Join(system, "\n\n")
}

func convertTools(tools []llm.Tool) ([]*genai.FunctionDeclaration, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if tool.Function.Parameters != nil {
			raw, err := json.Marshal(tool.Function.Parameters)
			if err != nil {
				return nil, fmt.Errorf("gemini: tool %s schema: %w", tool.Function.Name, err)
			}
			var generic any
			if err := json.Unmarshal(raw, &generic); err != nil {
				return nil, fmt.Errorf("gemini: tool %s schema: %w", tool.Function.Name, err)
			}
			raw, _ = json.Marshal(upperTypes(generic))
			var schema genai.Schema
			if err := json.Unmarshal(raw, &schema); err != nil {
				return nil, fmt.Errorf("gemini: tool %s schema: %w", tool.Function.Name, err)
			}
			decl.Parameters = &schema
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

// upperTypes rewrites JSON Schema "type" values to Gemini's upper-case enum.
func upperTypes(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if s, ok := child.(string); ok && k == "type" {
				node[k] = strings.ToUpper(s)
				continue
			}
			node[k] = upperTypes(child)
		}
		return node
	case []any:
		for i, child := range node {
			node[i] = upperTypes(child)
		}
		return node
	default:
		return v
	}
}

func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	result := &llm.ChatResponse{}
	if resp == nil {
		return result
	}
	if resp.UsageMetadata != nil {
		result.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return result
	}
	for i, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			result.Content += part.Text
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
				ID:   fmt.Sprintf("%s_%d", part.FunctionCall.Name, i),
				Type: llm.ToolTypeFunction,
				Function: llm.FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		}
	}
	return result
}

var _ llm.Provider = (*Provider)(nil)
