// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package llmtest provides a scripted llm.Provider for agent and loop tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jllopis/coral-aci-agent/pkg/llm"
)

// Step is one scripted provider turn.
type Step struct {
	Content   string
	ToolCalls []llm.ToolCall
	Err       error
	Usage     llm.Usage
}

// ScenarioProvider replays scripted turns in order and records every request.
type ScenarioProvider struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	requests []llm.ChatRequest
	fallback *Step
}

// NewScenarioProvider creates an empty scenario.
func NewScenarioProvider() *ScenarioProvider {
	return &ScenarioProvider{}
}

// Reply queues a final text answer.
func (p *ScenarioProvider) Reply(content string) *ScenarioProvider {
	return p.Then(Step{Content: content})
}

// CallTools queues a turn requesting the given tool calls.
func (p *ScenarioProvider) CallTools(calls ...llm.ToolCall) *ScenarioProvider {
	return p.Then(Step{ToolCalls: calls})
}

// Fail queues a provider error.
func (p *ScenarioProvider) Fail(err error) *ScenarioProvider {
	return p.Then(Step{Err: err})
}

// Then queues an arbitrary step.
func (p *ScenarioProvider) Then(step Step) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, step)
	return p
}

// Otherwise sets the step returned once the script is exhausted.
// Without it an exhausted script returns an error.
func (p *ScenarioProvider) Otherwise(step Step) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = &step
	return p
}

// Chat implements llm.Provider.
func (p *ScenarioProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req.Messages = append([]llm.Message(nil), req.Messages...)
	p.requests = append(p.requests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var step Step
	switch {
	case p.next < len(p.steps):
		step = p.steps[p.next]
		p.next++
	case p.fallback != nil:
		step = *p.fallback
	default:
		return nil, fmt.Errorf("llmtest: no more scripted responses (call %d)", len(p.requests))
	}

	if step.Err != nil {
		return nil, step.Err
	}
	return &llm.ChatResponse{
		Content:   step.Content,
		ToolCalls: append([]llm.ToolCall(nil), step.ToolCalls...),
		Usage:     step.Usage,
	}, nil
}

// Requests returns all captured requests.
func (p *ScenarioProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// LastRequest returns the most recent request, or nil.
func (p *ScenarioProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	req := p.requests[len(p.requests)-1]
	return &req
}

// CallCount returns the number of Chat calls made.
func (p *ScenarioProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// ToolCallBuilder helps construct tool calls for tests.
type ToolCallBuilder struct {
	id   string
	name string
	args map[string]any
}

// NewToolCall starts a tool call with a random id.
func NewToolCall(name string) *ToolCallBuilder {
	return &ToolCallBuilder{
		id:   "call_" + uuid.NewString()[:8],
		name: name,
		args: make(map[string]any),
	}
}

// WithID sets the tool call ID.
func (b *ToolCallBuilder) WithID(id string) *ToolCallBuilder {
	b.id = id
	return b
}

// WithArg adds an argument.
func (b *ToolCallBuilder) WithArg(key string, value any) *ToolCallBuilder {
	b.args[key] = value
	return b
}

// Build creates the tool call.
func (b *ToolCallBuilder) Build() llm.ToolCall {
	argsJSON, _ := json.Marshal(b.args)
	return llm.ToolCall{
		ID:   b.id,
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionCall{
			Name:      b.name,
			Arguments: string(argsJSON),
		},
	}
}

var _ llm.Provider = (*ScenarioProvider)(nil)
