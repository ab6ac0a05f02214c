// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements a tool-calling LLM agent.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/coral-aci-agent/pkg/core"
	"github.com/jllopis/coral-aci-agent/pkg/errors"
	"github.com/jllopis/coral-aci-agent/pkg/llm"
	"github.com/jllopis/coral-aci-agent/pkg/telemetry"
)

// DefaultMaxIterations bounds model round-trips per run.
const DefaultMaxIterations = 25

// RunResult is the outcome of one Run.
type RunResult struct {
	// Output is the model's final text answer.
	Output string
	// NewMessages holds the instruction and every assistant and tool
	// message produced by the run, in order.
	NewMessages []llm.Message
	Usage       llm.Usage
	Iterations  int
}

// Agent drives a model through tool calls until it returns a final answer.
type Agent struct {
	id            string
	llm           llm.Provider
	providerName  string
	model         string
	systemPrompt  string
	tools         []core.Tool
	toolIndex     map[string]core.Tool
	maxIterations int
	temperature   float64
	logger        *slog.Logger
	metrics       *telemetry.LoopMetrics
	tracer        trace.Tracer
}

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates an agent backed by provider.
func New(id string, provider llm.Provider, opts ...Option) (*Agent, error) {
	a := &Agent{
		id:            id,
		llm:           provider,
		maxIterations: DefaultMaxIterations,
		logger:        slog.Default(),
		tracer:        otel.Tracer("aciagent/agent"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.id == "" {
		return nil, NewInvalidInputError("agent id is required")
	}
	if a.llm == nil {
		return nil, NewInvalidInputError("llm provider is required")
	}
	a.toolIndex = make(map[string]core.Tool, len(a.tools))
	kept := a.tools[:0]
	for _, tool := range a.tools {
		name := tool.Name()
		if _, dup := a.toolIndex[name]; dup {
			a.logger.Warn("agent.tool.duplicate", slog.String("agent_id", a.id), slog.String("tool", name))
			continue
		}
		a.toolIndex[name] = tool
		kept = append(kept, tool)
	}
	a.tools = kept
	return a, nil
}

// WithModel sets the model name sent with every request.
func WithModel(model string) Option {
	return func(a *Agent) error {
		a.model = model
		return nil
	}
}

// WithProviderName labels telemetry with the provider, e.g. "openai".
func WithProviderName(name string) Option {
	return func(a *Agent) error {
		a.providerName = name
		return nil
	}
}

// WithSystemPrompt sets the system prompt placed before the history.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) error {
		a.systemPrompt = prompt
		return nil
	}
}

// WithTools registers tools. On a name clash the first tool wins.
func WithTools(tools ...core.Tool) Option {
	return func(a *Agent) error {
		for _, tool := range tools {
			if tool == nil {
				return NewInvalidInputError("nil tool")
			}
		}
		a.tools = append(a.tools, tools...)
		return nil
	}
}

// WithMaxIterations bounds model round-trips per run.
func WithMaxIterations(n int) Option {
	return func(a *Agent) error {
		if n < 1 {
			return NewInvalidInputError("max iterations must be at least 1")
		}
		a.maxIterations = n
		return nil
	}
}

// WithTemperature sets the sampling temperature. Zero leaves the provider default.
func WithTemperature(t float64) Option {
	return func(a *Agent) error {
		if t < 0 {
			return NewInvalidInputError("temperature must not be negative")
		}
		a.temperature = t
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// WithMetrics records tool calls and errors.
func WithMetrics(m *telemetry.LoopMetrics) Option {
	return func(a *Agent) error {
		a.metrics = m
		return nil
	}
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Tools returns the registered tools.
func (a *Agent) Tools() []core.Tool {
	return append([]core.Tool(nil), a.tools...)
}

// Run sends the system prompt, history and instruction to the model and
// executes the tool calls it asks for until it answers without any. Tool
// failures are reported back to the model rather than ending the run.
// history is not modified.
func (a *Agent) Run(ctx context.Context, instruction string, history []llm.Message) (*RunResult, error) {
	ctx, runID := core.EnsureRunID(ctx)
	ctx = core.WithAgentID(ctx, a.id)
	ctx, span := a.tracer.Start(ctx, "Agent.Run", trace.WithAttributes(
		telemetry.AgentAttributes(a.id, a.model, runID, a.maxIterations)...,
	))
	defer span.End()
	log := a.logger.With(slog.String("agent_id", a.id), slog.String("run_id", runID))

	if strings.TrimSpace(instruction) == "" {
		err := NewInvalidInputError("instruction is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	messages := make([]llm.Message, 0, len(history)+2)
	if a.systemPrompt != "" {
		messages = append(messages, llm.SystemMessage(a.systemPrompt))
	}
	messages = append(messages, history...)
	user := llm.UserMessage(instruction)
	messages = append(messages, user)

	result := &RunResult{NewMessages: []llm.Message{user}}
	defs := a.definitions()

	for i := 0; i < a.maxIterations; i++ {
		result.Iterations = i + 1
		resp, err := a.chat(ctx, messages, defs, i)
		if err != nil {
			ke := WrapLLMError(err, a.model)
			a.metrics.RecordError(ctx, ke, "agent-llm")
			log.ErrorContext(ctx, "agent.llm.error",
				slog.Int("iteration", i),
				slog.String("error", err.Error()),
				slog.String("error_code", string(errors.CodeLLMError)),
			)
			span.RecordError(ke)
			span.SetStatus(codes.Error, ke.Error())
			return nil, ke
		}
		addUsage(&result.Usage, resp.Usage)

		assistant := resp.AssistantMessage()
		messages = append(messages, assistant)
		result.NewMessages = append(result.NewMessages, assistant)

		if len(resp.ToolCalls) == 0 {
			result.Output = resp.Content
			span.SetAttributes(attribute.Int(telemetry.AttrAgentIteration, result.Iterations))
			log.DebugContext(ctx, "agent.run.complete",
				slog.Int("iterations", result.Iterations),
				slog.Int("new_messages", len(result.NewMessages)),
			)
			return result, nil
		}

		for _, call := range resp.ToolCalls {
			content := a.callTool(ctx, log, call)
			toolMsg := llm.ToolResultMessage(call.ID, content)
			messages = append(messages, toolMsg)
			result.NewMessages = append(result.NewMessages, toolMsg)
		}
		if err := ctx.Err(); err != nil {
			ke := errors.New(errors.CodeContextLost, "agent run canceled", err).WithRecoverable(false)
			span.RecordError(ke)
			return nil, ke
		}
	}

	ke := WrapTimeoutError(fmt.Errorf("no final answer after %d iterations", a.maxIterations), "agent.run", a.maxIterations)
	a.metrics.RecordError(ctx, ke, "agent")
	log.WarnContext(ctx, "agent.run.max_iterations", slog.Int("max_iterations", a.maxIterations))
	span.RecordError(ke)
	span.SetStatus(codes.Error, ke.Error())
	return nil, ke
}

func (a *Agent) chat(ctx context.Context, messages []llm.Message, defs []llm.Tool, iteration int) (*llm.ChatResponse, error) {
	llmCtx, llmSpan := a.tracer.Start(ctx, "Agent.LLM.Chat", trace.WithAttributes(
		attribute.Int(telemetry.AttrAgentIteration, iteration),
	))
	defer llmSpan.End()

	resp, err := a.llm.Chat(llmCtx, llm.ChatRequest{
		Model:       a.model,
		Messages:    messages,
		Tools:       defs,
		Temperature: a.temperature,
	})
	if err != nil {
		llmSpan.RecordError(err)
		llmSpan.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("provider returned no response")
	}
	llmSpan.SetAttributes(telemetry.LLMAttributes(a.providerName, a.model, len(messages), len(resp.ToolCalls),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)
	return resp, nil
}

// callTool runs one tool call and returns the text for the tool message.
func (a *Agent) callTool(ctx context.Context, log *slog.Logger, call llm.ToolCall) string {
	name := call.Function.Name
	tool, ok := a.toolIndex[name]
	if !ok {
		err := NewNotFoundError("tool", name)
		a.metrics.RecordToolCall(ctx, name, false)
		log.WarnContext(ctx, "agent.tool.unknown", slog.String("tool", name), slog.String("tool_call_id", call.ID))
		return "error: " + err.Error()
	}

	start := time.Now()
	toolCtx, toolSpan := a.tracer.Start(ctx, "Agent.Tool.Call")
	out, err := tool.Call(toolCtx, call.Function.Arguments)
	toolSpan.SetAttributes(telemetry.ToolAttributes(name, call.ID, time.Since(start).Milliseconds(), err == nil)...)
	if err != nil {
		toolSpan.RecordError(err)
		toolSpan.SetStatus(codes.Error, err.Error())
	}
	toolSpan.End()
	a.metrics.RecordToolCall(ctx, name, err == nil)

	if err != nil {
		ke := WrapToolError(err, name, call.ID)
		a.metrics.RecordError(ctx, ke, "agent-tool")
		log.ErrorContext(ctx, "agent.tool.error",
			slog.String("tool", name),
			slog.String("tool_call_id", call.ID),
			slog.String("error", err.Error()),
			slog.String("error_code", errors.CodeOf(err)),
		)
		return "error: " + err.Error()
	}
	log.DebugContext(ctx, "agent.tool.complete", slog.String("tool", name), slog.String("tool_call_id", call.ID))
	return out
}

func (a *Agent) definitions() []llm.Tool {
	if len(a.tools) == 0 {
		return nil
	}
	defs := make([]llm.Tool, 0, len(a.tools))
	for _, tool := range a.tools {
		defs = append(defs, tool.Definition())
	}
	return defs
}

func addUsage(total *llm.Usage, u llm.Usage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}
