// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span and metric attribute keys. LLM keys follow the gen_ai conventions.
const (
	AttrAgentID        = "aciagent.agent.id"
	AttrAgentModel     = "aciagent.agent.model"
	AttrAgentRunID     = "aciagent.agent.run_id"
	AttrAgentIteration = "aciagent.agent.iteration"
	AttrAgentMaxIter   = "aciagent.agent.max_iterations"

	AttrLoopIteration = "aciagent.loop.iteration"
	AttrLoopFailures  = "aciagent.loop.consecutive_failures"
	AttrHistoryLength = "aciagent.history.length"

	AttrServerName = "aciagent.mcp.server"
	AttrToolsCount = "aciagent.tools.count"

	AttrToolName       = "aciagent.tool.name"
	AttrToolCallID     = "aciagent.tool.call_id"
	AttrToolDurationMs = "aciagent.tool.duration_ms"
	AttrToolSuccess    = "aciagent.tool.success"

	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
)

// AgentAttributes describes an agent run.
func AgentAttributes(agentID, model, runID string, maxIterations int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.Int(AttrAgentMaxIter, maxIterations),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrAgentModel, model))
	}
	if runID != "" {
		attrs = append(attrs, attribute.String(AttrAgentRunID, runID))
	}
	return attrs
}

// ToolAttributes describes a single tool invocation.
func ToolAttributes(name, callID string, durationMs int64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolCallID, callID),
		attribute.Int64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// LLMAttributes describes one model call and its token usage.
func LLMAttributes(provider, model string, messages, toolCalls, promptTokens, completionTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLLMProvider, provider),
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, messages),
		attribute.Int(AttrLLMToolCalls, toolCalls),
		attribute.Int(AttrLLMTokensInput, promptTokens),
		attribute.Int(AttrLLMTokensOutput, completionTokens),
		attribute.Int(AttrLLMTokensTotal, promptTokens+completionTokens),
	}
}

// LoopAttributes describes one loop iteration.
func LoopAttributes(iteration, failures, historyLen int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrLoopIteration, iteration),
		attribute.Int(AttrLoopFailures, failures),
		attribute.Int(AttrHistoryLength, historyLen),
	}
}
