// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package gemini

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"

	"github.com/jllopis/coral-aci-agent/pkg/llm"
)

func TestConvertMessagesMatchesToolResultsByName(t *testing.T) {
	msgs := []llm.Message{
		llm.SystemMessage("be helpful"),
		llm.UserMessage("Call wait for mentions"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
			ID:       "call_1",
			Type:     llm.ToolTypeFunction,
			Function: llm.FunctionCall{Name: "wait_for_mentions", Arguments: `{"timeoutMs":30000}`},
		}}},
		llm.ToolResultMessage("call_1", "No new messages"),
	}

	contents, system := convertMessages(msgs)
	if system != "be helpful" {
		t.Fatalf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	call := contents[1].Parts[0].FunctionCall
	if contents[1].Role != "model" || call == nil || call.Name != "wait_for_mentions" || call.Args["timeoutMs"] != float64(30000) {
		t.Fatalf("unexpected model content %+v", contents[1])
	}
	resp := contents[2].Parts[0].FunctionResponse
	if resp == nil || resp.Name != "wait_for_mentions" || resp.Response["result"] != "No new messages" {
		t.Fatalf("unexpected function response %+v", resp)
	}
}

func TestConvertToolsUppercasesTypes(t *testing.T) {
	decls, err := convertTools([]llm.Tool{{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name: "send_message",
			Parameters: json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"},` +
				`"mentions":{"type":"array","items":{"type":"string"}}},"required":["content"]}`),
		},
	}})
	if err != nil {
		t.Fatalf("convertTools: %v", err)
	}
	schema := decls[0].Parameters
	if schema == nil || schema.Type != genai.TypeObject {
		t.Fatalf("schema = %+v", schema)
	}
	if schema.Properties["content"].Type != genai.TypeString || schema.Properties["mentions"].Items.Type != genai.TypeString {
		t.Fatalf("nested types not converted: %+v", schema.Properties)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "content" {
		t.Fatalf("required = %v", schema.Required)
	}
}

func TestConvertResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{
				{Text: "checking"},
				{FunctionCall: &genai.FunctionCall{Name: "send_message", Args: map[string]any{"content": "hi"}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
	}
	out := convertResponse(resp)
	if out.Content != "checking" || len(out.ToolCalls) != 1 {
		t.Fatalf("unexpected response %+v", out)
	}
	if tc := out.ToolCalls[0]; tc.ID != "send_message_1" || tc.Function.Arguments != `{"content":"hi"}` {
		t.Fatalf("tool call = %+v", tc)
	}
	if out.Usage.TotalTokens != 5 {
		t.Fatalf("usage = %+v", out.Usage)
	}
	if empty := convertResponse(nil); empty.Content != "" || empty.ToolCalls != nil {
		t.Fatalf("nil response = %+v", empty)
	}
}
