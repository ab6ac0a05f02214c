// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jllopis/coral-aci-agent/pkg/llm"
)

const messageFixture = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-20250514",
  "stop_reason": "tool_use",
  "content": [
    {"type": "text", "text": "Replying."},
    {"type": "tool_use", "id": "toolu_1", "name": "send_message", "input": {"threadId": "t1", "content": "answer"}}
  ],
  "usage": {"input_tokens": 11, "output_tokens": 4}
}`

func TestProviderChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageFixture))
	}))
	defer srv.Close()

	p := New(WithAPIKey("test-key"), WithBaseURL(srv.URL), WithModel("claude-test"))
	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			llm.SystemMessage("system prompt"),
			llm.UserMessage("Call wait for mentions"),
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				{ID: "a", Function: llm.FunctionCall{Name: "x", Arguments: `{}`}},
				{ID: "b", Function: llm.FunctionCall{Name: "y", Arguments: `{}`}},
			}},
			llm.ToolResultMessage("a", "one"),
			llm.ToolResultMessage("b", "two"),
		},
		Tools: []llm.Tool{{Type: llm.ToolTypeFunction, Function: llm.FunctionDef{
			Name:       "send_message",
			Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		}}},
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}

	if body["model"] != "claude-test" {
		t.Fatalf("unexpected model %v", body["model"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("expected user, assistant and merged tool-result turns, got %d", len(msgs))
	}
	if _, ok := body["system"]; !ok {
		t.Fatal("expected system prompt to be sent separately")
	}

	if resp.Content != "Replying." {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "send_message" {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	var args map[string]string
	if err := json.Unmarshal([]byte(resp.ToolCalls[0].Function.Arguments), &args); err != nil || args["threadId"] != "t1" {
		t.Fatalf("unexpected arguments %q (%v)", resp.ToolCalls[0].Function.Arguments, err)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
}
