package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMockProvider(t *testing.T) {
	p := &MockProvider{Response: "hello"}
	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Content != "hello" {
		t.Fatalf("expected hello, got %q", resp.Content)
	}

	failing := &MockProvider{Err: errors.New("down")}
	if _, err := failing.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseModelRef(t *testing.T) {
	ref, err := ParseModelRef("OpenAI:gpt-4o-mini")
	if err != nil {
		t.Fatalf("ParseModelRef error: %v", err)
	}
	if ref.Provider != "openai" || ref.Name != "gpt-4o-mini" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if ref.String() != "openai:gpt-4o-mini" {
		t.Fatalf("String() = %s", ref.String())
	}
	for _, bad := range []string{"", "openai", ":model", "openai:"} {
		if _, err := ParseModelRef(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestAssistantMessageCopiesToolCalls(t *testing.T) {
	resp := &ChatResponse{
		Content:   "",
		ToolCalls: []ToolCall{{ID: "1", Type: ToolTypeFunction, Function: FunctionCall{Name: "wait_for_mentions"}}},
	}
	msg := resp.AssistantMessage()
	if msg.Role != RoleAssistant || len(msg.ToolCalls) != 1 {
		t.Fatalf("unexpected message %+v", msg)
	}
	resp.ToolCalls[0].ID = "changed"
	if msg.ToolCalls[0].ID != "1" {
		t.Fatal("assistant message should not alias response tool calls")
	}
}

func TestOllamaChat(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"send_message","arguments":{"content":"answer"}}}]},"done":true,"eval_count":3,"prompt_eval_count":4}`))
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, WithOllamaModel("llama3.1"), WithOllamaAPIKey("secret"))
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			SystemMessage("sys"),
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Function: FunctionCall{Name: "x", Arguments: `{"k":1}`}}}},
			ToolResultMessage("a", "ok"),
		},
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if got.Model != "llama3.1" || got.Stream {
		t.Fatalf("unexpected request %+v", got)
	}
	if string(got.Messages[1].ToolCalls[0].Function.Arguments) != `{"k":1}` {
		t.Fatalf("tool call arguments not sent as object: %s", got.Messages[1].ToolCalls[0].Function.Arguments)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Arguments != `{"content":"answer"}` {
		t.Fatalf("unexpected tool calls %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
}

func TestOllamaChatStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "m"}); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
