// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package mcptest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// NoMentions is returned by wait_for_mentions when the wait times out.
	NoMentions = "No new messages received within the timeout period"

	defaultWaitMs = 30000
)

// Mention is a message addressed to the agent.
type Mention struct {
	ThreadID string `json:"threadId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}

// SentMessage is a message the agent posted to a thread.
type SentMessage struct {
	ThreadID string   `json:"threadId"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

// Relay is a minimal Coral relay exposing wait_for_mentions and send_message.
type Relay struct {
	*Server

	mentions chan Mention
	mu       sync.Mutex
	sent     []SentMessage
}

// NewRelay creates a relay with an empty mention queue.
func NewRelay() *Relay {
	r := &Relay{
		Server:   NewServer("coral-relay", "1.0.0"),
		mentions: make(chan Mention, 16),
	}
	r.RegisterTool(mcp.NewTool("wait_for_mentions",
		mcp.WithDescription("Wait until another agent mentions you"),
		mcp.WithNumber("timeoutMs", mcp.Description("Maximum wait in milliseconds")),
	), r.waitForMentions)
	r.RegisterTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to a thread"),
		mcp.WithString("threadId", mcp.Required(), mcp.Description("Thread to post in")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message body")),
		mcp.WithArray("mentions", mcp.Description("Agent ids to mention"), mcp.Items(map[string]any{"type": "string"})),
	), r.sendMessage)
	return r
}

// Mention queues a mention for the next wait_for_mentions call.
func (r *Relay) Mention(m Mention) {
	r.mentions <- m
}

// Sent returns the messages posted so far.
func (r *Relay) Sent() []SentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SentMessage, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *Relay) waitForMentions(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	wait := time.Duration(defaultWaitMs) * time.Millisecond
	if ms, ok := args["timeoutMs"].(float64); ok && ms > 0 {
		wait = time.Duration(ms) * time.Millisecond
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case m := <-r.mentions:
		raw, err := json.Marshal([]Mention{m})
		if err != nil {
			return nil, err
		}
		return Text(string(raw)), nil
	case <-timer.C:
		return Text(NoMentions), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Relay) sendMessage(_ context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	threadID, _ := args["threadId"].(string)
	content, _ := args["content"].(string)
	if threadID == "" {
		return Failure("threadId is required"), nil
	}
	msg := SentMessage{ThreadID: threadID, Content: content}
	if list, ok := args["mentions"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				msg.Mentions = append(msg.Mentions, s)
			}
		}
	}

	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return Text(fmt.Sprintf("Message sent to thread %s", threadID)), nil
}
