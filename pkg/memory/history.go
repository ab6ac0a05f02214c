// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory holds the agent's conversation history.
package memory

import (
	"sync"

	"github.com/jllopis/coral-aci-agent/pkg/llm"
)

// Strategy selects the part of the history sent to the model.
// It must not modify its input.
type Strategy interface {
	View(messages []llm.Message) []llm.Message
}

// History is an append-only, concurrency-safe message log. Stored messages
// are never evicted; a Strategy only shapes what View returns.
type History struct {
	mu       sync.RWMutex
	messages []llm.Message
	strategy Strategy
}

// NewHistory creates an empty history. A nil strategy means unbounded.
func NewHistory(strategy Strategy) *History {
	return &History{strategy: strategy}
}

// Append adds messages in order.
func (h *History) Append(msgs ...llm.Message) {
	if len(msgs) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// Len returns the number of stored messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Messages returns a copy of every stored message.
func (h *History) Messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneMessages(h.messages)
}

// View returns the messages to send to the model.
func (h *History) View() []llm.Message {
	msgs := h.Messages()
	if h.strategy == nil {
		return msgs
	}
	return h.strategy.View(msgs)
}

// WindowStrategy keeps only the last MaxMessages messages. The window is
// widened backwards rather than start on a tool result whose assistant
// tool call would be cut off. MaxMessages <= 0 keeps everything.
type WindowStrategy struct {
	MaxMessages int
}

// NewWindowStrategy creates a window strategy.
func NewWindowStrategy(maxMessages int) *WindowStrategy {
	return &WindowStrategy{MaxMessages: maxMessages}
}

// View implements Strategy.
func (w *WindowStrategy) View(messages []llm.Message) []llm.Message {
	if w == nil || w.MaxMessages <= 0 || len(messages) <= w.MaxMessages {
		return messages
	}
	start := len(messages) - w.MaxMessages
	for start > 0 && messages[start].Role == llm.RoleTool {
		start--
	}
	return messages[start:]
}

func cloneMessages(msgs []llm.Message) []llm.Message {
	if msgs == nil {
		return nil
	}
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.ToolCalls != nil {
			out[i].ToolCalls = append([]llm.ToolCall(nil), m.ToolCalls...)
		}
	}
	return out
}
