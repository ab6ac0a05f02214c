// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt renders the agent's system prompt.
package prompt

import "strings"

// Placeholders substituted by BuildSystemPrompt.
const (
	CoralToolsPlaceholder = "{coral_tools_description}"
	AgentToolsPlaceholder = "{agent_tools_description}"
)

// Instruction is sent to the agent on every loop iteration.
const Instruction = "Call wait for mentions to wait for instructions from other agents"

// Template is the fixed protocol the agent follows.
const Template = `You are an agent interacting with the tools from Coral Server and having your own tools. Your task is to perform any instructions coming from any agent.
Follow these steps in order:
1. Call wait_for_mentions from coral tools (timeoutMs: 30000) to receive mentions from other agents.
2. When you receive a mention, keep the thread ID and the sender ID.
3. Think about the content (instruction) of the message and check only from the list of your tools available for you to action.
4. Check the tool schema and make a plan in steps for the task you want to perform.
5. Only call the tools you need to perform for each step of the plan to complete the instruction in the content.
6. Think about the content and see if you have executed the instruction to the best of your ability and the tools. Make this your response as "answer".
7. Use ` + "`send_message`" + ` from coral tools to send a message in the same thread ID to the sender Id you received the mention from, with content: "answer".
8. If any error occurs, use ` + "`send_message`" + ` to send a message in the same thread ID to the sender Id you received the mention from, with content: "error".
9. Always respond back to the sender agent even if you have no answer or error.
10. Repeat the process from step 1.
These are the list of coral tools: ` + CoralToolsPlaceholder + `
These are the list of your tools: ` + AgentToolsPlaceholder + `
`

// BuildSystemPrompt fills the template with both tool descriptions. The
// substitution is a single pass, so the inserted text appears verbatim even
// if it contains placeholder-like or brace-escaped sequences.
func BuildSystemPrompt(coralTools, agentTools string) string {
	return strings.NewReplacer(
		CoralToolsPlaceholder, coralTools,
		AgentToolsPlaceholder, agentTools,
	).Replace(Template)
}
