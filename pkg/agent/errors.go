// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"github.com/jllopis/coral-aci-agent/pkg/errors"
)

// WrapLLMError wraps a provider error with the model it came from.
func WrapLLMError(err error, model string) *errors.AgentError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeLLMError, "LLM call failed", err).
		WithContext("model", model).
		WithAttribute("llm.model", model).
		WithRecoverable(true)
}

// WrapToolError wraps a tool execution error with the tool and call id.
func WrapToolError(err error, toolName, toolCallID string) *errors.AgentError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeToolFailure, "tool execution failed", err).
		WithContext("tool_name", toolName).
		WithContext("tool_call_id", toolCallID).
		WithAttribute("tool.name", toolName).
		WithRecoverable(true)
}

// WrapTimeoutError reports a run that hit its iteration limit.
func WrapTimeoutError(err error, operation string, maxIterations int) *errors.AgentError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeTimeout, "operation exceeded max iterations", err).
		WithContext("operation", operation).
		WithContext("max_iterations", maxIterations).
		WithRecoverable(true)
}

// NewInvalidInputError creates a non-recoverable invalid input error.
func NewInvalidInputError(msg string) *errors.AgentError {
	return errors.New(errors.CodeInvalidInput, msg, nil).
		WithRecoverable(false)
}

// NewNotFoundError reports a missing resource, such as an unknown tool.
func NewNotFoundError(resource, name string) *errors.AgentError {
	return errors.New(errors.CodeNotFound, resource+" "+name+" not found", nil).
		WithContext("resource", resource).
		WithContext("name", name).
		WithRecoverable(false)
}
