// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/jllopis/coral-aci-agent/pkg/errors"
)

// CLIError wraps AgentError with a hint for the operator.
type CLIError struct {
	*errors.AgentError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ae *errors.AgentError, hint string) *CLIError {
	return &CLIError{AgentError: ae, Hint: hint}
}

// Error returns the message with the hint appended.
func (e *CLIError) Error() string {
	if e.AgentError == nil {
		return "unknown error"
	}
	msg := e.AgentError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// PrintError writes the error and hint to w.
func (e *CLIError) PrintError(w io.Writer) {
	if e.AgentError == nil {
		fmt.Fprintln(w, "Error: unknown error")
		return
	}
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", e.Code, msg)
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// NewConfigError wraps a configuration loading failure.
func NewConfigError(err error, configPath string) *CLIError {
	ae := errors.New(errors.CodeConfig, "configuration error", err).
		WithContext("config_path", configPath)
	hint := "check the environment variables and .env file"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(ae, hint)
}

// WrapRunError attaches a hint matching the failure's code.
func WrapRunError(err error) *CLIError {
	code := errors.As(err).Code
	var hint string
	switch code {
	case errors.CodeConnection:
		hint = "check CORAL_SSE_URL is reachable and that the ACI launcher (uvx aci-mcp) is installed"
	case errors.CodeTimeout:
		hint = "the server did not answer in time; check its health or raise the timeouts"
	case errors.CodeConfig:
		hint = "check MODEL_PROVIDER, MODEL_NAME and the telemetry settings"
	case errors.CodeLLMError:
		hint = "check the model API key and quota"
	}
	return NewCLIError(errors.New(code, "agent stopped", err), hint)
}

// FormatErrorCode returns a readable name for an error code.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeConfig:
		return "Configuration Error"
	case errors.CodeConnection:
		return "Connection Error"
	case errors.CodeTimeout:
		return "Timeout"
	case errors.CodeLLMError:
		return "Model Error"
	case errors.CodeToolFailure:
		return "Tool Failure"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	default:
		return "Internal Error"
	}
}
