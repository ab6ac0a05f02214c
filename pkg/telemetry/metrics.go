// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/coral-aci-agent/pkg/errors"
)

// LoopMetrics tracks the agent loop: iterations, failures by code, tool
// calls and the size of the conversation history.
type LoopMetrics struct {
	iterations  metric.Int64Counter
	errors      metric.Int64Counter
	recoveries  metric.Int64Counter
	toolCalls   metric.Int64Counter
	historySize metric.Int64Gauge
	breaker     metric.Int64Gauge
}

// NewLoopMetrics creates loop instruments on the global meter provider.
func NewLoopMetrics() (*LoopMetrics, error) {
	return NewLoopMetricsWithMeter(otel.Meter("aciagent/loop"))
}

// NewLoopMetricsWithMeter creates loop instruments on the given meter.
func NewLoopMetricsWithMeter(meter metric.Meter) (*LoopMetrics, error) {
	iterations, err := meter.Int64Counter(
		"aciagent.loop.iterations",
		metric.WithDescription("Completed agent loop iterations by outcome"),
	)
	if err != nil {
		return nil, err
	}
	errCounter, err := meter.Int64Counter(
		"aciagent.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}
	recoveries, err := meter.Int64Counter(
		"aciagent.errors.recovered",
		metric.WithDescription("Successful iterations after one or more failures"),
	)
	if err != nil {
		return nil, err
	}
	toolCalls, err := meter.Int64Counter(
		"aciagent.tool.calls",
		metric.WithDescription("Tool invocations by tool name and success"),
	)
	if err != nil {
		return nil, err
	}
	historySize, err := meter.Int64Gauge(
		"aciagent.history.messages",
		metric.WithDescription("Messages held in the conversation history"),
	)
	if err != nil {
		return nil, err
	}
	breaker, err := meter.Int64Gauge(
		"aciagent.circuitbreaker.state",
		metric.WithDescription("Circuit breaker state (0=open, 1=half-open, 2=closed)"),
	)
	if err != nil {
		return nil, err
	}
	return &LoopMetrics{
		iterations:  iterations,
		errors:      errCounter,
		recoveries:  recoveries,
		toolCalls:   toolCalls,
		historySize: historySize,
		breaker:     breaker,
	}, nil
}

// RecordIteration counts one finished iteration.
func (m *LoopMetrics) RecordIteration(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.iterations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordError counts err under its error code.
func (m *LoopMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	ae := errors.As(err)
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.code", errors.CodeOf(err)),
		attribute.String("component", component),
		attribute.String("recoverable", ae.RecoverableString()),
	))
}

// RecordRecovery counts a successful iteration following failures.
func (m *LoopMetrics) RecordRecovery(ctx context.Context, afterFailures int) {
	if m == nil {
		return
	}
	m.recoveries.Add(ctx, 1, metric.WithAttributes(attribute.Int("failures", afterFailures)))
}

// RecordToolCall counts one tool invocation.
func (m *LoopMetrics) RecordToolCall(ctx context.Context, tool string, success bool) {
	if m == nil {
		return
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrToolName, tool),
		attribute.Bool(AttrToolSuccess, success),
	))
}

// RecordHistorySize records the current history length.
func (m *LoopMetrics) RecordHistorySize(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.historySize.Record(ctx, int64(n))
}

// RecordCircuitBreakerState records the breaker state for component.
func (m *LoopMetrics) RecordCircuitBreakerState(ctx context.Context, component string, state int64) {
	if m == nil {
		return
	}
	m.breaker.Record(ctx, state, metric.WithAttributes(attribute.String("component", component)))
}
