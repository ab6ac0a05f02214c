// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime drives an agent in a never-ending loop, carrying the
// conversation history from one run into the next.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/coral-aci-agent/pkg/agent"
	"github.com/jllopis/coral-aci-agent/pkg/core"
	"github.com/jllopis/coral-aci-agent/pkg/errors"
	"github.com/jllopis/coral-aci-agent/pkg/llm"
	"github.com/jllopis/coral-aci-agent/pkg/memory"
	"github.com/jllopis/coral-aci-agent/pkg/prompt"
	"github.com/jllopis/coral-aci-agent/pkg/resilience"
	"github.com/jllopis/coral-aci-agent/pkg/telemetry"
)

// Runner executes one agent run.
type Runner interface {
	Run(ctx context.Context, instruction string, history []llm.Message) (*agent.RunResult, error)
}

// State is the loop's position in its two-state machine.
type State int32

const (
	StateConnected State = iota
	StateErrorBackoff
)

func (s State) String() string {
	if s == StateErrorBackoff {
		return "error_backoff"
	}
	return "connected"
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Loop repeatedly runs the agent with the same instruction.
type Loop struct {
	runner      Runner
	instruction string
	policy      resilience.LoopPolicy
	history     *memory.History
	breaker     *resilience.CircuitBreaker
	metrics     *telemetry.LoopMetrics
	logger      *slog.Logger
	sleep       SleepFunc
	tracer      trace.Tracer

	state      atomic.Int32
	iterations atomic.Int64
	failures   atomic.Int64
}

// Option configures a Loop.
type Option func(*Loop)

// WithPolicy sets pacing and failure handling.
func WithPolicy(p resilience.LoopPolicy) Option {
	return func(l *Loop) { l.policy = p }
}

// WithHistory sets the history the loop appends to.
func WithHistory(h *memory.History) Option {
	return func(l *Loop) {
		if h != nil {
			l.history = h
		}
	}
}

// WithBreaker guards every run with cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(l *Loop) { l.breaker = cb }
}

func WithMetrics(m *telemetry.LoopMetrics) Option {
	return func(l *Loop) { l.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithSleep replaces the delay function, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(l *Loop) {
		if fn != nil {
			l.sleep = fn
		}
	}
}

// WithInstruction replaces the instruction sent on every iteration.
func WithInstruction(instruction string) Option {
	return func(l *Loop) { l.instruction = instruction }
}

// NewLoop creates a loop around runner with the default policy and an
// unbounded history.
func NewLoop(runner Runner, opts ...Option) *Loop {
	l := &Loop{
		runner:      runner,
		instruction: prompt.Instruction,
		policy:      resilience.DefaultLoopPolicy(),
		history:     memory.NewHistory(nil),
		logger:      slog.Default(),
		sleep:       sleepContext,
		tracer:      otel.Tracer("aciagent/runtime"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) State() State { return State(l.state.Load()) }

// Iterations returns the number of started iterations.
func (l *Loop) Iterations() int { return int(l.iterations.Load()) }

// Failures returns the current run of consecutive failures.
func (l *Loop) Failures() int { return int(l.failures.Load()) }

func (l *Loop) History() *memory.History { return l.history }

// Run loops until ctx is done, returning ctx.Err(). It only returns early
// when the policy caps consecutive failures and the cap is reached.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("loop.start",
		slog.Duration("idle_delay", l.policy.IdleDelay),
		slog.Duration("error_delay", l.policy.ErrorDelay),
		slog.Int("max_consecutive_failures", l.policy.MaxConsecutiveFailures),
	)
	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("loop.stop", slog.Int("iterations", l.Iterations()))
			return err
		}

		result, err := l.iterate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("loop.stop", slog.Int("iterations", l.Iterations()))
				return ctx.Err()
			}
			failures := int(l.failures.Add(1))
			l.state.Store(int32(StateErrorBackoff))
			l.metrics.RecordIteration(ctx, false)
			l.metrics.RecordError(ctx, err, "loop")

			delay := l.policy.ErrorBackoff(failures)
			attrs := append([]any{
				slog.Int("consecutive_failures", failures),
				slog.Duration("retry_in", delay),
			}, telemetry.ErrorAttrs(err)...)
			l.logger.ErrorContext(ctx, "Error in agent loop", attrs...)

			if l.policy.Exhausted(failures) {
				return errors.New(errors.CodeInternal, "agent loop gave up after consecutive failures", err).
					WithContext("failures", failures)
			}
			if err := l.sleep(ctx, delay); err != nil {
				return ctx.Err()
			}
			continue
		}

		if prev := int(l.failures.Swap(0)); prev > 0 {
			l.metrics.RecordRecovery(ctx, prev)
			l.logger.Info("loop.recovered", slog.Int("after_failures", prev))
		}
		l.state.Store(int32(StateConnected))
		l.metrics.RecordIteration(ctx, true)

		l.logger.InfoContext(ctx, "Agent result", slog.String("output", result.Output))
		l.history.Append(result.NewMessages...)
		size := l.history.Len()
		l.metrics.RecordHistorySize(ctx, size)
		l.logger.DebugContext(ctx, "Message history updated", slog.Int("messages", size))

		if err := l.sleep(ctx, l.policy.IdleDelay); err != nil {
			return ctx.Err()
		}
	}
}

func (l *Loop) iterate(ctx context.Context) (*agent.RunResult, error) {
	iteration := int(l.iterations.Add(1))
	ctx, _ = core.EnsureRunID(ctx)
	ctx, span := l.tracer.Start(ctx, "Loop.Iteration", trace.WithAttributes(
		telemetry.LoopAttributes(iteration, l.Failures(), l.history.Len())...,
	))
	defer span.End()

	var result *agent.RunResult
	run := func() error {
		return resilience.WithTimeout(ctx, l.policy.IterationTimeout, func(ctx context.Context) error {
			res, err := l.runRecovered(ctx)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	}

	var err error
	if l.breaker != nil {
		err = l.breaker.Call(ctx, run)
		l.metrics.RecordCircuitBreakerState(ctx, l.breaker.Name(), l.breaker.State().Gauge())
	} else {
		err = run()
	}
	if err == nil && result == nil {
		err = errors.New(errors.CodeInternal, "agent returned no result", nil).WithRecoverable(true)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.code", errors.CodeOf(err)))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// runRecovered turns a panic in the runner into a recoverable internal
// error so the loop backs off instead of crashing.
func (l *Loop) runRecovered(ctx context.Context) (res *agent.RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = errors.New(errors.CodeInternal, fmt.Sprintf("panic in agent run: %v", r), nil).
				WithContext("stack", string(debug.Stack())).
				WithRecoverable(true)
		}
	}()
	return l.runner.Run(ctx, l.instruction, l.history.View())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
