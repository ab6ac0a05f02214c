// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package app assembles the agent process: telemetry, tool servers, prompt,
// model and the run loop.
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jllopis/coral-aci-agent/pkg/agent"
	"github.com/jllopis/coral-aci-agent/pkg/bootstrap"
	"github.com/jllopis/coral-aci-agent/pkg/config"
	"github.com/jllopis/coral-aci-agent/pkg/core"
	"github.com/jllopis/coral-aci-agent/pkg/errors"
	"github.com/jllopis/coral-aci-agent/pkg/llm"
	"github.com/jllopis/coral-aci-agent/pkg/mcp"
	"github.com/jllopis/coral-aci-agent/pkg/memory"
	"github.com/jllopis/coral-aci-agent/pkg/prompt"
	"github.com/jllopis/coral-aci-agent/pkg/resilience"
	"github.com/jllopis/coral-aci-agent/pkg/runtime"
	"github.com/jllopis/coral-aci-agent/pkg/telemetry"
)

// Version is reported to telemetry.
const Version = "0.1.0"

// ToolsBanner separates the two tool dumps on stdout.
const ToolsBanner = "=== ACI TOOLS ==="

const shutdownTimeout = 5 * time.Second

// App runs the agent process.
type App struct {
	cfg      *config.Config
	stdout   io.Writer
	logger   *slog.Logger
	provider llm.Provider
	loopOpts []runtime.Option
}

type Option func(*App)

// WithStdout redirects the tool dumps.
func WithStdout(w io.Writer) Option {
	return func(a *App) {
		if w != nil {
			a.stdout = w
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithProvider bypasses provider selection from config.
func WithProvider(p llm.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithLoopOptions adds options applied after the configured ones.
func WithLoopOptions(opts ...runtime.Option) Option {
	return func(a *App) { a.loopOpts = append(a.loopOpts, opts...) }
}

// New creates an App for cfg.
func New(cfg *config.Config, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		stdout: os.Stdout,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run connects to both servers and loops until ctx is canceled. Setup
// failures are returned; a canceled context returns nil.
func (a *App) Run(ctx context.Context) error {
	shutdown, err := a.initTelemetry()
	if err != nil {
		return err
	}
	defer a.flush(shutdown)

	a.logStartup()

	servers, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer a.closeServers(servers)

	coral, aci := a.list(ctx, servers)
	coralTools, aciTools := a.describe(ctx, coral, aci)
	systemPrompt := prompt.BuildSystemPrompt(coralTools, aciTools)

	metrics := a.metrics()
	ag, err := a.buildAgent(ctx, systemPrompt, metrics, coral, aci)
	if err != nil {
		return err
	}

	loop := runtime.NewLoop(ag, a.loopOptions(metrics)...)
	a.logger.Info("Multi Server Connection Established")
	if err := loop.Run(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("agent.shutdown", slog.Int("iterations", loop.Iterations()))
	return nil
}

// ListTools prints both tool catalogs and returns.
func (a *App) ListTools(ctx context.Context) error {
	servers, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer a.closeServers(servers)
	coral, aci := a.list(ctx, servers)
	a.describe(ctx, coral, aci)
	return nil
}

func (a *App) initTelemetry() (telemetry.ShutdownFunc, error) {
	tc := a.cfg.Telemetry
	shutdown, err := telemetry.InitWithConfig(tc.ServiceName, Version, telemetry.Config{
		Exporter:     tc.Exporter,
		OTLPEndpoint: tc.OTLPEndpoint,
		OTLPInsecure: tc.OTLPInsecure,
	})
	if err != nil {
		return nil, errors.New(errors.CodeConfig, "telemetry setup failed", err)
	}
	return shutdown, nil
}

func (a *App) flush(shutdown telemetry.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		a.logger.Warn("telemetry.shutdown.error", slog.String("error", err.Error()))
	}
}

func (a *App) logStartup() {
	a.logger.Info("config.loaded", slog.Any("config", a.cfg))
	a.logger.Info(fmt.Sprintf("CORAL_SSE_URL: %s", a.cfg.Coral.SSEURL))
	a.logger.Info(fmt.Sprintf("CORAL_AGENT_ID: %s", a.cfg.Coral.AgentID))
	for _, w := range a.cfg.Warnings() {
		a.logger.Warn("config.missing", slog.String("detail", w))
	}
}

func (a *App) open(ctx context.Context) (*bootstrap.Servers, error) {
	coral, aci := bootstrap.Build(a.cfg)
	a.logger.Info(fmt.Sprintf("Connecting to Coral Server: %s", coral.EndpointURL))

	servers, err := bootstrap.OpenAll(ctx, coral, aci, a.logger)
	if err != nil {
		a.logger.Error("bootstrap.failed", telemetry.ErrorAttrs(err)...)
		return nil, err
	}
	return servers, nil
}

func (a *App) closeServers(servers *bootstrap.Servers) {
	if err := servers.Close(); err != nil {
		a.logger.Warn("bootstrap.close.error", slog.String("error", err.Error()))
	}
}

// listing is one server's catalog fetched once at startup. It replays the
// same result to the prompt renderer and the tool adapter.
type listing struct {
	client  *mcp.Client
	catalog mcp.Catalog
	err     error
}

func (l listing) Name() string { return l.client.Name() }

func (l listing) Catalog(context.Context) (mcp.Catalog, error) {
	return l.catalog, l.err
}

func (a *App) list(ctx context.Context, servers *bootstrap.Servers) (listing, listing) {
	fetch := func(c *mcp.Client) listing {
		catalog, err := c.Catalog(ctx)
		return listing{client: c, catalog: catalog, err: err}
	}
	return fetch(servers.Coral), fetch(servers.ACI)
}

func (a *App) describe(ctx context.Context, coral, aci listing) (string, string) {
	coralTools := mcp.DescribeTools(ctx, coral, a.logger)
	aciTools := mcp.DescribeTools(ctx, aci, a.logger)
	fmt.Fprintln(a.stdout, coralTools)
	fmt.Fprintln(a.stdout, ToolsBanner)
	fmt.Fprintln(a.stdout, aciTools)
	return coralTools, aciTools
}

func (a *App) buildAgent(ctx context.Context, systemPrompt string, metrics *telemetry.LoopMetrics, listings ...listing) (*agent.Agent, error) {
	provider := a.provider
	ref := llm.ModelRef{Provider: a.cfg.Model.Provider, Name: a.cfg.Model.Name}
	if provider == nil {
		var err error
		provider, ref, err = NewProvider(ctx, a.cfg.Model)
		if err != nil {
			return nil, err
		}
	}

	var tools []core.Tool
	for _, l := range listings {
		tools = append(tools, a.tools(l)...)
	}

	opts := []agent.Option{
		agent.WithModel(ref.Name),
		agent.WithProviderName(ref.Provider),
		agent.WithSystemPrompt(systemPrompt),
		agent.WithTools(tools...),
		agent.WithMaxIterations(a.cfg.Agent.MaxIterations),
		agent.WithTemperature(a.cfg.Model.Temperature),
		agent.WithLogger(a.logger),
		agent.WithMetrics(metrics),
	}
	agentID := a.cfg.Coral.AgentID
	if agentID == "" {
		agentID = "aci_agent"
	}
	return agent.New(agentID, provider, opts...)
}

// tools adapts a server's catalog. A server that could not list its tools
// contributes none and the agent runs without them.
func (a *App) tools(l listing) []core.Tool {
	if l.err != nil {
		a.logger.Error("agent.tools.unavailable", append([]any{slog.String("server", l.Name())}, telemetry.ErrorAttrs(l.err)...)...)
		return nil
	}
	tools, err := mcp.Adapt(l.catalog, l.client)
	if err != nil {
		a.logger.Error("agent.tools.invalid", append([]any{slog.String("server", l.Name())}, telemetry.ErrorAttrs(err)...)...)
		return nil
	}
	a.logger.Info("agent.tools.loaded", slog.String("server", l.Name()), slog.Int("count", len(tools)))
	return tools
}

func (a *App) metrics() *telemetry.LoopMetrics {
	m, err := telemetry.NewLoopMetrics()
	if err != nil {
		a.logger.Warn("telemetry.metrics.disabled", slog.String("error", err.Error()))
		return nil
	}
	return m
}

func (a *App) loopOptions(metrics *telemetry.LoopMetrics) []runtime.Option {
	lc := a.cfg.Loop
	policy := resilience.LoopPolicy{
		IdleDelay:              lc.IdleDelay,
		ErrorDelay:             lc.ErrorDelay,
		MaxErrorDelay:          lc.MaxErrorDelay,
		Multiplier:             lc.Multiplier,
		MaxConsecutiveFailures: lc.MaxConsecutiveFailures,
		IterationTimeout:       lc.IterationTimeout,
	}

	var strategy memory.Strategy
	if n := a.cfg.History.MaxMessages; n > 0 {
		strategy = memory.NewWindowStrategy(n)
	}

	opts := []runtime.Option{
		runtime.WithPolicy(policy),
		runtime.WithHistory(memory.NewHistory(strategy)),
		runtime.WithLogger(a.logger),
		runtime.WithMetrics(metrics),
	}
	if lc.Breaker.Enabled {
		opts = append(opts, runtime.WithBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "agent",
			FailureThreshold: lc.Breaker.FailureThreshold,
			Timeout:          lc.Breaker.Timeout,
			OnStateChange: func(name string, from, to resilience.CircuitBreakerState) {
				a.logger.Warn("loop.breaker.transition",
					slog.String("breaker", name),
					slog.String("from", string(from)),
					slog.String("to", string(to)),
				)
			},
		})))
	}
	return append(opts, a.loopOpts...)
}
