// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap turns configuration into connection descriptions for the
// two tool servers and opens them.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jllopis/coral-aci-agent/pkg/config"
	kerrors "github.com/jllopis/coral-aci-agent/pkg/errors"
	"github.com/jllopis/coral-aci-agent/pkg/mcp"
)

// Server names used in logs and error attributes.
const (
	CoralServer = "coral"
	ACIServer   = "aci"
)

const (
	TransportSSE   = "sse"
	TransportStdio = "stdio"
)

// ServerConnectionConfig describes how to reach one tool server.
type ServerConnectionConfig interface {
	Transport() string
}

// NetworkConfig reaches a server over Server-Sent Events.
type NetworkConfig struct {
	Name        string
	EndpointURL string
	// ReadTimeout bounds the wait for a response from the server.
	ReadTimeout time.Duration
	// TotalTimeout bounds a single request.
	TotalTimeout time.Duration
}

func (NetworkConfig) Transport() string { return TransportSSE }

// DefaultPassEnv lists the parent variables a launched server needs to find
// its interpreter and cache. Everything else, provider keys included, stays
// in the agent process.
var DefaultPassEnv = []string{
	"PATH", "HOME", "USER", "LOGNAME", "TMPDIR", "LANG", "LC_ALL", "TZ",
	"XDG_CACHE_HOME", "XDG_DATA_HOME", "UV_CACHE_DIR", "SYSTEMROOT",
}

// ProcessConfig launches a server as a subprocess speaking over stdio. The
// child sees only the PassEnv variables set in the parent plus Env, which
// wins on conflict.
type ProcessConfig struct {
	Name         string
	Command      string
	Args         []string
	Env          map[string]string
	PassEnv      []string
	TotalTimeout time.Duration
}

func (ProcessConfig) Transport() string { return TransportStdio }

// Environ returns the child's whole environment as sorted KEY=VALUE pairs:
// the PassEnv variables present in the parent, then Env on top.
func (p ProcessConfig) Environ() []string {
	merged := make(map[string]string, len(p.PassEnv)+len(p.Env))
	for _, k := range p.PassEnv {
		if v, ok := os.LookupEnv(k); ok {
			merged[k] = v
		}
	}
	for k, v := range p.Env {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for _, k := range sortedKeys(merged) {
		out = append(out, k+"="+merged[k])
	}
	return out
}

// String renders the command line with environment values hidden.
func (p ProcessConfig) String() string {
	var b strings.Builder
	for _, k := range sortedKeys(p.Env) {
		b.WriteString(k)
		b.WriteString("=[REDACTED] ")
	}
	b.WriteString(p.Command)
	for _, a := range p.Args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	return b.String()
}

func (p ProcessConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("command", p.Command),
		slog.Any("args", p.Args),
		slog.Any("env_keys", sortedKeys(p.Env)),
		slog.Any("pass_env", p.PassEnv),
		slog.Duration("timeout", p.TotalTimeout),
	)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CoralURL appends the agent identity to the relay base URL.
func CoralURL(base, agentID, description string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "agentId=" + url.QueryEscape(agentID) +
		"&agentDescription=" + url.QueryEscape(description)
}

// Build derives both server descriptions from cfg.
func Build(cfg *config.Config) (NetworkConfig, ProcessConfig) {
	coral := NetworkConfig{
		Name:         CoralServer,
		EndpointURL:  CoralURL(cfg.Coral.SSEURL, cfg.Coral.AgentID, cfg.Coral.AgentDescription),
		ReadTimeout:  cfg.Coral.ReadTimeout,
		TotalTimeout: cfg.Coral.Timeout,
	}

	args := []string{
		"aci-mcp",
		"unified-server",
		"--linked-account-owner-id", cfg.ACI.OwnerID,
		"--port", strconv.Itoa(cfg.ACI.Port),
	}
	if cfg.ACI.AllowedAppsOnly {
		args = append(args, "--allowed-apps-only")
	}
	aci := ProcessConfig{
		Name:         ACIServer,
		Command:      cfg.ACI.Command,
		Args:         args,
		Env:          map[string]string{"ACI_API_KEY": cfg.ACI.APIKey},
		PassEnv:      append(append([]string{}, DefaultPassEnv...), cfg.ACI.PassEnv...),
		TotalTimeout: cfg.ACI.Timeout,
	}
	return coral, aci
}

// Open connects to the server described by sc. For SSE servers ctx scopes
// the event stream and must outlive the client.
func Open(ctx context.Context, sc ServerConnectionConfig, opts ...mcp.ClientOption) (*mcp.Client, error) {
	switch c := sc.(type) {
	case NetworkConfig:
		clientOpts := []mcp.ClientOption{mcp.WithName(c.Name)}
		if c.TotalTimeout > 0 {
			clientOpts = append(clientOpts, mcp.WithTimeout(c.TotalTimeout))
		}
		if c.ReadTimeout > 0 {
			tr := http.DefaultTransport.(*http.Transport).Clone()
			tr.ResponseHeaderTimeout = c.ReadTimeout
			clientOpts = append(clientOpts, mcp.WithHTTPClient(&http.Client{Transport: tr}))
		}
		return mcp.NewClientWithSSE(ctx, c.EndpointURL, append(clientOpts, opts...)...)
	case ProcessConfig:
		if c.Command == "" {
			return nil, kerrors.New(kerrors.CodeConfig, "no command configured for "+c.Name, nil)
		}
		clientOpts := []mcp.ClientOption{mcp.WithName(c.Name)}
		if c.TotalTimeout > 0 {
			clientOpts = append(clientOpts, mcp.WithTimeout(c.TotalTimeout))
		}
		return mcp.NewClientWithStdio(ctx, c.Command, c.Args, c.Environ(), append(clientOpts, opts...)...)
	default:
		return nil, kerrors.New(kerrors.CodeConfig, fmt.Sprintf("unsupported server config %T", sc), nil)
	}
}

// Servers holds the two connections for the life of the process.
type Servers struct {
	Coral *mcp.Client
	ACI   *mcp.Client
}

// OpenAll connects to coral and then to aci. If aci fails the coral
// connection is closed before returning.
func OpenAll(ctx context.Context, coral NetworkConfig, aci ProcessConfig, logger *slog.Logger, opts ...mcp.ClientOption) (*Servers, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("bootstrap.server.open", slog.String("server", coral.Name), slog.String("url", coral.EndpointURL))
	coralClient, err := Open(ctx, coral, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", coral.Name, err)
	}

	logger.Info("bootstrap.server.open", slog.String("server", aci.Name), slog.Any("process", aci))
	aciClient, err := Open(ctx, aci, opts...)
	if err != nil {
		_ = coralClient.Close()
		return nil, fmt.Errorf("open %s: %w", aci.Name, err)
	}

	logger.Info("bootstrap.servers.ready")
	return &Servers{Coral: coralClient, ACI: aciClient}, nil
}

// Close closes both connections.
func (s *Servers) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.ACI != nil {
		errs = append(errs, s.ACI.Close())
	}
	if s.Coral != nil {
		errs = append(errs, s.Coral.Close())
	}
	return errors.Join(errs...)
}
