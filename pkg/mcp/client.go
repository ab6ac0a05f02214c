// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp connects to MCP tool servers and adapts their tools for the agent.
package mcp

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/coral-aci-agent/pkg/errors"
	"github.com/jllopis/coral-aci-agent/pkg/resilience"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultInitTimeout = 30 * time.Second
	defaultRetries     = 2
	defaultBackoff     = 200 * time.Millisecond
	defaultCacheTTL    = 30 * time.Second

	clientName    = "coral-aci-agent"
	clientVersion = "0.1.0"
)

// Session is the subset of an mcp-go client used by Client.
type Session interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// ClientOption customizes the MCP client wrapper behavior.
type ClientOption func(*Client)

// WithName labels the client in logs and errors.
func WithName(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithInitTimeout bounds the initialize handshake.
func WithInitTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.initTimeout = timeout
		}
	}
}

// WithRetry configures retries and base backoff for tool listing.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.listRetry.MaxAttempts = retries + 1
		}
		if backoff > 0 {
			c.listRetry.InitialDelay = backoff
		}
	}
}

// WithCallRetry configures retries for tool invocations. Tool calls may have
// side effects, so the default is none.
func WithCallRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.callRetry.MaxAttempts = retries + 1
		}
		if backoff > 0 {
			c.callRetry.InitialDelay = backoff
		}
	}
}

// WithToolCacheTTL sets the tool discovery cache TTL. Use 0 to disable caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithHTTPClient sets the HTTP client used by network transports.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeaders adds HTTP headers to network transport requests.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// Client wraps an MCP session with timeouts, retries and a tool cache.
type Client struct {
	session     Session
	name        string
	timeout     time.Duration
	initTimeout time.Duration
	listRetry   resilience.RetryConfig
	callRetry   resilience.RetryConfig
	cacheTTL    time.Duration
	httpClient  *http.Client
	headers     map[string]string

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

func newClient(opts ...ClientOption) *Client {
	c := &Client{
		name:        "mcp",
		timeout:     defaultTimeout,
		initTimeout: defaultInitTimeout,
		listRetry:   resilience.DefaultRetryConfig().WithMaxAttempts(defaultRetries + 1).WithInitialDelay(defaultBackoff),
		callRetry:   resilience.DefaultRetryConfig().WithMaxAttempts(1).WithInitialDelay(defaultBackoff),
		cacheTTL:    defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.listRetry.IsRecoverable = retryable
	c.callRetry.IsRecoverable = retryable
	return c
}

// NewClient wraps an already initialized session.
func NewClient(s Session, opts ...ClientOption) *Client {
	c := newClient(opts...)
	c.session = s
	return c
}

// NewClientWithSSE connects to an MCP server over Server-Sent Events and
// performs the initialize handshake. ctx scopes the event stream, so it
// should live as long as the client.
func NewClientWithSSE(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c := newClient(opts...)

	var topts []transport.ClientOption
	if c.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(c.httpClient))
	}
	if len(c.headers) > 0 {
		topts = append(topts, transport.WithHeaders(c.headers))
	}
	sseClient, err := client.NewSSEMCPClient(url, topts...)
	if err != nil {
		return nil, c.connErr("create sse client", err)
	}
	if err := sseClient.Start(ctx); err != nil {
		return nil, c.connErr("start sse stream", err)
	}
	if err := c.initialize(ctx, sseClient); err != nil {
		_ = sseClient.Close()
		return nil, err
	}
	c.session = newRawSchemaSession(sseClient)
	return c, nil
}

// NewClientWithStdio launches command as a subprocess speaking MCP over
// stdio. env is the complete KEY=VALUE environment of the subprocess; nothing
// is inherited from the parent.
func NewClientWithStdio(ctx context.Context, command string, args, env []string, opts ...ClientOption) (*Client, error) {
	c := newClient(opts...)

	stdioClient, err := client.NewStdioMCPClientWithOptions(command, env, args,
		transport.WithCommandFunc(exactEnvCommand))
	if err != nil {
		return nil, c.connErr("launch stdio server", err)
	}
	if err := stdioClient.Start(ctx); err != nil {
		_ = stdioClient.Close()
		return nil, c.connErr("start stdio server", err)
	}
	if err := c.initialize(ctx, stdioClient); err != nil {
		_ = stdioClient.Close()
		return nil, err
	}
	c.session = newRawSchemaSession(stdioClient)
	return c, nil
}

// exactEnvCommand builds the subprocess with env as its whole environment.
// A nil cmd.Env would inherit os.Environ, so it is never left nil.
func exactEnvCommand(ctx context.Context, command string, env, args []string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append([]string{}, env...)
	return cmd, nil
}

func (c *Client) initialize(ctx context.Context, mc *client.Client) error {
	initCtx, cancel := context.WithTimeout(ctx, c.initTimeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	if _, err := mc.Initialize(initCtx, req); err != nil {
		return c.connErr("initialize", err)
	}
	return nil
}

// Name returns the client label.
func (c *Client) Name() string {
	return c.name
}

// ListTools retrieves the tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	resp, err := c.listTools(ctx)
	if err != nil {
		return nil, err
	}
	var tools []mcp.Tool
	if resp != nil {
		tools = resp.Tools
	}
	c.storeTools(tools)
	return tools, nil
}

// Catalog lists the server's tools and keeps the response shape. A fresh
// cache entry is served as a raw tool sequence without a round trip.
func (c *Client) Catalog(ctx context.Context) (Catalog, error) {
	if cached := c.cachedTools(); cached != nil {
		return CatalogFromTools(cached), nil
	}
	resp, err := c.listTools(ctx)
	if err != nil {
		return Catalog{}, err
	}
	if resp != nil {
		c.storeTools(resp.Tools)
	}
	return CatalogFromResult(resp), nil
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := resilience.DoValue(ctx, c.callRetry, func() (*mcp.CallToolResult, error) {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		return c.session.CallTool(reqCtx, req)
	})
	if err != nil {
		return nil, c.wrap(ctx, fmt.Sprintf("call tool %s", name), err).WithAttribute("tool", name)
	}
	return res, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func (c *Client) listTools(ctx context.Context) (*mcp.ListToolsResult, error) {
	res, err := resilience.DoValue(ctx, c.listRetry, func() (*mcp.ListToolsResult, error) {
		reqCtx, cancel := c.withTimeout(ctx)
		defer cancel()
		return c.session.ListTools(reqCtx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, c.wrap(ctx, "list tools", err)
	}
	return res, nil
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) connErr(op string, err error) *errors.AgentError {
	return errors.New(errors.CodeConnection, fmt.Sprintf("mcp %s: %s", c.name, op), err).
		WithAttribute("server", c.name).
		WithRecoverable(false)
}

// wrap classifies a request failure: parent cancellation, request timeout
// or a server-side failure.
func (c *Client) wrap(ctx context.Context, op string, err error) *errors.AgentError {
	var ae *errors.AgentError
	switch {
	case ctx.Err() != nil:
		ae = errors.New(errors.CodeContextLost, fmt.Sprintf("mcp %s: %s", c.name, op), err).WithRecoverable(false)
	case stderrors.Is(err, context.DeadlineExceeded):
		ae = errors.New(errors.CodeTimeout, fmt.Sprintf("mcp %s: %s timed out", c.name, op), err).
			WithContext("timeout", c.timeout.String()).
			WithRecoverable(true)
	default:
		ae = errors.New(errors.CodeConnection, fmt.Sprintf("mcp %s: %s", c.name, op), err).WithRecoverable(true)
	}
	return ae.WithAttribute("server", c.name)
}

// retryable leaves cancellations and request timeouts alone.
func retryable(err error) bool {
	return !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)
}
