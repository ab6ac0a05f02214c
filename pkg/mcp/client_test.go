// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	kerrors "github.com/jllopis/coral-aci-agent/pkg/errors"
)

type fakeSession struct {
	listErrs  []error
	listCalls int
	callErr   error
	callCalls int
	tools     []mcp.Tool
	closed    bool
}

func (f *fakeSession) ListTools(ctx context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	f.listCalls++
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeSession) CallTool(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.callCalls++
	if f.callErr != nil {
		return nil, f.callErr
	}
	return &mcp.CallToolResult{}, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func TestClientListRetries(t *testing.T) {
	s := &fakeSession{listErrs: []error{errors.New("reset"), nil}, tools: []mcp.Tool{{Name: "x"}}}
	c := NewClient(s, WithRetry(2, time.Millisecond), WithToolCacheTTL(0))

	tools, err := c.ListTools(context.Background())
	if err != nil || len(tools) != 1 {
		t.Fatalf("ListTools = %v, %v", tools, err)
	}
	if s.listCalls != 2 {
		t.Fatalf("expected 2 list calls, got %d", s.listCalls)
	}
}

func TestClientListFailureIsConnectionError(t *testing.T) {
	s := &fakeSession{listErrs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	c := NewClient(s, WithName("coral"), WithRetry(2, time.Millisecond))
	_, err := c.Catalog(context.Background())
	if !kerrors.Is(err, kerrors.CodeConnection) {
		t.Fatalf("expected CONNECTION_ERROR, got %v", err)
	}
	if kerrors.As(err).Attributes["server"] != "coral" {
		t.Fatalf("expected server attribute, got %+v", kerrors.As(err).Attributes)
	}
}

func TestClientListTimeoutNotRetried(t *testing.T) {
	s := &fakeSession{listErrs: []error{context.DeadlineExceeded}}
	c := NewClient(s, WithRetry(3, time.Millisecond))
	_, err := c.Catalog(context.Background())
	if !kerrors.Is(err, kerrors.CodeTimeout) || s.listCalls != 1 {
		t.Fatalf("expected single TIMEOUT attempt, got %d calls, %v", s.listCalls, err)
	}
}

func TestClientToolCache(t *testing.T) {
	s := &fakeSession{tools: []mcp.Tool{{Name: "x"}}}
	c := NewClient(s, WithToolCacheTTL(time.Minute))
	for i := 0; i < 3; i++ {
		if _, err := c.ListTools(context.Background()); err != nil {
			t.Fatalf("ListTools: %v", err)
		}
	}
	if s.listCalls != 1 {
		t.Fatalf("expected cached listing, got %d calls", s.listCalls)
	}
}

func TestClientCatalogUsesCache(t *testing.T) {
	s := &fakeSession{tools: []mcp.Tool{{Name: "x"}, {Name: "y"}}}
	c := NewClient(s, WithToolCacheTTL(time.Minute))

	first, err := c.Catalog(context.Background())
	if err != nil || first.Kind() != CatalogResult {
		t.Fatalf("first Catalog = %v, %v", first.Kind(), err)
	}
	second, err := c.Catalog(context.Background())
	if err != nil || second.Kind() != CatalogTools || second.Len() != 2 {
		t.Fatalf("second Catalog = %v/%d, %v", second.Kind(), second.Len(), err)
	}
	if _, err := c.ListTools(context.Background()); err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if s.listCalls != 1 {
		t.Fatalf("expected one round trip, got %d", s.listCalls)
	}

	s.listCalls = 0
	c = NewClient(s, WithToolCacheTTL(0))
	_, _ = c.Catalog(context.Background())
	_, _ = c.Catalog(context.Background())
	if s.listCalls != 2 {
		t.Fatalf("expected uncached listing, got %d calls", s.listCalls)
	}
}

func TestClientCallNotRetriedByDefault(t *testing.T) {
	s := &fakeSession{callErr: errors.New("broken pipe")}
	c := NewClient(s)
	if _, err := c.CallTool(context.Background(), "send_message", nil); err == nil {
		t.Fatal("expected error")
	}
	if s.callCalls != 1 {
		t.Fatalf("expected one call attempt, got %d", s.callCalls)
	}

	s.callCalls = 0
	c = NewClient(s, WithCallRetry(2, time.Millisecond))
	_, _ = c.CallTool(context.Background(), "send_message", nil)
	if s.callCalls != 3 {
		t.Fatalf("expected 3 call attempts, got %d", s.callCalls)
	}
}

func TestClientCanceledContext(t *testing.T) {
	s := &fakeSession{callErr: context.Canceled}
	c := NewClient(s, WithCallRetry(3, time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CallTool(ctx, "x", nil)
	if !kerrors.Is(err, kerrors.CodeContextLost) || s.callCalls != 1 {
		t.Fatalf("expected CONTEXT_LOST after one call, got %d calls, %v", s.callCalls, err)
	}
}

func TestClientClose(t *testing.T) {
	s := &fakeSession{}
	if err := NewClient(s).Close(); err != nil || !s.closed {
		t.Fatal("expected session to be closed")
	}
	if err := (&Client{}).Close(); err != nil {
		t.Fatalf("closing an unconnected client: %v", err)
	}
}
