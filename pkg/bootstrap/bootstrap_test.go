// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/coral-aci-agent/pkg/config"
	"github.com/jllopis/coral-aci-agent/pkg/mcp/mcptest"
)

const stdioHelperEnv = "ACIAGENT_BOOTSTRAP_STDIO_HELPER"

func TestHelperACIServer(t *testing.T) {
	if os.Getenv(stdioHelperEnv) != "1" {
		return
	}
	server := mcptest.NewServer("aci", "1.0.0")
	server.RegisterTool(mcpgo.NewTool("ACI_SEARCH_FUNCTIONS"), func(context.Context, map[string]any) (*mcpgo.CallToolResult, error) {
		return mcptest.Text("[]"), nil
	})
	server.RegisterTool(mcpgo.NewTool("getenv", mcpgo.WithString("name", mcpgo.Required())), func(_ context.Context, args map[string]any) (*mcpgo.CallToolResult, error) {
		name, _ := args["name"].(string)
		return mcptest.Text(os.Getenv(name)), nil
	})
	if err := server.ServeStdio(); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func testConfig() *config.Config {
	return &config.Config{
		Coral: config.CoralConfig{
			SSEURL:           "https://relay.example/sse",
			AgentID:          "abc123",
			AgentDescription: config.DefaultAgentDescription,
			ReadTimeout:      600 * time.Second,
			Timeout:          600 * time.Second,
		},
		ACI: config.ACIConfig{
			OwnerID:         "owner-42",
			APIKey:          "aci-secret",
			Command:         "uvx",
			Port:            8000,
			AllowedAppsOnly: true,
			Timeout:         600 * time.Second,
		},
	}
}

func TestCoralURL(t *testing.T) {
	got := CoralURL("https://relay.example/sse", "abc123", config.DefaultAgentDescription)
	want := "https://relay.example/sse?agentId=abc123&agentDescription=ACI+Dev+agent+capable+of+searching+for+relevant+functions+based+on+user+intent+and+executing+those+functions+with+the+required+parameters."
	if got != want {
		t.Fatalf("CoralURL =\n%s\nwant\n%s", got, want)
	}

	got = CoralURL("http://relay/sse?app=x", "a b&c", "d/e")
	if got != "http://relay/sse?app=x&agentId=a+b%26c&agentDescription=d%2Fe" {
		t.Fatalf("CoralURL with query = %s", got)
	}
}

func TestBuild(t *testing.T) {
	coral, aci := Build(testConfig())

	if coral.Transport() != TransportSSE || aci.Transport() != TransportStdio {
		t.Fatalf("transports = %s/%s", coral.Transport(), aci.Transport())
	}
	if !strings.HasPrefix(coral.EndpointURL, "https://relay.example/sse?agentId=abc123&agentDescription=") {
		t.Errorf("endpoint = %s", coral.EndpointURL)
	}
	if coral.ReadTimeout != 600*time.Second || coral.TotalTimeout != 600*time.Second || aci.TotalTimeout != 600*time.Second {
		t.Errorf("timeouts = %v %v %v", coral.ReadTimeout, coral.TotalTimeout, aci.TotalTimeout)
	}

	wantArgs := []string{"aci-mcp", "unified-server", "--linked-account-owner-id", "owner-42", "--port", "8000", "--allowed-apps-only"}
	if aci.Command != "uvx" || strings.Join(aci.Args, " ") != strings.Join(wantArgs, " ") {
		t.Errorf("command = %s %v", aci.Command, aci.Args)
	}
	for _, a := range aci.Args {
		if a == "aci-secret" {
			t.Fatal("api key must not appear in args")
		}
	}
	if aci.Env["ACI_API_KEY"] != "aci-secret" {
		t.Errorf("env = %v", aci.Env)
	}
	if len(aci.PassEnv) != len(DefaultPassEnv) || aci.PassEnv[0] != "PATH" {
		t.Errorf("pass env = %v", aci.PassEnv)
	}

	cfg := testConfig()
	cfg.ACI.PassEnv = []string{"HTTPS_PROXY"}
	_, aci = Build(cfg)
	if last := aci.PassEnv[len(aci.PassEnv)-1]; last != "HTTPS_PROXY" {
		t.Errorf("configured pass env missing: %v", aci.PassEnv)
	}
}

func TestBuildWithoutAllowedAppsOnly(t *testing.T) {
	cfg := testConfig()
	cfg.ACI.AllowedAppsOnly = false
	_, aci := Build(cfg)
	if aci.Args[len(aci.Args)-1] == "--allowed-apps-only" {
		t.Fatalf("unexpected flag in %v", aci.Args)
	}
}

func TestProcessConfigRedaction(t *testing.T) {
	_, aci := Build(testConfig())

	if s := aci.String(); strings.Contains(s, "aci-secret") || !strings.Contains(s, "ACI_API_KEY=[REDACTED]") {
		t.Errorf("String() = %s", s)
	}

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("open", "process", aci)
	if strings.Contains(buf.String(), "aci-secret") {
		t.Errorf("LogValue leaked secret: %s", buf.String())
	}

	env := ProcessConfig{Env: map[string]string{"B": "2", "A": "1"}}.Environ()
	if strings.Join(env, ",") != "A=1,B=2" {
		t.Errorf("Environ = %v", env)
	}
}

func TestProcessConfigEnviron(t *testing.T) {
	t.Setenv("ACIAGENT_PASSED", "yes")
	t.Setenv("ACIAGENT_SHADOWED", "parent")
	t.Setenv("ACIAGENT_UNLISTED", "no")

	p := ProcessConfig{
		Env:     map[string]string{"ACIAGENT_SHADOWED": "child"},
		PassEnv: []string{"ACIAGENT_PASSED", "ACIAGENT_SHADOWED", "ACIAGENT_NOT_SET"},
	}
	got := strings.Join(p.Environ(), ",")
	if got != "ACIAGENT_PASSED=yes,ACIAGENT_SHADOWED=child" {
		t.Errorf("Environ = %s", got)
	}
}

type unknownConfig struct{}

func (unknownConfig) Transport() string { return "carrier-pigeon" }

func TestOpenRejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, unknownConfig{}); err == nil {
		t.Error("expected error for unknown transport")
	}
	if _, err := Open(ctx, ProcessConfig{Name: ACIServer}); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestOpenAll(t *testing.T) {
	t.Setenv(stdioHelperEnv, "1")
	relay := mcptest.NewRelay()
	srv := relay.StartSSE()
	defer srv.Close()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coral := NetworkConfig{
		Name:         CoralServer,
		EndpointURL:  CoralURL(srv.URL+"/sse", "aci_agent", "test agent"),
		ReadTimeout:  5 * time.Second,
		TotalTimeout: 5 * time.Second,
	}
	aci := ProcessConfig{
		Name:         ACIServer,
		Command:      exe,
		Args:         []string{"-test.run", "TestHelperACIServer"},
		Env:          map[string]string{"ACI_API_KEY": "secret"},
		PassEnv:      []string{stdioHelperEnv},
		TotalTimeout: 5 * time.Second,
	}

	servers, err := OpenAll(ctx, coral, aci, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if err != nil {
		t.Fatalf("OpenAll: %v", err)
	}
	defer servers.Close()

	if servers.Coral.Name() != CoralServer || servers.ACI.Name() != ACIServer {
		t.Fatalf("names = %s/%s", servers.Coral.Name(), servers.ACI.Name())
	}
	tools, err := servers.ACI.ListTools(ctx)
	if err != nil || len(tools) != 2 {
		t.Fatalf("aci tools = %v, %v", tools, err)
	}
}

func TestOpenStdioIsolatesEnvironment(t *testing.T) {
	t.Setenv(stdioHelperEnv, "1")
	t.Setenv("OPENAI_API_KEY", "model-secret")

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	aci := ProcessConfig{
		Name:         ACIServer,
		Command:      exe,
		Args:         []string{"-test.run", "TestHelperACIServer"},
		Env:          map[string]string{"ACI_API_KEY": "secret"},
		PassEnv:      append([]string{stdioHelperEnv}, DefaultPassEnv...),
		TotalTimeout: 5 * time.Second,
	}

	ctx := context.Background()
	c, err := Open(ctx, aci)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	want := map[string]string{
		"ACI_API_KEY":    "secret",
		"OPENAI_API_KEY": "",
		"PATH":           os.Getenv("PATH"),
	}
	for name, value := range want {
		res, err := c.CallTool(ctx, "getenv", map[string]any{"name": name})
		if err != nil {
			t.Fatalf("getenv %s: %v", name, err)
		}
		text := ""
		if len(res.Content) > 0 {
			if tc, ok := res.Content[0].(mcpgo.TextContent); ok {
				text = tc.Text
			}
		}
		if text != value {
			t.Errorf("child %s = %q, want %q", name, text, value)
		}
	}
}

func TestOpenAllClosesCoralWhenACIFails(t *testing.T) {
	relay := mcptest.NewRelay()
	srv := relay.StartSSE()
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coral := NetworkConfig{Name: CoralServer, EndpointURL: srv.URL + "/sse"}
	aci := ProcessConfig{Name: ACIServer, Command: "/nonexistent/uvx"}

	var logs bytes.Buffer
	if _, err := OpenAll(ctx, coral, aci, slog.New(slog.NewTextHandler(&logs, nil))); err == nil {
		t.Fatal("expected error when aci cannot start")
	} else if !strings.Contains(err.Error(), "open aci") {
		t.Errorf("error = %v", err)
	}
}

func TestServersCloseNil(t *testing.T) {
	var s *Servers
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := (&Servers{}).Close(); err != nil {
		t.Fatal(err)
	}
}
