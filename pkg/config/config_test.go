// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for name := range aliases {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Loop.IdleDelay != time.Second {
		t.Errorf("idle delay = %v, want 1s", cfg.Loop.IdleDelay)
	}
	if cfg.Loop.ErrorDelay != 5*time.Second {
		t.Errorf("error delay = %v, want 5s", cfg.Loop.ErrorDelay)
	}
	if cfg.Coral.ReadTimeout != 600*time.Second || cfg.ACI.Timeout != 600*time.Second {
		t.Errorf("timeouts = %v/%v, want 600s", cfg.Coral.ReadTimeout, cfg.ACI.Timeout)
	}
	if cfg.ACI.Command != "uvx" || cfg.ACI.Port != 8000 || !cfg.ACI.AllowedAppsOnly {
		t.Errorf("aci defaults = %+v", cfg.ACI)
	}
	if cfg.ModelRef() != "openai:gpt-4o-mini" {
		t.Errorf("model = %s", cfg.ModelRef())
	}
	if cfg.Coral.AgentDescription != DefaultAgentDescription {
		t.Errorf("description = %q", cfg.Coral.AgentDescription)
	}
	if cfg.Agent.MaxIterations != 25 {
		t.Errorf("max iterations = %d", cfg.Agent.MaxIterations)
	}
}

func TestLoadLegacyEnvNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORAL_SSE_URL", "http://relay:5555/sse")
	t.Setenv("CORAL_AGENT_ID", "aci_agent")
	t.Setenv("ACI_OWNER_ID", "owner-1")
	t.Setenv("ACI_API_KEY", "secret")
	t.Setenv("MODEL_PROVIDER", "Anthropic")
	t.Setenv("MODEL_NAME", "claude-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Coral.SSEURL != "http://relay:5555/sse" || cfg.Coral.AgentID != "aci_agent" {
		t.Errorf("coral = %+v", cfg.Coral)
	}
	if cfg.ACI.OwnerID != "owner-1" || cfg.ACI.APIKey != "secret" {
		t.Errorf("aci = %+v", cfg.ACI)
	}
	if cfg.ModelRef() != "anthropic:claude-test" {
		t.Errorf("model = %s", cfg.ModelRef())
	}
	if w := cfg.Warnings(); len(w) != 0 {
		t.Errorf("warnings = %v, want none", w)
	}
}

func TestLoadPrefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ACIAGENT_LOOP_ERROR_DELAY", "250ms")
	t.Setenv("ACIAGENT_HISTORY_MAX_MESSAGES", "40")
	t.Setenv("ACIAGENT_LOOP_BREAKER_ENABLED", "true")
	t.Setenv("ACIAGENT_NOT_A_SETTING", "ignored")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Loop.ErrorDelay != 250*time.Millisecond {
		t.Errorf("error delay = %v", cfg.Loop.ErrorDelay)
	}
	if cfg.History.MaxMessages != 40 {
		t.Errorf("max messages = %d", cfg.History.MaxMessages)
	}
	if !cfg.Loop.Breaker.Enabled {
		t.Error("breaker should be enabled")
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "agent.yaml")
	yaml := `
coral:
  sse_url: http://from-file/sse
  agent_id: file-agent
loop:
  idle_delay: 3s
model:
  provider: ollama
  name: qwen
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CORAL_AGENT_ID", "env-agent")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Coral.SSEURL != "http://from-file/sse" {
		t.Errorf("sse url = %q", cfg.Coral.SSEURL)
	}
	if cfg.Coral.AgentID != "env-agent" {
		t.Errorf("agent id = %q, env should win over file", cfg.Coral.AgentID)
	}
	if cfg.Loop.IdleDelay != 3*time.Second {
		t.Errorf("idle delay = %v", cfg.Loop.IdleDelay)
	}
	if cfg.ModelRef() != "ollama:qwen" {
		t.Errorf("model = %s", cfg.ModelRef())
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvFileOverridesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORAL_AGENT_ID", "from-env")
	t.Setenv("ACIAGENT_TEST_EXPORTED", "")
	path := filepath.Join(t.TempDir(), ".env")
	content := "CORAL_AGENT_ID=from-dotenv\nACI_OWNER_ID=owner-2\nACIAGENT_TEST_EXPORTED=yes\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithOptions(Options{EnvFile: path, ExportEnvFile: true})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Coral.AgentID != "from-dotenv" {
		t.Errorf("agent id = %q, want dotenv override", cfg.Coral.AgentID)
	}
	if cfg.ACI.OwnerID != "owner-2" {
		t.Errorf("owner id = %q", cfg.ACI.OwnerID)
	}
	if got := os.Getenv("ACIAGENT_TEST_EXPORTED"); got != "yes" {
		t.Errorf("exported value = %q", got)
	}
	if got := os.Getenv("CORAL_AGENT_ID"); got != "from-dotenv" {
		t.Errorf("process env = %q", got)
	}
}

func TestMissingEnvFileIgnored(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadWithOptions(Options{EnvFile: filepath.Join(t.TempDir(), ".env")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(cfg.Warnings()); got != 4 {
		t.Errorf("warnings = %d, want 4", got)
	}
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadWithOptions(Options{Overrides: []string{"loop.idle_delay=10ms", "agent.max_iterations=3"}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Loop.IdleDelay != 10*time.Millisecond || cfg.Agent.MaxIterations != 3 {
		t.Errorf("overrides not applied: %+v %+v", cfg.Loop, cfg.Agent)
	}

	if _, err := LoadWithOptions(Options{Overrides: []string{"novalue"}}); err == nil {
		t.Error("expected error for malformed override")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cases := []string{
		"loop.error_delay=-1s",
		"agent.max_iterations=0",
		"aci.port=70000",
		"log.format=xml",
		"history.max_messages=-2",
	}
	for _, override := range cases {
		t.Run(override, func(t *testing.T) {
			if _, err := LoadWithOptions(Options{Overrides: []string{override}}); err == nil {
				t.Errorf("expected validation error for %s", override)
			}
		})
	}
}

func TestLogValueRedactsSecrets(t *testing.T) {
	cfg := &Config{
		ACI:   ACIConfig{OwnerID: "owner", APIKey: "aci-secret"},
		Model: ModelConfig{Provider: "openai", Name: "gpt", APIKey: "sk-secret"},
	}
	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("config", "config", cfg)
	out := buf.String()
	if strings.Contains(out, "aci-secret") || strings.Contains(out, "sk-secret") {
		t.Fatalf("secret leaked: %s", out)
	}
	if !strings.Contains(out, redacted) || !strings.Contains(out, "owner") {
		t.Errorf("unexpected output: %s", out)
	}
}
