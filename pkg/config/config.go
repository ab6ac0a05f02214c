// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads agent settings from defaults, an optional YAML file,
// the environment, an optional .env file and explicit overrides, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces every setting in the environment, e.g.
// ACIAGENT_LOOP_ERROR_DELAY for loop.error_delay.
const EnvPrefix = "ACIAGENT_"

// DefaultAgentDescription is sent to the relay when joining.
const DefaultAgentDescription = "ACI Dev agent capable of searching for relevant functions based on user intent and executing those functions with the required parameters."

const redacted = "[REDACTED]"

// aliases are the historical variable names, read without the prefix.
var aliases = map[string]string{
	"CORAL_SSE_URL":  "coral.sse_url",
	"CORAL_AGENT_ID": "coral.agent_id",
	"ACI_OWNER_ID":   "aci.owner_id",
	"ACI_API_KEY":    "aci.api_key",
	"MODEL_PROVIDER": "model.provider",
	"MODEL_NAME":     "model.name",
}

type Config struct {
	Coral     CoralConfig     `koanf:"coral"`
	ACI       ACIConfig       `koanf:"aci"`
	Model     ModelConfig     `koanf:"model"`
	Agent     AgentConfig     `koanf:"agent"`
	Loop      LoopConfig      `koanf:"loop"`
	History   HistoryConfig   `koanf:"history"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type CoralConfig struct {
	SSEURL           string        `koanf:"sse_url"`
	AgentID          string        `koanf:"agent_id"`
	AgentDescription string        `koanf:"agent_description"`
	ReadTimeout      time.Duration `koanf:"read_timeout"`
	Timeout          time.Duration `koanf:"timeout"`
}

type ACIConfig struct {
	OwnerID         string        `koanf:"owner_id"`
	APIKey          string        `koanf:"api_key"`
	Command         string        `koanf:"command"`
	Port            int           `koanf:"port"`
	AllowedAppsOnly bool          `koanf:"allowed_apps_only"`
	Timeout         time.Duration `koanf:"timeout"`
	PassEnv         []string      `koanf:"pass_env"` // extra parent variables for the ACI server
}

type ModelConfig struct {
	Provider    string  `koanf:"provider"` // openai, anthropic, gemini, ollama, mock
	Name        string  `koanf:"name"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      string  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

type AgentConfig struct {
	MaxIterations int `koanf:"max_iterations"`
}

type LoopConfig struct {
	IdleDelay              time.Duration `koanf:"idle_delay"`
	ErrorDelay             time.Duration `koanf:"error_delay"`
	MaxErrorDelay          time.Duration `koanf:"max_error_delay"`
	Multiplier             float64       `koanf:"multiplier"`
	MaxConsecutiveFailures int           `koanf:"max_consecutive_failures"`
	IterationTimeout       time.Duration `koanf:"iteration_timeout"`
	Breaker                BreakerConfig `koanf:"breaker"`
}

type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold int           `koanf:"failure_threshold"`
	Timeout          time.Duration `koanf:"timeout"`
}

type HistoryConfig struct {
	// MaxMessages windows what is sent to the model. Zero sends everything.
	MaxMessages int `koanf:"max_messages"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
	ServiceName  string `koanf:"service_name"`
}

// Options selects the optional sources.
type Options struct {
	// Path is a YAML config file. Empty skips it.
	Path string
	// EnvFile is a dotenv file whose values override the environment.
	// A missing file is ignored.
	EnvFile string
	// ExportEnvFile also sets every dotenv entry in the process
	// environment, so SDKs reading e.g. OPENAI_API_KEY see it.
	ExportEnvFile bool
	// Overrides are key=value pairs applied last, e.g. "loop.idle_delay=2s".
	Overrides []string
}

var defaults = map[string]any{
	"coral.agent_description": DefaultAgentDescription,
	"coral.read_timeout":      600 * time.Second,
	"coral.timeout":           600 * time.Second,

	"aci.command":           "uvx",
	"aci.port":              8000,
	"aci.allowed_apps_only": true,
	"aci.timeout":           600 * time.Second,

	"model.provider":    "openai",
	"model.name":        "gpt-4o-mini",
	"model.temperature": 0.0,
	"model.max_tokens":  4096,

	"agent.max_iterations": 25,

	"loop.idle_delay":                1 * time.Second,
	"loop.error_delay":               5 * time.Second,
	"loop.max_error_delay":           time.Duration(0),
	"loop.multiplier":                1.0,
	"loop.max_consecutive_failures":  0,
	"loop.iteration_timeout":         time.Duration(0),
	"loop.breaker.enabled":           false,
	"loop.breaker.failure_threshold": 5,
	"loop.breaker.timeout":           30 * time.Second,

	"history.max_messages": 0,

	"log.level":  "info",
	"log.format": "text",

	"telemetry.exporter":      "none",
	"telemetry.service_name":  "coral-aci-agent",
	"telemetry.otlp_insecure": false,
}

// Load reads configuration from the YAML file at path (optional) and the
// environment.
func Load(path string) (*Config, error) {
	return LoadWithOptions(Options{Path: path})
}

// LoadWithOptions reads configuration from every source in opts.
func LoadWithOptions(opts Options) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("config default %s: %w", key, err)
		}
	}

	if opts.Path != "" {
		if err := k.Load(file.Provider(opts.Path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", opts.Path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if opts.EnvFile != "" {
		if err := loadEnvFile(k, opts.EnvFile, opts.ExportEnvFile); err != nil {
			return nil, err
		}
	}

	for _, override := range opts.Overrides {
		key, value, ok := strings.Cut(override, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q, want key=value", override)
		}
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Model.Provider = strings.ToLower(strings.TrimSpace(cfg.Model.Provider))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps an environment variable to a config key, or "" to skip it.
func envKey(name string) string {
	if key, ok := aliases[name]; ok {
		return key
	}
	if !strings.HasPrefix(name, EnvPrefix) {
		return ""
	}
	want := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	for key := range defaultsAndSecrets() {
		if strings.ReplaceAll(key, ".", "_") == want {
			return key
		}
	}
	return ""
}

// defaultsAndSecrets lists every known key, including ones without defaults.
func defaultsAndSecrets() map[string]struct{} {
	keys := make(map[string]struct{}, len(defaults)+len(aliases)+4)
	for key := range defaults {
		keys[key] = struct{}{}
	}
	for _, key := range aliases {
		keys[key] = struct{}{}
	}
	for _, key := range []string{"model.base_url", "model.api_key", "telemetry.otlp_endpoint"} {
		keys[key] = struct{}{}
	}
	return keys
}

func loadEnvFile(k *koanf.Koanf, path string, export bool) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	dk := koanf.New(".")
	if err := dk.Load(file.Provider(path), dotenv.ParserEnv("", ".", func(s string) string {
		return "dotenv." + s
	})); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}

	entries := dk.StringMap("dotenv")
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := entries[name]
		if export {
			if err := os.Setenv(name, value); err != nil {
				return fmt.Errorf("export %s: %w", name, err)
			}
		}
		if key := envKey(name); key != "" {
			if err := k.Set(key, value); err != nil {
				return fmt.Errorf("env file %s: %w", name, err)
			}
		}
	}
	return nil
}

// Validate rejects settings the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Loop.IdleDelay < 0 || c.Loop.ErrorDelay < 0 || c.Loop.MaxErrorDelay < 0 || c.Loop.IterationTimeout < 0 {
		errs = append(errs, errors.New("loop delays must not be negative"))
	}
	if c.Loop.MaxConsecutiveFailures < 0 {
		errs = append(errs, errors.New("loop.max_consecutive_failures must not be negative"))
	}
	if c.History.MaxMessages < 0 {
		errs = append(errs, errors.New("history.max_messages must not be negative"))
	}
	if c.Agent.MaxIterations < 1 {
		errs = append(errs, errors.New("agent.max_iterations must be at least 1"))
	}
	if c.ACI.Port < 1 || c.ACI.Port > 65535 {
		errs = append(errs, fmt.Errorf("aci.port %d out of range", c.ACI.Port))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Warnings lists required settings that are missing. The agent still
// starts, but the affected server will most likely fail to connect.
func (c *Config) Warnings() []string {
	var out []string
	check := func(value, env string) {
		if strings.TrimSpace(value) == "" {
			out = append(out, env+" is not set")
		}
	}
	check(c.Coral.SSEURL, "CORAL_SSE_URL")
	check(c.Coral.AgentID, "CORAL_AGENT_ID")
	check(c.ACI.OwnerID, "ACI_OWNER_ID")
	check(c.ACI.APIKey, "ACI_API_KEY")
	return out
}

// ModelRef returns the "<provider>:<model>" string.
func (c *Config) ModelRef() string {
	return c.Model.Provider + ":" + c.Model.Name
}

// LogValue implements slog.LogValuer with secrets redacted.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("coral_sse_url", c.Coral.SSEURL),
		slog.String("coral_agent_id", c.Coral.AgentID),
		slog.String("aci_owner_id", c.ACI.OwnerID),
		slog.String("aci_api_key", redact(c.ACI.APIKey)),
		slog.String("model", c.ModelRef()),
		slog.String("model_api_key", redact(c.Model.APIKey)),
		slog.Duration("idle_delay", c.Loop.IdleDelay),
		slog.Duration("error_delay", c.Loop.ErrorDelay),
		slog.Int("max_consecutive_failures", c.Loop.MaxConsecutiveFailures),
		slog.Int("history_max_messages", c.History.MaxMessages),
		slog.String("telemetry_exporter", c.Telemetry.Exporter),
	)
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}
