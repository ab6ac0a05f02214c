// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Command aciagent joins a Coral relay as the ACI dev agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jllopis/coral-aci-agent/internal/app"
	"github.com/jllopis/coral-aci-agent/pkg/config"
	"github.com/jllopis/coral-aci-agent/pkg/telemetry"
)

type cliFlags struct {
	ConfigPath string
	EnvFile    string
	ListTools  bool
	Set        multiFlag
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}

	cfg, err := config.LoadWithOptions(config.Options{
		Path:          flags.ConfigPath,
		EnvFile:       flags.EnvFile,
		ExportEnvFile: true,
		Overrides:     flags.Set,
	})
	if err != nil {
		fatal(NewConfigError(err, flags.ConfigPath))
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	a := app.New(cfg, app.WithLogger(logger))

	if flags.ListTools {
		err = a.ListTools(ctx)
	} else {
		err = a.Run(ctx)
	}
	if err != nil {
		fatal(WrapRunError(err))
	}
}

func parseFlags(args []string, output io.Writer) (cliFlags, error) {
	var flags cliFlags
	fs := flag.NewFlagSet("aciagent", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&flags.ConfigPath, "config", "", "optional YAML config file")
	fs.StringVar(&flags.EnvFile, "env-file", ".env", "dotenv file overriding the environment (ignored if missing)")
	fs.BoolVar(&flags.ListTools, "list-tools", false, "print the tools of both servers and exit")
	fs.Var(&flags.Set, "set", "override a config key, e.g. -set loop.idle_delay=2s (repeatable)")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if fs.NArg() > 0 {
		err := fmt.Errorf("unexpected args: %v", fs.Args())
		fmt.Fprintln(output, err)
		return flags, err
	}
	return flags, nil
}

func fatal(err *CLIError) {
	err.PrintError(os.Stderr)
	os.Exit(1)
}

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
