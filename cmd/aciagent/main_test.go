// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	stderrors "errors"
	"flag"
	"strings"
	"testing"

	"github.com/jllopis/coral-aci-agent/pkg/errors"
)

func TestParseFlagsDefaults(t *testing.T) {
	flags, err := parseFlags(nil, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if flags.EnvFile != ".env" || flags.ConfigPath != "" || flags.ListTools || len(flags.Set) != 0 {
		t.Fatalf("unexpected defaults %+v", flags)
	}
}

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{
		"-config", "agent.yaml",
		"-env-file", "prod.env",
		"-list-tools",
		"-set", "loop.idle_delay=2s",
		"-set", "model.name=gpt-4o",
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if flags.ConfigPath != "agent.yaml" || flags.EnvFile != "prod.env" || !flags.ListTools {
		t.Fatalf("unexpected flags %+v", flags)
	}
	if flags.Set.String() != "loop.idle_delay=2s,model.name=gpt-4o" {
		t.Fatalf("set = %v", flags.Set)
	}
}

func TestParseFlagsRejectsArgs(t *testing.T) {
	var out bytes.Buffer
	if _, err := parseFlags([]string{"extra"}, &out); err == nil {
		t.Fatal("expected error for positional args")
	}
	if _, err := parseFlags([]string{"-h"}, &out); !stderrors.Is(err, flag.ErrHelp) {
		t.Fatalf("err = %v, want ErrHelp", err)
	}
}

func TestCLIErrorHints(t *testing.T) {
	conn := errors.New(errors.CodeConnection, "open coral", stderrors.New("refused"))
	cliErr := WrapRunError(conn)
	if !strings.Contains(cliErr.Error(), "Hint: check CORAL_SSE_URL") {
		t.Errorf("Error() = %s", cliErr.Error())
	}

	var buf bytes.Buffer
	cliErr.PrintError(&buf)
	if !strings.HasPrefix(buf.String(), "Error [CONNECTION_ERROR]") {
		t.Errorf("PrintError = %s", buf.String())
	}

	cfgErr := NewConfigError(stderrors.New("bad yaml"), "agent.yaml")
	if cfgErr.Code != errors.CodeConfig || !strings.Contains(cfgErr.Hint, "agent.yaml") {
		t.Errorf("config error = %+v", cfgErr)
	}

	if got := WrapRunError(stderrors.New("plain")).Hint; got != "" {
		t.Errorf("hint for unclassified error = %q", got)
	}
}

func TestFormatErrorCode(t *testing.T) {
	if FormatErrorCode(errors.CodeConnection) != "Connection Error" || FormatErrorCode("OTHER") != "Internal Error" {
		t.Fatal("unexpected error code names")
	}
}
