// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"strings"
	"testing"
)

func TestEnsureRunID(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if !strings.HasPrefix(id, "run-") {
		t.Fatalf("unexpected run id %q", id)
	}
	again, same := EnsureRunID(ctx)
	if same != id || again != ctx {
		t.Fatalf("EnsureRunID must keep an existing id: %q vs %q", same, id)
	}
	if _, other := EnsureRunID(context.Background()); other == id {
		t.Fatal("expected distinct ids for distinct runs")
	}
}

func TestEmptyIDsAreAbsent(t *testing.T) {
	ctx := WithRunID(context.Background(), "")
	if _, ok := RunID(ctx); ok {
		t.Fatal("empty run id must read as absent")
	}
	ctx = WithAgentID(ctx, "aci")
	if id, ok := AgentID(ctx); !ok || id != "aci" {
		t.Fatalf("AgentID = %q, %v", id, ok)
	}
}
