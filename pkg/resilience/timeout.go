// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/coral-aci-agent/pkg/errors"
)

// WithTimeout runs fn under a derived context bounded by d. A zero duration
// runs fn with ctx unchanged. When the deadline, and not the parent, ends
// the call the error is reported as a recoverable TIMEOUT.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(tctx)
	if err != nil && ctx.Err() == nil && stderrors.Is(tctx.Err(), context.DeadlineExceeded) {
		return errors.New(errors.CodeTimeout, "operation exceeded timeout", err).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	}
	return err
}
