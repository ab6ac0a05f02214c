// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"math"
	"time"
)

// LoopPolicy governs the pacing of a long-running agent loop.
type LoopPolicy struct {
	// IdleDelay is slept after every successful iteration.
	IdleDelay time.Duration

	// ErrorDelay is slept after the first failure in a row.
	ErrorDelay time.Duration

	// MaxErrorDelay caps the delay when Multiplier > 1. Zero means no cap.
	MaxErrorDelay time.Duration

	// Multiplier grows ErrorDelay per consecutive failure. Values <= 1 keep it fixed.
	Multiplier float64

	// MaxConsecutiveFailures stops the loop once reached. Zero retries forever.
	MaxConsecutiveFailures int

	// IterationTimeout bounds one iteration. Zero means unbounded.
	IterationTimeout time.Duration
}

// DefaultLoopPolicy retries forever with a one second idle delay and a fixed
// five second delay after errors.
func DefaultLoopPolicy() LoopPolicy {
	return LoopPolicy{
		IdleDelay:  time.Second,
		ErrorDelay: 5 * time.Second,
		Multiplier: 1,
	}
}

// ErrorBackoff returns the delay after the given number of consecutive failures.
func (p LoopPolicy) ErrorBackoff(failures int) time.Duration {
	if failures < 1 || p.Multiplier <= 1 {
		return p.ErrorDelay
	}
	delay := float64(p.ErrorDelay) * math.Pow(p.Multiplier, float64(failures-1))
	if p.MaxErrorDelay > 0 && delay > float64(p.MaxErrorDelay) {
		return p.MaxErrorDelay
	}
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Exhausted reports whether the failure budget is spent.
func (p LoopPolicy) Exhausted(failures int) bool {
	return p.MaxConsecutiveFailures > 0 && failures >= p.MaxConsecutiveFailures
}
