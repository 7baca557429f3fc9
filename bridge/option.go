// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"time"

	"github.com/go-lpc/fodo/gpio"
)

type config struct {
	order   gpio.BitOrder
	clock   time.Duration // clock and latch unit delay
	poll    time.Duration // fifo-read polling period
	timeout time.Duration // fifo-read timeout (0: wait forever)
	policy  ReadyPolicy

	stall func(err error)
	trace func(s State)
}

func newConfig() config {
	return config{
		order: gpio.MSBFirst,
		poll:  10 * time.Microsecond,
	}
}

// Option configures a bridge.
type Option func(cfg *config)

// WithBitOrder sets the order in which the bits of a coordinate are shifted out.
func WithBitOrder(o gpio.BitOrder) Option {
	return func(cfg *config) {
		cfg.order = o
	}
}

// WithClockTime sets the unit delay of the clock and latch pulses.
func WithClockTime(d time.Duration) Option {
	return func(cfg *config) {
		cfg.clock = d
	}
}

// WithPollInterval sets the period at which the fifo-read pin is sampled.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		if d <= 0 {
			d = time.Microsecond
		}
		cfg.poll = d
	}
}

// WithReadyTimeout bounds the wait for the fifo-read acknowledgment.
// A zero timeout waits forever.
func WithReadyTimeout(timeout time.Duration, policy ReadyPolicy) Option {
	return func(cfg *config) {
		cfg.timeout = timeout
		cfg.policy = policy
	}
}

// WithStallHook registers a function called whenever the downstream
// consumer fails to acknowledge a value in time.
func WithStallHook(f func(err error)) Option {
	return func(cfg *config) {
		cfg.stall = f
	}
}

// WithTrace registers a function called on each state transition.
func WithTrace(f func(s State)) Option {
	return func(cfg *config) {
		cfg.trace = f
	}
}
