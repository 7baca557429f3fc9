// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bridge drives photons out of a shift register, with a
// ready/valid hand-shake with a downstream FIFO.
//
// Each photon goes through the following states:
//
//	Idle -> ShiftY -> ShiftX -> Latch -> AssertValid -> WaitReady -> Deassert -> Idle
//
// A transfer suspends in WaitReady until fifo-read is asserted, and in
// AssertValid until the fifo-read of the previous photon is released.
// Each photon is thus acknowledged by its own fifo-read pulse.
package bridge // import "github.com/go-lpc/fodo/bridge"

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/fodo/gpio"
	"github.com/go-lpc/fodo/internal/fifo"
	"github.com/go-lpc/fodo/photon"
)

// ErrReadyTimeout is returned when the downstream consumer did not
// acknowledge a value within the configured timeout.
var ErrReadyTimeout = errors.New("bridge: timeout waiting for fifo-read")

// Bridge transfers photons to the downstream FIFO.
// Bridge is the only user of its GPIO chip.
type Bridge struct {
	msg  log.MsgStream
	chip gpio.Chip
	pins gpio.PinTable
	cfg  config

	state atomic.Uint32

	cnt struct {
		photons  atomic.Uint64
		batches  atomic.Uint64
		faults   atomic.Uint64
		timeouts atomic.Uint64
	}
}

// Stats holds the counters of a bridge.
type Stats struct {
	Photons  uint64 // photons acknowledged by the downstream consumer
	Batches  uint64 // batches popped from the transmit queue
	Faults   uint64 // photons abandoned because of a GPIO error
	Timeouts uint64 // photons not acknowledged in time
}

// New creates a new bridge driving the provided pins.
func New(chip gpio.Chip, pins gpio.PinTable, msg log.MsgStream, opts ...Option) *Bridge {
	b := &Bridge{
		msg:  msg,
		chip: chip,
		pins: pins,
		cfg:  newConfig(),
	}
	for _, opt := range opts {
		opt(&b.cfg)
	}
	return b
}

// State returns the current state of the bridge.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

func (b *Bridge) enter(s State) {
	b.state.Store(uint32(s))
	if b.cfg.trace != nil {
		b.cfg.trace(s)
	}
}

func (b *Bridge) Stats() Stats {
	return Stats{
		Photons:  b.cnt.photons.Load(),
		Batches:  b.cnt.batches.Load(),
		Faults:   b.cnt.faults.Load(),
		Timeouts: b.cnt.timeouts.Load(),
	}
}

// Setup configures the direction of the pins, drives the outputs to
// their idle levels and clears the shift register.
func (b *Bridge) Setup() error {
	err := b.pins.Validate()
	if err != nil {
		return fmt.Errorf("bridge: could not setup pins: %w", err)
	}

	for _, p := range b.pins.Outputs() {
		err = b.chip.SetMode(p, gpio.Output)
		if err != nil {
			return fmt.Errorf("bridge: could not configure output pin %d: %w", p, err)
		}
	}
	for _, p := range b.pins.Inputs() {
		err = b.chip.SetMode(p, gpio.Input)
		if err != nil {
			return fmt.Errorf("bridge: could not configure input pin %d: %w", p, err)
		}
	}

	err = b.Idle()
	if err != nil {
		return fmt.Errorf("bridge: could not drive idle levels: %w", err)
	}

	err = b.clear()
	if err != nil {
		return fmt.Errorf("bridge: could not clear shift register: %w", err)
	}

	return nil
}

// Idle drives all the outputs to their idle levels: data, clock and
// latch low, shift register clear released, outputs disabled and
// fifo-empty asserted.
// Idle tries to drive all the pins, even if one of them fails.
func (b *Bridge) Idle() error {
	var (
		pins = &b.pins
		errs []error
	)
	for _, v := range []struct {
		pin gpio.Pin
		lvl gpio.Level
	}{
		{pins.OutEnable, pins.OutEnableActive.Not()},
		{pins.FIFOEmpty, gpio.High},
		{pins.Data, gpio.Low},
		{pins.Clock, gpio.Low},
		{pins.Latch, gpio.Low},
		{pins.Clear, pins.ClearActive.Not()},
	} {
		err := b.chip.SetPin(v.pin, v.lvl)
		if err != nil {
			errs = append(errs, fmt.Errorf("pin %d: %w", v.pin, err))
		}
	}
	b.enter(Idle)
	return errors.Join(errs...)
}

// Transfer shifts a photon out and waits for its acknowledgment.
// On error, the photon is abandoned and the bus is returned to idle.
func (b *Bridge) Transfer(ctx context.Context, p photon.Photon) error {
	err := b.transfer(ctx, p)
	if err != nil {
		if e := b.Idle(); e != nil {
			b.msg.Errorf("could not restore idle levels: %+v", e)
		}
		return err
	}
	b.enter(Idle)
	return nil
}

func (b *Bridge) transfer(ctx context.Context, p photon.Photon) error {
	var (
		pins = &b.pins
		err  error
	)

	b.enter(ShiftY)
	err = b.shiftOut(p.Y)
	if err != nil {
		return fmt.Errorf("bridge: could not shift out y=%d: %w", p.Y, err)
	}

	b.enter(ShiftX)
	err = b.shiftOut(p.X)
	if err != nil {
		return fmt.Errorf("bridge: could not shift out x=%d: %w", p.X, err)
	}

	b.enter(Latch)
	err = b.chip.Pulse(pins.Latch, gpio.High, gpio.Low, b.cfg.clock)
	if err != nil {
		return fmt.Errorf("bridge: could not latch shift register: %w", err)
	}

	b.enter(AssertValid)
	err = b.waitRelease(ctx)
	if err != nil {
		return err
	}
	err = b.chip.SetPin(pins.OutEnable, pins.OutEnableActive)
	if err != nil {
		return fmt.Errorf("bridge: could not enable outputs: %w", err)
	}
	err = b.chip.SetPin(pins.FIFOEmpty, gpio.Low)
	if err != nil {
		return fmt.Errorf("bridge: could not deassert fifo-empty: %w", err)
	}

	b.enter(WaitReady)
	err = b.waitReady(ctx)
	if err != nil {
		return err
	}

	b.enter(Deassert)
	err = b.chip.SetPin(pins.FIFOEmpty, gpio.High)
	if err != nil {
		return fmt.Errorf("bridge: could not assert fifo-empty: %w", err)
	}
	err = b.chip.SetPin(pins.OutEnable, pins.OutEnableActive.Not())
	if err != nil {
		return fmt.Errorf("bridge: could not disable outputs: %w", err)
	}
	err = b.chip.SetPin(pins.Data, gpio.Low)
	if err != nil {
		return fmt.Errorf("bridge: could not reset data pin: %w", err)
	}

	return nil
}

// waitReady polls the fifo-read pin until it is asserted.
func (b *Bridge) waitReady(ctx context.Context) error {
	err := b.wait(ctx, gpio.High)
	if errors.Is(err, ErrReadyTimeout) {
		return fmt.Errorf("bridge: no acknowledgment: %w", err)
	}
	return err
}

// waitRelease polls the fifo-read pin until it is deasserted.
// A value is never presented while the acknowledgment of the previous
// one is still held.
func (b *Bridge) waitRelease(ctx context.Context) error {
	err := b.wait(ctx, gpio.Low)
	if errors.Is(err, ErrReadyTimeout) {
		return fmt.Errorf("bridge: fifo-read still asserted: %w", err)
	}
	return err
}

func (b *Bridge) wait(ctx context.Context, want gpio.Level) error {
	lvl, err := b.readAck()
	if err != nil || lvl == want {
		return err
	}

	var (
		start   = time.Now()
		timeout = b.cfg.timeout
		tck     = time.NewTicker(b.cfg.poll)
	)
	defer tck.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tck.C:
			lvl, err := b.readAck()
			if err != nil || lvl == want {
				return err
			}
			if timeout > 0 && time.Since(start) >= timeout {
				return fmt.Errorf("%w (timeout=%v)", ErrReadyTimeout, timeout)
			}
		}
	}
}

func (b *Bridge) readAck() (gpio.Level, error) {
	lvl, err := b.chip.ReadPin(b.pins.FIFORead)
	if err != nil {
		return lvl, fmt.Errorf("bridge: could not read fifo-read: %w", err)
	}
	return lvl, nil
}

// Run transfers the photons of the batches popped from q until ctx is
// done, or until the downstream consumer stalls and the ready policy
// is ReadyAbort.
// Run leaves the bus idle when it returns.
func (b *Bridge) Run(ctx context.Context, q *fifo.Queue[photon.Batch]) error {
	defer func() {
		err := b.Idle()
		if err != nil {
			b.msg.Errorf("could not drive idle levels: %+v", err)
		}
	}()

	for {
		batch, err := q.Pop(ctx)
		if err != nil {
			return nil
		}
		b.cnt.batches.Add(1)

		for _, p := range batch.Photons {
			err := b.Transfer(ctx, p)
			switch {
			case err == nil:
				b.cnt.photons.Add(1)
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, ErrReadyTimeout):
				b.cnt.timeouts.Add(1)
				if b.cfg.stall != nil {
					b.cfg.stall(err)
				}
				if b.cfg.policy == ReadyAbort {
					b.msg.Errorf("downstream consumer stalled (seq=%d): %+v", batch.Seq, err)
					return err
				}
				b.msg.Warnf("abandoning photon %v (seq=%d): %+v", p, batch.Seq, err)
			default:
				b.cnt.faults.Add(1)
				b.msg.Errorf("could not transfer photon %v (seq=%d): %+v", p, batch.Seq, err)
			}
		}
	}
}
