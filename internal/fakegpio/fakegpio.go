// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakegpio holds an in-memory GPIO chip recording all the
// operations applied to its pins.
package fakegpio // import "github.com/go-lpc/fodo/internal/fakegpio"

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-lpc/fodo/gpio"
)

// Op is the kind of an operation on a pin.
type Op uint8

const (
	OpMode Op = iota
	OpSet
	OpRead
	OpExt // level change driven by the emulated consumer
)

func (op Op) String() string {
	switch op {
	case OpMode:
		return "mode"
	case OpSet:
		return "set"
	case OpRead:
		return "read"
	case OpExt:
		return "ext"
	default:
		return fmt.Sprintf("Op(%d)", uint8(op))
	}
}

// Event is an operation recorded by the chip.
type Event struct {
	Op    Op
	Pin   gpio.Pin
	Level gpio.Level
	Mode  gpio.Mode
}

func (evt Event) String() string {
	switch evt.Op {
	case OpMode:
		return fmt.Sprintf("mode(%d)=%v", evt.Pin, evt.Mode)
	default:
		return fmt.Sprintf("%v(%d)=%v", evt.Op, evt.Pin, evt.Level)
	}
}

// Chip is a fake GPIO chip.
type Chip struct {
	mu     sync.Mutex
	levels map[gpio.Pin]gpio.Level
	modes  map[gpio.Pin]gpio.Mode
	events []Event
	closed bool

	ack struct {
		valid gpio.Pin
		read  gpio.Pin
		on    bool
		n     int // number of acknowledgments left (-1: unlimited)
	}

	// FailSet, when set, is called before each SetPin.
	FailSet func(p gpio.Pin, v gpio.Level) error
	// FailRead, when set, is called before each ReadPin.
	FailRead func(p gpio.Pin) error
}

// New returns a new fake chip with all pins low.
func New() *Chip {
	return &Chip{
		levels: make(map[gpio.Pin]gpio.Level),
		modes:  make(map[gpio.Pin]gpio.Mode),
	}
}

// Consumer emulates a downstream FIFO consumer: when valid is driven
// low the consumer drives read high, when valid is driven high again
// the consumer drives read low.
// The consumer stops acknowledging after n values if n is positive.
func (c *Chip) Consumer(valid, read gpio.Pin, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ack.valid = valid
	c.ack.read = read
	c.ack.on = true
	c.ack.n = -1
	if n > 0 {
		c.ack.n = n
	}
}

// Drive sets the level of an input pin.
func (c *Chip) Drive(p gpio.Pin, v gpio.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels[p] = v
	c.events = append(c.events, Event{Op: OpExt, Pin: p, Level: v})
}

func (c *Chip) SetMode(p gpio.Pin, m gpio.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("fakegpio: chip closed")
	}
	c.modes[p] = m
	c.events = append(c.events, Event{Op: OpMode, Pin: p, Mode: m})
	return nil
}

func (c *Chip) SetPin(p gpio.Pin, v gpio.Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("fakegpio: chip closed")
	}
	if c.FailSet != nil {
		if err := c.FailSet(p, v); err != nil {
			return err
		}
	}
	c.levels[p] = v
	c.events = append(c.events, Event{Op: OpSet, Pin: p, Level: v})

	if c.ack.on && p == c.ack.valid {
		ack := v.Not()
		if ack == gpio.High && c.ack.n == 0 {
			return nil // stalled consumer
		}
		if c.levels[c.ack.read] != ack {
			c.levels[c.ack.read] = ack
			c.events = append(c.events, Event{Op: OpExt, Pin: c.ack.read, Level: ack})
			if ack == gpio.High && c.ack.n > 0 {
				c.ack.n--
			}
		}
	}
	return nil
}

func (c *Chip) ReadPin(p gpio.Pin) (gpio.Level, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return gpio.Low, fmt.Errorf("fakegpio: chip closed")
	}
	if c.FailRead != nil {
		if err := c.FailRead(p); err != nil {
			return gpio.Low, err
		}
	}
	v := c.levels[p]
	c.events = append(c.events, Event{Op: OpRead, Pin: p, Level: v})
	return v, nil
}

func (c *Chip) Pulse(p gpio.Pin, first, second gpio.Level, unit time.Duration) error {
	err := c.SetPin(p, first)
	if err != nil {
		return err
	}
	time.Sleep(unit)
	err = c.SetPin(p, second)
	if err != nil {
		return err
	}
	time.Sleep(unit)
	return nil
}

func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Level returns the current level of a pin.
func (c *Chip) Level(p gpio.Pin) gpio.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levels[p]
}

// Mode returns the mode of a pin and whether it was configured.
func (c *Chip) Mode(p gpio.Pin) (gpio.Mode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.modes[p]
	return m, ok
}

// Events returns a copy of the recorded events.
func (c *Chip) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Reset clears the recorded events.
func (c *Chip) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

// Closed reports whether the chip was closed.
func (c *Chip) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Dump returns a representation of the recorded events, skipping reads.
func (c *Chip) Dump() string {
	o := new(strings.Builder)
	for _, evt := range c.Events() {
		if evt.Op == OpRead {
			continue
		}
		fmt.Fprintf(o, "%v\n", evt)
	}
	return o.String()
}

var _ gpio.Chip = (*Chip)(nil)
