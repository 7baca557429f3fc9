// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gpio describes the GPIO capability consumed by the bridge,
// together with drivers for the BCM283x memory-mapped GPIO controller
// and the MCP23017 I2C expander.
package gpio // import "github.com/go-lpc/fodo/gpio"

import (
	"fmt"
	"strings"
	"time"
)

// Level is the logic level of a pin.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

func (lvl Level) String() string {
	switch lvl {
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return fmt.Sprintf("Level(%d)", uint8(lvl))
	}
}

// ParseLevel parses a logic level ("low" or "high").
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "", "low", "0":
		return Low, nil
	case "high", "1":
		return High, nil
	default:
		return Low, fmt.Errorf("gpio: invalid level %q", s)
	}
}

// Not returns the opposite level.
func (lvl Level) Not() Level {
	if lvl == Low {
		return High
	}
	return Low
}

// Mode is the direction of a pin.
type Mode uint8

const (
	Input Mode = iota
	Output
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Pin is a GPIO pin number.
type Pin int

// NoPin marks an unused pin.
const NoPin Pin = -1

// BitOrder is the order in which bits of a byte are shifted out.
type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

func (o BitOrder) String() string {
	switch o {
	case MSBFirst:
		return "msb"
	case LSBFirst:
		return "lsb"
	default:
		return fmt.Sprintf("BitOrder(%d)", uint8(o))
	}
}

// ParseBitOrder parses a bit order ("msb" or "lsb").
func ParseBitOrder(s string) (BitOrder, error) {
	switch strings.ToLower(s) {
	case "", "msb", "msb-first":
		return MSBFirst, nil
	case "lsb", "lsb-first":
		return LSBFirst, nil
	default:
		return 0, fmt.Errorf("gpio: invalid bit order %q", s)
	}
}

// Chip is a set of GPIO pins.
type Chip interface {
	// SetMode configures the direction of a pin.
	SetMode(p Pin, m Mode) error
	// SetPin drives an output pin to the provided level.
	SetPin(p Pin, v Level) error
	// ReadPin returns the level of a pin.
	ReadPin(p Pin) (Level, error)
	// Pulse drives a pin to first, waits unit, drives it to second
	// and waits unit again.
	Pulse(p Pin, first, second Level, unit time.Duration) error

	Close() error
}

// pulse implements Chip.Pulse on top of Chip.SetPin.
func pulse(c Chip, p Pin, first, second Level, unit time.Duration) error {
	err := c.SetPin(p, first)
	if err != nil {
		return err
	}
	sleep(unit)
	err = c.SetPin(p, second)
	if err != nil {
		return err
	}
	sleep(unit)
	return nil
}

func sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}
