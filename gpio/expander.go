// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/smbus"
)

// MCP23017 registers, with IOCON.BANK=0.
const (
	mcpIODIRA = 0x00
	mcpIODIRB = 0x01
	mcpGPIOA  = 0x12
	mcpGPIOB  = 0x13
	mcpOLATA  = 0x14
	mcpOLATB  = 0x15

	mcpNPins = 16
)

type smbusConn interface {
	ReadReg(addr, reg uint8) (uint8, error)
	WriteReg(addr, reg, v uint8) error
	Close() error
}

var smbusOpen = smbusOpenImpl

func smbusOpenImpl(bus int, addr uint8) (smbusConn, error) {
	return smbus.Open(bus, addr)
}

// Expander is a MCP23017 16-bit I/O expander driven over SMBus.
// Pins 0 to 7 map to GPA0-GPA7, pins 8 to 15 to GPB0-GPB7.
type Expander struct {
	mu   sync.Mutex
	conn smbusConn
	addr uint8
}

// OpenI2C opens the MCP23017 expander at addr on the provided I2C bus.
func OpenI2C(bus int, addr uint8) (*Expander, error) {
	conn, err := smbusOpen(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("gpio: could not open i2c-%d (addr=0x%x): %w", bus, addr, err)
	}
	return &Expander{conn: conn, addr: addr}, nil
}

func (dev *Expander) reg(p Pin, a, b uint8) (uint8, uint8, error) {
	if dev.conn == nil {
		return 0, 0, fmt.Errorf("gpio: expander closed")
	}
	switch {
	case p >= 0 && p < 8:
		return a, uint8(1) << uint(p), nil
	case p >= 8 && p < mcpNPins:
		return b, uint8(1) << uint(p-8), nil
	default:
		return 0, 0, fmt.Errorf("gpio: invalid pin %d", p)
	}
}

// update sets or clears the bit of register reg.
func (dev *Expander) update(reg, bit uint8, set bool) error {
	v, err := dev.conn.ReadReg(dev.addr, reg)
	if err != nil {
		return fmt.Errorf("could not read register 0x%x: %w", reg, err)
	}
	if set {
		v |= bit
	} else {
		v &^= bit
	}
	err = dev.conn.WriteReg(dev.addr, reg, v)
	if err != nil {
		return fmt.Errorf("could not write register 0x%x: %w", reg, err)
	}
	return nil
}

func (dev *Expander) SetMode(p Pin, m Mode) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	reg, bit, err := dev.reg(p, mcpIODIRA, mcpIODIRB)
	if err != nil {
		return err
	}
	err = dev.update(reg, bit, m == Input)
	if err != nil {
		return fmt.Errorf("gpio: could not set mode of pin %d to %v: %w", p, m, err)
	}
	return nil
}

func (dev *Expander) SetPin(p Pin, v Level) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	reg, bit, err := dev.reg(p, mcpOLATA, mcpOLATB)
	if err != nil {
		return err
	}
	err = dev.update(reg, bit, v != Low)
	if err != nil {
		return fmt.Errorf("gpio: could not set pin %d to %v: %w", p, v, err)
	}
	return nil
}

func (dev *Expander) ReadPin(p Pin) (Level, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	reg, bit, err := dev.reg(p, mcpGPIOA, mcpGPIOB)
	if err != nil {
		return Low, err
	}
	v, err := dev.conn.ReadReg(dev.addr, reg)
	if err != nil {
		return Low, fmt.Errorf("gpio: could not read pin %d: %w", p, err)
	}
	if v&bit != 0 {
		return High, nil
	}
	return Low, nil
}

func (dev *Expander) Pulse(p Pin, first, second Level, unit time.Duration) error {
	return pulse(dev, p, first, second, unit)
}

func (dev *Expander) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.conn == nil {
		return nil
	}
	err := dev.conn.Close()
	dev.conn = nil
	if err != nil {
		return fmt.Errorf("gpio: could not close expander: %w", err)
	}
	return nil
}

var _ Chip = (*Expander)(nil)
