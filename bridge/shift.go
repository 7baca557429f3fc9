// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"github.com/go-lpc/fodo/gpio"
)

// tick pulses the shift clock.
func (b *Bridge) tick() error {
	return b.chip.Pulse(b.pins.Clock, gpio.High, gpio.Low, b.cfg.clock)
}

// clear resets the content of the shift register.
func (b *Bridge) clear() error {
	err := b.chip.SetPin(b.pins.Clear, b.pins.ClearActive)
	if err != nil {
		return err
	}
	err = b.tick()
	if err != nil {
		return err
	}
	return b.chip.SetPin(b.pins.Clear, b.pins.ClearActive.Not())
}

// shiftOut bit-bangs v on the data pin, one clock tick per bit.
func (b *Bridge) shiftOut(v uint8) error {
	for i := 0; i < 8; i++ {
		var bit uint8
		switch b.cfg.order {
		case gpio.LSBFirst:
			bit = (v >> i) & 0x1
		default:
			bit = (v >> (7 - i)) & 0x1
		}
		err := b.chip.SetPin(b.pins.Data, gpio.Level(bit))
		if err != nil {
			return err
		}
		err = b.tick()
		if err != nil {
			return err
		}
	}
	return nil
}
