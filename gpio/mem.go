// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gpio

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-lpc/fodo/internal/mmap"
)

// BCM283x GPIO controller registers.
const (
	memGPFSEL0 = 0x00 // function select
	memGPSET0  = 0x1c // pin output set
	memGPCLR0  = 0x28 // pin output clear
	memGPLEV0  = 0x34 // pin level

	memSpan  = 0x1000
	memNPins = 54
)

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

type reg32 struct {
	r func() uint32
	w func(v uint32)
}

func newReg32(chip *Mem, rw rwer, offset int64) reg32 {
	return reg32{
		r: func() uint32 {
			return chip.readU32(rw, offset)
		},
		w: func(v uint32) {
			chip.writeU32(rw, offset, v)
		},
	}
}

// Mem is a BCM283x GPIO controller accessed through its memory-mapped
// registers (e.g. /dev/gpiomem on a Raspberry Pi.)
type Mem struct {
	mu  sync.Mutex
	mem *mmap.Handle

	err  error
	xbuf [4]byte

	regs struct {
		fsel [6]reg32
		set  [2]reg32
		clr  [2]reg32
		lev  [2]reg32
	}
}

// OpenMem opens the GPIO controller memory device fname.
func OpenMem(fname string) (*Mem, error) {
	mem, err := mmap.Open(fname, memSpan)
	if err != nil {
		return nil, fmt.Errorf("gpio: could not map GPIO registers: %w", err)
	}
	return newMem(mem), nil
}

func newMem(mem *mmap.Handle) *Mem {
	chip := &Mem{mem: mem}
	for i := range chip.regs.fsel {
		chip.regs.fsel[i] = newReg32(chip, mem, memGPFSEL0+4*int64(i))
	}
	for i := range chip.regs.set {
		chip.regs.set[i] = newReg32(chip, mem, memGPSET0+4*int64(i))
		chip.regs.clr[i] = newReg32(chip, mem, memGPCLR0+4*int64(i))
		chip.regs.lev[i] = newReg32(chip, mem, memGPLEV0+4*int64(i))
	}
	return chip
}

func (chip *Mem) readU32(r io.ReaderAt, off int64) uint32 {
	if chip.err != nil {
		return 0
	}
	_, chip.err = r.ReadAt(chip.xbuf[:4], off)
	if chip.err != nil {
		chip.err = fmt.Errorf("gpio: could not read register 0x%x: %w", off, chip.err)
		return 0
	}
	return binary.LittleEndian.Uint32(chip.xbuf[:4])
}

func (chip *Mem) writeU32(w io.WriterAt, off int64, v uint32) {
	if chip.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(chip.xbuf[:4], v)
	_, chip.err = w.WriteAt(chip.xbuf[:4], off)
	if chip.err != nil {
		chip.err = fmt.Errorf("gpio: could not write register 0x%x: %w", off, chip.err)
		return
	}
}

func (chip *Mem) check(p Pin) error {
	if chip.mem == nil {
		return fmt.Errorf("gpio: chip closed")
	}
	if p < 0 || p >= memNPins {
		return fmt.Errorf("gpio: invalid pin %d", p)
	}
	return nil
}

// flush returns and clears the sticky register error.
func (chip *Mem) flush() error {
	err := chip.err
	chip.err = nil
	return err
}

func (chip *Mem) SetMode(p Pin, m Mode) error {
	chip.mu.Lock()
	defer chip.mu.Unlock()

	if err := chip.check(p); err != nil {
		return err
	}

	var (
		reg   = chip.regs.fsel[p/10]
		shift = 3 * (uint32(p) % 10)
		v     = reg.r() &^ (0x7 << shift)
	)
	if m == Output {
		v |= 0x1 << shift
	}
	reg.w(v)

	if err := chip.flush(); err != nil {
		return fmt.Errorf("gpio: could not set mode of pin %d to %v: %w", p, m, err)
	}
	return nil
}

func (chip *Mem) SetPin(p Pin, v Level) error {
	chip.mu.Lock()
	defer chip.mu.Unlock()

	if err := chip.check(p); err != nil {
		return err
	}

	bit := uint32(1) << (uint32(p) % 32)
	switch v {
	case Low:
		chip.regs.clr[p/32].w(bit)
	default:
		chip.regs.set[p/32].w(bit)
	}

	if err := chip.flush(); err != nil {
		return fmt.Errorf("gpio: could not set pin %d to %v: %w", p, v, err)
	}
	return nil
}

func (chip *Mem) ReadPin(p Pin) (Level, error) {
	chip.mu.Lock()
	defer chip.mu.Unlock()

	if err := chip.check(p); err != nil {
		return Low, err
	}

	v := chip.regs.lev[p/32].r()
	if err := chip.flush(); err != nil {
		return Low, fmt.Errorf("gpio: could not read pin %d: %w", p, err)
	}
	return Level((v >> (uint32(p) % 32)) & 0x1), nil
}

func (chip *Mem) Pulse(p Pin, first, second Level, unit time.Duration) error {
	return pulse(chip, p, first, second, unit)
}

// Close unmaps the GPIO registers and closes the memory device.
func (chip *Mem) Close() error {
	chip.mu.Lock()
	defer chip.mu.Unlock()

	if chip.mem == nil {
		return nil
	}

	err := chip.mem.Close()
	chip.mem = nil
	if err != nil {
		return fmt.Errorf("gpio: could not close GPIO registers: %w", err)
	}
	return nil
}
