// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gpio

import (
	"fmt"
	"sort"
	"strings"
)

// PinTable is the assignment of the bus and hand-shake signals to pins.
type PinTable struct {
	Data      Pin // serial data out
	Clock     Pin // shift clock
	Latch     Pin // storage register latch
	Clear     Pin // shift register clear
	OutEnable Pin // output enable
	FIFOFull  Pin // downstream FIFO full (optional)
	FIFOEmpty Pin // valid data present (asserted high when empty)
	FIFORead  Pin // downstream read acknowledgment

	ClearActive     Level // level clearing the shift register
	OutEnableActive Level // level enabling the register outputs
}

// DefaultPinTable returns the pin assignment of the parallel output board.
func DefaultPinTable() PinTable {
	return PinTable{
		Data:      1,
		Clock:     2,
		Latch:     3,
		Clear:     5,
		OutEnable: 6,
		FIFOFull:  13,
		FIFOEmpty: 14,
		FIFORead:  15,

		ClearActive:     Low,
		OutEnableActive: Low,
	}
}

// Role is the name of a signal in a pin table.
type Role string

const (
	RoleData      Role = "data"
	RoleClock     Role = "clock"
	RoleLatch     Role = "latch"
	RoleClear     Role = "clear"
	RoleOutEnable Role = "oe"
	RoleFIFOFull  Role = "fifo-full"
	RoleFIFOEmpty Role = "fifo-empty"
	RoleFIFORead  Role = "fifo-read"
)

// Roles lists all the signals of a pin table.
var Roles = []Role{
	RoleData, RoleClock, RoleLatch, RoleClear, RoleOutEnable,
	RoleFIFOFull, RoleFIFOEmpty, RoleFIFORead,
}

func (pt *PinTable) ptr(r Role) *Pin {
	switch r {
	case RoleData:
		return &pt.Data
	case RoleClock:
		return &pt.Clock
	case RoleLatch:
		return &pt.Latch
	case RoleClear:
		return &pt.Clear
	case RoleOutEnable:
		return &pt.OutEnable
	case RoleFIFOFull:
		return &pt.FIFOFull
	case RoleFIFOEmpty:
		return &pt.FIFOEmpty
	case RoleFIFORead:
		return &pt.FIFORead
	}
	return nil
}

// Pin returns the pin assigned to the provided role.
func (pt PinTable) Pin(r Role) (Pin, bool) {
	p := pt.ptr(r)
	if p == nil {
		return NoPin, false
	}
	return *p, true
}

// Set assigns a pin to the provided role.
func (pt *PinTable) Set(r Role, pin Pin) error {
	p := pt.ptr(r)
	if p == nil {
		return fmt.Errorf("gpio: invalid pin role %q", r)
	}
	*p = pin
	return nil
}

// Outputs returns the pins driven by the bridge.
func (pt PinTable) Outputs() []Pin {
	return []Pin{pt.Data, pt.Clock, pt.Latch, pt.Clear, pt.OutEnable, pt.FIFOEmpty}
}

// Inputs returns the pins read by the bridge.
func (pt PinTable) Inputs() []Pin {
	ps := []Pin{pt.FIFORead}
	if pt.FIFOFull != NoPin {
		ps = append(ps, pt.FIFOFull)
	}
	return ps
}

// Validate checks that all mandatory roles are assigned to distinct pins.
func (pt PinTable) Validate() error {
	var (
		seen = make(map[Pin]Role, len(Roles))
		errs []string
	)
	for _, r := range Roles {
		p, _ := pt.Pin(r)
		if p == NoPin && r == RoleFIFOFull {
			continue
		}
		if p < 0 {
			errs = append(errs, fmt.Sprintf("invalid pin %d for %q", p, r))
			continue
		}
		if o, dup := seen[p]; dup {
			errs = append(errs, fmt.Sprintf("pin %d assigned to %q and %q", p, o, r))
			continue
		}
		seen[p] = r
	}
	for _, lvl := range []Level{pt.ClearActive, pt.OutEnableActive} {
		if lvl != Low && lvl != High {
			errs = append(errs, fmt.Sprintf("invalid active level %d", lvl))
		}
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("gpio: invalid pin table: %s", strings.Join(errs, ", "))
	}
	return nil
}
