// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"fmt"
	"strings"
)

// State is a state of the bus hand-shake state machine.
type State uint32

const (
	Idle        State = iota // bus idle, waiting for a photon
	ShiftY                   // shifting out the Y coordinate
	ShiftX                   // shifting out the X coordinate
	Latch                    // latching the shift register
	AssertValid              // outputs enabled, fifo-empty deasserted
	WaitReady                // waiting for the fifo-read acknowledgment
	Deassert                 // fifo-empty asserted, outputs disabled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ShiftY:
		return "shift-y"
	case ShiftX:
		return "shift-x"
	case Latch:
		return "latch"
	case AssertValid:
		return "assert-valid"
	case WaitReady:
		return "wait-ready"
	case Deassert:
		return "deassert"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// ReadyPolicy describes how the bridge reacts to a downstream consumer
// that does not acknowledge a value in time.
type ReadyPolicy uint8

const (
	// ReadyAbort stops the bridge with an error.
	ReadyAbort ReadyPolicy = iota
	// ReadySkip abandons the current photon and carries on with the next one.
	ReadySkip
)

func (p ReadyPolicy) String() string {
	switch p {
	case ReadyAbort:
		return "abort"
	case ReadySkip:
		return "skip"
	default:
		return fmt.Sprintf("ReadyPolicy(%d)", uint8(p))
	}
}

// ParseReadyPolicy parses a ready policy ("abort" or "skip").
func ParseReadyPolicy(s string) (ReadyPolicy, error) {
	switch strings.ToLower(s) {
	case "", "abort", "fatal":
		return ReadyAbort, nil
	case "skip", "retry":
		return ReadySkip, nil
	default:
		return 0, fmt.Errorf("bridge: invalid ready policy %q", s)
	}
}
