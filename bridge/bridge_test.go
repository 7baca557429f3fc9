// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/fodo/gpio"
	"github.com/go-lpc/fodo/internal/fakegpio"
	"github.com/go-lpc/fodo/internal/fifo"
	"github.com/go-lpc/fodo/photon"
)

var pins = gpio.DefaultPinTable()

func newBridge(t *testing.T, chip gpio.Chip, opts ...Option) *Bridge {
	t.Helper()
	msg := log.NewMsgStream("bridge", log.LvlError, os.Stderr)
	b := New(chip, pins, msg, opts...)
	err := b.Setup()
	if err != nil {
		t.Fatalf("could not setup bridge: %+v", err)
	}
	return b
}

func checkIdle(t *testing.T, chip *fakegpio.Chip) {
	t.Helper()
	for _, tc := range []struct {
		name string
		pin  gpio.Pin
		want gpio.Level
	}{
		{"data", pins.Data, gpio.Low},
		{"clock", pins.Clock, gpio.Low},
		{"latch", pins.Latch, gpio.Low},
		{"clear", pins.Clear, pins.ClearActive.Not()},
		{"oe", pins.OutEnable, pins.OutEnableActive.Not()},
		{"fifo-empty", pins.FIFOEmpty, gpio.High},
	} {
		if got := chip.Level(tc.pin); got != tc.want {
			t.Fatalf("invalid idle level for %s: got=%v, want=%v", tc.name, got, tc.want)
		}
	}
}

// shifted returns the data bits sampled at each rising edge of the clock.
func shifted(evts []fakegpio.Event) []gpio.Level {
	var (
		data gpio.Level
		bits []gpio.Level
	)
	for _, evt := range evts {
		if evt.Op != fakegpio.OpSet {
			continue
		}
		switch evt.Pin {
		case pins.Data:
			data = evt.Level
		case pins.Clock:
			if evt.Level == gpio.High {
				bits = append(bits, data)
			}
		}
	}
	return bits
}

func bitsOf(order gpio.BitOrder, vs ...uint8) []gpio.Level {
	var bits []gpio.Level
	for _, v := range vs {
		for i := 0; i < 8; i++ {
			switch order {
			case gpio.LSBFirst:
				bits = append(bits, gpio.Level((v>>i)&1))
			default:
				bits = append(bits, gpio.Level((v>>(7-i))&1))
			}
		}
	}
	return bits
}

func TestSetup(t *testing.T) {
	chip := fakegpio.New()
	b := newBridge(t, chip)

	for _, p := range pins.Outputs() {
		m, ok := chip.Mode(p)
		if !ok || m != gpio.Output {
			t.Fatalf("pin %d not configured as output", p)
		}
	}
	for _, p := range pins.Inputs() {
		m, ok := chip.Mode(p)
		if !ok || m != gpio.Input {
			t.Fatalf("pin %d not configured as input", p)
		}
	}
	checkIdle(t, chip)

	if got, want := b.State(), Idle; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}

	// clear pulse: clear asserted, one clock tick, clear released.
	var seq []fakegpio.Event
	for _, evt := range chip.Events() {
		if evt.Op != fakegpio.OpSet {
			continue
		}
		if evt.Pin == pins.Clear || evt.Pin == pins.Clock {
			seq = append(seq, evt)
		}
	}
	want := []fakegpio.Event{
		{Op: fakegpio.OpSet, Pin: pins.Clock, Level: gpio.Low},  // idle
		{Op: fakegpio.OpSet, Pin: pins.Clear, Level: gpio.High}, // idle
		{Op: fakegpio.OpSet, Pin: pins.Clear, Level: gpio.Low},
		{Op: fakegpio.OpSet, Pin: pins.Clock, Level: gpio.High},
		{Op: fakegpio.OpSet, Pin: pins.Clock, Level: gpio.Low},
		{Op: fakegpio.OpSet, Pin: pins.Clear, Level: gpio.High},
	}
	if !reflect.DeepEqual(seq, want) {
		t.Fatalf("invalid clear sequence:\ngot= %v\nwant=%v", seq, want)
	}
}

func TestSetupErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		pins func() gpio.PinTable
		fail func(p gpio.Pin, v gpio.Level) error
	}{
		{
			name: "invalid-pins",
			pins: func() gpio.PinTable {
				pt := gpio.DefaultPinTable()
				pt.Data = pt.Clock
				return pt
			},
		},
		{
			name: "idle",
			pins: gpio.DefaultPinTable,
			fail: func(p gpio.Pin, v gpio.Level) error {
				if p == pins.Latch {
					return fmt.Errorf("latch stuck")
				}
				return nil
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			chip := fakegpio.New()
			chip.FailSet = tc.fail
			msg := log.NewMsgStream("bridge", log.LvlError, os.Stderr)
			b := New(chip, tc.pins(), msg)
			if err := b.Setup(); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestTransfer(t *testing.T) {
	for _, order := range []gpio.BitOrder{gpio.MSBFirst, gpio.LSBFirst} {
		t.Run(order.String(), func(t *testing.T) {
			var (
				chip   = fakegpio.New()
				states []State
			)
			chip.Consumer(pins.FIFOEmpty, pins.FIFORead, 0)

			b := newBridge(t, chip,
				WithBitOrder(order),
				WithTrace(func(s State) { states = append(states, s) }),
			)
			chip.Reset()
			states = states[:0]

			err := b.Transfer(context.Background(), photon.Photon{X: 9, Y: 18})
			if err != nil {
				t.Fatalf("could not transfer photon: %+v", err)
			}

			if got, want := shifted(chip.Events()), bitsOf(order, 18, 9); !reflect.DeepEqual(got, want) {
				t.Fatalf("invalid shifted bits:\ngot= %v\nwant=%v", got, want)
			}

			want := []State{ShiftY, ShiftX, Latch, AssertValid, WaitReady, Deassert, Idle}
			if !reflect.DeepEqual(states, want) {
				t.Fatalf("invalid state transitions:\ngot= %v\nwant=%v", states, want)
			}

			checkIdle(t, chip)
		})
	}
}

func TestLatchAndHandshake(t *testing.T) {
	chip := fakegpio.New()
	chip.Consumer(pins.FIFOEmpty, pins.FIFORead, 0)

	b := newBridge(t, chip)
	chip.Reset()

	err := b.Transfer(context.Background(), photon.Photon{X: 1, Y: 2})
	if err != nil {
		t.Fatalf("could not transfer photon: %+v", err)
	}

	var tail []fakegpio.Event
	for _, evt := range chip.Events() {
		switch {
		case evt.Op == fakegpio.OpRead:
			continue
		case evt.Pin == pins.Data, evt.Pin == pins.Clock:
			continue
		}
		tail = append(tail, evt)
	}

	want := []fakegpio.Event{
		{Op: fakegpio.OpSet, Pin: pins.Latch, Level: gpio.High},
		{Op: fakegpio.OpSet, Pin: pins.Latch, Level: gpio.Low},
		{Op: fakegpio.OpSet, Pin: pins.OutEnable, Level: gpio.Low},
		{Op: fakegpio.OpSet, Pin: pins.FIFOEmpty, Level: gpio.Low},
		{Op: fakegpio.OpExt, Pin: pins.FIFORead, Level: gpio.High},
		{Op: fakegpio.OpSet, Pin: pins.FIFOEmpty, Level: gpio.High},
		{Op: fakegpio.OpExt, Pin: pins.FIFORead, Level: gpio.Low},
		{Op: fakegpio.OpSet, Pin: pins.OutEnable, Level: gpio.High},
	}
	if !reflect.DeepEqual(tail, want) {
		t.Fatalf("invalid hand-shake sequence:\ngot= %v\nwant=%v", tail, want)
	}
}

func runBridge(b *Bridge, q *fifo.Queue[photon.Batch]) (context.CancelFunc, chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Run(ctx, q)
	}()
	return cancel, done
}

func waitFor(t *testing.T, f func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !f() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunHandshakeOrdering(t *testing.T) {
	chip := fakegpio.New()
	chip.Consumer(pins.FIFOEmpty, pins.FIFORead, 0)

	var (
		b = newBridge(t, chip, WithPollInterval(10*time.Microsecond))
		q = fifo.New[photon.Batch](4)
	)
	chip.Reset()

	q.Push(photon.Batch{Seq: 1, Photons: []photon.Photon{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}}})
	q.Push(photon.Batch{Seq: 2, Photons: []photon.Photon{{X: 7, Y: 8}, {X: 9, Y: 10}}})

	cancel, done := runBridge(b, q)
	waitFor(t, func() bool { return b.Stats().Photons == 5 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("could not run bridge: %+v", err)
	}

	var (
		valid  = false // inside an AssertValid window
		acked  = false // fifo-read observed high in the current window
		nvalid = 0
	)
	for i, evt := range chip.Events() {
		switch {
		case evt.Op == fakegpio.OpSet && evt.Pin == pins.FIFOEmpty && evt.Level == gpio.Low:
			if valid {
				t.Fatalf("event %d: overlapping valid windows", i)
			}
			valid = true
			acked = false
			nvalid++
		case evt.Op == fakegpio.OpRead && evt.Pin == pins.FIFORead && evt.Level == gpio.High:
			if !valid {
				t.Fatalf("event %d: acknowledgment outside of a valid window", i)
			}
			acked = true
		case evt.Op == fakegpio.OpSet && evt.Pin == pins.FIFOEmpty && evt.Level == gpio.High:
			if valid && !acked {
				t.Fatalf("event %d: valid window closed before acknowledgment", i)
			}
			valid = false
		case evt.Op == fakegpio.OpSet && (evt.Pin == pins.Clock || evt.Pin == pins.Data):
			if valid {
				t.Fatalf("event %d: shifting while a value is valid", i)
			}
		}
	}
	if got, want := nvalid, 5; got != want {
		t.Fatalf("invalid number of valid windows: got=%d, want=%d", got, want)
	}

	want := Stats{Photons: 5, Batches: 2}
	if got := b.Stats(); got != want {
		t.Fatalf("invalid stats:\ngot= %+v\nwant=%+v", got, want)
	}
	checkIdle(t, chip)
}

func TestRunHeldAcknowledgment(t *testing.T) {
	chip := fakegpio.New() // fifo-read driven by hand.

	var (
		b = newBridge(t, chip, WithPollInterval(10*time.Microsecond))
		q = fifo.New[photon.Batch](4)
	)
	q.Push(photon.Batch{Seq: 1, Photons: []photon.Photon{{X: 1, Y: 2}, {X: 3, Y: 4}}})

	cancel, done := runBridge(b, q)
	defer cancel()

	waitFor(t, func() bool { return b.State() == WaitReady })
	chip.Drive(pins.FIFORead, gpio.High) // acknowledged, and held.

	waitFor(t, func() bool { return b.Stats().Photons == 1 })
	waitFor(t, func() bool { return b.State() == AssertValid })

	time.Sleep(5 * time.Millisecond)
	if got, want := b.Stats().Photons, uint64(1); got != want {
		t.Fatalf("photon acknowledged by a held fifo-read: got=%d, want=%d", got, want)
	}
	if got, want := chip.Level(pins.FIFOEmpty), gpio.High; got != want {
		t.Fatalf("value presented while fifo-read held: got=%v, want=%v", got, want)
	}

	chip.Drive(pins.FIFORead, gpio.Low)
	waitFor(t, func() bool { return b.State() == WaitReady })
	if got, want := b.Stats().Photons, uint64(1); got != want {
		t.Fatalf("invalid photons count: got=%d, want=%d", got, want)
	}

	chip.Drive(pins.FIFORead, gpio.High)
	waitFor(t, func() bool { return b.Stats().Photons == 2 })
	chip.Drive(pins.FIFORead, gpio.Low)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("could not run bridge: %+v", err)
	}

	nvalid := 0
	for _, evt := range chip.Events() {
		if evt.Op == fakegpio.OpSet && evt.Pin == pins.FIFOEmpty && evt.Level == gpio.Low {
			nvalid++
		}
	}
	if got, want := nvalid, 2; got != want {
		t.Fatalf("invalid number of valid windows: got=%d, want=%d", got, want)
	}
	checkIdle(t, chip)
}

func TestRunStuckAcknowledgment(t *testing.T) {
	chip := fakegpio.New()
	chip.Drive(pins.FIFORead, gpio.High) // stuck high from the start.

	var (
		b = newBridge(t, chip,
			WithPollInterval(100*time.Microsecond),
			WithReadyTimeout(2*time.Millisecond, ReadyAbort),
		)
		q = fifo.New[photon.Batch](4)
	)
	chip.Reset()
	q.Push(photon.Batch{Seq: 1, Photons: []photon.Photon{{X: 1, Y: 2}}})

	cancel, done := runBridge(b, q)
	defer cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrReadyTimeout) {
			t.Fatalf("invalid error: got=%v, want=%v", err, ErrReadyTimeout)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for bridge to abort")
	}

	want := Stats{Batches: 1, Timeouts: 1}
	if got := b.Stats(); got != want {
		t.Fatalf("invalid stats:\ngot= %+v\nwant=%+v", got, want)
	}
	for i, evt := range chip.Events() {
		if evt.Op == fakegpio.OpSet && evt.Pin == pins.FIFOEmpty && evt.Level == gpio.Low {
			t.Fatalf("event %d: value presented while fifo-read held", i)
		}
	}
	checkIdle(t, chip)
}

func TestRunShutdownWhileWaiting(t *testing.T) {
	chip := fakegpio.New() // no consumer: fifo-read never asserted.

	var (
		b = newBridge(t, chip)
		q = fifo.New[photon.Batch](4)
	)
	q.Push(photon.Batch{Seq: 1, Photons: []photon.Photon{{X: 1, Y: 2}}})

	cancel, done := runBridge(b, q)
	waitFor(t, func() bool { return b.State() == WaitReady })

	if got, want := chip.Level(pins.FIFOEmpty), gpio.Low; got != want {
		t.Fatalf("invalid fifo-empty level while waiting: got=%v, want=%v", got, want)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("could not run bridge: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for bridge shutdown")
	}

	checkIdle(t, chip)
	if got, want := b.State(), Idle; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
	if got, want := b.Stats().Photons, uint64(0); got != want {
		t.Fatalf("invalid photons count: got=%d, want=%d", got, want)
	}
}

func TestRunReadyTimeout(t *testing.T) {
	for _, tc := range []struct {
		policy ReadyPolicy
		err    error
		want   Stats
	}{
		{
			policy: ReadySkip,
			want:   Stats{Photons: 1, Batches: 1, Timeouts: 2},
		},
		{
			policy: ReadyAbort,
			err:    ErrReadyTimeout,
			want:   Stats{Photons: 1, Batches: 1, Timeouts: 1},
		},
	} {
		t.Run(tc.policy.String(), func(t *testing.T) {
			chip := fakegpio.New()
			chip.Consumer(pins.FIFOEmpty, pins.FIFORead, 1)

			stalls := make(chan error, 8)
			var (
				b = newBridge(t, chip,
					WithPollInterval(100*time.Microsecond),
					WithReadyTimeout(2*time.Millisecond, tc.policy),
					WithStallHook(func(err error) { stalls <- err }),
				)
				q = fifo.New[photon.Batch](4)
			)
			q.Push(photon.Batch{Seq: 1, Photons: []photon.Photon{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}}})

			cancel, done := runBridge(b, q)
			defer cancel()

			switch tc.err {
			case nil:
				waitFor(t, func() bool { return b.Stats().Timeouts == tc.want.Timeouts })
				cancel()
				if err := <-done; err != nil {
					t.Fatalf("could not run bridge: %+v", err)
				}
			default:
				select {
				case err := <-done:
					if !errors.Is(err, tc.err) {
						t.Fatalf("invalid error: got=%v, want=%v", err, tc.err)
					}
				case <-time.After(5 * time.Second):
					t.Fatalf("timeout waiting for bridge to abort")
				}
			}

			if got := b.Stats(); got != tc.want {
				t.Fatalf("invalid stats:\ngot= %+v\nwant=%+v", got, tc.want)
			}
			if got, want := len(stalls), int(tc.want.Timeouts); got != want {
				t.Fatalf("invalid number of stall notifications: got=%d, want=%d", got, want)
			}
			checkIdle(t, chip)
		})
	}
}

func TestRunFault(t *testing.T) {
	chip := fakegpio.New()
	chip.Consumer(pins.FIFOEmpty, pins.FIFORead, 0)

	var (
		b = newBridge(t, chip)
		q = fifo.New[photon.Batch](4)
	)

	n := 0
	chip.FailSet = func(p gpio.Pin, v gpio.Level) error {
		if p == pins.Clock && v == gpio.High {
			n++
			if n == 3 {
				return fmt.Errorf("clock stuck")
			}
		}
		return nil
	}

	q.Push(photon.Batch{Seq: 1, Photons: []photon.Photon{{X: 1, Y: 2}, {X: 3, Y: 4}}})

	cancel, done := runBridge(b, q)
	waitFor(t, func() bool {
		st := b.Stats()
		return st.Photons+st.Faults == 2
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("could not run bridge: %+v", err)
	}

	want := Stats{Photons: 1, Batches: 1, Faults: 1}
	if got := b.Stats(); got != want {
		t.Fatalf("invalid stats:\ngot= %+v\nwant=%+v", got, want)
	}
	checkIdle(t, chip)
}

func TestParseReadyPolicy(t *testing.T) {
	for _, tc := range []struct {
		name string
		want ReadyPolicy
		err  bool
	}{
		{"", ReadyAbort, false},
		{"abort", ReadyAbort, false},
		{"skip", ReadySkip, false},
		{"Retry", ReadySkip, false},
		{"ignore", 0, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseReadyPolicy(tc.name)
			if got, want := err != nil, tc.err; got != want {
				t.Fatalf("invalid error: got=%v, want=%v (err=%v)", got, want, err)
			}
			if got != tc.want {
				t.Fatalf("invalid policy: got=%v, want=%v", got, tc.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Idle:        "idle",
		ShiftY:      "shift-y",
		ShiftX:      "shift-x",
		Latch:       "latch",
		AssertValid: "assert-valid",
		WaitReady:   "wait-ready",
		Deassert:    "deassert",
		State(42):   "State(42)",
	} {
		if got := s.String(); got != want {
			t.Fatalf("invalid state name: got=%q, want=%q", got, want)
		}
	}
}
