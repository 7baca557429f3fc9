// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"math/rand"
	"reflect"
	"testing"

	"github.com/go-lpc/fodo/photon"
)

type recorder struct {
	dgs [][]byte
}

func (r *recorder) Write(p []byte) (int, error) {
	r.dgs = append(r.dgs, append([]byte(nil), p...))
	return len(p), nil
}

func TestGenerate(t *testing.T) {
	var (
		w = new(recorder)
		s = &sender{w: w, seq: 0xfffe}
	)
	err := s.generate(rand.New(rand.NewSource(1234)), 3, 2, 0)
	if err != nil {
		t.Fatalf("could not generate datagrams: %+v", err)
	}

	if got, want := len(w.dgs), 3; got != want {
		t.Fatalf("invalid number of datagrams: got=%d, want=%d", got, want)
	}
	if got, want := s.nphs, 6; got != want {
		t.Fatalf("invalid number of photons: got=%d, want=%d", got, want)
	}

	dec := photon.NewDecoder(photon.WithSequencePolicy(photon.SeqSerial))
	for i, raw := range w.dgs {
		var b photon.Batch
		err := dec.Decode(raw, &b)
		if err != nil {
			t.Fatalf("could not decode datagram %d: %+v", i, err)
		}
		if got, want := len(b.Photons), 2; got != want {
			t.Fatalf("invalid photons: got=%d, want=%d", got, want)
		}
	}
	if got, want := s.seq, uint16(1); got != want {
		t.Fatalf("invalid next sequence: got=%d, want=%d", got, want)
	}
}

func TestExec(t *testing.T) {
	var (
		w = new(recorder)
		s = &sender{w: w, seq: 1}
	)

	for _, tc := range []struct {
		line string
		quit bool
		err  bool
	}{
		{line: "9,18 255,0"},
		{line: "seq 0x2a"},
		{line: "0x10,3"},
		{line: "empty"},
		{line: "seq", err: true},
		{line: "seq 70000", err: true},
		{line: "1;2", err: true},
		{line: "256,1", err: true},
		{line: "1,y", err: true},
		{line: "quit", quit: true},
	} {
		t.Run(tc.line, func(t *testing.T) {
			quit, err := s.exec(tc.line)
			switch {
			case err != nil && tc.err:
				return
			case err != nil:
				t.Fatalf("could not exec %q: %+v", tc.line, err)
			case tc.err:
				t.Fatalf("expected an error")
			}
			if quit != tc.quit {
				t.Fatalf("invalid quit: got=%v, want=%v", quit, tc.quit)
			}
		})
	}

	want := [][]byte{
		mustMarshal(t, 1, photon.Photon{X: 9, Y: 18}, photon.Photon{X: 255, Y: 0}),
		mustMarshal(t, 42, photon.Photon{X: 16, Y: 3}),
		mustMarshal(t, 43),
	}
	if !reflect.DeepEqual(w.dgs, want) {
		t.Fatalf("invalid datagrams:\ngot= %x\nwant=%x", w.dgs, want)
	}
	if !bytes.Equal(w.dgs[2][:2], []byte{0, 0}) {
		t.Fatalf("invalid empty datagram: %x", w.dgs[2])
	}
}

func mustMarshal(t *testing.T, seq uint16, ps ...photon.Photon) []byte {
	t.Helper()
	raw, err := photon.Marshal(seq, ps)
	if err != nil {
		t.Fatalf("could not marshal: %+v", err)
	}
	return raw
}
