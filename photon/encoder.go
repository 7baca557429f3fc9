// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package photon

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encoder writes photon datagrams to an output stream.
// Each datagram is written with a single call to Write, so an Encoder
// may write to a UDP connection.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, 0, HeaderSize),
	}
}

// Encode writes a complete datagram holding the provided photons,
// with the seq sequence counter, to the stream.
func (enc *Encoder) Encode(seq uint16, ps []Photon) error {
	buf, err := appendDatagram(enc.buf[:0], seq, ps)
	if err != nil {
		return err
	}
	enc.buf = buf

	n, err := enc.w.Write(buf)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("photon: could not write datagram (seq=%d): %w", seq, err)
	}

	return nil
}

// Marshal returns the datagram holding the provided photons.
func Marshal(seq uint16, ps []Photon) ([]byte, error) {
	return appendDatagram(make([]byte, 0, HeaderSize+len(ps)*RecordSize), seq, ps)
}

func appendDatagram(p []byte, seq uint16, ps []Photon) ([]byte, error) {
	if len(ps) > math.MaxUint16 {
		return nil, fmt.Errorf("photon: too many photons (n=%d, max=%d)", len(ps), math.MaxUint16)
	}

	p = binary.LittleEndian.AppendUint16(p, uint16(len(ps)))
	p = binary.LittleEndian.AppendUint16(p, seq)
	p = binary.LittleEndian.AppendUint16(p, 0) // alignment
	for _, ph := range ps {
		rec := Pack(ph)
		p = append(p, rec[:]...)
	}
	return p, nil
}
