// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package photon

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// SeqPolicy describes how sequence counters are compared.
type SeqPolicy int

const (
	// SeqMonotonic accepts a datagram only if its sequence counter is
	// strictly greater than the last accepted one.
	// The initial last accepted counter is 0 and wraparound is not handled.
	SeqMonotonic SeqPolicy = iota

	// SeqSerial compares sequence counters with 16-bit serial number
	// arithmetic (RFC 1982): a counter is newer if it is ahead of the
	// last accepted one by less than half the counter space.
	// The first datagram is always accepted.
	SeqSerial
)

func (p SeqPolicy) String() string {
	switch p {
	case SeqMonotonic:
		return "monotonic"
	case SeqSerial:
		return "serial"
	default:
		return fmt.Sprintf("SeqPolicy(%d)", int(p))
	}
}

// ParseSeqPolicy returns the sequence policy named s.
func ParseSeqPolicy(s string) (SeqPolicy, error) {
	switch strings.ToLower(s) {
	case "", "monotonic":
		return SeqMonotonic, nil
	case "serial":
		return SeqSerial, nil
	default:
		return 0, fmt.Errorf("photon: invalid sequence policy %q", s)
	}
}

// DecoderOption configures a Decoder.
type DecoderOption func(dec *Decoder)

// WithSequencePolicy sets the policy used to reject stale datagrams.
func WithSequencePolicy(p SeqPolicy) DecoderOption {
	return func(dec *Decoder) {
		dec.policy = p
	}
}

// Decoder validates and decodes photon datagrams.
// Decoder keeps track of the last accepted sequence counter.
type Decoder struct {
	policy SeqPolicy
	last   uint16
	seen   bool
}

// NewDecoder returns a new photon decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	dec := &Decoder{policy: SeqMonotonic}
	for _, opt := range opts {
		opt(dec)
	}
	return dec
}

// Last returns the last accepted sequence counter and whether a
// datagram was already accepted.
func (dec *Decoder) Last() (uint16, bool) {
	return dec.last, dec.seen
}

// Reset forgets about the last accepted sequence counter.
func (dec *Decoder) Reset() {
	dec.last = 0
	dec.seen = false
}

// DecodeHeader decodes the header of the provided datagram.
func DecodeHeader(raw []byte) (Header, error) {
	var hdr Header
	if len(raw) < HeaderSize {
		return hdr, fmt.Errorf("%w (len=%d)", ErrShortPacket, len(raw))
	}
	hdr.Count = binary.LittleEndian.Uint16(raw[0:2])
	hdr.Seq = binary.LittleEndian.Uint16(raw[2:4])
	hdr.Align[0] = raw[4]
	hdr.Align[1] = raw[5]
	return hdr, nil
}

// Decode validates the datagram raw and decodes its photons into b.
//
// Decode returns an error and leaves both b and the decoder state
// untouched if the datagram is rejected.
// Datagrams with no photon record are rejected with ErrEmpty, after
// their sequence counter has been accepted.
func (dec *Decoder) Decode(raw []byte, b *Batch) error {
	hdr, err := DecodeHeader(raw)
	if err != nil {
		return err
	}

	if hdr.Align != [2]byte{} {
		return fmt.Errorf("%w (0x%02x, 0x%02x)", ErrAlignment, hdr.Align[0], hdr.Align[1])
	}

	if !dec.newer(hdr.Seq) {
		return fmt.Errorf("%w (seq=%d, last=%d)", ErrStaleSequence, hdr.Seq, dec.last)
	}

	var (
		n    = int(hdr.Count)
		want = HeaderSize + n*RecordSize
	)
	if len(raw) < want {
		return fmt.Errorf("%w (len=%d, want=%d)", ErrTruncated, len(raw), want)
	}

	dec.last = hdr.Seq
	dec.seen = true

	if n == 0 {
		return fmt.Errorf("%w (seq=%d)", ErrEmpty, hdr.Seq)
	}

	ps := make([]Photon, n)
	for i := range ps {
		beg := HeaderSize + i*RecordSize
		ps[i] = Unpack(raw[beg : beg+RecordSize])
	}

	b.Seq = hdr.Seq
	b.Photons = ps
	return nil
}

func (dec *Decoder) newer(seq uint16) bool {
	switch dec.policy {
	case SeqSerial:
		if !dec.seen {
			return true
		}
		d := seq - dec.last
		return d != 0 && d < 0x8000
	default:
		return seq > dec.last
	}
}
