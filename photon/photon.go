// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package photon holds types to encode and decode photon datagrams.
//
// A photon datagram is a 6-byte little-endian header followed by a
// sequence of 6-byte photon records:
//
//	offset 0-1: photon count      (u16)
//	offset 2-3: sequence counter  (u16)
//	offset 4-5: alignment         (must be 0x0000)
//	offset 6..: count × 6-byte records
//
// Each record packs the X and Y coordinates in the upper 11 bits of two
// little-endian 16-bit fields. The last 2 bytes of a record are reserved.
package photon // import "github.com/go-lpc/fodo/photon"

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	HeaderSize = 6 // size in bytes of a datagram header
	RecordSize = 6 // size in bytes of a photon record
)

var (
	ErrShortPacket   = errors.New("photon: packet too short")
	ErrAlignment     = errors.New("photon: invalid alignment bytes")
	ErrStaleSequence = errors.New("photon: stale sequence counter")
	ErrTruncated     = errors.New("photon: truncated payload")
	ErrEmpty         = errors.New("photon: empty packet")
)

// Header is the header of a photon datagram.
type Header struct {
	Count uint16  // number of photon records
	Seq   uint16  // sequence counter
	Align [2]byte // alignment bytes
}

// Photon is a decoded photon event.
type Photon struct {
	X uint8
	Y uint8
}

func (p Photon) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Batch is the ordered list of photons decoded from a single datagram.
type Batch struct {
	Seq     uint16    // sequence counter of the datagram
	Time    time.Time // reception time of the datagram
	Photons []Photon
}

// Unpack decodes a 6-byte photon record.
func Unpack(rec []byte) Photon {
	_ = rec[3] // bound check hint
	return Photon{
		X: coord(rec[0], rec[1]),
		Y: coord(rec[2], rec[3]),
	}
}

// Pack encodes a photon into a 6-byte record.
// Pack is the inverse of Unpack.
func Pack(p Photon) [RecordSize]byte {
	return [RecordSize]byte{
		(p.X & 0x7) << 5, p.X >> 3,
		(p.Y & 0x7) << 5, p.Y >> 3,
		0, 0,
	}
}

func coord(lo, hi byte) uint8 {
	return uint8(((int(hi) << 3) + (int(lo) >> 5)) & 0xff)
}

const (
	maxDumpBytes   = 62
	maxDumpPhotons = 10
)

// dumpBytes returns a hex representation of the first bytes of p.
func dumpBytes(p []byte) string {
	n := len(p)
	if n > maxDumpBytes {
		p = p[:maxDumpBytes]
	}
	o := new(strings.Builder)
	fmt.Fprintf(o, "[% x", p)
	if n > maxDumpBytes {
		fmt.Fprintf(o, " ...(%d bytes)", n)
	}
	o.WriteString("]")
	return o.String()
}

// dumpPhotons returns a representation of the first photons of ps.
func dumpPhotons(ps []Photon) string {
	n := len(ps)
	if n > maxDumpPhotons {
		ps = ps[:maxDumpPhotons]
	}
	o := new(strings.Builder)
	o.WriteString("[")
	for i, p := range ps {
		if i > 0 {
			o.WriteString(" ")
		}
		o.WriteString(p.String())
	}
	if n > maxDumpPhotons {
		fmt.Fprintf(o, " ...(%d photons)", n)
	}
	o.WriteString("]")
	return o.String()
}
