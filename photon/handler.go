// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package photon

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/fodo/ingest"
	"github.com/go-lpc/fodo/internal/fifo"
)

// Handler is the decode stage of the bridge.
// Handler pops raw datagrams from its input queue, decodes them and
// pushes the resulting photon batches to its output queue.
type Handler struct {
	msg log.MsgStream
	dec *Decoder
	in  *fifo.Queue[ingest.Datagram]
	out *fifo.Queue[Batch]

	cnt struct {
		decoded  atomic.Uint64
		photons  atomic.Uint64
		rejected atomic.Uint64
		empty    atomic.Uint64
		dropped  atomic.Uint64
	}
}

// HandlerStats holds the counters of a decode stage.
type HandlerStats struct {
	Decoded  uint64 // datagrams successfully decoded
	Photons  uint64 // photons decoded
	Rejected uint64 // datagrams rejected
	Empty    uint64 // valid datagrams without any photon
	Dropped  uint64 // batches dropped because the output queue was full
}

// NewHandler creates a new decode stage.
func NewHandler(dec *Decoder, in *fifo.Queue[ingest.Datagram], out *fifo.Queue[Batch], msg log.MsgStream) *Handler {
	if dec == nil {
		dec = NewDecoder()
	}
	return &Handler{
		msg: msg,
		dec: dec,
		in:  in,
		out: out,
	}
}

// Decoder returns the underlying decoder.
func (h *Handler) Decoder() *Decoder { return h.dec }

// Run runs the decode loop until ctx is done.
// A rejected datagram never stops the loop.
func (h *Handler) Run(ctx context.Context) error {
	for {
		dg, err := h.in.Pop(ctx)
		if err != nil {
			return nil
		}
		h.handle(dg)
	}
}

func (h *Handler) handle(dg ingest.Datagram) {
	h.msg.Debugf("packet size: %d", len(dg.Data))
	h.msg.Debugf("packet: %s", dumpBytes(dg.Data))

	b := Batch{Time: dg.Time}
	err := h.dec.Decode(dg.Data, &b)
	switch {
	case err == nil:
		// ok.
	case errors.Is(err, ErrEmpty):
		h.cnt.empty.Add(1)
		h.msg.Debugf("no photons: %v", err)
		return
	default:
		h.cnt.rejected.Add(1)
		h.msg.Debugf("rejected packet from %v: %+v", dg.Addr, err)
		return
	}

	h.cnt.decoded.Add(1)
	h.cnt.photons.Add(uint64(len(b.Photons)))
	h.msg.Debugf("seq=%d, photons=%d %s", b.Seq, len(b.Photons), dumpPhotons(b.Photons))

	if !h.out.Push(b) {
		h.cnt.dropped.Add(1)
		h.msg.Warnf("transmit data queue is full (seq=%d, photons=%d)", b.Seq, len(b.Photons))
	}
}

func (h *Handler) Stats() HandlerStats {
	return HandlerStats{
		Decoded:  h.cnt.decoded.Load(),
		Photons:  h.cnt.photons.Load(),
		Rejected: h.cnt.rejected.Load(),
		Empty:    h.cnt.empty.Load(),
		Dropped:  h.cnt.dropped.Load(),
	}
}
