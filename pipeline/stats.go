// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-lpc/fodo/bridge"
	"github.com/go-lpc/fodo/ingest"
	"github.com/go-lpc/fodo/internal/fifo"
	"github.com/go-lpc/fodo/photon"
)

// Stats holds the counters of all the stages of a pipeline.
type Stats struct {
	Ingest   ingest.Stats
	Packets  fifo.Stats
	Decoder  photon.HandlerStats
	Transmit fifo.Stats
	Bridge   bridge.Stats
}

func (st Stats) String() string {
	return fmt.Sprintf(
		"datagrams: recv=%d ok=%d rejected=%d dropped=%d | "+
			"batches: decoded=%d rejected=%d empty=%d dropped=%d | "+
			"photons: decoded=%d sent=%d faults=%d timeouts=%d",
		st.Ingest.Received, st.Ingest.Accepted, st.Ingest.Rejected, st.Ingest.Dropped,
		st.Decoder.Decoded, st.Decoder.Rejected, st.Decoder.Empty, st.Decoder.Dropped,
		st.Decoder.Photons, st.Bridge.Photons, st.Bridge.Faults, st.Bridge.Timeouts,
	)
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Ingest:   p.srv.Stats(),
		Packets:  p.pkts.Stats(),
		Decoder:  p.dec.Stats(),
		Transmit: p.txq.Stats(),
		Bridge:   p.bus.Stats(),
	}
}

// report periodically logs the pipeline counters, when they changed.
func (p *Pipeline) report(ctx context.Context, freq time.Duration) {
	tck := time.NewTicker(freq)
	defer tck.Stop()

	var prev Stats
	for {
		select {
		case <-ctx.Done():
			return
		case <-tck.C:
			cur := p.Stats()
			if cur == prev {
				continue
			}
			p.msg.Infof(
				"%v (rate: %.1f photons/s)",
				cur, float64(cur.Bridge.Photons-prev.Bridge.Photons)/freq.Seconds(),
			)
			prev = cur
		}
	}
}
