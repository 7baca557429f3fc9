// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"io"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/fodo/pipeline"
)

func statsFields(st *pipeline.Stats) []*uint64 {
	return []*uint64{
		&st.Ingest.Received,
		&st.Ingest.Accepted,
		&st.Ingest.Rejected,
		&st.Ingest.Dropped,
		&st.Packets.Pushed,
		&st.Packets.Dropped,
		&st.Decoder.Decoded,
		&st.Decoder.Photons,
		&st.Decoder.Rejected,
		&st.Decoder.Empty,
		&st.Decoder.Dropped,
		&st.Transmit.Pushed,
		&st.Transmit.Dropped,
		&st.Bridge.Photons,
		&st.Bridge.Batches,
		&st.Bridge.Faults,
		&st.Bridge.Timeouts,
	}
}

// EncodeStats writes the pipeline counters to w, as a sequence of
// TDAQ-encoded uint64 values.
func EncodeStats(w io.Writer, st pipeline.Stats) error {
	enc := tdaq.NewEncoder(w)
	for _, v := range statsFields(&st) {
		enc.WriteU64(*v)
	}
	return enc.Err()
}

// DecodeStats reads pipeline counters encoded with EncodeStats.
func DecodeStats(r io.Reader) (pipeline.Stats, error) {
	var (
		st  pipeline.Stats
		dec = tdaq.NewDecoder(r)
	)
	for _, v := range statsFields(&st) {
		*v = dec.ReadU64()
	}
	return st, dec.Err()
}
