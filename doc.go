// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fodo bridges photon datagrams received over UDP to a parallel
// output board, through a shift register and a ready/valid hand-shake
// with a downstream FIFO.
//
// The bridge is made of three stages connected by bounded queues:
// the ingest server (package ingest), the photon decoder (package photon)
// and the hardware bridge (package bridge).
// Package pipeline assembles them, command fodo runs them standalone
// and command fodo-rc runs them as a TDAQ node.
package fodo // import "github.com/go-lpc/fodo"

import (
	"fmt"
	"runtime/debug"
)

const root = "github.com/go-lpc/fodo"

// Version returns the version of fodo and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	mods := append([]*debug.Module{&b.Main}, b.Deps...)
	for _, m := range mods {
		if m == nil || m.Path != root {
			continue
		}
		if r := m.Replace; r != nil {
			switch {
			case r.Version != "" && r.Path != "":
				return fmt.Sprintf("%s %s", r.Path, r.Version), r.Sum
			case r.Version != "":
				return r.Version, r.Sum
			case r.Path != "":
				return r.Path, r.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
