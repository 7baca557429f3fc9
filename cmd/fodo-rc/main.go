// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command fodo-rc starts a TDAQ server driving a photon bridge.
//
// The configuration file of the bridge is read from the FODO_CONFIG
// environment variable (default: fodo.yaml).
package main // import "github.com/go-lpc/fodo/cmd/fodo-rc"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/fodo/node"
)

func main() {
	cmd := flags.New()

	fname := os.Getenv("FODO_CONFIG")
	if fname == "" {
		fname = "fodo.yaml"
	}

	dev := node.New(cmd.Args[0], fname)

	srv := tdaq.New(cmd, os.Stdout)
	dev.Register(srv)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
