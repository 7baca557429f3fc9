// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node exposes a photon bridge as a TDAQ run-control node.
package node // import "github.com/go-lpc/fodo/node"

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/fodo/config"
	"github.com/go-lpc/fodo/gpio"
	"github.com/go-lpc/fodo/internal/alert"
	"github.com/go-lpc/fodo/photon"
	"github.com/go-lpc/fodo/pipeline"
)

// Server is a TDAQ node driving a photon bridge.
//
// /config loads the configuration file and the board description,
// /init opens the GPIO chip, /start binds the UDP sockets, the run
// handler runs the bridge until /stop, /reset clears the sequence
// state of the decoder and /quit releases the GPIO chip.
type Server struct {
	name  string
	fname string // configuration file

	freq time.Duration // period of the /stats output

	cfg  config.Config
	brd  pipeline.Board
	chip gpio.Chip
	dec  *photon.Decoder
	mail pipeline.Alerter

	mu   sync.RWMutex
	pipe *pipeline.Pipeline
	last pipeline.Stats
}

// New creates a new TDAQ node configured from fname.
func New(name, fname string) *Server {
	return &Server{
		name:  name,
		fname: fname,
		freq:  time.Second,
	}
}

var (
	openChip = pipeline.OpenChip
	newAlert = func(ctx tdaq.Context, name string, creds alert.Credentials, max int) pipeline.Alerter {
		return alert.New(name, creds, max, ctx.Msg)
	}
)

// mailer returns the stall alerter of the node.
// mailer returns nil when the SMTP settings are not all defined.
func mailer(ctx tdaq.Context, name string, max int) pipeline.Alerter {
	creds := alert.FromEnv()
	if !creds.Valid() {
		ctx.Msg.Debugf("no SMTP settings: stall alerts disabled")
		return nil
	}
	return newAlert(ctx, name, creds, max)
}

// Register installs the command, output and run handlers of the node.
func (srv *Server) Register(s *tdaq.Server) {
	s.CmdHandle("/config", srv.OnConfig)
	s.CmdHandle("/init", srv.OnInit)
	s.CmdHandle("/reset", srv.OnReset)
	s.CmdHandle("/start", srv.OnStart)
	s.CmdHandle("/stop", srv.OnStop)
	s.CmdHandle("/quit", srv.OnQuit)

	s.OutputHandle("/stats", srv.stats)

	s.RunHandle(srv.run)
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	fname := srv.fname
	if len(req.Body) != 0 {
		dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
		if v := dec.ReadStr(); dec.Err() == nil && v != "" {
			fname = v
		}
	}

	cfg, err := config.Load(fname)
	if err != nil {
		ctx.Msg.Errorf("could not load configuration: %+v", err)
		return fmt.Errorf("could not load configuration %q: %w", fname, err)
	}

	err = config.Validate(&cfg)
	if err != nil {
		ctx.Msg.Errorf("invalid configuration: %+v", err)
		return fmt.Errorf("invalid configuration %q: %w", fname, err)
	}
	config.Normalize(&cfg)

	brd, err := pipeline.LoadBoard(ctx.Ctx, cfg)
	if err != nil {
		ctx.Msg.Errorf("could not load board: %+v", err)
		return fmt.Errorf("could not load board: %w", err)
	}

	srv.cfg = cfg
	srv.brd = brd
	ctx.Msg.Infof("configured board %q (pins: %+v)", brd.Name, brd.Pins)

	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	if srv.chip != nil {
		_ = srv.chip.Close()
		srv.chip = nil
	}

	chip, err := openChip(srv.cfg.GPIO, srv.brd.Pins)
	if err != nil {
		ctx.Msg.Errorf("could not open GPIO chip: %+v", err)
		return fmt.Errorf("could not open GPIO chip: %w", err)
	}

	seq, err := photon.ParseSeqPolicy(srv.cfg.Sequence)
	if err != nil {
		_ = chip.Close()
		return fmt.Errorf("could not parse sequence policy: %w", err)
	}

	srv.chip = chip
	srv.dec = photon.NewDecoder(photon.WithSequencePolicy(seq))
	srv.mail = mailer(ctx, srv.name, srv.cfg.Alert.Max)

	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	if srv.dec != nil {
		srv.dec.Reset()
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.pipe != nil {
		_ = srv.pipe.Close()
		srv.pipe = nil
	}
	srv.last = pipeline.Stats{}

	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.chip == nil {
		return fmt.Errorf("node not initialized")
	}

	pipe, err := pipeline.New(
		srv.cfg, srv.brd, srv.chip, ctx.Msg,
		pipeline.WithDecoder(srv.dec),
		pipeline.WithAlerter(srv.mail),
	)
	if err != nil {
		ctx.Msg.Errorf("could not create bridge: %+v", err)
		return fmt.Errorf("could not create bridge: %w", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.pipe = pipe
	srv.last = pipeline.Stats{}

	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.pipe != nil {
		srv.last = srv.pipe.Stats()
	}
	ctx.Msg.Debugf("received /stop command... -> %v", srv.last)
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	if srv.chip == nil {
		return nil
	}
	err := srv.chip.Close()
	srv.chip = nil
	if err != nil {
		return fmt.Errorf("could not close GPIO chip: %w", err)
	}
	return nil
}

func (srv *Server) current() *pipeline.Pipeline {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return srv.pipe
}

func (srv *Server) run(ctx tdaq.Context) error {
	pipe := srv.current()
	if pipe == nil {
		return fmt.Errorf("bridge not started")
	}

	err := pipe.Run(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not run bridge: %+v", err)
		return err
	}
	return nil
}

// stats publishes the pipeline counters.
func (srv *Server) stats(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case <-time.After(srv.freq):
	}

	pipe := srv.current()
	if pipe == nil {
		dst.Body = nil
		return nil
	}

	buf := new(bytes.Buffer)
	err := EncodeStats(buf, pipe.Stats())
	if err != nil {
		return fmt.Errorf("could not encode stats: %w", err)
	}
	dst.Body = buf.Bytes()
	return nil
}
