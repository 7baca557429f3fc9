// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline assembles the stages of a photon bridge:
//
//	UDP sockets -> packet queue -> decoder -> transmit queue -> hardware bridge
//
// Each stage runs in its own goroutine and the stages only communicate
// through the two bounded queues.
package pipeline // import "github.com/go-lpc/fodo/pipeline"

import (
	"context"
	"fmt"
	"net"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/fodo/bridge"
	"github.com/go-lpc/fodo/config"
	"github.com/go-lpc/fodo/gpio"
	"github.com/go-lpc/fodo/ingest"
	"github.com/go-lpc/fodo/internal/fifo"
	"github.com/go-lpc/fodo/photon"
	"golang.org/x/sync/errgroup"
)

// Alerter sends an alert about an abnormal condition.
type Alerter interface {
	Alert(key, subject, body string) error
}

// Pipeline is a photon bridge.
// A pipeline can only be run once.
type Pipeline struct {
	msg  log.MsgStream
	cfg  config.Config
	brd  Board
	chip gpio.Chip

	pkts *fifo.Queue[ingest.Datagram]
	txq  *fifo.Queue[photon.Batch]

	srv *ingest.Server
	dec *photon.Handler
	bus *bridge.Bridge

	alert  Alerter
	stalls chan error
}

// Option configures a pipeline.
type Option func(p *Pipeline, opts *[]bridge.Option)

// WithAlerter sends an alert each time the downstream consumer stalls.
func WithAlerter(a Alerter) Option {
	return func(p *Pipeline, _ *[]bridge.Option) {
		p.alert = a
	}
}

// WithDecoder uses dec as the photon decoder.
// The sequence state of dec is thus kept across pipelines.
func WithDecoder(dec *photon.Decoder) Option {
	return func(p *Pipeline, _ *[]bridge.Option) {
		p.dec = photon.NewHandler(dec, p.pkts, p.txq, p.msg)
	}
}

// WithBridgeOptions appends options to the hardware bridge.
func WithBridgeOptions(opts ...bridge.Option) Option {
	return func(_ *Pipeline, bopts *[]bridge.Option) {
		*bopts = append(*bopts, opts...)
	}
}

// localAddr resolves the IP address of a network interface.
var localAddr = ingest.LocalAddr

// New creates a new pipeline driving chip with the provided board settings.
// New binds the UDP sockets of the pipeline.
func New(cfg config.Config, brd Board, chip gpio.Chip, msg log.MsgStream, opts ...Option) (*Pipeline, error) {
	config.Normalize(&cfg)

	seq, err := photon.ParseSeqPolicy(cfg.Sequence)
	if err != nil {
		return nil, fmt.Errorf("pipeline: invalid sequence policy: %w", err)
	}
	policy, err := bridge.ParseReadyPolicy(cfg.Bus.ReadyPolicy)
	if err != nil {
		return nil, fmt.Errorf("pipeline: invalid ready policy: %w", err)
	}

	p := &Pipeline{
		msg:    msg,
		cfg:    cfg,
		brd:    brd,
		chip:   chip,
		pkts:   fifo.New[ingest.Datagram](cfg.Queues.Packet),
		txq:    fifo.New[photon.Batch](cfg.Queues.Transmit),
		stalls: make(chan error, 1),
	}
	p.dec = photon.NewHandler(
		photon.NewDecoder(photon.WithSequencePolicy(seq)),
		p.pkts, p.txq, msg,
	)

	bopts := []bridge.Option{
		bridge.WithBitOrder(brd.Order),
		bridge.WithClockTime(brd.Clock),
		bridge.WithPollInterval(cfg.Bus.Poll),
		bridge.WithReadyTimeout(cfg.Bus.ReadyTimeout, policy),
		bridge.WithStallHook(p.onStall),
	}
	for _, opt := range opts {
		opt(p, &bopts)
	}
	p.bus = bridge.New(chip, brd.Pins, msg, bopts...)

	addrs, err := listenAddrs(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: could not resolve listen addresses: %w", err)
	}

	src, err := sourceAddr(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: could not resolve source address: %w", err)
	}
	if src != cfg.Source {
		msg.Infof("accepting datagrams from %s (iface=%s)", src, cfg.Iface)
	}

	p.srv, err = ingest.New(p.pkts, src, msg, addrs...)
	if err != nil {
		return nil, fmt.Errorf("pipeline: could not create ingest server: %w", err)
	}

	return p, nil
}

// listenAddrs returns the local addresses to bind to.
// Addresses without a host are bound to the IP of the configured
// network interface, if any.
func listenAddrs(cfg config.Config) ([]string, error) {
	if cfg.Iface == "" {
		return cfg.Listen, nil
	}

	ip, err := localAddr(cfg.Iface)
	if err != nil {
		return nil, err
	}

	addrs := make([]string, len(cfg.Listen))
	for i, addr := range cfg.Listen {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", addr, err)
		}
		if host == "" {
			host = ip
		}
		addrs[i] = net.JoinHostPort(host, port)
	}
	return addrs, nil
}

// sourceAddr returns the accepted source IP.
// Without an explicit source, the source is selected by the subnet of
// the IP of the configured network interface.
func sourceAddr(cfg config.Config) (string, error) {
	if cfg.Source != "" || cfg.Iface == "" || len(cfg.Sources) == 0 {
		return cfg.Source, nil
	}

	addr, err := localAddr(cfg.Iface)
	if err != nil {
		return "", err
	}
	ip := net.ParseIP(addr)

	for _, src := range cfg.Sources {
		_, subnet, err := net.ParseCIDR(src.Subnet)
		if err != nil {
			return "", fmt.Errorf("invalid subnet %q: %w", src.Subnet, err)
		}
		if subnet.Contains(ip) {
			return src.Addr, nil
		}
	}
	return "", nil
}

// Addrs returns the local addresses of the UDP sockets.
func (p *Pipeline) Addrs() []net.Addr {
	return p.srv.Addrs()
}

// Decoder returns the photon decoder of the pipeline.
func (p *Pipeline) Decoder() *photon.Decoder {
	return p.dec.Decoder()
}

// Bridge returns the hardware bridge of the pipeline.
func (p *Pipeline) Bridge() *bridge.Bridge {
	return p.bus
}

// Run sets the bus up and runs all the stages until ctx is done or
// one of the stages fails.
// Run closes the UDP sockets and leaves the bus idle when it returns.
func (p *Pipeline) Run(ctx context.Context) error {
	err := p.bus.Setup()
	if err != nil {
		_ = p.srv.Close()
		return fmt.Errorf("pipeline: could not setup bus: %w", err)
	}

	p.msg.Infof(
		"running bridge (order=%v, clock=%v, timeout=%v, queues=%d/%d)...",
		p.brd.Order, p.brd.Clock, p.cfg.Bus.ReadyTimeout,
		p.pkts.Cap(), p.txq.Cap(),
	)

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return p.srv.Serve(ctx)
	})
	grp.Go(func() error {
		return p.dec.Run(ctx)
	})
	grp.Go(func() error {
		return p.bus.Run(ctx, p.txq)
	})
	grp.Go(func() error {
		p.alerts(ctx)
		return nil
	})
	if p.cfg.Stats > 0 {
		grp.Go(func() error {
			p.report(ctx, p.cfg.Stats)
			return nil
		})
	}

	err = grp.Wait()
	p.msg.Infof("bridge stopped: %v", p.Stats())
	if err != nil {
		return fmt.Errorf("pipeline: could not run bridge: %w", err)
	}
	return nil
}

// Close releases the UDP sockets of a pipeline that was never run.
func (p *Pipeline) Close() error {
	return p.srv.Close()
}

func (p *Pipeline) onStall(err error) {
	select {
	case p.stalls <- err:
	default:
		// an alert is already pending.
	}
}

func (p *Pipeline) alerts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-p.stalls:
			if p.alert == nil {
				continue
			}
			body := fmt.Sprintf(
				"downstream consumer did not acknowledge a photon.\nerror: %+v\nstats: %v\n",
				err, p.Stats(),
			)
			err = p.alert.Alert("stall", "downstream consumer stalled", body)
			if err != nil {
				p.msg.Warnf("could not send stall alert: %+v", err)
			}
		}
	}
}
