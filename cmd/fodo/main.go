// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command fodo forwards the photons received over UDP to a shift
// register bus, with a ready/valid hand-shake with the downstream FIFO.
//
// Usage: fodo [options]
//
// ex:
//
//	$> fodo -cfg ./fodo.yaml
//	$> fodo -cfg ./fodo.yaml -gpio=sim -lvl=debug
//	$> fodo -cfg ./fodo.yaml -dump
//
// options:
//
//	-cfg string
//	  	path to YAML configuration file
//	-dump
//	  	print the board description and exit
//	-freq duration
//	  	pmon frequency (default 1s)
//	-gpio string
//	  	GPIO driver (mem, i2c, sim), overrides configuration
//	-lvl string
//	  	message level (debug, info, warn, error), overrides configuration
//	-pmon
//	  	enable pmon monitoring
//	-pmon-out string
//	  	pmon output file (default "fodo-pmon.log")
//	-version
//	  	print version and exit
package main // import "github.com/go-lpc/fodo/cmd/fodo"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/fodo"
	"github.com/go-lpc/fodo/config"
	"github.com/go-lpc/fodo/gpio"
	"github.com/go-lpc/fodo/internal/alert"
	"github.com/go-lpc/fodo/pipeline"
	"github.com/sbinet/pmon"
)

type options struct {
	cfg    string
	lvl    string
	driver string
	dump   bool

	mon  bool
	freq time.Duration
	pout string
}

func main() {
	var (
		opts options
		stop = make(chan os.Signal, 1)
	)

	flag.StringVar(&opts.cfg, "cfg", "", "path to YAML configuration file")
	flag.StringVar(&opts.lvl, "lvl", "", "message level (debug, info, warn, error), overrides configuration")
	flag.StringVar(&opts.driver, "gpio", "", "GPIO driver (mem, i2c, sim), overrides configuration")
	flag.BoolVar(&opts.dump, "dump", false, "print the board description and exit")
	flag.BoolVar(&opts.mon, "pmon", false, "enable pmon monitoring")
	flag.DurationVar(&opts.freq, "freq", 1*time.Second, "pmon frequency")
	flag.StringVar(&opts.pout, "pmon-out", "fodo-pmon.log", "pmon output file")

	vers := flag.Bool("version", false, "print version and exit")

	flag.Parse()

	log.SetPrefix("fodo: ")
	log.SetFlags(0)

	if *vers {
		v, sum := fodo.Version()
		fmt.Printf("fodo %s %s\n", v, sum)
		return
	}

	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	err := run(opts, os.Stdout, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func loadConfig(opts options) (config.Config, error) {
	var (
		cfg = config.Default()
		err error
	)
	if opts.cfg != "" {
		cfg, err = config.Load(opts.cfg)
		if err != nil {
			return cfg, err
		}
	}
	if opts.lvl != "" {
		cfg.Log = opts.lvl
	}
	if opts.driver != "" {
		cfg.GPIO.Driver = opts.driver
	}

	err = config.Validate(&cfg)
	if err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	config.Normalize(&cfg)

	return cfg, nil
}

func run(opts options, stdout io.Writer, stop chan os.Signal) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	lvl, err := config.ParseLogLevel(cfg.Log)
	if err != nil {
		return err
	}
	msg := tlog.NewMsgStream("fodo", lvl, stdout)
	if v, _ := fodo.Version(); v != "" {
		msg.Infof("fodo version %s", v)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case sig := <-stop:
			msg.Infof("received %v, stopping...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	brd, err := pipeline.LoadBoard(ctx, cfg)
	if err != nil {
		return fmt.Errorf("could not load board: %w", err)
	}

	if opts.dump {
		return dumpBoard(stdout, brd)
	}

	chip, err := pipeline.OpenChip(cfg.GPIO, brd.Pins)
	if err != nil {
		return fmt.Errorf("could not open GPIO chip: %w", err)
	}
	defer chip.Close()

	if opts.mon {
		p, err := pmon.Monitor(os.Getpid())
		if err != nil {
			return fmt.Errorf("could not start monitoring: %w", err)
		}
		f, err := os.Create(opts.pout)
		if err != nil {
			return fmt.Errorf("could not create pmon log file: %w", err)
		}
		defer f.Close()
		p.W = f
		p.Freq = opts.freq

		go func() {
			err := p.Run()
			if err != nil {
				msg.Warnf("could not run pmon: %+v", err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				msg.Warnf("could not stop monitoring: %+v", err)
			}
		}()
	}

	var popts []pipeline.Option
	if creds := alert.FromEnv(); creds.Valid() {
		popts = append(popts, pipeline.WithAlerter(
			alert.New("fodo", creds, cfg.Alert.Max, msg),
		))
	}

	p, err := pipeline.New(cfg, brd, chip, msg, popts...)
	if err != nil {
		return fmt.Errorf("could not create bridge: %w", err)
	}

	err = p.Run(ctx)
	if err != nil {
		return fmt.Errorf("could not run bridge: %w", err)
	}

	return nil
}

func dumpBoard(w io.Writer, brd pipeline.Board) error {
	name := brd.Name
	if name == "" {
		name = "N/A"
	}
	fmt.Fprintf(w, "board: %s\n", name)
	fmt.Fprintf(w, "order: %v\n", brd.Order)
	fmt.Fprintf(w, "clock: %v\n", brd.Clock)
	for _, r := range gpio.Roles {
		pin, _ := brd.Pins.Pin(r)
		fmt.Fprintf(w, "pin %-10s %d\n", r+":", pin)
	}
	fmt.Fprintf(w, "clear-active: %v\n", brd.Pins.ClearActive)
	fmt.Fprintf(w, "oe-active:    %v\n", brd.Pins.OutEnableActive)
	return nil
}
