// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the configuration of a photon bridge.
package config // import "github.com/go-lpc/fodo/config"

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/fodo/gpio"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a photon bridge.
type Config struct {
	Listen   []string      `yaml:"listen"`   // local bind addresses
	Iface    string        `yaml:"iface"`    // network interface used to derive the bind IP
	Source   string        `yaml:"source"`   // accepted source IP ("" = any)
	Sources  []Source      `yaml:"sources"`  // accepted source IP per subnet of the iface address
	Queues   Queues        `yaml:"queues"`   // queue capacities
	Sequence string        `yaml:"sequence"` // sequence counter policy (monotonic, serial)
	Bus      Bus           `yaml:"bus"`
	GPIO     GPIO          `yaml:"gpio"`
	Pins     Pins          `yaml:"pins"`
	CondDB   CondDB        `yaml:"conddb"`
	Alert    Alert         `yaml:"alert"`
	Stats    time.Duration `yaml:"stats"` // period of the stats report (0 = off)
	Log      string        `yaml:"log"`   // log level
}

// Source selects the accepted source IP when the IP of the network
// interface belongs to Subnet.
// Sources are only used when no explicit source IP is configured.
type Source struct {
	Subnet string `yaml:"subnet"` // CIDR notation
	Addr   string `yaml:"addr"`
}

type Queues struct {
	Packet   int `yaml:"packet"`
	Transmit int `yaml:"transmit"`
}

// Bus holds the shift register and hand-shake settings.
type Bus struct {
	Order        string        `yaml:"order"`         // msb or lsb
	Clock        time.Duration `yaml:"clock"`         // clock and latch unit delay
	Poll         time.Duration `yaml:"poll"`          // fifo-read polling period
	ReadyTimeout time.Duration `yaml:"ready-timeout"` // 0 = wait forever
	ReadyPolicy  string        `yaml:"ready-policy"`  // abort or skip
}

// GPIO selects the GPIO driver.
type GPIO struct {
	Driver string `yaml:"driver"` // mem, i2c or sim
	Device string `yaml:"device"` // memory device (mem driver)
	Bus    int    `yaml:"bus"`    // I2C bus (i2c driver)
	Addr   uint8  `yaml:"addr"`   // I2C address (i2c driver)
}

// Pins is the pin assignment.
type Pins struct {
	Data      int    `yaml:"data"`
	Clock     int    `yaml:"clock"`
	Latch     int    `yaml:"latch"`
	Clear     int    `yaml:"clear"`
	OutEnable int    `yaml:"oe"`
	FIFOFull  int    `yaml:"fifo-full"`
	FIFOEmpty int    `yaml:"fifo-empty"`
	FIFORead  int    `yaml:"fifo-read"`
	ClearLvl  string `yaml:"clear-active"`
	OELvl     string `yaml:"oe-active"`
}

// CondDB selects the condition database holding the pin assignment.
// The pin assignment of the configuration file is used when Name is empty.
type CondDB struct {
	Name  string `yaml:"name"`
	Board string `yaml:"board"` // board name ("" = last registered board)
}

type Alert struct {
	Max int `yaml:"max"` // maximum number of mail alerts
}

// Default returns the default configuration.
func Default() Config {
	pins := gpio.DefaultPinTable()
	return Config{
		Listen: []string{":60000"},
		Queues: Queues{Packet: 32, Transmit: 32},
		Bus: Bus{
			Order:       "msb",
			Poll:        10 * time.Microsecond,
			ReadyPolicy: "abort",
		},
		GPIO: GPIO{
			Driver: "mem",
			Device: "/dev/gpiomem",
			Bus:    1,
			Addr:   0x20,
		},
		Pins: Pins{
			Data:      int(pins.Data),
			Clock:     int(pins.Clock),
			Latch:     int(pins.Latch),
			Clear:     int(pins.Clear),
			OutEnable: int(pins.OutEnable),
			FIFOFull:  int(pins.FIFOFull),
			FIFOEmpty: int(pins.FIFOEmpty),
			FIFORead:  int(pins.FIFORead),
			ClearLvl:  pins.ClearActive.String(),
			OELvl:     pins.OutEnableActive.String(),
		},
		Alert: Alert{Max: 5},
		Stats: 10 * time.Second,
		Log:   "info",
	}
}

// Load reads the configuration file fname.
// Fields missing from the file keep their default value.
func Load(fname string) (Config, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return Config{}, fmt.Errorf("config: could not read %q: %w", fname, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return cfg, fmt.Errorf("config: could not load %q: %w", fname, err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config: could not decode YAML: %w", err)
	}
	return cfg, nil
}

// Table returns the pin table described by the configuration.
func (p Pins) Table() (gpio.PinTable, error) {
	clr, err := gpio.ParseLevel(p.ClearLvl)
	if err != nil {
		return gpio.PinTable{}, fmt.Errorf("config: invalid clear-active level: %w", err)
	}
	oe, err := gpio.ParseLevel(p.OELvl)
	if err != nil {
		return gpio.PinTable{}, fmt.Errorf("config: invalid oe-active level: %w", err)
	}
	return gpio.PinTable{
		Data:      gpio.Pin(p.Data),
		Clock:     gpio.Pin(p.Clock),
		Latch:     gpio.Pin(p.Latch),
		Clear:     gpio.Pin(p.Clear),
		OutEnable: gpio.Pin(p.OutEnable),
		FIFOFull:  gpio.Pin(p.FIFOFull),
		FIFOEmpty: gpio.Pin(p.FIFOEmpty),
		FIFORead:  gpio.Pin(p.FIFORead),

		ClearActive:     clr,
		OutEnableActive: oe,
	}, nil
}

// ParseLogLevel parses a message stream verbosity level.
func ParseLogLevel(s string) (log.Level, error) {
	switch strings.ToLower(s) {
	case "debug", "dbg":
		return log.LvlDebug, nil
	case "", "info":
		return log.LvlInfo, nil
	case "warn", "warning":
		return log.LvlWarning, nil
	case "error", "err":
		return log.LvlError, nil
	default:
		return log.LvlInfo, fmt.Errorf("config: invalid log level %q", s)
	}
}
