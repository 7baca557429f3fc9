// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"time"

	"github.com/go-lpc/fodo/bridge"
	"github.com/go-lpc/fodo/gpio"
	"github.com/go-lpc/fodo/photon"
)

// Validate checks the configuration.
// Validate does not modify the configuration.
func Validate(cfg *Config) error {
	if len(cfg.Listen) == 0 {
		return fmt.Errorf("config: no listen address")
	}
	for _, addr := range cfg.Listen {
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("config: invalid listen address %q: %w", addr, err)
		}
		if port == "" {
			return fmt.Errorf("config: missing port in listen address %q", addr)
		}
	}

	if cfg.Source != "" && net.ParseIP(cfg.Source) == nil {
		return fmt.Errorf("config: invalid source address %q", cfg.Source)
	}

	for _, src := range cfg.Sources {
		if _, _, err := net.ParseCIDR(src.Subnet); err != nil {
			return fmt.Errorf("config: invalid source subnet %q: %w", src.Subnet, err)
		}
		if net.ParseIP(src.Addr) == nil {
			return fmt.Errorf("config: invalid source address %q for subnet %q", src.Addr, src.Subnet)
		}
	}

	if cfg.Queues.Packet < 0 || cfg.Queues.Transmit < 0 {
		return fmt.Errorf(
			"config: invalid queue capacities (packet=%d, transmit=%d)",
			cfg.Queues.Packet, cfg.Queues.Transmit,
		)
	}

	if _, err := photon.ParseSeqPolicy(cfg.Sequence); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if _, err := gpio.ParseBitOrder(cfg.Bus.Order); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := bridge.ParseReadyPolicy(cfg.Bus.ReadyPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, v := range []struct {
		name string
		val  time.Duration
	}{
		{"clock", cfg.Bus.Clock},
		{"poll", cfg.Bus.Poll},
		{"ready-timeout", cfg.Bus.ReadyTimeout},
		{"stats", cfg.Stats},
	} {
		if v.val < 0 {
			return fmt.Errorf("config: invalid negative %s duration", v.name)
		}
	}

	switch cfg.GPIO.Driver {
	case "mem":
		if cfg.GPIO.Device == "" {
			return fmt.Errorf("config: missing GPIO memory device")
		}
	case "i2c":
		if cfg.GPIO.Bus < 0 {
			return fmt.Errorf("config: invalid I2C bus %d", cfg.GPIO.Bus)
		}
	case "sim":
	default:
		return fmt.Errorf("config: invalid GPIO driver %q", cfg.GPIO.Driver)
	}

	if cfg.CondDB.Name == "" {
		pins, err := cfg.Pins.Table()
		if err != nil {
			return err
		}
		if err := pins.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	if cfg.Alert.Max < 0 {
		return fmt.Errorf("config: invalid maximum number of alerts %d", cfg.Alert.Max)
	}

	if _, err := ParseLogLevel(cfg.Log); err != nil {
		return err
	}

	return nil
}

// Normalize replaces unset values with their defaults.
// Normalize must be called after Validate.
func Normalize(cfg *Config) {
	def := Default()
	if cfg.Queues.Packet == 0 {
		cfg.Queues.Packet = def.Queues.Packet
	}
	if cfg.Queues.Transmit == 0 {
		cfg.Queues.Transmit = def.Queues.Transmit
	}
	if cfg.Bus.Poll == 0 {
		cfg.Bus.Poll = def.Bus.Poll
	}
}
