// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-lpc/fodo/conddb"
	"github.com/go-lpc/fodo/config"
	"github.com/go-lpc/fodo/gpio"
	"github.com/go-lpc/fodo/internal/fakegpio"
)

// Board holds the pin assignment and the bus settings of an output board.
type Board struct {
	Name  string
	Pins  gpio.PinTable
	Order gpio.BitOrder
	Clock time.Duration
}

type boardDB interface {
	LastBoard(ctx context.Context) (conddb.Board, error)
	PinTable(ctx context.Context, board string) (gpio.PinTable, error)
	Close() error
}

var openDB = func(name string) (boardDB, error) {
	return conddb.Open(name)
}

// LoadBoard returns the board described by the configuration.
// When a condition database is configured, the pin assignment is read
// from the database.
// When no board name is configured, the last registered board is used
// together with its bus settings.
func LoadBoard(ctx context.Context, cfg config.Config) (Board, error) {
	order, err := gpio.ParseBitOrder(cfg.Bus.Order)
	if err != nil {
		return Board{}, fmt.Errorf("pipeline: invalid bit order: %w", err)
	}
	brd := Board{
		Name:  cfg.CondDB.Board,
		Order: order,
		Clock: cfg.Bus.Clock,
	}

	if cfg.CondDB.Name == "" {
		brd.Pins, err = cfg.Pins.Table()
		if err != nil {
			return brd, fmt.Errorf("pipeline: invalid pin assignment: %w", err)
		}
		return brd, nil
	}

	db, err := openDB(cfg.CondDB.Name)
	if err != nil {
		return brd, fmt.Errorf("pipeline: could not open condition db: %w", err)
	}
	defer db.Close()

	if brd.Name == "" {
		last, err := db.LastBoard(ctx)
		if err != nil {
			return brd, fmt.Errorf("pipeline: could not retrieve last board: %w", err)
		}
		brd.Name = last.Name
		brd.Order = last.Order
		brd.Clock = last.Clock
	}

	brd.Pins, err = db.PinTable(ctx, brd.Name)
	if err != nil {
		return brd, fmt.Errorf("pipeline: could not retrieve pins of board %q: %w", brd.Name, err)
	}

	err = brd.Pins.Validate()
	if err != nil {
		return brd, fmt.Errorf("pipeline: invalid pins for board %q: %w", brd.Name, err)
	}

	return brd, nil
}

// OpenChip opens the GPIO chip selected by the configuration.
//
// The "sim" driver is an in-memory chip with an emulated downstream
// consumer acknowledging every value on the fifo-read pin.
func OpenChip(cfg config.GPIO, pins gpio.PinTable) (gpio.Chip, error) {
	switch cfg.Driver {
	case "mem":
		chip, err := gpio.OpenMem(cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("pipeline: could not open GPIO memory: %w", err)
		}
		return chip, nil
	case "i2c":
		chip, err := gpio.OpenI2C(cfg.Bus, cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("pipeline: could not open GPIO expander: %w", err)
		}
		return chip, nil
	case "sim":
		chip := fakegpio.New()
		chip.Consumer(pins.FIFOEmpty, pins.FIFORead, 0)
		return chip, nil
	default:
		return nil, fmt.Errorf("pipeline: unknown GPIO driver %q", cfg.Driver)
	}
}
