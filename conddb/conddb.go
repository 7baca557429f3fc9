// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the condition and configuration
// database of the photon bridge boards.
package conddb // import "github.com/go-lpc/fodo/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-lpc/fodo/gpio"
	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to easily retrieve conditions data
// and configuration data from the bridge database.
type DB struct {
	db   *sql.DB
	name string // name of the bridge database
}

// Board describes the bus settings of a parallel output board.
type Board struct {
	Name  string
	Order gpio.BitOrder // bit order of the shift register
	Clock time.Duration // clock and latch unit delay
}

// Open opens a connection to the bridge database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// LastBoard returns the settings of the last registered board.
func (db *DB) LastBoard(ctx context.Context) (Board, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var brd Board
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name, bit_order, clock_ns FROM boards ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return brd, fmt.Errorf("conddb: could not query board: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			order string
			clock int64
		)
		err = rows.Scan(&brd.Name, &order, &clock)
		if err != nil {
			return brd, fmt.Errorf("conddb: could not get board values: %w", err)
		}
		brd.Order, err = gpio.ParseBitOrder(order)
		if err != nil {
			return brd, fmt.Errorf("conddb: invalid board %q: %w", brd.Name, err)
		}
		brd.Clock = time.Duration(clock) * time.Nanosecond
	}

	if err := rows.Err(); err != nil {
		return brd, fmt.Errorf("conddb: could not scan db for board: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return brd, fmt.Errorf("conddb: context error while retrieving board: %w", err)
	}

	if brd.Name == "" {
		return brd, fmt.Errorf("conddb: no board registered")
	}

	return brd, nil
}

// PinTable returns the pin assignment of the named board.
func (db *DB) PinTable(ctx context.Context, board string) (gpio.PinTable, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pins := gpio.PinTable{
		Data:      gpio.NoPin,
		Clock:     gpio.NoPin,
		Latch:     gpio.NoPin,
		Clear:     gpio.NoPin,
		OutEnable: gpio.NoPin,
		FIFOFull:  gpio.NoPin,
		FIFOEmpty: gpio.NoPin,
		FIFORead:  gpio.NoPin,
	}

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT role, pin, active FROM pins WHERE board=?",
		board,
	)
	if err != nil {
		return pins, fmt.Errorf("conddb: could not query pins of board %q: %w", board, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			role   string
			pin    int
			active sql.NullString
		)
		err = rows.Scan(&role, &pin, &active)
		if err != nil {
			return pins, fmt.Errorf("conddb: could not get pin values: %w", err)
		}

		r := gpio.Role(strings.ToLower(role))
		err = pins.Set(r, gpio.Pin(pin))
		if err != nil {
			return pins, fmt.Errorf("conddb: invalid pin for board %q: %w", board, err)
		}

		if !active.Valid || active.String == "" {
			continue
		}
		lvl, err := gpio.ParseLevel(active.String)
		if err != nil {
			return pins, fmt.Errorf("conddb: invalid active level for %q: %w", role, err)
		}
		switch r {
		case gpio.RoleClear:
			pins.ClearActive = lvl
		case gpio.RoleOutEnable:
			pins.OutEnableActive = lvl
		}
	}

	if err := rows.Err(); err != nil {
		return pins, fmt.Errorf("conddb: could not scan db for pins: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return pins, fmt.Errorf("conddb: context error while retrieving pins: %w", err)
	}

	err = pins.Validate()
	if err != nil {
		return pins, fmt.Errorf("conddb: invalid pin table for board %q: %w", board, err)
	}

	return pins, nil
}
