// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb registers a "fakedb" SQL driver serving canned rows.
package fakedb // import "github.com/go-lpc/fodo/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

// Call is a query received by the driver.
type Call struct {
	Query string
	Args  []driver.Value
}

var db struct {
	run sync.Mutex // serializes Run and Fail

	mu    sync.Mutex
	rows  Rows
	err   error
	calls []Call
}

// Run serves rows to all the queries issued by f.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	return serve(ctx, rows, nil, f)
}

// Fail makes all the queries issued by f fail with err.
func Fail(ctx context.Context, err error, f func(ctx context.Context) error) error {
	return serve(ctx, Rows{}, err, f)
}

func serve(ctx context.Context, rows Rows, err error, f func(ctx context.Context) error) error {
	db.run.Lock()
	defer db.run.Unlock()

	db.mu.Lock()
	db.rows = rows
	db.err = err
	db.calls = nil
	db.mu.Unlock()

	return f(ctx)
}

// Calls returns the queries received during the last Run or Fail.
func Calls() []Call {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]Call(nil), db.calls...)
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

func (c *Conn) Close() error { return nil }

func (c *Conn) Begin() (driver.Tx, error) {
	panic("fakedb: transactions not supported")
}

type Stmt struct {
	query string
}

func (stmt *Stmt) Close() error { return nil }

// NumInput returns -1: the number of placeholders is not checked.
func (stmt *Stmt) NumInput() int { return -1 }

func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	panic("fakedb: exec not supported")
}

func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.calls = append(db.calls, Call{
		Query: stmt.query,
		Args:  append([]driver.Value(nil), args...),
	})
	if db.err != nil {
		return nil, db.err
	}

	rows := &Rows{
		Names:  db.rows.Names,
		Values: append([][]driver.Value(nil), db.rows.Values...),
	}
	return rows, nil
}

func (stmt *Stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vs := make([]driver.Value, len(args))
	for i, arg := range args {
		vs[i] = arg.Value
	}
	return stmt.Query(vs)
}

// Rows is a canned query result.
type Rows struct {
	Names  []string
	Values [][]driver.Value
}

func (rows *Rows) Columns() []string { return rows.Names }
func (rows *Rows) Close() error      { return nil }

func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver           = (*Driver)(nil)
	_ driver.Conn             = (*Conn)(nil)
	_ driver.Stmt             = (*Stmt)(nil)
	_ driver.StmtQueryContext = (*Stmt)(nil)
	_ driver.Rows             = (*Rows)(nil)
)
