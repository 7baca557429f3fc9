// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fifo implements a bounded, drop-newest, single-producer
// single-consumer queue.
//
// A push on a full queue never blocks: the new item is discarded and
// accounted for. A pop blocks until an item is available or the
// provided context is done.
package fifo // import "github.com/go-lpc/fodo/internal/fifo"

import (
	"context"
	"sync/atomic"
)

// DefaultSize is the capacity used when a non-positive size is requested.
const DefaultSize = 32

// Queue is a bounded FIFO queue of items of type T.
type Queue[T any] struct {
	ch chan T

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// Stats holds the counters of a queue.
type Stats struct {
	Pushed  uint64 // number of items accepted
	Dropped uint64 // number of items discarded because the queue was full
}

// New returns a queue holding at most n items.
func New[T any](n int) *Queue[T] {
	if n <= 0 {
		n = DefaultSize
	}
	return &Queue[T]{ch: make(chan T, n)}
}

// Push appends v to the queue.
// Push reports false and drops v when the queue is full.
func (q *Queue[T]) Push(v T) bool {
	select {
	case q.ch <- v:
		q.pushed.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop removes and returns the oldest item of the queue.
// Pop blocks until an item is available or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		var v T
		return v, ctx.Err()
	}
}

// TryPop removes and returns the oldest item of the queue, if any.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var v T
		return v, false
	}
}

func (q *Queue[T]) Len() int { return len(q.ch) }
func (q *Queue[T]) Cap() int { return cap(q.ch) }

func (q *Queue[T]) Stats() Stats {
	return Stats{
		Pushed:  q.pushed.Load(),
		Dropped: q.dropped.Load(),
	}
}
