// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmap gives access to a window of memory-mapped device registers.
package mmap // import "github.com/go-lpc/fodo/internal/mmap"

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

var (
	errClosed = errors.New("mmap: closed")
)

// Handle is a read-write memory-mapped window.
type Handle struct {
	f    *os.File // device backing the mapping, if any
	data []byte
}

// Open maps the first size bytes of the device fname, shared and
// read-write.
func Open(fname string, size int) (*Handle, error) {
	f, err := os.OpenFile(fname, os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not open %q: %w", fname, err)
	}

	data, err := unix.Mmap(
		int(f.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: could not map %q: %w", fname, err)
	}
	if len(data) != size {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("mmap: invalid mapping size for %q (got=%d, want=%d)", fname, len(data), size)
	}

	h := HandleFrom(data)
	h.f = f
	return h, nil
}

// HandleFrom returns a handle over an already mapped window.
// Closing the handle unmaps data.
func HandleFrom(data []byte) *Handle {
	h := &Handle{data: data}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h
}

// Close unmaps the window and closes the backing device.
func (h *Handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}

	if h.data == nil {
		return nil
	}
	data := h.data
	h.data = nil
	runtime.SetFinalizer(h, nil)

	var errs []error
	if err := unix.Munmap(data); err != nil {
		errs = append(errs, fmt.Errorf("mmap: could not unmap: %w", err))
	}
	if h.f != nil {
		if err := h.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mmap: could not close device: %w", err))
		}
		h.f = nil
	}
	return errors.Join(errs...)
}

// Len returns the size of the window.
func (h *Handle) Len() int {
	return len(h.data)
}

func (h *Handle) check(off int64, op string) error {
	if h == nil {
		return os.ErrInvalid
	}
	if h.data == nil {
		return errClosed
	}
	if off < 0 || int64(len(h.data)) < off {
		return fmt.Errorf("mmap: invalid %s offset %d", op, off)
	}
	return nil
}

// ReadAt implements the io.ReaderAt interface.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if err := h.check(off, "ReadAt"); err != nil {
		return 0, err
	}
	n := copy(p, h.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the io.WriterAt interface.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if err := h.check(off, "WriteAt"); err != nil {
		return 0, err
	}
	n := copy(h.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Uint32 returns the little-endian 32b register at offset off.
func (h *Handle) Uint32(off int64) (uint32, error) {
	var buf [4]byte
	_, err := h.ReadAt(buf[:], off)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// PutUint32 writes v to the little-endian 32b register at offset off.
func (h *Handle) PutUint32(off int64, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := h.WriteAt(buf[:], off)
	return err
}

var (
	_ io.ReaderAt = (*Handle)(nil)
	_ io.WriterAt = (*Handle)(nil)
	_ io.Closer   = (*Handle)(nil)
)
