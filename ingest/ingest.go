// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ingest implements the network ingestion boundary of the bridge:
// a UDP server that accepts datagrams from a single source and pushes
// them, timestamped, into a bounded queue.
package ingest // import "github.com/go-lpc/fodo/ingest"

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/fodo/internal/fifo"
	"golang.org/x/sync/errgroup"
)

// maxDatagramSize is the largest UDP payload.
const maxDatagramSize = 65535

// Datagram is a received network payload.
type Datagram struct {
	Time time.Time    // reception time
	Addr *net.UDPAddr // source address
	Data []byte       // payload
}

// Receiver is notified of every datagram read from a socket.
type Receiver interface {
	OnDatagram(p []byte, src *net.UDPAddr)
}

// Stats holds the counters of an ingest server.
type Stats struct {
	Received uint64 // datagrams read from the sockets
	Accepted uint64 // datagrams pushed to the queue
	Rejected uint64 // datagrams from an unexpected source
	Dropped  uint64 // datagrams dropped because the queue was full
}

type counters struct {
	received atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
}

// Server reads datagrams from one or more UDP sockets.
type Server struct {
	msg   log.MsgStream
	conns []*net.UDPConn
	recv  Receiver
	cnt   *counters

	once sync.Once
	err  error
}

// New binds a UDP socket to each of the provided local addresses.
// Only datagrams sent from the src IP address are pushed to q.
// An empty src accepts datagrams from any sender.
func New(q *fifo.Queue[Datagram], src string, msg log.MsgStream, addrs ...string) (*Server, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("ingest: no local address to bind to")
	}

	ip, err := parseSource(src)
	if err != nil {
		return nil, fmt.Errorf("ingest: could not parse source address: %w", err)
	}

	cnt := new(counters)
	srv := &Server{
		msg: msg,
		cnt: cnt,
		recv: &filter{
			src: ip,
			now: time.Now,
			q:   q,
			msg: msg,
			cnt: cnt,
		},
	}

	for _, addr := range addrs {
		conn, err := listen(addr)
		if err != nil {
			_ = srv.Close()
			return nil, fmt.Errorf("ingest: could not bind to %q: %w", addr, err)
		}
		srv.conns = append(srv.conns, conn)
		msg.Infof("listening on %v...", conn.LocalAddr())
	}

	return srv, nil
}

func listen(addr string) (*net.UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", laddr)
}

func parseSource(src string) (net.IP, error) {
	if src == "" {
		return nil, nil
	}
	if ip := net.ParseIP(src); ip != nil {
		return ip, nil
	}
	addr, err := net.ResolveIPAddr("ip", src)
	if err != nil {
		return nil, err
	}
	return addr.IP, nil
}

// Addrs returns the local addresses of the server sockets.
func (srv *Server) Addrs() []net.Addr {
	addrs := make([]net.Addr, len(srv.conns))
	for i, conn := range srv.conns {
		addrs[i] = conn.LocalAddr()
	}
	return addrs
}

// Serve reads datagrams until ctx is done or a socket fails.
// Serve closes the sockets before returning.
func (srv *Server) Serve(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})

	for _, conn := range srv.conns {
		conn := conn
		grp.Go(func() error {
			return srv.serve(ctx, conn)
		})
	}

	return grp.Wait()
}

func (srv *Server) serve(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			srv.msg.Errorf("could not read from %v: %+v", conn.LocalAddr(), err)
			return fmt.Errorf("ingest: could not read from %v: %w", conn.LocalAddr(), err)
		}
		srv.recv.OnDatagram(buf[:n], addr)
	}
}

// Close closes all the sockets of the server.
func (srv *Server) Close() error {
	srv.once.Do(func() {
		for _, conn := range srv.conns {
			err := conn.Close()
			if err != nil && srv.err == nil {
				srv.err = fmt.Errorf("ingest: could not close %v: %w", conn.LocalAddr(), err)
			}
		}
	})
	return srv.err
}

func (srv *Server) Stats() Stats {
	return Stats{
		Received: srv.cnt.received.Load(),
		Accepted: srv.cnt.accepted.Load(),
		Rejected: srv.cnt.rejected.Load(),
		Dropped:  srv.cnt.dropped.Load(),
	}
}

// filter pushes datagrams from the accepted source to the queue.
type filter struct {
	src net.IP
	now func() time.Time
	q   *fifo.Queue[Datagram]
	msg log.MsgStream
	cnt *counters
}

func (f *filter) OnDatagram(p []byte, src *net.UDPAddr) {
	f.cnt.received.Add(1)
	if f.src != nil && (src == nil || !f.src.Equal(src.IP)) {
		f.cnt.rejected.Add(1)
		f.msg.Debugf("ignoring datagram from %v", src)
		return
	}

	dg := Datagram{
		Time: f.now(),
		Addr: src,
		Data: append([]byte(nil), p...),
	}
	if !f.q.Push(dg) {
		f.cnt.dropped.Add(1)
		f.msg.Warnf("incoming packet queue is full")
		return
	}
	f.cnt.accepted.Add(1)
}

var _ Receiver = (*filter)(nil)

// LocalAddr returns the first IPv4 address of the named network interface.
func LocalAddr(iface string) (string, error) {
	ifc, err := net.InterfaceByName(iface)
	if err != nil {
		return "", fmt.Errorf("ingest: could not find interface %q: %w", iface, err)
	}
	addrs, err := ifc.Addrs()
	if err != nil {
		return "", fmt.Errorf("ingest: could not list addresses of %q: %w", iface, err)
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", fmt.Errorf("ingest: no IPv4 address for interface %q", iface)
}
