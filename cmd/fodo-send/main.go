// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command fodo-send sends photon datagrams to a photon bridge.
//
// In its default mode, fodo-send sends n datagrams of random photons.
// In interactive mode, photons are read from a prompt, one datagram
// per line:
//
//	$> fodo-send -addr 192.168.1.10:60000 -n 100 -photons 8
//	$> fodo-send -addr 192.168.1.10:60000 -i
//	fodo> 9,18 255,0
//	fodo> seq 42
//	fodo> quit
package main // import "github.com/go-lpc/fodo/cmd/fodo-send"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/fodo/photon"
	"github.com/peterh/liner"
)

func main() {
	var (
		addr  = flag.String("addr", "127.0.0.1:60000", "[ip]:port of the photon bridge")
		n     = flag.Int("n", 10, "number of datagrams to send")
		nphs  = flag.Int("photons", 4, "number of photons per datagram")
		seq   = flag.Uint("seq", 1, "sequence number of the first datagram")
		freq  = flag.Duration("freq", 10*time.Millisecond, "interval between datagrams")
		seed  = flag.Int64("seed", 1234, "seed of the photon generator")
		inter = flag.Bool("i", false, "enable interactive mode")
	)

	flag.Parse()

	log.SetPrefix("fodo-send: ")
	log.SetFlags(0)

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("could not dial %q: %+v", *addr, err)
	}
	defer conn.Close()

	s := &sender{w: conn, seq: uint16(*seq)}

	switch {
	case *inter:
		err = s.prompt()
	default:
		rnd := rand.New(rand.NewSource(*seed))
		err = s.generate(rnd, *n, *nphs, *freq)
	}
	if err != nil {
		log.Fatalf("%+v", err)
	}
	log.Printf("sent %d datagrams (%d photons)", s.ndgs, s.nphs)
}

type sender struct {
	w    io.Writer
	seq  uint16
	ndgs int
	nphs int
}

func (s *sender) send(ps []photon.Photon) error {
	raw, err := photon.Marshal(s.seq, ps)
	if err != nil {
		return fmt.Errorf("could not marshal datagram (seq=%d): %w", s.seq, err)
	}
	_, err = s.w.Write(raw)
	if err != nil {
		return fmt.Errorf("could not send datagram (seq=%d): %w", s.seq, err)
	}
	s.seq++
	s.ndgs++
	s.nphs += len(ps)
	return nil
}

func (s *sender) generate(rnd *rand.Rand, n, nphs int, freq time.Duration) error {
	ps := make([]photon.Photon, nphs)
	for i := 0; i < n; i++ {
		for j := range ps {
			ps[j] = photon.Photon{
				X: uint8(rnd.Intn(256)),
				Y: uint8(rnd.Intn(256)),
			}
		}
		err := s.send(ps)
		if err != nil {
			return err
		}
		if freq > 0 {
			time.Sleep(freq)
		}
	}
	return nil
}

func (s *sender) prompt() error {
	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	for {
		line, err := term.Prompt("fodo> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not read prompt: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := s.exec(line)
		if err != nil {
			log.Printf("%+v", err)
			continue
		}
		if quit {
			return nil
		}
	}
}

// exec executes a prompt command.
func (s *sender) exec(line string) (bool, error) {
	toks := strings.Fields(line)
	switch toks[0] {
	case "quit", "exit":
		return true, nil
	case "seq":
		if len(toks) != 2 {
			return false, fmt.Errorf("usage: seq <value>")
		}
		v, err := strconv.ParseUint(toks[1], 0, 16)
		if err != nil {
			return false, fmt.Errorf("invalid sequence number %q: %w", toks[1], err)
		}
		s.seq = uint16(v)
		return false, nil
	case "empty":
		return false, s.send(nil)
	}

	ps, err := parsePhotons(toks)
	if err != nil {
		return false, err
	}
	return false, s.send(ps)
}

// parsePhotons parses a list of "x,y" photons.
func parsePhotons(toks []string) ([]photon.Photon, error) {
	ps := make([]photon.Photon, 0, len(toks))
	for _, tok := range toks {
		sx, sy, ok := strings.Cut(tok, ",")
		if !ok {
			return nil, fmt.Errorf("invalid photon %q (want x,y)", tok)
		}
		x, err := strconv.ParseUint(sx, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid x coordinate %q: %w", sx, err)
		}
		y, err := strconv.ParseUint(sy, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid y coordinate %q: %w", sy, err)
		}
		ps = append(ps, photon.Photon{X: uint8(x), Y: uint8(y)})
	}
	return ps, nil
}
