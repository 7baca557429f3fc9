// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package node

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/fodo/bridge"
	"github.com/go-lpc/fodo/config"
	"github.com/go-lpc/fodo/gpio"
	"github.com/go-lpc/fodo/internal/alert"
	"github.com/go-lpc/fodo/internal/fakegpio"
	"github.com/go-lpc/fodo/photon"
	"github.com/go-lpc/fodo/pipeline"
)

const testConfig = `
listen: ["127.0.0.1:0"]
source: 127.0.0.1
gpio:
  driver: sim
bus:
  poll: 100us
stats: 0s
`

func TestServer(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "fodo.yaml")
	err := os.WriteFile(fname, []byte(testConfig), 0644)
	if err != nil {
		t.Fatalf("could not write config file: %+v", err)
	}

	for _, k := range []string{"MAIL_USERNAME", "MAIL_PASSWORD", "MAIL_SERVER", "MAIL_PORT", "MAIL_TGTS"} {
		t.Setenv(k, "")
	}

	var chip *fakegpio.Chip
	defer func(f func(cfg config.GPIO, pins gpio.PinTable) (gpio.Chip, error)) {
		openChip = f
	}(openChip)
	openChip = func(cfg config.GPIO, pins gpio.PinTable) (gpio.Chip, error) {
		c, err := pipeline.OpenChip(cfg, pins)
		if err != nil {
			return nil, err
		}
		chip = c.(*fakegpio.Chip)
		return c, nil
	}

	var (
		srv  = New("fodo-test", fname)
		msg  = log.NewMsgStream("fodo-test", log.LvlError, os.Stderr)
		resp tdaq.Frame
		tctx = tdaq.Context{Ctx: context.Background(), Msg: msg}
	)
	srv.freq = time.Millisecond

	for _, tc := range []struct {
		name string
		cmd  func(tdaq.Context, *tdaq.Frame, tdaq.Frame) error
	}{
		{"/config", srv.OnConfig},
		{"/init", srv.OnInit},
		{"/reset", srv.OnReset},
		{"/start", srv.OnStart},
	} {
		err := tc.cmd(tctx, &resp, tdaq.Frame{})
		if err != nil {
			t.Fatalf("could not run %s: %+v", tc.name, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rctx := tdaq.Context{Ctx: ctx, Msg: msg}

	done := make(chan error)
	go func() {
		done <- srv.run(rctx)
	}()

	pipe := srv.current()
	addr := pipe.Addrs()[0].String()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := chip.Mode(srv.brd.Pins.FIFORead); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for bus setup")
		}
		time.Sleep(time.Millisecond)
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("could not dial %q: %+v", addr, err)
	}
	defer conn.Close()

	raw, err := photon.Marshal(1, []photon.Photon{{X: 9, Y: 18}, {X: 1, Y: 2}})
	if err != nil {
		t.Fatalf("could not marshal datagram: %+v", err)
	}
	_, err = conn.Write(raw)
	if err != nil {
		t.Fatalf("could not send datagram: %+v", err)
	}

	for pipe.Stats().Bridge.Photons != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for photons")
		}
		time.Sleep(time.Millisecond)
	}

	var out tdaq.Frame
	err = srv.stats(rctx, &out)
	if err != nil {
		t.Fatalf("could not publish stats: %+v", err)
	}
	st, err := DecodeStats(bytes.NewReader(out.Body))
	if err != nil {
		t.Fatalf("could not decode stats: %+v", err)
	}
	if got, want := st.Bridge.Photons, uint64(2); got != want {
		t.Fatalf("invalid published stats: got=%d, want=%d", got, want)
	}

	cancel()
	err = <-done
	if err != nil {
		t.Fatalf("could not run node: %+v", err)
	}

	err = srv.stats(rctx, &out)
	if err != nil {
		t.Fatalf("could not publish stats: %+v", err)
	}
	if out.Body != nil {
		t.Fatalf("expected no stats after stop")
	}

	err = srv.OnStop(tctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /stop: %+v", err)
	}
	if got, want := srv.last.Bridge, (bridge.Stats{Photons: 2, Batches: 1}); got != want {
		t.Fatalf("invalid bridge stats:\ngot= %+v\nwant=%+v", got, want)
	}

	if last, ok := srv.dec.Last(); !ok || last != 1 {
		t.Fatalf("invalid last sequence: got=%d (%v), want=1", last, ok)
	}
	err = srv.OnReset(tctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /reset: %+v", err)
	}
	if _, ok := srv.dec.Last(); ok {
		t.Fatalf("sequence state not reset")
	}

	err = srv.OnQuit(tctx, &resp, tdaq.Frame{})
	if err != nil {
		t.Fatalf("could not run /quit: %+v", err)
	}
	if !chip.Closed() {
		t.Fatalf("chip not closed")
	}
}

func TestServerErrors(t *testing.T) {
	var (
		msg  = log.NewMsgStream("fodo-test", log.LvlError, os.Stderr)
		resp tdaq.Frame
		tctx = tdaq.Context{Ctx: context.Background(), Msg: msg}
	)

	srv := New("fodo-test", filepath.Join(t.TempDir(), "missing.yaml"))
	err := srv.OnConfig(tctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error loading a missing config file")
	}

	err = srv.OnStart(tctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error starting an uninitialized node")
	}

	err = srv.run(tctx)
	if err == nil {
		t.Fatalf("expected an error running a stopped node")
	}

	fname := filepath.Join(t.TempDir(), "invalid.yaml")
	err = os.WriteFile(fname, []byte("sequence: random\n"), 0644)
	if err != nil {
		t.Fatalf("could not write config file: %+v", err)
	}
	srv = New("fodo-test", fname)
	err = srv.OnConfig(tctx, &resp, tdaq.Frame{})
	if err == nil {
		t.Fatalf("expected an error loading an invalid config file")
	}
}

func TestStatsCodec(t *testing.T) {
	want := pipeline.Stats{}
	for i, v := range statsFields(&want) {
		*v = uint64(i + 1)
	}

	buf := new(bytes.Buffer)
	err := EncodeStats(buf, want)
	if err != nil {
		t.Fatalf("could not encode stats: %+v", err)
	}

	got, err := DecodeStats(buf)
	if err != nil {
		t.Fatalf("could not decode stats: %+v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid round-trip:\ngot= %+v\nwant=%+v", got, want)
	}

	_, err = DecodeStats(bytes.NewReader([]byte{1, 2, 3}))
	if err == nil {
		t.Fatalf("expected an error decoding truncated stats")
	}
}

type nopAlerter struct{}

func (nopAlerter) Alert(key, subject, body string) error { return nil }

func TestMailer(t *testing.T) {
	defer func(f func(tdaq.Context, string, alert.Credentials, int) pipeline.Alerter) {
		newAlert = f
	}(newAlert)

	var got alert.Credentials
	newAlert = func(_ tdaq.Context, _ string, creds alert.Credentials, _ int) pipeline.Alerter {
		got = creds
		return nopAlerter{}
	}

	ctx := tdaq.Context{
		Ctx: context.Background(),
		Msg: log.NewMsgStream("fodo-test", log.LvlError, os.Stderr),
	}

	for _, tc := range []struct {
		name string
		env  map[string]string
		want bool
	}{
		{
			name: "no-settings",
			want: false,
		},
		{
			name: "missing-targets",
			env: map[string]string{
				"MAIL_USERNAME": "bob",
				"MAIL_PASSWORD": "s3cr3t",
				"MAIL_SERVER":   "smtp.example.org",
				"MAIL_PORT":     "587",
			},
			want: false,
		},
		{
			name: "valid",
			env: map[string]string{
				"MAIL_USERNAME": "bob",
				"MAIL_PASSWORD": "s3cr3t",
				"MAIL_SERVER":   "smtp.example.org",
				"MAIL_PORT":     "587",
				"MAIL_TGTS":     "alice@example.org",
			},
			want: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"MAIL_USERNAME", "MAIL_PASSWORD", "MAIL_SERVER", "MAIL_PORT", "MAIL_TGTS"} {
				t.Setenv(k, tc.env[k])
			}
			got = alert.Credentials{}

			a := mailer(ctx, "fodo-test", 2)
			if tc.want != (a != nil) {
				t.Fatalf("invalid alerter: got=%v, want installed=%v", a, tc.want)
			}
			if !tc.want {
				return
			}
			if got.Server != "smtp.example.org" || got.Port != 587 {
				t.Fatalf("invalid credentials: got=%+v", got)
			}
		})
	}
}
