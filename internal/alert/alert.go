// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alert sends e-mail alerts.
package alert // import "github.com/go-lpc/fodo/internal/alert"

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-daq/tdaq/log"
	mail "gopkg.in/gomail.v2"
)

// DefaultMax is the default maximum number of alerts sent per key.
const DefaultMax = 5

// Mailer sends a limited number of alerts per key.
type Mailer struct {
	msg  log.MsgStream
	name string // name of the sender process

	usr  string
	pwd  string
	srv  string
	port int
	tgts []string

	mu   sync.Mutex
	max  int
	sent map[string]int
}

// Credentials holds the SMTP settings of a mailer.
type Credentials struct {
	Username string
	Password string
	Server   string
	Port     int
	Targets  []string
}

// FromEnv returns the SMTP settings defined by the MAIL_USERNAME,
// MAIL_PASSWORD, MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment
// variables.
func FromEnv() Credentials {
	var tgts []string
	if v := os.Getenv("MAIL_TGTS"); v != "" {
		tgts = strings.Split(v, ",")
	}
	port, _ := strconv.Atoi(os.Getenv("MAIL_PORT"))
	return Credentials{
		Username: os.Getenv("MAIL_USERNAME"),
		Password: os.Getenv("MAIL_PASSWORD"),
		Server:   os.Getenv("MAIL_SERVER"),
		Port:     port,
		Targets:  tgts,
	}
}

// Valid reports whether all the SMTP settings are defined.
func (c Credentials) Valid() bool {
	return c.Username != "" && c.Password != "" &&
		c.Server != "" && c.Port != 0 && len(c.Targets) != 0
}

var dialAndSend = func(d *mail.Dialer, msg *mail.Message) error {
	return d.DialAndSend(msg)
}

// New creates a new mailer sending at most max alerts per key.
func New(name string, creds Credentials, max int, msg log.MsgStream) *Mailer {
	if max <= 0 {
		max = DefaultMax
	}
	return &Mailer{
		msg:  msg,
		name: name,
		usr:  creds.Username,
		pwd:  creds.Password,
		srv:  creds.Server,
		port: creds.Port,
		tgts: creds.Targets,
		max:  max,
		sent: make(map[string]int),
	}
}

// Alert sends an alert for the provided key.
// Alert is a no-op once max alerts have been sent for that key.
func (m *Mailer) Alert(key, subject, body string) error {
	m.mu.Lock()
	m.sent[key]++
	n := m.sent[key]
	m.mu.Unlock()

	if n > m.max {
		return nil
	}

	creds := Credentials{m.usr, m.pwd, m.srv, m.port, m.tgts}
	if !creds.Valid() {
		m.msg.Warnf("could not send mail alert: missing credentials")
		return fmt.Errorf("alert: missing credentials")
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.usr)
	msg.SetHeader("Bcc", m.tgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] %s", m.name, subject))
	msg.SetBody("text/plain", body)

	dial := mail.NewDialer(m.srv, m.port, m.usr, m.pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dialAndSend(dial, msg)
	if err != nil {
		m.msg.Errorf("could not send mail alert: %+v", err)
		return fmt.Errorf("alert: could not send mail: %w", err)
	}
	return nil
}
