// Copyright (C) 2024 The async-file-server Authors.
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

// Package netio is the socket I/O primitive (C2): connect/send/receive with
// per-operation deadlines, and a small typed error set so callers never
// have to sniff net.OpError/syscall.Errno themselves. Every per-method
// try/catch the original implementation scattered across handlers is
// centralized here instead.
package netio

import (
	"errors"
	"net"
	"time"

	"golang.org/x/time/rate"
)

// Default per-call wall-clock timeouts (spec §4.2/§5).
const DefaultTimeout = 5000 * time.Millisecond

// Typed errors callers can compare against with errors.Is.
var (
	ErrTimeout           = errors.New("netio: timeout")
	ErrConnectionRefused = errors.New("netio: connection refused")
	ErrConnectionReset   = errors.New("netio: connection reset")
	ErrPeerClosed        = errors.New("netio: peer closed connection")
)

// IOError wraps any other network error the three typed cases above don't
// cover, so the caller still gets errors.Is(err, netio.ErrIO) support
// without losing the original message.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "netio: " + e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

var ErrIO = errors.New("netio: io error")

func (e *IOError) Is(target error) bool { return target == ErrIO }

// Conn is the socket abstraction the frame codec and the transfer
// pipelines are written against, so tests can fake it without opening real
// sockets.
type Conn interface {
	// Receive performs exactly one underlying read, honoring deadline, and
	// returns however many bytes the OS handed back (at most len(buf),
	// which may be more or fewer than the caller currently needs — the
	// frame codec's carry buffer exists precisely to cope with that).
	Receive(buf []byte, deadline time.Time) (int, error)
	// SendAll loops until buf is fully written or an error occurs.
	SendAll(buf []byte, deadline time.Time) error
	RemoteIP() string
	RemotePort() uint32
	Close() error
}

// socketConn is the net.Conn-backed implementation used outside tests.
type socketConn struct {
	conn    net.Conn
	limiter *rate.Limiter // nil means unlimited; set via WithSendRateLimit
}

// Dial opens a new TCP connection to host:port, honoring deadline as the
// connect timeout.
func Dial(host string, port uint32, deadline time.Time) (Conn, error) {
	d := net.Dialer{}
	if !deadline.IsZero() {
		d.Deadline = deadline
	}
	c, err := d.Dial("tcp", net.JoinHostPort(host, portString(port)))
	if err != nil {
		return nil, classifyDialErr(err)
	}
	return &socketConn{conn: c}, nil
}

// WrapConn adapts an already-accepted net.Conn (from a Listener) to Conn.
func WrapConn(c net.Conn) Conn {
	return &socketConn{conn: c}
}

// WithSendRateLimit returns a Conn whose SendAll is throttled to the given
// limiter. Passing a nil limiter restores unlimited sends. This is an
// additive knob (SPEC_FULL §4.2) layered over golang.org/x/time/rate; it
// changes pacing only, never wire content.
func WithSendRateLimit(c Conn, limiter *rate.Limiter) Conn {
	sc, ok := c.(*socketConn)
	if !ok {
		return c
	}
	clone := *sc
	clone.limiter = limiter
	return &clone
}

func (s *socketConn) Receive(buf []byte, deadline time.Time) (int, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return 0, &IOError{Op: "set read deadline", Err: err}
	}
	n, err := s.conn.Read(buf)
	if err != nil {
		return n, classifyIOErr(err)
	}
	return n, nil
}

func (s *socketConn) SendAll(buf []byte, deadline time.Time) error {
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return &IOError{Op: "set write deadline", Err: err}
	}
	sent := 0
	for sent < len(buf) {
		chunk := buf[sent:]
		if s.limiter != nil {
			if err := s.limiter.WaitN(contextBackground(), len(chunk)); err != nil {
				return &IOError{Op: "rate limit wait", Err: err}
			}
		}
		n, err := s.conn.Write(chunk)
		if n > 0 {
			sent += n
		}
		if err != nil {
			return classifyIOErr(err)
		}
	}
	return nil
}

func (s *socketConn) RemoteIP() string {
	host, _, err := net.SplitHostPort(s.conn.RemoteAddr().String())
	if err != nil {
		return s.conn.RemoteAddr().String()
	}
	return host
}

func (s *socketConn) RemotePort() uint32 {
	_, port, err := net.SplitHostPort(s.conn.RemoteAddr().String())
	if err != nil {
		return 0
	}
	var p uint32
	for _, r := range port {
		if r < '0' || r > '9' {
			return 0
		}
		p = p*10 + uint32(r-'0')
	}
	return p
}

func (s *socketConn) Close() error { return s.conn.Close() }
