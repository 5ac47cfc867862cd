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

package pump

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/netutil"

	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/netio"
	"github.com/klegy/asyncfileserver/internal/protocol"
	"github.com/klegy/asyncfileserver/internal/queue"
	"github.com/klegy/asyncfileserver/internal/state"
)

// Pump implements the IDLE/HAVE_PEER/HAVE_LEN/HAVE_MSG state machine of
// spec §4.4 as a thejerf/suture Service: Serve runs until the context is
// cancelled, a shutdown command is dispatched, or the accept loop hits a
// fatal error.
type Pump struct {
	listener net.Listener

	Registry       *queue.Registry
	Dispatcher     *Dispatcher
	Flags          *state.Flags
	Log            Logger
	BufferSize     int
	ReceiveTimeout time.Duration

	// OnFatal reports accept-loop failures beyond what Serve's
	// return value already surfaces to its supervisor (SPEC_FULL §4.4:
	// internal/errreport, a no-op unless a Sentry DSN is configured).
	OnFatal func(error)
}

// New wraps l with a single-connection limit (Non-goal: "no multi-client
// concurrency ... one active session at a time, by design" — enforced
// here with golang.org/x/net/netutil.LimitListener rather than a
// hand-rolled semaphore).
func New(l net.Listener, registry *queue.Registry, dispatcher *Dispatcher, flags *state.Flags, log Logger, bufferSize int, receiveTimeout time.Duration) *Pump {
	return &Pump{
		listener:       netutil.LimitListener(l, 1),
		Registry:       registry,
		Dispatcher:     dispatcher,
		Flags:          flags,
		Log:            log,
		BufferSize:     bufferSize,
		ReceiveTimeout: receiveTimeout,
	}
}

// AcceptRaw accepts the next inbound connection on the pump's listener and
// hands it back unframed, without routing it through dec.ReadFrame. The
// file receive pipeline uses this for the byte-stream phase of a push
// (spec §4.6 step 4): the sender closes the request connection right after
// sending it (spec §4.5 step 1) and only opens a new one, to this same
// listener, once it has the accept response in hand (spec §4.5 step 3), so
// the pushed bytes never arrive on the connection the request came in on.
//
// Serve's own Accept call is what this races against, but Serve never
// issues another Accept until handle (and whatever it dispatches to, this
// included) returns, so there is exactly one live caller of Accept at a
// time on p.listener.
func (p *Pump) AcceptRaw(timeout time.Duration) (netio.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := p.listener.Accept()
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("pump: accept raw: %w", r.err)
		}
		return netio.WrapConn(r.conn), nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("pump: accept raw: timed out waiting for continuation connection")
	}
}

func (p *Pump) Serve(ctx context.Context) error {
	p.Flags.SetListening(true)
	defer p.Flags.SetListening(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.listener.Close()
		case <-done:
		}
	}()

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || p.Flags.ShutdownInitiated() {
				return nil
			}
			if p.OnFatal != nil {
				p.OnFatal(err)
			}
			return fmt.Errorf("pump: accept: %w", err)
		}

		p.handle(conn)

		if p.Flags.ShutdownInitiated() {
			return nil
		}
	}
}

// handle implements one full IDLE->HAVE_MSG->(DISPATCH|ENQUEUE)->IDLE
// cycle for a single accepted connection.
func (p *Pump) handle(netConn net.Conn) {
	conn := netio.WrapConn(netConn)
	defer conn.Close()

	dec := protocol.NewDecoder(p.BufferSize)
	t, body, err := dec.ReadFrame(conn, time.Now().Add(p.ReceiveTimeout))
	if err != nil {
		p.Registry.Log(events.ErrorOccurred, map[string]any{"stage": "frame", "err": err.Error()})
		return
	}

	msg := &protocol.Message{Type: t, Data: body, RemoteIP: conn.RemoteIP()}
	id := p.Registry.Enqueue(msg)

	if !protocol.MustProcessImmediately(t) {
		return
	}

	err = p.Registry.ProcessByID(id, func(m *protocol.Message) error {
		return p.Dispatcher.Handle(conn, dec, m)
	})
	if err != nil {
		p.Registry.Log(events.ErrorOccurred, map[string]any{"stage": "dispatch", "type": t.String(), "err": err.Error()})
	}
}
