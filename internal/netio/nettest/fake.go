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

// Package nettest provides a fake netio.Conn whose Receive calls return
// exactly the byte chunks the test queued, so codec and pipeline tests can
// exercise arbitrary read-boundary splits without opening a real socket.
package nettest

import (
	"time"

	"github.com/klegy/asyncfileserver/internal/netio"
)

// FakeConn replays a queue of read chunks and records every write.
type FakeConn struct {
	Chunks  [][]byte
	Written []byte
	closed  bool
}

var _ netio.Conn = (*FakeConn)(nil)

// Queue appends chunks that future Receive calls will return, one chunk
// per call, in order.
func (f *FakeConn) Queue(chunks ...[]byte) { f.Chunks = append(f.Chunks, chunks...) }

func (f *FakeConn) Receive(buf []byte, _ time.Time) (int, error) {
	if len(f.Chunks) == 0 {
		return 0, netio.ErrPeerClosed
	}
	c := f.Chunks[0]
	f.Chunks = f.Chunks[1:]
	n := copy(buf, c)
	if n < len(c) {
		// Caller's buffer was smaller than the physical read; stash the
		// remainder back at the front exactly like a real socket would
		// still have it available on the next Read.
		f.Chunks = append([][]byte{c[n:]}, f.Chunks...)
	}
	return n, nil
}

func (f *FakeConn) SendAll(buf []byte, _ time.Time) error {
	f.Written = append(f.Written, buf...)
	return nil
}

func (f *FakeConn) RemoteIP() string   { return "127.0.0.1" }
func (f *FakeConn) RemotePort() uint32 { return 5000 }
func (f *FakeConn) Close() error       { f.closed = true; return nil }
func (f *FakeConn) Closed() bool       { return f.closed }
