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

package transfer_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klegy/asyncfileserver/internal/netio"
	"github.com/klegy/asyncfileserver/internal/netio/nettest"
	"github.com/klegy/asyncfileserver/internal/protocol"
	"github.com/klegy/asyncfileserver/internal/state"
	"github.com/klegy/asyncfileserver/internal/transfer"
)

func newSender(dial transfer.Dialer, log *fakeLogger) *transfer.Sender {
	return &transfer.Sender{
		Dial:           dial,
		Flags:          state.NewFlags(),
		Scratch:        &state.Scratch{},
		Log:            log,
		ConnectTimeout: time.Second,
		SendTimeout:    time.Second,
		ReceiveTimeout: time.Second,
		BufferSize:     4,
	}
}

func TestRequestPushSendsOutboundRequestFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")

	dialConn := &nettest.FakeConn{}
	log := &fakeLogger{}
	sender := newSender(func(host string, port uint32, _ time.Time) (netio.Conn, error) {
		if host != "10.0.0.9" || port != 7000 {
			t.Fatalf("unexpected dial target %s:%d", host, port)
		}
		return dialConn, nil
	}, log)

	if err := sender.RequestPush("10.0.0.9", 7000, path, 123, "127.0.0.1", 5000, "incoming"); err != nil {
		t.Fatalf("RequestPush: %v", err)
	}

	typ, body := decodeWritten(t, dialConn.Written)
	if typ != protocol.OutboundFileTransferRequest {
		t.Fatalf("expected OutboundFileTransferRequest, got %v", typ)
	}
	req, err := protocol.DecodeOutboundFileTransferRequest(body)
	if err != nil {
		t.Fatal(err)
	}
	if req.FilePath != path || req.FileSize != 123 || req.RemoteFolder != "incoming" {
		t.Fatalf("unexpected request body: %+v", req)
	}
}

func TestHandleAcceptedStreamsFileAndAwaitsHandshake(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	content := []byte("0123456789")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	dialConn := &nettest.FakeConn{}
	dialConn.Queue([]byte(transfer.Handshake))
	log := &fakeLogger{}
	sender := newSender(func(string, uint32, time.Time) (netio.Conn, error) { return dialConn, nil }, log)
	sender.Scratch.ResetOutgoing(path, int64(len(content)))

	if err := sender.HandleAccepted("10.0.0.9", 7000, nil); err != nil {
		t.Fatalf("HandleAccepted: %v", err)
	}
	if string(dialConn.Written) != string(content) {
		t.Fatalf("streamed content = %q, want %q", dialConn.Written, content)
	}
}

func TestHandleAcceptedCancelStopsStream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	dialConn := &nettest.FakeConn{}
	log := &fakeLogger{}
	sender := newSender(func(string, uint32, time.Time) (netio.Conn, error) { return dialConn, nil }, log)
	sender.Scratch.ResetOutgoing(path, 10)

	err := sender.HandleAccepted("10.0.0.9", 7000, func() bool { return true })
	if err != transfer.ErrStalledByPeer {
		t.Fatalf("expected ErrStalledByPeer, got %v", err)
	}
}

func TestRetryResendsRememberedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	dialConn := &nettest.FakeConn{}
	log := &fakeLogger{}
	sender := newSender(func(string, uint32, time.Time) (netio.Conn, error) { return dialConn, nil }, log)
	sender.Scratch.ResetOutgoing(path, 7)

	if err := sender.Retry("10.0.0.9", 7000, "127.0.0.1", 5000, "incoming"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	typ, body := decodeWritten(t, dialConn.Written)
	if typ != protocol.OutboundFileTransferRequest {
		t.Fatalf("expected OutboundFileTransferRequest, got %v", typ)
	}
	req, err := protocol.DecodeOutboundFileTransferRequest(body)
	if err != nil {
		t.Fatal(err)
	}
	if req.FilePath != path {
		t.Fatalf("retry resent wrong path: %q", req.FilePath)
	}
}

func TestRetryWithNoRememberedFileErrors(t *testing.T) {
	dialConn := &nettest.FakeConn{}
	log := &fakeLogger{}
	sender := newSender(func(string, uint32, time.Time) (netio.Conn, error) { return dialConn, nil }, log)

	if err := sender.Retry("10.0.0.9", 7000, "127.0.0.1", 5000, "incoming"); err != transfer.ErrNoOutgoingFile {
		t.Fatalf("expected ErrNoOutgoingFile, got %v", err)
	}
}

func decodeWritten(t *testing.T, raw []byte) (protocol.MessageType, []byte) {
	t.Helper()
	dec := protocol.NewDecoder(64)
	typ, body, err := dec.ReadFrame(&nettest.FakeConn{Chunks: [][]byte{raw}}, time.Time{})
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return typ, body
}
