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

package protocol_test

import (
	"testing"
	"time"

	"github.com/d4l3k/messagediff"

	"github.com/klegy/asyncfileserver/internal/netio/nettest"
	"github.com/klegy/asyncfileserver/internal/protocol"
)

func decodeOne(t *testing.T, frames ...[]byte) (protocol.MessageType, any) {
	t.Helper()
	fc := &nettest.FakeConn{}
	fc.Queue(frames...)
	dec := protocol.NewDecoder(64)
	typ, body, err := dec.ReadFrame(fc, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	v, err := protocol.Decode(typ, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return typ, v
}

func TestRoundTripText(t *testing.T) {
	frame := protocol.EncodeText("127.0.0.1", 5001, "hello")
	typ, v := decodeOne(t, frame)
	if typ != protocol.TextMessage {
		t.Fatalf("type = %v, want TextMessage", typ)
	}
	want := protocol.TextBody{SenderIP: "127.0.0.1", SenderPort: 5001, Text: "hello"}
	if diff, equal := messagediff.PrettyDiff(want, v); !equal {
		t.Errorf("round trip mismatch:\n%s", diff)
	}
}

func TestRoundTripAllTypes(t *testing.T) {
	cases := []struct {
		name  string
		frame []byte
		typ   protocol.MessageType
		want  any
	}{
		{"text", protocol.EncodeText("10.0.0.1", 1, "hi"), protocol.TextMessage,
			protocol.TextBody{SenderIP: "10.0.0.1", SenderPort: 1, Text: "hi"}},
		{"inbound-req", protocol.EncodeInboundFileTransferRequest("/tmp/a.bin", 3, "10.0.0.2", 2), protocol.InboundFileTransferRequest,
			protocol.InboundFileTransferRequestBody{LocalPath: "/tmp/a.bin", FileSize: 3, SenderIP: "10.0.0.2", SenderPort: 2}},
		{"outbound-req", protocol.EncodeOutboundFileTransferRequest("/tmp/b.bin", 9, "10.0.0.3", 3, "in"), protocol.OutboundFileTransferRequest,
			protocol.OutboundFileTransferRequestBody{FilePath: "/tmp/b.bin", FileSize: 9, SenderIP: "10.0.0.3", SenderPort: 3, RemoteFolder: "in"}},
		{"accepted", protocol.EncodePeerEndpoint(protocol.FileTransferAccepted, "10.0.0.4", 4), protocol.FileTransferAccepted,
			protocol.PeerEndpointBody{SenderIP: "10.0.0.4", SenderPort: 4}},
		{"rejected", protocol.EncodePeerEndpoint(protocol.FileTransferRejected, "10.0.0.5", 5), protocol.FileTransferRejected,
			protocol.PeerEndpointBody{SenderIP: "10.0.0.5", SenderPort: 5}},
		{"stalled", protocol.EncodePeerEndpoint(protocol.FileTransferStalled, "10.0.0.6", 6), protocol.FileTransferStalled,
			protocol.PeerEndpointBody{SenderIP: "10.0.0.6", SenderPort: 6}},
		{"shutdown", protocol.EncodePeerEndpoint(protocol.ShutdownServerCommand, "10.0.0.7", 7), protocol.ShutdownServerCommand,
			protocol.PeerEndpointBody{SenderIP: "10.0.0.7", SenderPort: 7}},
		{"no-files", protocol.EncodePeerEndpoint(protocol.NoFilesAvailableForDownload, "10.0.0.8", 8), protocol.NoFilesAvailableForDownload,
			protocol.PeerEndpointBody{SenderIP: "10.0.0.8", SenderPort: 8}},
		{"folder-missing", protocol.EncodePeerEndpoint(protocol.RequestedFolderDoesNotExist, "10.0.0.9", 9), protocol.RequestedFolderDoesNotExist,
			protocol.PeerEndpointBody{SenderIP: "10.0.0.9", SenderPort: 9}},
		{"server-info-req", protocol.EncodePeerEndpoint(protocol.ServerInfoRequest, "10.0.0.10", 10), protocol.ServerInfoRequest,
			protocol.PeerEndpointBody{SenderIP: "10.0.0.10", SenderPort: 10}},
		{"retry", protocol.EncodeFolderRequest(protocol.RetryOutboundFileTransfer, "10.0.0.11", 11, "out"), protocol.RetryOutboundFileTransfer,
			protocol.FolderRequestBody{SenderIP: "10.0.0.11", SenderPort: 11, Folder: "out"}},
		{"list-req", protocol.EncodeFolderRequest(protocol.FileListRequest, "10.0.0.12", 12, "out"), protocol.FileListRequest,
			protocol.FolderRequestBody{SenderIP: "10.0.0.12", SenderPort: 12, Folder: "out"}},
		{"list-resp", protocol.EncodeFileListResponse("10.0.0.13", 13, "out", "a.bin|3*b.bin|9"), protocol.FileListResponse,
			protocol.FileListResponseBody{SenderIP: "10.0.0.13", SenderPort: 13, Folder: "out", List: "a.bin|3*b.bin|9"}},
		{"server-info-resp", protocol.EncodeServerInfoResponse("192.168.1.2", 14, "1.2.3.4", "out"), protocol.ServerInfoResponse,
			protocol.ServerInfoResponseBody{LocalIP: "192.168.1.2", Port: 14, PublicIP: "1.2.3.4", Folder: "out"}},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			typ, v := decodeOne(t, c.frame)
			if typ != c.typ {
				t.Fatalf("type = %v, want %v", typ, c.typ)
			}
			if diff, equal := messagediff.PrettyDiff(c.want, v); !equal {
				t.Errorf("round trip mismatch:\n%s", diff)
			}
		})
	}
}

// TestFramingIsStreamAssociative checks that decoding N frames then one
// more from the carry buffer equals decoding all N+1 in one pass,
// regardless of how the bytes are chopped into physical reads.
func TestFramingIsStreamAssociative(t *testing.T) {
	f1 := protocol.EncodeText("127.0.0.1", 1, "one")
	f2 := protocol.EncodeText("127.0.0.1", 2, "two")
	f3 := protocol.EncodeText("127.0.0.1", 3, "three")
	all := append(append(append([]byte{}, f1...), f2...), f3...)

	// Chop the concatenated stream into arbitrary, boundary-ignorant
	// physical read chunks.
	var chunks [][]byte
	chunkSize := 7
	for len(all) > 0 {
		n := chunkSize
		if n > len(all) {
			n = len(all)
		}
		chunks = append(chunks, all[:n])
		all = all[n:]
	}

	fc := &nettest.FakeConn{}
	fc.Queue(chunks...)
	dec := protocol.NewDecoder(64)

	var got []string
	for i := 0; i < 3; i++ {
		typ, body, err := dec.ReadFrame(fc, time.Now().Add(time.Second))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if typ != protocol.TextMessage {
			t.Fatalf("frame %d: type = %v", i, typ)
		}
		tb, err := protocol.DecodeText(body)
		if err != nil {
			t.Fatalf("frame %d decode: %v", i, err)
		}
		got = append(got, tb.Text)
		if dec.UnreadLen() >= 64 {
			t.Fatalf("frame %d: unread buffer grew to bufSize", i)
		}
	}

	want := []string{"one", "two", "three"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestZeroByteFileFrameLeavesNoCarry(t *testing.T) {
	frame := protocol.EncodeInboundFileTransferRequest("/tmp/empty.bin", 0, "127.0.0.1", 1)
	fc := &nettest.FakeConn{}
	fc.Queue(frame)
	dec := protocol.NewDecoder(64)
	typ, body, err := dec.ReadFrame(fc, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != protocol.InboundFileTransferRequest {
		t.Fatalf("type = %v", typ)
	}
	m, err := protocol.DecodeInboundFileTransferRequest(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.FileSize != 0 {
		t.Fatalf("FileSize = %d, want 0", m.FileSize)
	}
	if dec.UnreadLen() != 0 {
		t.Fatalf("unread len = %d, want 0", dec.UnreadLen())
	}
}

func TestPayloadExactlyFillsFirstRead(t *testing.T) {
	// Payload of bufSize-4: the very first Receive call returns the length
	// prefix plus the whole 28-byte payload, exactly filling the 32-byte
	// read, so the decoder must still end up with zero carry-over.
	const bufSize = 32
	frame := protocol.EncodeText("1.2.3.4", 1, "hello") // 4-byte prefix + 28-byte payload
	fc := &nettest.FakeConn{}
	fc.Queue(frame)
	dec := protocol.NewDecoder(bufSize)
	_, _, err := dec.ReadFrame(fc, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if dec.UnreadLen() != 0 {
		t.Fatalf("unread len = %d, want 0", dec.UnreadLen())
	}
}

func TestTruncatedPayloadIsReported(t *testing.T) {
	frame := protocol.EncodeText("1.2.3.4", 1, "hello")
	fc := &nettest.FakeConn{}
	fc.Queue(frame[:len(frame)-2]) // drop the last 2 bytes, then peer closes
	dec := protocol.NewDecoder(64)
	_, _, err := dec.ReadFrame(fc, time.Now().Add(time.Second))
	if err != protocol.ErrTruncatedPayload {
		t.Fatalf("err = %v, want ErrTruncatedPayload", err)
	}
}

func TestUnknownTypeIsReported(t *testing.T) {
	bad := protocol.EncodePeerEndpoint(protocol.MessageType(999), "1.2.3.4", 1)
	fc := &nettest.FakeConn{}
	fc.Queue(bad)
	dec := protocol.NewDecoder(64)
	_, _, err := dec.ReadFrame(fc, time.Now().Add(time.Second))
	if err != protocol.ErrUnknownType {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestDrainUnreadHandsBackFileStreamHead(t *testing.T) {
	frame := protocol.EncodeInboundFileTransferRequest("/tmp/a.bin", 3, "127.0.0.1", 1)
	fileBytes := []byte{0x01, 0x02, 0x03}
	fc := &nettest.FakeConn{}
	// The accept-response triggers the sender to start streaming
	// immediately, so the request frame and the first file byte(s) can
	// arrive in the same physical read.
	fc.Queue(append(append([]byte{}, frame...), fileBytes...))
	dec := protocol.NewDecoder(64)
	_, _, err := dec.ReadFrame(fc, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	head := dec.DrainUnread()
	if string(head) != string(fileBytes) {
		t.Fatalf("drained = %v, want %v", head, fileBytes)
	}
	if dec.UnreadLen() != 0 {
		t.Fatalf("unread len after drain = %d, want 0", dec.UnreadLen())
	}
}
