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

package transfer

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/netio"
	"github.com/klegy/asyncfileserver/internal/protocol"
	"github.com/klegy/asyncfileserver/internal/state"
)

// Logger is the subset of queue.Registry's API the transfer pipelines need,
// so this package doesn't have to import internal/queue.
type Logger interface {
	Log(t events.EventType, fields map[string]any) events.Event
}

// Dialer opens a new outbound connection; satisfied by netio.Dial.
type Dialer func(host string, port uint32, deadline time.Time) (netio.Conn, error)

// Sender drives the file send pipeline (C6). A single Sender serves every
// outbound transfer attempt; per-transfer fields live in Scratch.
type Sender struct {
	Dial           Dialer
	Flags          *state.Flags
	Scratch        *state.Scratch
	Log            Logger
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	ReceiveTimeout time.Duration
	BufferSize     int
}

// RequestPush sends an OutboundFileTransferRequest announcing filePath
// (read from local disk) to remoteFolder on the peer at (remoteIP,
// remotePort), then closes the connection (spec §4.5 step 1). The caller
// learns the outcome later, when the peer's FileTransferAccepted or
// FileTransferRejected message is dispatched back to HandleAccepted/
// HandleRejected.
func (s *Sender) RequestPush(remoteIP string, remotePort uint32, filePath string, fileSize int64, localIP string, localPort uint32, remoteFolder string) error {
	conn, err := s.Dial(remoteIP, remotePort, time.Now().Add(s.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("transfer: dial push request: %w", err)
	}
	defer conn.Close()

	s.Scratch.ResetOutgoing(filePath, fileSize)
	s.Log.Log(events.OutboundFileTransferRequested, map[string]any{
		"file_path": filePath, "file_size": fileSize, "remote_folder": remoteFolder,
	})

	frame := protocol.EncodeOutboundFileTransferRequest(filePath, fileSize, localIP, localPort, remoteFolder)
	if err := conn.SendAll(frame, time.Now().Add(s.SendTimeout)); err != nil {
		return fmt.Errorf("transfer: send push request: %w", err)
	}
	return nil
}

// HandleRejected records the peer's rejection (spec §9: OutgoingFilePath
// is deliberately NOT cleared here, so a subsequent retry can still find
// it).
func (s *Sender) HandleRejected() {
	s.Log.Log(events.ClientRejectedFileTransfer, nil)
}

// HandleAccepted opens a new connection to the peer and streams the
// remembered outgoing file (spec §4.5 steps 3-5). cancel is polled
// between chunks; when it reports true the stream aborts with
// ErrStalledByPeer (spec §4.5 step 4 / §4.7).
func (s *Sender) HandleAccepted(remoteIP string, remotePort uint32, cancel func() bool) error {
	path := s.Scratch.OutgoingFilePath
	size := s.Scratch.OutgoingFileSize

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("transfer: open outgoing file: %w", err)
	}
	defer f.Close()

	conn, err := s.Dial(remoteIP, remotePort, time.Now().Add(s.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("transfer: dial byte stream: %w", err)
	}
	defer conn.Close()

	s.Flags.SetTransferInProgress(true)
	defer s.Flags.SetTransferInProgress(false)

	buf := make([]byte, s.BufferSize)
	var sent int64
	for sent < size {
		if cancel != nil && cancel() {
			return ErrStalledByPeer
		}
		chunk := int64(len(buf))
		if remaining := size - sent; remaining < chunk {
			chunk = remaining
		}
		n, err := io.ReadFull(f, buf[:chunk])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("transfer: read outgoing file: %w", err)
		}
		if n == 0 {
			break
		}
		if err := conn.SendAll(buf[:n], time.Now().Add(s.SendTimeout)); err != nil {
			return fmt.Errorf("transfer: send file bytes: %w", err)
		}
		sent += int64(n)
		s.Scratch.LastBytesSent = sent
	}
	s.Log.Log(events.SendFileBytesComplete, map[string]any{"bytes_sent": sent})

	ack := make([]byte, len(Handshake))
	if err := receiveExact(conn, ack, time.Now().Add(s.ReceiveTimeout)); err != nil {
		return fmt.Errorf("transfer: await confirmation: %w", err)
	}
	if string(ack) != Handshake {
		return ErrConfirmationMismatch
	}
	return nil
}

// Retry re-enters the send pipeline using the remembered OutgoingFilePath
// (spec §4.7: "the original sender re-enters the send pipeline using the
// remembered outgoing_file_path, which must not have been cleared").
func (s *Sender) Retry(remoteIP string, remotePort uint32, localIP string, localPort uint32, remoteFolder string) error {
	if s.Scratch.OutgoingFilePath == "" {
		return ErrNoOutgoingFile
	}
	s.Log.Log(events.RetryOutboundFileTransfer, map[string]any{"file_path": s.Scratch.OutgoingFilePath})
	info, err := os.Stat(s.Scratch.OutgoingFilePath)
	if err != nil {
		return fmt.Errorf("transfer: stat retry file: %w", err)
	}
	return s.RequestPush(remoteIP, remotePort, s.Scratch.OutgoingFilePath, info.Size(), localIP, localPort, remoteFolder)
}

func receiveExact(c netio.Conn, buf []byte, deadline time.Time) error {
	got := 0
	for got < len(buf) {
		n, err := c.Receive(buf[got:], deadline)
		if err != nil {
			return err
		}
		if n == 0 {
			return netio.ErrPeerClosed
		}
		got += n
	}
	return nil
}
