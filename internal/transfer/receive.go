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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/netio"
	"github.com/klegy/asyncfileserver/internal/osutil"
	"github.com/klegy/asyncfileserver/internal/protocol"
	"github.com/klegy/asyncfileserver/internal/state"
)

// pollInterval bounds how long a single Receive call blocks while waiting
// for the next chunk, so the stall monitor gets checked regularly even
// when the peer has gone completely silent.
const pollInterval = 250 * time.Millisecond

// RawAccepter hands back the next inbound connection on the pump's
// listener, unframed, bypassing the generic dec.ReadFrame dispatch that
// every other accepted connection goes through. *pump.Pump satisfies this.
type RawAccepter interface {
	AcceptRaw(timeout time.Duration) (netio.Conn, error)
}

// Receiver drives the file receive pipeline (C7). A single Receiver serves
// every inbound push; per-transfer fields live in Scratch.
type Receiver struct {
	Dial           Dialer
	RawAccepter    RawAccepter
	Flags          *state.Flags
	Scratch        *state.Scratch
	Log            Logger
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	StallTimeout   time.Duration
	BufferSize     int

	// ProgressInterval is the minimum fractional delta between
	// UpdateFileTransferProgress events (spec §4.6, default 0.0025).
	ProgressInterval float64
}

// HandlePush implements spec §4.6 for a push landing at destPath, whether
// it arrived as an OutboundFileTransferRequest (destPath computed as
// remote_folder/basename(file_path)) or an InboundFileTransferRequest
// (destPath = local_path verbatim) — see DESIGN.md for why both wire
// messages feed the same receive logic. conn/dec are the connection and
// decoder the request frame arrived on; per spec §4.5 step 1 the sender
// closes that connection right after sending the request, so once the
// accept reply goes out HandlePush closes it too and waits for the new
// connection the sender opens to stream the file (spec §4.5 step 3, §4.6
// step 4). Bytes that dec already buffered past the request frame are
// drained and written first; bytes still unread on the request connection
// are not read, and the new connection is awaited in every case.
func (r *Receiver) HandlePush(conn netio.Conn, dec *protocol.Decoder, destPath string, fileSize int64, senderIP string, senderPort uint32, selfIP string, selfPort uint32) error {
	if _, err := os.Stat(destPath); err == nil {
		return r.reject(senderIP, senderPort, selfIP, selfPort)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("transfer: stat destination: %w", err)
	}

	if err := r.accept(senderIP, senderPort, selfIP, selfPort); err != nil {
		return err
	}

	head := dec.DrainUnread()
	conn.Close()

	stream, err := r.RawAccepter.AcceptRaw(r.StallTimeout)
	if err != nil {
		return fmt.Errorf("transfer: accept file stream: %w", err)
	}
	defer stream.Close()

	r.Flags.SetTransferInProgress(true)
	defer r.Flags.SetTransferInProgress(false)
	r.Scratch.ResetIncoming()
	r.Scratch.IncomingFilePath = destPath
	r.Scratch.IncomingFileSize = fileSize

	tempPath := osutil.TempNameFor(destPath)
	tmp, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("transfer: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	var total int64
	debugEachRead := fileSize <= int64(10*r.BufferSize)
	monitor := NewMonitor(r.StallTimeout)
	buf := make([]byte, r.BufferSize)
	var lastReported float64

	if len(head) > 0 {
		n, werr := tmp.Write(head)
		if werr != nil {
			tmp.Close()
			return fmt.Errorf("transfer: write buffered head: %w", werr)
		}
		total += int64(n)
		monitor.Touch()
	}

	for total < fileSize {
		if monitor.Stalled() {
			tmp.Close()
			r.Flags.SetInboundStalled(true)
			r.Log.Log(events.FileTransferStalledEvent, map[string]any{"bytes_received": total, "file_size": fileSize})
			if derr := r.notifyStalled(senderIP, senderPort, selfIP, selfPort); derr != nil {
				return fmt.Errorf("transfer: notify stall: %w", derr)
			}
			return ErrStalled
		}

		chunk := int64(len(buf))
		if remaining := fileSize - total; remaining < chunk {
			chunk = remaining
		}
		n, err := stream.Receive(buf[:chunk], time.Now().Add(pollInterval))
		if err != nil {
			if errors.Is(err, netio.ErrTimeout) {
				continue
			}
			tmp.Close()
			return fmt.Errorf("transfer: receive file bytes: %w", err)
		}
		if n == 0 {
			tmp.Close()
			return netio.ErrPeerClosed
		}
		if _, werr := tmp.Write(buf[:n]); werr != nil {
			tmp.Close()
			return fmt.Errorf("transfer: write file bytes: %w", werr)
		}
		total += int64(n)
		monitor.Touch()
		r.Scratch.LastBytesReceived = total

		if debugEachRead {
			r.Log.Log(events.ReceivedFileBytesFromSocket, map[string]any{"bytes_read": n})
		}
		frac := float64(total) / float64(fileSize)
		if frac-lastReported > r.ProgressInterval {
			r.Log.Log(events.UpdateFileTransferProgress, map[string]any{"percent": frac})
			lastReported = frac
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("transfer: close temp file: %w", err)
	}
	if err := osutil.InWritableDir(func(p string) error { return osutil.Rename(tempPath, p) }, destPath); err != nil {
		return fmt.Errorf("transfer: commit file: %w", err)
	}

	if err := stream.SendAll([]byte(Handshake), time.Now().Add(r.SendTimeout)); err != nil {
		return fmt.Errorf("transfer: send confirmation: %w", err)
	}
	r.Log.Log(events.ReceiveFileBytesComplete, map[string]any{"bytes_received": total})
	return nil
}

func (r *Receiver) reject(senderIP string, senderPort uint32, selfIP string, selfPort uint32) error {
	conn, err := r.Dial(senderIP, senderPort, time.Now().Add(r.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("transfer: dial reject: %w", err)
	}
	defer conn.Close()
	frame := protocol.EncodePeerEndpoint(protocol.FileTransferRejected, selfIP, selfPort)
	if err := conn.SendAll(frame, time.Now().Add(r.SendTimeout)); err != nil {
		return fmt.Errorf("transfer: send reject: %w", err)
	}
	r.Log.Log(events.FileTransferRejectedLocally, nil)
	return nil
}

func (r *Receiver) accept(senderIP string, senderPort uint32, selfIP string, selfPort uint32) error {
	conn, err := r.Dial(senderIP, senderPort, time.Now().Add(r.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("transfer: dial accept: %w", err)
	}
	defer conn.Close()
	frame := protocol.EncodePeerEndpoint(protocol.FileTransferAccepted, selfIP, selfPort)
	if err := conn.SendAll(frame, time.Now().Add(r.SendTimeout)); err != nil {
		return fmt.Errorf("transfer: send accept: %w", err)
	}
	r.Log.Log(events.FileTransferAccepted, nil)
	return nil
}

func (r *Receiver) notifyStalled(senderIP string, senderPort uint32, selfIP string, selfPort uint32) error {
	conn, err := r.Dial(senderIP, senderPort, time.Now().Add(r.ConnectTimeout))
	if err != nil {
		return err
	}
	defer conn.Close()
	frame := protocol.EncodePeerEndpoint(protocol.FileTransferStalled, selfIP, selfPort)
	return conn.SendAll(frame, time.Now().Add(r.SendTimeout))
}

// HandleStalled is invoked when this peer, as a file sender, receives
// FileTransferStalled from the remote (spec §4.7 "Stall response
// (outbound)"): it sets the outbound_stalled flag the active send loop
// polls between chunks.
func HandleStalled(flags *state.Flags) {
	flags.SetOutboundStalled(true)
}
