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

// Package pump implements the listener & request pump (C4) and the
// dispatcher (C5): bind, accept one peer at a time, frame one message,
// and either dispatch it inline or leave it queued for explicit
// processing.
package pump

import (
	"fmt"
	"path/filepath"

	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/metadata"
	"github.com/klegy/asyncfileserver/internal/netio"
	"github.com/klegy/asyncfileserver/internal/peercache"
	"github.com/klegy/asyncfileserver/internal/protocol"
	"github.com/klegy/asyncfileserver/internal/state"
	"github.com/klegy/asyncfileserver/internal/transfer"
)

// Logger is the subset of queue.Registry's API this package needs.
type Logger interface {
	Log(t events.EventType, fields map[string]any) events.Event
}

// Dispatcher maps a decoded message to its handler (spec §4.4/§4.5-§4.8).
// Per spec §9's redesign note, handlers receive the remote peer's identity
// as an argument on every call rather than reading a shared
// RemoteServerInfo field.
type Dispatcher struct {
	Sender   *transfer.Sender
	Receiver *transfer.Receiver
	Exchange *metadata.Exchange
	Flags    *state.Flags
	Meta     *state.MetadataScratch
	Log      Logger

	// Peers remembers the ServerInfo of peers this session has exchanged
	// metadata with; Handle only stores entries and never reads them. Nil
	// is a valid zero value — callers that don't care about this just skip it.
	Peers *peercache.Cache

	Self func() protocol.ServerInfo
}

// Handle runs the handler for msg. conn/dec are the connection and decoder
// the message was framed from. Only the file receive pipeline (for
// InboundFileTransferRequest/OutboundFileTransferRequest) looks at them
// past this call, and only to close conn and drain dec's carry buffer —
// the sender closes its end of this same connection right after sending
// the request (spec §4.5 step 1), so the file bytes themselves arrive on
// a separate connection Receiver.HandlePush asks the pump for. Every
// other handler opens its own connection to reply.
func (d *Dispatcher) Handle(conn netio.Conn, dec *protocol.Decoder, msg *protocol.Message) error {
	self := d.Self()

	switch msg.Type {
	case protocol.TextMessage:
		body, err := protocol.DecodeText(msg.Data)
		if err != nil {
			return err
		}
		d.Log.Log(events.ReceivedTextMessage, map[string]any{
			"remote_ip": body.SenderIP, "remote_port": body.SenderPort, "text": body.Text,
		})
		return nil

	case protocol.InboundFileTransferRequest:
		body, err := protocol.DecodeInboundFileTransferRequest(msg.Data)
		if err != nil {
			return err
		}
		d.Log.Log(events.InboundFileTransferRequested, map[string]any{"local_path": body.LocalPath, "file_size": body.FileSize})
		return d.Receiver.HandlePush(conn, dec, body.LocalPath, body.FileSize, body.SenderIP, body.SenderPort, self.LocalIP, self.Port)

	case protocol.OutboundFileTransferRequest:
		body, err := protocol.DecodeOutboundFileTransferRequest(msg.Data)
		if err != nil {
			return err
		}
		destPath := filepath.Join(body.RemoteFolder, filepath.Base(body.FilePath))
		d.Log.Log(events.OutboundFileTransferRequested, map[string]any{"dest_path": destPath, "file_size": body.FileSize})
		return d.Receiver.HandlePush(conn, dec, destPath, body.FileSize, body.SenderIP, body.SenderPort, self.LocalIP, self.Port)

	case protocol.FileTransferAccepted:
		body, err := protocol.DecodePeerEndpoint(msg.Data)
		if err != nil {
			return err
		}
		return d.Sender.HandleAccepted(body.SenderIP, body.SenderPort, d.Flags.OutboundStalled)

	case protocol.FileTransferRejected:
		d.Sender.HandleRejected()
		return nil

	case protocol.FileTransferStalled:
		transfer.HandleStalled(d.Flags)
		return nil

	case protocol.RetryOutboundFileTransfer:
		body, err := protocol.DecodeFolderRequest(msg.Data)
		if err != nil {
			return err
		}
		return d.Sender.Retry(body.SenderIP, body.SenderPort, self.LocalIP, self.Port, body.Folder)

	case protocol.FileListRequest:
		body, err := protocol.DecodeFolderRequest(msg.Data)
		if err != nil {
			return err
		}
		return d.Exchange.HandleFileListRequest(body.SenderIP, body.SenderPort, body.Folder)

	case protocol.FileListResponse:
		body, err := protocol.DecodeFileListResponse(msg.Data)
		if err != nil {
			return err
		}
		d.Meta.LastFileList = body.List
		return nil

	case protocol.NoFilesAvailableForDownload:
		d.Meta.NoFilesAvailable = true
		d.Log.Log(events.NoFilesAvailableForDownload, nil)
		return nil

	case protocol.RequestedFolderDoesNotExist:
		d.Meta.FolderDoesNotExist = true
		d.Log.Log(events.RequestedFolderDoesNotExist, nil)
		return nil

	case protocol.ServerInfoRequest:
		body, err := protocol.DecodePeerEndpoint(msg.Data)
		if err != nil {
			return err
		}
		if d.Peers != nil {
			d.Peers.Put(protocol.ServerInfo{SessionIP: body.SenderIP, Port: body.SenderPort})
		}
		return d.Exchange.HandleServerInfoRequest(body.SenderIP, body.SenderPort)

	case protocol.ServerInfoResponse:
		body, err := protocol.DecodeServerInfoResponse(msg.Data)
		if err != nil {
			return err
		}
		d.Meta.RemoteLocalIP = body.LocalIP
		d.Meta.RemotePublicIP = body.PublicIP
		d.Meta.RemoteTransferFolder = body.Folder
		if d.Peers != nil {
			d.Peers.Put(protocol.ServerInfo{
				SessionIP: body.LocalIP, LocalIP: body.LocalIP, PublicIP: body.PublicIP,
				Port: body.Port, TransferFolder: body.Folder,
			})
		}
		d.Log.Log(events.ServerInfoExchanged, nil)
		return nil

	case protocol.ShutdownServerCommand:
		body, err := protocol.DecodePeerEndpoint(msg.Data)
		if err != nil {
			return err
		}
		if body.SenderIP == self.SessionIP && body.SenderPort == self.Port {
			if d.Flags.RequestShutdown() {
				d.Log.Log(events.ShutdownInitiated, nil)
			}
		}
		return nil

	default:
		return fmt.Errorf("pump: %w", protocol.ErrUnknownType)
	}
}
