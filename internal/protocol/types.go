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

// Package protocol implements the length-prefixed wire format shared by two
// peers of the async file server: message framing, the typed payload
// codecs, and the data model (ServerInfo, Message) that rides on top of it.
package protocol

import (
	"fmt"
	"time"

	"github.com/klegy/asyncfileserver/internal/events"
)

// MessageType identifies the payload layout that follows the frame's
// length prefix. Wire values are part of the protocol and must never be
// renumbered once a peer depends on them.
type MessageType uint32

const (
	TextMessage MessageType = iota
	InboundFileTransferRequest
	OutboundFileTransferRequest
	FileTransferAccepted
	FileTransferRejected
	FileTransferStalled
	RetryOutboundFileTransfer
	FileListRequest
	FileListResponse
	NoFilesAvailableForDownload
	RequestedFolderDoesNotExist
	ServerInfoRequest
	ServerInfoResponse
	ShutdownServerCommand

	messageTypeCount
)

func (t MessageType) Valid() bool {
	return t < messageTypeCount
}

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "TextMessage"
	case InboundFileTransferRequest:
		return "InboundFileTransferRequest"
	case OutboundFileTransferRequest:
		return "OutboundFileTransferRequest"
	case FileTransferAccepted:
		return "FileTransferAccepted"
	case FileTransferRejected:
		return "FileTransferRejected"
	case FileTransferStalled:
		return "FileTransferStalled"
	case RetryOutboundFileTransfer:
		return "RetryOutboundFileTransfer"
	case FileListRequest:
		return "FileListRequest"
	case FileListResponse:
		return "FileListResponse"
	case NoFilesAvailableForDownload:
		return "NoFilesAvailableForDownload"
	case RequestedFolderDoesNotExist:
		return "RequestedFolderDoesNotExist"
	case ServerInfoRequest:
		return "ServerInfoRequest"
	case ServerInfoResponse:
		return "ServerInfoResponse"
	case ShutdownServerCommand:
		return "ShutdownServerCommand"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

// mustProcessImmediately reports whether the pump (C4) must dispatch this
// type inline rather than deferring it to the request queue. See spec §4.4.
func (t MessageType) mustProcessImmediately() bool {
	switch t {
	case TextMessage, FileListRequest:
		return false
	default:
		return true
	}
}

// MustProcessImmediately is the exported form used by the dispatcher (C5).
func MustProcessImmediately(t MessageType) bool { return t.mustProcessImmediately() }

// ServerInfo identifies a peer. Two ServerInfo values are considered the
// same peer when their (SessionIP, Port) pair matches — see spec §3.
type ServerInfo struct {
	Name           string
	SessionIP      string
	LocalIP        string
	PublicIP       string
	Port           uint32
	TransferFolder string
}

// Equal implements the (session_ip, port) equality rule from spec §3.
func (s ServerInfo) Equal(o ServerInfo) bool {
	return s.SessionIP == o.SessionIP && s.Port == o.Port
}

// Message is a single framed request as received by the listener. ID is
// assigned by the queue on receipt and is strictly increasing, starting at
// 1 (spec §3 invariants).
type Message struct {
	ID        uint32
	Type      MessageType
	Data      []byte
	RemoteIP  string
	Timestamp time.Time
	EventLog  []events.Event
}
