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

package protocol

import (
	"time"

	"github.com/klegy/asyncfileserver/internal/netio"
)

// frame wraps a type code and its body in the on-wire layout: u32 length
// (covering type+body) followed by u32 type followed by body.
func frame(t MessageType, body []byte) []byte {
	out := make([]byte, 0, 8+len(body))
	out = appendUint32(out, uint32(4+len(body)))
	out = appendUint32(out, uint32(t))
	out = append(out, body...)
	return out
}

func EncodeText(senderIP string, senderPort uint32, text string) []byte {
	var body []byte
	body = appendStr16(body, senderIP)
	body = appendUint32(body, senderPort)
	body = appendStr16(body, text)
	return frame(TextMessage, body)
}

func EncodeInboundFileTransferRequest(localPath string, fileSize int64, senderIP string, senderPort uint32) []byte {
	var body []byte
	body = appendStr16(body, localPath)
	body = appendInt64(body, fileSize)
	body = appendStr16(body, senderIP)
	body = appendUint32(body, senderPort)
	return frame(InboundFileTransferRequest, body)
}

func EncodeOutboundFileTransferRequest(filePath string, fileSize int64, senderIP string, senderPort uint32, remoteFolder string) []byte {
	var body []byte
	body = appendStr16(body, filePath)
	body = appendInt64(body, fileSize)
	body = appendStr16(body, senderIP)
	body = appendUint32(body, senderPort)
	body = appendStr16(body, remoteFolder)
	return frame(OutboundFileTransferRequest, body)
}

// EncodePeerEndpoint builds any of the PeerEndpointBody-shaped messages:
// FileTransferAccepted, FileTransferRejected, FileTransferStalled,
// ServerInfoRequest, ShutdownServerCommand, NoFilesAvailableForDownload,
// RequestedFolderDoesNotExist.
func EncodePeerEndpoint(t MessageType, senderIP string, senderPort uint32) []byte {
	var body []byte
	body = appendStr16(body, senderIP)
	body = appendUint32(body, senderPort)
	return frame(t, body)
}

// EncodeFolderRequest builds RetryOutboundFileTransfer or FileListRequest.
func EncodeFolderRequest(t MessageType, senderIP string, senderPort uint32, folder string) []byte {
	var body []byte
	body = appendStr16(body, senderIP)
	body = appendUint32(body, senderPort)
	body = appendStr16(body, folder)
	return frame(t, body)
}

func EncodeFileListResponse(senderIP string, senderPort uint32, folder, list string) []byte {
	var body []byte
	body = appendStr16(body, senderIP)
	body = appendUint32(body, senderPort)
	body = appendStr16(body, folder)
	body = appendStr16(body, list)
	return frame(FileListResponse, body)
}

func EncodeServerInfoResponse(localIP string, port uint32, publicIP, folder string) []byte {
	var body []byte
	body = appendStr16(body, localIP)
	body = appendUint32(body, port)
	body = appendStr16(body, publicIP)
	body = appendStr16(body, folder)
	return frame(ServerInfoResponse, body)
}

func DecodeText(body []byte) (TextBody, error) {
	r := reader{b: body}
	var m TextBody
	var err error
	if m.SenderIP, err = r.str16(); err != nil {
		return m, err
	}
	if m.SenderPort, err = r.uint32(); err != nil {
		return m, err
	}
	if m.Text, err = r.str16(); err != nil {
		return m, err
	}
	return m, nil
}

func DecodeInboundFileTransferRequest(body []byte) (InboundFileTransferRequestBody, error) {
	r := reader{b: body}
	var m InboundFileTransferRequestBody
	var err error
	if m.LocalPath, err = r.str16(); err != nil {
		return m, err
	}
	if m.FileSize, err = r.int64(); err != nil {
		return m, err
	}
	if m.SenderIP, err = r.str16(); err != nil {
		return m, err
	}
	if m.SenderPort, err = r.uint32(); err != nil {
		return m, err
	}
	return m, nil
}

func DecodeOutboundFileTransferRequest(body []byte) (OutboundFileTransferRequestBody, error) {
	r := reader{b: body}
	var m OutboundFileTransferRequestBody
	var err error
	if m.FilePath, err = r.str16(); err != nil {
		return m, err
	}
	if m.FileSize, err = r.int64(); err != nil {
		return m, err
	}
	if m.SenderIP, err = r.str16(); err != nil {
		return m, err
	}
	if m.SenderPort, err = r.uint32(); err != nil {
		return m, err
	}
	if m.RemoteFolder, err = r.str16(); err != nil {
		return m, err
	}
	return m, nil
}

func DecodePeerEndpoint(body []byte) (PeerEndpointBody, error) {
	r := reader{b: body}
	var m PeerEndpointBody
	var err error
	if m.SenderIP, err = r.str16(); err != nil {
		return m, err
	}
	if m.SenderPort, err = r.uint32(); err != nil {
		return m, err
	}
	return m, nil
}

func DecodeFolderRequest(body []byte) (FolderRequestBody, error) {
	r := reader{b: body}
	var m FolderRequestBody
	var err error
	if m.SenderIP, err = r.str16(); err != nil {
		return m, err
	}
	if m.SenderPort, err = r.uint32(); err != nil {
		return m, err
	}
	if m.Folder, err = r.str16(); err != nil {
		return m, err
	}
	return m, nil
}

func DecodeFileListResponse(body []byte) (FileListResponseBody, error) {
	r := reader{b: body}
	var m FileListResponseBody
	var err error
	if m.SenderIP, err = r.str16(); err != nil {
		return m, err
	}
	if m.SenderPort, err = r.uint32(); err != nil {
		return m, err
	}
	if m.Folder, err = r.str16(); err != nil {
		return m, err
	}
	if m.List, err = r.str16(); err != nil {
		return m, err
	}
	return m, nil
}

func DecodeServerInfoResponse(body []byte) (ServerInfoResponseBody, error) {
	r := reader{b: body}
	var m ServerInfoResponseBody
	var err error
	if m.LocalIP, err = r.str16(); err != nil {
		return m, err
	}
	if m.Port, err = r.uint32(); err != nil {
		return m, err
	}
	if m.PublicIP, err = r.str16(); err != nil {
		return m, err
	}
	if m.Folder, err = r.str16(); err != nil {
		return m, err
	}
	return m, nil
}

// Decode dispatches to the right decoder by type, mainly for round-trip
// tests and generic logging; handlers normally call the typed Decode*
// function they already know they need.
func Decode(t MessageType, body []byte) (any, error) {
	switch t {
	case TextMessage:
		return DecodeText(body)
	case InboundFileTransferRequest:
		return DecodeInboundFileTransferRequest(body)
	case OutboundFileTransferRequest:
		return DecodeOutboundFileTransferRequest(body)
	case FileTransferAccepted, FileTransferRejected, FileTransferStalled,
		ServerInfoRequest, ShutdownServerCommand,
		NoFilesAvailableForDownload, RequestedFolderDoesNotExist:
		return DecodePeerEndpoint(body)
	case RetryOutboundFileTransfer, FileListRequest:
		return DecodeFolderRequest(body)
	case FileListResponse:
		return DecodeFileListResponse(body)
	case ServerInfoResponse:
		return DecodeServerInfoResponse(body)
	default:
		return nil, ErrUnknownType
	}
}

// Decoder owns the "unread bytes" carry buffer (C1). A single Decoder must
// be used for the lifetime of one accepted connection: bytes that overran
// one frame's boundary belong to the next frame, or — immediately after an
// InboundFileTransferRequest's accept response goes out — to the start of
// the raw file-byte stream (spec §4.5 step 3 / §4.6 step 4).
type Decoder struct {
	unread  []byte
	bufSize int
}

func NewDecoder(bufSize int) *Decoder {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &Decoder{bufSize: bufSize}
}

// UnreadLen reports the current carry-buffer size. Spec invariant:
// UnreadLen() < bufSize at every observable point.
func (d *Decoder) UnreadLen() int { return len(d.unread) }

// DrainUnread removes and returns everything currently buffered, for the
// file receive pipeline to consume before issuing any new socket read.
func (d *Decoder) DrainUnread() []byte {
	b := d.unread
	d.unread = nil
	return b
}

// fill drains the carry buffer first, then performs however many raw
// Receive calls are needed to accumulate exactly `need` bytes, preserving
// any overrun into the carry buffer for the next caller. This single
// routine implements the length-prefix read and the payload read
// identically, which is what keeps the carry-buffer invariant simple.
func (d *Decoder) fill(r netio.Conn, need int, deadline time.Time) ([]byte, error) {
	out := make([]byte, 0, need)
	if len(d.unread) > 0 {
		take := len(d.unread)
		if take > need {
			take = need
		}
		out = append(out, d.unread[:take]...)
		d.unread = d.unread[take:]
	}
	tmp := make([]byte, d.bufSize)
	for len(out) < need {
		n, err := r.Receive(tmp, deadline)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, netio.ErrPeerClosed
		}
		remaining := need - len(out)
		if n > remaining {
			out = append(out, tmp[:remaining]...)
			d.unread = append(d.unread, tmp[remaining:n]...)
		} else {
			out = append(out, tmp[:n]...)
		}
	}
	return out, nil
}

// ReadFrame decodes exactly one framed message off r, returning its type
// and raw body (payload minus the 4-byte type code).
func (d *Decoder) ReadFrame(r netio.Conn, deadline time.Time) (MessageType, []byte, error) {
	lenBytes, err := d.fill(r, 4, deadline)
	if err != nil {
		if err == netio.ErrPeerClosed && len(lenBytes) == 0 {
			return 0, nil, ErrTruncatedLength
		}
		return 0, nil, err
	}
	length := uint32(lenBytes[0]) | uint32(lenBytes[1])<<8 | uint32(lenBytes[2])<<16 | uint32(lenBytes[3])<<24
	if length < 4 {
		return 0, nil, ErrTruncatedPayload
	}
	payload, err := d.fill(r, int(length), deadline)
	if err != nil {
		if err == netio.ErrPeerClosed {
			return 0, nil, ErrTruncatedPayload
		}
		return 0, nil, err
	}
	typeCode := uint32(payload[0]) | uint32(payload[1])<<8 | uint32(payload[2])<<16 | uint32(payload[3])<<24
	t := MessageType(typeCode)
	if !t.Valid() {
		return 0, nil, ErrUnknownType
	}
	return t, payload[4:], nil
}
