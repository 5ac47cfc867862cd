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

import "encoding/binary"

// Body layouts per spec §6. All integers little-endian; strings are str16
// (u32 byte length || utf8 bytes, no padding).

type TextBody struct {
	SenderIP   string
	SenderPort uint32
	Text       string
}

type InboundFileTransferRequestBody struct {
	LocalPath  string
	FileSize   int64
	SenderIP   string
	SenderPort uint32
}

type OutboundFileTransferRequestBody struct {
	FilePath     string
	FileSize     int64
	SenderIP     string
	SenderPort   uint32
	RemoteFolder string
}

// PeerEndpointBody is shared by FileTransferAccepted, FileTransferRejected,
// FileTransferStalled, ServerInfoRequest, ShutdownServerCommand,
// NoFilesAvailableForDownload and RequestedFolderDoesNotExist — they all
// carry nothing but the sender's (ip, port).
type PeerEndpointBody struct {
	SenderIP   string
	SenderPort uint32
}

// FolderRequestBody is shared by RetryOutboundFileTransfer and
// FileListRequest.
type FolderRequestBody struct {
	SenderIP   string
	SenderPort uint32
	Folder     string
}

type FileListResponseBody struct {
	SenderIP   string
	SenderPort uint32
	Folder     string
	List       string
}

type ServerInfoResponseBody struct {
	LocalIP  string
	Port     uint32
	PublicIP string
	Folder   string
}

// --- primitive encode helpers -------------------------------------------------

func putUint32(dst []byte, v uint32) { binary.LittleEndian.PutUint32(dst, v) }
func putInt64(dst []byte, v int64)   { binary.LittleEndian.PutUint64(dst, uint64(v)) }

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	putUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendInt64(b []byte, v int64) []byte {
	var tmp [8]byte
	putInt64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendStr16(b []byte, s string) []byte {
	b = appendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// --- primitive decode helpers --------------------------------------------------

type reader struct {
	b   []byte
	off int
}

func (r *reader) uint32() (uint32, error) {
	if len(r.b)-r.off < 4 {
		return 0, ErrShortField
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) int64() (int64, error) {
	if len(r.b)-r.off < 8 {
		return 0, ErrShortField
	}
	v := int64(binary.LittleEndian.Uint64(r.b[r.off:]))
	r.off += 8
	return v, nil
}

func (r *reader) str16() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	if len(r.b)-r.off < int(n) {
		return "", ErrShortField
	}
	s := string(r.b[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *reader) done() bool { return r.off >= len(r.b) }
