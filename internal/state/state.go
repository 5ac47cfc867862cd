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

// Package state holds the scratch fields and atomic flags that are shared
// across the single in-flight request's handlers (spec §3 ServerState,
// §5 Shared mutable state). The original implementation guards a pile of
// int flags with Interlocked.CompareExchange; here that collapses to a small
// struct of atomic.Bool, which is what spec §9's design notes ask for.
package state

import "sync/atomic"

// Flags is the set of cross-goroutine booleans the stall monitor, the
// active transfer loop and the pump all need to observe or set
// independently of one another.
type Flags struct {
	initialized           atomic.Bool
	listening             atomic.Bool
	idle                  atomic.Bool
	transferInProgress    atomic.Bool
	inboundStalled        atomic.Bool
	outboundStalled       atomic.Bool
	shutdownInitiated     atomic.Bool
	retryPreviousTransfer atomic.Bool
}

func NewFlags() *Flags {
	f := &Flags{}
	f.idle.Store(true)
	return f
}

func (f *Flags) Initialized() bool            { return f.initialized.Load() }
func (f *Flags) SetInitialized(v bool)        { f.initialized.Store(v) }
func (f *Flags) Listening() bool              { return f.listening.Load() }
func (f *Flags) SetListening(v bool)          { f.listening.Store(v) }
func (f *Flags) Idle() bool                   { return f.idle.Load() }
func (f *Flags) SetIdle(v bool)               { f.idle.Store(v) }
func (f *Flags) TransferInProgress() bool     { return f.transferInProgress.Load() }
func (f *Flags) SetTransferInProgress(v bool) { f.transferInProgress.Store(v) }
func (f *Flags) InboundStalled() bool         { return f.inboundStalled.Load() }
func (f *Flags) SetInboundStalled(v bool)     { f.inboundStalled.Store(v) }
func (f *Flags) OutboundStalled() bool        { return f.outboundStalled.Load() }
func (f *Flags) SetOutboundStalled(v bool)    { f.outboundStalled.Store(v) }
func (f *Flags) ShutdownInitiated() bool      { return f.shutdownInitiated.Load() }

// RequestShutdown is a compare-and-swap so only the first caller observes
// true — useful when both the pump and an explicit shutdown command race
// to initiate it.
func (f *Flags) RequestShutdown() (first bool) {
	return f.shutdownInitiated.CompareAndSwap(false, true)
}

func (f *Flags) RetryPreviousTransfer() bool     { return f.retryPreviousTransfer.Load() }
func (f *Flags) SetRetryPreviousTransfer(v bool) { f.retryPreviousTransfer.Store(v) }

// Scratch holds the working fields of the active transfer (spec §3
// ServerState). It is reset at the start of each outbound/inbound
// transfer; OutgoingFilePath deliberately survives a rejection so a
// RetryOutboundFileTransfer can still find it (spec §9 open question).
type Scratch struct {
	IncomingFilePath  string
	IncomingFileSize  int64
	OutgoingFilePath  string
	OutgoingFileSize  int64
	LastBytesReceived int64
	LastBytesSent     int64
}

// ResetIncoming clears the incoming-transfer scratch fields at the start
// of a new inbound transfer.
func (s *Scratch) ResetIncoming() {
	s.IncomingFilePath = ""
	s.IncomingFileSize = 0
	s.LastBytesReceived = 0
}

// ResetOutgoing clears the outgoing-transfer scratch fields at the start
// of a new outbound transfer. It does NOT clear OutgoingFilePath/Size on
// rejection — only a new outbound request supersedes them (spec §9).
func (s *Scratch) ResetOutgoing(path string, size int64) {
	s.OutgoingFilePath = path
	s.OutgoingFileSize = size
	s.LastBytesSent = 0
}

// Metadata exchange response scratch (C9): this peer's own pending
// requests for a remote's server-info or file listing land here, read by
// whatever caller is blocked awaiting them (spec §4.8, §6 end-to-end
// scenario 4).
type MetadataScratch struct {
	RemoteLocalIP        string
	RemotePublicIP       string
	RemoteTransferFolder string

	LastFileList       string
	NoFilesAvailable   bool
	FolderDoesNotExist bool
}
