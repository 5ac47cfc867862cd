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

// Package transfer implements the file send pipeline (C6), file receive
// pipeline (C7) and the stall/retry control (C8) that ride on top of
// internal/netio and internal/protocol.
package transfer

import "errors"

var (
	// ErrRejectedByPeer names the remote's FileTransferRejected reply.
	// Sender.HandleRejected records that reply as an event and does not
	// return this error.
	ErrRejectedByPeer = errors.New("transfer: rejected by peer")
	// ErrStalledByPeer is returned from the send loop when the remote
	// signals FileTransferStalled mid-stream (spec §4.5 step 4).
	ErrStalledByPeer = errors.New("transfer: stalled by peer")
	// ErrStalled is returned from the receive loop when the local stall
	// monitor fires (spec §4.6 step 5 / §4.7).
	ErrStalled = errors.New("transfer: receive stalled")
	// ErrConfirmationMismatch is returned when the completion handshake
	// does not match the expected literal text (spec §6).
	ErrConfirmationMismatch = errors.New("transfer: unexpected confirmation text")
	// ErrNoOutgoingFile is returned by Retry when no remembered outgoing
	// file path exists to resend (spec §9 open question).
	ErrNoOutgoingFile = errors.New("transfer: no outgoing file to retry")
)

// Handshake is the literal unframed ASCII confirmation (spec §6 / GLOSSARY).
const Handshake = "handshake"
