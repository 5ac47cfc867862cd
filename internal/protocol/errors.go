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

import "errors"

// Failure modes from spec §4.1.
var (
	ErrTruncatedLength  = errors.New("protocol: truncated length prefix")
	ErrTruncatedPayload = errors.New("protocol: truncated payload")
	ErrUnknownType      = errors.New("protocol: unknown message type")
	ErrShortField       = errors.New("protocol: field runs past end of payload")
)
