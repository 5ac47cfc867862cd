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

package netio

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"syscall"
)

func portString(p uint32) string { return strconv.FormatUint(uint64(p), 10) }

func contextBackground() context.Context { return context.Background() }

// classifyIOErr maps a raw net.Conn error into the small typed set callers
// compare against with errors.Is, preserving the original error for logs.
func classifyIOErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return ErrPeerClosed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return ErrConnectionReset
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnectionRefused
	}
	return &IOError{Op: "io", Err: err}
}

func classifyDialErr(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnectionRefused
	}
	return &IOError{Op: "dial", Err: err}
}
