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

// Package settings holds the non-interactive runtime configuration the
// core needs to boot (spec §6 Environment). Persisted/XML settings and the
// interactive terminal menu remain external collaborators per spec §1;
// this is only the minimal struct cmd/peerd's flag parser populates.
package settings

import "time"

// Runtime is populated by cmd/peerd from CLI flags, never from a
// persisted file.
type Runtime struct {
	ListenPort     uint32
	LocalCIDRHint  string
	TransferFolder string

	ConnectTimeout time.Duration
	ReceiveTimeout time.Duration
	SendTimeout    time.Duration
	StallTimeout   time.Duration

	BufferSize int

	// TransferUpdateInterval is the minimum fractional progress delta
	// (spec §4.6) between UpdateFileTransferProgress events. Default 0.0025.
	TransferUpdateInterval float64

	// SendRateBytesPerSec is not read anywhere: no cmd/peerd flag sets it
	// and no connection is wrapped with netio.WithSendRateLimit, so sends
	// are never rate limited.
	SendRateBytesPerSec int

	// ArchiveDBPath, when set, durably persists the request archive via
	// goleveldb (SPEC_FULL §4.3). Empty means in-memory only.
	ArchiveDBPath string

	// MetricsAddr, when set, serves Prometheus metrics + /healthz on this
	// address (SPEC_FULL §5). Empty disables the HTTP server.
	MetricsAddr string

	// SentryDSN, when set, reports fatal pump errors via raven-go
	// (SPEC_FULL §4.4). Empty means internal/errreport is a no-op.
	SentryDSN string
}

// Defaults returns a Runtime with spec.md §5's default timeouts (5000ms)
// and §4.6's default progress-update interval.
func Defaults() Runtime {
	return Runtime{
		ConnectTimeout:         5000 * time.Millisecond,
		ReceiveTimeout:         5000 * time.Millisecond,
		SendTimeout:            5000 * time.Millisecond,
		StallTimeout:           10 * time.Second,
		BufferSize:             4096,
		TransferUpdateInterval: 0.0025,
	}
}
