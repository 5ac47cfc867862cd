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

// Package errreport is the sink for the two fatal error classes spec §7
// names (listener bind failure, accept-loop I/O error): reported via
// getsentry/raven-go when a DSN is configured, a no-op otherwise.
// Per-request handler failures are never reported here — spec §7 keeps
// those non-fatal and logged through the event stream instead.
package errreport

import (
	"github.com/getsentry/raven-go"
)

// Sink reports fatal pump errors to an external crash-reporting service.
type Sink struct {
	client *raven.Client
}

// New returns a no-op Sink when dsn is empty, so callers never need to
// branch on whether reporting is configured.
func New(dsn string) (*Sink, error) {
	if dsn == "" {
		return &Sink{}, nil
	}
	client, err := raven.New(dsn)
	if err != nil {
		return nil, err
	}
	return &Sink{client: client}, nil
}

// Report sends err as a fatal-pump-error event. It never blocks the
// caller beyond raven's own async queuing.
func (s *Sink) Report(err error) {
	if s.client == nil || err == nil {
		return
	}
	s.client.CaptureError(err, map[string]string{"component": "pump"})
}
