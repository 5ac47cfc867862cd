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

package transfer

import (
	"context"
	"time"

	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/state"
)

// Watchdog is the background half of stall & retry control (C8): it runs
// as its own thejerf/suture service alongside the pump (SPEC_FULL §4.4)
// and periodically republishes the in-flight transfer's progress as an
// event, independent of whatever connection is actively streaming bytes.
// The authoritative no-progress detection lives in Receiver.HandlePush's
// own poll loop (it alone knows which peer to notify); Watchdog exists so
// event subscribers get a steady heartbeat even during a long receive.
type Watchdog struct {
	Flags    *state.Flags
	Scratch  *state.Scratch
	Log      Logger
	Interval time.Duration
}

func (w *Watchdog) Serve(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if !w.Flags.TransferInProgress() {
				continue
			}
			w.Log.Log(events.UpdateFileTransferProgress, map[string]any{
				"bytes_received": w.Scratch.LastBytesReceived,
				"bytes_sent":     w.Scratch.LastBytesSent,
				"heartbeat":      true,
			})
		}
	}
}
