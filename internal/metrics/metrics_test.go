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

package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/metrics"
)

func TestObserveUpdatesCounters(t *testing.T) {
	logger := events.NewLogger()
	sub := metrics.Observe(logger)
	defer sub.Close()

	beforeReceived := testutil.ToFloat64(metrics.BytesReceivedTotal)
	beforeStalls := testutil.ToFloat64(metrics.StallsTotal)

	logger.Log(events.ReceiveFileBytesComplete, 1, map[string]any{"bytes_received": int64(42)})
	logger.Log(events.FileTransferStalledEvent, 1, nil)

	waitFor(t, func() bool {
		return testutil.ToFloat64(metrics.BytesReceivedTotal) == beforeReceived+42 &&
			testutil.ToFloat64(metrics.StallsTotal) == beforeStalls+1
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
