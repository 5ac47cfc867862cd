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

// Package support builds a support bundle: the current request archive
// (completed messages and their event logs), lz4-compressed for
// attaching to a bug report. It is a CLI subcommand over
// internal/queue.Archive, not wired into any protocol handler.
package support

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/klegy/asyncfileserver/internal/protocol"
)

// bundleRecord is the JSON shape of one archived message inside the
// bundle — timestamps and event logs only, never file payload bytes.
type bundleRecord struct {
	ID        uint32        `json:"id"`
	Type      string        `json:"type"`
	RemoteIP  string        `json:"remote_ip"`
	Timestamp string        `json:"timestamp"`
	Events    []eventRecord `json:"events"`
}

type eventRecord struct {
	Type   string         `json:"type"`
	Time   string         `json:"time"`
	Fields map[string]any `json:"fields,omitempty"`
}

// WriteBundle serializes archived as newline-delimited JSON records,
// compressed with lz4, to w.
func WriteBundle(w io.Writer, archived []*protocol.Message) error {
	lzw := lz4.NewWriter(w)
	defer lzw.Close()

	enc := json.NewEncoder(lzw)
	for _, msg := range archived {
		rec := bundleRecord{
			ID:        msg.ID,
			Type:      msg.Type.String(),
			RemoteIP:  msg.RemoteIP,
			Timestamp: msg.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		}
		for _, ev := range msg.EventLog {
			rec.Events = append(rec.Events, eventRecord{
				Type:   ev.Type.String(),
				Time:   ev.Time.Format("2006-01-02T15:04:05.000Z07:00"),
				Fields: ev.Fields,
			})
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("support: encode record %d: %w", msg.ID, err)
		}
	}
	return nil
}
