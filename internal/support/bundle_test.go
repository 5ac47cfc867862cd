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

package support_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/protocol"
	"github.com/klegy/asyncfileserver/internal/support"
)

func TestWriteBundleRoundTrips(t *testing.T) {
	archived := []*protocol.Message{
		{
			ID:        1,
			Type:      protocol.TextMessage,
			RemoteIP:  "127.0.0.1",
			Timestamp: time.Unix(0, 0).UTC(),
			EventLog: []events.Event{
				{Type: events.RequestReceived, Time: time.Unix(0, 0).UTC(), Fields: map[string]any{"text": "hi"}},
			},
		},
		{
			ID:        2,
			Type:      protocol.InboundFileTransferRequest,
			RemoteIP:  "10.0.0.5",
			Timestamp: time.Unix(1, 0).UTC(),
		},
	}

	var buf bytes.Buffer
	if err := support.WriteBundle(&buf, archived); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	lzr := lz4.NewReader(&buf)
	scanner := bufio.NewScanner(lzr)

	var records []map[string]any
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal record: %v", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["id"].(float64) != 1 || records[0]["type"].(string) != "TextMessage" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	evs, ok := records[0]["events"].([]any)
	if !ok || len(evs) != 1 {
		t.Fatalf("expected 1 event on first record, got %+v", records[0]["events"])
	}
	if records[1]["id"].(float64) != 2 {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
	if _, hasPayload := records[1]["data"]; hasPayload {
		t.Fatal("bundle must never carry raw message payload bytes")
	}
}
