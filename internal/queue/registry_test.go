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

package queue_test

import (
	"errors"
	"testing"

	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/protocol"
	"github.com/klegy/asyncfileserver/internal/queue"
	"github.com/klegy/asyncfileserver/internal/state"
)

func newRegistry() *queue.Registry {
	return queue.NewRegistry(state.NewFlags(), events.NewLogger(), nil)
}

func TestEnqueueAssignsIncreasingIDs(t *testing.T) {
	r := newRegistry()

	id1 := r.Enqueue(&protocol.Message{Type: protocol.TextMessage})
	id2 := r.Enqueue(&protocol.Message{Type: protocol.TextMessage})
	id3 := r.Enqueue(&protocol.Message{Type: protocol.TextMessage})

	if id1 != 1 || id2 != 2 || id3 != 3 {
		t.Fatalf("expected ids 1,2,3; got %d,%d,%d", id1, id2, id3)
	}
	if r.QueueLen() != 3 {
		t.Fatalf("expected queue length 3, got %d", r.QueueLen())
	}
}

func TestProcessNextMovesToArchive(t *testing.T) {
	r := newRegistry()
	id := r.Enqueue(&protocol.Message{Type: protocol.TextMessage})

	ok, err := r.ProcessNext(func(m *protocol.Message) error { return nil })
	if !ok || err != nil {
		t.Fatalf("unexpected ok=%v err=%v", ok, err)
	}
	if r.QueueLen() != 0 {
		t.Fatalf("expected empty queue, got %d", r.QueueLen())
	}
	if !r.InArchive(id) {
		t.Fatalf("expected message %d in archive", id)
	}
	if r.InQueue(id) {
		t.Fatalf("message %d must not be in both queue and archive", id)
	}
}

func TestProcessNextEmptyQueue(t *testing.T) {
	r := newRegistry()
	ok, err := r.ProcessNext(func(m *protocol.Message) error { return nil })
	if ok || err != nil {
		t.Fatalf("expected ok=false err=nil on empty queue, got ok=%v err=%v", ok, err)
	}
}

func TestProcessByIDInvalid(t *testing.T) {
	r := newRegistry()
	err := r.ProcessByID(42, func(m *protocol.Message) error { return nil })
	if !errors.Is(err, queue.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestProcessByIDAlreadyProcessed(t *testing.T) {
	r := newRegistry()
	id := r.Enqueue(&protocol.Message{Type: protocol.TextMessage})
	if _, err := r.ProcessNext(func(m *protocol.Message) error { return nil }); err != nil {
		t.Fatal(err)
	}

	err := r.ProcessByID(id, func(m *protocol.Message) error { return nil })
	if !errors.Is(err, queue.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestProcessByIDBusy(t *testing.T) {
	r := newRegistry()
	id1 := r.Enqueue(&protocol.Message{Type: protocol.TextMessage})
	r.Enqueue(&protocol.Message{Type: protocol.TextMessage})

	started := make(chan struct{})
	release := make(chan struct{})
	go r.ProcessByID(id1, func(m *protocol.Message) error {
		close(started)
		<-release
		return nil
	})
	<-started

	err := r.ProcessByID(id1, func(m *protocol.Message) error { return nil })
	if !errors.Is(err, queue.ErrBusy) {
		t.Fatalf("expected ErrBusy while a request is active, got %v", err)
	}
	close(release)
}

func TestLogTagsActiveRequestEventLog(t *testing.T) {
	r := newRegistry()
	msg := &protocol.Message{Type: protocol.OutboundFileTransferRequest}
	id := r.Enqueue(msg)

	var seen int
	_, err := r.ProcessNext(func(m *protocol.Message) error {
		r.Log(events.FileTransferAccepted, map[string]any{"id": id})
		seen = len(m.EventLog)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if seen != 1 {
		t.Fatalf("expected 1 event tagged onto the active message's log, got %d", seen)
	}
	archived, ok := r.Archived(id)
	if !ok {
		t.Fatalf("message %d should be archived", id)
	}
	if len(archived.EventLog) != 1 || archived.EventLog[0].Type != events.FileTransferAccepted {
		t.Fatalf("archived message missing its tagged event log: %+v", archived.EventLog)
	}
}

func TestArchiveSnapshotPreservesOrder(t *testing.T) {
	r := newRegistry()
	var ids []uint32
	for i := 0; i < 3; i++ {
		ids = append(ids, r.Enqueue(&protocol.Message{Type: protocol.TextMessage}))
	}
	for range ids {
		if _, err := r.ProcessNext(func(m *protocol.Message) error { return nil }); err != nil {
			t.Fatal(err)
		}
	}
	snap := r.ArchiveSnapshot()
	if len(snap) != len(ids) {
		t.Fatalf("expected %d archived messages, got %d", len(ids), len(snap))
	}
	for i, id := range ids {
		if snap[i].ID != id {
			t.Fatalf("expected archive order %v, got id %d at index %d", ids, snap[i].ID, i)
		}
	}
}
