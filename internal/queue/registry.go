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

// Package queue is the request queue and archive (C3): an append-only
// sequence of received messages awaiting processing, and the archive of
// messages whose handler has returned, each carrying its own event log
// slice.
package queue

import (
	"time"

	"github.com/klegy/asyncfileserver/internal/events"
	"github.com/klegy/asyncfileserver/internal/protocol"
	"github.com/klegy/asyncfileserver/internal/state"
	"github.com/klegy/asyncfileserver/internal/syncutil"
)

// Registry owns the Queue/Archive pair plus the bookkeeping spec §4.3
// describes: id assignment, the idle flag, and tagging events with the
// currently active request.
type Registry struct {
	mu           syncutil.Mutex
	queue        []*protocol.Message
	archive      map[uint32]*protocol.Message
	archiveOrder []uint32
	nextID       uint32
	active       *protocol.Message

	flags  *state.Flags
	events *events.Logger
	store  ArchiveStore
}

// ArchiveStore persists archived messages beyond process lifetime. It is
// optional (spec §6: "no persisted state layout required in the core");
// NewRegistry with a nil store keeps everything in memory, which is what
// the spec's invariants are tested against.
type ArchiveStore interface {
	Save(msg *protocol.Message) error
	Close() error
}

func NewRegistry(flags *state.Flags, evLogger *events.Logger, store ArchiveStore) *Registry {
	return &Registry{
		mu:      syncutil.NewMutex(),
		archive: make(map[uint32]*protocol.Message),
		flags:   flags,
		events:  evLogger,
		store:   store,
	}
}

// Enqueue appends msg to the queue, assigning its id. IDs start at 1 and
// strictly increase (spec §3 invariant).
func (r *Registry) Enqueue(msg *protocol.Message) uint32 {
	r.mu.Lock()
	r.nextID++
	msg.ID = r.nextID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	r.queue = append(r.queue, msg)
	r.mu.Unlock()

	r.events.Log(events.RequestEnqueued, msg.ID, map[string]any{"type": msg.Type.String()})
	return msg.ID
}

// ProcessNext pops the queue head and runs handle against it, tagging any
// event the handle raises via Log as belonging to this request, then
// moves the message to the archive. It reports ok=false when the queue is
// empty.
func (r *Registry) ProcessNext(handle func(*protocol.Message) error) (ok bool, err error) {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return false, nil
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	r.active = msg
	r.mu.Unlock()

	r.flags.SetIdle(false)
	r.events.Log(events.RequestDispatched, msg.ID, nil)
	err = handle(msg)
	r.flags.SetIdle(true)

	r.archiveMessage(msg)
	return true, err
}

// ProcessByID is the explicit variant (spec §4.3): it refuses if the
// registry is not idle, if id is already archived, or if id is unknown to
// either the queue or the archive.
func (r *Registry) ProcessByID(id uint32, handle func(*protocol.Message) error) error {
	if !r.flags.Idle() {
		return ErrBusy
	}

	r.mu.Lock()
	if _, ok := r.archive[id]; ok {
		r.mu.Unlock()
		return ErrAlreadyProcessed
	}
	idx := -1
	for i, m := range r.queue {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return ErrInvalidID
	}
	msg := r.queue[idx]
	r.queue = append(r.queue[:idx], r.queue[idx+1:]...)
	r.active = msg
	r.mu.Unlock()

	r.flags.SetIdle(false)
	r.events.Log(events.RequestDispatched, msg.ID, nil)
	err := handle(msg)
	r.flags.SetIdle(true)

	r.archiveMessage(msg)
	return err
}

func (r *Registry) archiveMessage(msg *protocol.Message) {
	r.mu.Lock()
	r.archive[msg.ID] = msg
	r.archiveOrder = append(r.archiveOrder, msg.ID)
	r.active = nil
	r.mu.Unlock()

	r.events.Log(events.RequestArchived, msg.ID, nil)
	if r.store != nil {
		r.store.Save(msg)
	}
}

// Log records an event and, if a request is currently active, appends it
// to that request's own event log — this is how a handler's events end up
// sliced per-request (spec §3 Message.event_log).
func (r *Registry) Log(t events.EventType, fields map[string]any) events.Event {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	id := uint32(0)
	if active != nil {
		id = active.ID
	}
	ev := r.events.Log(t, id, fields)
	if active != nil {
		r.mu.Lock()
		active.EventLog = append(active.EventLog, ev)
		r.mu.Unlock()
	}
	return ev
}

// QueueLen and ArchiveLen support the invariant tests (Queue ∩ Archive = ∅
// follows from ids only ever living in one of the two slices/maps).
func (r *Registry) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Registry) ArchiveLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.archive)
}

func (r *Registry) InQueue(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.queue {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (r *Registry) InArchive(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.archive[id]
	return ok
}

func (r *Registry) Archived(id uint32) (*protocol.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.archive[id]
	return m, ok
}

// ArchiveSnapshot returns the archived messages in archival order, for
// internal/support's diagnostics export.
func (r *Registry) ArchiveSnapshot() []*protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*protocol.Message, 0, len(r.archiveOrder))
	for _, id := range r.archiveOrder {
		out = append(out, r.archive[id])
	}
	return out
}
