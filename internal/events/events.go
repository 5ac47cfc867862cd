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

// Package events provides the event subscription and polling functionality
// used by every handler in the request-processing engine to report what it
// did, both to the active request's own log (internal/queue) and to any
// external observer subscribed on the shared Logger.
package events

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// EventType is a bitmask so a Subscription can filter on any combination.
type EventType uint64

const (
	RequestReceived EventType = 1 << iota
	RequestEnqueued
	RequestDispatched
	RequestArchived
	ReceivedTextMessage
	ErrorOccurred
	OutboundFileTransferRequested
	InboundFileTransferRequested
	FileTransferAccepted
	ClientRejectedFileTransfer
	FileTransferRejectedLocally
	FileTransferStalledEvent
	OutboundTransferStalled
	UpdateFileTransferProgress
	ReceivedFileBytesFromSocket
	ReceiveFileBytesComplete
	SendFileBytesComplete
	RetryOutboundFileTransfer
	NoFilesAvailableForDownload
	RequestedFolderDoesNotExist
	ServerInfoExchanged
	ShutdownInitiated

	allEventsSentinel
	AllEvents = allEventsSentinel - 1
)

func (t EventType) String() string {
	switch t {
	case RequestReceived:
		return "RequestReceived"
	case RequestEnqueued:
		return "RequestEnqueued"
	case RequestDispatched:
		return "RequestDispatched"
	case RequestArchived:
		return "RequestArchived"
	case ReceivedTextMessage:
		return "ReceivedTextMessage"
	case ErrorOccurred:
		return "ErrorOccurred"
	case OutboundFileTransferRequested:
		return "OutboundFileTransferRequested"
	case InboundFileTransferRequested:
		return "InboundFileTransferRequested"
	case FileTransferAccepted:
		return "FileTransferAccepted"
	case ClientRejectedFileTransfer:
		return "ClientRejectedFileTransfer"
	case FileTransferRejectedLocally:
		return "FileTransferRejectedLocally"
	case FileTransferStalledEvent:
		return "FileTransferStalled"
	case OutboundTransferStalled:
		return "OutboundTransferStalled"
	case UpdateFileTransferProgress:
		return "UpdateFileTransferProgress"
	case ReceivedFileBytesFromSocket:
		return "ReceivedFileBytesFromSocket"
	case ReceiveFileBytesComplete:
		return "ReceiveFileBytesComplete"
	case SendFileBytesComplete:
		return "SendFileBytesComplete"
	case RetryOutboundFileTransfer:
		return "RetryOutboundFileTransfer"
	case NoFilesAvailableForDownload:
		return "NoFilesAvailableForDownload"
	case RequestedFolderDoesNotExist:
		return "RequestedFolderDoesNotExist"
	case ServerInfoExchanged:
		return "ServerInfoExchanged"
	case ShutdownInitiated:
		return "ShutdownInitiated"
	default:
		return "Unknown"
	}
}

const subscriptionBuffer = 64

// Event is a tagged record with a sparse bag of fields — only the keys a
// given EventType actually uses are populated. RequestID ties the event to
// the Message it was raised for (0 for events with no associated request).
type Event struct {
	ID        int64
	Time      time.Time
	Type      EventType
	RequestID uint32
	Fields    map[string]any
}

var (
	ErrTimeout = errors.New("events: poll timeout")
	ErrClosed  = errors.New("events: subscription closed")
)

// Logger fans a stream of Events out to any number of Subscriptions. The
// subscriber registry is an xsync.MapOf rather than a mutex-guarded map:
// Log runs on the pump goroutine, Subscribe/Unsubscribe can be called from
// a diagnostics HTTP handler, and the stall monitor reads an independent
// timer — all three need lock-free, cross-goroutine-visible access to the
// same registry.
type Logger struct {
	subs   *xsync.MapOf[int64, *Subscription]
	nextID atomic.Int64
}

func NewLogger() *Logger {
	return &Logger{
		subs: xsync.NewMapOf[int64, *Subscription](),
	}
}

// Default is the process-wide logger handlers attach to unless a caller
// threads its own Logger through explicitly.
var Default = NewLogger()

func (l *Logger) Log(t EventType, requestID uint32, fields map[string]any) Event {
	e := Event{
		ID:        l.nextID.Add(1),
		Time:      time.Now(),
		Type:      t,
		RequestID: requestID,
		Fields:    fields,
	}
	l.subs.Range(func(_ int64, s *Subscription) bool {
		if s.mask&t != 0 {
			select {
			case s.events <- e:
			default:
				// Subscriber too slow; drop rather than block the pump.
			}
		}
		return true
	})
	return e
}

func (l *Logger) Subscribe(mask EventType) *Subscription {
	s := &Subscription{
		mask:   mask,
		id:     l.nextID.Add(1),
		events: make(chan Event, subscriptionBuffer),
		parent: l,
	}
	l.subs.Store(s.id, s)
	return s
}

func (l *Logger) Unsubscribe(s *Subscription) {
	if _, ok := l.subs.LoadAndDelete(s.id); ok {
		close(s.events)
	}
}

type Subscription struct {
	mask   EventType
	id     int64
	events chan Event
	parent *Logger
}

func (s *Subscription) Close() { s.parent.Unsubscribe(s) }

func (s *Subscription) Poll(timeout time.Duration) (Event, error) {
	to := time.NewTimer(timeout)
	defer to.Stop()
	select {
	case e, ok := <-s.events:
		if !ok {
			return e, ErrClosed
		}
		return e, nil
	case <-to.C:
		return Event{}, ErrTimeout
	}
}

// C returns the raw channel for callers that want to select on it directly
// alongside other signals (e.g. a cancellation context).
func (s *Subscription) C() <-chan Event { return s.events }
