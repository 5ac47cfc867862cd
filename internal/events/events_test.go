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

package events_test

import (
	"testing"
	"time"

	"github.com/klegy/asyncfileserver/internal/events"
)

var timeout = 100 * time.Millisecond

func TestNewLogger(t *testing.T) {
	if l := events.NewLogger(); l == nil {
		t.Fatal("unexpected nil Logger")
	}
}

func TestSubscriber(t *testing.T) {
	l := events.NewLogger()
	if s := l.Subscribe(0); s == nil {
		t.Fatal("unexpected nil Subscription")
	}
}

func TestTimeout(t *testing.T) {
	l := events.NewLogger()
	s := l.Subscribe(0)
	if _, err := s.Poll(timeout); err != events.ErrTimeout {
		t.Fatal("unexpected non-timeout error:", err)
	}
}

func TestEventBeforeSubscribe(t *testing.T) {
	l := events.NewLogger()

	l.Log(events.ReceivedTextMessage, 1, map[string]any{"text": "hello"})
	s := l.Subscribe(0)

	if _, err := s.Poll(timeout); err != events.ErrTimeout {
		t.Fatal("unexpected non-timeout error:", err)
	}
}

func TestEventAfterSubscribe(t *testing.T) {
	l := events.NewLogger()

	s := l.Subscribe(events.AllEvents)
	l.Log(events.ReceivedTextMessage, 1, map[string]any{"text": "hello"})

	ev, err := s.Poll(timeout)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if ev.Type != events.ReceivedTextMessage {
		t.Error("incorrect event type", ev.Type)
	}
	if ev.RequestID != 1 {
		t.Error("incorrect request id", ev.RequestID)
	}
	if ev.Fields["text"] != "hello" {
		t.Errorf("incorrect fields %#v", ev.Fields)
	}
}

func TestEventAfterSubscribeIgnoreMask(t *testing.T) {
	l := events.NewLogger()

	s := l.Subscribe(events.ErrorOccurred)
	l.Log(events.ReceivedTextMessage, 1, nil)

	if _, err := s.Poll(timeout); err != events.ErrTimeout {
		t.Fatal("expected mask to filter out ReceivedTextMessage, got:", err)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	l := events.NewLogger()
	s := l.Subscribe(events.AllEvents)
	l.Unsubscribe(s)

	if _, err := s.Poll(timeout); err != events.ErrClosed {
		t.Fatal("expected closed subscription, got:", err)
	}
}

func TestManySubscribersAllReceive(t *testing.T) {
	l := events.NewLogger()
	subs := make([]*events.Subscription, 8)
	for i := range subs {
		subs[i] = l.Subscribe(events.AllEvents)
	}

	l.Log(events.ServerInfoExchanged, 0, nil)

	for i, s := range subs {
		if _, err := s.Poll(timeout); err != nil {
			t.Errorf("subscriber %d: unexpected error: %v", i, err)
		}
	}
}
