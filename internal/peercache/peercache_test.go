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

package peercache_test

import (
	"testing"

	"github.com/klegy/asyncfileserver/internal/peercache"
	"github.com/klegy/asyncfileserver/internal/protocol"
)

func TestPutGetRoundTrips(t *testing.T) {
	c := peercache.New()
	info := protocol.ServerInfo{SessionIP: "10.0.0.5", Port: 6000, TransferFolder: "/incoming"}
	c.Put(info)

	got, ok := c.Get("10.0.0.5", 6000)
	if !ok {
		t.Fatal("expected cached entry")
	}
	if got.TransferFolder != "/incoming" {
		t.Fatalf("unexpected cached value: %+v", got)
	}
}

func TestGetMissingReturnsFalse(t *testing.T) {
	c := peercache.New()
	if _, ok := c.Get("10.0.0.9", 7000); ok {
		t.Fatal("expected no cached entry")
	}
}

func TestDistinctPortsAreDistinctKeys(t *testing.T) {
	c := peercache.New()
	c.Put(protocol.ServerInfo{SessionIP: "10.0.0.5", Port: 6000})
	c.Put(protocol.ServerInfo{SessionIP: "10.0.0.5", Port: 6001})
	if c.Len() != 2 {
		t.Fatalf("expected 2 distinct entries, got %d", c.Len())
	}
}
