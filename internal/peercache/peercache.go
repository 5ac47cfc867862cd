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

// Package peercache remembers the ServerInfo of recently-contacted peers
// (spec §3's ServerInfo identity pair). pump.Dispatcher stores entries on
// every ServerInfoRequest/Response; no handler reads them back, so every
// exchange still does its own ServerInfoRequest/Response round trip.
package peercache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/klegy/asyncfileserver/internal/protocol"
)

// defaultSize bounds memory use; a peer's own ServerInfo is small and a
// single peer rarely needs more than a handful of distinct remotes
// remembered at once (spec's single-active-session Non-goal keeps the
// working set tiny).
const defaultSize = 64

// Cache maps a peer's (session_ip, port) key to its last-known ServerInfo.
type Cache struct {
	lru *lru.Cache[string, protocol.ServerInfo]
}

// New returns a Cache bounded to defaultSize entries.
func New() *Cache {
	c, err := lru.New[string, protocol.ServerInfo](defaultSize)
	if err != nil {
		// Only returns an error for a non-positive size, which defaultSize
		// never is.
		panic(err)
	}
	return &Cache{lru: c}
}

func key(sessionIP string, port uint32) string {
	return fmt.Sprintf("%s:%d", sessionIP, port)
}

// Put remembers info under its own (SessionIP, Port) identity.
func (c *Cache) Put(info protocol.ServerInfo) {
	c.lru.Add(key(info.SessionIP, info.Port), info)
}

// Get returns the last-known ServerInfo for (sessionIP, port), if any.
func (c *Cache) Get(sessionIP string, port uint32) (protocol.ServerInfo, bool) {
	return c.lru.Get(key(sessionIP, port))
}

// Len reports how many peers are currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}
