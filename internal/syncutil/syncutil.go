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

// Package syncutil wraps sync.Mutex/sync.RWMutex with an optional
// lock-hold-time logger, enabled by ASYNCFS_LOCK_DEBUG=1. Queue, Archive
// and ServerState are all mutated from the pump goroutine but read from
// the stall monitor and any diagnostics handler, so a mutex held too long
// here is exactly the kind of bug this is meant to surface during
// development without paying for it in production builds.
package syncutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/klegy/asyncfileserver/internal/logger"
)

var (
	debug     = os.Getenv("ASYNCFS_LOCK_DEBUG") == "1"
	threshold = 100 * time.Millisecond
	l         = logger.DefaultLogger
)

type Mutex interface {
	Lock()
	Unlock()
}

type RWMutex interface {
	Mutex
	RLock()
	RUnlock()
}

func NewMutex() Mutex {
	if debug {
		return &loggedMutex{}
	}
	return &sync.Mutex{}
}

func NewRWMutex() RWMutex {
	if debug {
		return &loggedRWMutex{}
	}
	return &sync.RWMutex{}
}

type loggedMutex struct {
	sync.Mutex
	start    time.Time
	lockedAt string
}

func (m *loggedMutex) Lock() {
	m.Mutex.Lock()
	m.start = time.Now()
	m.lockedAt = getCaller()
}

func (m *loggedMutex) Unlock() {
	if d := time.Since(m.start); d >= threshold {
		l.Debugf("mutex held for %v, locked at %s, unlocked at %s", d, m.lockedAt, getCaller())
	}
	m.Mutex.Unlock()
}

type loggedRWMutex struct {
	sync.RWMutex
	start    time.Time
	lockedAt string
}

func (m *loggedRWMutex) Lock() {
	start := time.Now()
	m.RWMutex.Lock()
	m.start = time.Now()
	m.lockedAt = getCaller()
	if d := m.start.Sub(start); d >= threshold {
		l.Debugf("rwmutex took %v to lock at %s", d, getCaller())
	}
}

func (m *loggedRWMutex) Unlock() {
	if d := time.Since(m.start); d >= threshold {
		l.Debugf("rwmutex held for %v, locked at %s, unlocked at %s", d, m.lockedAt, getCaller())
	}
	m.RWMutex.Unlock()
}

func getCaller() string {
	_, file, line, _ := runtime.Caller(2)
	file = filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file))
	return fmt.Sprintf("%s:%d", file, line)
}
