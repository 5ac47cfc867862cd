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

package syncutil_test

import (
	"testing"

	"github.com/klegy/asyncfileserver/internal/syncutil"
)

func TestMutexExcludesConcurrentAccess(t *testing.T) {
	m := syncutil.NewMutex()
	counter := 0
	done := make(chan struct{})
	const n = 100
	for i := 0; i < n; i++ {
		go func() {
			m.Lock()
			counter++
			m.Unlock()
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}
	if counter != n {
		t.Fatalf("counter = %d, want %d", counter, n)
	}
}

func TestRWMutexAllowsConcurrentReaders(t *testing.T) {
	m := syncutil.NewRWMutex()
	m.RLock()
	m.RLock()
	m.RUnlock()
	m.RUnlock()

	m.Lock()
	m.Unlock()
}
