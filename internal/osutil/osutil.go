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

// Package osutil carries the file receive pipeline's (C7) temp-file-then-
// rename helper, so a crashed or stalled receive never leaves a partially
// written file visible at its final path.
package osutil

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

var renameLock sync.Mutex

// Rename commits a temp file to its final location, tweaking directory
// permissions if necessary to succeed across platforms. The from file is
// always removed, whether the rename succeeds or not, so it is only meant
// for committing a scratch file to its destination.
func Rename(from, to string) error {
	renameLock.Lock()
	defer renameLock.Unlock()

	toDir := filepath.Dir(to)
	if info, err := os.Stat(toDir); err == nil {
		os.Chmod(toDir, 0777)
		defer os.Chmod(toDir, info.Mode())
	}

	if runtime.GOOS == "windows" {
		os.Chmod(to, 0666)
		if err := os.Remove(to); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	defer os.Remove(from)
	return os.Rename(from, to)
}

// InWritableDir calls fn(path) while making sure path's containing
// directory is writable for the duration of the call.
func InWritableDir(fn func(string) error, path string) error {
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err == nil && info.IsDir() && info.Mode()&0o200 == 0 {
		if err := os.Chmod(dir, 0o755); err == nil {
			defer func() {
				if err := os.Chmod(dir, info.Mode()); err != nil {
					panic(err)
				}
			}()
		}
	}
	return fn(path)
}

// TempNameFor returns the scratch path a receive writes to before Rename
// commits it to path, following the teacher's convention of a dotfile
// sibling in the same directory (so it shares the destination's
// filesystem and Rename is a same-volume, near-atomic operation).
func TempNameFor(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	return filepath.Join(dir, "."+base+".tmp")
}
