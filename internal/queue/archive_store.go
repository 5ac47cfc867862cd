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

package queue

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/klegy/asyncfileserver/internal/protocol"
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBArchiveStore persists archived messages to a goleveldb database,
// keyed by big-endian id so an iterator walks them in archival order. This
// is opt-in: Runtime.ArchiveDBPath must be set (SPEC_FULL.md's C3
// additions); nothing reaches here otherwise.
type LevelDBArchiveStore struct {
	db *leveldb.DB
}

func OpenLevelDBArchiveStore(path string) (*LevelDBArchiveStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: open archive db: %w", err)
	}
	return &LevelDBArchiveStore{db: db}, nil
}

func (s *LevelDBArchiveStore) Save(msg *protocol.Message) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return fmt.Errorf("queue: encode archived message %d: %w", msg.ID, err)
	}
	return s.db.Put(idKey(msg.ID), buf.Bytes(), nil)
}

// Load reconstructs every archived message, in ascending id order, for
// restart-time rehydration of a Registry (not required by any invariant —
// the in-memory archive is still authoritative for a running process —
// but useful for internal/support's bundle export after a restart).
func (s *LevelDBArchiveStore) Load() ([]*protocol.Message, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []*protocol.Message
	for iter.Next() {
		var msg protocol.Message
		if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(&msg); err != nil {
			return nil, fmt.Errorf("queue: decode archived message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, iter.Error()
}

func (s *LevelDBArchiveStore) Close() error {
	return s.db.Close()
}

func idKey(id uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	return b[:]
}
