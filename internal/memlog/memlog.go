/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package memlog is an in-memory durable.LogStorage used by this
// module's own unit tests to exercise recovery, replay and snapshot
// compaction without touching a filesystem or a network backend.
// hoststore/file is the equivalent reference backend meant for real use;
// memlog exists purely so every structure package's tests can "deactivate
// and reactivate" a structure cheaply.
package memlog

import "sync"

// Store is a process-local, map-backed durable.LogStorage.
type Store struct {
	mu   sync.Mutex
	logs map[string][][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{logs: make(map[string][][]byte)}
}

// Replay implements durable.LogStorage.
func (s *Store) Replay(key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.logs[key]
	out := make([][]byte, len(entries))
	copy(out, entries)
	return out, nil
}

// AppendEntry implements durable.LogStorage.
func (s *Store) AppendEntry(key string, entry []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(entry))
	copy(cp, entry)
	s.logs[key] = append(s.logs[key], cp)
	return nil
}

// AppendSnapshot implements durable.LogStorage: it replaces the key's
// entire stored log with the single snapshot entry.
func (s *Store) AppendSnapshot(key string, entry []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(entry))
	copy(cp, entry)
	s.logs[key] = [][]byte{cp}
	return nil
}

// Len reports how many entries are currently stored for key (tests use
// this to assert no-op operations produced no entry).
func (s *Store) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs[key])
}
