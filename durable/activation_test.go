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

package durable_test

import (
	"sync"
	"testing"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
	"github.com/launix-de/durablestatemachines/stack"
	"github.com/launix-de/durablestatemachines/turnguard"
)

// memStorage is a minimal in-memory durable.LogStorage fake: one entry
// slice plus an optional snapshot per key, guarded by a mutex so tests
// can drive it from multiple goroutines.
type memStorage struct {
	mu       sync.Mutex
	snapshot map[string][]byte
	entries  map[string][][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{snapshot: map[string][]byte{}, entries: map[string][][]byte{}}
}

func (m *memStorage) Replay(key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]byte
	if snap, ok := m.snapshot[key]; ok {
		out = append(out, snap)
	}
	out = append(out, m.entries[key]...)
	return out, nil
}

func (m *memStorage) AppendEntry(key string, entry []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append(m.entries[key], entry)
	return nil
}

func (m *memStorage) AppendSnapshot(key string, entry []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot[key] = entry
	m.entries[key] = nil
	return nil
}

func TestActivationRecoversAcrossReactivation(t *testing.T) {
	storage := newMemStorage()
	const key = "test-stack"

	st := stack.New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation(key, st, storage); err != nil {
		t.Fatalf("NewActivation: %v", err)
	}
	if err := st.Push("a"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := st.Push("b"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	st2 := stack.New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation(key, st2, storage); err != nil {
		t.Fatalf("reactivation: %v", err)
	}
	if got := st2.Count(); got != 2 {
		t.Fatalf("count after reactivation = %d, want 2", got)
	}
	top, err := st2.Peek()
	if err != nil || top != "b" {
		t.Fatalf("peek = %q, %v, want b, nil", top, err)
	}
}

func TestActivationSnapshotCompactsLog(t *testing.T) {
	storage := newMemStorage()
	const key = "test-stack-snapshot"

	st := stack.New[string](protocol.StringCodec{})
	act, err := durable.NewActivation(key, st, storage)
	if err != nil {
		t.Fatalf("NewActivation: %v", err)
	}
	for _, v := range []string{"x", "y", "z"} {
		if err := st.Push(v); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	if err := act.Snapshot(); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	storage.mu.Lock()
	remainingEntries := len(storage.entries[key])
	_, hasSnapshot := storage.snapshot[key]
	storage.mu.Unlock()
	if remainingEntries != 0 {
		t.Fatalf("entries after snapshot = %d, want 0", remainingEntries)
	}
	if !hasSnapshot {
		t.Fatalf("expected a stored snapshot for %q", key)
	}

	st2 := stack.New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation(key, st2, storage); err != nil {
		t.Fatalf("reactivation after snapshot: %v", err)
	}
	if got := st2.Count(); got != 3 {
		t.Fatalf("count after snapshot reactivation = %d, want 3", got)
	}
}

// TestActivationPanicsOnConcurrentTurnsForSameKey exercises turnguard's
// integration into Activation: with checking enabled, two goroutines
// racing Append calls for the same key must not both be allowed to run
// their turn concurrently.
func TestActivationPanicsOnConcurrentTurnsForSameKey(t *testing.T) {
	turnguard.Enable()
	defer turnguard.Disable()

	const key = "test-turnguard"
	entered := make(chan struct{})
	release := make(chan struct{})
	panicked := make(chan bool, 1)

	storage := newMemStorage()
	blocking := stack.New[string](protocol.StringCodec{})
	act, err := durable.NewActivation(key, blocking, storage)
	if err != nil {
		t.Fatalf("NewActivation: %v", err)
	}

	go func() {
		defer func() {
			panicked <- recover() != nil
		}()
		_ = act.Append(func() []byte {
			close(entered)
			<-release
			return []byte{}
		})
	}()

	<-entered
	intruder := stack.New[string](protocol.StringCodec{})
	intruderAct, err := durable.NewActivation(key, intruder, storage)
	if err != nil {
		t.Fatalf("NewActivation: %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected turnguard to panic on a concurrent turn for key %q", key)
			}
		}()
		_ = intruderAct.Append(func() []byte { return []byte{} })
	}()

	close(release)
	if gotPanic := <-panicked; gotPanic {
		t.Fatalf("first goroutine's own turn should have completed without panicking")
	}
}
