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

package priorityqueue

import (
	"testing"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/memlog"
	"github.com/launix-de/durablestatemachines/protocol"
)

func TestMinPriorityWins(t *testing.T) {
	pq := New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation("k", pq, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := pq.Enqueue("Low", 100); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := pq.Enqueue("High", 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	v, err := pq.Dequeue()
	if err != nil || v != "High" {
		t.Fatalf("dequeue = %v, %v, want High, nil", v, err)
	}
}

func TestRestoreAfterSnapshot(t *testing.T) {
	storage := memlog.New()
	pq1 := New[string](protocol.StringCodec{})
	act, err := durable.NewActivation("k", pq1, storage)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	for i := 0; i < 100; i++ {
		if err := pq1.Enqueue("item", float64(100-i)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := act.Snapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	pq2 := New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation("k", pq2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if pq2.Count() != 100 {
		t.Fatalf("count after recovery = %d, want 100", pq2.Count())
	}
	for i := 0; i < 100; i++ {
		_, pri, ok, err := pq2.TryDequeue()
		if !ok || err != nil {
			t.Fatalf("dequeue %d: ok=%v err=%v", i, ok, err)
		}
		if pri != float64(i+1) {
			t.Fatalf("dequeue %d priority = %v, want %v", i, pri, i+1)
		}
	}
}

func TestEmptyDequeueNoLogEntry(t *testing.T) {
	storage := memlog.New()
	pq := New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation("k", pq, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := pq.Dequeue(); err == nil {
		t.Fatalf("expected error on empty dequeue")
	}
	if storage.Len("k") != 0 {
		t.Fatalf("expected no log entry, got %d", storage.Len("k"))
	}
}
