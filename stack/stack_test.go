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

package stack

import (
	"slices"
	"testing"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/memlog"
	"github.com/launix-de/durablestatemachines/protocol"
)

func TestLIFOOrder(t *testing.T) {
	s := New[string](protocol.StringCodec{})
	storage := memlog.New()
	act, err := durable.NewActivation("k", s, storage)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	_ = act
	must(t, s.Push("a"))
	must(t, s.Push("b"))
	must(t, s.Push("c"))
	v, err := s.Pop()
	if err != nil || v != "c" {
		t.Fatalf("pop = %v, %v, want c, nil", v, err)
	}
	got := slices.Collect(s.All())
	want := []string{"b", "a"}
	if !slices.Equal(got, want) {
		t.Fatalf("iteration = %v, want %v", got, want)
	}
}

func TestPopEmptyFails(t *testing.T) {
	s := New[string](protocol.StringCodec{})
	storage := memlog.New()
	if _, err := durable.NewActivation("k", s, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := s.Pop(); err == nil {
		t.Fatalf("expected error popping empty stack")
	}
	if entries, _ := storage.Replay("k"); len(entries) != 0 {
		t.Fatalf("failed pop must not produce a log entry, got %d entries", len(entries))
	}
}

func TestRecoveryFidelity(t *testing.T) {
	storage := memlog.New()
	s1 := New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation("k", s1, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, s1.Push("one"))
	must(t, s1.Push("two"))
	must(t, s1.Push("three"))

	s2 := New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation("k", s2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if s2.Count() != 3 {
		t.Fatalf("count after recovery = %d, want 3", s2.Count())
	}
	if v, _ := s2.Peek(); v != "three" {
		t.Fatalf("peek after recovery = %v, want three", v)
	}
	if v, err := s2.Pop(); err != nil || v != "three" {
		t.Fatalf("pop after recovery = %v, %v, want three, nil", v, err)
	}
	if s2.Count() != 2 {
		t.Fatalf("count after pop = %d, want 2", s2.Count())
	}
}

func TestSnapshotFidelity(t *testing.T) {
	storage := memlog.New()
	s1 := New[string](protocol.StringCodec{})
	act, err := durable.NewActivation("k", s1, storage)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, s1.Push("one"))
	must(t, s1.Push("two"))
	if err := act.Snapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	s2 := New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation("k", s2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if s2.Count() != 2 {
		t.Fatalf("count after snapshot recovery = %d, want 2", s2.Count())
	}
	if v, _ := s2.Peek(); v != "two" {
		t.Fatalf("peek after snapshot recovery = %v, want two", v)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
