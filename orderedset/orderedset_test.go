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

package orderedset

import (
	"slices"
	"testing"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/memlog"
	"github.com/launix-de/durablestatemachines/protocol"
)

func TestInsertionOrderAndDeduplication(t *testing.T) {
	s := New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation("k", s, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	mustAdd(t, s, "one", true)
	mustAdd(t, s, "two", true)
	mustAdd(t, s, "one", false)
	if s.Count() != 2 {
		t.Fatalf("count = %d, want 2", s.Count())
	}
	got := slices.Collect(s.OrderedItems())
	want := []string{"one", "two"}
	if !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestRecoveryFidelity(t *testing.T) {
	storage := memlog.New()
	s1 := New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation("k", s1, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	mustAdd(t, s1, "product-123", true)
	mustAdd(t, s1, "product-456", true)
	if ok, err := s1.Remove("product-123"); err != nil || !ok {
		t.Fatalf("remove = %v, %v", ok, err)
	}
	mustAdd(t, s1, "product-789", true)

	s2 := New[string](protocol.StringCodec{})
	if _, err := durable.NewActivation("k", s2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	got := slices.Collect(s2.OrderedItems())
	want := []string{"product-456", "product-789"}
	if !slices.Equal(got, want) {
		t.Fatalf("order after recovery = %v, want %v", got, want)
	}
}

func mustAdd(t *testing.T, s *OrderedSet[string], v string, wantAdded bool) {
	t.Helper()
	added, err := s.Add(v)
	if err != nil {
		t.Fatalf("add(%q): %v", v, err)
	}
	if added != wantAdded {
		t.Fatalf("add(%q) = %v, want %v", v, added, wantAdded)
	}
}
