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

package lookup

import (
	"slices"
	"testing"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/memlog"
	"github.com/launix-de/durablestatemachines/protocol"
)

func TestListLookupDuplicates(t *testing.T) {
	l := NewList[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", l, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, l.Add("k", "a"))
	must(t, l.Add("k", "b"))
	must(t, l.Add("k", "a"))
	if ok, err := l.RemoveItem("k", "a"); err != nil || !ok {
		t.Fatalf("remove item: %v %v", ok, err)
	}
	want := []string{"b", "a"}
	if got := l.Get("k"); !slices.Equal(got, want) {
		t.Fatalf("values = %v, want %v", got, want)
	}
}

func TestSetLookupUniqueness(t *testing.T) {
	s := NewSet[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", s, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	ok1, err := s.Add("k", "a")
	if err != nil || !ok1 {
		t.Fatalf("first add = %v, %v, want true, nil", ok1, err)
	}
	ok2, err := s.Add("k", "a")
	if err != nil || ok2 {
		t.Fatalf("second add = %v, %v, want false, nil", ok2, err)
	}
	if got := s.Get("k"); len(got) != 1 {
		t.Fatalf("values = %v, want 1 item", got)
	}
}

func TestOrderedSetLookupOrder(t *testing.T) {
	s := NewOrderedSet[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", s, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must2(t, s.Add("k", "c"))
	must2(t, s.Add("k", "a"))
	must2(t, s.Add("k", "b"))
	want := []string{"c", "a", "b"}
	if got := s.Get("k"); !slices.Equal(got, want) {
		t.Fatalf("values = %v, want %v", got, want)
	}
}

func TestOrderedSetLookupRecoveryAndRemovalDeletesKey(t *testing.T) {
	storage := memlog.New()
	s1 := NewOrderedSet[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("userId", s1, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must2(t, s1.Add("userId", "product-123"))
	must2(t, s1.Add("userId", "product-456"))
	if added, err := s1.Add("userId", "product-123"); err != nil || added {
		t.Fatalf("re-adding product-123 = %v, %v, want false, nil", added, err)
	}

	s2 := NewOrderedSet[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("userId", s2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	want := []string{"product-123", "product-456"}
	if got := s2.Get("userId"); !slices.Equal(got, want) {
		t.Fatalf("values after recovery = %v, want %v", got, want)
	}

	if _, err := s2.Remove("userId", "product-123"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s2.Remove("userId", "product-456"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s2.Contains("userId") {
		t.Fatalf("key should have been deleted once its last value was removed")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func must2(t *testing.T, ok bool, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected add to report true")
	}
}
