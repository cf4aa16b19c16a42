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

package ring

import (
	"slices"
	"testing"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/memlog"
	"github.com/launix-de/durablestatemachines/protocol"
)

func collect(b *Buffer[int64]) []int64 {
	var out []int64
	for v := range b.All() {
		out = append(out, v)
	}
	return out
}

func TestOverwriteOnFullEnqueue(t *testing.T) {
	b := New[int64](protocol.Int64Codec{}, 3)
	if _, err := durable.NewActivation("k", b, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	for _, v := range []int64{1, 2, 3, 4} {
		if err := b.Enqueue(v); err != nil {
			t.Fatalf("enqueue %d: %v", v, err)
		}
	}
	if got, want := collect(b), []int64{2, 3, 4}; !slices.Equal(got, want) {
		t.Fatalf("contents = %v, want %v", got, want)
	}
}

func TestShrinkKeepsNewest(t *testing.T) {
	b := New[int64](protocol.Int64Codec{}, 3)
	if _, err := durable.NewActivation("k", b, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	for _, v := range []int64{1, 2, 3, 4} {
		must(t, b.Enqueue(v))
	}
	if ok, err := b.SetCapacity(2); err != nil || !ok {
		t.Fatalf("set capacity: %v %v", ok, err)
	}
	if got, want := collect(b), []int64{3, 4}; !slices.Equal(got, want) {
		t.Fatalf("contents = %v, want %v", got, want)
	}
}

func TestGrowPreservesAllThenShrinkKeepsNewest(t *testing.T) {
	b := New[int64](protocol.Int64Codec{}, 3)
	if _, err := durable.NewActivation("k", b, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	for _, v := range []int64{1, 2, 3} {
		must(t, b.Enqueue(v))
	}
	if ok, err := b.SetCapacity(5); err != nil || !ok {
		t.Fatalf("grow: %v %v", ok, err)
	}
	must(t, b.Enqueue(4))
	must(t, b.Enqueue(5))
	if got, want := collect(b), []int64{1, 2, 3, 4, 5}; !slices.Equal(got, want) {
		t.Fatalf("contents after grow = %v, want %v", got, want)
	}
	if ok, err := b.SetCapacity(2); err != nil || !ok {
		t.Fatalf("shrink: %v %v", ok, err)
	}
	if got, want := collect(b), []int64{4, 5}; !slices.Equal(got, want) {
		t.Fatalf("contents after shrink = %v, want %v", got, want)
	}
}

func TestRecoveryFidelityAfterResizeAndEviction(t *testing.T) {
	storage := memlog.New()
	b1 := New[int64](protocol.Int64Codec{}, 3)
	if _, err := durable.NewActivation("k", b1, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	for _, v := range []int64{1, 2, 3, 4} {
		must(t, b1.Enqueue(v))
	}
	if _, err := b1.SetCapacity(2); err != nil {
		t.Fatalf("set capacity: %v", err)
	}

	b2 := New[int64](protocol.Int64Codec{}, 3)
	if _, err := durable.NewActivation("k", b2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if got, want := collect(b2), []int64{3, 4}; !slices.Equal(got, want) {
		t.Fatalf("contents after recovery = %v, want %v", got, want)
	}
	if b2.Capacity() != 2 {
		t.Fatalf("capacity after recovery = %d, want 2", b2.Capacity())
	}
}

func TestDequeueEmptyNoLogEntry(t *testing.T) {
	storage := memlog.New()
	b := New[int64](protocol.Int64Codec{}, 3)
	if _, err := durable.NewActivation("k", b, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, ok, err := b.TryDequeue(); err != nil || ok {
		t.Fatalf("dequeue on empty = %v %v, want false, nil", ok, err)
	}
	if n := storage.Len("k"); n != 0 {
		t.Fatalf("log length = %d, want 0", n)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
