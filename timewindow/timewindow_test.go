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

package timewindow

import (
	"slices"
	"testing"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/memlog"
	"github.com/launix-de/durablestatemachines/protocol"
)

type fakeClock struct{ t int64 }

func (c *fakeClock) now() int64 { return c.t }

func collect(b *Buffer[string]) []string {
	var out []string
	for v := range b.All() {
		out = append(out, v)
	}
	return out
}

func TestEvictsOnEnqueueOnly(t *testing.T) {
	clock := &fakeClock{t: 0}
	b := New[string](protocol.StringCodec{}, 10, clock.now)
	if _, err := durable.NewActivation("k", b, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, b.Enqueue("a"))
	clock.t = 5
	must(t, b.Enqueue("b"))
	clock.t = 15
	if got, want := collect(b), []string{"a", "b"}; !slices.Equal(got, want) {
		t.Fatalf("before next enqueue, contents = %v, want %v (reads must not purge)", got, want)
	}
	must(t, b.Enqueue("c"))
	if got, want := collect(b), []string{"b", "c"}; !slices.Equal(got, want) {
		t.Fatalf("contents = %v, want %v", got, want)
	}
}

func TestSetWindowPurges(t *testing.T) {
	clock := &fakeClock{t: 0}
	b := New[string](protocol.StringCodec{}, 100, clock.now)
	if _, err := durable.NewActivation("k", b, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, b.Enqueue("a"))
	clock.t = 10
	must(t, b.Enqueue("b"))
	clock.t = 20
	if ok, err := b.SetWindow(15); err != nil || !ok {
		t.Fatalf("set window: %v %v", ok, err)
	}
	if got, want := collect(b), []string{"b"}; !slices.Equal(got, want) {
		t.Fatalf("contents = %v, want %v", got, want)
	}
}

func TestRecoveryFidelity(t *testing.T) {
	storage := memlog.New()
	clock := &fakeClock{t: 0}
	b1 := New[string](protocol.StringCodec{}, 10, clock.now)
	if _, err := durable.NewActivation("k", b1, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, b1.Enqueue("a"))
	clock.t = 5
	must(t, b1.Enqueue("b"))
	clock.t = 25
	must(t, b1.Enqueue("c"))

	b2 := New[string](protocol.StringCodec{}, 10, clock.now)
	if _, err := durable.NewActivation("k", b2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if got, want := collect(b2), []string{"c"}; !slices.Equal(got, want) {
		t.Fatalf("contents after recovery = %v, want %v", got, want)
	}
}

func TestDequeueEmptyNoLogEntry(t *testing.T) {
	storage := memlog.New()
	b := New[string](protocol.StringCodec{}, 10, nil)
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
