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

package tree

import (
	"errors"
	"testing"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/memlog"
	"github.com/launix-de/durablestatemachines/protocol"
)

func TestCascadingRemoval(t *testing.T) {
	tr := New[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", tr, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, tr.SetRoot("root", "r"))
	must(t, tr.Add("root", "a", "a"))
	must(t, tr.Add("a", "b", "b"))
	must(t, tr.Add("a", "c", "c"))
	must(t, tr.Remove("a"))
	for _, k := range []string{"a", "b", "c"} {
		if tr.Contains(k) {
			t.Fatalf("%q should have been cascade-removed", k)
		}
	}
	if tr.Count() != 1 {
		t.Fatalf("count = %d, want 1 (root only)", tr.Count())
	}
}

func TestSetRootRejectsNonEmptyTree(t *testing.T) {
	tr := New[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", tr, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, tr.SetRoot("root", "r"))
	if err := tr.SetRoot("other", "o"); !errors.Is(err, durable.ErrInvalidOperation) {
		t.Fatalf("set_root on non-empty tree: err = %v, want ErrInvalidOperation", err)
	}
	if !tr.Contains("root") || tr.Count() != 1 {
		t.Fatalf("failed set_root must not have mutated the tree")
	}
}

func TestMoveRejectsCycle(t *testing.T) {
	tr := New[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", tr, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, tr.SetRoot("root", "r"))
	must(t, tr.Add("root", "a", "a"))
	must(t, tr.Add("a", "b", "b"))
	if _, err := tr.Move("a", "b"); !errors.Is(err, durable.ErrInvalidOperation) {
		t.Fatalf("move into own descendant: err = %v, want ErrInvalidOperation", err)
	}
}

func TestMoveRejectsRootMove(t *testing.T) {
	tr := New[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", tr, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, tr.SetRoot("root", "r"))
	must(t, tr.Add("root", "a", "a"))
	if _, err := tr.Move("root", "a"); !errors.Is(err, durable.ErrInvalidOperation) {
		t.Fatalf("move root: err = %v, want ErrInvalidOperation", err)
	}
}

func TestMoveToSameParentIsNoopNotError(t *testing.T) {
	storage := memlog.New()
	tr := New[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", tr, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, tr.SetRoot("root", "r"))
	must(t, tr.Add("root", "a", "a"))
	before := storage.Len("k")
	moved, err := tr.Move("a", "root")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved {
		t.Fatalf("expected no-op move to report false")
	}
	if after := storage.Len("k"); after != before {
		t.Fatalf("no-op move should not log: before=%d after=%d", before, after)
	}
}

func TestRecoveryFidelityAfterMoveAndRemove(t *testing.T) {
	storage := memlog.New()
	tr1 := New[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", tr1, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	must(t, tr1.SetRoot("root", "r"))
	must(t, tr1.Add("root", "a", "a"))
	must(t, tr1.Add("root", "b", "b"))
	must(t, tr1.Add("a", "c", "c"))
	if _, err := tr1.Move("c", "b"); err != nil {
		t.Fatalf("move: %v", err)
	}

	tr2 := New[string, string](protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", tr2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	parent, ok := tr2.Parent("c")
	if !ok || parent != "b" {
		t.Fatalf("parent of c = %v, %v, want b, true", parent, ok)
	}
	if tr2.Count() != 4 {
		t.Fatalf("count after recovery = %d, want 4", tr2.Count())
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
