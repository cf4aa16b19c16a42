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

package graph

import (
	"errors"
	"slices"
	"testing"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/memlog"
	"github.com/launix-de/durablestatemachines/protocol"
)

func TestAddEdgeRejectsDuplicate(t *testing.T) {
	g := New[string, string, string](protocol.StringCodec{}, protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", g, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	mustAddNode(t, g, "a", "A")
	mustAddNode(t, g, "b", "B")
	must(t, g.AddEdge("a", "b", "ab"))
	if err := g.AddEdge("a", "b", "ab2"); !errors.Is(err, durable.ErrInvalidOperation) {
		t.Fatalf("duplicate AddEdge err = %v, want ErrInvalidOperation", err)
	}
	if err := g.UpsertEdge("a", "b", "ab2"); err != nil {
		t.Fatalf("upsert over existing edge: %v", err)
	}
	if v, _ := g.EdgeValue("a", "b"); v != "ab2" {
		t.Fatalf("edge value = %q, want ab2", v)
	}
}

func TestRemoveNodeRemovesIncidentEdges(t *testing.T) {
	g := New[string, string, string](protocol.StringCodec{}, protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", g, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	mustAddNode(t, g, "a", "A")
	mustAddNode(t, g, "b", "B")
	mustAddNode(t, g, "c", "C")
	must(t, g.AddEdge("a", "b", "ab"))
	must(t, g.AddEdge("b", "c", "bc"))
	must(t, g.RemoveNode("b"))
	if succ := g.Successors("a"); len(succ) != 0 {
		t.Fatalf("a successors = %v, want none", succ)
	}
	if pred := g.Predecessors("c"); len(pred) != 0 {
		t.Fatalf("c predecessors = %v, want none", pred)
	}
}

func TestRecoveryFidelity(t *testing.T) {
	storage := memlog.New()
	g1 := New[string, string, string](protocol.StringCodec{}, protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", g1, storage); err != nil {
		t.Fatalf("activate: %v", err)
	}
	mustAddNode(t, g1, "a", "A")
	mustAddNode(t, g1, "b", "B")
	must(t, g1.AddEdge("a", "b", "ab"))

	g2 := New[string, string, string](protocol.StringCodec{}, protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", g2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if v, ok := g2.EdgeValue("a", "b"); !ok || v != "ab" {
		t.Fatalf("edge after recovery = %v, %v, want ab, true", v, ok)
	}
	if got := g2.Predecessors("b"); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("predecessors after recovery = %v, want [a]", got)
	}
}

func TestAddNodeRejectsDuplicateWithoutError(t *testing.T) {
	g := New[string, string, string](protocol.StringCodec{}, protocol.StringCodec{}, protocol.StringCodec{})
	if _, err := durable.NewActivation("k", g, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	mustAddNode(t, g, "a", "A")
	added, err := g.AddNode("a", "A2")
	if err != nil {
		t.Fatalf("duplicate AddNode returned an error: %v, want (false, nil)", err)
	}
	if added {
		t.Fatalf("duplicate AddNode reported added = true, want false")
	}
	if v, ok := g.NodeValue("a"); !ok || v != "A" {
		t.Fatalf("duplicate AddNode must not overwrite the existing value: got %q, %v, want A, true", v, ok)
	}
}

func mustAddNode(t *testing.T, g *Graph[string, string, string], key, value string) {
	t.Helper()
	added, err := g.AddNode(key, value)
	if err != nil {
		t.Fatalf("AddNode(%q): %v", key, err)
	}
	if !added {
		t.Fatalf("AddNode(%q) reported added = false, want true", key)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
