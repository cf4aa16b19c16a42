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

// Package graph is a durable directed graph keyed by K, with a value per
// node and per edge (spec §4.11). Each edge's datum is stored once, in
// its source node's outgoing map; the incoming-edge index is
// reconstructed from the outgoing maps on Reset/Apply rather than
// persisted separately.
package graph

import (
	"fmt"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

const (
	tagClear      uint32 = 0
	tagSnapshot   uint32 = 1
	tagAddNode    uint32 = 2
	tagRemoveNode uint32 = 3
	tagAddEdge    uint32 = 4
	tagUpsertEdge uint32 = 5
	tagRemoveEdge uint32 = 6
)

// Graph is a durable directed graph.
type Graph[K comparable, NV any, EV any] struct {
	keyCodec  protocol.Codec[K]
	nodeCodec protocol.Codec[NV]
	edgeCodec protocol.Codec[EV]
	nodes     map[K]NV
	outgoing  map[K]map[K]EV
	incoming  map[K]map[K]struct{}
	w         durable.LogWriter
}

// New returns an empty Graph.
func New[K comparable, NV any, EV any](keyCodec protocol.Codec[K], nodeCodec protocol.Codec[NV], edgeCodec protocol.Codec[EV]) *Graph[K, NV, EV] {
	return &Graph[K, NV, EV]{
		keyCodec:  keyCodec,
		nodeCodec: nodeCodec,
		edgeCodec: edgeCodec,
		nodes:     make(map[K]NV),
		outgoing:  make(map[K]map[K]EV),
		incoming:  make(map[K]map[K]struct{}),
	}
}

// Reset implements durable.StateMachine.
func (g *Graph[K, NV, EV]) Reset(w durable.LogWriter) {
	g.w = w
	g.nodes = make(map[K]NV)
	g.outgoing = make(map[K]map[K]EV)
	g.incoming = make(map[K]map[K]struct{})
}

func (g *Graph[K, NV, EV]) addEdgeInternal(src, dst K, value EV) {
	if g.outgoing[src] == nil {
		g.outgoing[src] = make(map[K]EV)
	}
	g.outgoing[src][dst] = value
	if g.incoming[dst] == nil {
		g.incoming[dst] = make(map[K]struct{})
	}
	g.incoming[dst][src] = struct{}{}
}

func (g *Graph[K, NV, EV]) removeEdgeInternal(src, dst K) bool {
	m, ok := g.outgoing[src]
	if !ok {
		return false
	}
	if _, ok := m[dst]; !ok {
		return false
	}
	delete(m, dst)
	if len(m) == 0 {
		delete(g.outgoing, src)
	}
	if inc, ok := g.incoming[dst]; ok {
		delete(inc, src)
		if len(inc) == 0 {
			delete(g.incoming, dst)
		}
	}
	return true
}

func (g *Graph[K, NV, EV]) removeNodeInternal(key K) {
	delete(g.nodes, key)
	if m, ok := g.outgoing[key]; ok {
		for dst := range m {
			g.removeEdgeInternal(key, dst)
		}
	}
	if inc, ok := g.incoming[key]; ok {
		for src := range inc {
			g.removeEdgeInternal(src, key)
		}
	}
}

// Apply implements durable.StateMachine.
func (g *Graph[K, NV, EV]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	ver, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if ver != protocol.CurrentVersion {
		return fmt.Errorf("%w: graph entry version %d", durable.ErrUnsupportedVersion, ver)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case tagClear:
		g.nodes = make(map[K]NV)
		g.outgoing = make(map[K]map[K]EV)
		g.incoming = make(map[K]map[K]struct{})
	case tagAddNode:
		k, err := g.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		v, err := g.nodeCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		g.nodes[k] = v
	case tagRemoveNode:
		k, err := g.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		g.removeNodeInternal(k)
	case tagAddEdge, tagUpsertEdge:
		src, dst, err := g.decodeKeyKey(r)
		if err != nil {
			return err
		}
		v, err := g.edgeCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		g.addEdgeInternal(src, dst, v)
	case tagRemoveEdge:
		src, dst, err := g.decodeKeyKey(r)
		if err != nil {
			return err
		}
		g.removeEdgeInternal(src, dst)
	case tagSnapshot:
		if err := g.applySnapshot(r); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: graph tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

func (g *Graph[K, NV, EV]) decodeKeyKey(r *protocol.Reader) (K, K, error) {
	a, err := g.keyCodec.Decode(r)
	if err != nil {
		var z K
		return z, z, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	b, err := g.keyCodec.Decode(r)
	if err != nil {
		var z K
		return a, z, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	return a, b, nil
}

func (g *Graph[K, NV, EV]) applySnapshot(r *protocol.Reader) error {
	g.nodes = make(map[K]NV)
	g.outgoing = make(map[K]map[K]EV)
	g.incoming = make(map[K]map[K]struct{})
	nodeCount, err := r.ReadUvarint()
	if err != nil {
		return err
	}
	for i := uint64(0); i < nodeCount; i++ {
		k, err := g.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		v, err := g.nodeCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		g.nodes[k] = v
	}
	edgeCount, err := r.ReadUvarint()
	if err != nil {
		return err
	}
	for i := uint64(0); i < edgeCount; i++ {
		src, dst, err := g.decodeKeyKey(r)
		if err != nil {
			return err
		}
		v, err := g.edgeCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		g.addEdgeInternal(src, dst, v)
	}
	return nil
}

// AppendEntries implements durable.StateMachine; push-style, no-op.
func (g *Graph[K, NV, EV]) AppendEntries(durable.LogWriter) error { return nil }

// AppendSnapshot implements durable.StateMachine: nodeCount then (key,
// value) pairs, then edgeCount then (src, dst, value) triples. The
// incoming index is not persisted; it is rebuilt from these edges.
func (g *Graph[K, NV, EV]) AppendSnapshot(w durable.LogWriter) error {
	type nodeRec struct {
		key K
		val NV
	}
	type edgeRec struct {
		src, dst K
		val      EV
	}
	nodeRecs := make([]nodeRec, 0, len(g.nodes))
	for k, v := range g.nodes {
		nodeRecs = append(nodeRecs, nodeRec{key: k, val: v})
	}
	var edgeRecs []edgeRec
	for src, m := range g.outgoing {
		for dst, v := range m {
			edgeRecs = append(edgeRecs, edgeRec{src: src, dst: dst, val: v})
		}
	}
	keyCodec, nodeCodec, edgeCodec := g.keyCodec, g.nodeCodec, g.edgeCodec
	return w.Append(func() []byte {
		wr := protocol.NewWriter(tagSnapshot)
		wr.WriteUvarint(uint64(len(nodeRecs)))
		for _, n := range nodeRecs {
			keyCodec.Encode(wr, n.key)
			nodeCodec.Encode(wr, n.val)
		}
		wr.WriteUvarint(uint64(len(edgeRecs)))
		for _, e := range edgeRecs {
			keyCodec.Encode(wr, e.src)
			keyCodec.Encode(wr, e.dst)
			edgeCodec.Encode(wr, e.val)
		}
		return wr.Bytes()
	})
}

// AddNode inserts key with value, returning whether it was added; a
// duplicate key is reported via the returned bool rather than an error,
// the same non-throwing-sentinel contract as orderedset.Add/lookup.Add.
func (g *Graph[K, NV, EV]) AddNode(key K, value NV) (bool, error) {
	if _, ok := g.nodes[key]; ok {
		return false, nil
	}
	g.nodes[key] = value
	keyCodec, nodeCodec := g.keyCodec, g.nodeCodec
	if err := g.w.Append(func() []byte {
		wr := protocol.NewWriter(tagAddNode)
		keyCodec.Encode(wr, key)
		nodeCodec.Encode(wr, value)
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// RemoveNode deletes key and every edge touching it, in either
// direction. No-op if key is absent.
func (g *Graph[K, NV, EV]) RemoveNode(key K) error {
	if _, ok := g.nodes[key]; !ok {
		return nil
	}
	g.removeNodeInternal(key)
	keyCodec := g.keyCodec
	return g.w.Append(func() []byte {
		wr := protocol.NewWriter(tagRemoveNode)
		keyCodec.Encode(wr, key)
		return wr.Bytes()
	})
}

// AddEdge creates a directed edge src→dst carrying value, failing if
// either node is absent or the edge already exists.
func (g *Graph[K, NV, EV]) AddEdge(src, dst K, value EV) error {
	if _, ok := g.nodes[src]; !ok {
		return fmt.Errorf("%w: graph node %v does not exist", durable.ErrInvalidArgument, src)
	}
	if _, ok := g.nodes[dst]; !ok {
		return fmt.Errorf("%w: graph node %v does not exist", durable.ErrInvalidArgument, dst)
	}
	if m, ok := g.outgoing[src]; ok {
		if _, ok := m[dst]; ok {
			return fmt.Errorf("%w: graph edge %v->%v already exists", durable.ErrInvalidOperation, src, dst)
		}
	}
	g.addEdgeInternal(src, dst, value)
	keyCodec, edgeCodec := g.keyCodec, g.edgeCodec
	return g.w.Append(func() []byte {
		wr := protocol.NewWriter(tagAddEdge)
		keyCodec.Encode(wr, src)
		keyCodec.Encode(wr, dst)
		edgeCodec.Encode(wr, value)
		return wr.Bytes()
	})
}

// UpsertEdge creates or overwrites the directed edge src→dst, failing
// only if either node is absent.
func (g *Graph[K, NV, EV]) UpsertEdge(src, dst K, value EV) error {
	if _, ok := g.nodes[src]; !ok {
		return fmt.Errorf("%w: graph node %v does not exist", durable.ErrInvalidArgument, src)
	}
	if _, ok := g.nodes[dst]; !ok {
		return fmt.Errorf("%w: graph node %v does not exist", durable.ErrInvalidArgument, dst)
	}
	g.addEdgeInternal(src, dst, value)
	keyCodec, edgeCodec := g.keyCodec, g.edgeCodec
	return g.w.Append(func() []byte {
		wr := protocol.NewWriter(tagUpsertEdge)
		keyCodec.Encode(wr, src)
		keyCodec.Encode(wr, dst)
		edgeCodec.Encode(wr, value)
		return wr.Bytes()
	})
}

// RemoveEdge deletes the directed edge src→dst, returning false if it
// was not present.
func (g *Graph[K, NV, EV]) RemoveEdge(src, dst K) (bool, error) {
	if !g.removeEdgeInternal(src, dst) {
		return false, nil
	}
	keyCodec := g.keyCodec
	if err := g.w.Append(func() []byte {
		wr := protocol.NewWriter(tagRemoveEdge)
		keyCodec.Encode(wr, src)
		keyCodec.Encode(wr, dst)
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// HasNode reports whether key exists.
func (g *Graph[K, NV, EV]) HasNode(key K) bool {
	_, ok := g.nodes[key]
	return ok
}

// NodeValue returns key's value.
func (g *Graph[K, NV, EV]) NodeValue(key K) (NV, bool) {
	v, ok := g.nodes[key]
	return v, ok
}

// EdgeValue returns the value of the directed edge src→dst.
func (g *Graph[K, NV, EV]) EdgeValue(src, dst K) (EV, bool) {
	m, ok := g.outgoing[src]
	if !ok {
		var z EV
		return z, false
	}
	v, ok := m[dst]
	return v, ok
}

// Successors returns every node that src has an outgoing edge to.
func (g *Graph[K, NV, EV]) Successors(src K) []K {
	m, ok := g.outgoing[src]
	if !ok {
		return nil
	}
	out := make([]K, 0, len(m))
	for dst := range m {
		out = append(out, dst)
	}
	return out
}

// Predecessors returns every node that has an outgoing edge to dst.
func (g *Graph[K, NV, EV]) Predecessors(dst K) []K {
	m, ok := g.incoming[dst]
	if !ok {
		return nil
	}
	out := make([]K, 0, len(m))
	for src := range m {
		out = append(out, src)
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph[K, NV, EV]) NodeCount() int { return len(g.nodes) }
