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

// Package priorityqueue is a durable min-priority-queue (spec §4.3),
// lowest priority value dequeues first. It is backed by a
// github.com/google/btree generic B-tree keyed by (priority, insertion
// sequence) rather than a hand-rolled binary heap, the way
// launix-de-memcp/storage/index.go keeps its delta index in a
// btree.BTreeG instead of a sorted slice it would have to shift on every
// insert.
package priorityqueue

import (
	"fmt"

	"github.com/google/btree"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

const (
	tagClear    uint32 = 0
	tagSnapshot uint32 = 1
	tagEnqueue  uint32 = 2
	tagDequeue  uint32 = 3
)

const btreeDegree = 32

type entry[T any] struct {
	priority float64
	seq      uint64
	value    T
}

func less[T any](a, b entry[T]) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

// PriorityQueue is a durable multiset of (element, priority) pairs.
type PriorityQueue[T any] struct {
	codec protocol.Codec[T]
	tree  *btree.BTreeG[entry[T]]
	seq   uint64
	w     durable.LogWriter
}

// New returns an empty PriorityQueue using codec for its elements.
func New[T any](codec protocol.Codec[T]) *PriorityQueue[T] {
	pq := &PriorityQueue[T]{codec: codec}
	pq.tree = btree.NewG(btreeDegree, less[T])
	return pq
}

// Reset implements durable.StateMachine.
func (pq *PriorityQueue[T]) Reset(w durable.LogWriter) {
	pq.w = w
	pq.tree = btree.NewG(btreeDegree, less[T])
	pq.seq = 0
}

// Apply implements durable.StateMachine.
func (pq *PriorityQueue[T]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	v, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if v != protocol.CurrentVersion {
		return fmt.Errorf("%w: priority queue entry version %d", durable.ErrUnsupportedVersion, v)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case tagClear:
		pq.tree = btree.NewG(btreeDegree, less[T])
	case tagSnapshot:
		pq.tree = btree.NewG(btreeDegree, less[T])
		pq.seq = 0
		count, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		for i := uint64(0); i < count; i++ {
			el, pri, err := decodePair(pq.codec, r)
			if err != nil {
				return err
			}
			pq.insert(el, pri)
		}
	case tagEnqueue:
		el, pri, err := decodePair(pq.codec, r)
		if err != nil {
			return err
		}
		pq.insert(el, pri)
	case tagDequeue:
		min, ok := pq.tree.Min()
		if !ok {
			return fmt.Errorf("%w: replayed dequeue on empty priority queue", durable.ErrInvalidOperation)
		}
		pq.tree.Delete(min)
	default:
		return fmt.Errorf("%w: priority queue tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

func decodePair[T any](codec protocol.Codec[T], r *protocol.Reader) (T, float64, error) {
	el, err := codec.Decode(r)
	if err != nil {
		var zero T
		return zero, 0, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	pri, err := r.ReadFloat64()
	if err != nil {
		var zero T
		return zero, 0, err
	}
	return el, pri, nil
}

func (pq *PriorityQueue[T]) insert(el T, pri float64) {
	pq.tree.ReplaceOrInsert(entry[T]{priority: pri, seq: pq.seq, value: el})
	pq.seq++
}

// AppendEntries implements durable.StateMachine; push-style, no-op.
func (pq *PriorityQueue[T]) AppendEntries(durable.LogWriter) error { return nil }

// AppendSnapshot implements durable.StateMachine: count then every
// (element, priority) pair in any order (spec §4.3).
func (pq *PriorityQueue[T]) AppendSnapshot(w durable.LogWriter) error {
	codec := pq.codec
	pairs := make([]entry[T], 0, pq.tree.Len())
	pq.tree.Ascend(func(e entry[T]) bool {
		pairs = append(pairs, e)
		return true
	})
	return w.Append(func() []byte {
		wr := protocol.NewWriter(tagSnapshot)
		wr.WriteUvarint(uint64(len(pairs)))
		for _, e := range pairs {
			codec.Encode(wr, e.value)
			wr.WriteFloat64(e.priority)
		}
		return wr.Bytes()
	})
}

// Enqueue adds el with priority pri. Lowest priority value dequeues
// first.
func (pq *PriorityQueue[T]) Enqueue(el T, pri float64) error {
	pq.insert(el, pri)
	codec := pq.codec
	return pq.w.Append(func() []byte {
		wr := protocol.NewWriter(tagEnqueue)
		codec.Encode(wr, el)
		wr.WriteFloat64(pri)
		return wr.Bytes()
	})
}

// Dequeue removes and returns the element with the lowest priority,
// failing with durable.ErrInvalidOperation if the queue is empty.
func (pq *PriorityQueue[T]) Dequeue() (T, error) {
	var zero T
	min, ok := pq.tree.Min()
	if !ok {
		return zero, fmt.Errorf("%w: dequeue on empty priority queue", durable.ErrInvalidOperation)
	}
	pq.tree.Delete(min)
	if err := pq.w.Append(func() []byte { return protocol.NewWriter(tagDequeue).Bytes() }); err != nil {
		return min.value, err
	}
	return min.value, nil
}

// TryDequeue is the non-throwing variant of Dequeue.
func (pq *PriorityQueue[T]) TryDequeue() (el T, pri float64, ok bool, err error) {
	min, found := pq.tree.Min()
	if !found {
		return el, 0, false, nil
	}
	el, err = pq.Dequeue()
	return el, min.priority, true, err
}

// Peek returns the lowest-priority element without removing it.
func (pq *PriorityQueue[T]) Peek() (T, error) {
	var zero T
	min, ok := pq.tree.Min()
	if !ok {
		return zero, fmt.Errorf("%w: peek on empty priority queue", durable.ErrInvalidOperation)
	}
	return min.value, nil
}

// TryPeek is the non-throwing variant of Peek.
func (pq *PriorityQueue[T]) TryPeek() (T, bool) {
	min, ok := pq.tree.Min()
	if !ok {
		var zero T
		return zero, false
	}
	return min.value, true
}

// Count returns the number of stored (element, priority) pairs.
func (pq *PriorityQueue[T]) Count() int { return pq.tree.Len() }

// Clear empties the queue. A Clear on an already-empty queue is a no-op.
func (pq *PriorityQueue[T]) Clear() error {
	if pq.tree.Len() == 0 {
		return nil
	}
	pq.tree = btree.NewG(btreeDegree, less[T])
	return pq.w.Append(func() []byte { return protocol.NewWriter(tagClear).Bytes() })
}
