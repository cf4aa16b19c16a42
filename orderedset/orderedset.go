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

// Package orderedset is a durable set of unique, comparable values that
// preserves insertion order (spec §4.4): an internal hash set gives O(1)
// average membership tests, and a parallel ordered slice gives O(n)
// ordered iteration, the same split launix-de-memcp/storage/shard.go uses
// between its main column storage (for scans) and its delta inserts (for
// recency).
package orderedset

import (
	"fmt"
	"iter"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

const (
	tagClear    uint32 = 0
	tagSnapshot uint32 = 1
	tagAdd      uint32 = 2
	tagRemove   uint32 = 3
)

// OrderedSet is a durable, insertion-ordered set of unique T.
type OrderedSet[T comparable] struct {
	codec   protocol.Codec[T]
	members map[T]int // value -> index into order
	order   []T
	w       durable.LogWriter
}

// New returns an empty OrderedSet using codec for its elements.
func New[T comparable](codec protocol.Codec[T]) *OrderedSet[T] {
	return &OrderedSet[T]{codec: codec, members: make(map[T]int)}
}

// Reset implements durable.StateMachine.
func (s *OrderedSet[T]) Reset(w durable.LogWriter) {
	s.w = w
	s.members = make(map[T]int)
	s.order = nil
}

// Apply implements durable.StateMachine.
func (s *OrderedSet[T]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	v, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if v != protocol.CurrentVersion {
		return fmt.Errorf("%w: ordered set entry version %d", durable.ErrUnsupportedVersion, v)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case tagClear:
		s.members = make(map[T]int)
		s.order = nil
	case tagSnapshot:
		count, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		s.members = make(map[T]int, count)
		s.order = make([]T, 0, count)
		for i := uint64(0); i < count; i++ {
			v, err := s.codec.Decode(r)
			if err != nil {
				return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
			}
			s.insert(v)
		}
	case tagAdd:
		v, err := s.codec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		s.insert(v)
	case tagRemove:
		v, err := s.codec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		s.delete(v)
	default:
		return fmt.Errorf("%w: ordered set tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

func (s *OrderedSet[T]) insert(v T) {
	if _, ok := s.members[v]; ok {
		return
	}
	s.members[v] = len(s.order)
	s.order = append(s.order, v)
}

func (s *OrderedSet[T]) delete(v T) {
	idx, ok := s.members[v]
	if !ok {
		return
	}
	delete(s.members, v)
	s.order = append(s.order[:idx], s.order[idx+1:]...)
	for i := idx; i < len(s.order); i++ {
		s.members[s.order[i]] = i
	}
}

// AppendEntries implements durable.StateMachine; push-style, no-op.
func (s *OrderedSet[T]) AppendEntries(durable.LogWriter) error { return nil }

// AppendSnapshot implements durable.StateMachine: count then every
// element in insertion order.
func (s *OrderedSet[T]) AppendSnapshot(w durable.LogWriter) error {
	codec := s.codec
	order := s.order
	return w.Append(func() []byte {
		wr := protocol.NewWriter(tagSnapshot)
		wr.WriteUvarint(uint64(len(order)))
		for _, v := range order {
			codec.Encode(wr, v)
		}
		return wr.Bytes()
	})
}

// Add inserts v if not already present, returning whether it was added.
func (s *OrderedSet[T]) Add(v T) (bool, error) {
	if _, ok := s.members[v]; ok {
		return false, nil
	}
	s.insert(v)
	codec := s.codec
	if err := s.w.Append(func() []byte {
		wr := protocol.NewWriter(tagAdd)
		codec.Encode(wr, v)
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// Remove deletes v if present, returning whether it was removed.
func (s *OrderedSet[T]) Remove(v T) (bool, error) {
	if _, ok := s.members[v]; !ok {
		return false, nil
	}
	s.delete(v)
	codec := s.codec
	if err := s.w.Append(func() []byte {
		wr := protocol.NewWriter(tagRemove)
		codec.Encode(wr, v)
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// Contains reports whether v is a member.
func (s *OrderedSet[T]) Contains(v T) bool {
	_, ok := s.members[v]
	return ok
}

// TryGetValue returns the stored copy of v (identical for comparable T,
// but mirrors the host-language API that distinguishes lookup-by-equality
// from identity) and whether it was present.
func (s *OrderedSet[T]) TryGetValue(v T) (T, bool) {
	if idx, ok := s.members[v]; ok {
		return s.order[idx], true
	}
	var zero T
	return zero, false
}

// CopyTo copies all elements, in insertion order, into dst starting at
// offset. dst must have at least offset+Count() capacity from offset.
func (s *OrderedSet[T]) CopyTo(dst []T, offset int) {
	copy(dst[offset:], s.order)
}

// Count returns the number of members.
func (s *OrderedSet[T]) Count() int { return len(s.order) }

// Clear empties the set. A Clear on an already-empty set is a no-op.
func (s *OrderedSet[T]) Clear() error {
	if len(s.order) == 0 {
		return nil
	}
	s.members = make(map[T]int)
	s.order = nil
	return s.w.Append(func() []byte { return protocol.NewWriter(tagClear).Bytes() })
}

// OrderedItems iterates members in insertion order.
func (s *OrderedSet[T]) OrderedItems() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, v := range s.order {
			if !yield(v) {
				return
			}
		}
	}
}
