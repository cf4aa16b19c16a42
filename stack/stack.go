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

// Package stack is a durable LIFO stack (spec §4.2). It follows the
// push/log-on-mutate policy: Push and Pop each append one command entry
// synchronously as they mutate, the same discipline
// launix-de-memcp/storage/shard.go uses for its insert delta (mutate in
// memory first, let the log catch up second).
package stack

import (
	"fmt"
	"iter"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

const (
	tagClear    uint32 = 0
	tagSnapshot uint32 = 1
	tagPush     uint32 = 2
	tagPop      uint32 = 3
)

// Stack is a durable LIFO stack of T.
type Stack[T any] struct {
	codec protocol.Codec[T]
	items []T // items[0] is the bottom, items[len-1] is the top
	w     durable.LogWriter
}

// New returns a Stack using codec to encode/decode its elements.
func New[T any](codec protocol.Codec[T]) *Stack[T] {
	return &Stack[T]{codec: codec}
}

// Reset implements durable.StateMachine.
func (s *Stack[T]) Reset(w durable.LogWriter) {
	s.w = w
	s.items = nil
}

// Apply implements durable.StateMachine.
func (s *Stack[T]) Apply(entry []byte) error {
	r := protocol.NewReader(entry)
	v, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if v != protocol.CurrentVersion {
		return fmt.Errorf("%w: stack entry version %d", durable.ErrUnsupportedVersion, v)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case tagClear:
		s.items = nil
	case tagSnapshot:
		count, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		items := make([]T, 0, count)
		for i := uint64(0); i < count; i++ {
			v, err := s.codec.Decode(r)
			if err != nil {
				return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
			}
			items = append(items, v)
		}
		s.items = items
	case tagPush:
		v, err := s.codec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		s.items = append(s.items, v)
	case tagPop:
		if len(s.items) == 0 {
			return fmt.Errorf("%w: replayed pop on empty stack", durable.ErrInvalidOperation)
		}
		s.items = s.items[:len(s.items)-1]
	default:
		return fmt.Errorf("%w: stack tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

// AppendEntries implements durable.StateMachine. Stack is push-style, so
// there is nothing pending to flush.
func (s *Stack[T]) AppendEntries(durable.LogWriter) error { return nil }

// AppendSnapshot implements durable.StateMachine: it writes count then
// every element bottom-to-top so replay can push them back in stored
// order and recover the exact LIFO layout (spec §4.2).
func (s *Stack[T]) AppendSnapshot(w durable.LogWriter) error {
	items := s.items
	codec := s.codec
	return w.Append(func() []byte {
		wr := protocol.NewWriter(tagSnapshot)
		wr.WriteUvarint(uint64(len(items)))
		for _, v := range items {
			codec.Encode(wr, v)
		}
		return wr.Bytes()
	})
}

// Push appends v onto the top of the stack.
func (s *Stack[T]) Push(v T) error {
	s.items = append(s.items, v)
	codec := s.codec
	return s.w.Append(func() []byte {
		wr := protocol.NewWriter(tagPush)
		codec.Encode(wr, v)
		return wr.Bytes()
	})
}

// Pop removes and returns the top element, failing with
// durable.ErrInvalidOperation if the stack is empty.
func (s *Stack[T]) Pop() (T, error) {
	var zero T
	if len(s.items) == 0 {
		return zero, fmt.Errorf("%w: pop on empty stack", durable.ErrInvalidOperation)
	}
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	if err := s.w.Append(func() []byte { return protocol.NewWriter(tagPop).Bytes() }); err != nil {
		return v, err
	}
	return v, nil
}

// TryPop is the non-throwing variant of Pop; ok is false if the stack was
// empty, in which case no log entry is produced (spec §8 invariant 4).
func (s *Stack[T]) TryPop() (v T, ok bool, err error) {
	if len(s.items) == 0 {
		return v, false, nil
	}
	v, err = s.Pop()
	return v, true, err
}

// Peek returns the top element without removing it.
func (s *Stack[T]) Peek() (T, error) {
	var zero T
	if len(s.items) == 0 {
		return zero, fmt.Errorf("%w: peek on empty stack", durable.ErrInvalidOperation)
	}
	return s.items[len(s.items)-1], nil
}

// TryPeek is the non-throwing variant of Peek.
func (s *Stack[T]) TryPeek() (T, bool) {
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// Count returns the number of elements currently on the stack.
func (s *Stack[T]) Count() int { return len(s.items) }

// Clear empties the stack. A Clear on an already-empty stack is a no-op
// and produces no log entry (spec §8 invariant 4).
func (s *Stack[T]) Clear() error {
	if len(s.items) == 0 {
		return nil
	}
	s.items = nil
	return s.w.Append(func() []byte { return protocol.NewWriter(tagClear).Bytes() })
}

// All iterates top-to-bottom, matching spec §4.2's "iterate top→bottom".
func (s *Stack[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := len(s.items) - 1; i >= 0; i-- {
			if !yield(s.items[i]) {
				return
			}
		}
	}
}
