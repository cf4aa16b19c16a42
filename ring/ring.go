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

// Package ring is a durable, fixed-capacity FIFO ring buffer (spec §4.6):
// enqueue onto a full buffer evicts the oldest item, and capacity resize
// preserves the newest items on shrink and the full contents on grow.
package ring

import (
	"fmt"
	"iter"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

const (
	tagClear       uint32 = 0
	tagSnapshot    uint32 = 1
	tagSetCapacity uint32 = 2
	tagEnqueue     uint32 = 3
	tagDequeue     uint32 = 4
)

// Buffer is a durable ring buffer of T.
type Buffer[T comparable] struct {
	codec protocol.Codec[T]
	buf   []T
	head  int
	count int
	w     durable.LogWriter
}

// New returns an empty Buffer with the given initial capacity, which
// must be at least 1.
func New[T comparable](codec protocol.Codec[T], capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{codec: codec, buf: make([]T, capacity)}
}

// Reset implements durable.StateMachine. Capacity is preserved across
// Reset; only content is cleared, since capacity is the structure's
// construction parameter and any durable SetCapacity entries will be
// replayed on top of it.
func (b *Buffer[T]) Reset(w durable.LogWriter) {
	b.w = w
	b.head = 0
	b.count = 0
}

// Apply implements durable.StateMachine.
func (b *Buffer[T]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	ver, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if ver != protocol.CurrentVersion {
		return fmt.Errorf("%w: ring buffer entry version %d", durable.ErrUnsupportedVersion, ver)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case tagClear:
		b.head, b.count = 0, 0
	case tagSetCapacity:
		c, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		b.resize(int(c))
	case tagEnqueue:
		v, err := b.codec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		b.enqueueInternal(v)
	case tagDequeue:
		if b.count == 0 {
			return fmt.Errorf("%w: replayed dequeue on empty ring buffer", durable.ErrInvalidOperation)
		}
		b.dequeueInternal()
	case tagSnapshot:
		count, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		capacity, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		b.buf = make([]T, capacity)
		b.head, b.count = 0, 0
		for i := uint64(0); i < count; i++ {
			v, err := b.codec.Decode(r)
			if err != nil {
				return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
			}
			b.enqueueInternal(v)
		}
	default:
		return fmt.Errorf("%w: ring buffer tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

func (b *Buffer[T]) itemsOldestToNewest() []T {
	out := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	return out
}

// resize applies SetCapacity semantics: on shrink, keep the newest
// capacity items; on grow, keep everything, laid out linearly from
// index 0 (spec §4.6).
func (b *Buffer[T]) resize(capacity int) {
	items := b.itemsOldestToNewest()
	if capacity < len(items) {
		items = items[len(items)-capacity:]
	}
	newBuf := make([]T, capacity)
	copy(newBuf, items)
	b.buf = newBuf
	b.head = 0
	b.count = len(items)
}

func (b *Buffer[T]) enqueueInternal(v T) {
	capacity := len(b.buf)
	if b.count == capacity {
		b.buf[b.head] = v
		b.head = (b.head + 1) % capacity
		return
	}
	idx := (b.head + b.count) % capacity
	b.buf[idx] = v
	b.count++
}

func (b *Buffer[T]) dequeueInternal() T {
	v := b.buf[b.head]
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	return v
}

// AppendEntries implements durable.StateMachine; push-style, no-op.
func (b *Buffer[T]) AppendEntries(durable.LogWriter) error { return nil }

// AppendSnapshot implements durable.StateMachine: count, then capacity,
// then items oldest→newest (spec §4.6).
func (b *Buffer[T]) AppendSnapshot(w durable.LogWriter) error {
	items := b.itemsOldestToNewest()
	capacity := len(b.buf)
	codec := b.codec
	return w.Append(func() []byte {
		wr := protocol.NewWriter(tagSnapshot)
		wr.WriteUvarint(uint64(len(items)))
		wr.WriteUvarint(uint64(capacity))
		for _, v := range items {
			codec.Encode(wr, v)
		}
		return wr.Bytes()
	})
}

// Capacity returns the buffer's current capacity.
func (b *Buffer[T]) Capacity() int { return len(b.buf) }

// Count returns the number of stored items.
func (b *Buffer[T]) Count() int { return b.count }

// IsEmpty reports whether the buffer holds no items.
func (b *Buffer[T]) IsEmpty() bool { return b.count == 0 }

// IsFull reports whether the buffer is at capacity.
func (b *Buffer[T]) IsFull() bool { return b.count == len(b.buf) }

// SetCapacity resizes the buffer, returning false (and producing no log
// entry) if capacity is unchanged. capacity must be at least 1.
func (b *Buffer[T]) SetCapacity(capacity int) (bool, error) {
	if capacity < 1 {
		return false, fmt.Errorf("%w: ring buffer capacity must be >= 1", durable.ErrInvalidArgument)
	}
	if capacity == len(b.buf) {
		return false, nil
	}
	b.resize(capacity)
	if err := b.w.Append(func() []byte {
		wr := protocol.NewWriter(tagSetCapacity)
		wr.WriteUvarint(uint64(capacity))
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// Enqueue adds item, evicting the oldest item first if the buffer is
// full.
func (b *Buffer[T]) Enqueue(item T) error {
	b.enqueueInternal(item)
	codec := b.codec
	return b.w.Append(func() []byte {
		wr := protocol.NewWriter(tagEnqueue)
		codec.Encode(wr, item)
		return wr.Bytes()
	})
}

// TryDequeue removes and returns the oldest item, with ok false (and no
// log entry) if the buffer was empty.
func (b *Buffer[T]) TryDequeue() (v T, ok bool, err error) {
	if b.count == 0 {
		return v, false, nil
	}
	v = b.dequeueInternal()
	if err = b.w.Append(func() []byte { return protocol.NewWriter(tagDequeue).Bytes() }); err != nil {
		return v, true, err
	}
	return v, true, nil
}

// Contains reports whether item is currently stored.
func (b *Buffer[T]) Contains(item T) bool {
	for i := 0; i < b.count; i++ {
		if b.buf[(b.head+i)%len(b.buf)] == item {
			return true
		}
	}
	return false
}

// CopyTo copies all items, oldest→newest, into dst starting at offset.
func (b *Buffer[T]) CopyTo(dst []T, offset int) {
	copy(dst[offset:], b.itemsOldestToNewest())
}

// DrainTo returns a copy of all items, oldest→newest, and clears the
// buffer.
func (b *Buffer[T]) DrainTo() ([]T, error) {
	items := b.itemsOldestToNewest()
	if err := b.Clear(); err != nil {
		return items, err
	}
	return items, nil
}

// Clear empties the buffer. A Clear on an already-empty buffer is a
// no-op.
func (b *Buffer[T]) Clear() error {
	if b.count == 0 {
		return nil
	}
	b.head, b.count = 0, 0
	return b.w.Append(func() []byte { return protocol.NewWriter(tagClear).Bytes() })
}

// All iterates oldest→newest.
func (b *Buffer[T]) All() iter.Seq[T] {
	items := b.itemsOldestToNewest()
	return func(yield func(T) bool) {
		for _, v := range items {
			if !yield(v) {
				return
			}
		}
	}
}
