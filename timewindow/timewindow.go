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

// Package timewindow is a durable FIFO buffer that evicts items older
// than a sliding window of whole seconds (spec §4.8). Eviction only
// happens as a side effect of Enqueue and SetWindow; reads never purge,
// so Count/All reflect exactly what the last mutation left behind.
package timewindow

import (
	"fmt"
	"iter"
	"time"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

const (
	tagClear     uint32 = 0
	tagSnapshot  uint32 = 1
	tagSetWindow uint32 = 2
	tagEnqueue   uint32 = 3
	tagDequeue   uint32 = 4
)

// TimeProvider yields the current time as whole Unix seconds. Tests
// inject a deterministic provider; production code leaves it nil and
// gets time.Now().Unix().
type TimeProvider func() int64

type timedItem[T any] struct {
	ts    int64
	value T
}

// Buffer is a durable time-windowed FIFO queue of T.
type Buffer[T comparable] struct {
	codec  protocol.Codec[T]
	window int64
	items  []timedItem[T]
	now    TimeProvider
	w      durable.LogWriter
}

// New returns an empty Buffer with the given window, in seconds. now
// may be nil, in which case time.Now().Unix() is used.
func New[T comparable](codec protocol.Codec[T], window int64, now TimeProvider) *Buffer[T] {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	if window < 0 {
		window = 0
	}
	return &Buffer[T]{codec: codec, window: window, now: now}
}

// Reset implements durable.StateMachine. The window is preserved across
// Reset, as it is a construction parameter like ring.Buffer's capacity.
func (b *Buffer[T]) Reset(w durable.LogWriter) {
	b.w = w
	b.items = nil
}

// Apply implements durable.StateMachine.
func (b *Buffer[T]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	ver, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if ver != protocol.CurrentVersion {
		return fmt.Errorf("%w: time window buffer entry version %d", durable.ErrUnsupportedVersion, ver)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case tagClear:
		b.items = nil
	case tagSetWindow:
		window, err := r.ReadVarint()
		if err != nil {
			return err
		}
		b.window = window
		b.purge(b.now())
	case tagEnqueue:
		ts, err := r.ReadVarint()
		if err != nil {
			return err
		}
		v, err := b.codec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		b.purge(ts)
		b.items = append(b.items, timedItem[T]{ts: ts, value: v})
	case tagDequeue:
		if len(b.items) == 0 {
			return fmt.Errorf("%w: replayed dequeue on empty time window buffer", durable.ErrInvalidOperation)
		}
		b.items = b.items[1:]
	case tagSnapshot:
		window, err := r.ReadVarint()
		if err != nil {
			return err
		}
		count, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		b.window = window
		b.items = make([]timedItem[T], 0, count)
		for i := uint64(0); i < count; i++ {
			ts, err := r.ReadVarint()
			if err != nil {
				return err
			}
			v, err := b.codec.Decode(r)
			if err != nil {
				return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
			}
			b.items = append(b.items, timedItem[T]{ts: ts, value: v})
		}
	default:
		return fmt.Errorf("%w: time window buffer tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

// purge drops every item older than asOf-window.
func (b *Buffer[T]) purge(asOf int64) {
	cutoff := asOf - b.window
	i := 0
	for i < len(b.items) && b.items[i].ts < cutoff {
		i++
	}
	if i > 0 {
		b.items = append([]timedItem[T]{}, b.items[i:]...)
	}
}

// AppendEntries implements durable.StateMachine; push-style, no-op.
func (b *Buffer[T]) AppendEntries(durable.LogWriter) error { return nil }

// AppendSnapshot implements durable.StateMachine: window, count, then
// (timestamp, value) pairs oldest→newest.
func (b *Buffer[T]) AppendSnapshot(w durable.LogWriter) error {
	items := append([]timedItem[T]{}, b.items...)
	window := b.window
	codec := b.codec
	return w.Append(func() []byte {
		wr := protocol.NewWriter(tagSnapshot)
		wr.WriteVarint(window)
		wr.WriteUvarint(uint64(len(items)))
		for _, it := range items {
			wr.WriteVarint(it.ts)
			codec.Encode(wr, it.value)
		}
		return wr.Bytes()
	})
}

// Window returns the current window, in seconds.
func (b *Buffer[T]) Window() int64 { return b.window }

// SetWindow changes the window and purges items that fall outside of it
// as of now. Returns false (and produces no log entry) if the window is
// unchanged.
func (b *Buffer[T]) SetWindow(seconds int64) (bool, error) {
	if seconds < 0 {
		return false, fmt.Errorf("%w: time window must be >= 0", durable.ErrInvalidArgument)
	}
	if seconds == b.window {
		return false, nil
	}
	b.window = seconds
	b.purge(b.now())
	if err := b.w.Append(func() []byte {
		wr := protocol.NewWriter(tagSetWindow)
		wr.WriteVarint(seconds)
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// Enqueue purges expired items as of now, then appends v with the
// current timestamp.
func (b *Buffer[T]) Enqueue(v T) error {
	ts := b.now()
	b.purge(ts)
	b.items = append(b.items, timedItem[T]{ts: ts, value: v})
	codec := b.codec
	return b.w.Append(func() []byte {
		wr := protocol.NewWriter(tagEnqueue)
		wr.WriteVarint(ts)
		codec.Encode(wr, v)
		return wr.Bytes()
	})
}

// TryDequeue removes and returns the oldest item, with ok false (and no
// log entry) if the buffer was empty. Dequeue does not purge.
func (b *Buffer[T]) TryDequeue() (v T, ok bool, err error) {
	if len(b.items) == 0 {
		return v, false, nil
	}
	v = b.items[0].value
	b.items = b.items[1:]
	if err = b.w.Append(func() []byte { return protocol.NewWriter(tagDequeue).Bytes() }); err != nil {
		return v, true, err
	}
	return v, true, nil
}

// TryPeek returns the oldest item without removing it.
func (b *Buffer[T]) TryPeek() (v T, ok bool) {
	if len(b.items) == 0 {
		return v, false
	}
	return b.items[0].value, true
}

// Count returns the number of stored items, without purging.
func (b *Buffer[T]) Count() int { return len(b.items) }

// Clear empties the buffer. A Clear on an already-empty buffer is a
// no-op.
func (b *Buffer[T]) Clear() error {
	if len(b.items) == 0 {
		return nil
	}
	b.items = nil
	return b.w.Append(func() []byte { return protocol.NewWriter(tagClear).Bytes() })
}

// All iterates oldest→newest, without purging.
func (b *Buffer[T]) All() iter.Seq[T] {
	items := b.items
	return func(yield func(T) bool) {
		for _, it := range items {
			if !yield(it.value) {
				return
			}
		}
	}
}
