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
	"fmt"
	"iter"
	"time"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

const (
	collTagSnapshot     uint32 = 0
	collTagClearAll     uint32 = 1
	collTagClearBuffer  uint32 = 2
	collTagRemoveBuffer uint32 = 3
	collTagSetWindow    uint32 = 4
	collTagEnqueueItem  uint32 = 5
	collTagDequeueItem  uint32 = 6
)

type windowBucket[V comparable] struct {
	window int64
	items  []timedItem[V]
}

// Collection is a durable map of independently-windowed time buffers,
// each keyed by K and lazily created on first use (spec §4.9).
type Collection[K comparable, V comparable] struct {
	keyCodec      protocol.Codec[K]
	valCodec      protocol.Codec[V]
	defaultWindow int64
	now           TimeProvider
	buffers       map[K]*windowBucket[V]
	order         []K
	w             durable.LogWriter
}

// NewCollection returns an empty Collection. defaultWindow is used for
// buffers implicitly created by EnqueueItem. now may be nil, in which
// case time.Now().Unix() is used.
func NewCollection[K comparable, V comparable](keyCodec protocol.Codec[K], valCodec protocol.Codec[V], defaultWindow int64, now TimeProvider) *Collection[K, V] {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	if defaultWindow < 0 {
		defaultWindow = 0
	}
	return &Collection[K, V]{keyCodec: keyCodec, valCodec: valCodec, defaultWindow: defaultWindow, now: now, buffers: make(map[K]*windowBucket[V])}
}

// Reset implements durable.StateMachine.
func (c *Collection[K, V]) Reset(w durable.LogWriter) {
	c.w = w
	c.buffers = make(map[K]*windowBucket[V])
	c.order = nil
}

func (c *Collection[K, V]) removeKey(k K) {
	delete(c.buffers, k)
	for i, cur := range c.order {
		if cur == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Collection[K, V]) ensureBucket(k K, window int64) *windowBucket[V] {
	if b, ok := c.buffers[k]; ok {
		return b
	}
	b := &windowBucket[V]{window: window}
	c.buffers[k] = b
	c.order = append(c.order, k)
	return b
}

func purgeBucket[V comparable](b *windowBucket[V], asOf int64) {
	cutoff := asOf - b.window
	i := 0
	for i < len(b.items) && b.items[i].ts < cutoff {
		i++
	}
	if i > 0 {
		b.items = append([]timedItem[V]{}, b.items[i:]...)
	}
}

// Apply implements durable.StateMachine.
func (c *Collection[K, V]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	ver, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if ver != protocol.CurrentVersion {
		return fmt.Errorf("%w: time window collection entry version %d", durable.ErrUnsupportedVersion, ver)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case collTagClearAll:
		for _, b := range c.buffers {
			b.items = nil
		}
	case collTagClearBuffer:
		k, err := c.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		if b, ok := c.buffers[k]; ok {
			b.items = nil
		}
	case collTagRemoveBuffer:
		k, err := c.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		c.removeKey(k)
	case collTagSetWindow:
		k, err := c.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		window, err := r.ReadVarint()
		if err != nil {
			return err
		}
		b := c.ensureBucket(k, window)
		b.window = window
		purgeBucket(b, c.now())
	case collTagEnqueueItem:
		k, err := c.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		ts, err := r.ReadVarint()
		if err != nil {
			return err
		}
		v, err := c.valCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		b := c.ensureBucket(k, c.defaultWindow)
		purgeBucket(b, ts)
		b.items = append(b.items, timedItem[V]{ts: ts, value: v})
	case collTagDequeueItem:
		k, err := c.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		b, ok := c.buffers[k]
		if !ok || len(b.items) == 0 {
			return fmt.Errorf("%w: replayed dequeue on missing or empty time window buffer %v", durable.ErrInvalidOperation, k)
		}
		b.items = b.items[1:]
	case collTagSnapshot:
		if err := c.applySnapshot(r); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: time window collection tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

func (c *Collection[K, V]) applySnapshot(r *protocol.Reader) error {
	c.buffers = make(map[K]*windowBucket[V])
	c.order = nil
	bufCount, err := r.ReadUvarint()
	if err != nil {
		return err
	}
	for i := uint64(0); i < bufCount; i++ {
		k, err := c.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		window, err := r.ReadVarint()
		if err != nil {
			return err
		}
		itemCount, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		b := c.ensureBucket(k, window)
		b.window = window
		for j := uint64(0); j < itemCount; j++ {
			ts, err := r.ReadVarint()
			if err != nil {
				return err
			}
			v, err := c.valCodec.Decode(r)
			if err != nil {
				return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
			}
			b.items = append(b.items, timedItem[V]{ts: ts, value: v})
		}
	}
	return nil
}

// AppendEntries implements durable.StateMachine; push-style, no-op.
func (c *Collection[K, V]) AppendEntries(durable.LogWriter) error { return nil }

// AppendSnapshot implements durable.StateMachine: buffer count, then per
// buffer (key, window, itemCount, (timestamp, value) pairs oldest→newest).
func (c *Collection[K, V]) AppendSnapshot(w durable.LogWriter) error {
	type snap struct {
		key    K
		window int64
		items  []timedItem[V]
	}
	snaps := make([]snap, 0, len(c.order))
	for _, k := range c.order {
		b := c.buffers[k]
		snaps = append(snaps, snap{key: k, window: b.window, items: append([]timedItem[V]{}, b.items...)})
	}
	keyCodec, valCodec := c.keyCodec, c.valCodec
	return w.Append(func() []byte {
		wr := protocol.NewWriter(collTagSnapshot)
		wr.WriteUvarint(uint64(len(snaps)))
		for _, s := range snaps {
			keyCodec.Encode(wr, s.key)
			wr.WriteVarint(s.window)
			wr.WriteUvarint(uint64(len(s.items)))
			for _, it := range s.items {
				wr.WriteVarint(it.ts)
				valCodec.Encode(wr, it.value)
			}
		}
		return wr.Bytes()
	})
}

// EnqueueItem appends v to k's buffer, lazily creating it at the
// collection's default window if absent, purging expired items first.
func (c *Collection[K, V]) EnqueueItem(k K, v V) error {
	ts := c.now()
	b := c.ensureBucket(k, c.defaultWindow)
	purgeBucket(b, ts)
	b.items = append(b.items, timedItem[V]{ts: ts, value: v})
	keyCodec, valCodec := c.keyCodec, c.valCodec
	return c.w.Append(func() []byte {
		wr := protocol.NewWriter(collTagEnqueueItem)
		keyCodec.Encode(wr, k)
		wr.WriteVarint(ts)
		valCodec.Encode(wr, v)
		return wr.Bytes()
	})
}

// TryDequeueItem removes and returns the oldest item from k's buffer,
// with ok false (and no log entry) if k is absent or its buffer is
// empty.
func (c *Collection[K, V]) TryDequeueItem(k K) (v V, ok bool, err error) {
	b, exists := c.buffers[k]
	if !exists || len(b.items) == 0 {
		return v, false, nil
	}
	v = b.items[0].value
	b.items = b.items[1:]
	keyCodec := c.keyCodec
	if err = c.w.Append(func() []byte {
		wr := protocol.NewWriter(collTagDequeueItem)
		keyCodec.Encode(wr, k)
		return wr.Bytes()
	}); err != nil {
		return v, true, err
	}
	return v, true, nil
}

// SetWindow resizes k's window, creating it if absent, and purges
// expired items as of now. Returns false (and produces no log entry) if
// the buffer already existed with this exact window.
func (c *Collection[K, V]) SetWindow(k K, seconds int64) (bool, error) {
	if seconds < 0 {
		return false, fmt.Errorf("%w: time window must be >= 0", durable.ErrInvalidArgument)
	}
	if b, ok := c.buffers[k]; ok && b.window == seconds {
		return false, nil
	}
	b := c.ensureBucket(k, seconds)
	b.window = seconds
	purgeBucket(b, c.now())
	keyCodec := c.keyCodec
	if err := c.w.Append(func() []byte {
		wr := protocol.NewWriter(collTagSetWindow)
		keyCodec.Encode(wr, k)
		wr.WriteVarint(seconds)
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// ClearBuffer empties k's buffer in place, keeping its window. No-op if
// k is absent or already empty.
func (c *Collection[K, V]) ClearBuffer(k K) error {
	b, ok := c.buffers[k]
	if !ok || len(b.items) == 0 {
		return nil
	}
	b.items = nil
	keyCodec := c.keyCodec
	return c.w.Append(func() []byte {
		wr := protocol.NewWriter(collTagClearBuffer)
		keyCodec.Encode(wr, k)
		return wr.Bytes()
	})
}

// RemoveBuffer deletes k's buffer entirely. No-op if k is absent.
func (c *Collection[K, V]) RemoveBuffer(k K) error {
	if _, ok := c.buffers[k]; !ok {
		return nil
	}
	c.removeKey(k)
	keyCodec := c.keyCodec
	return c.w.Append(func() []byte {
		wr := protocol.NewWriter(collTagRemoveBuffer)
		keyCodec.Encode(wr, k)
		return wr.Bytes()
	})
}

// ClearAll empties the contents of every buffer, keeping their keys and
// windows. No-op if the collection holds no buffers.
func (c *Collection[K, V]) ClearAll() error {
	if len(c.buffers) == 0 {
		return nil
	}
	for _, b := range c.buffers {
		b.items = nil
	}
	return c.w.Append(func() []byte { return protocol.NewWriter(collTagClearAll).Bytes() })
}

// Get returns a copy of k's items, oldest→newest, and whether k exists.
func (c *Collection[K, V]) Get(k K) ([]V, bool) {
	b, ok := c.buffers[k]
	if !ok {
		return nil, false
	}
	out := make([]V, len(b.items))
	for i, it := range b.items {
		out[i] = it.value
	}
	return out, true
}

// Keys returns every buffer key, in creation order.
func (c *Collection[K, V]) Keys() []K {
	return append([]K{}, c.order...)
}

// All iterates (key, items) pairs in buffer creation order.
func (c *Collection[K, V]) All() iter.Seq2[K, []V] {
	order := c.order
	return func(yield func(K, []V) bool) {
		for _, k := range order {
			b := c.buffers[k]
			out := make([]V, len(b.items))
			for i, it := range b.items {
				out[i] = it.value
			}
			if !yield(k, out) {
				return
			}
		}
	}
}
