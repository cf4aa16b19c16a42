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

package ring

import (
	"fmt"
	"iter"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

// Collection command tags are numbered independently from Buffer's; the
// two structures reserve tag 0/1 for different operations (Snapshot is
// 0 here, Clear is 0 on the single buffer).
const (
	collTagSnapshot     uint32 = 0
	collTagClearAll     uint32 = 1
	collTagClearBuffer  uint32 = 2
	collTagRemoveBuffer uint32 = 3
	collTagSetCapacity  uint32 = 4
	collTagEnqueueItem  uint32 = 5
	collTagDequeueItem  uint32 = 6
)

type bucket[V comparable] struct {
	capacity int
	buf      []V
	head     int
	count    int
}

func newBucket[V comparable](capacity int) *bucket[V] {
	return &bucket[V]{capacity: capacity, buf: make([]V, capacity)}
}

func (b *bucket[V]) itemsOldestToNewest() []V {
	out := make([]V, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.buf[(b.head+i)%len(b.buf)]
	}
	return out
}

func (b *bucket[V]) resize(capacity int) {
	items := b.itemsOldestToNewest()
	if capacity < len(items) {
		items = items[len(items)-capacity:]
	}
	newBuf := make([]V, capacity)
	copy(newBuf, items)
	b.buf = newBuf
	b.capacity = capacity
	b.head = 0
	b.count = len(items)
}

func (b *bucket[V]) enqueue(v V) {
	if b.count == b.capacity {
		b.buf[b.head] = v
		b.head = (b.head + 1) % b.capacity
		return
	}
	idx := (b.head + b.count) % b.capacity
	b.buf[idx] = v
	b.count++
}

func (b *bucket[V]) dequeue() V {
	v := b.buf[b.head]
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	return v
}

// Collection is a durable map of independently-capacitied ring buffers,
// each keyed by K and lazily created on first use (spec §4.7).
type Collection[K comparable, V comparable] struct {
	keyCodec        protocol.Codec[K]
	valCodec        protocol.Codec[V]
	defaultCapacity int
	buffers         map[K]*bucket[V]
	order           []K
	w               durable.LogWriter
}

// NewCollection returns an empty Collection. defaultCapacity is used for
// buffers implicitly created by EnqueueItem; it must be at least 1.
func NewCollection[K comparable, V comparable](keyCodec protocol.Codec[K], valCodec protocol.Codec[V], defaultCapacity int) *Collection[K, V] {
	if defaultCapacity < 1 {
		defaultCapacity = 1
	}
	return &Collection[K, V]{keyCodec: keyCodec, valCodec: valCodec, defaultCapacity: defaultCapacity, buffers: make(map[K]*bucket[V])}
}

// Reset implements durable.StateMachine.
func (c *Collection[K, V]) Reset(w durable.LogWriter) {
	c.w = w
	c.buffers = make(map[K]*bucket[V])
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

// Apply implements durable.StateMachine.
func (c *Collection[K, V]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	ver, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if ver != protocol.CurrentVersion {
		return fmt.Errorf("%w: ring collection entry version %d", durable.ErrUnsupportedVersion, ver)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case collTagClearAll:
		for _, b := range c.buffers {
			b.head, b.count = 0, 0
		}
	case collTagClearBuffer:
		k, err := c.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		if b, ok := c.buffers[k]; ok {
			b.head, b.count = 0, 0
		}
	case collTagRemoveBuffer:
		k, err := c.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		c.removeKey(k)
	case collTagSetCapacity:
		k, capacity, err := c.decodeKeyCapacity(r)
		if err != nil {
			return err
		}
		c.ensureBucket(k, capacity).resize(capacity)
	case collTagEnqueueItem:
		k, v, err := c.decodeKV(r)
		if err != nil {
			return err
		}
		c.ensureBucket(k, c.defaultCapacity).enqueue(v)
	case collTagDequeueItem:
		k, err := c.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		b, ok := c.buffers[k]
		if !ok || b.count == 0 {
			return fmt.Errorf("%w: replayed dequeue on missing or empty ring buffer %v", durable.ErrInvalidOperation, k)
		}
		b.dequeue()
	case collTagSnapshot:
		if err := c.applySnapshot(r); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: ring collection tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

func (c *Collection[K, V]) applySnapshot(r *protocol.Reader) error {
	c.buffers = make(map[K]*bucket[V])
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
		capacity, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		itemCount, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		b := c.ensureBucket(k, int(capacity))
		b.resize(int(capacity))
		for j := uint64(0); j < itemCount; j++ {
			v, err := c.valCodec.Decode(r)
			if err != nil {
				return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
			}
			b.enqueue(v)
		}
	}
	return nil
}

func (c *Collection[K, V]) decodeKV(r *protocol.Reader) (K, V, error) {
	k, err := c.keyCodec.Decode(r)
	if err != nil {
		var zk K
		var zv V
		return zk, zv, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	v, err := c.valCodec.Decode(r)
	if err != nil {
		var zv V
		return k, zv, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	return k, v, nil
}

func (c *Collection[K, V]) decodeKeyCapacity(r *protocol.Reader) (K, int, error) {
	k, err := c.keyCodec.Decode(r)
	if err != nil {
		var zk K
		return zk, 0, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	capacity, err := r.ReadUvarint()
	if err != nil {
		return k, 0, err
	}
	return k, int(capacity), nil
}

func (c *Collection[K, V]) ensureBucket(k K, capacity int) *bucket[V] {
	if b, ok := c.buffers[k]; ok {
		return b
	}
	b := newBucket[V](capacity)
	c.buffers[k] = b
	c.order = append(c.order, k)
	return b
}

// AppendEntries implements durable.StateMachine; push-style, no-op.
func (c *Collection[K, V]) AppendEntries(durable.LogWriter) error { return nil }

// AppendSnapshot implements durable.StateMachine: buffer count, then per
// buffer (key, capacity, itemCount, items oldest→newest).
func (c *Collection[K, V]) AppendSnapshot(w durable.LogWriter) error {
	type snap struct {
		key   K
		cap   int
		items []V
	}
	snaps := make([]snap, 0, len(c.order))
	for _, k := range c.order {
		b := c.buffers[k]
		snaps = append(snaps, snap{key: k, cap: b.capacity, items: b.itemsOldestToNewest()})
	}
	keyCodec, valCodec := c.keyCodec, c.valCodec
	return w.Append(func() []byte {
		wr := protocol.NewWriter(collTagSnapshot)
		wr.WriteUvarint(uint64(len(snaps)))
		for _, s := range snaps {
			keyCodec.Encode(wr, s.key)
			wr.WriteUvarint(uint64(s.cap))
			wr.WriteUvarint(uint64(len(s.items)))
			for _, v := range s.items {
				valCodec.Encode(wr, v)
			}
		}
		return wr.Bytes()
	})
}

// EnqueueItem appends v to k's buffer, lazily creating it at the
// collection's default capacity if absent.
func (c *Collection[K, V]) EnqueueItem(k K, v V) error {
	c.ensureBucket(k, c.defaultCapacity).enqueue(v)
	keyCodec, valCodec := c.keyCodec, c.valCodec
	return c.w.Append(func() []byte {
		wr := protocol.NewWriter(collTagEnqueueItem)
		keyCodec.Encode(wr, k)
		valCodec.Encode(wr, v)
		return wr.Bytes()
	})
}

// TryDequeueItem removes and returns the oldest item from k's buffer,
// with ok false (and no log entry) if k is absent or its buffer is
// empty.
func (c *Collection[K, V]) TryDequeueItem(k K) (v V, ok bool, err error) {
	b, exists := c.buffers[k]
	if !exists || b.count == 0 {
		return v, false, nil
	}
	v = b.dequeue()
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

// SetCapacity resizes k's buffer, creating it if absent. Returns false
// (and produces no log entry) if the buffer already existed with this
// exact capacity. capacity must be at least 1.
func (c *Collection[K, V]) SetCapacity(k K, capacity int) (bool, error) {
	if capacity < 1 {
		return false, fmt.Errorf("%w: ring buffer capacity must be >= 1", durable.ErrInvalidArgument)
	}
	if b, ok := c.buffers[k]; ok && b.capacity == capacity {
		return false, nil
	}
	c.ensureBucket(k, capacity).resize(capacity)
	keyCodec := c.keyCodec
	if err := c.w.Append(func() []byte {
		wr := protocol.NewWriter(collTagSetCapacity)
		keyCodec.Encode(wr, k)
		wr.WriteUvarint(uint64(capacity))
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// ClearBuffer empties k's buffer in place, keeping its capacity. No-op
// if k is absent or already empty.
func (c *Collection[K, V]) ClearBuffer(k K) error {
	b, ok := c.buffers[k]
	if !ok || b.count == 0 {
		return nil
	}
	b.head, b.count = 0, 0
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
// capacities. No-op if the collection holds no buffers.
func (c *Collection[K, V]) ClearAll() error {
	if len(c.buffers) == 0 {
		return nil
	}
	for _, b := range c.buffers {
		b.head, b.count = 0, 0
	}
	return c.w.Append(func() []byte { return protocol.NewWriter(collTagClearAll).Bytes() })
}

// Get returns a copy of k's items, oldest→newest, and whether k exists.
func (c *Collection[K, V]) Get(k K) ([]V, bool) {
	b, ok := c.buffers[k]
	if !ok {
		return nil, false
	}
	return b.itemsOldestToNewest(), true
}

// Capacity returns k's buffer capacity and whether k exists.
func (c *Collection[K, V]) Capacity(k K) (int, bool) {
	b, ok := c.buffers[k]
	if !ok {
		return 0, false
	}
	return b.capacity, true
}

// Count returns k's item count and whether k exists.
func (c *Collection[K, V]) Count(k K) (int, bool) {
	b, ok := c.buffers[k]
	if !ok {
		return 0, false
	}
	return b.count, true
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
			if !yield(k, c.buffers[k].itemsOldestToNewest()) {
				return
			}
		}
	}
}
