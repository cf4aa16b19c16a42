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

// Package lookup holds the three durable K→V(s) lookup variants from spec
// §4.5: List (duplicates kept, insertion order), Set (unique, unordered)
// and OrderedSet (unique, insertion order). Each key's bucket is stored in
// an internal/nlrmap.Map, the adapted launix-de-memcp read-optimized map.
package lookup

import (
	"cmp"
	"fmt"
	"iter"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/nlrmap"
	"github.com/launix-de/durablestatemachines/protocol"
)

const (
	tagClear      uint32 = 0
	tagSnapshot   uint32 = 1
	tagAdd        uint32 = 2
	tagRemoveKey  uint32 = 3
	tagRemoveItem uint32 = 4
)

type listBucket[K cmp.Ordered, V any] struct {
	key    K
	values []V
}

func (b listBucket[K, V]) GetKey() K { return b.key }

// ListLookup maps K to an ordered list of V with duplicates allowed.
// Removing a key's last item deletes the key.
type ListLookup[K cmp.Ordered, V comparable] struct {
	keyCodec protocol.Codec[K]
	valCodec protocol.Codec[V]
	m        *nlrmap.Map[listBucket[K, V], K]
	w        durable.LogWriter
}

// NewList returns an empty ListLookup.
func NewList[K cmp.Ordered, V comparable](keyCodec protocol.Codec[K], valCodec protocol.Codec[V]) *ListLookup[K, V] {
	return &ListLookup[K, V]{keyCodec: keyCodec, valCodec: valCodec, m: nlrmap.New[listBucket[K, V], K]()}
}

// Reset implements durable.StateMachine.
func (l *ListLookup[K, V]) Reset(w durable.LogWriter) {
	l.w = w
	l.m = nlrmap.New[listBucket[K, V], K]()
}

// Apply implements durable.StateMachine.
func (l *ListLookup[K, V]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	ver, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if ver != protocol.CurrentVersion {
		return fmt.Errorf("%w: list lookup entry version %d", durable.ErrUnsupportedVersion, ver)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case tagClear:
		l.m = nlrmap.New[listBucket[K, V], K]()
	case tagSnapshot:
		l.m = nlrmap.New[listBucket[K, V], K]()
		keyCount, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		for i := uint64(0); i < keyCount; i++ {
			k, err := l.keyCodec.Decode(r)
			if err != nil {
				return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
			}
			valCount, err := r.ReadUvarint()
			if err != nil {
				return err
			}
			values := make([]V, 0, valCount)
			for j := uint64(0); j < valCount; j++ {
				v, err := l.valCodec.Decode(r)
				if err != nil {
					return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
				}
				values = append(values, v)
			}
			l.m.Set(&listBucket[K, V]{key: k, values: values})
		}
	case tagAdd:
		k, v, err := l.decodeKV(r)
		if err != nil {
			return err
		}
		l.addInternal(k, v)
	case tagRemoveKey:
		k, err := l.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		l.m.Remove(k)
	case tagRemoveItem:
		k, v, err := l.decodeKV(r)
		if err != nil {
			return err
		}
		l.removeItemInternal(k, v)
	default:
		return fmt.Errorf("%w: list lookup tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

func (l *ListLookup[K, V]) decodeKV(r *protocol.Reader) (K, V, error) {
	k, err := l.keyCodec.Decode(r)
	if err != nil {
		var zk K
		var zv V
		return zk, zv, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	v, err := l.valCodec.Decode(r)
	if err != nil {
		var zv V
		return k, zv, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	return k, v, nil
}

func (l *ListLookup[K, V]) addInternal(k K, v V) {
	if b := l.m.Get(k); b != nil {
		values := append(append([]V{}, b.values...), v)
		l.m.Set(&listBucket[K, V]{key: k, values: values})
		return
	}
	l.m.Set(&listBucket[K, V]{key: k, values: []V{v}})
}

// removeItemInternal removes the first occurrence of v under k, deleting
// the key if that was its last value. Returns whether anything changed.
func (l *ListLookup[K, V]) removeItemInternal(k K, v V) bool {
	b := l.m.Get(k)
	if b == nil {
		return false
	}
	idx := -1
	for i, cur := range b.values {
		if cur == v {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	if len(b.values) == 1 {
		l.m.Remove(k)
		return true
	}
	values := make([]V, 0, len(b.values)-1)
	values = append(values, b.values[:idx]...)
	values = append(values, b.values[idx+1:]...)
	l.m.Set(&listBucket[K, V]{key: k, values: values})
	return true
}

// AppendEntries implements durable.StateMachine; push-style, no-op.
func (l *ListLookup[K, V]) AppendEntries(durable.LogWriter) error { return nil }

// AppendSnapshot implements durable.StateMachine: keyCount, then per key
// (key, valueCount, values in insertion order).
func (l *ListLookup[K, V]) AppendSnapshot(w durable.LogWriter) error {
	buckets := l.m.GetAll()
	keyCodec, valCodec := l.keyCodec, l.valCodec
	return w.Append(func() []byte {
		wr := protocol.NewWriter(tagSnapshot)
		wr.WriteUvarint(uint64(len(buckets)))
		for _, b := range buckets {
			keyCodec.Encode(wr, b.key)
			wr.WriteUvarint(uint64(len(b.values)))
			for _, v := range b.values {
				valCodec.Encode(wr, v)
			}
		}
		return wr.Bytes()
	})
}

// Add appends v under k.
func (l *ListLookup[K, V]) Add(k K, v V) error {
	l.addInternal(k, v)
	keyCodec, valCodec := l.keyCodec, l.valCodec
	return l.w.Append(func() []byte {
		wr := protocol.NewWriter(tagAdd)
		keyCodec.Encode(wr, k)
		valCodec.Encode(wr, v)
		return wr.Bytes()
	})
}

// AddRange appends every value in vs under k, logging one Add entry per
// item (spec §4.5).
func (l *ListLookup[K, V]) AddRange(k K, vs []V) error {
	for _, v := range vs {
		if err := l.Add(k, v); err != nil {
			return err
		}
	}
	return nil
}

// RemoveKey deletes k and all of its values.
func (l *ListLookup[K, V]) RemoveKey(k K) error {
	if l.m.Get(k) == nil {
		return nil
	}
	l.m.Remove(k)
	keyCodec := l.keyCodec
	return l.w.Append(func() []byte {
		wr := protocol.NewWriter(tagRemoveKey)
		keyCodec.Encode(wr, k)
		return wr.Bytes()
	})
}

// RemoveItem removes the first occurrence of v under k, deleting k if
// that was its last value. Returns whether anything was removed.
func (l *ListLookup[K, V]) RemoveItem(k K, v V) (bool, error) {
	if !l.removeItemInternal(k, v) {
		return false, nil
	}
	keyCodec, valCodec := l.keyCodec, l.valCodec
	if err := l.w.Append(func() []byte {
		wr := protocol.NewWriter(tagRemoveItem)
		keyCodec.Encode(wr, k)
		valCodec.Encode(wr, v)
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// Contains reports whether k has any values.
func (l *ListLookup[K, V]) Contains(k K) bool { return l.m.Get(k) != nil }

// Get returns a copy of k's values, or nil if k is absent.
func (l *ListLookup[K, V]) Get(k K) []V {
	b := l.m.Get(k)
	if b == nil {
		return nil
	}
	return append([]V{}, b.values...)
}

// Keys returns every key with at least one value.
func (l *ListLookup[K, V]) Keys() []K {
	buckets := l.m.GetAll()
	keys := make([]K, len(buckets))
	for i, b := range buckets {
		keys[i] = b.key
	}
	return keys
}

// Count returns the number of distinct keys.
func (l *ListLookup[K, V]) Count() int { return l.m.Len() }

// Clear removes every key.
func (l *ListLookup[K, V]) Clear() error {
	if l.m.Len() == 0 {
		return nil
	}
	l.m = nlrmap.New[listBucket[K, V], K]()
	return l.w.Append(func() []byte { return protocol.NewWriter(tagClear).Bytes() })
}

// All iterates (key, values) pairs.
func (l *ListLookup[K, V]) All() iter.Seq2[K, []V] {
	buckets := l.m.GetAll()
	return func(yield func(K, []V) bool) {
		for _, b := range buckets {
			if !yield(b.key, b.values) {
				return
			}
		}
	}
}
