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

package lookup

import (
	"cmp"
	"fmt"
	"iter"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/nlrmap"
	"github.com/launix-de/durablestatemachines/protocol"
)

type setBucket[K cmp.Ordered, V comparable] struct {
	key    K
	values map[V]struct{}
}

func (b setBucket[K, V]) GetKey() K { return b.key }

func (b setBucket[K, V]) clone() setBucket[K, V] {
	values := make(map[V]struct{}, len(b.values))
	for v := range b.values {
		values[v] = struct{}{}
	}
	return setBucket[K, V]{key: b.key, values: values}
}

// SetLookup maps K to a unique, unordered set of V. Removing a key's
// last item deletes the key.
type SetLookup[K cmp.Ordered, V comparable] struct {
	keyCodec protocol.Codec[K]
	valCodec protocol.Codec[V]
	m        *nlrmap.Map[setBucket[K, V], K]
	w        durable.LogWriter
}

// NewSet returns an empty SetLookup.
func NewSet[K cmp.Ordered, V comparable](keyCodec protocol.Codec[K], valCodec protocol.Codec[V]) *SetLookup[K, V] {
	return &SetLookup[K, V]{keyCodec: keyCodec, valCodec: valCodec, m: nlrmap.New[setBucket[K, V], K]()}
}

// Reset implements durable.StateMachine.
func (s *SetLookup[K, V]) Reset(w durable.LogWriter) {
	s.w = w
	s.m = nlrmap.New[setBucket[K, V], K]()
}

// Apply implements durable.StateMachine.
func (s *SetLookup[K, V]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	ver, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if ver != protocol.CurrentVersion {
		return fmt.Errorf("%w: set lookup entry version %d", durable.ErrUnsupportedVersion, ver)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case tagClear:
		s.m = nlrmap.New[setBucket[K, V], K]()
	case tagSnapshot:
		s.m = nlrmap.New[setBucket[K, V], K]()
		keyCount, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		for i := uint64(0); i < keyCount; i++ {
			k, err := s.keyCodec.Decode(r)
			if err != nil {
				return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
			}
			valCount, err := r.ReadUvarint()
			if err != nil {
				return err
			}
			values := make(map[V]struct{}, valCount)
			for j := uint64(0); j < valCount; j++ {
				v, err := s.valCodec.Decode(r)
				if err != nil {
					return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
				}
				values[v] = struct{}{}
			}
			s.m.Set(&setBucket[K, V]{key: k, values: values})
		}
	case tagAdd:
		k, v, err := s.decodeKV(r)
		if err != nil {
			return err
		}
		s.addInternal(k, v)
	case tagRemoveKey:
		k, err := s.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		s.m.Remove(k)
	case tagRemoveItem:
		k, v, err := s.decodeKV(r)
		if err != nil {
			return err
		}
		s.removeInternal(k, v)
	default:
		return fmt.Errorf("%w: set lookup tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

func (s *SetLookup[K, V]) decodeKV(r *protocol.Reader) (K, V, error) {
	k, err := s.keyCodec.Decode(r)
	if err != nil {
		var zk K
		var zv V
		return zk, zv, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	v, err := s.valCodec.Decode(r)
	if err != nil {
		var zv V
		return k, zv, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	return k, v, nil
}

func (s *SetLookup[K, V]) addInternal(k K, v V) bool {
	b := s.m.Get(k)
	if b == nil {
		s.m.Set(&setBucket[K, V]{key: k, values: map[V]struct{}{v: {}}})
		return true
	}
	if _, ok := b.values[v]; ok {
		return false
	}
	nb := b.clone()
	nb.values[v] = struct{}{}
	s.m.Set(&nb)
	return true
}

func (s *SetLookup[K, V]) removeInternal(k K, v V) bool {
	b := s.m.Get(k)
	if b == nil {
		return false
	}
	if _, ok := b.values[v]; !ok {
		return false
	}
	if len(b.values) == 1 {
		s.m.Remove(k)
		return true
	}
	nb := b.clone()
	delete(nb.values, v)
	s.m.Set(&nb)
	return true
}

// AppendEntries implements durable.StateMachine; push-style, no-op.
func (s *SetLookup[K, V]) AppendEntries(durable.LogWriter) error { return nil }

// AppendSnapshot implements durable.StateMachine.
func (s *SetLookup[K, V]) AppendSnapshot(w durable.LogWriter) error {
	buckets := s.m.GetAll()
	keyCodec, valCodec := s.keyCodec, s.valCodec
	return w.Append(func() []byte {
		wr := protocol.NewWriter(tagSnapshot)
		wr.WriteUvarint(uint64(len(buckets)))
		for _, b := range buckets {
			keyCodec.Encode(wr, b.key)
			wr.WriteUvarint(uint64(len(b.values)))
			for v := range b.values {
				valCodec.Encode(wr, v)
			}
		}
		return wr.Bytes()
	})
}

// Add inserts v under k, returning false if v was already present.
func (s *SetLookup[K, V]) Add(k K, v V) (bool, error) {
	if !s.addInternal(k, v) {
		return false, nil
	}
	keyCodec, valCodec := s.keyCodec, s.valCodec
	if err := s.w.Append(func() []byte {
		wr := protocol.NewWriter(tagAdd)
		keyCodec.Encode(wr, k)
		valCodec.Encode(wr, v)
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// RemoveKey deletes k and all of its values.
func (s *SetLookup[K, V]) RemoveKey(k K) error {
	if s.m.Get(k) == nil {
		return nil
	}
	s.m.Remove(k)
	keyCodec := s.keyCodec
	return s.w.Append(func() []byte {
		wr := protocol.NewWriter(tagRemoveKey)
		keyCodec.Encode(wr, k)
		return wr.Bytes()
	})
}

// Remove deletes v from k's set, deleting k if that was its last value.
func (s *SetLookup[K, V]) Remove(k K, v V) (bool, error) {
	if !s.removeInternal(k, v) {
		return false, nil
	}
	keyCodec, valCodec := s.keyCodec, s.valCodec
	if err := s.w.Append(func() []byte {
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
func (s *SetLookup[K, V]) Contains(k K) bool { return s.m.Get(k) != nil }

// ContainsItem reports whether v is a member of k's set.
func (s *SetLookup[K, V]) ContainsItem(k K, v V) bool {
	b := s.m.Get(k)
	if b == nil {
		return false
	}
	_, ok := b.values[v]
	return ok
}

// Get returns a copy of k's values in unspecified order, or nil if k is
// absent.
func (s *SetLookup[K, V]) Get(k K) []V {
	b := s.m.Get(k)
	if b == nil {
		return nil
	}
	out := make([]V, 0, len(b.values))
	for v := range b.values {
		out = append(out, v)
	}
	return out
}

// Keys returns every key with at least one value.
func (s *SetLookup[K, V]) Keys() []K {
	buckets := s.m.GetAll()
	keys := make([]K, len(buckets))
	for i, b := range buckets {
		keys[i] = b.key
	}
	return keys
}

// Count returns the number of distinct keys.
func (s *SetLookup[K, V]) Count() int { return s.m.Len() }

// Clear removes every key.
func (s *SetLookup[K, V]) Clear() error {
	if s.m.Len() == 0 {
		return nil
	}
	s.m = nlrmap.New[setBucket[K, V], K]()
	return s.w.Append(func() []byte { return protocol.NewWriter(tagClear).Bytes() })
}

// All iterates (key, values) pairs.
func (s *SetLookup[K, V]) All() iter.Seq2[K, []V] {
	buckets := s.m.GetAll()
	return func(yield func(K, []V) bool) {
		for _, b := range buckets {
			out := make([]V, 0, len(b.values))
			for v := range b.values {
				out = append(out, v)
			}
			if !yield(b.key, out) {
				return
			}
		}
	}
}
