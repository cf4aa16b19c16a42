/*
Copyright (C) 2024  Carl-Philip Hänsch

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

// Package nlrmap is a read-optimized key→item map adapted from
// launix-de-memcp/third_party/NonLockingReadMap: reads are O(log N) and
// always non-blocking; a write rebuilds a fresh sorted slice and installs
// it with a single atomic compare-and-swap. The lookup structures in the
// sibling lookup package use it to hold each key's bucket, which keeps
// Keys()/iteration stable to read even though spec §5 never actually
// requires concurrent readers (every public call happens on a single turn
// thread) — it is kept here because the bucket itself is swapped out
// wholesale on every mutation, a shape that maps directly onto
// push/log-on-mutate's "mutate in memory, then append" discipline without
// a separate lock.
//
// The only material change from the teacher version is dropping the
// golang.org/x/exp/constraints dependency in favor of the standard
// library's cmp.Ordered, available since the teacher's own go.mod's
// Go version.
package nlrmap

import (
	"cmp"
	"sort"
	"sync/atomic"
)

// KeyGetter is implemented by items stored in a Map.
type KeyGetter[TK cmp.Ordered] interface {
	GetKey() TK
}

// Map is a read-optimized map from TK to *T.
type Map[T KeyGetter[TK], TK cmp.Ordered] struct {
	p atomic.Pointer[[]*T]
}

// New returns an empty Map.
func New[T KeyGetter[TK], TK cmp.Ordered]() *Map[T, TK] {
	m := &Map[T, TK]{}
	m.p.Store(new([]*T))
	return m
}

// GetAll returns the current backing slice, sorted by key. Callers must
// not mutate it.
func (m *Map[T, TK]) GetAll() []*T {
	return *m.p.Load()
}

// Get returns the stored item for key, or nil if absent.
func (m *Map[T, TK]) Get(key TK) *T {
	v, _, _ := m.findItem(key)
	return v
}

func (m *Map[T, TK]) findItem(key TK) (*T, int, *[]*T) {
	items := m.p.Load()
	lower, upper := 0, len(*items)
	for lower < upper {
		pivot := (lower + upper) / 2
		item := (*items)[pivot]
		itemKey := (*item).GetKey()
		switch {
		case key == itemKey:
			return item, pivot, items
		case key < itemKey:
			upper = pivot
		default:
			lower = pivot + 1
		}
	}
	return nil, -1, items
}

// Set installs v under its own key, replacing any previous value, and
// returns the value it replaced (or nil).
func (m *Map[T, TK]) Set(v *T) *T {
	for {
		_, pivot, handle := m.findItem((*v).GetKey())
		if pivot != -1 {
			newHandle := make([]*T, len(*handle))
			copy(newHandle, *handle)
			old := newHandle[pivot]
			newHandle[pivot] = v
			if m.p.CompareAndSwap(handle, &newHandle) {
				return old
			}
			continue
		}

		newHandle := make([]*T, 0, len(*handle)+1)
		newHandle = append(newHandle, *handle...)
		newHandle = append(newHandle, v)
		sort.Slice(newHandle, func(i, j int) bool {
			return (*newHandle[i]).GetKey() < (*newHandle[j]).GetKey()
		})
		if m.p.CompareAndSwap(handle, &newHandle) {
			return nil
		}
	}
}

// Remove deletes key, returning the removed item (or nil if absent).
func (m *Map[T, TK]) Remove(key TK) *T {
	for {
		item, pivot, handle := m.findItem(key)
		if pivot == -1 {
			return nil
		}
		newHandle := make([]*T, 0, len(*handle)-1)
		newHandle = append(newHandle, (*handle)[:pivot]...)
		newHandle = append(newHandle, (*handle)[pivot+1:]...)
		if m.p.CompareAndSwap(handle, &newHandle) {
			return item
		}
	}
}

// Len returns the number of stored keys.
func (m *Map[T, TK]) Len() int {
	return len(*m.p.Load())
}
