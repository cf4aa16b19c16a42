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

// Package singleobject is a durable single-value container with a batch
// write policy (spec §4.12): unlike the push-style structures
// elsewhere in this module, Set and Clear never append a log entry of
// their own. The full value is instead written out wholesale whenever
// the host calls AppendEntries or AppendSnapshot, so the durable log
// only ever holds complete-state entries, never incremental deltas.
package singleobject

import (
	"fmt"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

const tagState uint32 = 0

// Container holds at most one value of T, distinguishing "never set"
// from "set to the zero value" via a record_exists latch.
type Container[T any] struct {
	codec   protocol.Codec[T]
	factory func() T
	value   T
	exists  bool
}

// New returns an empty Container. factory produces the value Get
// materializes the first time it's called before anything was ever
// Set; it may be nil, in which case Get returns T's zero value without
// marking the container as holding a value.
func New[T any](codec protocol.Codec[T], factory func() T) *Container[T] {
	return &Container[T]{codec: codec, factory: factory}
}

// Reset implements durable.StateMachine.
func (c *Container[T]) Reset(durable.LogWriter) {
	var zero T
	c.value, c.exists = zero, false
}

// Apply implements durable.StateMachine. Every log entry for this
// structure carries the complete state, written by AppendEntries or
// AppendSnapshot; there are no incremental mutation entries.
func (c *Container[T]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	ver, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if ver != protocol.CurrentVersion {
		return fmt.Errorf("%w: single-object container entry version %d", durable.ErrUnsupportedVersion, ver)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	if tag != tagState {
		return fmt.Errorf("%w: single-object container tag %d", durable.ErrUnsupportedCommand, tag)
	}
	exists, err := r.ReadBool()
	if err != nil {
		return err
	}
	if !exists {
		var zero T
		c.value, c.exists = zero, false
		return nil
	}
	v, err := c.codec.Decode(r)
	if err != nil {
		return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	c.value, c.exists = v, true
	return nil
}

func (c *Container[T]) encodeState() []byte {
	wr := protocol.NewWriter(tagState)
	wr.WriteBool(c.exists)
	if c.exists {
		c.codec.Encode(wr, c.value)
	}
	return wr.Bytes()
}

// AppendEntries implements durable.StateMachine: the container's batch
// write policy writes the entire value here instead of per-mutation.
func (c *Container[T]) AppendEntries(w durable.LogWriter) error {
	return w.Append(c.encodeState)
}

// AppendSnapshot implements durable.StateMachine; identical payload to
// AppendEntries, since a single-value container's "snapshot" and
// "entries" are both just the complete current state.
func (c *Container[T]) AppendSnapshot(w durable.LogWriter) error {
	return w.Append(c.encodeState)
}

// Set stores value. The write is not durable until the host next calls
// AppendEntries or AppendSnapshot.
func (c *Container[T]) Set(value T) {
	c.value, c.exists = value, true
}

// Clear resets the container to holding no value.
func (c *Container[T]) Clear() {
	var zero T
	c.value, c.exists = zero, false
}

// HasValue reports whether a value has been Set (or materialized by
// Get) since the last Clear, without invoking the default factory.
func (c *Container[T]) HasValue() bool { return c.exists }

// Get returns the current value, lazily materializing and retaining
// factory() if no value has been set yet.
func (c *Container[T]) Get() T {
	if !c.exists && c.factory != nil {
		c.value, c.exists = c.factory(), true
	}
	return c.value
}
