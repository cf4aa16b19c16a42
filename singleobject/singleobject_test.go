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

package singleobject

import (
	"testing"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/internal/memlog"
	"github.com/launix-de/durablestatemachines/protocol"
)

func TestSetDoesNotLogUntilAppendEntries(t *testing.T) {
	storage := memlog.New()
	c := New[string](protocol.StringCodec{}, nil)
	act, err := durable.NewActivation("k", c, storage)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	c.Set("hello")
	if n := storage.Len("k"); n != 0 {
		t.Fatalf("log length after Set = %d, want 0 (batch write policy)", n)
	}
	if err := act.WriteState(); err != nil {
		t.Fatalf("write state: %v", err)
	}
	if n := storage.Len("k"); n != 1 {
		t.Fatalf("log length after WriteState = %d, want 1", n)
	}
}

func TestLazyDefaultConstruct(t *testing.T) {
	calls := 0
	c := New[string](protocol.StringCodec{}, func() string { calls++; return "default" })
	if _, err := durable.NewActivation("k", c, memlog.New()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if c.HasValue() {
		t.Fatalf("fresh container should report HasValue() == false")
	}
	if got := c.Get(); got != "default" {
		t.Fatalf("Get() = %q, want default", got)
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
	if got := c.Get(); got != "default" {
		t.Fatalf("second Get() = %q, want default", got)
	}
	if calls != 1 {
		t.Fatalf("factory called %d times after second Get, want still 1", calls)
	}
	if !c.HasValue() {
		t.Fatalf("HasValue() should be true after Get() materializes a default")
	}
}

func TestRecoveryFidelity(t *testing.T) {
	storage := memlog.New()
	c1 := New[string](protocol.StringCodec{}, nil)
	act1, err := durable.NewActivation("k", c1, storage)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	c1.Set("persisted")
	if err := act1.WriteState(); err != nil {
		t.Fatalf("write state: %v", err)
	}

	c2 := New[string](protocol.StringCodec{}, nil)
	if _, err := durable.NewActivation("k", c2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if !c2.HasValue() || c2.Get() != "persisted" {
		t.Fatalf("recovered value = %v, %q, want true, persisted", c2.HasValue(), c2.Get())
	}
}

func TestClearLatchRecoversAsAbsent(t *testing.T) {
	storage := memlog.New()
	c1 := New[string](protocol.StringCodec{}, nil)
	act1, err := durable.NewActivation("k", c1, storage)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	c1.Set("temp")
	c1.Clear()
	if err := act1.WriteState(); err != nil {
		t.Fatalf("write state: %v", err)
	}

	c2 := New[string](protocol.StringCodec{}, nil)
	if _, err := durable.NewActivation("k", c2, storage); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if c2.HasValue() {
		t.Fatalf("recovered container should report no value")
	}
}
