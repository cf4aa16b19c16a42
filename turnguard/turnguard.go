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

// Package turnguard asserts, in debug/test builds, the single-writer
// guarantee spec §5 gives every structure: no concurrent public-API
// invocations per key, and no goroutine re-entering a different key's
// turn from inside another key's turn. It is disabled by default so the
// cost is zero in normal use; call Enable in a test's TestMain or init to
// turn it on.
package turnguard

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jtolds/gls"
)

var mgr = gls.NewContextManager()

const valuesKey = "durable-turn-key"

var enabled atomic.Bool

// Enable turns on turn-thread checking for the remainder of the process.
func Enable() { enabled.Store(true) }

// Disable turns checking back off.
func Disable() { enabled.Store(false) }

var (
	mu         sync.Mutex
	activeKeys = map[string]struct{}{}
)

// Run executes fn as the exclusive turn for key. It panics if another
// goroutine is concurrently running a turn for the same key, or if this
// goroutine is already inside a turn for a different key. Run is a
// transparent pass-through when checking is disabled.
func Run(key string, fn func()) {
	if !enabled.Load() {
		fn()
		return
	}
	if cur, ok := mgr.GetValue(valuesKey); ok {
		if cur.(string) != key {
			panic(fmt.Sprintf("turnguard: goroutine already inside turn for key %q, cannot enter %q", cur, key))
		}
		// reentrant call within the same key's turn: allowed, no
		// double registration.
		fn()
		return
	}

	mu.Lock()
	if _, busy := activeKeys[key]; busy {
		mu.Unlock()
		panic(fmt.Sprintf("turnguard: concurrent turn for key %q", key))
	}
	activeKeys[key] = struct{}{}
	mu.Unlock()

	defer func() {
		mu.Lock()
		delete(activeKeys, key)
		mu.Unlock()
	}()

	mgr.SetValues(gls.Values{valuesKey: key}, fn)
}
