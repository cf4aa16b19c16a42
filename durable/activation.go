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

package durable

import "github.com/launix-de/durablestatemachines/turnguard"

// Activation is a minimal single-key activation driver: it ties one
// StateMachine to one LogStorage under one key and implements the
// Reset→Apply→OnRecoveryCompleted→(mutate→Append)→OnWriteCompleted
// lifecycle from spec §4.1. It is reference glue for this module's own
// tests and the playground command, not the host actor/grain runtime
// (explicitly out of core scope) — a real host's registry does the same
// job across many keys and many activations of the same key over time.
type Activation struct {
	key     string
	sm      StateMachine
	storage LogStorage
}

// NewActivation constructs an activation for key, backed by storage, and
// immediately recovers it (Reset, replay, OnRecoveryCompleted) the way a
// host activates a grain before handing out its reference.
func NewActivation(key string, sm StateMachine, storage LogStorage) (*Activation, error) {
	if key == "" {
		return nil, ErrInvalidArgument
	}
	a := &Activation{key: key, sm: sm, storage: storage}
	sm.Reset(a)
	entries, err := storage.Replay(key)
	if err != nil {
		return nil, wrapStorageErr(err)
	}
	for _, e := range entries {
		if err := sm.Apply(e); err != nil {
			return nil, err
		}
	}
	if rc, ok := sm.(RecoveryCompleter); ok {
		rc.OnRecoveryCompleted()
	}
	return a, nil
}

// Append implements LogWriter for push/log-on-mutate structures: it
// durably appends one entry immediately, synchronously from the caller's
// perspective.
func (a *Activation) Append(encode func() []byte) error {
	var err error
	turnguard.Run(a.key, func() {
		if appendErr := a.storage.AppendEntry(a.key, encode()); appendErr != nil {
			err = wrapStorageErr(appendErr)
			return
		}
		if wc, ok := a.sm.(WriteCompleter); ok {
			wc.OnWriteCompleted()
		}
	})
	return err
}

// WriteState triggers AppendEntries on the underlying state machine,
// durably persisting any state batch-style structures have been
// buffering in memory (spec §4.1's batch-on-AppendEntries policy). For
// push-style structures this is a no-op because they already appended
// per mutation.
func (a *Activation) WriteState() error {
	var err error
	turnguard.Run(a.key, func() {
		err = a.sm.AppendEntries(a)
	})
	return err
}

// Snapshot triggers AppendSnapshot, asking the state machine to emit a
// self-contained reconstruction, then durably replaces the key's stored
// entries with it (host-triggered compaction, spec §4.1).
func (a *Activation) Snapshot() error {
	var err error
	turnguard.Run(a.key, func() {
		err = a.sm.AppendSnapshot(&snapshotWriter{key: a.key, storage: a.storage, sm: a.sm})
	})
	return err
}

// snapshotWriter adapts a single encode() call into LogStorage.AppendSnapshot
// instead of LogStorage.AppendEntry; AppendSnapshot implementations call
// w.Append exactly once, so Activation routes that one call to the
// storage's snapshot path instead of its entry path.
type snapshotWriter struct {
	key     string
	storage LogStorage
	sm      StateMachine
}

func (w *snapshotWriter) Append(encode func() []byte) error {
	if err := wrapStorageErr(w.storage.AppendSnapshot(w.key, encode())); err != nil {
		return err
	}
	if wc, ok := w.sm.(WriteCompleter); ok {
		wc.OnWriteCompleted()
	}
	return nil
}
