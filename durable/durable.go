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

// Package durable defines the host↔structure contract every durable
// structure in this module implements: Reset/Apply/AppendEntries/
// AppendSnapshot plus the optional OnRecoveryCompleted/OnWriteCompleted
// hooks (spec §6). It generalizes launix-de-memcp's storage package,
// whose PersistenceEngine/PersistenceLogfile play the same role for a
// single table shard's insert/delete log.
package durable

import (
	"errors"
	"fmt"
)

// Error kinds shared across every structure (spec §7). Structures wrap
// these with fmt.Errorf("%w: ...") to add context; callers compare with
// errors.Is.
var (
	ErrInvalidArgument    = errors.New("durable: invalid argument")
	ErrInvalidOperation   = errors.New("durable: invalid operation")
	ErrUnsupportedVersion = errors.New("durable: unsupported version")
	ErrUnsupportedCommand = errors.New("durable: unsupported command")
	ErrCodecFailure       = errors.New("durable: codec failure")
	ErrStorageFailure     = errors.New("durable: storage failure")
)

// LogWriter is the structure's handle onto its own append-only log,
// supplied by Reset before any replay happens. Push/log-on-mutate
// structures call Append once per successful public mutation; the write
// happens synchronously from the structure's point of view (spec §5:
// "public operations that mutate are non-suspending").
type LogWriter interface {
	// Append calls encode for the bytes of one log entry and durably
	// appends them. encode takes no arguments; command packages build the
	// bytes inside it with their own protocol.Writer.
	Append(encode func() []byte) error
}

// StateMachine is the lifecycle every durable structure implements.
type StateMachine interface {
	// Reset returns the structure to empty/default and remembers w for
	// future appends. Called once before replay begins.
	Reset(w LogWriter)
	// Apply decodes and applies a single previously-appended entry.
	// Called once per log entry in append order, snapshot (if any)
	// first.
	Apply(entry []byte) error
	// AppendEntries is invoked on a host-triggered durable write. Push-
	// style structures no-op here (they already appended per mutation);
	// batch-style structures (cancellation source, single-object) write
	// their full pending state here.
	AppendEntries(w LogWriter) error
	// AppendSnapshot emits a self-contained reconstruction of current
	// state, invoked on host-triggered compaction.
	AppendSnapshot(w LogWriter) error
}

// RecoveryCompleter is implemented by structures needing a finalization
// step after the last Apply of a recovery (single-object, cancellation
// source).
type RecoveryCompleter interface {
	OnRecoveryCompleted()
}

// WriteCompleter is implemented by structures needing to react once a
// durable write has succeeded (single-object latches record_exists;
// cancellation source signals its token).
type WriteCompleter interface {
	OnWriteCompleted()
}

// LogStorage is the host-provided storage backend contract (spec §6,
// explicitly out of core scope): it accepts appended entries for a key
// and produces a replayable sequence of them. hoststore/file,
// hoststore/s3 and hoststore/ceph are reference implementations used by
// this module's own tests and playground, grounded on
// launix-de-memcp/storage's PersistenceEngine backends.
type LogStorage interface {
	// Replay returns every entry previously durably stored for key, in
	// append order, with at most one leading snapshot entry.
	Replay(key string) ([][]byte, error)
	// AppendEntry durably appends one entry for key.
	AppendEntry(key string, entry []byte) error
	// AppendSnapshot durably replaces key's stored entries with a single
	// snapshot entry.
	AppendSnapshot(key string, entry []byte) error
}

// wrapStorageErr marks an error from the LogStorage backend with
// ErrStorageFailure so callers can distinguish it from precondition or
// codec failures via errors.Is.
func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}
