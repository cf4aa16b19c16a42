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

// Package cancellation is a durable, two-phase cancellation source
// (spec §4.13). Like singleobject, it follows the batch-on-AppendEntries
// write policy: Cancel and ScheduleCancel only flip in-memory state and
// arm/disarm the timer; nothing is appended until the host calls
// write_state, which AppendEntries serves by writing the full current
// (canceled, schedule) record — but only when that state differs from
// the default.
//
// The one write this structure ever triggers on its own is the timer
// firing (or an already-expired schedule discovered at recovery): the
// component must durably persist cancellation at that moment without
// waiting for the host to decide to call write_state, so it appends
// directly through the same LogWriter the host would otherwise use.
// Either way, the Done channel only closes once that append has
// actually succeeded (via OnWriteCompleted), so a storage failure can
// still be rolled back before anything waiting on Done observes it.
package cancellation

import (
	"fmt"
	"sync"
	"time"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

// tagState is the sole entry tag this structure ever writes: both
// AppendEntries and AppendSnapshot emit the full current state, so
// there is one record format rather than a per-operation command tag
// (spec §4.13 "Log format").
const tagState uint32 = 0

// Source is a durable cancellation token source.
type Source struct {
	mu sync.RWMutex

	canceled  bool
	scheduled bool
	request   int64 // unix seconds the schedule was requested, valid iff scheduled
	delay     int64 // seconds, valid iff scheduled

	done   chan struct{}
	closed bool

	timer *time.Timer
	now   func() time.Time
	w     durable.LogWriter
}

// New returns a fresh, uncancelled Source. now may be nil, in which
// case time.Now is used.
func New(now func() time.Time) *Source {
	if now == nil {
		now = time.Now
	}
	return &Source{now: now, done: make(chan struct{})}
}

// Reset implements durable.StateMachine.
func (s *Source) Reset(w durable.LogWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.canceled = false
	s.scheduled = false
	s.request = 0
	s.delay = 0
	s.done = make(chan struct{})
	s.closed = false
	s.w = w
}

// Apply implements durable.StateMachine: it replays a full state
// record, exactly as last written by AppendEntries or AppendSnapshot.
func (s *Source) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	ver, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if ver != protocol.CurrentVersion {
		return fmt.Errorf("%w: cancellation source entry version %d", durable.ErrUnsupportedVersion, ver)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	if tag != tagState {
		return fmt.Errorf("%w: cancellation source tag %d", durable.ErrUnsupportedCommand, tag)
	}
	canceled, err := r.ReadBool()
	if err != nil {
		return err
	}
	scheduled, err := r.ReadBool()
	if err != nil {
		return err
	}
	var request, delay int64
	if scheduled {
		if request, err = r.ReadVarint(); err != nil {
			return err
		}
		if delay, err = r.ReadVarint(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.canceled = canceled
	s.scheduled = scheduled
	s.request = request
	s.delay = delay
	s.mu.Unlock()
	return nil
}

// state is an immutable snapshot of the fields making up the durable
// record, taken under the lock and then encoded/inspected without
// holding it.
type state struct {
	canceled  bool
	scheduled bool
	request   int64
	delay     int64
}

func (s *Source) snapshotLocked() state {
	return state{s.canceled, s.scheduled, s.request, s.delay}
}

// isDefault reports whether st is the zero/unscheduled, uncancelled
// state — AppendEntries skips writing in that case.
func (st state) isDefault() bool {
	return !st.canceled && !st.scheduled
}

// pending reports spec's is_cancellation_pending, derived from st as
// of nowUnix: canceled, or scheduled with an expiration already
// reached, regardless of whether that has been durably persisted yet.
func (st state) pending(nowUnix int64) bool {
	if st.canceled {
		return true
	}
	return st.scheduled && st.request+st.delay <= nowUnix
}

func encodeState(st state) []byte {
	wr := protocol.NewWriter(tagState)
	wr.WriteBool(st.canceled)
	wr.WriteBool(st.scheduled)
	if st.scheduled {
		wr.WriteVarint(st.request)
		wr.WriteVarint(st.delay)
	}
	return wr.Bytes()
}

// AppendEntries implements durable.StateMachine: the batch write
// policy writes the full current record here, but only when it
// differs from the default (spec §4.13 "Write triggers").
func (s *Source) AppendEntries(w durable.LogWriter) error {
	s.mu.RLock()
	st := s.snapshotLocked()
	s.mu.RUnlock()
	if st.isDefault() {
		return nil
	}
	return w.Append(func() []byte { return encodeState(st) })
}

// AppendSnapshot implements durable.StateMachine; unlike AppendEntries
// it always writes, even the default state.
func (s *Source) AppendSnapshot(w durable.LogWriter) error {
	s.mu.RLock()
	st := s.snapshotLocked()
	s.mu.RUnlock()
	return w.Append(func() []byte { return encodeState(st) })
}

// OnWriteCompleted implements durable.WriteCompleter: once a durable
// write has landed, the token fires if the now-durable state is
// pending. This is how Cancel/ScheduleCancel's in-memory-only flip
// eventually signals Done, once the host calls write_state.
func (s *Source) OnWriteCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotLocked().pending(s.now().Unix()) {
		s.closeDoneLocked()
	}
}

func (s *Source) closeDoneLocked() {
	if !s.closed {
		close(s.done)
		s.closed = true
	}
}

// OnRecoveryCompleted implements durable.RecoveryCompleter.
func (s *Source) OnRecoveryCompleted() {
	s.mu.RLock()
	st := s.snapshotLocked()
	s.mu.RUnlock()

	if st.canceled {
		// Already durably canceled: nothing to persist, but a fresh
		// Reset means a fresh Done that still needs closing.
		s.mu.Lock()
		s.closeDoneLocked()
		s.mu.Unlock()
		return
	}
	if st.pending(s.now().Unix()) {
		// A schedule whose expiration passed while this activation was
		// deactivated: the token must signal now, auto-persisting the
		// terminal state since it was never durably recorded as such.
		_ = s.autoPersistCancel()
		return
	}
	if !st.scheduled {
		return
	}
	remaining := time.Duration(st.request+st.delay-s.now().Unix()) * time.Second
	s.mu.Lock()
	s.armTimerLocked(remaining)
	s.mu.Unlock()
}

func (s *Source) armTimerLocked(delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() { _ = s.autoPersistCancel() })
}

// autoPersistCancel is the component triggering write_state itself
// (spec §4.13's auto-persistence requirement): it runs outside of the
// lock (the lock must never be held across the host's write-state
// call, spec §5), snapshotting the prior state for rollback, flipping
// to canceled in memory, and appending directly through the stored
// LogWriter exactly as AppendEntries would. On success, OnWriteCompleted
// fires as a side effect of the append and signals the token. On
// failure the flip is rolled back, but only if nothing else has
// changed the state since.
func (s *Source) autoPersistCancel() error {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return nil
	}
	prev := s.snapshotLocked()
	s.canceled = true
	s.scheduled = false
	s.request = 0
	s.delay = 0
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	next := s.snapshotLocked()
	s.mu.Unlock()

	err := s.w.Append(func() []byte { return encodeState(next) })
	if err != nil {
		s.mu.Lock()
		if s.snapshotLocked() == next {
			s.canceled, s.scheduled = prev.canceled, prev.scheduled
			s.request, s.delay = prev.request, prev.delay
		}
		s.mu.Unlock()
	}
	return err
}

// Cancel requests immediate cancellation. It only flips in-memory
// state; it is not durable, and the token does not fire, until the
// host subsequently calls write_state. It is a no-op returning nil if
// already cancelled.
func (s *Source) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return nil
	}
	s.canceled = true
	s.scheduled = false
	s.request = 0
	s.delay = 0
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return nil
}

// ScheduleCancel arranges for cancellation to fire after delay. It
// only flips in-memory state and arms the timer; durability of the
// intent requires a subsequent host write_state. When the timer
// itself fires, the component persists the resulting cancellation on
// its own (auto-persistence).
//
// Per spec §4.13, a schedule is recorded only if none exists yet or
// the new expiration is earlier than the one already pending:
// rescheduling to a later time than an existing, still-pending
// schedule is a no-op (no state change, no timer rearm).
func (s *Source) ScheduleCancel(delay time.Duration) error {
	if delay < 0 {
		return fmt.Errorf("%w: cancellation delay must be >= 0", durable.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return fmt.Errorf("%w: source is already cancelled", durable.ErrInvalidOperation)
	}
	request := s.now().Unix()
	delaySeconds := int64(delay / time.Second)
	candidateExpiration := request + delaySeconds
	if s.scheduled && s.request+s.delay <= candidateExpiration {
		return nil
	}
	s.scheduled = true
	s.request = request
	s.delay = delaySeconds
	s.armTimerLocked(delay)
	return nil
}

// IsCancelled reports whether the in-memory state is canceled. Cancel
// sets it before anything is written, so a true result does not by
// itself mean the cancellation is durable.
func (s *Source) IsCancelled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canceled
}

// IsCancellationPending reports spec's is_cancellation_pending: true
// as soon as Cancel has been called or a scheduled expiration has
// been reached, independent of whether that state has been persisted.
func (s *Source) IsCancellationPending() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked().pending(s.now().Unix())
}

// ScheduledDeadline returns the pending expiration, as unix seconds,
// and whether one is currently scheduled.
func (s *Source) ScheduledDeadline() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.scheduled {
		return 0, false
	}
	return s.request + s.delay, true
}

// Done returns a channel that is closed once cancellation completes
// durably.
func (s *Source) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}
