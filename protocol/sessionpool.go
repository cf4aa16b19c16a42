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

package protocol

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// SessionPool bounds how many entry encode/decode sessions may be in
// flight at once, per spec §5 ("serializer session pool ... scoped
// acquisition with guaranteed release"). A session is released on every
// exit path via Release's defer-friendly signature, mirroring the scoped
// acquire/release discipline the spec requires of codec sessions.
type SessionPool struct {
	sem *semaphore.Weighted
}

// NewSessionPool returns a pool allowing up to size concurrent sessions.
// size must be at least 1.
func NewSessionPool(size int64) *SessionPool {
	if size < 1 {
		size = 1
	}
	return &SessionPool{sem: semaphore.NewWeighted(size)}
}

// Session is a single scoped acquisition from the pool.
type Session struct {
	pool *SessionPool
}

// Acquire blocks until a session slot is available or ctx is done.
func (p *SessionPool) Acquire(ctx context.Context) (*Session, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Session{pool: p}, nil
}

// Release returns the session's slot to the pool. Calling Release more
// than once is a programmer error the same way double-closing a file is;
// callers should always Release in a defer immediately after a successful
// Acquire.
func (s *Session) Release() {
	s.pool.sem.Release(1)
}
