//go:build !ceph

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

package ceph

import (
	"fmt"

	"github.com/launix-de/durablestatemachines/durable"
)

// Config is a stub when Ceph support is not compiled in. Build with
// -tags=ceph to enable the real rados-backed Store.
type Config struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

var errNotCompiledIn = fmt.Errorf("%w: ceph support not compiled in, build with -tags=ceph", durable.ErrStorageFailure)

// Store is a stub; every method returns errNotCompiledIn. Build with
// -tags=ceph for the real rados-backed implementation.
type Store struct{}

// New returns a stub Store whose methods all fail with errNotCompiledIn.
func New(cfg Config) *Store { return &Store{} }

func (s *Store) Replay(key string) ([][]byte, error) {
	return nil, errNotCompiledIn
}

func (s *Store) AppendEntry(key string, entry []byte) error {
	return errNotCompiledIn
}

func (s *Store) AppendSnapshot(key string, entry []byte) error {
	return errNotCompiledIn
}

func (s *Store) Close() {}
