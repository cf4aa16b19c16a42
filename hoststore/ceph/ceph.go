//go:build ceph

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

// Package ceph is a RADOS-backed durable.LogStorage, grounded on
// launix-de-memcp's CephStorage/CephLogfile (persistence-ceph.go).
// RADOS has no append primitive, so exactly as the teacher's
// CephLogfile tracks an append offset and issues a WriteOp at that
// offset, this backend stats the log object for its current size and
// writes each new entry at that offset, growing the object rather than
// rewriting it wholesale (unlike hoststore/s3, where the object store
// genuinely has no partial-write API at all).
package ceph

import (
	"fmt"

	"github.com/ceph/go-ceph/rados"

	"github.com/launix-de/durablestatemachines/durable"
)

// Config names the cluster, user and pool to connect to, mirroring the
// teacher's CephFactory fields.
type Config struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

// Store is a durable.LogStorage backed by one RADOS pool.
type Store struct {
	cfg    Config
	conn   *rados.Conn
	ioctx  *rados.IOContext
	opened bool
}

// New returns a Store for cfg. The RADOS connection is opened lazily on
// first use, exactly as the teacher's ensureOpen does.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) ensureOpen() error {
	if s.opened {
		return nil
	}
	conn, err := rados.NewConnWithClusterAndUser(s.cfg.ClusterName, s.cfg.UserName)
	if err != nil {
		return fmt.Errorf("%w: connecting to ceph cluster: %v", durable.ErrStorageFailure, err)
	}
	if s.cfg.ConfFile != "" {
		if err := conn.ReadConfigFile(s.cfg.ConfFile); err != nil {
			return fmt.Errorf("%w: reading ceph conf: %v", durable.ErrStorageFailure, err)
		}
	} else {
		_ = conn.ReadDefaultConfigFile()
	}
	if err := conn.Connect(); err != nil {
		return fmt.Errorf("%w: connecting to ceph: %v", durable.ErrStorageFailure, err)
	}
	ioctx, err := conn.OpenIOContext(s.cfg.Pool)
	if err != nil {
		conn.Shutdown()
		return fmt.Errorf("%w: opening ceph pool %q: %v", durable.ErrStorageFailure, s.cfg.Pool, err)
	}
	s.conn, s.ioctx, s.opened = conn, ioctx, true
	return nil
}

func (s *Store) obj(key, suffix string) string {
	if s.cfg.Prefix == "" {
		return key + suffix
	}
	return s.cfg.Prefix + "/" + key + suffix
}

func (s *Store) readObject(obj string) ([]byte, bool, error) {
	stat, err := s.ioctx.Stat(obj)
	if err != nil {
		return nil, false, nil
	}
	data := make([]byte, stat.Size)
	n, err := s.ioctx.Read(obj, data, 0)
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading %q: %v", durable.ErrStorageFailure, obj, err)
	}
	return data[:n], true, nil
}

// Replay implements durable.LogStorage.
func (s *Store) Replay(key string) ([][]byte, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	var out [][]byte
	if data, ok, err := s.readObject(s.obj(key, ".snap")); err != nil {
		return nil, err
	} else if ok {
		out = append(out, data)
	}
	data, ok, err := s.readObject(s.obj(key, ".log"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return out, nil
	}
	entries, err := decodeFrames(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding log for %q: %v", durable.ErrStorageFailure, key, err)
	}
	return append(out, entries...), nil
}

// AppendEntry implements durable.LogStorage: the entry is framed and
// written at the object's current size, the closest RADOS gets to append.
func (s *Store) AppendEntry(key string, entry []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	obj := s.obj(key, ".log")
	stat, statErr := s.ioctx.Stat(obj)
	var offset uint64
	if statErr == nil {
		offset = stat.Size
	}
	op := rados.CreateWriteOp()
	defer op.Release()
	op.Write(frameEntry(entry), offset)
	if err := op.Operate(s.ioctx, obj, rados.OperationNoFlag); err != nil {
		return fmt.Errorf("%w: appending to %q: %v", durable.ErrStorageFailure, obj, err)
	}
	return nil
}

// AppendSnapshot implements durable.LogStorage: it overwrites the
// snapshot object and truncates the log object, since the snapshot now
// subsumes every previously logged entry.
func (s *Store) AppendSnapshot(key string, entry []byte) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.ioctx.WriteFull(s.obj(key, ".snap"), entry); err != nil {
		return fmt.Errorf("%w: writing snapshot for %q: %v", durable.ErrStorageFailure, key, err)
	}
	if err := s.ioctx.Truncate(s.obj(key, ".log"), 0); err != nil {
		return fmt.Errorf("%w: truncating log for %q: %v", durable.ErrStorageFailure, key, err)
	}
	return nil
}

// Close releases the RADOS connection.
func (s *Store) Close() {
	if !s.opened {
		return
	}
	s.ioctx.Destroy()
	s.conn.Shutdown()
	s.opened = false
}
