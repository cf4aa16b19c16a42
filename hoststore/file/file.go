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

// Package file is a filesystem-backed durable.LogStorage, one log file
// and one snapshot file per activation key. It is grounded on
// storage.FileStorage in launix-de-memcp (persistence-files.go), which
// keeps one append-only log file per shard instead of one per table;
// here it is one append-only log file per activation key instead, each
// entry length-prefixed rather than newline-delimited since an entry's
// payload is opaque binary, not JSON.
//
// Snapshots are compressed with lz4 (hot path: cheap to write on every
// compaction) and, unlike the teacher's RemoveLog-on-compact, a
// successful snapshot write truncates the entry log to empty rather
// than deleting it outright, since a fresh activation still needs an
// (empty) log file to append to.
package file

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pierrec/lz4/v4"

	"github.com/launix-de/durablestatemachines/durable"
)

// Store is a durable.LogStorage backed by one directory, with one log
// file and one optional snapshot file per key.
type Store struct {
	basepath string

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	changes  chan string
	watchErr error
}

// New returns a Store rooted at basepath, creating the directory if
// necessary, and starts watching it for externally-made changes.
func New(basepath string) (*Store, error) {
	if err := os.MkdirAll(basepath, 0750); err != nil {
		return nil, fmt.Errorf("%w: %v", durable.ErrStorageFailure, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", durable.ErrStorageFailure, err)
	}
	if err := watcher.Add(basepath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%w: %v", durable.ErrStorageFailure, err)
	}
	s := &Store{basepath: basepath, watcher: watcher, changes: make(chan string, 16)}
	go s.watchLoop()
	return s, nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if key, ok := keyFromPath(ev.Name); ok {
				select {
				case s.changes <- key:
				default:
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.mu.Lock()
			s.watchErr = err
			s.mu.Unlock()
		}
	}
}

// Changed reports keys whose .log or .snap.lz4 file saw a filesystem
// event. Events caused by this Store's own writes are reported too, and
// events are dropped while the channel's 16 slots are full. It is
// advisory only: durability never depends on consuming it.
func (s *Store) Changed() <-chan string { return s.changes }

// Close stops watching the backing directory.
func (s *Store) Close() error {
	return s.watcher.Close()
}

// SnapshotPath returns the on-disk path of key's lz4-compressed snapshot
// file, for tooling (e.g. cmd/playground's archive subcommand) that
// needs to read a compacted snapshot directly rather than through
// Replay. It does not guarantee the file exists.
func (s *Store) SnapshotPath(key string) string {
	return s.snapshotPath(key)
}

const (
	logSuffix      = ".log"
	snapshotSuffix = ".snap.lz4"
)

func (s *Store) logPath(key string) string {
	return filepath.Join(s.basepath, sanitizeKey(key)+logSuffix)
}

func (s *Store) snapshotPath(key string) string {
	return filepath.Join(s.basepath, sanitizeKey(key)+snapshotSuffix)
}

func sanitizeKey(key string) string {
	return filepath.Base(key)
}

func keyFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	switch {
	case len(base) > len(logSuffix) && base[len(base)-len(logSuffix):] == logSuffix:
		return base[:len(base)-len(logSuffix)], true
	case len(base) > len(snapshotSuffix) && base[len(base)-len(snapshotSuffix):] == snapshotSuffix:
		return base[:len(base)-len(snapshotSuffix)], true
	default:
		return "", false
	}
}

func writeFramed(w io.Writer, entry []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(entry)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(entry)
	return err
}

func readFramed(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadSnapshotRaw returns key's decompressed snapshot payload, or
// (nil, false, nil) if no snapshot has been written yet. It is exported
// for tooling that wants the raw bytes without driving a full
// durable.StateMachine replay (e.g. recompressing for cold storage).
func (s *Store) ReadSnapshotRaw(key string) ([]byte, bool, error) {
	snap, err := os.ReadFile(s.snapshotPath(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading snapshot for %q: %v", durable.ErrStorageFailure, key, err)
	}
	decompressed, err := decompressLZ4(snap)
	if err != nil {
		return nil, false, fmt.Errorf("%w: decompressing snapshot for %q: %v", durable.ErrStorageFailure, key, err)
	}
	return decompressed, true, nil
}

// Replay implements durable.LogStorage: the snapshot (if any) is
// returned first, followed by every subsequently logged entry, in
// write order.
func (s *Store) Replay(key string) ([][]byte, error) {
	var out [][]byte

	if snap, err := os.ReadFile(s.snapshotPath(key)); err == nil {
		decompressed, err := decompressLZ4(snap)
		if err != nil {
			return nil, fmt.Errorf("%w: decompressing snapshot for %q: %v", durable.ErrStorageFailure, key, err)
		}
		out = append(out, decompressed)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: reading snapshot for %q: %v", durable.ErrStorageFailure, key, err)
	}

	f, err := os.Open(s.logPath(key))
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening log for %q: %v", durable.ErrStorageFailure, key, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	for {
		entry, err := readFramed(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading log for %q: %v", durable.ErrStorageFailure, key, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// AppendEntry implements durable.LogStorage.
func (s *Store) AppendEntry(key string, entry []byte) error {
	f, err := os.OpenFile(s.logPath(key), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("%w: opening log for %q: %v", durable.ErrStorageFailure, key, err)
	}
	defer f.Close()
	if err := writeFramed(f, entry); err != nil {
		return fmt.Errorf("%w: writing log entry for %q: %v", durable.ErrStorageFailure, key, err)
	}
	return f.Sync()
}

// AppendSnapshot implements durable.LogStorage: the entry is compressed
// and written to a fresh snapshot file (via rename for atomicity), and
// the entry log is truncated, since the snapshot now subsumes it.
func (s *Store) AppendSnapshot(key string, entry []byte) error {
	compressed, err := compressLZ4(entry)
	if err != nil {
		return fmt.Errorf("%w: compressing snapshot for %q: %v", durable.ErrStorageFailure, key, err)
	}
	tmpPath := s.snapshotPath(key) + ".tmp"
	if err := os.WriteFile(tmpPath, compressed, 0640); err != nil {
		return fmt.Errorf("%w: writing snapshot for %q: %v", durable.ErrStorageFailure, key, err)
	}
	if err := os.Rename(tmpPath, s.snapshotPath(key)); err != nil {
		return fmt.Errorf("%w: finalizing snapshot for %q: %v", durable.ErrStorageFailure, key, err)
	}
	f, err := os.OpenFile(s.logPath(key), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("%w: truncating log for %q: %v", durable.ErrStorageFailure, key, err)
	}
	defer f.Close()
	return f.Sync()
}

func compressLZ4(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(data, buf)
	if err != nil {
		return nil, err
	}
	// framed with the original length, since lz4 block mode needs it to decompress
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	return append(lenBuf[:], buf[:n]...), nil
}

func decompressLZ4(framed []byte) ([]byte, error) {
	if len(framed) < 4 {
		return nil, fmt.Errorf("truncated snapshot frame")
	}
	origLen := binary.BigEndian.Uint32(framed[:4])
	out := make([]byte, origLen)
	n, err := lz4.UncompressBlock(framed[4:], out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
