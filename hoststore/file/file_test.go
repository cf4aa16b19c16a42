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

package file

import (
	"bytes"
	"testing"
)

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAppendEntryThenReplay(t *testing.T) {
	s, err := New(t.TempDir())
	must(t, err)
	defer s.Close()

	must(t, s.AppendEntry("k", []byte("a")))
	must(t, s.AppendEntry("k", []byte("bb")))
	must(t, s.AppendEntry("k", []byte("")))

	entries, err := s.Replay("k")
	must(t, err)
	want := [][]byte{[]byte("a"), []byte("bb"), []byte("")}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(want))
	}
	for i := range want {
		if !bytes.Equal(entries[i], want[i]) {
			t.Fatalf("entries[%d] = %q, want %q", i, entries[i], want[i])
		}
	}
}

func TestReplayOfUnknownKeyIsEmpty(t *testing.T) {
	s, err := New(t.TempDir())
	must(t, err)
	defer s.Close()

	entries, err := s.Replay("nope")
	must(t, err)
	if len(entries) != 0 {
		t.Fatalf("len(entries) = %d, want 0", len(entries))
	}
}

func TestAppendSnapshotTruncatesLogAndPrecedesFutureEntries(t *testing.T) {
	s, err := New(t.TempDir())
	must(t, err)
	defer s.Close()

	must(t, s.AppendEntry("k", []byte("one")))
	must(t, s.AppendEntry("k", []byte("two")))
	must(t, s.AppendSnapshot("k", []byte("snap")))
	must(t, s.AppendEntry("k", []byte("three")))

	entries, err := s.Replay("k")
	must(t, err)
	want := [][]byte{[]byte("snap"), []byte("three")}
	if len(entries) != len(want) {
		t.Fatalf("len(entries) = %d, want %d: %q", len(entries), len(want), entries)
	}
	for i := range want {
		if !bytes.Equal(entries[i], want[i]) {
			t.Fatalf("entries[%d] = %q, want %q", i, entries[i], want[i])
		}
	}
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir)
	must(t, err)
	must(t, s1.AppendEntry("k", []byte("before")))
	must(t, s1.AppendSnapshot("k", []byte("compacted")))
	must(t, s1.Close())

	s2, err := New(dir)
	must(t, err)
	defer s2.Close()
	entries, err := s2.Replay("k")
	must(t, err)
	if len(entries) != 1 || !bytes.Equal(entries[0], []byte("compacted")) {
		t.Fatalf("entries = %q, want [compacted]", entries)
	}
}

func TestDistinctKeysAreIndependent(t *testing.T) {
	s, err := New(t.TempDir())
	must(t, err)
	defer s.Close()

	must(t, s.AppendEntry("a", []byte("a-1")))
	must(t, s.AppendEntry("b", []byte("b-1")))

	ea, err := s.Replay("a")
	must(t, err)
	eb, err := s.Replay("b")
	must(t, err)
	if len(ea) != 1 || !bytes.Equal(ea[0], []byte("a-1")) {
		t.Fatalf("entries for a = %q", ea)
	}
	if len(eb) != 1 || !bytes.Equal(eb[0], []byte("b-1")) {
		t.Fatalf("entries for b = %q", eb)
	}
}

func TestCompressDecompressLZ4RoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)
	compressed, err := compressLZ4(data)
	must(t, err)
	decompressed, err := decompressLZ4(compressed)
	must(t, err)
	if !bytes.Equal(data, decompressed) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(decompressed), len(data))
	}
}
