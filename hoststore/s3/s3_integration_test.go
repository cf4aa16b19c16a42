//go:build integration

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

// This file only builds with -tags=integration, and every test in it
// skips unless DURABLE_S3_TEST_BUCKET names a real (or MinIO-compatible)
// bucket to run against, matching how host-backend integration tests are
// usually gated in this ecosystem.
package s3_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/launix-de/durablestatemachines/hoststore/s3"
)

func newIntegrationStore(t *testing.T) *s3.Store {
	t.Helper()
	bucket := os.Getenv("DURABLE_S3_TEST_BUCKET")
	if bucket == "" {
		t.Skip("DURABLE_S3_TEST_BUCKET not set, skipping s3 integration test")
	}
	return s3.New(s3.Config{
		Region:         os.Getenv("DURABLE_S3_REGION"),
		Endpoint:       os.Getenv("DURABLE_S3_ENDPOINT"),
		Bucket:         bucket,
		Prefix:         os.Getenv("DURABLE_S3_PREFIX"),
		ForcePathStyle: os.Getenv("DURABLE_S3_ENDPOINT") != "",
	})
}

func TestIntegrationAppendEntryThenReplay(t *testing.T) {
	store := newIntegrationStore(t)
	key := fmt.Sprintf("durable-s3-test-%d", os.Getpid())

	for _, entry := range []string{"one", "two", "three"} {
		if err := store.AppendEntry(key, []byte(entry)); err != nil {
			t.Fatalf("AppendEntry(%q): %v", entry, err)
		}
	}

	entries, err := store.Replay(key)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Replay returned %d entries, want 3", len(entries))
	}
	for i, want := range []string{"one", "two", "three"} {
		if string(entries[i]) != want {
			t.Fatalf("entry %d = %q, want %q", i, entries[i], want)
		}
	}
}

func TestIntegrationAppendSnapshotReplacesLog(t *testing.T) {
	store := newIntegrationStore(t)
	key := fmt.Sprintf("durable-s3-test-snap-%d", os.Getpid())

	if err := store.AppendEntry(key, []byte("stale")); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	if err := store.AppendSnapshot(key, []byte("snapshot-payload")); err != nil {
		t.Fatalf("AppendSnapshot: %v", err)
	}

	entries, err := store.Replay(key)
	if err != nil {
		t.Fatalf("Replay after snapshot: %v", err)
	}
	if len(entries) != 1 || string(entries[0]) != "snapshot-payload" {
		t.Fatalf("Replay after snapshot = %v, want [snapshot-payload]", entries)
	}
}
