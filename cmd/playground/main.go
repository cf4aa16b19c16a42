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

// Command playground exercises every durable structure end-to-end
// against spec.md §8's six literal scenarios, backed by hoststore/file by
// default or hoststore/s3 with -backend=s3. "deactivate/reactivate" is
// simulated the way a real host would force it: the in-memory struct is
// dropped and a fresh one is recovered from the same storage key, so the
// only state that can possibly survive is whatever was actually written
// durably.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dc0d/onexit"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/launix-de/durablestatemachines/cancellation"
	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/hoststore/archive"
	"github.com/launix-de/durablestatemachines/hoststore/file"
	"github.com/launix-de/durablestatemachines/hoststore/s3"
	"github.com/launix-de/durablestatemachines/lookup"
	"github.com/launix-de/durablestatemachines/priorityqueue"
	"github.com/launix-de/durablestatemachines/protocol"
	"github.com/launix-de/durablestatemachines/ring"
	"github.com/launix-de/durablestatemachines/stack"
	"github.com/launix-de/durablestatemachines/tree"
)

func main() {
	fs := flag.NewFlagSet("playground", flag.ExitOnError)
	dir := fs.String("dir", "./playground-data", "base directory for the file-backed hoststore")
	compactAboveStr := fs.String("compact-above", "64KiB", "human-readable log size, parsed and printed at demo start; no snapshot is triggered by it")
	backend := fs.String("backend", "file", "LogStorage backend to exercise: file or s3")
	fs.Parse(argsAfterSubcommand())

	compactAbove, err := units.FromHumanSize(*compactAboveStr)
	if err != nil {
		log.Fatalf("playground: invalid -compact-above %q: %v", *compactAboveStr, err)
	}

	switch subcommand() {
	case "demo":
		runDemo(*dir, compactAbove, *backend)
	case "archive":
		runArchive(*dir, fs.Args())
	default:
		fmt.Fprintln(os.Stderr, "usage: playground <demo|archive> [-dir=...] [-compact-above=...] [-backend=file|s3] [args]")
		os.Exit(2)
	}
}

// openStorage builds the LogStorage backend named by -backend. "s3" reads
// its bucket/region/credentials from the same environment variables the
// hoststore/s3 integration test is gated on, so the playground and the
// test share one configuration story.
func openStorage(dir, backend string) (durable.LogStorage, func(), error) {
	switch backend {
	case "file":
		store, err := file.New(dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case "s3":
		bucket := os.Getenv("DURABLE_S3_TEST_BUCKET")
		if bucket == "" {
			return nil, nil, fmt.Errorf("playground: -backend=s3 requires DURABLE_S3_TEST_BUCKET (and optionally DURABLE_S3_REGION, DURABLE_S3_ENDPOINT, DURABLE_S3_PREFIX) to be set")
		}
		store := s3.New(s3.Config{
			Region:         os.Getenv("DURABLE_S3_REGION"),
			Endpoint:       os.Getenv("DURABLE_S3_ENDPOINT"),
			Bucket:         bucket,
			Prefix:         os.Getenv("DURABLE_S3_PREFIX"),
			ForcePathStyle: os.Getenv("DURABLE_S3_ENDPOINT") != "",
		})
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("playground: unknown -backend %q (want file or s3)", backend)
	}
}

func subcommand() string {
	if len(os.Args) < 2 {
		return ""
	}
	return os.Args[1]
}

func argsAfterSubcommand() []string {
	if len(os.Args) < 3 {
		return nil
	}
	return os.Args[2:]
}

// pendingWriters collects activations a scenario has opened, so the
// onexit hook can flush them if the process is interrupted mid-demo.
type pendingWriters struct {
	mu   sync.Mutex
	acts []*durable.Activation
}

func (p *pendingWriters) track(a *durable.Activation) *durable.Activation {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acts = append(p.acts, a)
	return a
}

func (p *pendingWriters) flushAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range p.acts {
		if err := a.WriteState(); err != nil {
			log.Printf("playground: flush on exit: %v", err)
		}
	}
}

func runDemo(dir string, compactAbove int64, backend string) {
	store, closeStore, err := openStorage(dir, backend)
	if err != nil {
		log.Fatalf("playground: opening hoststore/%s: %v", backend, err)
	}
	defer closeStore()

	runID := uuid.New()
	log.Printf("playground[%s]: demo starting backend=%s dir=%s, compact-above=%s", runID, backend, dir, units.HumanSize(float64(compactAbove)))

	pending := &pendingWriters{}
	onexit.Add(pending.flushAll)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			pending.flushAll()
			os.Exit(130)
		}
	}()

	if fileStore, ok := store.(*file.Store); ok {
		go watchForExternalCompaction(fileStore)
	}

	// Fan out the five independent structures' initial recovery the way a
	// host's startup supervisor recovers many keys concurrently, bounding
	// how many Replay sessions run at once with a codec session pool.
	sessions := protocol.NewSessionPool(2)
	var eg errgroup.Group
	keys := []string{"s1-stack", "s2-priorityqueue", "s3-orderedset-lookup", "s4-tree", "s5-ring"}
	for _, k := range keys {
		k := k
		eg.Go(func() error {
			id := uuid.New()
			session, err := sessions.Acquire(context.Background())
			if err != nil {
				return fmt.Errorf("warm-up %q: acquiring codec session: %w", k, err)
			}
			defer session.Release()
			entries, err := store.Replay(k)
			if err != nil {
				return fmt.Errorf("warm-up %q: replay: %w", k, err)
			}
			log.Printf("playground[%s]: warmed up key %q, %d entries already on disk", id, k, len(entries))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		log.Fatalf("playground: startup fan-out: %v", err)
	}

	scenarioS1(store, pending)
	scenarioS2(store, pending)
	scenarioS3(store, pending)
	scenarioS4(store, pending)
	scenarioS5(store, pending)
	scenarioS6(store, pending)

	log.Printf("playground[%s]: demo complete", runID)
}

func watchForExternalCompaction(store *file.Store) {
	for key := range store.Changed() {
		log.Printf("playground: file change reported for key %q", key)
	}
}

func mustActivate[T durable.StateMachine](pending *pendingWriters, key string, sm T, storage durable.LogStorage) T {
	act, err := durable.NewActivation(key, sm, storage)
	if err != nil {
		log.Fatalf("playground: activating %q: %v", key, err)
	}
	pending.track(act)
	return sm
}

// scenarioS1 — stack persistence.
func scenarioS1(store durable.LogStorage, pending *pendingWriters) {
	const key = "s1-stack"
	s := mustActivate(pending, key, stack.New[string](protocol.StringCodec{}), store)
	mustOK(s.Push("one"))
	mustOK(s.Push("two"))
	mustOK(s.Push("three"))

	// deactivate: drop s, recover fresh from storage
	s2 := mustActivate(pending, key, stack.New[string](protocol.StringCodec{}), store)
	if got := s2.Count(); got != 3 {
		log.Fatalf("S1: count after reactivation = %d, want 3", got)
	}
	top, err := s2.Peek()
	mustOK(err)
	if top != "three" {
		log.Fatalf("S1: peek = %q, want three", top)
	}
	popped, err := s2.Pop()
	mustOK(err)
	if popped != "three" || s2.Count() != 2 {
		log.Fatalf("S1: pop = %q, count = %d, want three, 2", popped, s2.Count())
	}
	log.Printf("S1 stack persistence: ok")
}

// scenarioS2 — priority queue restore across a forced snapshot.
func scenarioS2(store durable.LogStorage, pending *pendingWriters) {
	const key = "s2-priorityqueue"
	pq := mustActivate(pending, key, priorityqueue.New[string](protocol.StringCodec{}), store)
	for i := 100; i >= 1; i-- {
		mustOK(pq.Enqueue(fmt.Sprintf("item-%d", i), float64(i)))
	}
	storeSnapshot(store, key, pq)

	pq2 := mustActivate(pending, key, priorityqueue.New[string](protocol.StringCodec{}), store)
	for want := 1; want <= 100; want++ {
		_, pri, ok, err := pq2.TryDequeue()
		mustOK(err)
		if !ok || int(pri) != want {
			log.Fatalf("S2: dequeue #%d priority = %v, ok=%v, want %d", want, pri, ok, want)
		}
	}
	log.Printf("S2 priority queue restore: ok")
}

func storeSnapshot(store durable.LogStorage, key string, sm durable.StateMachine) {
	a, err := durable.NewActivation(key, sm, store)
	mustOK(err)
	mustOK(a.Snapshot())
}

// scenarioS3 — ordered set lookup preserves first-seen order and dedups.
func scenarioS3(store durable.LogStorage, pending *pendingWriters) {
	const key = "s3-orderedset-lookup"
	l := mustActivate(pending, key, lookup.NewOrderedSet[string, string](protocol.StringCodec{}, protocol.StringCodec{}), store)
	const userID = "user-42"
	mustBoolOK(l.Add(userID, "product-123"))
	mustBoolOK(l.Add(userID, "product-456"))
	added, err := l.Add(userID, "product-123")
	mustOK(err)
	if added {
		log.Fatalf("S3: re-adding product-123 should report false (already present)")
	}
	got := l.Get(userID)
	want := []string{"product-123", "product-456"}
	if !equalStrings(got, want) {
		log.Fatalf("S3: ordered values = %v, want %v", got, want)
	}
	log.Printf("S3 ordered set lookup order: ok")
}

// scenarioS4 — ternary tree of 100 nodes survives deactivation.
func scenarioS4(store durable.LogStorage, pending *pendingWriters) {
	const key = "s4-tree"
	t := mustActivate(pending, key, tree.New[int64, int64](protocol.Int64Codec{}, protocol.Int64Codec{}), store)
	mustOK(t.SetRoot(0, 0))
	for i := int64(1); i <= 99; i++ {
		parent := (i - 1) / 3
		mustOK(t.Add(parent, i, i))
	}

	t2 := mustActivate(pending, key, tree.New[int64, int64](protocol.Int64Codec{}, protocol.Int64Codec{}), store)
	for i := int64(1); i <= 99; i++ {
		want := (i - 1) / 3
		got, ok := t2.Parent(i)
		if !ok || got != want {
			log.Fatalf("S4: parent(%d) = %v, %v, want %d, true", i, got, ok, want)
		}
	}
	log.Printf("S4 tree restore: ok")
}

// scenarioS5 — ring buffer capacity changes survive repeated deactivation.
func scenarioS5(store durable.LogStorage, pending *pendingWriters) {
	const key = "s5-ring"
	b := mustActivate(pending, key, ring.New[int64](protocol.Int64Codec{}, 100), store)
	for i := int64(1); i <= 100; i++ {
		mustOK(b.Enqueue(i))
	}
	storeSnapshot(store, key, b)

	b2 := mustActivate(pending, key, ring.New[int64](protocol.Int64Codec{}, 100), store)
	mustBoolOK(b2.SetCapacity(50))

	b3 := mustActivate(pending, key, ring.New[int64](protocol.Int64Codec{}, 100), store)
	want := make([]int64, 0, 50)
	for i := int64(51); i <= 100; i++ {
		want = append(want, i)
	}
	if got := collectInt64(b3); !equalInt64(got, want) || b3.Capacity() != 50 {
		log.Fatalf("S5: after shrink, contents = %v (want %v), capacity = %d (want 50)", got, want, b3.Capacity())
	}

	mustBoolOK(b3.SetCapacity(150))
	b4 := mustActivate(pending, key, ring.New[int64](protocol.Int64Codec{}, 100), store)
	if got := collectInt64(b4); !equalInt64(got, want) || b4.Capacity() != 150 || b4.Count() != 50 {
		log.Fatalf("S5: after growth, contents = %v (want %v), capacity = %d (want 150), count = %d (want 50)", got, want, b4.Capacity(), b4.Count())
	}
	log.Printf("S5 ring buffer capacity-change replay: ok")
}

// scenarioS6 — durable cancellation recovers a scheduled deadline.
//
// Unlike the other five scenarios, this one drives its own Activation
// instead of going through mustActivate/pendingWriters: cancellation is
// batch-on-AppendEntries, so ScheduleCancel alone only flips in-memory
// state, and the scenario must call write_state explicitly before each
// simulated deactivation for the schedule to survive it.
func scenarioS6(store durable.LogStorage, _ *pendingWriters) {
	const key = "s6-cancellation"
	clockT := int64(0)
	clock := func() time.Time { return time.Unix(clockT, 0) }

	c := cancellation.New(clock)
	act, err := durable.NewActivation(key, c, store)
	mustOK(err)
	mustOK(c.ScheduleCancel(4 * time.Second))
	mustOK(act.WriteState()) // host flushes write_state before deactivating

	clockT = 1
	c2 := cancellation.New(clock)
	if _, err := durable.NewActivation(key, c2, store); err != nil {
		log.Fatalf("S6: reactivate: %v", err)
	}
	if c2.IsCancelled() {
		log.Fatalf("S6: should not be cancelled after only 1 of 4 seconds")
	}

	clockT = 1 + 4 // advance another 3.5s+ past t=1, well past the t=4 deadline
	c3 := cancellation.New(clock)
	if _, err := durable.NewActivation(key, c3, store); err != nil {
		log.Fatalf("S6: reactivate: %v", err)
	}
	if !c3.IsCancelled() {
		log.Fatalf("S6: should be cancelled once the deadline has passed")
	}
	select {
	case <-c3.Done():
	default:
		log.Fatalf("S6: Done should close once recovery auto-persists the expired cancellation")
	}

	c4 := cancellation.New(clock)
	if _, err := durable.NewActivation(key, c4, store); err != nil {
		log.Fatalf("S6: reactivate: %v", err)
	}
	if !c4.IsCancelled() {
		log.Fatalf("S6: a subsequent reactivation must also observe the cancellation")
	}
	log.Printf("S6 durable cancellation recovery: ok")
}

func runArchive(dir string, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: playground archive <key>")
		os.Exit(2)
	}
	key := args[0]
	store, err := file.New(dir)
	if err != nil {
		log.Fatalf("playground archive: opening hoststore/file at %q: %v", dir, err)
	}
	defer store.Close()

	data, ok, err := store.ReadSnapshotRaw(key)
	if err != nil {
		log.Fatalf("playground archive: reading snapshot for %q: %v", key, err)
	}
	if !ok {
		log.Fatalf("playground archive: no snapshot for key %q (compact it first)", key)
	}

	xzPath := store.SnapshotPath(key) + ".xz"
	out, err := os.Create(xzPath)
	if err != nil {
		log.Fatalf("playground archive: creating %q: %v", xzPath, err)
	}
	defer out.Close()

	compressed := archive.CompressXZ(bytes.NewReader(data))
	written, err := io.Copy(out, compressed)
	if err != nil {
		log.Fatalf("playground archive: writing %q: %v", xzPath, err)
	}
	log.Printf("playground archive: wrote %s (%d bytes) for key %q", xzPath, written, key)
}

func mustOK(err error) {
	if err != nil {
		log.Fatalf("playground: %v", err)
	}
}

func mustBoolOK(_ bool, err error) {
	mustOK(err)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalInt64(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func collectInt64(b *ring.Buffer[int64]) []int64 {
	out := make([]int64, 0, b.Count())
	for v := range b.All() {
		out = append(out, v)
	}
	return out
}
