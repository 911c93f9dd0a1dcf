package casloader

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/unkn0wn-root/casloader/clock"
	"github.com/unkn0wn-root/casloader/definition"
	"github.com/unkn0wn-root/casloader/invalidation"
	"github.com/unkn0wn-root/casloader/keys"
	"github.com/unkn0wn-root/casloader/refsafe"
	"github.com/unkn0wn-root/casloader/store"
)

// P1: TTL expiry. Each real request gets its own clock.Service (the
// zero-config default), so expiry is observed across two Loaders sharing
// a store rather than within one frozen "now".
func TestTTLExpiryAcrossRequests(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	def := definition.New("svc", "ttl", definition.WithTTL(20*time.Millisecond))

	writer, err := New(Config{Definition: def, Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := writer.Set(ctx, "x", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reader, err := New(Config{Definition: def, Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if v, found, err := reader.Get(ctx, "x", IgnoreMissing); err != nil || !found || v != "v" {
		t.Fatalf("Get before expiry = (%v, %v, %v), want (v, true, nil)", v, found, err)
	}

	time.Sleep(30 * time.Millisecond)
	lateReader, err := New(Config{Definition: def, Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, found, err := lateReader.Get(ctx, "x", IgnoreMissing); err != nil || found {
		t.Fatalf("Get after expiry = (found=%v, err=%v), want miss", found, err)
	}
	if st.has(writer.parseKey("x").String()) {
		t.Fatal("expired entry should have been removed from the store")
	}
}

// P2: version monotonicity.
func TestVersionMonotonicity(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	def := definition.New("svc", "ver")
	l, err := New(Config{Definition: def, Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := l.SetVersioned(ctx, "k", "v3", 3); err != nil {
		t.Fatalf("SetVersioned: %v", err)
	}

	if v, ver, found, err := l.GetVersioned(ctx, "k", 2, IgnoreMissing); err != nil || !found || ver != 3 || v != "v3" {
		t.Fatalf("GetVersioned(2) = (%v, %v, %v, %v), want (v3, 3, true, nil)", v, ver, found, err)
	}

	// A strictly higher requirement than stored misses and deletes.
	if _, _, found, err := l.GetVersioned(ctx, "k", 4, IgnoreMissing); err != nil || found {
		t.Fatalf("GetVersioned(4) = (found=%v, err=%v), want miss", found, err)
	}
	if st.has(l.parseKey("k").String()) {
		t.Fatal("stale version should have been deleted")
	}
}

// P3: chain consistency — a Set on the top loader is visible on every
// loader in the chain.
func TestChainConsistency(t *testing.T) {
	ctx := context.Background()
	def := definition.New("svc", "chain")

	tailStore := newMemStore()
	tail, err := New(Config{Definition: def, Store: tailStore, SubLoader: true})
	if err != nil {
		t.Fatalf("New tail: %v", err)
	}

	headStore := newMemStore()
	head, err := New(Config{Definition: def, Store: headStore, Next: tail})
	if err != nil {
		t.Fatalf("New head: %v", err)
	}

	if _, err := head.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if v, found, err := head.Get(ctx, "k", IgnoreMissing); err != nil || !found || v != "v" {
		t.Fatalf("head.Get = (%v, %v, %v), want (v, true, nil)", v, found, err)
	}
	if v, found, err := tail.Get(ctx, "k", IgnoreMissing); err != nil || !found || v != "v" {
		t.Fatalf("tail.Get = (%v, %v, %v), want (v, true, nil)", v, found, err)
	}
}

// P5: a loader flagged as a sub-loader never gets a static-acceleration
// tier, regardless of what its definition asks for.
func TestSubLoaderAccelerationOff(t *testing.T) {
	def := definition.New("svc", "accel", definition.WithStaticAcceleration(10))
	l, err := New(Config{Definition: def, Store: newMemStore(), SubLoader: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.tier != nil {
		t.Fatal("sub-loader must not have a static-acceleration tier")
	}
	if !l.IsSubLoader() {
		t.Fatal("IsSubLoader should report true")
	}
}

type point struct {
	X, Y int
	Tags []string
}

// P6 / P10: reference safety and round-trip equality. The store doesn't
// dereference its own entries, so a caller mutating its copy must not
// affect what a later Get returns, and the returned value must still be
// equal by value to what was written.
func TestReferenceSafetyAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, err := New(Config{Definition: definition.New("svc", "refsafe"), Store: newMemStore()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	original := point{X: 1, Y: 2, Tags: []string{"a", "b"}}
	if _, err := l.Set(ctx, "p", original); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got1, found, err := l.Get(ctx, "p", IgnoreMissing)
	if err != nil || !found {
		t.Fatalf("Get = (found=%v, err=%v)", found, err)
	}
	p1 := got1.(point)
	if !reflect.DeepEqual(p1, original) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", p1, original)
	}

	// Mutate the caller's copy.
	p1.Tags[0] = "mutated"
	p1.X = 999

	got2, found, err := l.Get(ctx, "p", IgnoreMissing)
	if err != nil || !found {
		t.Fatalf("second Get = (found=%v, err=%v)", found, err)
	}
	p2 := got2.(point)
	if !reflect.DeepEqual(p2, original) {
		t.Fatalf("mutation leaked into stored value: got %+v, want %+v", p2, original)
	}
}

// P9: replacing a definition's identifier set, when it actually changes,
// empties the static-acceleration tier.
func TestSetIdentifiersPurgesTier(t *testing.T) {
	ctx := context.Background()
	def := definition.New("svc", "ids", definition.WithStaticAcceleration(10), definition.WithIdentifiers("a"))
	l, err := New(Config{Definition: def, Store: newMemStore()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if l.tier.Len() == 0 {
		t.Fatal("expected tier to hold the written entry")
	}

	if changed := l.SetIdentifiers([]string{"b"}); !changed {
		t.Fatal("SetIdentifiers should report a change")
	}
	if l.tier.Len() != 0 {
		t.Fatal("tier should be empty after an identifier change")
	}

	if changed := l.SetIdentifiers([]string{"b"}); changed {
		t.Fatal("SetIdentifiers should report no change for an identical set")
	}
}

// Scenario 1: LRU eviction. Bound = 2; set a, b, c; the tier keeps only
// b and c; a still resolves because the store itself was never bounded.
func TestScenarioLRUEviction(t *testing.T) {
	ctx := context.Background()
	def := definition.New("svc", "lru", definition.WithStaticAcceleration(2))
	st := newMemStore()
	l, err := New(Config{Definition: def, Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, kv := range []struct {
		k string
		v int
	}{{"a", 1}, {"b", 2}, {"c", 3}} {
		if _, err := l.Set(ctx, kv.k, kv.v); err != nil {
			t.Fatalf("Set(%s): %v", kv.k, err)
		}
	}

	if l.tier.Has("a") {
		t.Fatal("a should have been evicted from the tier")
	}
	if !l.tier.Has("b") || !l.tier.Has("c") {
		t.Fatal("b and c should still be in the tier")
	}

	v, found, err := l.Get(ctx, "a", IgnoreMissing)
	if err != nil || !found || v != 1 {
		t.Fatalf("Get(a) = (%v, %v, %v), want (1, true, nil) via store fallback", v, found, err)
	}
}

// Scenario 3: a version mismatch against the data source triggers a
// refetch and backfills the newer version.
func TestScenarioVersionMismatchRefetch(t *testing.T) {
	ctx := context.Background()
	def := definition.New("svc", "refetch")
	st := newMemStore()
	src := newFakeSource()
	src.setVersioned("k", "new-value", 5)

	l, err := New(Config{Definition: def, Store: st, Source: src})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := l.SetVersioned(ctx, "k", "old-value", 3); err != nil {
		t.Fatalf("SetVersioned: %v", err)
	}

	v, ver, found, err := l.GetVersioned(ctx, "k", 5, IgnoreMissing)
	if err != nil || !found || ver != 5 || v != "new-value" {
		t.Fatalf("GetVersioned = (%v, %v, %v, %v), want (new-value, 5, true, nil)", v, ver, found, err)
	}

	v2, ver2, found2, err := l.GetVersioned(ctx, "k", 5, IgnoreMissing)
	if err != nil || !found2 || ver2 != 5 || v2 != "new-value" {
		t.Fatalf("second GetVersioned = (%v, %v, %v, %v), want store now holding version 5", v2, ver2, found2, err)
	}
	if src.calls != 1 {
		t.Fatalf("expected exactly one source call, got %d", src.calls)
	}
}

// Scenario 4: whole-cache event invalidation. A "purged" record strictly
// newer than lastinvalidation causes the next operation to purge the
// store and advance lastinvalidation past it.
func TestScenarioEventInvalidationWholeCache(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewService()
	regStore := newMemStore()
	registry := invalidation.NewStoreRegistry(regStore)

	def := definition.New("svc", "invalidated", definition.WithInvalidationEvents("event1"))
	st := newMemStore()
	l, err := New(Config{Definition: def, Store: st, Clock: clk, InvalidationRegistry: registry})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t0 := clk.PurgeToken(false)
	if err := l.RawSet(ctx, "lastinvalidation", t0); err != nil {
		t.Fatalf("RawSet: %v", err)
	}
	if _, err := l.Set(ctx, "foo", "bar"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	t1 := clk.PurgeToken(true)
	if err := registry.PutRecord(ctx, "event1", invalidation.PurgedKey, t1); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	if _, _, err := l.Get(ctx, "anything", IgnoreMissing); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if st.has(l.parseKey("foo").String()) {
		t.Fatal("store should have been purged by invalidation processing")
	}

	lastRaw, found, err := l.RawGet(ctx, "lastinvalidation")
	if err != nil || !found {
		t.Fatalf("RawGet lastinvalidation = (found=%v, err=%v)", found, err)
	}
	if clock.Compare(lastRaw.(string), t1) != 1 {
		t.Fatalf("lastinvalidation should have advanced strictly past t1")
	}
}

// Scenario 5: backfill acquires and releases the advisory lock around the
// write it performs.
func TestScenarioBackfillWithLocking(t *testing.T) {
	ctx := context.Background()
	def := definition.New("svc", "locked")
	st := newMemStore()
	src := newFakeSource()
	src.set("miss", "v")

	rec := &recordingLockBackend{}
	l := &Loader{
		def:                       def,
		store:                     st,
		source:                    src,
		keyParser:                 keys.Parser{},
		clock:                     clock.NewService(),
		breaker:                   refsafe.New(refsafe.DefaultCodec()),
		hooks:                     NopHooks{},
		logger:                    NopLogger{},
		requireLockingBeforeWrite: true,
		lockBackend:               rec,
		ownerID:                   "test-owner",
	}

	v, found, err := l.Get(ctx, "miss", IgnoreMissing)
	if err != nil || !found || v != "v" {
		t.Fatalf("Get = (%v, %v, %v), want (v, true, nil)", v, found, err)
	}

	if len(rec.acquired) != 1 || rec.acquired[0] != "miss" {
		t.Fatalf("expected one Acquire(miss), got %v", rec.acquired)
	}
	if len(rec.released) != 1 || rec.released[0] != "miss" {
		t.Fatalf("expected one Release(miss), got %v", rec.released)
	}
	if rec.acquireBeforeWrite == 0 || rec.releaseAfterWrite == 0 || rec.acquireBeforeWrite >= rec.releaseAfterWrite {
		t.Fatal("expected Acquire to precede Release")
	}

	v2, found, err := l.Get(ctx, "miss", IgnoreMissing)
	if err != nil || !found || v2 != "v" {
		t.Fatalf("subsequent Get = (%v, %v, %v), want (v, true, nil) from the backfilled store", v2, found, err)
	}
}

// recordingLockBackend is a white-box lockBackend double that numbers
// Acquire/Release calls in order, to prove the lock is taken before it is
// released.
type recordingLockBackend struct {
	acquired, released []string
	seq                int
	acquireBeforeWrite int
	releaseAfterWrite  int
}

func (r *recordingLockBackend) Acquire(_ context.Context, key, _ string) (bool, error) {
	r.seq++
	r.acquired = append(r.acquired, key)
	r.acquireBeforeWrite = r.seq
	return true, nil
}

func (r *recordingLockBackend) Release(_ context.Context, key, _ string) (bool, error) {
	r.seq++
	r.released = append(r.released, key)
	r.releaseAfterWrite = r.seq
	return true, nil
}

func (r *recordingLockBackend) State(_ context.Context, _, _ string) (store.LockState, error) {
	return store.NotHeld, nil
}
