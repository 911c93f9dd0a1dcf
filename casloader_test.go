package casloader

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/casloader/store"
)

// memEntry/memStore are a plain in-memory store.Store double: everything
// lives as live Go values (DereferencesObjects: false), so tests can
// observe the reference-safety breaker doing its job.
type memEntry struct {
	v   any
	exp time.Time // zero => no TTL
}

type memStore struct {
	mu   sync.Mutex
	m    map[string]memEntry
	caps store.Capabilities
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{m: make(map[string]memEntry)}
}

func (s *memStore) Get(_ context.Context, key store.Key) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key.String()]
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(s.m, key.String())
		return nil, false, nil
	}
	return e.v, true, nil
}

func (s *memStore) GetMany(ctx context.Context, keys []store.Key) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok, _ := s.Get(ctx, k); ok {
			out[k.String()] = v
		}
	}
	return out, nil
}

func (s *memStore) Set(_ context.Context, key store.Key, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.m[key.String()] = memEntry{v: value, exp: exp}
	return true, nil
}

func (s *memStore) SetMany(ctx context.Context, items map[store.Key]any, ttl time.Duration) (int, error) {
	n := 0
	for k, v := range items {
		if _, err := s.Set(ctx, k, v, ttl); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *memStore) Delete(_ context.Context, key store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key.String())
	return nil
}

func (s *memStore) DeleteMany(ctx context.Context, keys []store.Key) (int, error) {
	for _, k := range keys {
		_ = s.Delete(ctx, k)
	}
	return len(keys), nil
}

func (s *memStore) Has(ctx context.Context, key store.Key) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *memStore) HasAll(ctx context.Context, keys []store.Key) (bool, error) {
	for _, k := range keys {
		ok, err := s.Has(ctx, k)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (s *memStore) HasAny(ctx context.Context, keys []store.Key) (bool, error) {
	for _, k := range keys {
		ok, err := s.Has(ctx, k)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Purge(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string]memEntry)
	return nil
}

func (s *memStore) Capabilities() store.Capabilities { return s.caps }

func (s *memStore) has(storageKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[storageKey]
	return ok
}

// fakeSource is a minimal datasource.Source + datasource.VersionedSource
// test double backed by a plain map.
type fakeSource struct {
	mu       sync.Mutex
	values   map[string]any
	versions map[string]uint64
	calls    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{values: map[string]any{}, versions: map[string]uint64{}}
}

func (f *fakeSource) set(key string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = v
}

func (f *fakeSource) setVersioned(key string, v any, version uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = v
	f.versions[key] = version
}

func (f *fakeSource) LoadForCache(_ context.Context, key any) (any, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	v, ok := f.values[keyString(key)]
	return v, ok, nil
}

func (f *fakeSource) LoadManyForCache(_ context.Context, keys []any) (map[any]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[any]any, len(keys))
	for _, k := range keys {
		if v, ok := f.values[keyString(k)]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeSource) LoadForCacheVersioned(_ context.Context, key any, requiredVersion uint64) (any, uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	ks := keyString(key)
	v, ok := f.values[ks]
	if !ok {
		return nil, 0, false, nil
	}
	return v, f.versions[ks], true, nil
}

func keyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return ""
}
