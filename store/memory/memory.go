// Package memory implements store.Store directly on top of Ristretto,
// keeping composed envelope values as live Go objects instead of bytes.
// Because Ristretto hands back the exact value it was given, this store
// does not dereference its own entries — callers must run reads through
// refsafe before handing them further.
package memory

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/casloader/store"
)

// Config tunes the underlying Ristretto cache. NumCounters, MaxCost, and
// BufferItems follow Ristretto's own sizing guidance directly.
type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

// Store is a store.Store backed by an in-process Ristretto cache.
type Store struct {
	c *rc.Cache
}

var _ store.Store = (*Store)(nil)

// New returns a Store, or an error if cfg is missing required sizing.
func New(cfg Config) (*Store, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("store/memory: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key store.Key) (any, bool, error) {
	v, ok := s.c.Get(key.String())
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

func (s *Store) GetMany(_ context.Context, keys []store.Key) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := s.c.Get(k.String()); ok {
			out[k.String()] = v
		}
	}
	return out, nil
}

// Set stores value with a fixed cost of 1: Ristretto's cost accounting is
// meant for byte sizes, but this store deliberately never serializes its
// entries, so every entry counts the same against MaxCost.
func (s *Store) Set(_ context.Context, key store.Key, value any, ttl time.Duration) (bool, error) {
	if ttl > 0 {
		return s.c.SetWithTTL(key.String(), value, 1, ttl), nil
	}
	return s.c.Set(key.String(), value, 1), nil
}

func (s *Store) SetMany(_ context.Context, items map[store.Key]any, ttl time.Duration) (int, error) {
	n := 0
	for k, v := range items {
		var ok bool
		if ttl > 0 {
			ok = s.c.SetWithTTL(k.String(), v, 1, ttl)
		} else {
			ok = s.c.Set(k.String(), v, 1)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *Store) Delete(_ context.Context, key store.Key) error {
	s.c.Del(key.String())
	return nil
}

func (s *Store) DeleteMany(_ context.Context, keys []store.Key) (int, error) {
	for _, k := range keys {
		s.c.Del(k.String())
	}
	return len(keys), nil
}

func (s *Store) Has(_ context.Context, key store.Key) (bool, error) {
	_, ok := s.c.Get(key.String())
	return ok, nil
}

func (s *Store) HasAll(_ context.Context, keys []store.Key) (bool, error) {
	for _, k := range keys {
		if _, ok := s.c.Get(k.String()); !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) HasAny(_ context.Context, keys []store.Key) (bool, error) {
	for _, k := range keys {
		if _, ok := s.c.Get(k.String()); ok {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Purge(_ context.Context) error {
	s.c.Clear()
	return nil
}

func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{
		NativeTTL:           true,
		MultipleIdentifiers: true,
		DereferencesObjects: false,
		KeyAware:            true,
		Lockable:            false,
	}
}

// Close waits for pending Ristretto writes to settle and releases its
// resources.
func (s *Store) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}
