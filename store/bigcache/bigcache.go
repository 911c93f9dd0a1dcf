// Package bigcache implements store.Store on top of BigCache, a
// byte-oriented store with no per-entry TTL: every entry shares the
// cache's configured LifeWindow. Composed envelope values are framed
// through a store.EnvelopeCodec defaulting to msgpack, so the TTL a
// caller asked for still travels with the value even though BigCache
// itself can't enforce it.
package bigcache

import (
	"context"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/casloader/codec"
	"github.com/unkn0wn-root/casloader/store"
)

// Config mirrors BigCache's own tuning knobs.
type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int

	// Codec encodes/decodes composed envelope values to bytes. Defaults
	// to store.EnvelopeCodec{Payload: codec.Msgpack[any]{}}.
	Codec store.PayloadCodec
}

// Store is a store.Store backed by BigCache.
type Store struct {
	c     *bc.BigCache
	codec store.PayloadCodec
}

var _ store.Store = (*Store)(nil)

// New returns a Store, configuring BigCache from cfg.
func New(cfg Config) (*Store, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}

	pc := cfg.Codec
	if pc == nil {
		pc = store.EnvelopeCodec{Payload: codec.Msgpack[any]{}}
	}
	return &Store{c: c, codec: pc}, nil
}

func (s *Store) Get(_ context.Context, key store.Key) (any, bool, error) {
	b, err := s.c.Get(key.String())
	if err == bc.ErrEntryNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := s.codec.Decode(b)
	if err != nil {
		// self-heal: the entry can't be reconstructed, drop it.
		_ = s.c.Delete(key.String())
		return nil, false, nil
	}
	return v, true, nil
}

func (s *Store) GetMany(ctx context.Context, keys []store.Key) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k.String()] = v
		}
	}
	return out, nil
}

// Set encodes value through the configured codec. BigCache has no
// per-entry TTL; ttl is carried inside the envelope by the caller rather
// than enforced here.
func (s *Store) Set(_ context.Context, key store.Key, value any, _ time.Duration) (bool, error) {
	b, err := s.codec.Encode(value)
	if err != nil {
		return false, err
	}
	if err := s.c.Set(key.String(), b); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SetMany(ctx context.Context, items map[store.Key]any, ttl time.Duration) (int, error) {
	n := 0
	for k, v := range items {
		ok, err := s.Set(ctx, k, v, ttl)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *Store) Delete(_ context.Context, key store.Key) error {
	err := s.c.Delete(key.String())
	if err == bc.ErrEntryNotFound {
		return nil
	}
	return err
}

func (s *Store) DeleteMany(ctx context.Context, keys []store.Key) (int, error) {
	n := 0
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Store) Has(_ context.Context, key store.Key) (bool, error) {
	_, err := s.c.Get(key.String())
	if err == bc.ErrEntryNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) HasAll(ctx context.Context, keys []store.Key) (bool, error) {
	for _, k := range keys {
		ok, err := s.Has(ctx, k)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) HasAny(ctx context.Context, keys []store.Key) (bool, error) {
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

func (s *Store) Purge(_ context.Context) error {
	return s.c.Reset()
}

func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{
		NativeTTL:           false,
		MultipleIdentifiers: true,
		DereferencesObjects: true,
		KeyAware:            true,
		Lockable:            false,
	}
}

func (s *Store) Close(_ context.Context) error {
	return s.c.Close()
}
