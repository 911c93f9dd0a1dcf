// Package redis implements store.Store and store.Lockable on top of
// go-redis, for a shared, multi-replica backing store. Composed envelope
// values are framed through a store.EnvelopeCodec defaulting to CBOR.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/casloader/codec"
	"github.com/unkn0wn-root/casloader/store"
)

var ErrNilClient = errors.New("store/redis: nil client")

// releaseScript deletes a lock key only if it's still held by the owner
// that's releasing it, so one owner can never drop a lease another
// owner has since acquired.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Config configures the Redis-backed store.
type Config struct {
	Client goredis.UniversalClient
	// CloseClient should be true only if this store exclusively owns the
	// client and should close it.
	CloseClient bool
	// LockTTL bounds how long an acquired lock survives without being
	// released, guarding against a holder crashing mid-write. Defaults
	// to 30s.
	LockTTL time.Duration
	// Codec encodes/decodes composed envelope values. Defaults to
	// store.EnvelopeCodec{Payload: codec.NewCBOR[any](false)}.
	Codec store.PayloadCodec
}

// Store is a store.Store and store.Lockable backed by Redis.
type Store struct {
	rdb         goredis.UniversalClient
	closeClient bool
	lockTTL     time.Duration
	codec       store.PayloadCodec
	release     *goredis.Script
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Lockable = (*Store)(nil)
)

// New returns a Store, or an error if cfg.Client is nil.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}

	pc := cfg.Codec
	if pc == nil {
		cb, err := codec.NewCBOR[any](false)
		if err != nil {
			return nil, err
		}
		pc = store.EnvelopeCodec{Payload: cb}
	}

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}

	return &Store{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		lockTTL:     lockTTL,
		codec:       pc,
		release:     goredis.NewScript(releaseScript),
	}, nil
}

func (s *Store) Get(ctx context.Context, key store.Key) (any, bool, error) {
	b, err := s.rdb.Get(ctx, key.String()).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := s.codec.Decode(b)
	if err != nil {
		_ = s.rdb.Del(ctx, key.String()).Err()
		return nil, false, nil
	}
	return v, true, nil
}

func (s *Store) GetMany(ctx context.Context, keys []store.Key) (map[string]any, error) {
	if len(keys) == 0 {
		return map[string]any{}, nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	vals, err := s.rdb.MGet(ctx, names...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		b, ok := toBytes(v)
		if !ok {
			continue
		}
		decoded, err := s.codec.Decode(b)
		if err != nil {
			_ = s.rdb.Del(ctx, names[i]).Err()
			continue
		}
		out[names[i]] = decoded
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, key store.Key, value any, ttl time.Duration) (bool, error) {
	b, err := s.codec.Encode(value)
	if err != nil {
		return false, err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, key.String(), b, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) SetMany(ctx context.Context, items map[store.Key]any, ttl time.Duration) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if ttl < 0 {
		ttl = 0
	}

	n := 0
	_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for k, v := range items {
			b, err := s.codec.Encode(v)
			if err != nil {
				return err
			}
			p.Set(ctx, k.String(), b, ttl)
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, key store.Key) error {
	return s.rdb.Del(ctx, key.String()).Err()
}

func (s *Store) DeleteMany(ctx context.Context, keys []store.Key) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	n, err := s.rdb.Del(ctx, names...).Result()
	return int(n), err
}

func (s *Store) Has(ctx context.Context, key store.Key) (bool, error) {
	n, err := s.rdb.Exists(ctx, key.String()).Result()
	return n > 0, err
}

func (s *Store) HasAll(ctx context.Context, keys []store.Key) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	n, err := s.rdb.Exists(ctx, names...).Result()
	return int(n) == len(names), err
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

// Purge flushes the whole keyspace this store's client is bound to. This
// is only appropriate when the Redis database is dedicated to this cache.
func (s *Store) Purge(ctx context.Context) error {
	return s.rdb.FlushDB(ctx).Err()
}

func (s *Store) Capabilities() store.Capabilities {
	return store.Capabilities{
		NativeTTL:           true,
		MultipleIdentifiers: true,
		DereferencesObjects: true,
		KeyAware:            true,
		Lockable:            true,
	}
}

// AcquireLock takes the advisory lock for key using SETNX semantics, so
// only one owner holds it at a time.
func (s *Store) AcquireLock(ctx context.Context, key, owner string) (bool, error) {
	return s.rdb.SetNX(ctx, lockKey(key), owner, s.lockTTL).Result()
}

// ReleaseLock drops the lock only if owner is still the current holder.
func (s *Store) ReleaseLock(ctx context.Context, key, owner string) (bool, error) {
	n, err := s.release.Run(ctx, s.rdb, []string{lockKey(key)}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CheckLockState reports whether key is unheld, held by owner, or held by
// someone else.
func (s *Store) CheckLockState(ctx context.Context, key, owner string) (store.LockState, error) {
	held, err := s.rdb.Get(ctx, lockKey(key)).Result()
	if err == goredis.Nil {
		return store.NotHeld, nil
	}
	if err != nil {
		return store.NotHeld, err
	}
	if held == owner {
		return store.Held, nil
	}
	return store.HeldByOther, nil
}

func (s *Store) Close(_ context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func lockKey(key string) string { return "lock:" + key }

func toBytes(v any) ([]byte, bool) {
	switch vv := v.(type) {
	case []byte:
		return vv, true
	case string:
		return []byte(vv), true
	default:
		return nil, false
	}
}
