// Package store defines the capability contract a Loader needs from a
// backing store, matching spec.md §6's Store contract: batched ops, a
// probed-once capability set, and optional lockability.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Key is a parsed storage key, produced by keys.Parser. Multi is true when
// the definition uses multiple identifiers and the key carries its
// component parts separately instead of a single opaque hash.
type Key struct {
	Hash        string
	Component   string
	Area        string
	Identifiers []string
	UserKey     string
	Multi       bool
}

// String renders the key to the flat string form most stores key entries
// by.
func (k Key) String() string {
	if !k.Multi {
		return k.Hash
	}
	return fmt.Sprintf("%s:%s:%s:%s", k.Component, k.Area, strings.Join(k.Identifiers, ","), k.UserKey)
}

// Capabilities describes what a Store can do natively. A Loader does not
// cache it: it calls Capabilities on every operation that depends on a
// flag, so a Store returns the same value on every call.
type Capabilities struct {
	NativeTTL           bool
	MultipleIdentifiers bool
	DereferencesObjects bool
	KeyAware            bool
	Lockable            bool
}

// LockState is the result of CheckLockState.
type LockState int

const (
	NotHeld LockState = iota
	Held
	HeldByOther
)

// Store is the minimal contract a Loader needs from a backing store.
type Store interface {
	Get(ctx context.Context, key Key) (any, bool, error)
	GetMany(ctx context.Context, keys []Key) (map[string]any, error)
	Set(ctx context.Context, key Key, value any, ttl time.Duration) (bool, error)
	SetMany(ctx context.Context, items map[Key]any, ttl time.Duration) (int, error)
	Delete(ctx context.Context, key Key) error
	DeleteMany(ctx context.Context, keys []Key) (int, error)
	Has(ctx context.Context, key Key) (bool, error)
	HasAll(ctx context.Context, keys []Key) (bool, error)
	HasAny(ctx context.Context, keys []Key) (bool, error)
	Purge(ctx context.Context) error
	Capabilities() Capabilities
}

// Lockable is implemented by stores that can arbitrate advisory per-key
// write locks natively (e.g. Redis SETNX). For a store that doesn't
// implement it, a Loader with RequireLockingBeforeWrite set uses its
// configured secondary LockStore, or an in-process lock table if none is
// configured.
type Lockable interface {
	AcquireLock(ctx context.Context, key, owner string) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
	CheckLockState(ctx context.Context, key, owner string) (LockState, error)
}

// LockStore is a standalone lock arbiter for stores that aren't
// themselves Lockable.
type LockStore = Lockable

// ByteCounter is implemented by stores that can report the size of the
// last I/O they performed, for observability hooks.
type ByteCounter interface {
	GetLastIOBytes() int64
}
