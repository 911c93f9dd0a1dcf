// Package datasource defines the contract a loader chain's terminal link
// falls back to when every store in the chain misses.
package datasource

import "context"

// Source is the unversioned data-source contract from spec.md §6.
// LoadManyForCache's result is keyed by the original caller key values
// (comparable scalars), not by any internal storage key.
type Source interface {
	LoadForCache(ctx context.Context, key any) (value any, found bool, err error)
	LoadManyForCache(ctx context.Context, keys []any) (values map[any]any, err error)
}

// VersionedSource additionally supports loading at-or-above a required
// version, returning the actual version satisfied.
type VersionedSource interface {
	Source

	LoadForCacheVersioned(ctx context.Context, key any, requiredVersion uint64) (value any, actualVersion uint64, found bool, err error)
}
