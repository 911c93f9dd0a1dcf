package casloader

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/casloader/definition"
	"github.com/unkn0wn-root/casloader/store"
)

// backfill writes a fallback-resolved value into this loader's local tier
// and store only (never to next), per §4.1 step 9: under a lock when
// RequireLockingBeforeWrite requires one.
func (l *Loader) backfill(ctx context.Context, callerKey, value any, version *uint64) error {
	keyStr := fmt.Sprint(callerKey)
	return l.withLock(ctx, keyStr, func() error {
		_, err := l.writeLocal(ctx, callerKey, value, version)
		return err
	})
}

// RawGet/RawSet give the invalidation engine a place to keep its
// lastinvalidation bookkeeping without going through envelope composition
// or the static-acceleration tier; bookkeepingKey never collides with a
// caller key because it's parsed through its own reserved store.Key.
func (l *Loader) RawGet(ctx context.Context, bookkeepingKey string) (any, bool, error) {
	return l.store.Get(ctx, l.rawKey(bookkeepingKey))
}

func (l *Loader) RawSet(ctx context.Context, bookkeepingKey string, value any) error {
	_, err := l.store.Set(ctx, l.rawKey(bookkeepingKey), value, 0)
	return err
}

func (l *Loader) rawKey(bookkeepingKey string) store.Key {
	return store.Key{Hash: "casloader/raw:" + l.def.Hash() + ":" + bookkeepingKey}
}

// DeleteKeys implements invalidation.Target by deleting string-keyed
// records (the caller keys recorded by invalidation.Publisher, already
// stringified) without recursing into next: only the loader whose
// definition subscribes to the event reacts.
func (l *Loader) DeleteKeys(ctx context.Context, keys []string) error {
	if l.tier != nil {
		for _, k := range keys {
			l.tier.Delete(k)
		}
	}
	parsedKeys := make([]store.Key, len(keys))
	for i, k := range keys {
		parsedKeys[i] = l.parseKey(k)
	}
	_, err := l.store.DeleteMany(ctx, parsedKeys)
	if err == nil {
		l.hooks.InvalidationApplied("keys", len(keys))
	}
	return err
}

// InvalidationEvents implements invalidation.Target.
func (l *Loader) InvalidationEvents() []string {
	return l.def.InvalidationEvents()
}

// SetIdentifiers replaces this loader's definition's identifier set,
// purging the static-acceleration tier if the set actually changed: a
// multi-identifier store key is derived from the identifiers, so a stale
// tier entry keyed under the old identifiers would no longer correspond
// to anything the store can address.
func (l *Loader) SetIdentifiers(newIDs []string) bool {
	changed := l.def.SetIdentifiers(newIDs)
	if changed && l.tier != nil {
		l.tier.Purge()
	}
	return changed
}

// Definition returns this loader's configuration.
func (l *Loader) Definition() *definition.Definition {
	return l.def
}

// ensureInvalidated runs the invalidation engine's algorithm at most once
// per loader instance: spec.md's "on loader initialisation or the first
// relevant operation" is modeled as a sync.Once guarding the first public
// entrypoint call, since a Loader's lifetime is one request.
func (l *Loader) ensureInvalidated(ctx context.Context) {
	if l.invEngine == nil {
		return
	}
	l.invOnce.Do(func() {
		if err := l.invEngine.Process(ctx, l); err != nil {
			l.logger.Warn("invalidation processing failed", Fields{"error": err.Error()})
			return
		}
	})
}
