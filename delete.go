package casloader

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/casloader/store"
)

// Delete removes key from the static-acceleration tier and this store; if
// recurse is true and a next loader exists, it's deleted there first.
func (l *Loader) Delete(ctx context.Context, key any, recurse bool) error {
	keyStr := fmt.Sprint(key)
	if l.tier != nil {
		l.tier.Delete(keyStr)
	}
	if recurse && l.next != nil {
		if err := l.next.Delete(ctx, key, recurse); err != nil {
			return err
		}
	}
	if err := l.store.Delete(ctx, l.parseKey(key)); err != nil {
		l.hooks.ProviderFault("Delete", keyStr, err)
		return &StoreFaultError{Op: "Delete", Key: keyStr, Err: err}
	}
	return nil
}

// DeleteMany batch-deletes keys the same way Delete does for one key.
func (l *Loader) DeleteMany(ctx context.Context, keys []any, recurse bool) (int, error) {
	if l.tier != nil {
		for _, k := range keys {
			l.tier.Delete(fmt.Sprint(k))
		}
	}
	if recurse && l.next != nil {
		if _, err := l.next.DeleteMany(ctx, keys, recurse); err != nil {
			return 0, err
		}
	}

	parsedKeys := make([]store.Key, len(keys))
	for i, k := range keys {
		parsedKeys[i] = l.parseKey(k)
	}
	n, err := l.store.DeleteMany(ctx, parsedKeys)
	if err != nil {
		l.hooks.ProviderFault("DeleteMany", "", err)
		return n, &StoreFaultError{Op: "DeleteMany", Err: err}
	}
	return n, nil
}

// Purge empties the static-acceleration tier, purges this store, and
// recursively purges the next loader.
func (l *Loader) Purge(ctx context.Context) error {
	if l.tier != nil {
		l.tier.Purge()
	}
	if l.next != nil {
		if err := l.next.Purge(ctx); err != nil {
			return err
		}
	}
	if err := l.store.Purge(ctx); err != nil {
		l.hooks.ProviderFault("Purge", "", err)
		return &StoreFaultError{Op: "Purge", Err: err}
	}
	l.hooks.InvalidationApplied("purge", 0)
	return nil
}
