package casloader

import (
	"fmt"
	"time"

	"context"

	"github.com/unkn0wn-root/casloader/cacheable"
	"github.com/unkn0wn-root/casloader/envelope"
	"github.com/unkn0wn-root/casloader/store"
)

// Set writes value under key, propagating ancestor-first through the
// chain.
func (l *Loader) Set(ctx context.Context, key, value any) (bool, error) {
	return l.set(ctx, key, value, nil)
}

// SetVersioned writes value under key tagged with version. A cache must
// be used either entirely versioned or entirely unversioned; mixing is a
// contract violation surfaced on the read path.
func (l *Loader) SetVersioned(ctx context.Context, key, value any, version uint64) (bool, error) {
	return l.set(ctx, key, value, &version)
}

func (l *Loader) set(ctx context.Context, callerKey, value any, version *uint64) (bool, error) {
	if l.next != nil {
		if _, err := l.next.set(ctx, callerKey, value, version); err != nil {
			return false, err
		}
	}
	return l.writeLocal(ctx, callerKey, value, version)
}

// SetMany writes every entry in items, propagating ancestor-first.
// version, if non-nil, applies to every entry.
func (l *Loader) SetMany(ctx context.Context, items map[any]any, version *uint64) (int, error) {
	if l.next != nil {
		if _, err := l.next.SetMany(ctx, items, version); err != nil {
			return 0, err
		}
	}

	composed := make(map[store.Key]any, len(items))
	keyOf := make(map[store.Key]any, len(items))
	n := 0
	for k, v := range items {
		c, err := l.composeForStore(v, version)
		if err != nil {
			return n, err
		}
		if l.tier != nil {
			l.tier.Set(fmt.Sprint(k), envelope.StripTTL(c))
		}
		pk := l.parseKey(k)
		composed[pk] = c
		keyOf[pk] = k
		n++
	}

	ttl := l.storeTTL()
	count, err := l.store.SetMany(ctx, composed, ttl)
	if err != nil {
		l.hooks.ProviderFault("SetMany", "", err)
		return count, &StoreFaultError{Op: "SetMany", Err: err}
	}
	return count, nil
}

// writeLocal composes the envelope and writes to this loader's own tier
// and store only — never to next. Used both by Set's propagation step and
// by backfill (which must only ever touch the local tier).
func (l *Loader) writeLocal(ctx context.Context, callerKey, value any, version *uint64) (bool, error) {
	keyStr := fmt.Sprint(callerKey)

	composed, err := l.composeForStore(value, version)
	if err != nil {
		return false, err
	}

	if l.tier != nil {
		l.tier.Set(keyStr, envelope.StripTTL(composed))
	}

	parsedKey := l.parseKey(callerKey)
	ok, err := l.store.Set(ctx, parsedKey, composed, l.storeTTL())
	if err != nil {
		l.hooks.ProviderFault("Set", keyStr, err)
		return false, &StoreFaultError{Op: "Set", Key: keyStr, Err: err}
	}
	return ok, nil
}

// composeForStore builds the value envelope per the fixed composition
// order: cached-object marker innermost, then TTL (only when this cache
// has a TTL and the store can't enforce one natively), then version
// outermost.
func (l *Loader) composeForStore(value any, version *uint64) (any, error) {
	var marker *cacheable.Marker
	if obj, ok := value.(cacheable.Object); ok {
		m, err := obj.ToCacheable()
		if err != nil {
			return nil, fmt.Errorf("casloader: ToCacheable: %w", err)
		}
		marker = &m
	}

	var ttlExpiry *float64
	if l.def.TTL() > 0 && !l.store.Capabilities().NativeTTL {
		e := l.clock.Now() + l.def.TTL().Seconds()
		ttlExpiry = &e
	}

	return envelope.Compose(value, marker, ttlExpiry, version), nil
}

func (l *Loader) storeTTL() time.Duration {
	if l.store.Capabilities().NativeTTL {
		return l.def.TTL()
	}
	return 0
}
