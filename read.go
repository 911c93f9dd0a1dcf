package casloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/casloader/datasource"
	"github.com/unkn0wn-root/casloader/envelope"
	"github.com/unkn0wn-root/casloader/internal/scalar"
	"github.com/unkn0wn-root/casloader/store"
)

// Strictness controls what Get/GetMany do when a key is still missing
// after the whole chain (and data source, if any) has been consulted.
type Strictness int

const (
	// IgnoreMissing returns a not-found result.
	IgnoreMissing Strictness = iota
	// MustExist returns a ContractError instead of a not-found result.
	MustExist
)

// Get returns the unversioned value stored under key.
func (l *Loader) Get(ctx context.Context, key any, strictness Strictness) (any, bool, error) {
	return l.getAndEnforce(ctx, key, nil, strictness)
}

// GetVersioned returns the value stored under key if it satisfies
// requiredVersion (stored version >= requiredVersion), falling through
// the chain and data source otherwise.
func (l *Loader) GetVersioned(ctx context.Context, key any, requiredVersion uint64, strictness Strictness) (any, uint64, bool, error) {
	v, ver, found, err := l.getVersioned(ctx, key, &requiredVersion)
	if err != nil {
		return nil, 0, false, err
	}
	if !found && strictness == MustExist {
		return nil, 0, false, &ContractError{Op: "GetVersioned", Key: fmt.Sprint(key), Err: errMustExist}
	}
	return v, ver, found, nil
}

func (l *Loader) getAndEnforce(ctx context.Context, key any, requiredVersion *uint64, strictness Strictness) (any, bool, error) {
	v, _, found, err := l.getVersioned(ctx, key, requiredVersion)
	if err != nil {
		return nil, false, err
	}
	if !found && strictness == MustExist {
		return nil, false, &ContractError{Op: "Get", Key: fmt.Sprint(key), Err: errMustExist}
	}
	return v, found, nil
}

var errMustExist = errors.New("value missing under MustExist strictness")

// getVersioned is the unified internal read path for both Get and
// GetVersioned (requiredVersion nil for the former).
func (l *Loader) getVersioned(ctx context.Context, callerKey any, requiredVersion *uint64) (any, uint64, bool, error) {
	l.ensureInvalidated(ctx)
	keyStr := fmt.Sprint(callerKey)

	if l.tier != nil {
		if raw, ok := l.tier.Get(keyStr); ok {
			if tv, satisfied := tierSatisfiesVersion(raw, requiredVersion); satisfied {
				u := envelope.Unwrap(tv)
				domain, err := l.materialize(u)
				if err == nil {
					return l.refSafe(domain), u.Version, true, nil
				}
			}
		}
	}

	parsedKey := l.parseKey(callerKey)
	storedRaw, found, err := l.store.Get(ctx, parsedKey)
	if err != nil {
		l.hooks.ProviderFault("Get", keyStr, err)
		l.logger.Warn("store get failed", Fields{"key": keyStr, "error": err.Error()})
		found = false
	}

	if found {
		u := envelope.Unwrap(storedRaw)

		switch {
		case requiredVersion == nil && u.HasVersion:
			return l.healMismatch(ctx, parsedKey, keyStr, "Get",
				errors.New("unversioned read against a version-wrapped entry"))
		case requiredVersion != nil && !u.HasVersion:
			return l.healMismatch(ctx, parsedKey, keyStr, "GetVersioned",
				errors.New("versioned read against an unversioned entry"))
		}

		switch {
		case u.HasVersion && requiredVersion != nil && u.Version < *requiredVersion:
			_ = l.store.Delete(ctx, parsedKey)
			l.hooks.SelfHeal(keyStr, "version_stale")
			found = false
		case u.HasTTL && l.clock.Now() >= u.Expiry:
			_ = l.store.Delete(ctx, parsedKey)
			l.hooks.SelfHeal(keyStr, "ttl_expired")
			found = false
		default:
			domain, merr := l.materialize(u)
			if merr != nil {
				_ = l.store.Delete(ctx, parsedKey)
				l.hooks.SelfHeal(keyStr, "integrity")
				return nil, 0, false, &IntegrityError{Op: "Get", Key: keyStr, Err: merr}
			}
			if l.tier != nil {
				l.tier.Set(keyStr, envelope.StripTTL(storedRaw))
			}
			return l.refSafe(domain), u.Version, true, nil
		}
	}

	// Chain fallback (step 8).
	if l.next != nil {
		v, ver, nfound, err := l.next.getVersioned(ctx, callerKey, requiredVersion)
		if err != nil {
			return nil, 0, false, err
		}
		if !nfound {
			return nil, 0, false, nil
		}
		if err := l.backfill(ctx, callerKey, v, versionPtr(requiredVersion, ver)); err != nil {
			return nil, 0, false, err
		}
		l.hooks.BackfillMiss(keyStr)
		return l.refSafe(v), ver, true, nil
	}

	if l.source != nil {
		v, actualVersion, sfound, err := l.loadFromSource(ctx, callerKey, requiredVersion)
		if err != nil {
			return nil, 0, false, err
		}
		if !sfound {
			return nil, 0, false, nil
		}
		if err := l.backfill(ctx, callerKey, v, versionPtr(requiredVersion, actualVersion)); err != nil {
			return nil, 0, false, err
		}
		l.hooks.BackfillMiss(keyStr)
		return l.refSafe(v), actualVersion, true, nil
	}

	return nil, 0, false, nil
}

func versionPtr(requiredVersion *uint64, actual uint64) *uint64 {
	if requiredVersion == nil {
		return nil
	}
	v := actual
	return &v
}

func (l *Loader) loadFromSource(ctx context.Context, callerKey any, requiredVersion *uint64) (any, uint64, bool, error) {
	keyStr := fmt.Sprint(callerKey)
	if requiredVersion == nil {
		v, found, err := l.source.LoadForCache(ctx, callerKey)
		return v, 0, found, err
	}

	vs, ok := l.source.(datasource.VersionedSource)
	if !ok {
		return nil, 0, false, &ContractError{Op: "GetVersioned", Key: keyStr,
			Err: errors.New("data source does not support versioned loads")}
	}
	v, actual, found, err := vs.LoadForCacheVersioned(ctx, callerKey, *requiredVersion)
	if err != nil {
		return nil, 0, false, err
	}
	if !found {
		return nil, 0, false, nil
	}
	if actual < *requiredVersion {
		return nil, 0, false, &ContractError{Op: "GetVersioned", Key: keyStr,
			Err: fmt.Errorf("data source returned version %d, required %d", actual, *requiredVersion)}
	}
	return v, actual, true, nil
}

// healMismatch self-heals a version-presence contract violation: the
// offending entry is deleted before the CONTRACT error is raised, so the
// next read on this key recovers on its own.
func (l *Loader) healMismatch(ctx context.Context, parsedKey store.Key, keyStr, op string, cause error) (any, uint64, bool, error) {
	_ = l.store.Delete(ctx, parsedKey)
	l.hooks.SelfHeal(keyStr, "integrity")
	return nil, 0, false, &ContractError{Op: op, Key: keyStr, Err: cause}
}

func (l *Loader) materialize(u envelope.Unwrapped) (any, error) {
	if !u.IsCachedObject {
		return u.Data, nil
	}
	if l.cacheables == nil {
		return u.Marker, nil
	}
	return l.cacheables.Restore(u.Marker)
}

// refSafe applies the reference-safety policy (§4.7): if the definition
// doesn't use simple data, the store doesn't dereference its own entries,
// and the value isn't scalar, hand back a copy instead of the live object.
func (l *Loader) refSafe(v any) any {
	if l.def.UsesSimpleData() || l.store.Capabilities().DereferencesObjects || scalar.IsScalar(v) {
		return v
	}
	protected, err := l.breaker.Protect(v)
	if err != nil {
		return v
	}
	return protected
}

func tierSatisfiesVersion(raw any, requiredVersion *uint64) (any, bool) {
	if requiredVersion == nil {
		return raw, true
	}
	ver, ok := raw.(envelope.Version)
	if !ok || ver.Version < *requiredVersion {
		return nil, false
	}
	return raw, true
}

// GetMany returns every key found in this chain or its data source,
// keyed by the caller's original key values.
func (l *Loader) GetMany(ctx context.Context, keys []any, strictness Strictness) (map[any]any, error) {
	l.ensureInvalidated(ctx)

	out := make(map[any]any, len(keys))
	var misses []any

	for _, k := range keys {
		keyStr := fmt.Sprint(k)
		if l.tier != nil {
			if raw, ok := l.tier.Get(keyStr); ok {
				u := envelope.Unwrap(raw)
				if domain, err := l.materialize(u); err == nil {
					out[k] = l.refSafe(domain)
					continue
				}
			}
		}
		misses = append(misses, k)
	}

	if len(misses) > 0 {
		parsedKeys := make([]store.Key, len(misses))
		for i, k := range misses {
			parsedKeys[i] = l.parseKey(k)
		}
		stored, err := l.store.GetMany(ctx, parsedKeys)
		if err != nil {
			l.hooks.ProviderFault("GetMany", "", err)
			stored = map[string]any{}
		}

		var stillMissing []any
		for i, k := range misses {
			raw, ok := stored[parsedKeys[i].String()]
			if !ok {
				stillMissing = append(stillMissing, k)
				continue
			}
			u := envelope.Unwrap(raw)
			if u.HasTTL && l.clock.Now() >= u.Expiry {
				_ = l.store.Delete(ctx, parsedKeys[i])
				stillMissing = append(stillMissing, k)
				continue
			}
			domain, merr := l.materialize(u)
			if merr != nil {
				_ = l.store.Delete(ctx, parsedKeys[i])
				l.hooks.SelfHeal(fmt.Sprint(k), "integrity")
				stillMissing = append(stillMissing, k)
				continue
			}
			if l.tier != nil {
				l.tier.Set(fmt.Sprint(k), envelope.StripTTL(raw))
			}
			out[k] = l.refSafe(domain)
		}
		misses = stillMissing
	}

	if len(misses) > 0 {
		resolved, err := l.resolveMany(ctx, misses)
		if err != nil {
			return nil, err
		}
		for k, v := range resolved {
			if err := l.backfill(ctx, k, v, nil); err != nil {
				return nil, err
			}
			l.hooks.BackfillMiss(fmt.Sprint(k))
			out[k] = l.refSafe(v)
		}
	}

	if strictness == MustExist {
		for _, k := range keys {
			if _, ok := out[k]; !ok {
				return nil, &ContractError{Op: "GetMany", Key: fmt.Sprint(k), Err: errMustExist}
			}
		}
	}
	return out, nil
}

func (l *Loader) resolveMany(ctx context.Context, keys []any) (map[any]any, error) {
	if l.next != nil {
		out := make(map[any]any, len(keys))
		nextOut, err := l.next.GetMany(ctx, keys, IgnoreMissing)
		if err != nil {
			return nil, err
		}
		for k, v := range nextOut {
			out[k] = v
		}
		return out, nil
	}
	if l.source != nil {
		return l.source.LoadManyForCache(ctx, keys)
	}
	return map[any]any{}, nil
}

// Has reports whether key is present in this loader's tier or store,
// without validating TTL or version. The next loader is not consulted.
func (l *Loader) Has(ctx context.Context, key any) (bool, error) {
	if l.tier != nil && l.tier.Has(fmt.Sprint(key)) {
		return true, nil
	}
	return l.store.Has(ctx, l.parseKey(key))
}

// HasAll reports whether every key is present.
func (l *Loader) HasAll(ctx context.Context, keys []any) (bool, error) {
	for _, k := range keys {
		ok, err := l.Has(ctx, k)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// HasAny reports whether at least one key is present.
func (l *Loader) HasAny(ctx context.Context, keys []any) (bool, error) {
	for _, k := range keys {
		ok, err := l.Has(ctx, k)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

