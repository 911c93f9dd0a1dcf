// Package invalidation implements the event-invalidation engine from
// spec.md §4.6: a well-known registry cache, named by convention
// core/eventinvalidation, holds {key -> purge-token} records per event
// name. Every loader tracks its own lastinvalidation token and, on its
// first relevant operation in a request, compares the registry's records
// against it to decide what (if anything) to delete or purge.
package invalidation

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/casloader/clock"
	"github.com/unkn0wn-root/casloader/store"
)

// RegistryName is the well-known convention name for the event-invalidation
// registry cache.
const RegistryName = "core/eventinvalidation"

// PurgedKey is the distinguished record key meaning "the whole cache was
// purged at this token."
const PurgedKey = "purged"

// lastInvalidationKey is the bookkeeping key a Target stores its own
// lastinvalidation token under, inside its own store.
const lastInvalidationKey = "lastinvalidation"

// Target is the minimal surface Engine.Process needs from a loader: a
// place to read/write its own lastinvalidation bookkeeping, its
// subscribed event names, and the ability to apply a deletion or purge.
type Target interface {
	InvalidationEvents() []string
	RawGet(ctx context.Context, bookkeepingKey string) (any, bool, error)
	RawSet(ctx context.Context, bookkeepingKey string, value any) error
	DeleteKeys(ctx context.Context, keys []string) error
	Purge(ctx context.Context) error
}

// Registry is the event-invalidation record store: per event name, a map
// of key to the purge token it was invalidated at.
type Registry interface {
	Records(ctx context.Context, event string) (map[string]string, error)
	PutRecord(ctx context.Context, event, key, token string) error
}

// StoreRegistry implements Registry directly on a store.Store, keyed by
// event name under the RegistryName component.
type StoreRegistry struct {
	mu    sync.Mutex
	store store.Store
}

// NewStoreRegistry returns a Registry backed by s.
func NewStoreRegistry(s store.Store) *StoreRegistry {
	return &StoreRegistry{store: s}
}

func (r *StoreRegistry) recordsKey(event string) store.Key {
	return store.Key{Hash: RegistryName + ":" + event}
}

// Records returns a defensive copy of event's current {key -> token} map,
// or an empty map if no records exist yet.
func (r *StoreRegistry) Records(ctx context.Context, event string) (map[string]string, error) {
	v, ok, err := r.store.Get(ctx, r.recordsKey(event))
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]string{}, nil
	}
	m, ok := v.(map[string]string)
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(m))
	for k, tok := range m {
		out[k] = tok
	}
	return out, nil
}

// PutRecord upserts {key -> token} into event's record map.
//
// The read-modify-write isn't atomic across processes sharing the same
// backing store; Engine's conservative "equal microtime, different
// suffix compares as not-newer" rule is what tolerates that race, not a
// lock here.
func (r *StoreRegistry) PutRecord(ctx context.Context, event, key, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.Records(ctx, event)
	if err != nil {
		return err
	}
	records[key] = token
	_, err = r.store.Set(ctx, r.recordsKey(event), records, 0)
	return err
}

// Engine implements the consumer-side algorithm from spec.md §4.6.
type Engine struct {
	registry Registry
	clock    *clock.Service
}

// NewEngine returns an Engine reading records from registry and comparing
// purge tokens via clk.
func NewEngine(registry Registry, clk *clock.Service) *Engine {
	return &Engine{registry: registry, clock: clk}
}

// Process runs the invalidation algorithm against target: on a fresh
// target (no lastinvalidation yet) it just seeds the bookkeeping key and
// returns; otherwise it compares every subscribed event's records against
// the last-seen token, deletes or purges what's strictly newer, and
// advances lastinvalidation only if it took action.
func (e *Engine) Process(ctx context.Context, target Target) error {
	current := e.clock.PurgeToken(false)

	lastRaw, found, err := target.RawGet(ctx, lastInvalidationKey)
	if err != nil {
		return err
	}
	if !found {
		return target.RawSet(ctx, lastInvalidationKey, current)
	}

	last, _ := lastRaw.(string)
	if last == current {
		return nil
	}

	var purgeAll bool
	seen := make(map[string]bool)
	var keys []string

	for _, event := range target.InvalidationEvents() {
		records, err := e.registry.Records(ctx, event)
		if err != nil {
			return err
		}
		for key, token := range records {
			if clock.Compare(token, last) != 1 {
				continue // not strictly newer: stale, or a concurrent same-instant race
			}
			if key == PurgedKey {
				purgeAll = true
				continue
			}
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}

	switch {
	case purgeAll:
		if err := target.Purge(ctx); err != nil {
			return err
		}
	case len(keys) > 0:
		if err := target.DeleteKeys(ctx, keys); err != nil {
			return err
		}
	default:
		return nil // nothing strictly newer: no action, lastinvalidation stays put
	}

	fresh := e.clock.PurgeToken(true)
	return target.RawSet(ctx, lastInvalidationKey, fresh)
}
