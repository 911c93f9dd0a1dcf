// Package accel implements the bounded, request-scoped "static
// acceleration" tier every loader may front its store with: an in-process
// LRU keyed by the caller's own key, skipping the key parser and the
// store entirely. Adapted from the container/list + map + mutex shape of
// a classic Go LRU.
package accel

import (
	"container/list"
	"sync"

	"github.com/unkn0wn-root/casloader/envelope"
	"github.com/unkn0wn-root/casloader/internal/scalar"
)

// Unbounded disables eviction; every entry set is kept until Delete/Purge.
const Unbounded = -1

// Codec serializes entries that aren't scalars, markers, or allowed as
// simple data, so the tier never holds a live reference to something a
// concurrent caller might still be mutating.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

type entry struct {
	key        string
	payload    any
	serialized bool
}

// Tier is a bounded LRU keyed by caller key. A Tier is not safe to share
// across loaders: spec.md requires every sub-loader (one installed as
// another loader's next loader) to have its tier disabled at construction.
type Tier struct {
	mu         sync.Mutex
	order      *list.List
	elems      map[string]*list.Element
	bound      int
	simpleData bool
	codec      Codec

	// OnEvict, if set, is called with a key's name whenever Set evicts it
	// for being least-recently-used. It is never called for an explicit
	// Delete or Purge.
	OnEvict func(key string)
}

// New returns a Tier bounded to size entries (Unbounded for no limit).
// simpleData mirrors the owning definition's UsesSimpleData: when true,
// entries are kept as-is without serialization, matching spec.md §4.4's
// simple-data fast path.
func New(bound int, simpleData bool, codec Codec) *Tier {
	return &Tier{
		order:      list.New(),
		elems:      make(map[string]*list.Element),
		bound:      bound,
		simpleData: simpleData,
		codec:      codec,
	}
}

// Has reports whether key is present, without affecting recency.
func (t *Tier) Has(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.elems[key]
	return ok
}

// Get returns the stored payload for key (deserializing it if it was
// stored serialized) and marks it most-recently-used.
func (t *Tier) Get(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.elems[key]
	if !ok {
		return nil, false
	}
	t.order.MoveToBack(el)
	e := el.Value.(*entry)
	if !e.serialized {
		return e.payload, true
	}
	v, err := t.codec.Decode(e.payload.([]byte))
	if err != nil {
		return nil, false
	}
	return v, true
}

// Set inserts or replaces key's payload, evicting the least-recently-used
// entry if the tier is bounded and now over capacity.
func (t *Tier) Set(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.elems[key]; ok {
		t.order.Remove(el)
		delete(t.elems, key)
	}

	e := &entry{key: key, payload: value}
	if !t.simpleData && !isScalarOrMarker(value) {
		if b, err := t.codec.Encode(value); err == nil {
			e = &entry{key: key, payload: b, serialized: true}
		}
	}

	el := t.order.PushBack(e)
	t.elems[key] = el

	if t.bound != Unbounded && len(t.elems) > t.bound {
		front := t.order.Front()
		if front != nil {
			evictedKey := front.Value.(*entry).key
			t.order.Remove(front)
			delete(t.elems, evictedKey)
			if t.OnEvict != nil {
				t.OnEvict(evictedKey)
			}
		}
	}
}

// Delete removes key, if present.
func (t *Tier) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, ok := t.elems[key]; ok {
		t.order.Remove(el)
		delete(t.elems, key)
	}
}

// Purge removes every entry.
func (t *Tier) Purge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = list.New()
	t.elems = make(map[string]*list.Element)
}

// Len reports the current entry count.
func (t *Tier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.elems)
}

func isScalarOrMarker(v any) bool {
	if ver, ok := v.(envelope.Version); ok {
		v = ver.Data
	}
	if _, ok := v.(envelope.CachedObject); ok {
		return true
	}
	return scalar.IsScalar(v)
}
