// Package definition holds the immutable-except-identifiers per-cache
// configuration described in spec.md §3: TTL, static-acceleration sizing,
// invalidation subscriptions, and the identifier set a multi-identifier
// store key is built from.
package definition

import (
	"strconv"
	"sync"
	"time"

	"github.com/unkn0wn-root/casloader/internal/util"
)

// Unbounded means the static-acceleration tier has no size cap.
const Unbounded = -1

// Definition is a single cache's configuration. Every field is fixed at
// construction except Identifiers, which SetIdentifiers may replace at
// runtime.
type Definition struct {
	mu sync.RWMutex

	component string
	area      string

	ttl                    time.Duration
	usesSimpleData         bool
	usesStaticAcceleration bool
	staticAccelerationSize int
	invalidationEvents     []string
	identifiers            []string
}

// Option configures a Definition at construction time.
type Option func(*Definition)

// WithTTL sets the cache's time-to-live; zero means entries never expire
// on TTL grounds.
func WithTTL(ttl time.Duration) Option { return func(d *Definition) { d.ttl = ttl } }

// WithSimpleData marks every value in this cache as plain scalar/
// map/slice data, letting the static-acceleration tier and reference-safety
// breaker skip serialization.
func WithSimpleData(v bool) Option { return func(d *Definition) { d.usesSimpleData = v } }

// WithStaticAcceleration enables the bounded LRU tier with the given size
// (definition.Unbounded for no cap).
func WithStaticAcceleration(size int) Option {
	return func(d *Definition) {
		d.usesStaticAcceleration = true
		d.staticAccelerationSize = size
	}
}

// WithInvalidationEvents subscribes this cache to the named
// core/eventinvalidation event records.
func WithInvalidationEvents(events ...string) Option {
	return func(d *Definition) { d.invalidationEvents = append([]string(nil), events...) }
}

// WithIdentifiers seeds the initial identifier set for a multi-identifier
// store key.
func WithIdentifiers(ids ...string) Option {
	return func(d *Definition) { d.identifiers = append([]string(nil), ids...) }
}

// New builds a Definition for (component, area) with the given options.
func New(component, area string, opts ...Option) *Definition {
	d := &Definition{
		component:              component,
		area:                   area,
		staticAccelerationSize: Unbounded,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Definition) Component() string { return d.component }
func (d *Definition) Area() string      { return d.area }
func (d *Definition) TTL() time.Duration { return d.ttl }
func (d *Definition) UsesSimpleData() bool { return d.usesSimpleData }
func (d *Definition) UsesStaticAcceleration() bool { return d.usesStaticAcceleration }
func (d *Definition) StaticAccelerationSize() int { return d.staticAccelerationSize }

// InvalidationEvents returns the event names this cache is subscribed to.
func (d *Definition) InvalidationEvents() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.invalidationEvents...)
}

// Identifiers returns the current identifier set.
func (d *Definition) Identifiers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.identifiers...)
}

// SetIdentifiers replaces the identifier set, reporting whether it
// actually changed. The owning loader is responsible for purging its
// static-acceleration tier when this returns true.
func (d *Definition) SetIdentifiers(newIDs []string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if equalStrings(d.identifiers, newIDs) {
		return false
	}
	d.identifiers = append([]string(nil), newIDs...)
	return true
}

// GenerateMultiKeyParts returns the identifier components a multi-
// identifier store key is built from.
func (d *Definition) GenerateMultiKeyParts() []string {
	return d.Identifiers()
}

// Hash returns a stable identity hash over this definition's cache-relevant
// shape, used to seed the key parser and to detect definition drift
// between factory calls in tests.
func (d *Definition) Hash() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return util.ShortHash(16,
		d.component, d.area, d.ttl.String(),
		strconv.FormatBool(d.usesStaticAcceleration), strconv.Itoa(d.staticAccelerationSize))
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

