// Package casloader implements a layered, in-process caching facade: a
// chain of loaders, each owning one store and optionally a next loader or
// a terminal data source, never both. Reads walk the chain until a value
// is found or the data source materializes one; writes propagate
// ancestor-first so every tier in the chain stays consistent.
//
// Components:
//   - envelope: TTL/version/cached-object wrappers and their fixed
//     composition order.
//   - accel: the bounded, request-scoped static-acceleration LRU tier.
//   - store: the capability contract a Loader consumes, plus concrete
//     store/memory, store/bigcache, store/redis implementations.
//   - invalidation: the event-invalidation engine and its producer-side
//     Publisher.
//   - refsafe: the reference-safety fallback for stores that hand back
//     live objects instead of copies.
//   - clock: the per-request "now" and purge-token service.
//   - factory: builds a Loader chain from a slice of store specs.
//
// A Loader is built with New, wiring one Definition, one Store, and
// either a next Loader or a datasource.Source:
//
//	l, err := casloader.New(casloader.Config{
//		Definition: def,
//		Store:      memStore,
//		Source:     userSource,
//	})
//	v, ok, err := l.Get(ctx, "user:42", casloader.IgnoreMissing)
package casloader
