// Package envelope implements the value wrappers a Loader composes around
// whatever a caller or data source hands it: a TTL expiry, a version
// number, and/or a cacheable-object marker. Composition order is fixed —
// cached-object marker innermost, then TTL, then version outermost — so
// Unwrap can always peel them off in the reverse order without guessing.
package envelope

import "github.com/unkn0wn-root/casloader/cacheable"

// TTL wraps Data with an absolute expiry, expressed in the same
// fractional-seconds-since-epoch units as clock.Service.Now.
type TTL struct {
	Data   any
	Expiry float64
}

// Version wraps Data with a monotonically assigned version number.
type Version struct {
	Data    any
	Version uint64
}

// CachedObject wraps a cacheable.Marker in place of the domain value it
// stands in for.
type CachedObject struct {
	Marker cacheable.Marker
}

// Unwrapped is the flattened result of peeling every layer off a stored
// envelope value.
type Unwrapped struct {
	Data           any
	HasVersion     bool
	Version        uint64
	HasTTL         bool
	Expiry         float64
	IsCachedObject bool
	Marker         cacheable.Marker
}

// Compose builds the envelope for a value about to be written to a store.
// Any of marker, ttlExpiry, and version may be nil/absent; present ones are
// applied in the fixed cached-object -> TTL -> version order.
func Compose(data any, marker *cacheable.Marker, ttlExpiry *float64, version *uint64) any {
	var cur any = data
	if marker != nil {
		cur = CachedObject{Marker: *marker}
	}
	if ttlExpiry != nil {
		cur = TTL{Data: cur, Expiry: *ttlExpiry}
	}
	if version != nil {
		cur = Version{Data: cur, Version: *version}
	}
	return cur
}

// Unwrap peels version, then TTL, then cached-object-marker layers off v,
// in that order, reporting which layers were present.
func Unwrap(v any) Unwrapped {
	var out Unwrapped
	cur := v
	if ver, ok := cur.(Version); ok {
		out.HasVersion = true
		out.Version = ver.Version
		cur = ver.Data
	}
	if ttl, ok := cur.(TTL); ok {
		out.HasTTL = true
		out.Expiry = ttl.Expiry
		cur = ttl.Data
	}
	if co, ok := cur.(CachedObject); ok {
		out.IsCachedObject = true
		out.Marker = co.Marker
		return out
	}
	out.Data = cur
	return out
}

// StripTTL returns v with any TTL layer removed but version/cached-object
// layers preserved, for the static-acceleration tier: spec.md's §4.4 says
// entries there never carry a TTL wrapper (the tier has its own bounded
// lifetime), but do keep the version wrapper when present.
func StripTTL(v any) any {
	if ver, ok := v.(Version); ok {
		return Version{Data: StripTTL(ver.Data), Version: ver.Version}
	}
	if ttl, ok := v.(TTL); ok {
		return ttl.Data
	}
	return v
}
