// Package refsafe implements the reference-safety fallback described in
// spec.md §4.7: a store that hands back a live Go object (rather than a
// freshly decoded copy) must have that object protected before it reaches
// a second caller, or concurrent mutation of one caller's copy would leak
// into another's.
package refsafe

import (
	"reflect"

	"github.com/unkn0wn-root/casloader/codec"
	"github.com/unkn0wn-root/casloader/internal/scalar"
)

// maxCloneDepth bounds the recursive deep-clone/inspection walk; values
// nested deeper than this, or containing a node reflection can't safely
// copy (channels, funcs, unexported struct fields), fall back to a
// serialize/deserialize round trip instead of a best-effort clone.
const maxCloneDepth = 5

// Codec (de)serializes an arbitrary value, used as the round-trip fallback
// when a value is too deep or too irregular to deep-clone safely.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// Breaker protects values read from a store that doesn't dereference its
// own entries on every read.
type Breaker struct {
	codec Codec
}

// New returns a Breaker that falls back to codec for values it can't
// safely deep-clone with reflection alone.
func New(codec Codec) *Breaker {
	return &Breaker{codec: codec}
}

// DefaultCodec returns the codec.CBOR[any]-backed round-trip fallback used
// when no Breaker is configured explicitly.
func DefaultCodec() Codec {
	c, err := codec.NewCBOR[any](false)
	if err != nil {
		// NewCBOR only fails if the static EncOptions/DecOptions it builds
		// are invalid, which can't happen with the zero-value options used
		// here.
		panic(err)
	}
	return c
}

// Protect returns a value safe to hand to a caller without risking shared
// mutable state with whatever the store is holding: scalars pass through
// unchanged, shallow/regular structures are deep-cloned, and anything too
// deep or irregular is round-tripped through the codec.
func (b *Breaker) Protect(v any) (any, error) {
	if scalar.IsScalar(v) {
		return v, nil
	}
	if v == nil {
		return nil, nil
	}
	depth, complexNode := inspect(reflect.ValueOf(v), 0)
	if complexNode || depth > maxCloneDepth {
		return b.roundTrip(v)
	}
	return deepClone(reflect.ValueOf(v)).Interface(), nil
}

func (b *Breaker) roundTrip(v any) (any, error) {
	enc, err := b.codec.Encode(v)
	if err != nil {
		return nil, err
	}
	return b.codec.Decode(enc)
}

// inspect walks rv and returns the deepest depth reached and whether it
// encountered a node reflection can't safely clone (a channel, func,
// unsafe pointer, or unexported struct field).
func inspect(rv reflect.Value, depth int) (int, bool) {
	if depth > maxCloneDepth {
		return depth, false
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return depth, false
		}
		return inspect(rv.Elem(), depth)
	case reflect.Map:
		maxDepth := depth
		for _, k := range rv.MapKeys() {
			d, complexNode := inspect(rv.MapIndex(k), depth+1)
			if complexNode {
				return d, true
			}
			if d > maxDepth {
				maxDepth = d
			}
		}
		return maxDepth, false
	case reflect.Slice, reflect.Array:
		maxDepth := depth
		for i := 0; i < rv.Len(); i++ {
			d, complexNode := inspect(rv.Index(i), depth+1)
			if complexNode {
				return d, true
			}
			if d > maxDepth {
				maxDepth = d
			}
		}
		return maxDepth, false
	case reflect.Struct:
		maxDepth := depth
		for i := 0; i < rv.NumField(); i++ {
			if !rv.Field(i).CanInterface() {
				return depth, true
			}
			d, complexNode := inspect(rv.Field(i), depth+1)
			if complexNode {
				return d, true
			}
			if d > maxDepth {
				maxDepth = d
			}
		}
		return maxDepth, false
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return depth, true
	default:
		return depth, false
	}
}

// deepClone builds an independent copy of rv. Callers must only reach this
// after inspect has confirmed the value is shallow/regular enough.
func deepClone(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Elem().Type())
		out.Elem().Set(deepClone(rv.Elem()))
		return out
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		return deepClone(rv.Elem())
	case reflect.Map:
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		for _, k := range rv.MapKeys() {
			out.SetMapIndex(k, deepClone(rv.MapIndex(k)))
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(deepClone(rv.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(deepClone(rv.Index(i)))
		}
		return out
	case reflect.Struct:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.NumField(); i++ {
			if !out.Field(i).CanSet() {
				continue
			}
			out.Field(i).Set(deepClone(rv.Field(i)))
		}
		return out
	default:
		return rv
	}
}
