// Package scalar classifies values as cache-safe scalars: types that are
// immutable by nature and never need copying or serializing for
// reference-safety purposes.
package scalar

import "reflect"

// IsScalar reports whether v is a string, bool, numeric type, or nil.
func IsScalar(v any) bool {
	if v == nil {
		return true
	}
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
