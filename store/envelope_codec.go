package store

import (
	"fmt"

	"github.com/unkn0wn-root/casloader/cacheable"
	"github.com/unkn0wn-root/casloader/envelope"
	"github.com/unkn0wn-root/casloader/internal/wire"
)

// PayloadCodec (de)serializes the innermost domain payload, or a
// cached-object marker's state, to and from bytes.
type PayloadCodec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// EnvelopeCodec adapts a PayloadCodec into a byte-exact codec for whole
// composed envelope values (raw data, or any combination of
// envelope.Version / envelope.TTL / envelope.CachedObject), framed with
// internal/wire so byte-oriented stores can detect corruption and
// self-heal instead of silently returning garbage.
type EnvelopeCodec struct {
	Payload PayloadCodec
}

// Encode implements PayloadCodec for a whole envelope value.
func (c EnvelopeCodec) Encode(v any) ([]byte, error) {
	var f wire.Frame
	cur := v
	if ver, ok := cur.(envelope.Version); ok {
		f.HasVersion = true
		f.Version = ver.Version
		cur = ver.Data
	}
	if ttl, ok := cur.(envelope.TTL); ok {
		f.HasTTL = true
		f.Expiry = ttl.Expiry
		cur = ttl.Data
	}
	if co, ok := cur.(envelope.CachedObject); ok {
		f.IsCachedObject = true
		f.MarkerType = co.Marker.Type
		cur = co.Marker.State
	}

	payload, err := c.Payload.Encode(cur)
	if err != nil {
		return nil, fmt.Errorf("store: encode envelope payload: %w", err)
	}
	f.Payload = payload
	return wire.Encode(f), nil
}

// Decode implements PayloadCodec for a whole envelope value.
func (c EnvelopeCodec) Decode(b []byte) (any, error) {
	f, err := wire.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("store: decode envelope frame: %w", err)
	}
	payload, err := c.Payload.Decode(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("store: decode envelope payload: %w", err)
	}

	var cur any = payload
	if f.IsCachedObject {
		cur = envelope.CachedObject{Marker: cacheable.Marker{Type: f.MarkerType, State: payload}}
	}
	if f.HasTTL {
		cur = envelope.TTL{Data: cur, Expiry: f.Expiry}
	}
	if f.HasVersion {
		cur = envelope.Version{Data: cur, Version: f.Version}
	}
	return cur, nil
}
