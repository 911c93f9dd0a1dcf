package accel

import (
	"testing"

	"github.com/unkn0wn-root/casloader/codec"
	"github.com/unkn0wn-root/casloader/envelope"
)

func msgpackCodec() Codec { return codec.Msgpack[any]{} }

func TestSetGetRoundTrip(t *testing.T) {
	tier := New(Unbounded, false, msgpackCodec())
	tier.Set("a", "scalar-value")
	tier.Set("b", map[string]any{"x": 1})

	v, ok := tier.Get("a")
	if !ok || v != "scalar-value" {
		t.Fatalf("got %v, %v want scalar-value, true", v, ok)
	}

	v2, ok := tier.Get("b")
	if !ok {
		t.Fatalf("expected hit for b")
	}
	m, ok := v2.(map[string]any)
	if !ok {
		t.Fatalf("expected decoded map, got %#v", v2)
	}
	if _, present := m["x"]; !present {
		t.Fatalf("decoded map missing key x: %#v", v2)
	}
}

func TestBoundedEvictsLeastRecentlyUsed(t *testing.T) {
	tier := New(2, true, msgpackCodec())
	tier.Set("a", 1)
	tier.Set("b", 2)
	tier.Get("a") // touch a, making b the LRU
	tier.Set("c", 3)

	if tier.Has("b") {
		t.Fatalf("expected b to be evicted")
	}
	if !tier.Has("a") || !tier.Has("c") {
		t.Fatalf("expected a and c to remain")
	}
}

func TestDeleteAndPurge(t *testing.T) {
	tier := New(Unbounded, true, msgpackCodec())
	tier.Set("a", 1)
	tier.Set("b", 2)
	tier.Delete("a")
	if tier.Has("a") {
		t.Fatalf("expected a deleted")
	}
	tier.Purge()
	if tier.Len() != 0 {
		t.Fatalf("expected empty tier after purge, got len %d", tier.Len())
	}
}

func TestCachedObjectMarkerStoredAsIs(t *testing.T) {
	tier := New(Unbounded, false, msgpackCodec())
	co := envelope.CachedObject{}
	tier.Set("m", co)
	v, ok := tier.Get("m")
	if !ok {
		t.Fatalf("expected hit")
	}
	if _, ok := v.(envelope.CachedObject); !ok {
		t.Fatalf("expected cached-object marker to round-trip untouched, got %#v", v)
	}
}
