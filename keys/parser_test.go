package keys

import (
	"testing"

	"github.com/unkn0wn-root/casloader/definition"
)

func TestParseDeterministicAcrossCalls(t *testing.T) {
	def := definition.New("user", "profile")
	p := Parser{}
	k1 := p.Parse(def, "alice", false)
	k2 := p.Parse(def, "alice", false)
	if k1.Hash != k2.Hash {
		t.Fatalf("expected deterministic hash, got %q then %q", k1.Hash, k2.Hash)
	}
}

func TestParseDistinguishesKeys(t *testing.T) {
	def := definition.New("user", "profile")
	p := Parser{}
	k1 := p.Parse(def, "alice", false)
	k2 := p.Parse(def, "bob", false)
	if k1.Hash == k2.Hash {
		t.Fatalf("expected different caller keys to hash differently")
	}
}

func TestParseMultiIdentifierShape(t *testing.T) {
	def := definition.New("order", "line-items", definition.WithIdentifiers("tenant-1", "region-eu"))
	p := Parser{}
	k := p.Parse(def, 42, true)
	if !k.Multi {
		t.Fatalf("expected multi-identifier key shape")
	}
	if k.Component != "order" || k.Area != "line-items" {
		t.Fatalf("unexpected component/area: %+v", k)
	}
	if len(k.Identifiers) != 2 {
		t.Fatalf("expected 2 identifiers, got %v", k.Identifiers)
	}
	if k.UserKey != "42" {
		t.Fatalf("expected user key 42, got %q", k.UserKey)
	}
}

func TestParseFallsBackWithoutMultiIdentifierSupport(t *testing.T) {
	def := definition.New("order", "line-items", definition.WithIdentifiers("tenant-1"))
	p := Parser{}
	k := p.Parse(def, "x", false)
	if k.Multi {
		t.Fatalf("expected single-hash key when store isn't multi-identifier")
	}
}
