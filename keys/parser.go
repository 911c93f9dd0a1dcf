// Package keys turns a caller-supplied key plus a Definition into the
// parsed store.Key a Store operates on, per spec.md §4.8.
package keys

import (
	"fmt"

	"github.com/unkn0wn-root/casloader/definition"
	"github.com/unkn0wn-root/casloader/internal/util"
	"github.com/unkn0wn-root/casloader/store"
)

// hashLen is the truncated hex digest length used for single-identifier
// storage keys; long enough to make collisions practically impossible for
// any one definition's key space.
const hashLen = 32

// Parser derives store.Key values. The zero value is ready to use.
type Parser struct{}

// Parse builds the store.Key for callerKey under def, choosing the
// multi-identifier shape when the target store supports it and def
// carries identifiers.
func (Parser) Parse(def *definition.Definition, callerKey any, multiIdentifierStore bool) store.Key {
	userKey := fmt.Sprint(callerKey)

	ids := def.Identifiers()
	if multiIdentifierStore && len(ids) > 0 {
		return store.Key{
			Component:   def.Component(),
			Area:        def.Area(),
			Identifiers: ids,
			UserKey:     userKey,
			Multi:       true,
		}
	}

	return store.Key{Hash: util.ShortHash(hashLen, def.Hash(), userKey)}
}
