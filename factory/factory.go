// Package factory builds a ready-to-use casloader.Loader chain from a
// flat list of store specifications, so callers don't have to hand-wire
// casloader.Config.Next themselves.
package factory

import (
	"errors"

	"github.com/unkn0wn-root/casloader"
	"github.com/unkn0wn-root/casloader/datasource"
	"github.com/unkn0wn-root/casloader/definition"
	"github.com/unkn0wn-root/casloader/store"
)

// StoreSpec describes one link of the chain, closest-to-caller first.
type StoreSpec struct {
	Definition *definition.Definition
	Store      store.Store

	RequireLockingBeforeWrite bool
	LockStore                 store.LockStore
}

// Chain builds a Loader out of specs, wiring each entry's Next to the
// loader built from the remaining entries and attaching source as the
// terminal fallback. Every loader but the first is marked SubLoader, per
// §4.4's sub-loader constraint, since only a chain's head is ever used
// directly by a caller.
func Chain(specs []StoreSpec, source datasource.Source, common casloader.Config) (*casloader.Loader, error) {
	if len(specs) == 0 {
		return nil, errors.New("factory: at least one store spec is required")
	}

	var next *casloader.Loader
	for i := len(specs) - 1; i >= 0; i-- {
		spec := specs[i]
		cfg := common
		cfg.Definition = spec.Definition
		cfg.Store = spec.Store
		cfg.RequireLockingBeforeWrite = spec.RequireLockingBeforeWrite
		cfg.LockStore = spec.LockStore
		cfg.SubLoader = i != 0
		cfg.Next = next

		if i == len(specs)-1 {
			cfg.Source = source
		} else {
			cfg.Source = nil
		}

		l, err := casloader.New(cfg)
		if err != nil {
			return nil, err
		}
		next = l
	}

	return next, nil
}
