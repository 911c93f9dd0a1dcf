package casloader

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/casloader/accel"
	"github.com/unkn0wn-root/casloader/cacheable"
	"github.com/unkn0wn-root/casloader/clock"
	"github.com/unkn0wn-root/casloader/codec"
	"github.com/unkn0wn-root/casloader/datasource"
	"github.com/unkn0wn-root/casloader/definition"
	"github.com/unkn0wn-root/casloader/invalidation"
	"github.com/unkn0wn-root/casloader/keys"
	"github.com/unkn0wn-root/casloader/refsafe"
	"github.com/unkn0wn-root/casloader/store"
)

// Loader is one link in the cache chain: it owns one store and,
// optionally, either a next loader or a data source — never both. A
// Loader is built by New (directly, or via the factory package) and is
// not safe to share across concurrent requests; its static-acceleration
// tier is request-scoped by design.
type Loader struct {
	def    *definition.Definition
	store  store.Store
	next   *Loader
	source datasource.Source

	subLoader bool
	tier      *accel.Tier
	keyParser keys.Parser
	clock     *clock.Service

	cacheables *cacheable.Registry
	breaker    *refsafe.Breaker

	hooks  Hooks
	logger Logger

	requireLockingBeforeWrite bool
	lockBackend               lockBackend
	ownerID                   string

	invEngine *invalidation.Engine
	invOnce   sync.Once
}

// Config builds a Loader. Definition and Store are required; Next and
// Source are mutually exclusive.
type Config struct {
	Definition *definition.Definition
	Store      store.Store

	// Next is this loader's next link in the chain. Mutually exclusive
	// with Source. The factory package is responsible for marking a
	// Loader used as someone else's Next with SubLoader: true.
	Next *Loader
	// Source is the terminal data source consulted when both this
	// loader and its store miss. Mutually exclusive with Next.
	Source datasource.Source

	// SubLoader disables the static-acceleration tier regardless of the
	// definition, per §4.4's sub-loader constraint. The factory sets
	// this automatically for every non-top loader in a chain.
	SubLoader bool

	// Clock is the shared process clock/purge-token service. Loaders in
	// the same chain (or request) should share one Clock so they agree
	// on "now" and the current purge token. Defaults to a new Service.
	Clock *clock.Service

	// Cacheables resolves cached-object markers back to domain values on
	// read. A nil Registry means cached-object markers are returned
	// as-is on restore (best effort).
	Cacheables *cacheable.Registry
	// Breaker overrides the reference-safety fallback. Defaults to a
	// Breaker using refsafe.DefaultCodec().
	Breaker *refsafe.Breaker

	Hooks  Hooks
	Logger Logger

	// RequireLockingBeforeWrite gates every backfill write behind the
	// advisory per-key lock described in §4.5.
	RequireLockingBeforeWrite bool
	// LockStore is consulted when Store doesn't implement store.Lockable
	// itself. If neither is available, an in-process lock table is used.
	LockStore store.LockStore

	// InvalidationRegistry, if set, enables the event-invalidation
	// engine for this loader.
	InvalidationRegistry invalidation.Registry

	// AccelCodec serializes static-acceleration entries that aren't
	// scalars, cached-object markers, or simple data. Defaults to
	// codec.Msgpack[any]{}.
	AccelCodec accel.Codec
}

// New validates cfg and returns a ready-to-use Loader.
func New(cfg Config) (*Loader, error) {
	if cfg.Definition == nil {
		return nil, &ContractError{Op: "New", Err: errors.New("definition is required")}
	}
	if cfg.Store == nil {
		return nil, &ContractError{Op: "New", Err: errors.New("store is required")}
	}
	if cfg.Next != nil && cfg.Source != nil {
		return nil, &ContractError{Op: "New", Err: errors.New("next loader and data source are mutually exclusive")}
	}

	clk := coalesceIface[*clock.Service](cfg.Clock, clock.NewService())
	accelCodec := coalesceIface[accel.Codec](cfg.AccelCodec, codec.Msgpack[any]{})
	breaker := coalesceIface[*refsafe.Breaker](cfg.Breaker, refsafe.New(refsafe.DefaultCodec()))

	l := &Loader{
		def:                       cfg.Definition,
		store:                     cfg.Store,
		next:                      cfg.Next,
		source:                    cfg.Source,
		subLoader:                 cfg.SubLoader,
		keyParser:                 keys.Parser{},
		clock:                     clk,
		cacheables:                cfg.Cacheables,
		breaker:                   breaker,
		hooks:                     coalesceIface[Hooks](cfg.Hooks, NopHooks{}),
		logger:                    coalesceIface[Logger](cfg.Logger, NopLogger{}),
		requireLockingBeforeWrite: cfg.RequireLockingBeforeWrite,
		ownerID:                   fmt.Sprintf("%x", time.Now().UnixNano()),
	}

	if !cfg.SubLoader && cfg.Definition.UsesStaticAcceleration() {
		l.tier = accel.New(cfg.Definition.StaticAccelerationSize(), cfg.Definition.UsesSimpleData(), accelCodec)
		l.tier.OnEvict = func(key string) { l.hooks.StaticAccelEvicted(key) }
	}

	l.lockBackend = newLockBackend(cfg.Store, cfg.LockStore)

	if cfg.InvalidationRegistry != nil {
		l.invEngine = invalidation.NewEngine(cfg.InvalidationRegistry, clk)
	}

	return l, nil
}

// IsSubLoader reports whether this loader's static-acceleration tier was
// force-disabled at construction because it's attached as another
// loader's next link.
func (l *Loader) IsSubLoader() bool { return l.subLoader }

func (l *Loader) parseKey(callerKey any) store.Key {
	return l.keyParser.Parse(l.def, callerKey, l.store.Capabilities().MultipleIdentifiers)
}
