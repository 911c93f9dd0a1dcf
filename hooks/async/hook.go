// Package asynchook wraps a casloader.Hooks implementation so that
// loader call sites never block on whatever the underlying hook does
// (logging, metrics emission, alerting).
//
// usage:
//
//	import (
//	    "github.com/unkn0wn-root/casloader/hooks/async"
//	    "github.com/unkn0wn-root/casloader/hooks/sloghook"
//	)
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	l, _ := casloader.New(casloader.Config{
//	    Definition: def,
//	    Store:      memStore,
//	    Hooks:      hooks,
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/casloader"
)

// Hooks queues every call onto a bounded channel drained by a fixed
// worker pool, dropping events that arrive faster than workers can keep
// up rather than applying backpressure to the loader.
type Hooks struct {
	inner casloader.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ casloader.Hooks = (*Hooks)(nil)

// New returns a Hooks that dispatches to inner on workers goroutines,
// buffering up to qlen pending calls.
func New(inner casloader.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting new work and waits for queued calls to drain.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	h.try(func() { h.inner.SelfHeal(storageKey, reason) })
}

func (h *Hooks) BackfillMiss(key string) {
	h.try(func() { h.inner.BackfillMiss(key) })
}

func (h *Hooks) LockContended(key string) {
	h.try(func() { h.inner.LockContended(key) })
}

func (h *Hooks) InvalidationApplied(kind string, count int) {
	h.try(func() { h.inner.InvalidationApplied(kind, count) })
}

func (h *Hooks) StaticAccelEvicted(key string) {
	h.try(func() { h.inner.StaticAccelEvicted(key) })
}

func (h *Hooks) ProviderFault(op, key string, err error) {
	h.try(func() { h.inner.ProviderFault(op, key, err) })
}
