package casloader

import (
	"context"
	"fmt"
	"sync"

	"github.com/unkn0wn-root/casloader/store"
)

// lockBackend is the write-locking arbiter a Loader consults when
// RequireLockingBeforeWrite is set: the store's native Lockable
// capability, a secondary store.LockStore, or an in-process fallback.
type lockBackend interface {
	Acquire(ctx context.Context, key, owner string) (bool, error)
	Release(ctx context.Context, key, owner string) (bool, error)
	State(ctx context.Context, key, owner string) (store.LockState, error)
}

// newLockBackend picks the lock arbiter per §4.5: the primary store's own
// Lockable capability first, then a configured secondary LockStore, then
// an in-process default so RequireLockingBeforeWrite still works for a
// store that's neither.
func newLockBackend(primary store.Store, secondary store.LockStore) lockBackend {
	if lockable, ok := primary.(store.Lockable); ok {
		return storeLockBackend{lockable}
	}
	if secondary != nil {
		return storeLockBackend{secondary}
	}
	return newLocalLockBackend()
}

type storeLockBackend struct {
	store.Lockable
}

func (b storeLockBackend) Acquire(ctx context.Context, key, owner string) (bool, error) {
	return b.AcquireLock(ctx, key, owner)
}

func (b storeLockBackend) Release(ctx context.Context, key, owner string) (bool, error) {
	return b.ReleaseLock(ctx, key, owner)
}

func (b storeLockBackend) State(ctx context.Context, key, owner string) (store.LockState, error) {
	return b.CheckLockState(ctx, key, owner)
}

// localLockBackend is the in-process default lock table: an advisory,
// per-key owner map guarded by a single mutex. It only arbitrates within
// one process, which is sufficient when no store or secondary lock store
// is configured.
type localLockBackend struct {
	mu   sync.Mutex
	held map[string]string
}

func newLocalLockBackend() *localLockBackend {
	return &localLockBackend{held: make(map[string]string)}
}

func (b *localLockBackend) Acquire(_ context.Context, key, owner string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.held[key]; ok && cur != owner {
		return false, nil
	}
	b.held[key] = owner
	return true, nil
}

func (b *localLockBackend) Release(_ context.Context, key, owner string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.held[key]; ok && cur == owner {
		delete(b.held, key)
		return true, nil
	}
	return false, nil
}

func (b *localLockBackend) State(_ context.Context, key, owner string) (store.LockState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.held[key]
	if !ok {
		return store.NotHeld, nil
	}
	if cur == owner {
		return store.Held, nil
	}
	return store.HeldByOther, nil
}

// withLock runs fn under key's advisory lock when RequireLockingBeforeWrite
// is set, releasing on every exit path including a fault from fn. When
// locking isn't required, fn just runs directly.
func (l *Loader) withLock(ctx context.Context, key string, fn func() error) error {
	if !l.requireLockingBeforeWrite {
		return fn()
	}

	state, err := l.lockBackend.State(ctx, key, l.ownerID)
	if err != nil {
		return err
	}
	if state == store.Held {
		return fn()
	}

	acquired, err := l.lockBackend.Acquire(ctx, key, l.ownerID)
	if err != nil {
		return err
	}
	if !acquired {
		l.hooks.LockContended(key)
		return &StoreFaultError{Op: "Set", Key: key, Err: fmt.Errorf("lock for %q held by another owner", key)}
	}
	defer func() { _, _ = l.lockBackend.Release(ctx, key, l.ownerID) }()

	return fn()
}
