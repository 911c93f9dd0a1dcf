// Package sloghook implements casloader.Hooks on top of log/slog, with
// sampling and key redaction for the high-frequency events.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/casloader"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	BackfillEvery  uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	backfillCtr  atomic.Uint64
}

var _ casloader.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("casloader.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) BackfillMiss(key string) {
	if h.l == nil || !sample(h.opts.BackfillEvery, &h.backfillCtr) {
		return
	}
	h.l.Debug("casloader.backfill_miss", "key", h.redact(key))
}

func (h *Hooks) LockContended(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("casloader.lock_contended", "key", h.redact(key))
}

func (h *Hooks) InvalidationApplied(kind string, count int) {
	if h.l == nil {
		return
	}
	h.l.Info("casloader.invalidation_applied", "kind", kind, "count", count)
}

func (h *Hooks) StaticAccelEvicted(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("casloader.static_accel_evicted", "key", h.redact(key))
}

func (h *Hooks) ProviderFault(op, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("casloader.provider_fault",
		"op", op,
		"key", h.redact(key),
		"err", err)
}
