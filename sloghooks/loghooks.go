// Package sloghooks logs firequery.Hooks events to a *slog.Logger.
package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/firequery"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery   uint64
	BulkRejectEvery uint64
	// Listener start/stop are logged at Debug; set to log them at Info.
	ListenersAtInfo bool
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr   atomic.Uint64
	bulkRejectCtr atomic.Uint64
}

var _ firequery.Hooks = (*Hooks)(nil)

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

func (h *Hooks) listenerLevel() slog.Level {
	if h.opts.ListenersAtInfo {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func (h *Hooks) ListenerStarted(key string) {
	if h.l == nil {
		return
	}
	h.l.Log(context.Background(), h.listenerLevel(), "firequery.listener_started", "key", h.redact(key))
}

func (h *Hooks) ListenerStopped(key string, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("firequery.listener_failed", "key", h.redact(key), "err", err)
		return
	}
	h.l.Log(context.Background(), h.listenerLevel(), "firequery.listener_stopped", "key", h.redact(key))
}

func (h *Hooks) FetchFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("firequery.fetch_failed", "key", h.redact(key), "err", err)
}

func (h *Hooks) EntryEvicted(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("firequery.entry_evicted", "key", h.redact(key))
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("firequery.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) BulkRejected(ns string, requested int, reason string) {
	if h.l == nil || !sample(h.opts.BulkRejectEvery, &h.bulkRejectCtr) {
		return
	}
	h.l.Info("firequery.bulk_rejected",
		"ns", ns,
		"requested", requested,
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string, isBulk bool) {
	if h.l == nil {
		return
	}
	h.l.Warn("firequery.provider_set_rejected",
		"key", h.redact(storageKey),
		"is_bulk", isBulk)
}

func (h *Hooks) GenSnapshotError(count int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("firequery.gen_snapshot_error", "count", count, "err", err)
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("firequery.gen_bump_error", "key", h.redact(storageKey), "err", err)
}

func (h *Hooks) InvalidateOutage(key string, bumpErr, delErr error) {
	if h.l == nil {
		return
	}
	h.l.Error("firequery.invalidate_outage",
		"key", h.redact(key),
		"bump_err", bumpErr,
		"del_err", delErr)
}

func (h *Hooks) LocalGenWithBulk() {
	if h.l == nil {
		return
	}
	h.l.Warn("firequery.local_gen_with_bulk",
		"msg", "bulk enabled with local genstore; stale batches possible across replicas")
}
