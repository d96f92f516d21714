// Package sloghooks reports hashcache hook events through log/slog, with
// optional sampling and key redaction.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/hashcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ForgivingReadEvery uint64
	LazyExpiredEvery   uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	forgivingCtr atomic.Uint64
	expiredCtr   atomic.Uint64
}

var _ hashcache.Hooks = (*Hooks)(nil)

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

func (h *Hooks) ForgivingRead(storageKey string, err error) {
	if h.l == nil || !sample(h.opts.ForgivingReadEvery, &h.forgivingCtr) {
		return
	}
	h.l.Debug("hashcache.forgiving_read",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) LazyExpired(storageKey string) {
	if h.l == nil || !sample(h.opts.LazyExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("hashcache.lazy_expired",
		"key", h.redact(storageKey))
}

// ExpireFailed is never sampled: the record now lives without TTL.
func (h *Hooks) ExpireFailed(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("hashcache.expire_failed",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) ConnectionError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("hashcache.connection_error",
		"op", op,
		"err", err)
}
