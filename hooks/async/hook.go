// Package asynchook moves hook delivery off the caller's goroutine. Events
// are queued to a fixed worker pool and dropped when the queue is full.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    ForgivingReadEvery: 10, // sample logs: ~every 10th forgiving read
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c, _ := hashcache.NewRedis(ctx, hashcache.RedisConfig{Addr: "cache:6379"},
//	    hashcache.Options{Hooks: hooks}) // or `raw` if you don't want async
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/hashcache"
)

type Hooks struct {
	inner   hashcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	dropped atomic.Uint64
}

var _ hashcache.Hooks = (*Hooks)(nil)

func New(inner hashcache.Hooks, workers, qlen int) *Hooks {
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

// Close drains queued events and stops the workers. Events after Close are
// dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) ForgivingRead(k string, err error) { h.try(func() { h.inner.ForgivingRead(k, err) }) }
func (h *Hooks) LazyExpired(k string)              { h.try(func() { h.inner.LazyExpired(k) }) }
func (h *Hooks) ExpireFailed(k string, err error)  { h.try(func() { h.inner.ExpireFailed(k, err) }) }
func (h *Hooks) ConnectionError(op string, err error) {
	h.try(func() { h.inner.ConnectionError(op, err) })
}
