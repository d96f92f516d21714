package hashcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/hashcache/record"
)

type user struct {
	ID   uint64   `cache:"id"`
	Name string   `cache:"name"`
	Tags []string `cache:"tags,json"`
}

func (user) ModelName() string            { return "User" }
func (user) ExpiresAfter() time.Duration  { return 0 }
func (u user) ToRecord() Record           { return mustRecord(u) }
func (u *user) FromRecord(r Record) error { return record.Unmarshal(r, u) }

// session carries its own TTL.
type session struct {
	Token string `cache:"token"`
}

func (session) ModelName() string            { return "Session" }
func (session) ExpiresAfter() time.Duration  { return 10 * time.Minute }
func (s session) ToRecord() Record           { return mustRecord(s) }
func (s *session) FromRecord(r Record) error { return record.Unmarshal(r, s) }

// impostor claims the User model name with an incompatible shape.
type impostor struct {
	Level int `cache:"level"`
}

func (impostor) ModelName() string            { return "User" }
func (impostor) ExpiresAfter() time.Duration  { return 0 }
func (i impostor) ToRecord() Record           { return mustRecord(i) }
func (i *impostor) FromRecord(r Record) error { return record.Unmarshal(r, i) }

// doc hands out copies of its slice.
type doc struct {
	Lines []string `cache:"lines,msgpack"`
}

func (doc) ModelName() string            { return "Doc" }
func (doc) ExpiresAfter() time.Duration  { return 0 }
func (d doc) ToRecord() Record           { return mustRecord(d) }
func (d *doc) FromRecord(r Record) error { return record.Unmarshal(r, d) }
func (d doc) Clone() doc {
	return doc{Lines: append([]string(nil), d.Lines...)}
}

// note clones through its pointer.
type note struct {
	Meta map[string]string `cache:"meta,json"`
}

func (note) ModelName() string            { return "Note" }
func (note) ExpiresAfter() time.Duration  { return 0 }
func (n note) ToRecord() Record           { return mustRecord(n) }
func (n *note) FromRecord(r Record) error { return record.Unmarshal(r, n) }
func (n *note) Clone() note {
	out := note{Meta: make(map[string]string, len(n.Meta))}
	for k, v := range n.Meta {
		out.Meta[k] = v
	}
	return out
}

// empty has no fields at all.
type empty struct{}

func (empty) ModelName() string           { return "Empty" }
func (empty) ExpiresAfter() time.Duration { return 0 }
func (empty) ToRecord() Record            { return nil }
func (*empty) FromRecord(Record) error    { return nil }

func mustRecord(v any) Record {
	r, err := record.Marshal(v)
	if err != nil {
		panic(err)
	}
	return r
}

// recHooks records hook calls.
type recHooks struct {
	mu          sync.Mutex
	forgiving   []string
	expired     []string
	expireFails []string
	connOps     []string
}

func (h *recHooks) ForgivingRead(k string, _ error) {
	h.mu.Lock()
	h.forgiving = append(h.forgiving, k)
	h.mu.Unlock()
}

func (h *recHooks) LazyExpired(k string) {
	h.mu.Lock()
	h.expired = append(h.expired, k)
	h.mu.Unlock()
}

func (h *recHooks) ExpireFailed(k string, _ error) {
	h.mu.Lock()
	h.expireFails = append(h.expireFails, k)
	h.mu.Unlock()
}

func (h *recHooks) ConnectionError(op string, _ error) {
	h.mu.Lock()
	h.connOps = append(h.connOps, op)
	h.mu.Unlock()
}

func (h *recHooks) snapshot() recHooks {
	h.mu.Lock()
	defer h.mu.Unlock()
	return recHooks{
		forgiving:   append([]string(nil), h.forgiving...),
		expired:     append([]string(nil), h.expired...),
		expireFails: append([]string(nil), h.expireFails...),
		connOps:     append([]string(nil), h.connOps...),
	}
}

func newTestRedis(t *testing.T, opts Options) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedis(context.Background(), RedisConfig{Addr: mr.Addr()}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return mr, c
}

// eachBackend runs fn against a fresh cache of every engine.
func eachBackend(t *testing.T, fn func(t *testing.T, c *Cache)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory(Options{}))
	})
	t.Run("redis", func(t *testing.T) {
		_, c := newTestRedis(t, Options{})
		fn(t, c)
	})
}

type logLine struct {
	level, msg string
	f          Fields
}

// recLogger records log lines.
type recLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *recLogger) add(level, msg string, f Fields) {
	l.mu.Lock()
	l.lines = append(l.lines, logLine{level, msg, f})
	l.mu.Unlock()
}

func (l *recLogger) Debug(msg string, f Fields) { l.add("debug", msg, f) }
func (l *recLogger) Info(msg string, f Fields)  { l.add("info", msg, f) }
func (l *recLogger) Warn(msg string, f Fields)  { l.add("warn", msg, f) }
func (l *recLogger) Error(msg string, f Fields) { l.add("error", msg, f) }

func (l *recLogger) at(level string) []logLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logLine
	for _, ln := range l.lines {
		if ln.level == level {
			out = append(out, ln)
		}
	}
	return out
}
