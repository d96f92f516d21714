package hashcache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock replaces the engine's time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClockedMemory(opts Options) (*Cache, *fakeClock) {
	c := NewMemory(opts)
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.engine.(*memoryEngine).now = clk.Now
	return c, clk
}

func TestMemoryExpiryGetThenContains(t *testing.T) {
	ctx := context.Background()
	hooks := &recHooks{}
	logs := &recLogger{}
	c, clk := newClockedMemory(Options{Hooks: hooks, Logger: logs})

	require.NoError(t, InsertWith(ctx, c, 1, session{Token: "t"}, time.Second))

	got, ok, err := Get[session](ctx, c, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "t", got.Token)
	ok, _ = ContainsKey[session](ctx, c, 1)
	assert.True(t, ok)

	clk.Advance(1100 * time.Millisecond)

	_, ok, err = Get[session](ctx, c, 1)
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must not be returned")

	ok, _ = ContainsKey[session](ctx, c, 1)
	assert.False(t, ok, "Get purges the expired entry")
	assert.Equal(t, []string{"Session:1"}, hooks.snapshot().expired)
	if debug := logs.at("debug"); assert.Len(t, debug, 1) {
		assert.Equal(t, "Session:1", debug[0].f["key"])
	}
}

func TestMemoryExpiryContainsBeforeGet(t *testing.T) {
	ctx := context.Background()
	c, clk := newClockedMemory(Options{})

	require.NoError(t, InsertWith(ctx, c, "a", session{Token: "t"}, time.Second))
	clk.Advance(2 * time.Second)

	// ContainsKey does not look at expiration.
	ok, err := ContainsKey[session](ctx, c, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, _ = Get[session](ctx, c, "a")
	assert.False(t, ok)

	ok, _ = ContainsKey[session](ctx, c, "a")
	assert.False(t, ok)
}

func TestMemoryExpiryRealClock(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{})

	require.NoError(t, InsertWith(ctx, c, 9, user{ID: 9}, 50*time.Millisecond))
	_, ok, _ := Get[user](ctx, c, 9)
	require.True(t, ok)

	time.Sleep(120 * time.Millisecond)

	_, ok, err := Get[user](ctx, c, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTTLPrecedence(t *testing.T) {
	ctx := context.Background()
	c, clk := newClockedMemory(Options{})

	// type default is 10m
	require.NoError(t, Insert(ctx, c, 1, session{Token: "default"}))
	// explicit ttl wins
	require.NoError(t, InsertWith(ctx, c, 2, session{Token: "short"}, time.Minute))
	// non-positive falls back to the type's
	require.NoError(t, InsertWith(ctx, c, 3, session{Token: "fallback"}, -time.Second))

	clk.Advance(5 * time.Minute)
	_, ok1, _ := Get[session](ctx, c, 1)
	_, ok2, _ := Get[session](ctx, c, 2)
	_, ok3, _ := Get[session](ctx, c, 3)
	assert.True(t, ok1)
	assert.False(t, ok2)
	assert.True(t, ok3)

	clk.Advance(5 * time.Minute)
	_, ok1, _ = Get[session](ctx, c, 1)
	_, ok3, _ = Get[session](ctx, c, 3)
	assert.False(t, ok1)
	assert.False(t, ok3)
}

func TestMemoryNoTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	c, clk := newClockedMemory(Options{})

	require.NoError(t, Insert(ctx, c, 1, user{ID: 1}))
	clk.Advance(365 * 24 * time.Hour)
	_, ok, _ := Get[user](ctx, c, 1)
	assert.True(t, ok)
}

func TestMemoryReinsertResetsClock(t *testing.T) {
	ctx := context.Background()
	c, clk := newClockedMemory(Options{})

	require.NoError(t, InsertWith(ctx, c, 1, session{Token: "a"}, time.Minute))
	clk.Advance(50 * time.Second)
	require.NoError(t, InsertWith(ctx, c, 1, session{Token: "b"}, time.Minute))
	clk.Advance(50 * time.Second)

	got, ok, _ := Get[session](ctx, c, 1)
	require.True(t, ok)
	assert.Equal(t, "b", got.Token)
}

func TestMemoryModelMismatchPanics(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{})
	require.NoError(t, Insert(ctx, c, 1, user{ID: 1, Name: "Ada"}))

	assert.Panics(t, func() { _, _, _ = Get[impostor](ctx, c, 1) })

	// presence and removal go by composite key only
	ok, err := ContainsKey[impostor](ctx, c, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryModelsArePartitioned(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{})

	require.NoError(t, Insert(ctx, c, 1, user{ID: 1}))
	require.NoError(t, Insert(ctx, c, 1, session{Token: "s"}))

	u, ok, _ := Get[user](ctx, c, 1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), u.ID)
	s, ok, _ := Get[session](ctx, c, 1)
	require.True(t, ok)
	assert.Equal(t, "s", s.Token)

	require.NoError(t, Remove[user](ctx, c, 1))
	_, ok, _ = Get[session](ctx, c, 1)
	assert.True(t, ok)
}

func TestMemoryHonorsClone(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{})

	in := doc{Lines: []string{"a", "b"}}
	require.NoError(t, Insert(ctx, c, "d", in))
	in.Lines[0] = "changed by caller"

	out, ok, _ := Get[doc](ctx, c, "d")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, out.Lines)
	out.Lines[1] = "changed by reader"

	again, _, _ := Get[doc](ctx, c, "d")
	assert.Equal(t, []string{"a", "b"}, again.Lines)
}

func TestMemoryHonorsPointerClone(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{})

	in := note{Meta: map[string]string{"k": "v"}}
	require.NoError(t, Insert(ctx, c, 1, in))
	in.Meta["k"] = "changed by caller"

	out, ok, _ := Get[note](ctx, c, 1)
	require.True(t, ok)
	assert.Equal(t, "v", out.Meta["k"])
	out.Meta["k"] = "changed by reader"

	again, _, _ := Get[note](ctx, c, 1)
	assert.Equal(t, "v", again.Meta["k"])
}

func TestMemoryTypedValuesSkipRecordConversion(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{})

	require.NoError(t, Insert(ctx, c, 1, empty{}))
	_, ok, err := Get[empty](ctx, c, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryConcurrentHashAndSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{Shards: 4})

	const workers, ops = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				f := fmt.Sprintf("w%d-%d", w, i)
				_, _ = c.HashSet(ctx, "shared-hash", f, i)
				_, _ = c.SetAdd(ctx, "shared-set", f)
				_, _ = c.SetAdd(ctx, fmt.Sprintf("own-%d", w), i)
				_, _, _ = c.HashGet(ctx, "shared-hash", f)
				_, _ = c.SetMembers(ctx, "shared-set")
			}
		}(w)
	}
	wg.Wait()

	n, err := c.HashLen(ctx, "shared-hash")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*ops), n)

	n, err = c.SetCard(ctx, "shared-set")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*ops), n)

	for w := 0; w < workers; w++ {
		n, _ = c.SetCard(ctx, fmt.Sprintf("own-%d", w))
		assert.Equal(t, int64(ops), n)
	}
}

func TestMemoryConcurrentTyped(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				k := w*1000 + i
				_ = InsertWith(ctx, c, k, user{ID: uint64(k)}, time.Hour)
				if _, ok, _ := Get[user](ctx, c, k); !ok {
					t.Errorf("miss right after insert of %d", k)
				}
				if i%2 == 0 {
					_ = Remove[user](ctx, c, k)
				}
			}
		}(w)
	}
	wg.Wait()

	ok, _ := ContainsKey[user](ctx, c, 1)
	assert.True(t, ok)
	ok, _ = ContainsKey[user](ctx, c, 2)
	assert.False(t, ok)
}

func TestMemoryStoreVariantsOverwriteDestination(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{})

	_, _ = c.SetAdd(ctx, "dst", "stale")
	_, _ = c.SetAdd(ctx, "a", 1, 2)

	n, err := c.SetUnionStore(ctx, "dst", "a", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	ms, _ := c.SetMembers(ctx, "dst")
	assert.Equal(t, []string{"1", "2"}, ms)
}

// liveKeys counts the records held across all stripes.
func liveKeys[V sized](s *striped[V]) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.recs)
		sh.mu.RUnlock()
	}
	return n
}

func TestMemoryEmptiedRecordsAreDropped(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{})
	m := c.engine.(*memoryEngine)

	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("churn-%d", i)
		_, _ = c.HashSet(ctx, k, "f", i)
		n, err := c.HashDelete(ctx, k, "f")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, _ = c.SetAdd(ctx, k, i)
		n, err = c.SetRem(ctx, k, i)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	}
	assert.Zero(t, liveKeys(m.hashes))
	assert.Zero(t, liveKeys(m.sets))

	// moving the last member out drops the source
	_, _ = c.SetAdd(ctx, "src", "x")
	moved, err := c.SetMove(ctx, "src", "dst", "x")
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 1, liveKeys(m.sets))

	// an empty store result leaves no destination
	_, _ = c.SetAdd(ctx, "old", "stale")
	n, err := c.SetInterStore(ctx, "old", "dst", "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, liveKeys(m.sets))

	// a dropped key comes back on the next write
	_, _ = c.HashSet(ctx, "churn-0", "g", "v")
	l, _ := c.HashLen(ctx, "churn-0")
	assert.Equal(t, int64(1), l)
}

func TestMemoryConcurrentChurnKeepsWrites(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(Options{Shards: 2})

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			f := fmt.Sprintf("w%d", w)
			for i := 0; i < 300; i++ {
				_, _ = c.HashSet(ctx, "churn", f, i)
				_, _ = c.HashDelete(ctx, "churn", f)
				_, _ = c.SetAdd(ctx, "churn", f)
				_, _ = c.SetRem(ctx, "churn", f)
			}
			_, _ = c.HashSet(ctx, "churn", f, "final")
			_, _ = c.SetAdd(ctx, "churn", f)
		}(w)
	}
	wg.Wait()

	n, err := c.HashLen(ctx, "churn")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), n)
	n, err = c.SetCard(ctx, "churn")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), n)
}
