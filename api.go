package hashcache

import (
	"context"
	"sort"
	"time"

	"github.com/unkn0wn-root/hashcache/record"
)

// Backend names the engine behind a Cache.
type Backend uint8

const (
	BackendMemory Backend = iota + 1
	BackendRedis
)

func (b Backend) String() string {
	switch b {
	case BackendMemory:
		return "memory"
	case BackendRedis:
		return "redis"
	default:
		return "unknown"
	}
}

// Options tune logging, hooks and in-process lock striping.
// The zero value is usable.
type Options struct {
	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
	Shards int    // lock stripes for in-process hash/set stores; 0 => 32
}

// object is a typed value on its way into an engine. The in-process engine
// keeps value; Redis only calls record.
type object struct {
	model  string
	key    string
	value  any
	record func() record.Record
	ttl    time.Duration
}

// decodeFunc rebuilds a typed value from a stored record.
type decodeFunc func(record.Record) (any, error)

type setOp uint8

const (
	opDiff setOp = iota
	opInter
	opUnion
)

func (o setOp) String() string {
	switch o {
	case opDiff:
		return "set_diff"
	case opInter:
		return "set_inter"
	default:
		return "set_union"
	}
}

// engine is implemented by exactly two types: *memoryEngine and *redisEngine.
// Its methods are unexported so the set stays closed.
type engine interface {
	backend() Backend
	close(ctx context.Context) error

	insert(ctx context.Context, obj object) error
	get(ctx context.Context, model, key string, decode decodeFunc) (any, bool, error)
	contains(ctx context.Context, model, key string) (bool, error)
	remove(ctx context.Context, model, key string) error

	hashGet(ctx context.Context, key, field string) (string, bool, error)
	hashSet(ctx context.Context, key, field, value string) (bool, error)
	hashMultipleGet(ctx context.Context, key string, fields []string) ([]*string, error)
	hashMultipleSet(ctx context.Context, key string, rec record.Record) error
	hashGetAll(ctx context.Context, key string) (record.Record, error)
	hashDelete(ctx context.Context, key string, fields []string) (int64, error)
	hashExists(ctx context.Context, key, field string) (bool, error)
	hashLen(ctx context.Context, key string) (int64, error)
	hashKeys(ctx context.Context, key string) ([]string, error)
	hashValues(ctx context.Context, key string) ([]string, error)
	hashSetIfNotExists(ctx context.Context, key, field, value string) (bool, error)

	setAdd(ctx context.Context, key string, members []string) (int64, error)
	setRem(ctx context.Context, key string, members []string) (int64, error)
	setCard(ctx context.Context, key string) (int64, error)
	setMembers(ctx context.Context, key string) ([]string, error)
	setIsMember(ctx context.Context, key, member string) (bool, error)
	setMove(ctx context.Context, src, dst, member string) (bool, error)
	setCombine(ctx context.Context, op setOp, keys []string) ([]string, error)
	setCombineStore(ctx context.Context, op setOp, dst string, keys []string) (int64, error)
}

var (
	_ engine = (*memoryEngine)(nil)
	_ engine = (*redisEngine)(nil)
)

// Cache is a handle to one engine. It is safe for concurrent use; pass it
// explicitly to whatever needs caching. Clone returns another handle to the
// same engine.
type Cache struct {
	engine engine
}

// NewMemory returns a Cache backed by the in-process engine.
func NewMemory(opts Options) *Cache {
	return &Cache{engine: newMemoryEngine(opts)}
}

// NewRedis returns a Cache backed by Redis. It pings the server once so a bad
// address or credentials fail here with KindConnection.
func NewRedis(ctx context.Context, cfg RedisConfig, opts Options) (*Cache, error) {
	e, err := newRedisEngine(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Cache{engine: e}, nil
}

// Backend reports which engine the handle dispatches to.
func (c *Cache) Backend() Backend { return c.engine.backend() }

// Clone returns a new handle sharing the same engine and storage.
func (c *Cache) Clone() *Cache { return &Cache{engine: c.engine} }

// Close releases the engine. For Redis it closes the pool when the cache
// created (or was told it owns) the client. All clones share the engine, so
// close once.
func (c *Cache) Close(ctx context.Context) error { return c.engine.close(ctx) }

// ==============================
// Hash surface
// ==============================

// HashGet returns one field of the hash at key. Absent key or field => ok=false.
func (c *Cache) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	return c.engine.hashGet(ctx, key, field)
}

// HashSet sets one field, creating the hash if needed. created reports
// whether the field is new.
func (c *Cache) HashSet(ctx context.Context, key, field string, value any) (created bool, err error) {
	s, err := formatArg("hash_set", key, value)
	if err != nil {
		return false, err
	}
	return c.engine.hashSet(ctx, key, field, s)
}

// HashMultipleGet returns the fields in order; absent ones are nil.
func (c *Cache) HashMultipleGet(ctx context.Context, key string, fields ...string) ([]*string, error) {
	if len(fields) == 0 {
		return nil, errNoArgs("hash_multiple_get", key, "field")
	}
	return c.engine.hashMultipleGet(ctx, key, fields)
}

// HashMultipleSet sets several fields at once, creating the hash if needed.
func (c *Cache) HashMultipleSet(ctx context.Context, key string, values map[string]any) error {
	if len(values) == 0 {
		return errNoArgs("hash_multiple_set", key, "field")
	}
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)
	rec := make(record.Record, 0, len(values))
	for _, n := range names {
		s, err := formatArg("hash_multiple_set", key, values[n])
		if err != nil {
			return err
		}
		rec = append(rec, record.Field{Name: n, Value: s})
	}
	return c.engine.hashMultipleSet(ctx, key, rec)
}

// HashDelete removes fields and returns how many existed. Absent fields are
// ignored.
func (c *Cache) HashDelete(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, errNoArgs("hash_delete", key, "field")
	}
	return c.engine.hashDelete(ctx, key, fields)
}

func (c *Cache) HashExists(ctx context.Context, key, field string) (bool, error) {
	return c.engine.hashExists(ctx, key, field)
}

func (c *Cache) HashLen(ctx context.Context, key string) (int64, error) {
	return c.engine.hashLen(ctx, key)
}

// HashKeys returns the field names, sorted.
func (c *Cache) HashKeys(ctx context.Context, key string) ([]string, error) {
	return c.engine.hashKeys(ctx, key)
}

// HashValues returns the field values. Order is unspecified.
func (c *Cache) HashValues(ctx context.Context, key string) ([]string, error) {
	return c.engine.hashValues(ctx, key)
}

// HashSetIfNotExists sets field only when absent and reports whether it did.
func (c *Cache) HashSetIfNotExists(ctx context.Context, key, field string, value any) (bool, error) {
	s, err := formatArg("hash_set_if_not_exists", key, value)
	if err != nil {
		return false, err
	}
	return c.engine.hashSetIfNotExists(ctx, key, field, s)
}

// ==============================
// Set surface
// ==============================

// SetAdd adds members (formatted like record scalars) and returns how many
// were new.
func (c *Cache) SetAdd(ctx context.Context, key string, members ...any) (int64, error) {
	ms, err := formatMembers("set_add", key, members)
	if err != nil {
		return 0, err
	}
	return c.engine.setAdd(ctx, key, ms)
}

// SetRem removes members and returns how many were present.
func (c *Cache) SetRem(ctx context.Context, key string, members ...any) (int64, error) {
	ms, err := formatMembers("set_rem", key, members)
	if err != nil {
		return 0, err
	}
	return c.engine.setRem(ctx, key, ms)
}

func (c *Cache) SetCard(ctx context.Context, key string) (int64, error) {
	return c.engine.setCard(ctx, key)
}

// SetMembers returns the members sorted byte-wise.
func (c *Cache) SetMembers(ctx context.Context, key string) ([]string, error) {
	return c.engine.setMembers(ctx, key)
}

func (c *Cache) SetIsMember(ctx context.Context, key string, member any) (bool, error) {
	m, err := formatArg("set_ismember", key, member)
	if err != nil {
		return false, err
	}
	return c.engine.setIsMember(ctx, key, m)
}

// SetMove moves member from src to dst. It reports false when src does not
// hold member.
func (c *Cache) SetMove(ctx context.Context, src, dst string, member any) (bool, error) {
	m, err := formatArg("set_move", src, member)
	if err != nil {
		return false, err
	}
	return c.engine.setMove(ctx, src, dst, m)
}

// SetDiff returns the members of the first set absent from all others.
func (c *Cache) SetDiff(ctx context.Context, keys ...string) ([]string, error) {
	return c.combine(ctx, opDiff, keys)
}

// SetDiffStore stores SetDiff(keys...) at dst and returns its size.
func (c *Cache) SetDiffStore(ctx context.Context, dst string, keys ...string) (int64, error) {
	return c.combineStore(ctx, opDiff, dst, keys)
}

func (c *Cache) SetInter(ctx context.Context, keys ...string) ([]string, error) {
	return c.combine(ctx, opInter, keys)
}

func (c *Cache) SetInterStore(ctx context.Context, dst string, keys ...string) (int64, error) {
	return c.combineStore(ctx, opInter, dst, keys)
}

func (c *Cache) SetUnion(ctx context.Context, keys ...string) ([]string, error) {
	return c.combine(ctx, opUnion, keys)
}

func (c *Cache) SetUnionStore(ctx context.Context, dst string, keys ...string) (int64, error) {
	return c.combineStore(ctx, opUnion, dst, keys)
}

func (c *Cache) combine(ctx context.Context, op setOp, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, errNoArgs(op.String(), "", "key")
	}
	return c.engine.setCombine(ctx, op, keys)
}

func (c *Cache) combineStore(ctx context.Context, op setOp, dst string, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, errNoArgs(op.String()+"store", dst, "key")
	}
	return c.engine.setCombineStore(ctx, op, dst, keys)
}

func formatArg(op, key string, v any) (string, error) {
	s, err := record.Format(v)
	if err != nil {
		return "", newError(KindOther, op, key, err)
	}
	return s, nil
}

func formatMembers(op, key string, members []any) ([]string, error) {
	if len(members) == 0 {
		return nil, errNoArgs(op, key, "member")
	}
	out := make([]string, len(members))
	for i, m := range members {
		s, err := formatArg(op, key, m)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
