package hashcache

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/hashcache/internal/util"
	"github.com/unkn0wn-root/hashcache/record"
)

// Insert stores obj under "<ModelName>:<key>", replacing any previous value,
// with the type's own ExpiresAfter as TTL.
func Insert[T any, PT Model[T], K Key](ctx context.Context, c *Cache, key K, obj T) error {
	return InsertWith[T, PT](ctx, c, key, obj, 0)
}

// InsertWith is Insert with an explicit TTL. ttl > 0 wins over the type's
// ExpiresAfter; ttl <= 0 falls back to it.
func InsertWith[T any, PT Model[T], K Key](ctx context.Context, c *Cache, key K, obj T, ttl time.Duration) error {
	p := PT(&obj)
	if ttl <= 0 {
		ttl = p.ExpiresAfter()
	}
	o := object{
		model:  p.ModelName(),
		key:    formatKey(key),
		record: p.ToRecord,
		ttl:    ttl,
	}
	if c.engine.backend() == BackendMemory {
		o.value = cloneOf(obj)
	}
	return c.engine.insert(ctx, o)
}

// Get returns the value stored under key. A miss is (zero, false, nil).
//
// In-process: a stored value of another type under the same composite key
// is a programming error and panics.
// Redis: a record that does not decode into T is reported as a miss.
func Get[T any, PT Model[T], K Key](ctx context.Context, c *Cache, key K) (T, bool, error) {
	var zero T
	v, ok, err := c.engine.get(ctx, modelName[T, PT](), formatKey(key), decodeAs[T, PT])
	if err != nil || !ok {
		return zero, false, err
	}
	t, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("hashcache: %s holds %T, not %T", StorageKey[T, PT](key), v, zero))
	}
	if c.engine.backend() == BackendMemory {
		t = cloneOf(t)
	}
	return t, true, nil
}

// ContainsKey reports whether a value is stored under key. The in-process
// engine does not check expiration here; an expired entry reports true until
// the next Get removes it.
func ContainsKey[T any, PT Model[T], K Key](ctx context.Context, c *Cache, key K) (bool, error) {
	return c.engine.contains(ctx, modelName[T, PT](), formatKey(key))
}

// Remove deletes the value stored under key. Removing an absent key is not an
// error.
func Remove[T any, PT Model[T], K Key](ctx context.Context, c *Cache, key K) error {
	return c.engine.remove(ctx, modelName[T, PT](), formatKey(key))
}

// HashGetAll reads the whole hash at key (a plain key, not a composite one)
// and decodes it into T. An absent or empty hash is a miss; a hash that does
// not decode fails with KindAccess.
func HashGetAll[T any, PT Model[T]](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T
	rec, err := c.engine.hashGetAll(ctx, key)
	if err != nil || len(rec) == 0 {
		return zero, false, err
	}
	v, err := decodeAs[T, PT](rec)
	if err != nil {
		return zero, false, newError(KindAccess, "hash_get_all", key, err)
	}
	return v.(T), true, nil
}

// HashSetAll writes obj's record into the hash at key, merging with existing
// fields. No TTL is applied.
func HashSetAll[T any, PT Model[T]](ctx context.Context, c *Cache, key string, obj T) error {
	rec := PT(&obj).ToRecord()
	if len(rec) == 0 {
		return newError(KindInsertion, "hash_set_all", key, errEmptyRecord)
	}
	return c.engine.hashMultipleSet(ctx, key, rec)
}

// HashGetAs is HashGet followed by record.Parse. A value that does not parse
// as T fails with KindAccess.
func HashGetAs[T record.Scalar](ctx context.Context, c *Cache, key, field string) (T, bool, error) {
	var zero T
	s, ok, err := c.engine.hashGet(ctx, key, field)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := record.Parse[T](s)
	if err != nil {
		return zero, false, newError(KindAccess, "hash_get", key, err)
	}
	return v, true, nil
}

// StorageKey returns the composite key a typed value is stored under. Both
// engines use the same form.
func StorageKey[T any, PT Model[T], K Key](key K) string {
	return util.EntryKey(modelName[T, PT](), formatKey(key))
}

// cloneOf honors an optional Clone method, on T or on *T, so in-process
// values are not shared with callers.
func cloneOf[T any](v T) T {
	if c, ok := any(v).(interface{ Clone() T }); ok {
		return c.Clone()
	}
	if c, ok := any(&v).(interface{ Clone() T }); ok {
		return c.Clone()
	}
	return v
}

func modelName[T any, PT Model[T]]() string {
	var zero T
	return PT(&zero).ModelName()
}

func decodeAs[T any, PT Model[T]](rec record.Record) (any, error) {
	var out T
	if err := PT(&out).FromRecord(rec); err != nil {
		return nil, err
	}
	return out, nil
}
