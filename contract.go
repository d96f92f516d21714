package hashcache

import (
	"fmt"
	"time"

	"github.com/unkn0wn-root/hashcache/record"
)

// Record is the flat shape every Cacheable converts to.
type Record = record.Record

// Cacheable is the record contract a stored type satisfies.
// Implement it by hand or with record.Marshal:
//
//	func (User) ModelName() string             { return "User" }
//	func (User) ExpiresAfter() time.Duration   { return 0 }
//	func (u User) ToRecord() hashcache.Record  { r, _ := record.Marshal(u); return r }
//	func (u *User) FromRecord(r hashcache.Record) error { return record.Unmarshal(r, u) }
type Cacheable interface {
	// ModelName is constant per type; it prefixes every composite key.
	ModelName() string
	// ToRecord returns the object's fields as strings, in a stable order.
	ToRecord() Record
	// ExpiresAfter is the object's own TTL; 0 means no expiration.
	ExpiresAfter() time.Duration
}

// Model is the constraint of the typed helpers: T's pointer is Cacheable and
// can be filled from a Record. FromRecord must fail when a field is missing
// or does not parse.
type Model[T any] interface {
	*T
	Cacheable
	FromRecord(Record) error
}

// Key is the instance part of a composite key. Other key types (a UUID, any
// fmt.Stringer) go through StringKey.
type Key interface {
	~string |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func formatKey[K Key](k K) string { return fmt.Sprint(k) }

// StringKey adapts a fmt.Stringer to Key:
//
//	hashcache.Get[User](ctx, c, hashcache.StringKey(id))
func StringKey(k fmt.Stringer) string { return k.String() }
