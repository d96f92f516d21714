// Package hashcache stores typed objects and raw hash/set records through one
// API, backed either by an in-process engine or by Redis.
//
// Components:
//   - Record contract: a type converts itself to a flat, ordered list of
//     string fields (record.Record) and back. record.Marshal/Unmarshal
//     implement it reflectively from `cache:"..."` struct tags.
//   - In-process engine: model-partitioned map of type-erased values with
//     lazy expiration on read, plus striped hash and set stores.
//   - Redis engine: go-redis connection pool; typed objects are Redis hashes.
//   - Cache: the handle both engines sit behind. Typed access goes through
//     package functions (Insert, Get, ContainsKey, Remove, ...), the hash and
//     set command surface through methods.
//
// Keys:
//
//	<ModelName>:<InstanceKey>  - typed objects, identical on both engines
//	<key>                      - hash and set records, used verbatim
//
// On Redis, typed objects and hash records share one keyspace; the in-process
// engine keeps them apart.
//
// Usage:
//
//	c := hashcache.NewMemory(hashcache.Options{})
//	_ = hashcache.Insert(ctx, c, 42, user)
//	u, ok, err := hashcache.Get[User](ctx, c, 42)
//
// Errors are *Error values carrying a Kind; match them with errors.Is against
// ErrInsertion, ErrDeletion, ErrAccess, ErrConnection or ErrOther.
package hashcache
