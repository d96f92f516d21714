package hashcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/unkn0wn-root/hashcache/internal/util"
	"github.com/unkn0wn-root/hashcache/record"
)

type entry struct {
	value      any
	insertedAt time.Time
	ttl        time.Duration // 0 => never expires
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.insertedAt) >= e.ttl
}

// memoryEngine keeps typed values as-is (no record conversion) partitioned
// by model name. Expiration is lazy: only Get checks and purges.
type memoryEngine struct {
	mu     sync.RWMutex
	models map[string]map[string]*entry

	hashes *striped[hashRec]
	sets   *striped[setRec]

	log   Logger
	hooks Hooks
	now   func() time.Time
}

func newMemoryEngine(opts Options) *memoryEngine {
	shards := coalesce(opts.Shards, defaultShards)
	if shards < 0 {
		shards = defaultShards
	}
	return &memoryEngine{
		models: make(map[string]map[string]*entry),
		hashes: newStriped(shards, func() hashRec { return make(hashRec) }),
		sets:   newStriped(shards, func() setRec { return make(setRec) }),
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:  coalesce[Hooks](opts.Hooks, NopHooks{}),
		now:    time.Now,
	}
}

func (m *memoryEngine) backend() Backend { return BackendMemory }

func (m *memoryEngine) close(context.Context) error { return nil }

// ==============================
// Typed objects
// ==============================

func (m *memoryEngine) insert(_ context.Context, obj object) error {
	e := &entry{value: obj.value, insertedAt: m.now(), ttl: obj.ttl}
	if e.ttl < 0 {
		e.ttl = 0
	}
	k := util.EntryKey(obj.model, obj.key)

	m.mu.Lock()
	part := m.models[obj.model]
	if part == nil {
		part = make(map[string]*entry)
		m.models[obj.model] = part
	}
	part[k] = e
	m.mu.Unlock()
	return nil
}

func (m *memoryEngine) get(_ context.Context, model, key string, _ decodeFunc) (any, bool, error) {
	k := util.EntryKey(model, key)

	m.mu.RLock()
	e, ok := m.models[model][k]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expired(m.now()) {
		return e.value, true, nil
	}

	m.mu.Lock()
	// a concurrent Insert may have replaced the entry; only purge ours
	if part := m.models[model]; part != nil && part[k] == e {
		delete(part, k)
	}
	m.mu.Unlock()

	m.hooks.LazyExpired(k)
	m.log.Debug("expired entry purged", keyFields(k, nil))
	return nil, false, nil
}

func (m *memoryEngine) contains(_ context.Context, model, key string) (bool, error) {
	m.mu.RLock()
	_, ok := m.models[model][util.EntryKey(model, key)]
	m.mu.RUnlock()
	return ok, nil
}

func (m *memoryEngine) remove(_ context.Context, model, key string) error {
	m.mu.Lock()
	if part := m.models[model]; part != nil {
		delete(part, util.EntryKey(model, key))
	}
	m.mu.Unlock()
	return nil
}

// ==============================
// Hashes
// ==============================

func (m *memoryEngine) hashGet(_ context.Context, key, field string) (v string, ok bool, _ error) {
	m.hashes.read(key, func(h hashRec) { v, ok = h[field] })
	return v, ok, nil
}

func (m *memoryEngine) hashSet(_ context.Context, key, field, value string) (created bool, _ error) {
	m.hashes.write(key, func(h hashRec) {
		_, exists := h[field]
		h[field] = value
		created = !exists
	})
	return created, nil
}

func (m *memoryEngine) hashMultipleGet(_ context.Context, key string, fields []string) ([]*string, error) {
	out := make([]*string, len(fields))
	m.hashes.read(key, func(h hashRec) {
		for i, f := range fields {
			if v, ok := h[f]; ok {
				out[i] = &v
			}
		}
	})
	return out, nil
}

func (m *memoryEngine) hashMultipleSet(_ context.Context, key string, rec record.Record) error {
	if len(rec) == 0 {
		return newError(KindInsertion, "hash_multiple_set", key, errEmptyRecord)
	}
	m.hashes.write(key, func(h hashRec) {
		for _, f := range rec {
			h[f.Name] = f.Value
		}
	})
	return nil
}

func (m *memoryEngine) hashGetAll(_ context.Context, key string) (rec record.Record, _ error) {
	m.hashes.read(key, func(h hashRec) { rec = record.FromMap(h) })
	return rec, nil
}

func (m *memoryEngine) hashDelete(_ context.Context, key string, fields []string) (n int64, _ error) {
	m.hashes.modify(key, func(h hashRec) {
		for _, f := range fields {
			if _, ok := h[f]; ok {
				delete(h, f)
				n++
			}
		}
	})
	return n, nil
}

func (m *memoryEngine) hashExists(_ context.Context, key, field string) (ok bool, _ error) {
	m.hashes.read(key, func(h hashRec) { _, ok = h[field] })
	return ok, nil
}

func (m *memoryEngine) hashLen(_ context.Context, key string) (n int64, _ error) {
	m.hashes.read(key, func(h hashRec) { n = int64(len(h)) })
	return n, nil
}

func (m *memoryEngine) hashKeys(_ context.Context, key string) ([]string, error) {
	out := []string{}
	m.hashes.read(key, func(h hashRec) {
		for f := range h {
			out = append(out, f)
		}
	})
	sort.Strings(out)
	return out, nil
}

// hashValues orders values by field name; callers must not rely on it.
func (m *memoryEngine) hashValues(_ context.Context, key string) ([]string, error) {
	out := []string{}
	m.hashes.read(key, func(h hashRec) {
		for _, f := range record.FromMap(h) {
			out = append(out, f.Value)
		}
	})
	return out, nil
}

func (m *memoryEngine) hashSetIfNotExists(_ context.Context, key, field, value string) (set bool, _ error) {
	m.hashes.write(key, func(h hashRec) {
		if _, exists := h[field]; !exists {
			h[field] = value
			set = true
		}
	})
	return set, nil
}

// ==============================
// Sets
// ==============================

func (m *memoryEngine) setAdd(_ context.Context, key string, members []string) (n int64, _ error) {
	m.sets.write(key, func(s setRec) {
		for _, mem := range members {
			if _, ok := s[mem]; !ok {
				s[mem] = struct{}{}
				n++
			}
		}
	})
	return n, nil
}

func (m *memoryEngine) setRem(_ context.Context, key string, members []string) (n int64, _ error) {
	m.sets.modify(key, func(s setRec) {
		for _, mem := range members {
			if _, ok := s[mem]; ok {
				delete(s, mem)
				n++
			}
		}
	})
	return n, nil
}

func (m *memoryEngine) setCard(_ context.Context, key string) (n int64, _ error) {
	m.sets.read(key, func(s setRec) { n = int64(len(s)) })
	return n, nil
}

func (m *memoryEngine) setMembers(_ context.Context, key string) ([]string, error) {
	s, _ := snapshot(m.sets, key)
	return s.sorted(), nil
}

func (m *memoryEngine) setIsMember(_ context.Context, key, member string) (ok bool, _ error) {
	m.sets.read(key, func(s setRec) { _, ok = s[member] })
	return ok, nil
}

// setMove removes from src then adds to dst under separate locks; a
// concurrent reader may see the member in neither set.
func (m *memoryEngine) setMove(_ context.Context, src, dst, member string) (moved bool, _ error) {
	m.sets.modify(src, func(s setRec) {
		if _, ok := s[member]; ok {
			delete(s, member)
			moved = true
		}
	})
	if moved {
		m.sets.write(dst, func(s setRec) { s[member] = struct{}{} })
	}
	return moved, nil
}

func (m *memoryEngine) setCombine(_ context.Context, op setOp, keys []string) ([]string, error) {
	return m.combine(op, keys).sorted(), nil
}

func (m *memoryEngine) setCombineStore(_ context.Context, op setOp, dst string, keys []string) (int64, error) {
	res := m.combine(op, keys)
	m.sets.replace(dst, res)
	return int64(len(res)), nil
}

// combine works on per-set snapshots taken one at a time; the result is not
// a point-in-time view across keys.
func (m *memoryEngine) combine(op setOp, keys []string) setRec {
	first, ok := snapshot(m.sets, keys[0])
	if !ok {
		first = setRec{}
	}
	switch op {
	case opDiff:
		for _, k := range keys[1:] {
			m.sets.read(k, func(s setRec) {
				for mem := range s {
					delete(first, mem)
				}
			})
		}
		return first
	case opInter:
		for _, k := range keys[1:] {
			if len(first) == 0 {
				break
			}
			found := m.sets.read(k, func(s setRec) {
				for mem := range first {
					if _, ok := s[mem]; !ok {
						delete(first, mem)
					}
				}
			})
			if !found {
				return setRec{}
			}
		}
		return first
	default:
		for _, k := range keys[1:] {
			m.sets.read(k, func(s setRec) {
				for mem := range s {
					first[mem] = struct{}{}
				}
			})
		}
		return first
	}
}
