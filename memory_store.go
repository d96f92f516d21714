package hashcache

import (
	"sync"

	"github.com/unkn0wn-root/hashcache/internal/util"
)

// sized is a record body; an empty one is never kept in a stripe.
type sized interface {
	size() int
}

// striped is a key -> *rec[V] map split into lock stripes. The stripe lock
// only guards the key map; each record has its own lock for its contents, so
// work on one record never blocks lookups of another.
//
// Lock order is record, then stripe. Nothing waits on a record lock while
// holding a stripe lock.
type striped[V sized] struct {
	shards []*stripe[V]
	fresh  func() V
}

type stripe[V sized] struct {
	mu   sync.RWMutex
	recs map[string]*rec[V]
}

type rec[V sized] struct {
	mu   sync.RWMutex
	val  V
	dead bool // unlinked from its stripe; writers must look it up again
}

func newStriped[V sized](n int, fresh func() V) *striped[V] {
	s := &striped[V]{shards: make([]*stripe[V], n), fresh: fresh}
	for i := range s.shards {
		s.shards[i] = &stripe[V]{recs: make(map[string]*rec[V])}
	}
	return s
}

func (s *striped[V]) shardFor(key string) *stripe[V] {
	return s.shards[util.Shard(key, len(s.shards))]
}

// lookup returns the record at key or nil.
func (s *striped[V]) lookup(key string) *rec[V] {
	sh := s.shardFor(key)
	sh.mu.RLock()
	r := sh.recs[key]
	sh.mu.RUnlock()
	return r
}

// vivify returns the record at key, creating an empty one if needed.
func (s *striped[V]) vivify(key string) *rec[V] {
	sh := s.shardFor(key)
	sh.mu.RLock()
	r := sh.recs[key]
	sh.mu.RUnlock()
	if r != nil {
		return r
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if r = sh.recs[key]; r == nil {
		r = &rec[V]{val: s.fresh()}
		sh.recs[key] = r
	}
	return r
}

// replace installs a new record holding v at key. An empty v removes the key.
func (s *striped[V]) replace(key string, v V) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	old := sh.recs[key]
	if v.size() == 0 {
		delete(sh.recs, key)
	} else {
		sh.recs[key] = &rec[V]{val: v}
	}
	sh.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.dead = true
		old.mu.Unlock()
	}
}

// read runs fn under the record's read lock. Absent keys are not created.
func (s *striped[V]) read(key string, fn func(V)) bool {
	r := s.lookup(key)
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.dead {
		return false
	}
	fn(r.val)
	return true
}

// write runs fn under the record's write lock, creating the record first.
func (s *striped[V]) write(key string, fn func(V)) {
	for {
		r := s.vivify(key)
		r.mu.Lock()
		if !r.dead {
			fn(r.val)
			s.unlinkIfEmpty(key, r)
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
	}
}

// modify is write without auto-vivification.
func (s *striped[V]) modify(key string, fn func(V)) bool {
	r := s.lookup(key)
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return false
	}
	fn(r.val)
	s.unlinkIfEmpty(key, r)
	return true
}

// unlinkIfEmpty drops r from its stripe once it holds nothing. r.mu must be
// held for writing.
func (s *striped[V]) unlinkIfEmpty(key string, r *rec[V]) {
	if r.val.size() > 0 {
		return
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	if sh.recs[key] == r {
		delete(sh.recs, key)
	}
	sh.mu.Unlock()
	r.dead = true
}

type (
	hashRec map[string]string
	setRec  map[string]struct{}
)

func (h hashRec) size() int { return len(h) }
func (m setRec) size() int  { return len(m) }

// snapshot copies the members of the set at key; absent sets are empty.
func snapshot(s *striped[setRec], key string) (setRec, bool) {
	var out setRec
	ok := s.read(key, func(m setRec) {
		out = make(setRec, len(m))
		for k := range m {
			out[k] = struct{}{}
		}
	})
	return out, ok
}

func (m setRec) sorted() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return util.SortedUnique(out)
}
