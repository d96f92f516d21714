package util

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// EntryKey returns the composite "<model>:<key>" address of a typed object.
// Both engines must produce the same string for the same logical entity.
func EntryKey(model, key string) string {
	return model + ":" + key
}

// Shard maps key onto one of n lock stripes.
func Shard(key string, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}

// SortedUnique sorts members byte-wise and drops duplicates in place.
func SortedUnique(members []string) []string {
	if len(members) < 2 {
		return members
	}
	sort.Strings(members)
	out := members[:1]
	for _, m := range members[1:] {
		if m != out[len(out)-1] {
			out = append(out, m)
		}
	}
	return out
}
