// Package vbf implements the Version Bloom Filter: a fixed-size
// vector of version counters used to cheaply test whether a page has
// been updated since a client-held snapshot time.
package vbf

import (
	"fmt"
	"math/rand"

	"github.com/vtree/vsqldb/pkg/page"
)

// DefaultMapSize and DefaultHashNum are the reference implementation's
// unconfirmed defaults.
const (
	DefaultMapSize = 10_000
	DefaultHashNum = 5
)

// Filter is a Version Bloom Filter: m slots of monotonically
// increasing version counters, indexed by k double-hash positions per
// PageId. The two hash seeds are plain uint64s (not hash/maphash's
// opaque Seed) so a Filter's slot layout can be reproduced on another
// process from Seeds() + Slots(), the shape a shared-snapshot
// transport (pkg/vbf/snapshot.go) needs.
type Filter struct {
	slots   []uint32
	mapSize uint64
	hashNum uint32
	seed1   uint64
	seed2   uint64
}

// New returns a Filter with mapSize slots and hashNum hash positions
// per page, seeded from the process-global random source.
func New(mapSize int, hashNum uint32) *Filter {
	return NewWithSeeds(mapSize, hashNum, rand.Uint64(), rand.Uint64())
}

// NewWithSeeds returns a Filter whose hash kernel is pinned to the
// given seeds, so two Filters built with the same (mapSize, hashNum,
// seed1, seed2) hash every PageId to the same bucket set: the
// precondition a snapshot loaded from another process must meet.
func NewWithSeeds(mapSize int, hashNum uint32, seed1, seed2 uint64) *Filter {
	return &Filter{
		slots:   make([]uint32, mapSize),
		mapSize: uint64(mapSize),
		hashNum: hashNum,
		seed1:   seed1,
		seed2:   seed2,
	}
}

// Seeds returns the hash kernel's seeds.
func (f *Filter) Seeds() (uint64, uint64) { return f.seed1, f.seed2 }

// Slots returns a copy of the filter's raw version counters.
func (f *Filter) Slots() []uint32 {
	out := make([]uint32, len(f.slots))
	copy(out, f.slots)
	return out
}

// LoadSlots overwrites the filter's counters with slots, which must
// have exactly mapSize entries (the length New/NewWithSeeds was built
// with).
func (f *Filter) LoadSlots(slots []uint32) error {
	if uint64(len(slots)) != f.mapSize {
		return fmt.Errorf("vbf: LoadSlots got %d slots, want %d", len(slots), f.mapSize)
	}
	copy(f.slots, slots)
	return nil
}

// fnvMix64 is a fixed-point FNV-1a style mixer, used instead of
// hash/maphash so a Filter's hash kernel is fully defined by its two
// uint64 seeds and can be reconstructed in another process.
func fnvMix64(seed uint64, b []byte) uint64 {
	h := seed
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}

func pageBytes(p page.ID) []byte {
	return []byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)}
}

func (f *Filter) hashKernel(p page.ID) (uint64, uint64) {
	b := pageBytes(p)
	return fnvMix64(f.seed1, b), fnvMix64(f.seed2, b)
}

// idx computes g_i(x) = h1(x) + i*h2(x) mod m.
func (f *Filter) idx(h1, h2, i uint64) int {
	return int((h1 + i*h2) % f.mapSize)
}

// Insert unconditionally sets every one of p's k bucket positions to
// v. Callers must only ever pass increasing v over time; Insert does
// not enforce monotonicity itself (the single trusted writer does).
func (f *Filter) Insert(p page.ID, v uint32) {
	h1, h2 := f.hashKernel(p)
	for i := uint32(0); i < f.hashNum; i++ {
		f.slots[f.idx(h1, h2, uint64(i))] = v
	}
}

// BucketIndices returns the set of bucket indices p hashes to, for
// precomputing an interior cache node's sub-root freshness check.
func (f *Filter) BucketIndices(p page.ID) map[int]struct{} {
	set := make(map[int]struct{}, f.hashNum)
	h1, h2 := f.hashKernel(p)
	for i := uint32(0); i < f.hashNum; i++ {
		set[f.idx(h1, h2, uint64(i))] = struct{}{}
	}
	return set
}

// Contains returns false iff any of p's k positions holds a value
// <= v (meaning no write newer than v is recorded for any slot p
// hashes to); otherwise true (p may have been updated after v). False
// positives are possible (shared buckets inflated by other pages'
// writes); false negatives are not.
func (f *Filter) Contains(p page.ID, v uint32) bool {
	h1, h2 := f.hashKernel(p)
	for i := uint32(0); i < f.hashNum; i++ {
		if f.slots[f.idx(h1, h2, uint64(i))] <= v {
			return false
		}
	}
	return true
}

// ContainsSubroot tests a precomputed set of bucket indices, used to
// test a cached sub-tree's freshness without re-deriving per-leaf
// indices. Unlike Contains, it returns true if any index holds a value
// > v, and false only when every index holds a value <= v.
func (f *Filter) ContainsSubroot(indices map[int]struct{}, v uint32) bool {
	for idx := range indices {
		if f.slots[idx] > v {
			return true
		}
	}
	return false
}
