package cache

import (
	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
)

// NoCache is the cache-less control path paired with the NO_CACHE
// handshake signal: every Get misses, every mutation is a no-op.
type NoCache struct{}

func (NoCache) Get(merkle.NodeID) (Entry, bool)                      { return Entry{}, false }
func (NoCache) InsertLeaf(page.ID, *page.Page, digest.Digest, uint32) {}
func (NoCache) Unconfirm()                                           {}
func (NoCache) Confirm(merkle.NodeID)                                {}
func (NoCache) Clear()                                               {}
func (NoCache) Stats() (int64, uint32)                                { return 0, 0 }

// IntraStatementCache is variant V0: no validity tag is needed because
// the whole cache is cleared at the start of every statement.
type IntraStatementCache struct {
	core
}

// NewIntraStatementCache returns a V0 cache with the given node capacity.
func NewIntraStatementCache(capacity int) *IntraStatementCache {
	c := &IntraStatementCache{}
	c.core = newCore(capacity, func(parent merkle.NodeID, left, right *Entry) *Entry {
		return &Entry{ID: parent, Hash: mergeHash(left, right), Valid: true}
	})
	return c
}

func (c *IntraStatementCache) Get(id merkle.NodeID) (Entry, bool) { return c.get(id) }

func (c *IntraStatementCache) InsertLeaf(pageID page.ID, bytes *page.Page, hash digest.Digest, _ uint32) {
	leafID := merkle.NewNodeIDFromPageID(pageID)
	e := &Entry{ID: leafID, Hash: digest.LeafHash(uint32(pageID), hash), Valid: true, Bytes: pageBytesCopy(bytes)}
	c.put(e)
	c.propagateUp(leafID)
}

// Unconfirm discards the entire cache: V0 carries no trust across a
// statement boundary, so there is nothing to merely invalidate.
func (c *IntraStatementCache) Unconfirm() { c.clear() }

// Confirm is a no-op: every entry in a V0 cache is already trusted
// for the lifetime of the statement that created it.
func (c *IntraStatementCache) Confirm(merkle.NodeID) {}

func (c *IntraStatementCache) Clear()                 { c.clear() }
func (c *IntraStatementCache) Stats() (int64, uint32) { return c.stats() }

// ConfirmationCache is variant V1: entries carry a boolean validity
// tag, cleared at statement start and restored only by an explicit
// server-confirmed CONFIRM round trip.
type ConfirmationCache struct {
	core
}

// NewConfirmationCache returns a V1 cache with the given node capacity.
func NewConfirmationCache(capacity int) *ConfirmationCache {
	c := &ConfirmationCache{}
	c.core = newCore(capacity, func(parent merkle.NodeID, left, right *Entry) *Entry {
		return &Entry{ID: parent, Hash: mergeHash(left, right), Valid: left.Valid && right.Valid}
	})
	return c
}

func (c *ConfirmationCache) Get(id merkle.NodeID) (Entry, bool) { return c.get(id) }

func (c *ConfirmationCache) InsertLeaf(pageID page.ID, bytes *page.Page, hash digest.Digest, _ uint32) {
	leafID := merkle.NewNodeIDFromPageID(pageID)
	e := &Entry{ID: leafID, Hash: digest.LeafHash(uint32(pageID), hash), Valid: true, Bytes: pageBytesCopy(bytes)}
	c.put(e)
	c.propagateUp(leafID)
}

// Unconfirm marks every cached entry invalid; it does not evict them,
// since their hashes remain useful material for a future CONFIRM.
func (c *ConfirmationCache) Unconfirm() {
	for _, e := range c.entries {
		e.Valid = false
	}
}

// Confirm marks subRoot and every currently cached descendant valid,
// per a successful CONFIRM response naming subRoot as the highest
// matching node.
func (c *ConfirmationCache) Confirm(subRoot merkle.NodeID) {
	for _, id := range c.collectDescendants(subRoot) {
		if e, ok := c.entries[id]; ok {
			e.Valid = true
		}
	}
}

func (c *ConfirmationCache) Clear()                 { c.clear() }
func (c *ConfirmationCache) Stats() (int64, uint32) { return c.stats() }

// VersionFilterCache is variant V2: leaves and (unless Simple) interior
// nodes additionally carry a version and, for interior nodes, a
// precomputed VBF bucket-index set, the inputs a VBF freshness check
// needs. pkg/pageio does not run such a check: it inserts leaves at
// version 0 and re-validates an unconfirmed hit with CONFIRM, as for V1.
type VersionFilterCache struct {
	core
	simple bool
}

// NewVersionFilterCache returns a V2 cache. When simple is true,
// interior nodes are not given bucket-index sets and freshness is
// only ever checked at the leaf.
func NewVersionFilterCache(capacity int, simple bool) *VersionFilterCache {
	c := &VersionFilterCache{simple: simple}
	c.core = newCore(capacity, func(parent merkle.NodeID, left, right *Entry) *Entry {
		e := &Entry{
			ID:      parent,
			Hash:    mergeHash(left, right),
			Valid:   left.Valid && right.Valid,
			Version: maxVersion(left.Version, right.Version),
		}
		if !simple {
			e.Indices = unionIndices(left.Indices, right.Indices)
		}
		return e
	})
	return c
}

func (c *VersionFilterCache) Get(id merkle.NodeID) (Entry, bool) { return c.get(id) }

func (c *VersionFilterCache) InsertLeaf(pageID page.ID, bytes *page.Page, hash digest.Digest, version uint32) {
	leafID := merkle.NewNodeIDFromPageID(pageID)
	e := &Entry{
		ID:      leafID,
		Hash:    digest.LeafHash(uint32(pageID), hash),
		Valid:   true,
		Version: version,
		Bytes:   pageBytesCopy(bytes),
	}
	c.put(e)
	c.propagateUp(leafID)
}

// SetIndices attaches a leaf's precomputed VBF bucket-index set after
// insertion, for a caller that computes the indices once it has the
// filter in hand; it is a no-op for an id not in the cache.
func (c *VersionFilterCache) SetIndices(id merkle.NodeID, indices map[int]struct{}) {
	if e, ok := c.entries[id]; ok {
		e.Indices = indices
	}
}

func (c *VersionFilterCache) Unconfirm() {
	for _, e := range c.entries {
		e.Valid = false
	}
}

func (c *VersionFilterCache) Confirm(subRoot merkle.NodeID) {
	for _, id := range c.collectDescendants(subRoot) {
		if e, ok := c.entries[id]; ok {
			e.Valid = true
		}
	}
}

// ConfirmWithVersion is the supplemental fast path ported from the
// original's confirm_with_version: when the caller has already
// established (via the VBF, with no server round trip at all) that a
// node is still fresh as of version, it can be marked valid directly
// instead of going through the full CONFIRM protocol.
func (c *VersionFilterCache) ConfirmWithVersion(id merkle.NodeID, version uint32) {
	if e, ok := c.entries[id]; ok {
		e.Valid = true
		e.Version = version
	}
}

func (c *VersionFilterCache) Clear()                 { c.clear() }
func (c *VersionFilterCache) Stats() (int64, uint32) { return c.stats() }

func mergeHash(left, right *Entry) digest.Digest {
	return digest.MergeHash(left.Hash, right.Hash)
}

func maxVersion(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func unionIndices(a, b map[int]struct{}) map[int]struct{} {
	out := make(map[int]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

var (
	_ Cache = NoCache{}
	_ Cache = (*IntraStatementCache)(nil)
	_ Cache = (*ConfirmationCache)(nil)
	_ Cache = (*VersionFilterCache)(nil)
)

func pageBytesCopy(p *page.Page) []byte {
	if p == nil {
		return nil
	}
	b := make([]byte, page.Size)
	copy(b, p[:])
	return b
}
