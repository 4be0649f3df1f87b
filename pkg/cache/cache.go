// Package cache implements the client-side node cache (C8): three
// interchangeable variants sharing one Cache interface, all backed by
// a single LRU container with ancestor-cascading eviction (evicting a
// node must also evict every cached ancestor, since an orphaned child
// can no longer prove its own inclusion).
package cache

import (
	"github.com/vtree/vsqldb/internal/lru"
	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
)

// Entry is a single cached node. Exactly the fields relevant to the
// owning variant are populated; the others are left at their zero
// value. Bytes is non-nil only for leaf entries.
type Entry struct {
	ID      merkle.NodeID
	Hash    digest.Digest
	Valid   bool
	Version uint32
	Indices map[int]struct{}
	Bytes   []byte
}

// Cache is the operation set common to all three variants. Callers
// (pkg/pageio) consult Entry.Valid/Version themselves
// to decide whether a hit is reusable without a server round-trip;
// Get never hides an entry based on its own validity.
type Cache interface {
	Get(id merkle.NodeID) (Entry, bool)
	InsertLeaf(pageID page.ID, bytes *page.Page, hash digest.Digest, version uint32)
	Unconfirm()
	Confirm(subRoot merkle.NodeID)
	Clear()
	Stats() (sizeBytes int64, maxHeight uint32)
}

const hashOverheadBytes = digest.Size

// core is the shared LRU plumbing every variant embeds. It has no
// opinion on validity; that's each variant's job.
type core struct {
	lru     *lru.Cache
	entries map[merkle.NodeID]*Entry
	size    int64

	// merge builds the interior Entry for parent once both its
	// children are present in cache; variant-specific because V2
	// merges Version/Indices, V0/V1 don't need them.
	merge func(parent merkle.NodeID, left, right *Entry) *Entry
}

func newCore(capacity int, merge func(parent merkle.NodeID, left, right *Entry) *Entry) core {
	return core{
		lru:     lru.New(capacity),
		entries: make(map[merkle.NodeID]*Entry),
		merge:   merge,
	}
}

func (c *core) get(id merkle.NodeID) (Entry, bool) {
	v, ok := c.lru.Get(id)
	if !ok {
		return Entry{}, false
	}
	return *v.(*Entry), true
}

func (c *core) put(e *Entry) {
	if old, ok := c.entries[e.ID]; ok {
		c.size -= entrySize(old)
	}
	c.entries[e.ID] = e
	c.size += entrySize(e)
	evKey, evVal, evicted := c.lru.Add(e.ID, e)
	if evicted {
		c.remove(evKey.(merkle.NodeID))
		_ = evVal
		c.cascadeEvict(evKey.(merkle.NodeID))
	}
}

// remove deletes id from the bookkeeping map and size tally; the LRU
// entry itself may already be gone (eviction) or still present
// (explicit ancestor cascade), so Remove is called unconditionally.
func (c *core) remove(id merkle.NodeID) {
	if e, ok := c.entries[id]; ok {
		c.size -= entrySize(e)
		delete(c.entries, id)
	}
	c.lru.Remove(id)
}

// cascadeEvict walks upward from a just-evicted node, removing every
// ancestor still present in the cache: an ancestor whose child just
// disappeared can no longer reconstruct its own subtree proof.
func (c *core) cascadeEvict(evicted merkle.NodeID) {
	cur := evicted
	for {
		parent := cur.Parent()
		if _, ok := c.entries[parent]; !ok {
			return
		}
		c.remove(parent)
		cur = parent
	}
}

// propagateUp opportunistically builds interior entries above id as
// long as id's sibling is already cached, so a later read can prove
// an ancestor sub-root from cache alone instead of falling back to a
// server round trip one level at a time.
func (c *core) propagateUp(id merkle.NodeID) {
	cur := id
	for {
		sib := cur.Sibling()
		sibEntry, ok := c.entries[sib]
		if !ok {
			return
		}
		curEntry := c.entries[cur]
		parent := cur.Parent()
		var left, right *Entry
		if cur.IsEven() {
			left, right = curEntry, sibEntry
		} else {
			left, right = sibEntry, curEntry
		}
		parentEntry := c.merge(parent, left, right)
		c.put(parentEntry)
		cur = parent
	}
}

func (c *core) clear() {
	c.lru.Clear()
	c.entries = make(map[merkle.NodeID]*Entry)
	c.size = 0
}

func (c *core) stats() (int64, uint32) {
	var maxHeight uint32
	for id := range c.entries {
		if id.Height > maxHeight {
			maxHeight = id.Height
		}
	}
	return c.size, maxHeight
}

// collectDescendants returns subRoot and every one of its currently
// cached descendants, used by Confirm to cascade validity downward.
func (c *core) collectDescendants(subRoot merkle.NodeID) []merkle.NodeID {
	ids := []merkle.NodeID{subRoot}
	if subRoot.IsLeaf() {
		return ids
	}
	left, right, err := subRoot.Children()
	if err != nil {
		return ids
	}
	if _, ok := c.entries[left]; ok {
		ids = append(ids, c.collectDescendants(left)...)
	}
	if _, ok := c.entries[right]; ok {
		ids = append(ids, c.collectDescendants(right)...)
	}
	return ids
}

func entrySize(e *Entry) int64 {
	return int64(hashOverheadBytes + len(e.Bytes))
}
