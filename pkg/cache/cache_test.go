package cache

import (
	"testing"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
)

func pageHash(b byte) digest.Digest {
	var d digest.Digest
	d[0] = b
	return d
}

func TestIntraStatementUnconfirmClears(t *testing.T) {
	c := NewIntraStatementCache(10)
	c.InsertLeaf(3, nil, pageHash(0x03), 0)
	if _, ok := c.Get(merkle.NewNodeIDFromPageID(3)); !ok {
		t.Fatalf("expected leaf 3 to be cached")
	}
	c.Unconfirm()
	if _, ok := c.Get(merkle.NewNodeIDFromPageID(3)); ok {
		t.Fatalf("V0 Unconfirm should clear the whole cache")
	}
}

func TestIntraStatementPropagatesInteriorHash(t *testing.T) {
	c := NewIntraStatementCache(10)
	c.InsertLeaf(0, nil, pageHash(0x00), 0)
	c.InsertLeaf(1, nil, pageHash(0x01), 0)

	parent := merkle.NewNodeIDFromPageID(0).Parent()
	e, ok := c.Get(parent)
	if !ok {
		t.Fatalf("expected interior node %v to be auto-propagated once both children are cached", parent)
	}
	leaf0, _ := c.Get(merkle.NewNodeIDFromPageID(0))
	leaf1, _ := c.Get(merkle.NewNodeIDFromPageID(1))
	want := digest.NonLeafHash(&leaf0.Hash, &leaf1.Hash)
	if e.Hash != want {
		t.Fatalf("propagated interior hash = %v, want %v", e.Hash, want)
	}
}

func TestConfirmationCacheValidityLifecycle(t *testing.T) {
	c := NewConfirmationCache(10)
	id := merkle.NewNodeIDFromPageID(5)
	c.InsertLeaf(5, nil, pageHash(0x05), 0)

	e, ok := c.Get(id)
	if !ok || !e.Valid {
		t.Fatalf("freshly inserted entry should start valid")
	}

	c.Unconfirm()
	e, ok = c.Get(id)
	if !ok {
		t.Fatalf("Unconfirm must not evict entries, only invalidate them")
	}
	if e.Valid {
		t.Fatalf("entry should be invalid after Unconfirm")
	}

	c.Confirm(id)
	e, _ = c.Get(id)
	if !e.Valid {
		t.Fatalf("entry should be valid again after Confirm")
	}
}

func TestConfirmCascadesToDescendants(t *testing.T) {
	c := NewConfirmationCache(10)
	c.InsertLeaf(0, nil, pageHash(0x00), 0)
	c.InsertLeaf(1, nil, pageHash(0x01), 0)
	parent := merkle.NewNodeIDFromPageID(0).Parent()

	c.Unconfirm()
	c.Confirm(parent)

	leaf0, _ := c.Get(merkle.NewNodeIDFromPageID(0))
	leaf1, _ := c.Get(merkle.NewNodeIDFromPageID(1))
	if !leaf0.Valid || !leaf1.Valid {
		t.Fatalf("Confirm(parent) should validate both cached children")
	}
}

func TestVersionFilterCacheTracksVersion(t *testing.T) {
	c := NewVersionFilterCache(10, false)
	id := merkle.NewNodeIDFromPageID(2)
	c.InsertLeaf(2, nil, pageHash(0x02), 7)

	e, ok := c.Get(id)
	if !ok || e.Version != 7 {
		t.Fatalf("Get(%v) = %+v, want version 7", id, e)
	}

	c.ConfirmWithVersion(id, 9)
	e, _ = c.Get(id)
	if !e.Valid || e.Version != 9 {
		t.Fatalf("ConfirmWithVersion should bump validity and version without a full Confirm")
	}
}

func TestVersionFilterSimpleOmitsInteriorIndices(t *testing.T) {
	c := NewVersionFilterCache(10, true)
	c.InsertLeaf(0, nil, pageHash(0x00), 1)
	c.InsertLeaf(1, nil, pageHash(0x01), 1)

	parent := merkle.NewNodeIDFromPageID(0).Parent()
	e, ok := c.Get(parent)
	if !ok {
		t.Fatalf("expected interior propagation regardless of simple mode")
	}
	if e.Indices != nil {
		t.Fatalf("simple variant should not populate interior bucket indices")
	}
}

func TestEvictionCascadesToAncestors(t *testing.T) {
	c := NewIntraStatementCache(3)
	c.InsertLeaf(0, nil, pageHash(0x00), 0)
	c.InsertLeaf(1, nil, pageHash(0x01), 0)
	parent := merkle.NewNodeIDFromPageID(0).Parent()
	if _, ok := c.Get(parent); !ok {
		t.Fatalf("setup: expected parent to be cached before triggering eviction")
	}

	// Capacity is 3 (leaf0, leaf1, parent already fill it); inserting a
	// fourth entry must evict the least-recently-used one (leaf 0) and,
	// transitively, the parent that depended on it.
	c.InsertLeaf(2, nil, pageHash(0x02), 0)

	if _, ok := c.Get(parent); ok {
		t.Fatalf("parent should have been evicted once its child leaf was evicted")
	}
}

func TestNoCacheAlwaysMisses(t *testing.T) {
	var c NoCache
	c.InsertLeaf(page.ID(1), nil, pageHash(0x01), 0)
	if _, ok := c.Get(merkle.NewNodeIDFromPageID(1)); ok {
		t.Fatalf("NoCache must never report a hit")
	}
}
