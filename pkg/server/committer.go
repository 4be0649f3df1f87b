package server

import (
	"fmt"
	"sort"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
	"github.com/vtree/vsqldb/pkg/vbf"
	"github.com/vtree/vsqldb/pkg/verifier"
)

// WriteEntry is one page the verification driver committed: its new
// content and the digest of that content.
type WriteEntry struct {
	PageID page.ID
	Page   *page.Page
	Digest digest.Digest
}

// Committer applies a verified statement's write set to the node
// store, page store, and version filter as a single unit, the
// server-side counterpart of the trusted write context the
// verification driver runs: drain the PageId→digest
// updates in ascending order, seed a WriteContext at the current
// root, persist every touched page and node, insert each touched page
// into the version filter, and publish the new root.
type Committer struct {
	Nodes NodeStore
	Pages PageStore
	VBF   *vbf.Filter
}

// Commit applies entries (which need not already be sorted) and
// returns the new root. ts is the version-filter timestamp every
// touched page is inserted at; callers must pass a strictly
// increasing value across commits.
func (c *Committer) Commit(entries []WriteEntry, ts uint32) (*merkle.NodeID, error) {
	sorted := append([]WriteEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageID < sorted[j].PageID })

	root, err := c.Nodes.Root()
	if err != nil {
		return nil, fmt.Errorf("server: loading root for commit: %w", err)
	}
	wc := merkle.NewWriteContext(c.Nodes, root)
	for _, e := range sorted {
		if err := wc.Update(e.PageID, e.Digest); err != nil {
			return nil, fmt.Errorf("server: applying write for page %d: %w", e.PageID, err)
		}
	}

	apply := wc.Changes()
	if err := c.Nodes.ApplyChanges(apply); err != nil {
		return nil, fmt.Errorf("server: persisting commit: %w", err)
	}

	for _, e := range sorted {
		if e.Page != nil {
			if err := c.Pages.WritePage(e.PageID, e.Page); err != nil {
				return nil, fmt.Errorf("server: persisting page %d: %w", e.PageID, err)
			}
		}
		if c.VBF != nil {
			c.VBF.Insert(e.PageID, ts)
		}
	}
	return apply.RootID, nil
}

// AsVerifierCommitter adapts c to verifier.Committer: the written
// page's bytes never pass through this layer, since the client's
// write set only carries digests. Those bytes reach PageStore
// directly through the ordinary page-I/O contract, using the
// same file the digest committed here now authenticates.
func (c *Committer) AsVerifierCommitter() verifier.Committer {
	return verifierCommitterAdapter{c}
}

type verifierCommitterAdapter struct{ c *Committer }

func (a verifierCommitterAdapter) Commit(entries []verifier.CommitEntry, ts uint32) (digest.Digest, error) {
	writes := make([]WriteEntry, len(entries))
	for i, e := range entries {
		writes[i] = WriteEntry{PageID: e.PageID, Digest: e.Digest}
	}
	rootID, err := a.c.Commit(writes, ts)
	if err != nil {
		return digest.Digest{}, err
	}
	node, ok, err := a.c.Nodes.LoadNode(*rootID)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("server: loading committed root %v: %w", rootID, err)
	}
	if !ok {
		return digest.Digest{}, fmt.Errorf("server: committed root %v missing from node store", rootID)
	}
	return node.Hash, nil
}
