// Package enclave implements the in-enclave deployment variant: the
// verifier and SQL engine run inside an isolated execution
// environment, and "the server" collapses to a narrow boundary
// exposing page I/O, proof fetch, node fetch, and Merkle-db update as
// batched primitives, so that the trusted side can amortize the cost
// of crossing into untrusted code over many nodes or pages at once
// instead of one call per node. The verification algorithm itself is
// unchanged from the client-server deployment (pkg/verifier); only
// the transport is collapsed to direct calls across this boundary.
package enclave

import (
	"context"
	"fmt"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
	"github.com/vtree/vsqldb/pkg/server"
	"github.com/vtree/vsqldb/pkg/vbf"
)

// Boundary is everything the trusted side needs from the untrusted
// side, expressed as the primitives the reference implementation's
// ocall surface exposes: page read, page write, proof fetch, node
// fetch, and Merkle-db update. FetchNodes and ReadPages/WritePages
// are batched (one call carries many ids) because each call is a
// boundary crossing the reference implementation found worth
// amortizing.
type Boundary interface {
	// RootInfo returns the currently published root id (nil for an
	// empty tree) and that root's content hash.
	RootInfo(ctx context.Context) (*merkle.NodeID, digest.Digest, error)

	// FetchProof returns an accumulated read proof covering every id
	// in pageIDs, and the tree height it was built at.
	FetchProof(ctx context.Context, pageIDs []page.ID) (*merkle.Proof, uint32, error)

	// FetchNodes resolves many node ids in a single call. A requested
	// id absent from the result map was absent from the tree, not an
	// error.
	FetchNodes(ctx context.Context, ids []merkle.NodeID) (map[merkle.NodeID]*merkle.MerkleNode, error)

	// ReadPages resolves many page ids in a single call.
	ReadPages(ctx context.Context, ids []page.ID) (map[page.ID]*page.Page, error)

	// WritePages persists many pages in a single call.
	WritePages(ctx context.Context, pages map[page.ID]*page.Page) error

	// PublishChanges persists a write-context batch already computed
	// by the trusted side (the new root and every touched node) and
	// inserts each touched page into the version filter at ts. This
	// is the batched counterpart of ocall_update_merkle_db: the
	// trusted side sends the finished Apply instead of one (PageId,
	// Digest) pair per call.
	PublishChanges(ctx context.Context, apply merkle.Apply, touched []page.ID, ts uint32) error
}

// LocalBoundary is a Boundary backed directly by the server-side
// storage types, for use where the untrusted side and the trusted
// side share a process (tests, and any deployment where the
// isolation the reference implementation gets from SGX is provided by
// some other mechanism external to this module). A real enclave
// deployment replaces this with whatever crosses the actual trust
// boundary; the Driver in this package never depends on which.
type LocalBoundary struct {
	Nodes server.NodeStore
	Pages server.PageStore
	VBF   *vbf.Filter
}

func (b *LocalBoundary) RootInfo(ctx context.Context) (*merkle.NodeID, digest.Digest, error) {
	root, err := b.Nodes.Root()
	if err != nil {
		return nil, digest.Digest{}, fmt.Errorf("enclave: loading root: %w", err)
	}
	if root == nil {
		return nil, digest.Digest{}, nil
	}
	node, ok, err := b.Nodes.LoadNode(*root)
	if err != nil {
		return nil, digest.Digest{}, fmt.Errorf("enclave: loading root node %v: %w", root, err)
	}
	if !ok {
		return nil, digest.Digest{}, fmt.Errorf("enclave: root %v has no node", root)
	}
	return root, node.Hash, nil
}

func (b *LocalBoundary) FetchProof(ctx context.Context, pageIDs []page.ID) (*merkle.Proof, uint32, error) {
	root, err := b.Nodes.Root()
	if err != nil {
		return nil, 0, fmt.Errorf("enclave: loading root: %w", err)
	}
	rc, err := merkle.NewReadContext(b.Nodes, root)
	if err != nil {
		return nil, 0, fmt.Errorf("enclave: building read context: %w", err)
	}
	for _, id := range pageIDs {
		if _, err := rc.Query(id); err != nil {
			return nil, 0, fmt.Errorf("enclave: querying page %d: %w", id, err)
		}
	}
	return rc.Proof(), rc.Height(), nil
}

func (b *LocalBoundary) FetchNodes(ctx context.Context, ids []merkle.NodeID) (map[merkle.NodeID]*merkle.MerkleNode, error) {
	out := make(map[merkle.NodeID]*merkle.MerkleNode, len(ids))
	for _, id := range ids {
		n, ok, err := b.Nodes.LoadNode(id)
		if err != nil {
			return nil, fmt.Errorf("enclave: loading node %v: %w", id, err)
		}
		if ok {
			out[id] = n
		}
	}
	return out, nil
}

func (b *LocalBoundary) ReadPages(ctx context.Context, ids []page.ID) (map[page.ID]*page.Page, error) {
	out := make(map[page.ID]*page.Page, len(ids))
	for _, id := range ids {
		p, err := b.Pages.ReadPage(id)
		if err != nil {
			return nil, fmt.Errorf("enclave: reading page %d: %w", id, err)
		}
		out[id] = p
	}
	return out, nil
}

func (b *LocalBoundary) WritePages(ctx context.Context, pages map[page.ID]*page.Page) error {
	for id, p := range pages {
		if err := b.Pages.WritePage(id, p); err != nil {
			return fmt.Errorf("enclave: writing page %d: %w", id, err)
		}
	}
	return nil
}

func (b *LocalBoundary) PublishChanges(ctx context.Context, apply merkle.Apply, touched []page.ID, ts uint32) error {
	if err := b.Nodes.ApplyChanges(apply); err != nil {
		return fmt.Errorf("enclave: publishing changes: %w", err)
	}
	if b.VBF != nil {
		for _, id := range touched {
			b.VBF.Insert(id, ts)
		}
	}
	return nil
}
