package enclave

import (
	"context"
	"fmt"
	"sort"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
	"github.com/vtree/vsqldb/pkg/verifier"
)

// Mode selects how a Driver resolves the Merkle nodes it needs to
// compute a statement's new root: Base fetches one node per boundary
// call, Batch precomputes the full set of ancestor and sibling ids up
// front and resolves them in a single FetchNodes call. Batch trades a
// bigger single transfer for fewer boundary crossings; which one
// wins depends on how expensive a crossing is relative to its
// payload size, which is a deployment property rather than something
// this package can decide for every caller.
type Mode int

const (
	ModeBase Mode = iota
	ModeBatch
)

// Driver runs a statement's verify-then-commit cycle entirely in
// terms of a Boundary, the collapsed counterpart of pkg/verifier's
// (RootSource, Committer) pair for deployments where the verifier and
// the storage it verifies against are separated by a trust boundary
// instead of a network connection.
type Driver struct {
	Boundary Boundary
	Mode     Mode
	Clock    func() uint32
}

// Reconcile verifies reads against the currently published root, then
// -- if writes is non-empty -- computes and publishes a new root
// covering writes, returning the root hash now in effect.
func (d *Driver) Reconcile(ctx context.Context, reads map[page.ID]digest.Digest, writes map[page.ID]*page.Page) (digest.Digest, error) {
	rootID, rootHash, err := d.Boundary.RootInfo(ctx)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("enclave: loading root info: %w", err)
	}

	if len(reads) > 0 {
		ids := make([]page.ID, 0, len(reads))
		for id := range reads {
			ids = append(ids, id)
		}
		proof, height, err := d.Boundary.FetchProof(ctx, ids)
		if err != nil {
			return digest.Digest{}, fmt.Errorf("enclave: fetching proof: %w", err)
		}
		if err := verifier.Verify(ctx, rootHash, proof, height, reads); err != nil {
			return digest.Digest{}, err
		}
	}

	if len(writes) == 0 {
		return rootHash, nil
	}

	_, newRootHash, err := d.applyWrites(ctx, rootID, writes)
	if err != nil {
		return digest.Digest{}, err
	}

	if err := d.Boundary.WritePages(ctx, writes); err != nil {
		return digest.Digest{}, fmt.Errorf("enclave: writing pages: %w", err)
	}
	return newRootHash, nil
}

func (d *Driver) applyWrites(ctx context.Context, rootID *merkle.NodeID, writes map[page.ID]*page.Page) (*merkle.NodeID, digest.Digest, error) {
	pageIDs := make([]page.ID, 0, len(writes))
	for id := range writes {
		pageIDs = append(pageIDs, id)
	}
	sort.Slice(pageIDs, func(i, j int) bool { return pageIDs[i] < pageIDs[j] })

	loader, err := d.nodeLoader(ctx, rootID, pageIDs)
	if err != nil {
		return nil, digest.Digest{}, err
	}

	wc := merkle.NewWriteContext(loader, rootID)
	for _, id := range pageIDs {
		if err := wc.Update(id, writes[id].Digest()); err != nil {
			return nil, digest.Digest{}, fmt.Errorf("enclave: applying write for page %d: %w", id, err)
		}
	}
	apply := wc.Changes()

	ts := uint32(0)
	if d.Clock != nil {
		ts = d.Clock()
	}
	if err := d.Boundary.PublishChanges(ctx, apply, pageIDs, ts); err != nil {
		return nil, digest.Digest{}, fmt.Errorf("enclave: publishing changes: %w", err)
	}

	newRoot, ok := apply.Nodes[apply.RootID.Digest()]
	if !ok {
		return nil, digest.Digest{}, fmt.Errorf("enclave: new root %v missing from computed changes", apply.RootID)
	}
	return apply.RootID, newRoot.Node.Hash, nil
}

// nodeLoader returns the merkle.NodeLoader applyWrites feeds its
// WriteContext with: a one-call-per-node loader under ModeBase, or a
// loader backed by a single batched fetch of every node the write set
// could touch under ModeBatch.
func (d *Driver) nodeLoader(ctx context.Context, rootID *merkle.NodeID, pageIDs []page.ID) (merkle.NodeLoader, error) {
	if d.Mode == ModeBase {
		return boundaryLoader{ctx: ctx, boundary: d.Boundary}, nil
	}

	height := uint32(0)
	if rootID != nil {
		height = rootID.Height
	}
	ids := collectWritePathIDs(pageIDs, height)
	nodes, err := d.Boundary.FetchNodes(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("enclave: batch-fetching nodes: %w", err)
	}
	return batchLoader{nodes: nodes}, nil
}

// boundaryLoader adapts Boundary.FetchNodes to merkle.NodeLoader by
// issuing one single-element batch per node, the base-mode shape.
type boundaryLoader struct {
	ctx      context.Context
	boundary Boundary
}

func (l boundaryLoader) LoadNode(id merkle.NodeID) (*merkle.MerkleNode, bool, error) {
	nodes, err := l.boundary.FetchNodes(l.ctx, []merkle.NodeID{id})
	if err != nil {
		return nil, false, err
	}
	n, ok := nodes[id]
	return n, ok, nil
}

// batchLoader serves LoadNode entirely out of a map populated by one
// upfront batched fetch; any id not in the map is reported absent, not
// re-fetched.
type batchLoader struct {
	nodes map[merkle.NodeID]*merkle.MerkleNode
}

func (l batchLoader) LoadNode(id merkle.NodeID) (*merkle.MerkleNode, bool, error) {
	n, ok := l.nodes[id]
	return n, ok, nil
}

// collectWritePathIDs walks, level by level, from every page's leaf
// toward the root, collecting each visited node and its sibling,
// until every path has reached targetHeight. This is the set of
// nodes a WriteContext needs to recompute every ancestor hash the
// write set touches, gathered up front so ModeBatch resolves it in
// one Boundary call instead of one per level per page.
func collectWritePathIDs(pageIDs []page.ID, rootHeight uint32) []merkle.NodeID {
	target := rootHeight
	for _, id := range pageIDs {
		if h := merkle.RequiredHeight(id); h > target {
			target = h
		}
	}

	queued := make(map[merkle.NodeID]bool)
	var queue []merkle.NodeID
	for _, id := range pageIDs {
		leaf := merkle.NewNodeIDFromPageID(id)
		if !queued[leaf] {
			queue = append(queue, leaf)
			queued[leaf] = true
		}
	}

	var ids []merkle.NodeID
	visited := make(map[merkle.NodeID]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		ids = append(ids, cur, cur.Sibling())

		if cur.Height >= target {
			continue
		}
		parent := cur.Parent()
		if !queued[parent] {
			queue = append(queue, parent)
			queued[parent] = true
		}
	}
	return ids
}
