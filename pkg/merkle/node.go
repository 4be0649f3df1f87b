// Package merkle implements the page-addressable Complete-Binary
// Merkle Tree (CB-Tree): node-id arithmetic, incremental write
// context, and proof construction/verification.
package merkle

import (
	"fmt"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/page"
)

// NodeID identifies a node in the CB-Tree by (height, width). Leaves
// have height 0 and width equal to the PageId they authenticate.
type NodeID struct {
	Height uint32
	Width  uint32
}

// NewNodeIDFromPageID returns the leaf NodeID for a page.
func NewNodeIDFromPageID(p page.ID) NodeID {
	return NodeID{Height: 0, Width: uint32(p)}
}

// Digest returns the digest this NodeID is keyed by in the external
// node store (not the node's own content hash).
func (n NodeID) Digest() digest.Digest {
	return digest.IDHash(n.Height, n.Width)
}

// IsLeaf reports whether n is a tree leaf.
func (n NodeID) IsLeaf() bool {
	return n.Height == 0
}

// IsEven reports whether n is the left child of its parent.
func (n NodeID) IsEven() bool {
	return n.Width%2 == 0
}

// Parent returns n's parent NodeID.
func (n NodeID) Parent() NodeID {
	return NodeID{Height: n.Height + 1, Width: n.Width / 2}
}

// Sibling returns n's sibling NodeID (the other child of n's parent).
// The sibling may or may not currently exist in the tree.
func (n NodeID) Sibling() NodeID {
	return NodeID{Height: n.Height, Width: n.Width ^ 1}
}

// Children returns n's left and right children. It is only defined
// for h>0; calling it on a leaf NodeID is a programming error.
func (n NodeID) Children() (left, right NodeID, err error) {
	if n.Height == 0 {
		return NodeID{}, NodeID{}, fmt.Errorf("merkle: Children called on leaf %v", n)
	}
	return NodeID{Height: n.Height - 1, Width: 2 * n.Width},
		NodeID{Height: n.Height - 1, Width: 2*n.Width + 1}, nil
}

func (n NodeID) String() string {
	return fmt.Sprintf("(%d,%d)", n.Height, n.Width)
}

// RequiredHeight returns ceil(log2(p+1)), the minimum tree height
// that must cover a leaf at the given PageId; height 0 for p=0.
func RequiredHeight(p page.ID) uint32 {
	n := uint32(p)
	var h uint32
	for n != 0 {
		h++
		n /= 2
	}
	return h
}

// MerkleNode stores a single digest: the subtree hash rooted at a
// NodeID.
type MerkleNode struct {
	Hash digest.Digest
}

// NodeLoader reads MerkleNodes from the external node store, keyed by
// NodeID.Digest(). A missing node is reported via ok=false, not an
// error — absence is a normal tree state (a node may simply not exist
// yet), distinct from a storage failure.
type NodeLoader interface {
	LoadNode(id NodeID) (node *MerkleNode, ok bool, err error)
}

// NodeWriter persists MerkleNodes to the external node store.
type NodeWriter interface {
	WriteNode(id NodeID, node *MerkleNode) error
}
