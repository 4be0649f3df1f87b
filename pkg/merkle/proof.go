package merkle

import (
	"errors"
	"fmt"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/page"
)

// ErrEmptyProof is returned by RootHash and VerifyVal when the proof
// has no root fragment at all (an empty tree, or a proof that was
// never populated by a query).
var ErrEmptyProof = errors.New("merkle: empty proof")

// ErrMissingPath is returned by VerifyVal when descending the proof
// runs off the end of its materialized structure before reaching a
// leaf.
var ErrMissingPath = errors.New("merkle: proof is missing the authentication path for this page")

// ErrRootMismatch is returned when a proof's own root hash does not
// equal the hash it is being checked against.
var ErrRootMismatch = errors.New("merkle: proof root hash does not match")

// ErrLeafMismatch is returned when VerifyVal's terminal leaf digest
// does not equal the expected target hash.
var ErrLeafMismatch = errors.New("merkle: proof leaf digest does not match target")

// SubProof is one node of a Proof skeleton. Exactly one of Leaf or
// NonLeaf is set. A Leaf sub-proof is a bare digest: either a genuine
// tree leaf, or an unexpanded interior node whose subtree is known
// only by hash (a sibling that wasn't queried further).
type SubProof struct {
	Leaf    *digest.Digest
	NonLeaf *NonLeafProof
}

// NonLeafProof holds a sub-proof's children. Either may be nil when
// that side has no relevant leaf in this tree (an absent sibling).
type NonLeafProof struct {
	Left  *SubProof
	Right *SubProof
}

func leafSubProof(d digest.Digest) *SubProof {
	return &SubProof{Leaf: &d}
}

// Digest computes this sub-proof's digest using the same
// domain-separated hash rules the tree itself uses.
func (s *SubProof) Digest() digest.Digest {
	if s.Leaf != nil {
		return *s.Leaf
	}
	var l, r *digest.Digest
	if s.NonLeaf.Left != nil {
		d := s.NonLeaf.Left.Digest()
		l = &d
	}
	if s.NonLeaf.Right != nil {
		d := s.NonLeaf.Right.Digest()
		r = &d
	}
	return digest.NonLeafHash(l, r)
}

// Proof is a recursive structure mirroring the authentication path(s)
// for a set of queried pages.
type Proof struct {
	Root *SubProof
}

// RootHash computes the digest of the root sub-proof.
func (p *Proof) RootHash() (digest.Digest, error) {
	if p == nil || p.Root == nil {
		return digest.Digest{}, ErrEmptyProof
	}
	return p.Root.Digest(), nil
}

// VerifyVal recomputes the path to targetHash by descending into the
// proof using the bit pattern of pageID (LSB first: pageID mod 2
// selects the right child, then divide and repeat treeHeight times),
// and asserts the terminal leaf digest equals targetHash.
func (p *Proof) VerifyVal(targetHash digest.Digest, pageID page.ID, treeHeight uint32) error {
	if p == nil || p.Root == nil {
		return ErrEmptyProof
	}
	leafFirst := make([]int, treeHeight)
	n := uint32(pageID)
	for i := uint32(0); i < treeHeight; i++ {
		leafFirst[i] = int(n % 2)
		n /= 2
	}

	cur := p.Root
	for i := int(treeHeight) - 1; i >= 0; i-- {
		if cur.NonLeaf == nil {
			return ErrMissingPath
		}
		if leafFirst[i] == 0 {
			cur = cur.NonLeaf.Left
		} else {
			cur = cur.NonLeaf.Right
		}
		if cur == nil {
			return ErrMissingPath
		}
	}
	if cur.Leaf == nil {
		return ErrMissingPath
	}
	if *cur.Leaf != targetHash {
		return ErrLeafMismatch
	}
	return nil
}

// ReadContext wraps a node loader and a trusted root id. Query
// accumulates a single Proof across calls: the second and later
// queries reuse whatever authentication-path fragments earlier
// queries already touched instead of re-deriving them.
type ReadContext struct {
	loader NodeLoader
	rootID NodeID

	// expanded marks every NodeID that lies on some queried page's
	// direct root-to-leaf path; Proof() recurses into these nodes'
	// children instead of treating their recorded hash as terminal.
	expanded map[NodeID]bool
	// hashes records the digest of every node touched: both the
	// expanded path nodes and the siblings fetched along the way.
	hashes map[NodeID]digest.Digest
}

// NewReadContext returns a ReadContext rooted at rootID. A nil rootID
// (empty tree) is rejected: there is nothing to query.
func NewReadContext(loader NodeLoader, rootID *NodeID) (*ReadContext, error) {
	if rootID == nil {
		return nil, fmt.Errorf("merkle: %w: tree has no root", ErrEmptyProof)
	}
	return &ReadContext{
		loader:   loader,
		rootID:   *rootID,
		expanded: make(map[NodeID]bool),
		hashes:   make(map[NodeID]digest.Digest),
	}, nil
}

// Height returns the tree height this context is reading at.
func (rc *ReadContext) Height() uint32 {
	return rc.rootID.Height
}

// Query returns pageID's current leaf digest and folds its
// authentication path into the accumulated Proof.
func (rc *ReadContext) Query(pageID page.ID) (digest.Digest, error) {
	leafID := NewNodeIDFromPageID(pageID)
	leafNode, ok, err := rc.loader.LoadNode(leafID)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("merkle: loading leaf %v: %w", leafID, err)
	}
	if !ok {
		return digest.Digest{}, fmt.Errorf("merkle: page %d has no leaf in the tree", pageID)
	}
	value := leafNode.Hash
	rc.hashes[leafID] = value

	cur := leafID
	for cur.Height < rc.rootID.Height {
		sib := cur.Sibling()
		if !rc.expanded[sib] {
			if _, known := rc.hashes[sib]; !known {
				sibNode, ok, err := rc.loader.LoadNode(sib)
				if err != nil {
					return digest.Digest{}, fmt.Errorf("merkle: loading sibling %v: %w", sib, err)
				}
				if ok {
					rc.hashes[sib] = sibNode.Hash
				}
			}
		}
		parent := cur.Parent()
		rc.expanded[parent] = true
		cur = parent
	}
	return value, nil
}

// Proof materializes the accumulated queries into a single Proof
// structure suitable for serialization to the client.
func (rc *ReadContext) Proof() *Proof {
	return &Proof{Root: rc.build(rc.rootID)}
}

func (rc *ReadContext) build(id NodeID) *SubProof {
	if id.Height == 0 || !rc.expanded[id] {
		if h, ok := rc.hashes[id]; ok {
			return leafSubProof(h)
		}
		return nil
	}
	left, right, err := id.Children()
	if err != nil {
		// unreachable: id.Height>0 was just checked.
		return nil
	}
	return &SubProof{NonLeaf: &NonLeafProof{
		Left:  rc.build(left),
		Right: rc.build(right),
	}}
}
