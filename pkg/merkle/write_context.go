package merkle

import (
	"bytes"
	"fmt"

	"github.com/golang/glog"
	"github.com/google/btree"
	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/page"
)

// pendingItem is a btree.Item wrapping a pending (not-yet-committed)
// node write, ordered by the digest its NodeID is keyed by. The order
// holds only inside the WriteContext: Changes copies the items into
// Apply.Nodes, a map, so node stores see them in no particular order.
type pendingItem struct {
	key  digest.Digest
	id   NodeID
	node *MerkleNode
}

func (a pendingItem) Less(than btree.Item) bool {
	b := than.(pendingItem)
	return bytes.Compare(a.key[:], b.key[:]) < 0
}

// WriteContext applies a sequence of page updates to a CB-Tree rooted
// at an existing (possibly absent) root, producing a new root and the
// set of nodes that changed. It never mutates the external store
// directly; callers persist the resulting Apply.
type WriteContext struct {
	loader NodeLoader
	rootID *NodeID
	pending *btree.BTree
}

// NewWriteContext returns a WriteContext that will apply updates on
// top of the tree rooted at rootID (nil for an empty tree), reading
// any node not already in the pending change-set from loader.
func NewWriteContext(loader NodeLoader, rootID *NodeID) *WriteContext {
	return &WriteContext{
		loader:  loader,
		rootID:  rootID,
		pending: btree.New(32),
	}
}

// RootID returns the current root, which may change after every
// Update call.
func (wc *WriteContext) RootID() *NodeID {
	return wc.rootID
}

func (wc *WriteContext) height() uint32 {
	if wc.rootID == nil {
		return 0
	}
	return wc.rootID.Height
}

func (wc *WriteContext) getNode(id NodeID) (*MerkleNode, bool, error) {
	if item := wc.pending.Get(pendingItem{key: id.Digest()}); item != nil {
		return item.(pendingItem).node, true, nil
	}
	return wc.loader.LoadNode(id)
}

func (wc *WriteContext) writeNode(id NodeID, n *MerkleNode) {
	wc.pending.ReplaceOrInsert(pendingItem{key: id.Digest(), id: id, node: n})
}

// Update writes page pageID's new digest into the tree, growing the
// root height if necessary. Re-applying the same digest to an
// already-present leaf is a no-op in effect but may still rewrite
// ancestors.
func (wc *WriteContext) Update(pageID page.ID, pageHash digest.Digest) error {
	height := wc.height()
	leafID := NewNodeIDFromPageID(pageID)
	leafHash := digest.LeafHash(uint32(pageID), pageHash)
	wc.writeNode(leafID, &MerkleNode{Hash: leafHash})

	if height == 0 {
		if wc.rootID == nil || pageID == 0 {
			wc.rootID = &leafID
			return nil
		}
		// The tree was a single leaf (the prior root); seed a new
		// height-1 root combining it with the new leaf. The prior root
		// becomes the left child.
		curRoot, ok, err := wc.getNode(*wc.rootID)
		if err != nil {
			return fmt.Errorf("merkle: loading current root %v: %w", *wc.rootID, err)
		}
		if !ok {
			return fmt.Errorf("merkle: write-application bug, root %v has no node", *wc.rootID)
		}
		curHash := curRoot.Hash
		newRootHash := digest.NonLeafHash(&curHash, &leafHash)
		newRootID := leafID.Parent()
		wc.writeNode(newRootID, &MerkleNode{Hash: newRootHash})
		wc.rootID = &newRootID
		return nil
	}

	curID := leafID
	curHash := leafHash

	target := RequiredHeight(pageID)
	if height > target {
		target = height
	}

	for curID.Height < target {
		sibID := curID.Sibling()
		sibNode, ok, err := wc.getNode(sibID)
		if err != nil {
			return fmt.Errorf("merkle: loading sibling %v: %w", sibID, err)
		}
		var sibHash *digest.Digest
		if ok {
			h := sibNode.Hash
			sibHash = &h
		}
		if curID.IsEven() {
			curHash = digest.NonLeafHash(&curHash, sibHash)
		} else {
			curHash = digest.NonLeafHash(sibHash, &curHash)
		}
		curID = curID.Parent()
		wc.writeNode(curID, &MerkleNode{Hash: curHash})
	}
	wc.rootID = &curID
	glog.V(4).Infof("merkle: updated page %d, new root %v", pageID, curID)
	return nil
}

// Apply is the result of a batch of updates: the new root and every
// node that was created or overwritten, keyed by NodeID.Digest().
type Apply struct {
	RootID *NodeID
	Nodes  map[digest.Digest]ApplyNode
}

// ApplyNode pairs a changed node with the NodeID it was written at,
// so a caller can persist it without recomputing the digest key.
type ApplyNode struct {
	ID   NodeID
	Node *MerkleNode
}

// Changes copies the WriteContext's pending change-set into a map
// keyed by node digest and returns it alongside the new root. The
// pending set is left in place, and the map keeps no ordering.
func (wc *WriteContext) Changes() Apply {
	nodes := make(map[digest.Digest]ApplyNode, wc.pending.Len())
	wc.pending.Ascend(func(item btree.Item) bool {
		p := item.(pendingItem)
		nodes[p.key] = ApplyNode{ID: p.id, Node: p.node}
		return true
	})
	return Apply{RootID: wc.rootID, Nodes: nodes}
}
