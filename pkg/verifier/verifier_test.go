package verifier

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
)

type memStore struct {
	nodes map[digest.Digest]*merkle.MerkleNode
}

func newMemStore() *memStore { return &memStore{nodes: make(map[digest.Digest]*merkle.MerkleNode)} }

func (m *memStore) LoadNode(id merkle.NodeID) (*merkle.MerkleNode, bool, error) {
	n, ok := m.nodes[id.Digest()]
	return n, ok, nil
}

func (m *memStore) apply(apply merkle.Apply) {
	for _, n := range apply.Nodes {
		m.nodes[n.ID.Digest()] = n.Node
	}
}

func pageDigest(b byte) digest.Digest {
	var p page.Page
	p[0] = b
	return p.Digest()
}

func buildTree(t *testing.T, n int) (*memStore, *merkle.NodeID) {
	t.Helper()
	store := newMemStore()
	wc := merkle.NewWriteContext(store, nil)
	for i := 0; i < n; i++ {
		if err := wc.Update(page.ID(i), pageDigest(byte(i))); err != nil {
			t.Fatalf("Update(%d): %v", i, err)
		}
	}
	apply := wc.Changes()
	store.apply(apply)
	return store, apply.RootID
}

type fakeReads struct{ m map[page.ID]digest.Digest }

func (r fakeReads) Entries() map[page.ID]digest.Digest { return r.m }

type fakeWrites struct {
	w []struct {
		PageID page.ID
		Digest digest.Digest
	}
}

func (w fakeWrites) Ascend() []struct {
	PageID page.ID
	Digest digest.Digest
} {
	return w.w
}

func TestVerifyAcceptsAuthenticReads(t *testing.T) {
	store, rootID := buildTree(t, 9)
	rc, err := merkle.NewReadContext(store, rootID)
	if err != nil {
		t.Fatalf("NewReadContext: %v", err)
	}
	reads := map[page.ID]digest.Digest{}
	for i := page.ID(0); i < 9; i++ {
		if _, err := rc.Query(i); err != nil {
			t.Fatalf("Query(%d): %v", i, err)
		}
		reads[i] = pageDigest(byte(i))
	}
	proof := rc.Proof()
	rootHash, err := proof.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}
	if err := Verify(context.Background(), rootHash, proof, rc.Height(), reads); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsTamperedPage(t *testing.T) {
	store, rootID := buildTree(t, 9)
	rc, err := merkle.NewReadContext(store, rootID)
	if err != nil {
		t.Fatalf("NewReadContext: %v", err)
	}
	reads := map[page.ID]digest.Digest{}
	for i := page.ID(0); i < 9; i++ {
		if _, err := rc.Query(i); err != nil {
			t.Fatalf("Query(%d): %v", i, err)
		}
		reads[i] = pageDigest(byte(i))
	}
	proof := rc.Proof()
	rootHash, _ := proof.RootHash()

	reads[3] = pageDigest(99) // claim a different digest than what the proof authenticates
	if err := Verify(context.Background(), rootHash, proof, rc.Height(), reads); err == nil {
		t.Fatalf("Verify should reject a tampered read")
	}
}

func TestVerifyRejectsRootMismatch(t *testing.T) {
	store, rootID := buildTree(t, 9)
	rc, err := merkle.NewReadContext(store, rootID)
	if err != nil {
		t.Fatalf("NewReadContext: %v", err)
	}
	if _, err := rc.Query(0); err != nil {
		t.Fatalf("Query(0): %v", err)
	}
	proof := rc.Proof()
	reads := map[page.ID]digest.Digest{0: pageDigest(0)}

	var wrongRoot digest.Digest
	wrongRoot[0] = 0xAB
	err = Verify(context.Background(), wrongRoot, proof, rc.Height(), reads)
	if !errors.Is(err, merkle.ErrRootMismatch) {
		t.Fatalf("Verify error = %v, want wrapping ErrRootMismatch", err)
	}
}

func TestVerifyAcceptsEmptyReadSet(t *testing.T) {
	if err := Verify(context.Background(), digest.Digest{}, nil, 0, nil); err != nil {
		t.Fatalf("Verify with empty read set should short-circuit: %v", err)
	}
}

func TestDriverEndCommitsWrites(t *testing.T) {
	store, rootID := buildTree(t, 9)
	rc, err := merkle.NewReadContext(store, rootID)
	if err != nil {
		t.Fatalf("NewReadContext: %v", err)
	}
	if _, err := rc.Query(0); err != nil {
		t.Fatalf("Query(0): %v", err)
	}
	proof := rc.Proof()
	rootHash, _ := proof.RootHash()
	newRootHash := digest.Digest{0xaa}

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := NewMockRootSource(ctrl)
	source.EXPECT().TrustedRootHash().Return(rootHash, nil)
	source.EXPECT().Proof().Return(proof, rc.Height(), nil)

	committer := NewMockCommitter(ctrl)
	wantEntries := []CommitEntry{{PageID: 5, Digest: pageDigest(5)}}
	committer.EXPECT().Commit(wantEntries, uint32(1)).Return(newRootHash, nil)

	d := &Driver{
		Source:    source,
		Committer: committer,
		Clock:     func() uint32 { return 1 },
	}

	reads := fakeReads{m: map[page.ID]digest.Digest{0: pageDigest(0)}}
	writes := fakeWrites{w: []struct {
		PageID page.ID
		Digest digest.Digest
	}{{PageID: 5, Digest: pageDigest(5)}}}

	got, err := d.End(context.Background(), reads, writes)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if got != newRootHash {
		t.Fatalf("End() root = %v, want %v", got, newRootHash)
	}

	if _, err := d.End(context.Background(), reads, writes); !errors.Is(err, ErrBatchingUnsupported) {
		t.Fatalf("second End() without Reset should fail with ErrBatchingUnsupported, got %v", err)
	}
}

func TestDriverEndSkipsCommitForReadOnlyStatement(t *testing.T) {
	store, rootID := buildTree(t, 9)
	rc, err := merkle.NewReadContext(store, rootID)
	if err != nil {
		t.Fatalf("NewReadContext: %v", err)
	}
	if _, err := rc.Query(0); err != nil {
		t.Fatalf("Query(0): %v", err)
	}
	proof := rc.Proof()
	rootHash, _ := proof.RootHash()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := NewMockRootSource(ctrl)
	source.EXPECT().TrustedRootHash().Return(rootHash, nil)
	source.EXPECT().Proof().Return(proof, rc.Height(), nil)

	committer := NewMockCommitter(ctrl)
	committer.EXPECT().Commit(gomock.Any(), gomock.Any()).Times(0)

	d := &Driver{
		Source:    source,
		Committer: committer,
		Clock:     func() uint32 { return 1 },
	}
	reads := fakeReads{m: map[page.ID]digest.Digest{0: pageDigest(0)}}
	got, err := d.End(context.Background(), reads, fakeWrites{})
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if got != rootHash {
		t.Fatalf("End() root = %v, want unchanged %v", got, rootHash)
	}
}
