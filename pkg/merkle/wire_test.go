package merkle

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/page"
)

func TestProofWireRoundTrip(t *testing.T) {
	store := newMemStore()
	wc := NewWriteContext(store, nil)
	for i := page.ID(0); i <= 8; i++ {
		if err := wc.Update(i, pageDigest(byte(i))); err != nil {
			t.Fatalf("Update(%d): %v", i, err)
		}
	}
	apply := wc.Changes()
	store.apply(apply)

	rc, err := NewReadContext(store, apply.RootID)
	if err != nil {
		t.Fatalf("NewReadContext: %v", err)
	}
	for i := page.ID(0); i <= 8; i++ {
		if _, err := rc.Query(i); err != nil {
			t.Fatalf("Query(%d): %v", i, err)
		}
	}
	want := rc.Proof()

	encoded := EncodeProof(want)
	got, err := DecodeProof(encoded)
	if err != nil {
		t.Fatalf("DecodeProof: %v", err)
	}

	wantRoot, err := want.RootHash()
	if err != nil {
		t.Fatalf("RootHash: %v", err)
	}
	gotRoot, err := got.RootHash()
	if err != nil {
		t.Fatalf("decoded RootHash: %v", err)
	}
	if wantRoot != gotRoot {
		t.Fatalf("decoded proof root hash = %v, want %v", gotRoot, wantRoot)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decoded proof differs from original (-want +got):\n%s", diff)
	}
	for i := page.ID(0); i <= 8; i++ {
		leafHash := digest.LeafHash(uint32(i), pageDigest(byte(i)))
		if err := got.VerifyVal(leafHash, i, rc.Height()); err != nil {
			t.Fatalf("decoded proof VerifyVal(%d): %v", i, err)
		}
	}
}

func TestDecodeEmptyProof(t *testing.T) {
	p, err := DecodeProof(EncodeProof(nil))
	if err != nil {
		t.Fatalf("DecodeProof(nil): %v", err)
	}
	if _, err := p.RootHash(); err != ErrEmptyProof {
		t.Fatalf("RootHash on decoded empty proof = %v, want ErrEmptyProof", err)
	}
}
