// Package digest provides the 32-byte cryptographic digest and the
// domain-separated hash functions that the CB-Tree and its proofs are
// built from.
package digest

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Size is the fixed digest length in bytes.
const Size = 32

// Digest is a fixed-length cryptographic digest.
type Digest [Size]byte

// String renders the digest as hex, for logging.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Bytes returns the digest's byte slice view.
func (d Digest) Bytes() []byte {
	return d[:]
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalJSON renders d as a hex string, so a Digest embedded in a
// published record (authority.Parameter) reads as text rather than a
// 32-element array of numbers.
func (d Digest) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hex.EncodeToString(d[:]) + `"`), nil
}

// UnmarshalJSON parses the hex string MarshalJSON produces.
func (d *Digest) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("digest: malformed JSON digest %q", b)
	}
	decoded, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return fmt.Errorf("digest: decoding hex digest: %w", err)
	}
	if len(decoded) != Size {
		return fmt.Errorf("digest: decoded digest has %d bytes, want %d", len(decoded), Size)
	}
	copy(d[:], decoded)
	return nil
}

// FromBytes copies b into a Digest, truncating it past Size bytes and
// zero-padding it when shorter (it never hashes b); used when loading
// raw bytes back out of a KV store.
func FromBytes(b []byte) Digest {
	var d Digest
	copy(d[:], b)
	return d
}

// Digestible is implemented by anything that can compute its own
// content digest.
type Digestible interface {
	Digest() Digest
}

// hasherKey is the key for the keyed blake2b hash. It is fixed so
// that digests are reproducible across processes; it is not a secret
// (the tree is a public authenticator, not a MAC).
var hasherKey = []byte("vsqldb-cb-tree-domain-separator!")

// Sum computes the keyed digest of the concatenation of parts. It is
// the un-domain-separated primitive that Page and other leaf payloads
// hash themselves with before a domain-separated function (LeafHash,
// ...) combines the result with other fields.
func Sum(parts ...[]byte) Digest {
	return sum(parts...)
}

func sum(parts ...[]byte) Digest {
	h, err := blake2b.New256(hasherKey)
	if err != nil {
		// New256 only fails for an over-long key; hasherKey's length is
		// fixed and within limits, so this is unreachable.
		panic("digest: blake2b.New256: " + err.Error())
	}
	for _, p := range parts {
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

func le32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

// IDHash computes H(le32(height) || le32(width)), the digest a NodeID
// is keyed by in the external node store.
func IDHash(height, width uint32) Digest {
	return sum(le32(height), le32(width))
}

// LeafHash computes H(le32(pageID) || pageHash), the digest stored in
// a leaf MerkleNode.
func LeafHash(pageID uint32, pageHash Digest) Digest {
	return sum(le32(pageID), pageHash.Bytes())
}

// NonLeafHash computes H(H(l? || r?)), where an absent side
// contributes no bytes (so a lone left child and a lone right child
// with the same hash produce the same result). The inner hash is load-bearing: proof-side reconstruction
// only matches tree-side computation because both apply this same
// double hash.
func NonLeafHash(l, r *Digest) Digest {
	return sum(innerHash(l, r).Bytes())
}

// MergeHash is the client-cache analogue of NonLeafHash, combining
// two known-present child hashes (used by every cache variant when
// both siblings are already held in the client cache and no absence
// case applies).
func MergeHash(l, r Digest) Digest {
	return sum(innerHash(&l, &r).Bytes())
}

func innerHash(l, r *Digest) Digest {
	switch {
	case l != nil && r != nil:
		return sum(l.Bytes(), r.Bytes())
	case l != nil:
		return sum(l.Bytes())
	case r != nil:
		return sum(r.Bytes())
	default:
		return sum()
	}
}
