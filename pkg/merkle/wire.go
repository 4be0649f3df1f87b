package merkle

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vtree/vsqldb/pkg/digest"
)

// Wire tags for EncodeProof/DecodeProof's recursive SubProof encoding.
const (
	tagNil byte = iota
	tagLeaf
	tagNonLeaf
)

// EncodeProof serializes a Proof for transport at END. A nil proof or
// a proof with no root encodes as a single nil tag.
func EncodeProof(p *Proof) []byte {
	var buf bytes.Buffer
	if p == nil {
		buf.WriteByte(tagNil)
		return buf.Bytes()
	}
	encodeSubProof(&buf, p.Root)
	return buf.Bytes()
}

func encodeSubProof(buf *bytes.Buffer, s *SubProof) {
	if s == nil {
		buf.WriteByte(tagNil)
		return
	}
	if s.Leaf != nil {
		buf.WriteByte(tagLeaf)
		buf.Write(s.Leaf[:])
		return
	}
	buf.WriteByte(tagNonLeaf)
	encodeSubProof(buf, s.NonLeaf.Left)
	encodeSubProof(buf, s.NonLeaf.Right)
}

// DecodeProof deserializes bytes produced by EncodeProof.
func DecodeProof(b []byte) (*Proof, error) {
	r := bytes.NewReader(b)
	s, err := decodeSubProof(r)
	if err != nil {
		return nil, err
	}
	return &Proof{Root: s}, nil
}

func decodeSubProof(r *bytes.Reader) (*SubProof, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("merkle: decoding proof tag: %w", err)
	}
	switch tag {
	case tagNil:
		return nil, nil
	case tagLeaf:
		var d digest.Digest
		if _, err := io.ReadFull(r, d[:]); err != nil {
			return nil, fmt.Errorf("merkle: decoding leaf digest: %w", err)
		}
		return &SubProof{Leaf: &d}, nil
	case tagNonLeaf:
		left, err := decodeSubProof(r)
		if err != nil {
			return nil, err
		}
		right, err := decodeSubProof(r)
		if err != nil {
			return nil, err
		}
		return &SubProof{NonLeaf: &NonLeafProof{Left: left, Right: right}}, nil
	default:
		return nil, fmt.Errorf("merkle: unknown proof wire tag %d", tag)
	}
}
