// Package page defines the fixed-size page unit authenticated by the
// CB-Tree: the leaf payload of the underlying SQL page file.
package page

import "github.com/vtree/vsqldb/pkg/digest"

// Size is the page size in bytes; 4096 matches the reference
// implementation and is a build-time constant, not a runtime option.
const Size = 4096

// ID identifies a page. IDs are dense, non-negative, and start at
// zero.
type ID uint32

// Page is an immutable fixed-size byte array.
type Page [Size]byte

// Digest returns the digest of the page's raw bytes.
func (p *Page) Digest() digest.Digest {
	return digest.Sum(p[:])
}

// FromBytes copies b (which must be exactly Size bytes) into a new
// Page.
func FromBytes(b []byte) (*Page, error) {
	if len(b) != Size {
		return nil, &ErrWrongSize{Got: len(b)}
	}
	var p Page
	copy(p[:], b)
	return &p, nil
}

// ErrWrongSize is returned when constructing a Page from a byte slice
// of the wrong length.
type ErrWrongSize struct {
	Got int
}

func (e *ErrWrongSize) Error() string {
	return "page: wrong byte length for a page"
}
