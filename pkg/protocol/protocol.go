// Package protocol implements the wire codec between a client session
// and the server handler (C10/C12): a handshake signal, then a
// sequence of (tag, PageId, digests) request frames and their
// per-tag responses, all length-first where the payload is variable
// size.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/page"
)

// Tag names a data-frame operation.
type Tag uint32

const (
	TagQuery Tag = iota + 1
	TagConfirm
	TagEnd
	// TagWrite is not part of the original three-tag frame set: the
	// reference design has the client push new page bytes for the
	// main file directly to the server-side page store (a write request,
	// server-side only in this design), so a
	// fourth tag carries that push over the same framed connection
	// QUERY/CONFIRM/END already use, rather than inventing a second
	// channel.
	TagWrite
)

func (t Tag) String() string {
	switch t {
	case TagQuery:
		return "QUERY"
	case TagConfirm:
		return "CONFIRM"
	case TagEnd:
		return "END"
	case TagWrite:
		return "WRITE"
	default:
		return fmt.Sprintf("Tag(%d)", uint32(t))
	}
}

// Signal is the one-byte (wire: one u32) handshake value the client
// sends before any data frame.
type Signal uint32

const (
	NoCache Signal = iota + 1
	BothCache
)

// Ack is a plain yes/no wire value, reused by the handshake
// acknowledgement and the CONFIRM/END ACK exchanges.
type Ack uint32

const (
	No Ack = iota
	Yes
)

var order = binary.BigEndian

// WriteSignal sends the client's cache-mode handshake signal.
func WriteSignal(w io.Writer, sig Signal) error {
	if err := binary.Write(w, order, uint32(sig)); err != nil {
		return fmt.Errorf("protocol: writing handshake signal: %w", err)
	}
	return nil
}

// ReadSignal reads the client's handshake signal.
func ReadSignal(r io.Reader) (Signal, error) {
	var v uint32
	if err := binary.Read(r, order, &v); err != nil {
		return 0, fmt.Errorf("protocol: reading handshake signal: %w", err)
	}
	return Signal(v), nil
}

// WriteAck writes a bare yes/no value.
func WriteAck(w io.Writer, a Ack) error {
	if err := binary.Write(w, order, uint32(a)); err != nil {
		return fmt.Errorf("protocol: writing ack: %w", err)
	}
	return nil
}

// ReadAck reads a bare yes/no value.
func ReadAck(r io.Reader) (Ack, error) {
	var v uint32
	if err := binary.Read(r, order, &v); err != nil {
		return 0, fmt.Errorf("protocol: reading ack: %w", err)
	}
	return Ack(v), nil
}

// Request is a single client-issued data frame: the operation tag,
// the page id it concerns, and (CONFIRM only) the upward hash chain
// the client is asserting.
type Request struct {
	Tag     Tag
	PageID  page.ID
	Digests []digest.Digest
}

// WriteRequest encodes and sends req.
func WriteRequest(w io.Writer, req Request) error {
	if err := binary.Write(w, order, uint32(req.Tag)); err != nil {
		return fmt.Errorf("protocol: writing tag: %w", err)
	}
	if err := binary.Write(w, order, uint32(req.PageID)); err != nil {
		return fmt.Errorf("protocol: writing page id: %w", err)
	}
	if err := binary.Write(w, order, uint32(len(req.Digests))); err != nil {
		return fmt.Errorf("protocol: writing digest count: %w", err)
	}
	for i, d := range req.Digests {
		if _, err := w.Write(d.Bytes()); err != nil {
			return fmt.Errorf("protocol: writing digest %d: %w", i, err)
		}
	}
	return nil
}

// ReadRequest reads and decodes a single data frame.
func ReadRequest(r io.Reader) (Request, error) {
	var tag, pageID, count uint32
	if err := binary.Read(r, order, &tag); err != nil {
		return Request{}, fmt.Errorf("protocol: reading tag: %w", err)
	}
	if err := binary.Read(r, order, &pageID); err != nil {
		return Request{}, fmt.Errorf("protocol: reading page id: %w", err)
	}
	if err := binary.Read(r, order, &count); err != nil {
		return Request{}, fmt.Errorf("protocol: reading digest count: %w", err)
	}
	digests := make([]digest.Digest, count)
	for i := range digests {
		var buf [digest.Size]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Request{}, fmt.Errorf("protocol: reading digest %d: %w", i, err)
		}
		digests[i] = digest.FromBytes(buf[:])
	}
	return Request{Tag: Tag(tag), PageID: page.ID(pageID), Digests: digests}, nil
}

// WritePage sends a raw, fixed-size page: the QUERY response, and the
// page bytes on CONFIRM's NO path.
func WritePage(w io.Writer, p *page.Page) error {
	if _, err := w.Write(p[:]); err != nil {
		return fmt.Errorf("protocol: writing page: %w", err)
	}
	return nil
}

// ReadPage reads a raw, fixed-size page.
func ReadPage(r io.Reader) (*page.Page, error) {
	var buf [page.Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("protocol: reading page: %w", err)
	}
	p, err := page.FromBytes(buf[:])
	if err != nil {
		return nil, fmt.Errorf("protocol: decoding page: %w", err)
	}
	return p, nil
}

// ConfirmResult is CONFIRM's structured reply: either the highest
// matching node (height, width) the server found along the asserted
// chain, or, on a mismatch, the authoritative page bytes.
type ConfirmResult struct {
	Matched bool
	Height  uint32
	Width   uint32
	Page    *page.Page
}

// WriteConfirmResult sends res, honoring the client-ACK step that sits
// between the YES/NO ack and the payload that follows it.
func WriteConfirmResult(w io.Writer, r io.Reader, res ConfirmResult) error {
	ack := No
	if res.Matched {
		ack = Yes
	}
	if err := WriteAck(w, ack); err != nil {
		return err
	}
	if _, err := ReadAck(r); err != nil {
		return fmt.Errorf("protocol: awaiting client ack: %w", err)
	}
	if res.Matched {
		if err := binary.Write(w, order, res.Height); err != nil {
			return fmt.Errorf("protocol: writing confirm height: %w", err)
		}
		if err := binary.Write(w, order, res.Width); err != nil {
			return fmt.Errorf("protocol: writing confirm width: %w", err)
		}
		return nil
	}
	return WritePage(w, res.Page)
}

// ReadConfirmResult receives a CONFIRM reply, sending the client's ACK
// in between as the protocol requires.
func ReadConfirmResult(r io.Reader, w io.Writer) (ConfirmResult, error) {
	ack, err := ReadAck(r)
	if err != nil {
		return ConfirmResult{}, err
	}
	if err := WriteAck(w, Yes); err != nil {
		return ConfirmResult{}, fmt.Errorf("protocol: sending ack: %w", err)
	}
	if ack == Yes {
		var h, wdt uint32
		if err := binary.Read(r, order, &h); err != nil {
			return ConfirmResult{}, fmt.Errorf("protocol: reading confirm height: %w", err)
		}
		if err := binary.Read(r, order, &wdt); err != nil {
			return ConfirmResult{}, fmt.Errorf("protocol: reading confirm width: %w", err)
		}
		return ConfirmResult{Matched: true, Height: h, Width: wdt}, nil
	}
	p, err := ReadPage(r)
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{Matched: false, Page: p}, nil
}

// CommitResult is END's second reply, sent after every proof: a NO
// ack when nothing was committed, or a YES ack followed by the new
// root this server-side commit published, so the client adopts it as
// the trusted root for its next statement instead of re-deriving it.
type CommitResult struct {
	Committed  bool
	RootHeight uint32
	RootWidth  uint32
	RootHash   digest.Digest
}

// WriteCommitResult sends res after the proof payload an END reply
// already carries.
func WriteCommitResult(w io.Writer, res CommitResult) error {
	ack := No
	if res.Committed {
		ack = Yes
	}
	if err := WriteAck(w, ack); err != nil {
		return fmt.Errorf("protocol: writing commit ack: %w", err)
	}
	if !res.Committed {
		return nil
	}
	if err := binary.Write(w, order, res.RootHeight); err != nil {
		return fmt.Errorf("protocol: writing commit root height: %w", err)
	}
	if err := binary.Write(w, order, res.RootWidth); err != nil {
		return fmt.Errorf("protocol: writing commit root width: %w", err)
	}
	if _, err := w.Write(res.RootHash.Bytes()); err != nil {
		return fmt.Errorf("protocol: writing commit root hash: %w", err)
	}
	return nil
}

// ReadCommitResult receives END's optional second reply.
func ReadCommitResult(r io.Reader) (CommitResult, error) {
	ack, err := ReadAck(r)
	if err != nil {
		return CommitResult{}, fmt.Errorf("protocol: reading commit ack: %w", err)
	}
	if ack != Yes {
		return CommitResult{}, nil
	}
	var h, w uint32
	if err := binary.Read(r, order, &h); err != nil {
		return CommitResult{}, fmt.Errorf("protocol: reading commit root height: %w", err)
	}
	if err := binary.Read(r, order, &w); err != nil {
		return CommitResult{}, fmt.Errorf("protocol: reading commit root width: %w", err)
	}
	var buf [digest.Size]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return CommitResult{}, fmt.Errorf("protocol: reading commit root hash: %w", err)
	}
	return CommitResult{Committed: true, RootHeight: h, RootWidth: w, RootHash: digest.FromBytes(buf[:])}, nil
}

// WriteProofLength sends the byte length of the serialized Proof that
// will follow an END request, once the client has ACKed.
func WriteProofLength(w io.Writer, r io.Reader, n uint64) error {
	if err := binary.Write(w, order, n); err != nil {
		return fmt.Errorf("protocol: writing proof length: %w", err)
	}
	if _, err := ReadAck(r); err != nil {
		return fmt.Errorf("protocol: awaiting client ack: %w", err)
	}
	return nil
}

// ReadProofLength receives the proof length and sends the client's ACK.
func ReadProofLength(r io.Reader, w io.Writer) (uint64, error) {
	var n uint64
	if err := binary.Read(r, order, &n); err != nil {
		return 0, fmt.Errorf("protocol: reading proof length: %w", err)
	}
	if err := WriteAck(w, Yes); err != nil {
		return 0, fmt.Errorf("protocol: sending ack: %w", err)
	}
	return n, nil
}
