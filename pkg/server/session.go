package server

import (
	"context"
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/vtree/vsqldb/pkg/authority"
	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
	"github.com/vtree/vsqldb/pkg/protocol"
)

// Clock issues the version-filter timestamp a commit inserts its
// touched pages at (pkg/authority.Clock satisfies this).
type Clock interface {
	Next() uint32
}

// Session handles one client connection's QUERY/CONFIRM/END/WRITE
// traffic (C10), maintaining a single ReadContext that accumulates
// across every request in between two ENDs, and a pending write set
// that an END with a non-empty write set drains through Committer.
//
// The main file's write path runs through the server: the client
// pushes each touched page's full new bytes with a WRITE frame, this
// Session stores them and records the resulting digest, and END
// commits every page touched since the last END as one unit.
type Session struct {
	conn      io.ReadWriter
	nodes     NodeStore
	pages     PageStore
	committer *Committer
	clock     Clock
	publisher authority.Publisher

	readCtx *merkle.ReadContext
	writes  map[page.ID]WriteEntry
}

// NewSession returns a Session serving conn against the given node
// and page stores. committer and clock may be nil: a Session serving
// only QUERY/CONFIRM/END (no WRITE frames) never needs them. publisher
// may also be nil, in which case a successful commit updates nodes's
// own root pointer (already done by Committer.Commit) but never
// republishes a Parameter record for other processes to observe.
func NewSession(conn io.ReadWriter, nodes NodeStore, pages PageStore, committer *Committer, clock Clock, publisher authority.Publisher) *Session {
	return &Session{conn: conn, nodes: nodes, pages: pages, committer: committer, clock: clock, publisher: publisher}
}

// Handshake reads the client's cache-mode signal and acknowledges it.
// The signal doesn't change server behavior: it only tells the client
// which cache variant to run, so the server just echoes YES.
func (s *Session) Handshake() (protocol.Signal, error) {
	sig, err := protocol.ReadSignal(s.conn)
	if err != nil {
		return 0, fmt.Errorf("server: reading handshake signal: %w", err)
	}
	if sig != protocol.NoCache && sig != protocol.BothCache {
		return 0, fmt.Errorf("server: unrecognized handshake signal %d", sig)
	}
	if err := protocol.WriteAck(s.conn, protocol.Yes); err != nil {
		return 0, fmt.Errorf("server: acknowledging handshake: %w", err)
	}
	return sig, nil
}

// Serve processes data frames until an END completes the statement,
// returning the serialized proof. The caller loops back into Serve
// for the next statement, or closes conn to end the session.
func (s *Session) Serve() ([]byte, error) {
	for {
		req, err := protocol.ReadRequest(s.conn)
		if err != nil {
			return nil, fmt.Errorf("server: reading request: %w", err)
		}
		switch req.Tag {
		case protocol.TagQuery:
			if err := s.handleQuery(req.PageID); err != nil {
				return nil, err
			}
		case protocol.TagConfirm:
			if err := s.handleConfirm(req.PageID, req.Digests); err != nil {
				return nil, err
			}
		case protocol.TagWrite:
			if err := s.handleWrite(req.PageID); err != nil {
				return nil, err
			}
		case protocol.TagEnd:
			return s.handleEnd()
		default:
			return nil, fmt.Errorf("server: unrecognized request tag %v", req.Tag)
		}
	}
}

func (s *Session) ensureReadCtx() error {
	if s.readCtx != nil {
		return nil
	}
	root, err := s.nodes.Root()
	if err != nil {
		return fmt.Errorf("server: loading trusted root: %w", err)
	}
	rc, err := merkle.NewReadContext(s.nodes, root)
	if err != nil {
		return fmt.Errorf("server: opening read context: %w", err)
	}
	s.readCtx = rc
	return nil
}

func (s *Session) handleQuery(id page.ID) error {
	if err := s.ensureReadCtx(); err != nil {
		return err
	}
	if _, err := s.readCtx.Query(id); err != nil {
		return fmt.Errorf("server: QUERY(%d): %w", id, err)
	}
	p, err := s.pages.ReadPage(id)
	if err != nil {
		return fmt.Errorf("server: reading page %d: %w", id, err)
	}
	if err := protocol.WritePage(s.conn, p); err != nil {
		return fmt.Errorf("server: replying to QUERY(%d): %w", id, err)
	}
	return nil
}

// handleWrite reads the pushed page bytes, persists them unchanged to
// the page store immediately, and records the resulting digest in the
// pending write set for the current statement (a PageId→digest(new_bytes)
// map). The version-filter insert and the root publication happen
// together at END, once the full write set for the statement is known.
func (s *Session) handleWrite(id page.ID) error {
	p, err := protocol.ReadPage(s.conn)
	if err != nil {
		return fmt.Errorf("server: WRITE(%d) reading page: %w", id, err)
	}
	if err := s.pages.WritePage(id, p); err != nil {
		return fmt.Errorf("server: WRITE(%d) persisting page: %w", id, err)
	}
	if s.writes == nil {
		s.writes = make(map[page.ID]WriteEntry)
	}
	s.writes[id] = WriteEntry{PageID: id, Page: p, Digest: p.Digest()}
	if err := protocol.WriteAck(s.conn, protocol.Yes); err != nil {
		return fmt.Errorf("server: acknowledging WRITE(%d): %w", id, err)
	}
	return nil
}

// handleConfirm walks the node store upward from id's leaf, comparing
// each node's stored hash against the client's asserted chain in
// order, and reports the highest node where they still agree. Only
// when the leaf itself disagrees (or is missing from the node store)
// does it fall back to returning the authoritative page bytes, so the
// client can re-derive its own path. A page outside the tree fails the
// read-context query and returns an error.
func (s *Session) handleConfirm(id page.ID, chain []digest.Digest) error {
	if err := s.ensureReadCtx(); err != nil {
		return err
	}
	// A CONFIRM still touches the page's leaf, so it belongs in the
	// same accumulated proof an eventual mismatch-free statement needs.
	if _, err := s.readCtx.Query(id); err != nil {
		return fmt.Errorf("server: CONFIRM(%d) read: %w", id, err)
	}

	nodeID := merkle.NewNodeIDFromPageID(id)
	var lastMatch *merkle.NodeID
	for _, want := range chain {
		node, ok, err := s.nodes.LoadNode(nodeID)
		if err != nil {
			return fmt.Errorf("server: CONFIRM(%d) loading node %v: %w", id, nodeID, err)
		}
		if !ok || node.Hash != want {
			break
		}
		matched := nodeID
		lastMatch = &matched
		nodeID = nodeID.Parent()
	}

	if lastMatch != nil {
		glog.V(4).Infof("server: CONFIRM(%d) matched up to %v", id, *lastMatch)
		return protocol.WriteConfirmResult(s.conn, s.conn, protocol.ConfirmResult{
			Matched: true,
			Height:  lastMatch.Height,
			Width:   lastMatch.Width,
		})
	}

	p, err := s.pages.ReadPage(id)
	if err != nil {
		return fmt.Errorf("server: CONFIRM(%d) reading authoritative page: %w", id, err)
	}
	return protocol.WriteConfirmResult(s.conn, s.conn, protocol.ConfirmResult{Matched: false, Page: p})
}

// handleEnd finalizes and sends the accumulated proof, commits any
// pending write set (apply in ascending order, publish the new root),
// and resets the session for the next statement.
func (s *Session) handleEnd() ([]byte, error) {
	var encoded []byte
	if s.readCtx != nil {
		encoded = merkle.EncodeProof(s.readCtx.Proof())
	} else {
		encoded = merkle.EncodeProof(nil)
	}
	if err := protocol.WriteProofLength(s.conn, s.conn, uint64(len(encoded))); err != nil {
		return nil, fmt.Errorf("server: sending proof length: %w", err)
	}
	if _, err := s.conn.Write(encoded); err != nil {
		return nil, fmt.Errorf("server: sending proof: %w", err)
	}

	result, err := s.commitPendingWrites()
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteCommitResult(s.conn, result); err != nil {
		return nil, fmt.Errorf("server: sending commit result: %w", err)
	}

	s.readCtx = nil
	s.writes = nil
	return encoded, nil
}

// commitPendingWrites drains s.writes (if non-empty) through the
// session's Committer and reports the resulting root. A Session with
// no Committer or Clock (read-only deployments, or tests exercising
// only QUERY/CONFIRM/END) still persists pages from WRITE frames in
// handleWrite, but the END that follows them returns an error.
func (s *Session) commitPendingWrites() (protocol.CommitResult, error) {
	if len(s.writes) == 0 {
		return protocol.CommitResult{}, nil
	}
	if s.committer == nil || s.clock == nil {
		return protocol.CommitResult{}, fmt.Errorf("server: END: pending writes but no committer configured")
	}
	entries := make([]WriteEntry, 0, len(s.writes))
	for _, e := range s.writes {
		entries = append(entries, WriteEntry{PageID: e.PageID, Digest: e.Digest})
	}
	rootID, err := s.committer.Commit(entries, s.clock.Next())
	if err != nil {
		return protocol.CommitResult{}, fmt.Errorf("server: committing write set: %w", err)
	}
	node, ok, err := s.nodes.LoadNode(*rootID)
	if err != nil {
		return protocol.CommitResult{}, fmt.Errorf("server: loading committed root %v: %w", rootID, err)
	}
	if !ok {
		return protocol.CommitResult{}, fmt.Errorf("server: committed root %v missing from node store", rootID)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(context.Background(), authority.Parameter{RootID: rootID, RootHash: node.Hash}); err != nil {
			return protocol.CommitResult{}, fmt.Errorf("server: publishing committed root: %w", err)
		}
	}
	return protocol.CommitResult{Committed: true, RootHeight: rootID.Height, RootWidth: rootID.Width, RootHash: node.Hash}, nil
}
