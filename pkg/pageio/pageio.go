// Package pageio implements the client-side page-I/O vtable the SQL
// engine drives (C9): routing the main, verified database file
// through cache + transport + read/write sets, while local scratch
// files (rollback journals, WAL, temp files) bypass verification
// entirely.
package pageio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vtree/vsqldb/pkg/cache"
	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
	"github.com/vtree/vsqldb/pkg/protocol"
)

// MaxPathLength is the build-time cap on a file path handled by this
// layer.
const MaxPathLength = 512

// ErrPathTooLong is returned by Classify when a path exceeds MaxPathLength.
var ErrPathTooLong = errors.New("pageio: path exceeds the maximum length")

// ErrNotSupported is returned for page-I/O operations the contract
// explicitly excludes: locks, shared-memory maps, memory-mapped fetches.
var ErrNotSupported = errors.New("pageio: operation not supported")

// FileKind distinguishes the single verified main file from every
// other file the SQL engine opens.
type FileKind int

const (
	KindMain FileKind = iota
	KindScratch
)

// Classify decides whether path names the verified main database
// file or a local scratch file (rollback journal, WAL, shared-memory
// file, or a temp file using the engine's customary prefix) that
// bypasses the verifiable layer.
func Classify(path string) (FileKind, error) {
	if len(path) > MaxPathLength {
		return KindScratch, ErrPathTooLong
	}
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	switch {
	case strings.HasSuffix(base, "-journal"),
		strings.HasSuffix(base, "-wal"),
		strings.HasSuffix(base, "-shm"),
		strings.HasPrefix(base, "etilqs_"):
		return KindScratch, nil
	default:
		return KindMain, nil
	}
}

// ReadSet accumulates the (PageId → digest) observations made during
// one SQL statement, handed to the verification driver at END.
type ReadSet struct {
	mu    sync.Mutex
	pages map[page.ID]digest.Digest
}

func NewReadSet() *ReadSet {
	return &ReadSet{pages: make(map[page.ID]digest.Digest)}
}

func (s *ReadSet) Record(id page.ID, d digest.Digest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[id] = d
}

func (s *ReadSet) Entries() map[page.ID]digest.Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[page.ID]digest.Digest, len(s.pages))
	for k, v := range s.pages {
		out[k] = v
	}
	return out
}

func (s *ReadSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[page.ID]digest.Digest)
}

// WriteSet accumulates the (PageId → new digest) observations made by
// write requests, in the order pages were first touched.
type WriteSet struct {
	mu    sync.Mutex
	pages map[page.ID]digest.Digest
	order []page.ID
}

func NewWriteSet() *WriteSet {
	return &WriteSet{pages: make(map[page.ID]digest.Digest)}
}

func (s *WriteSet) Record(id page.ID, d digest.Digest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[id]; !ok {
		s.order = append(s.order, id)
	}
	s.pages[id] = d
}

// Ascend returns (PageId, digest) pairs in first-touched order; they
// are not sorted by PageId (server.Committer sorts before applying).
func (s *WriteSet) Ascend() []struct {
	PageID page.ID
	Digest digest.Digest
} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]struct {
		PageID page.ID
		Digest digest.Digest
	}, len(s.order))
	for i, id := range s.order {
		out[i] = struct {
			PageID page.ID
			Digest digest.Digest
		}{PageID: id, Digest: s.pages[id]}
	}
	return out
}

func (s *WriteSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[page.ID]digest.Digest)
	s.order = nil
}

// Dialer opens a fresh connection to the server, used only to fan out
// concurrent QUERY fetches for a multi-page read; CONFIRM and END
// always go over the session's single primary connection, which is
// the one the server's read context is keyed on.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// Session ties one client session's cache, read/write sets, and
// transport together, implementing the read/write half of the
// page-I/O contract for the main verified file.
type Session struct {
	conn   io.ReadWriter
	dialer Dialer
	cache  cache.Cache
	Reads  *ReadSet
	Writes *WriteSet
}

// NewSession returns a Session bound to conn (the session's primary
// transport) and a cache variant. dialer may be nil, in which case
// multi-page reads fetch missing pages sequentially over conn.
func NewSession(conn io.ReadWriter, c cache.Cache, dialer Dialer) *Session {
	return &Session{
		conn:   conn,
		dialer: dialer,
		cache:  c,
		Reads:  NewReadSet(),
		Writes: NewWriteSet(),
	}
}

// StatementStart resets the bookkeeping a new SQL statement starts
// with: the previous statement's read/write sets are discarded, and
// the cache's carried-over entries are marked unconfirmed (C8's
// unconfirm(), called "at statement start when trust has potentially
// lapsed").
func (s *Session) StatementStart() {
	s.Reads.Clear()
	s.Writes.Clear()
	s.cache.Unconfirm()
}

// pageRange returns the inclusive range of page ids touched by a
// byte range [offset, offset+amt).
func pageRange(offset uint64, amt int) (first, last page.ID) {
	first = page.ID(offset / page.Size)
	last = page.ID((offset + uint64(amt) - 1) / page.Size)
	return first, last
}

// Read satisfies one engine read() call: it resolves every page in
// the touched range (cache first, then QUERY), records each page's
// digest into the read set, and returns the offset-trimmed bytes.
func (s *Session) Read(ctx context.Context, offset uint64, amt int) ([]byte, error) {
	if amt <= 0 {
		return nil, nil
	}
	first, last := pageRange(offset, amt)
	n := int(last-first) + 1
	pages := make([]*page.Page, n)

	var missing []int
	for i := 0; i < n; i++ {
		id := first + page.ID(i)
		if p := s.resolveFromCache(id); p != nil {
			pages[i] = p
			continue
		}
		missing = append(missing, i)
	}

	if err := s.fetchMissing(ctx, first, pages, missing); err != nil {
		return nil, err
	}

	for i, p := range pages {
		id := first + page.ID(i)
		s.Reads.Record(id, p.Digest())
	}

	buf := make([]byte, 0, n*page.Size)
	for _, p := range pages {
		buf = append(buf, p[:]...)
	}
	startOff := int(offset - uint64(first)*page.Size)
	if startOff+amt > len(buf) {
		return nil, fmt.Errorf("pageio: read range exceeds fetched pages")
	}
	return buf[startOff : startOff+amt], nil
}

// resolveFromCache returns id's page bytes without a QUERY round trip
// when the cache can supply them: either the entry is already marked
// valid for the current statement, or, for an entry merely carried
// over unconfirmed from a previous statement (V1/V2), a CONFIRM round
// trip against the server's current hash chain re-validates it. A
// CONFIRM round trip is far cheaper than a full QUERY (no page
// payload on the match path), which is the whole point of the
// confirmation variants.
func (s *Session) resolveFromCache(id page.ID) *page.Page {
	nodeID := merkle.NewNodeIDFromPageID(id)
	e, ok := s.cache.Get(nodeID)
	if !ok || e.Bytes == nil {
		return nil
	}
	if e.Valid {
		p, err := page.FromBytes(e.Bytes)
		if err != nil {
			return nil
		}
		return p
	}
	return s.confirmCached(id, nodeID, e)
}

// confirmCached asserts the chain of hashes the cache still holds
// for nodeID and its ancestors, in ascending order, against the
// server's authoritative tree. A match re-validates every descendant
// of the highest matching node (C8 V1/V2's Confirm); a mismatch
// discards the stale entry and re-inserts the authoritative bytes the
// server falls back to returning.
func (s *Session) confirmCached(id page.ID, nodeID merkle.NodeID, e cache.Entry) *page.Page {
	chain := s.cachedChain(nodeID)
	if len(chain) == 0 {
		return nil
	}
	res, err := s.Confirm(id, chain)
	if err != nil {
		return nil
	}
	if res.Matched {
		s.cache.Confirm(merkle.NodeID{Height: res.Height, Width: res.Width})
		p, err := page.FromBytes(e.Bytes)
		if err != nil {
			return nil
		}
		return p
	}
	if res.Page != nil {
		s.cache.InsertLeaf(id, res.Page, res.Page.Digest(), 0)
	}
	return nil
}

// cachedChain walks upward from nodeID, collecting every ancestor
// hash still present in the cache in ascending order, stopping at the
// first gap. This is the chain a CONFIRM request asserts.
func (s *Session) cachedChain(nodeID merkle.NodeID) []digest.Digest {
	var chain []digest.Digest
	cur := nodeID
	for {
		e, ok := s.cache.Get(cur)
		if !ok {
			break
		}
		chain = append(chain, e.Hash)
		cur = cur.Parent()
	}
	return chain
}

func (s *Session) fetchMissing(ctx context.Context, first page.ID, pages []*page.Page, missing []int) error {
	if len(missing) == 0 {
		return nil
	}
	if len(missing) == 1 || s.dialer == nil {
		for _, i := range missing {
			p, err := s.query(s.conn, first+page.ID(i))
			if err != nil {
				return err
			}
			pages[i] = p
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, i := range missing {
		i := i
		g.Go(func() error {
			conn, err := s.dialer(gctx)
			if err != nil {
				return fmt.Errorf("pageio: dialing for page %d: %w", first+page.ID(i), err)
			}
			defer conn.Close()
			p, err := s.query(conn, first+page.ID(i))
			if err != nil {
				return err
			}
			pages[i] = p
			return nil
		})
	}
	return g.Wait()
}

func (s *Session) query(conn io.ReadWriter, id page.ID) (*page.Page, error) {
	if err := protocol.WriteRequest(conn, protocol.Request{Tag: protocol.TagQuery, PageID: id}); err != nil {
		return nil, fmt.Errorf("pageio: QUERY(%d): %w", id, err)
	}
	p, err := protocol.ReadPage(conn)
	if err != nil {
		return nil, fmt.Errorf("pageio: QUERY(%d) response: %w", id, err)
	}
	// A fresh fetch is trusted for the remainder of this statement
	// (its digest is about to enter the read set the server's proof
	// authenticates), so it seeds the cache valid, ready for the next
	// statement's CONFIRM to re-validate instead of a second QUERY.
	s.cache.InsertLeaf(id, p, p.Digest(), 0)
	return p, nil
}

// Write satisfies one engine write() call for the main file. The
// write path is server-side only: this method doesn't touch any
// local file, it splices data into the enclosing pages' current
// content and pushes each touched page's new bytes to the server with
// a WRITE frame, recording the locally-spliced digest into Writes —
// the server stores exactly the pushed bytes, so its committed digest
// is the one recorded here.
func (s *Session) Write(ctx context.Context, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	first, last := pageRange(offset, len(data))
	n := int(last-first) + 1
	pages := make([]*page.Page, n)

	var missing []int
	for i := 0; i < n; i++ {
		id := first + page.ID(i)
		if p := s.resolveFromCache(id); p != nil {
			pages[i] = p
			continue
		}
		missing = append(missing, i)
	}
	if err := s.fetchMissing(ctx, first, pages, missing); err != nil {
		return err
	}

	for i, p := range pages {
		id := first + page.ID(i)
		pageStart := uint64(id) * page.Size
		pageEnd := pageStart + page.Size
		lo, hi := offset, offset+uint64(len(data))
		if pageStart > lo {
			lo = pageStart
		}
		if pageEnd < hi {
			hi = pageEnd
		}
		if lo >= hi {
			continue
		}
		copy(p[lo-pageStart:hi-pageStart], data[lo-offset:hi-offset])
	}

	for i, p := range pages {
		id := first + page.ID(i)
		if err := protocol.WriteRequest(s.conn, protocol.Request{Tag: protocol.TagWrite, PageID: id}); err != nil {
			return fmt.Errorf("pageio: WRITE(%d): %w", id, err)
		}
		if err := protocol.WritePage(s.conn, p); err != nil {
			return fmt.Errorf("pageio: WRITE(%d) payload: %w", id, err)
		}
		ack, err := protocol.ReadAck(s.conn)
		if err != nil {
			return fmt.Errorf("pageio: WRITE(%d) ack: %w", id, err)
		}
		if ack != protocol.Yes {
			return fmt.Errorf("pageio: WRITE(%d) rejected by server", id)
		}
		s.Writes.Record(id, p.Digest())
		s.cache.InsertLeaf(id, p, p.Digest(), 0)
	}
	return nil
}

// Confirm issues a CONFIRM request over the primary connection,
// asserting that the upward hash chain starting at id matches
// digs[0], digs[1], ….
func (s *Session) Confirm(id page.ID, digs []digest.Digest) (protocol.ConfirmResult, error) {
	if err := protocol.WriteRequest(s.conn, protocol.Request{Tag: protocol.TagConfirm, PageID: id, Digests: digs}); err != nil {
		return protocol.ConfirmResult{}, fmt.Errorf("pageio: CONFIRM(%d): %w", id, err)
	}
	res, err := protocol.ReadConfirmResult(s.conn, s.conn)
	if err != nil {
		return protocol.ConfirmResult{}, fmt.Errorf("pageio: CONFIRM(%d) response: %w", id, err)
	}
	return res, nil
}

// End issues an END request and returns the serialized Proof bytes
// plus, when the statement pushed any WRITE frames, the server's
// commit result for the new root.
func (s *Session) End() ([]byte, protocol.CommitResult, error) {
	if err := protocol.WriteRequest(s.conn, protocol.Request{Tag: protocol.TagEnd}); err != nil {
		return nil, protocol.CommitResult{}, fmt.Errorf("pageio: END: %w", err)
	}
	n, err := protocol.ReadProofLength(s.conn, s.conn)
	if err != nil {
		return nil, protocol.CommitResult{}, fmt.Errorf("pageio: END length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return nil, protocol.CommitResult{}, fmt.Errorf("pageio: END payload: %w", err)
	}
	commit, err := protocol.ReadCommitResult(s.conn)
	if err != nil {
		return nil, protocol.CommitResult{}, fmt.Errorf("pageio: END commit result: %w", err)
	}
	return buf, commit, nil
}
