package protocol

import (
	"bytes"
	"net"
	"testing"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/page"
)

func TestSignalRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSignal(&buf, BothCache); err != nil {
		t.Fatalf("WriteSignal: %v", err)
	}
	got, err := ReadSignal(&buf)
	if err != nil {
		t.Fatalf("ReadSignal: %v", err)
	}
	if got != BothCache {
		t.Fatalf("ReadSignal = %v, want BothCache", got)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	d1 := digest.FromBytes([]byte{1, 2, 3})
	d2 := digest.FromBytes([]byte{4, 5, 6})
	want := Request{Tag: TagConfirm, PageID: 42, Digests: []digest.Digest{d1, d2}}
	if err := WriteRequest(&buf, want); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	got, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if got.Tag != want.Tag || got.PageID != want.PageID || len(got.Digests) != 2 {
		t.Fatalf("ReadRequest = %+v, want %+v", got, want)
	}
	if got.Digests[0] != d1 || got.Digests[1] != d2 {
		t.Fatalf("decoded digests mismatch")
	}
}

func TestPageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	var p page.Page
	p[0] = 0xAB
	p[page.Size-1] = 0xCD
	if err := WritePage(&buf, &p); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	got, err := ReadPage(&buf)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if *got != p {
		t.Fatalf("ReadPage round-trip mismatch")
	}
}

// TestConfirmResultMatched drives WriteConfirmResult/ReadConfirmResult
// over a real duplex pipe, since the protocol interleaves an ACK from
// the client in between the server's two writes.
func TestConfirmResultMatched(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	want := ConfirmResult{Matched: true, Height: 3, Width: 1}

	errc := make(chan error, 1)
	go func() {
		errc <- WriteConfirmResult(serverConn, serverConn, want)
	}()

	got, err := ReadConfirmResult(clientConn, clientConn)
	if err != nil {
		t.Fatalf("ReadConfirmResult: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteConfirmResult: %v", err)
	}
	if got != want {
		t.Fatalf("ReadConfirmResult = %+v, want %+v", got, want)
	}
}

func TestConfirmResultMismatch(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	var p page.Page
	p[10] = 0x42
	want := ConfirmResult{Matched: false, Page: &p}

	errc := make(chan error, 1)
	go func() {
		errc <- WriteConfirmResult(serverConn, serverConn, want)
	}()

	got, err := ReadConfirmResult(clientConn, clientConn)
	if err != nil {
		t.Fatalf("ReadConfirmResult: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteConfirmResult: %v", err)
	}
	if got.Matched {
		t.Fatalf("expected Matched=false")
	}
	if *got.Page != p {
		t.Fatalf("page bytes mismatch on the NO fallback path")
	}
}

func TestProofLengthRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()

	errc := make(chan error, 1)
	go func() {
		errc <- WriteProofLength(serverConn, serverConn, 12345)
	}()

	n, err := ReadProofLength(clientConn, clientConn)
	if err != nil {
		t.Fatalf("ReadProofLength: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("WriteProofLength: %v", err)
	}
	if n != 12345 {
		t.Fatalf("ReadProofLength = %d, want 12345", n)
	}
}

func TestCommitResultRoundTripCommitted(t *testing.T) {
	var buf bytes.Buffer
	want := CommitResult{Committed: true, RootHeight: 4, RootWidth: 1, RootHash: digest.FromBytes([]byte{7, 7})}
	if err := WriteCommitResult(&buf, want); err != nil {
		t.Fatalf("WriteCommitResult: %v", err)
	}
	got, err := ReadCommitResult(&buf)
	if err != nil {
		t.Fatalf("ReadCommitResult: %v", err)
	}
	if got != want {
		t.Fatalf("ReadCommitResult = %+v, want %+v", got, want)
	}
}

func TestCommitResultRoundTripUncommitted(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCommitResult(&buf, CommitResult{}); err != nil {
		t.Fatalf("WriteCommitResult: %v", err)
	}
	got, err := ReadCommitResult(&buf)
	if err != nil {
		t.Fatalf("ReadCommitResult: %v", err)
	}
	if got.Committed {
		t.Fatalf("expected Committed=false")
	}
}
