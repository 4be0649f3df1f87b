// Package verifier implements the end-of-statement verification
// driver (C11): reconcile a statement's read set and write set
// against the trusted root, publish the new root when the statement
// wrote anything, and report any mismatch as a verification failure
// rather than a fatal error.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opencensus.io/trace"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
)

// ErrBatchingUnsupported is returned by Driver.End when more than one
// SQL statement's reads/writes have accumulated without an
// intervening verification. The protocol binds exactly one statement
// to one root transition; batching several statements into a single
// proof is out of scope.
var ErrBatchingUnsupported = errors.New("verifier: only one statement may be verified at a time")

// Reads reports the (PageId → digest) pairs a statement observed.
type Reads interface {
	Entries() map[page.ID]digest.Digest
}

// Writes reports the (PageId → digest) pairs a statement committed,
// in first-touched order.
type Writes interface {
	Ascend() []struct {
		PageID page.ID
		Digest digest.Digest
	}
}

// Verify checks that every (PageId, digest) pair in reads is
// authenticated by proof against the trusted root hash, at the given
// tree height. An empty read set trivially verifies (matching the
// reference implementation's empty-map short-circuit).
func Verify(ctx context.Context, trustedRoot digest.Digest, proof *merkle.Proof, height uint32, reads map[page.ID]digest.Digest) error {
	if len(reads) == 0 {
		return nil
	}
	_, span := trace.StartSpan(ctx, "verifier.Verify")
	defer span.End()

	rootHash, err := proof.RootHash()
	if err != nil {
		return fmt.Errorf("verifier: computing proof root hash: %w", err)
	}
	if rootHash != trustedRoot {
		return fmt.Errorf("verifier: %w", merkle.ErrRootMismatch)
	}
	// Sorting isn't required for correctness, only for deterministic
	// error ordering when more than one page fails to verify.
	ids := make([]page.ID, 0, len(reads))
	for id := range reads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		target := digest.LeafHash(uint32(id), reads[id])
		if err := proof.VerifyVal(target, id, height); err != nil {
			return fmt.Errorf("verifier: page %d: %w", id, err)
		}
	}
	return nil
}

// Committer applies a verified statement's write set and returns the
// new trusted root's content hash (not its NodeID: a Driver only ever
// needs the hash to compare against a future statement's proof).
// pkg/server.Committer satisfies this in the client-server
// deployment via AsVerifierCommitter; an in-enclave deployment can
// satisfy it directly against a co-located NodeStore.
type Committer interface {
	Commit(entries []CommitEntry, ts uint32) (digest.Digest, error)
}

// CommitEntry is one written page, ready to hand to a Committer.
type CommitEntry struct {
	PageID page.ID
	Digest digest.Digest
}

// RootSource supplies the proof and tree height the driver verifies
// reads against (the server's END response, or a pre-merged
// in-enclave equivalent) and the digest of the presently-trusted
// root, the value proof.RootHash() must reproduce.
type RootSource interface {
	Proof() (*merkle.Proof, uint32, error)
	TrustedRootHash() (digest.Digest, error)
}

// Driver owns a single statement's lifecycle end-to-end: it is not
// safe to call End concurrently, matching the single-threaded
// cooperative session model every other C9/C10 component assumes.
type Driver struct {
	Source    RootSource
	Committer Committer

	// Clock supplies the VBF/commit timestamp for writes; callers pass
	// a session-local monotonically increasing counter (never a
	// process-wide global, per the reference implementation's
	// GLOBAL_TS redesign).
	Clock func() uint32

	ended bool
}

// End verifies reads, commits writes (if any), and resets the driver
// for the next statement. It returns the new trusted root hash: the
// one just published if writes occurred, or the unchanged existing
// one otherwise.
func (d *Driver) End(ctx context.Context, reads Reads, writes Writes) (digest.Digest, error) {
	if d.ended {
		return digest.Digest{}, ErrBatchingUnsupported
	}
	d.ended = true

	ctx, span := trace.StartSpan(ctx, "verifier.Driver.End")
	defer span.End()

	trustedRoot, err := d.Source.TrustedRootHash()
	if err != nil {
		return digest.Digest{}, fmt.Errorf("verifier: loading trusted root hash: %w", err)
	}
	proof, height, err := d.Source.Proof()
	if err != nil {
		return digest.Digest{}, fmt.Errorf("verifier: obtaining proof: %w", err)
	}
	if err := Verify(ctx, trustedRoot, proof, height, reads.Entries()); err != nil {
		return digest.Digest{}, err
	}

	ascended := writes.Ascend()
	if len(ascended) == 0 {
		return trustedRoot, nil
	}

	entries := make([]CommitEntry, len(ascended))
	for i, w := range ascended {
		entries[i] = CommitEntry{PageID: w.PageID, Digest: w.Digest}
	}
	newRootHash, err := d.Committer.Commit(entries, d.Clock())
	if err != nil {
		return digest.Digest{}, fmt.Errorf("verifier: committing writes: %w", err)
	}
	return newRootHash, nil
}

// Reset rearms the driver for the next statement; callers invoke it
// after draining End's result (and after clearing the read/write sets
// it was given, which the driver itself never mutates).
func (d *Driver) Reset() {
	d.ended = false
}
