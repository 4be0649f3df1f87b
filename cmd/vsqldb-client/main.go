// Command vsqldb-client drives a workload of ;-separated statements
// against a vsqldb-server, verifying each statement's read set against
// the trusted root before trusting its results (C9/C11), the "one
// client driver" a deployment needs.
//
// The SQL engine itself is an external collaborator this module never
// implements, so a workload statement
// here is not real SQL: it is one of two page-I/O directives a real
// engine's pluggable backend would eventually issue on this layer's
// behalf —
//
//	READ  <byte offset> <byte amount>
//	WRITE <byte offset> <hex-encoded bytes>
//
// separated by semicolons, one statement verified and committed (if
// it wrote anything) before the next begins.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"

	"github.com/vtree/vsqldb/internal/config"
	"github.com/vtree/vsqldb/internal/telemetry"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/pageio"
	"github.com/vtree/vsqldb/pkg/protocol"
	"github.com/vtree/vsqldb/pkg/verifier"
)

func main() {
	fs := flag.CommandLine
	cfg := config.RegisterFlags(fs)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		glog.Exitf("vsqldb-client: invalid configuration: %v", err)
	}
	if cfg.WorkloadPath == "" {
		glog.Exitf("vsqldb-client: -workload_path is required")
	}

	raw, err := os.ReadFile(cfg.WorkloadPath)
	if err != nil {
		glog.Exitf("vsqldb-client: reading workload: %v", err)
	}
	statements, err := parseWorkload(string(raw))
	if err != nil {
		glog.Exitf("vsqldb-client: malformed workload: %v", err)
	}

	publisher, err := cfg.NewPublisher()
	if err != nil {
		glog.Exitf("vsqldb-client: building parameter publisher: %v", err)
	}
	ctx := context.Background()
	param, err := publisher.Load(ctx)
	if err != nil {
		glog.Exitf("vsqldb-client: loading trusted root parameter: %v", err)
	}
	trustedRoot := param.RootHash
	var treeHeight uint32
	if param.RootID != nil {
		treeHeight = param.RootID.Height
	}

	conn, err := net.Dial("tcp", cfg.ServerAddr)
	if err != nil {
		glog.Exitf("vsqldb-client: dialing %s: %v", cfg.ServerAddr, err)
	}
	defer conn.Close()

	sig := protocol.BothCache
	if cfg.OptLevel == config.OptNone {
		sig = protocol.NoCache
	}
	if err := protocol.WriteSignal(conn, sig); err != nil {
		glog.Exitf("vsqldb-client: sending handshake signal: %v", err)
	}
	if ack, err := protocol.ReadAck(conn); err != nil || ack != protocol.Yes {
		glog.Exitf("vsqldb-client: handshake not acknowledged: ack=%v err=%v", ack, err)
	}

	cache := cfg.OptLevel.NewCache(cfg.CacheSizeInMB)
	sess := pageio.NewSession(conn, cache, nil)

	var totalQuery, totalVerify float64
	for i, stmt := range statements {
		sess.StatementStart()

		timer := telemetry.NewStatementTimer()
		timer.StartQuery()
		if err := stmt.run(ctx, sess); err != nil {
			telemetry.SessionsTotal.WithLabelValues("transport_failed").Inc()
			glog.Exitf("vsqldb-client: statement %d: %v", i+1, err)
		}
		proofBytes, commit, err := sess.End()
		timer.StopQuery()
		if err != nil {
			telemetry.SessionsTotal.WithLabelValues("transport_failed").Inc()
			glog.Exitf("vsqldb-client: statement %d: END: %v", i+1, err)
		}

		proof, err := merkle.DecodeProof(proofBytes)
		if err != nil {
			telemetry.SessionsTotal.WithLabelValues("transport_failed").Inc()
			glog.Exitf("vsqldb-client: statement %d: decoding proof: %v", i+1, err)
		}

		timer.StartVerify()
		verifyErr := verifier.Verify(ctx, trustedRoot, proof, treeHeight, sess.Reads.Entries())
		timer.StopVerify()
		if verifyErr != nil {
			telemetry.SessionsTotal.WithLabelValues("verification_failed").Inc()
			glog.Exitf("vsqldb-client: statement %d failed verification: %v", i+1, verifyErr)
		}

		if commit.Committed {
			trustedRoot = commit.RootHash
			treeHeight = commit.RootHeight
		}

		telemetry.ProofBytes.Observe(float64(len(proofBytes)))
		telemetry.SessionsTotal.WithLabelValues("ok").Inc()
		sizeBytes, maxHeight := cache.Stats()
		telemetry.RecordCacheStats(sizeBytes, maxHeight)

		queryMS := timer.QueryElapsed().Seconds() * 1000
		verifyMS := timer.VerifyElapsed().Seconds() * 1000
		totalQuery += queryMS
		totalVerify += verifyMS
		fmt.Printf("statement %d: query_ms=%.3f verify_ms=%.3f proof_bytes=%d cache_bytes=%d\n",
			i+1, queryMS, verifyMS, len(proofBytes), sizeBytes)
	}

	fmt.Printf("%d statements: total query_ms=%.3f total verify_ms=%.3f final root=%s\n",
		len(statements), totalQuery, totalVerify, trustedRoot)
}

// directive is one parsed workload statement: a main-file page-I/O
// call a real SQL engine's backend would have issued through pkg/pageio.
type directive struct {
	kind   string // "READ" or "WRITE"
	offset uint64
	amt    int
	data   []byte
}

func (d directive) run(ctx context.Context, sess *pageio.Session) error {
	switch d.kind {
	case "READ":
		_, err := sess.Read(ctx, d.offset, d.amt)
		return err
	case "WRITE":
		return sess.Write(ctx, d.offset, d.data)
	default:
		return fmt.Errorf("unrecognized directive kind %q", d.kind)
	}
}

// parseWorkload splits raw on ';' and parses each non-blank statement,
// failing on the first malformed one: a malformed workload is a
// configuration error, fatal before any session starts, so the whole
// file is validated up front rather than mid-run.
func parseWorkload(raw string) ([]directive, error) {
	var out []directive
	for i, stmt := range strings.Split(raw, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		d, err := parseStatement(stmt)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseStatement(stmt string) (directive, error) {
	fields := strings.Fields(stmt)
	if len(fields) != 3 {
		return directive{}, fmt.Errorf("want READ <offset> <amount> or WRITE <offset> <hex bytes>, got %q", stmt)
	}
	offset, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return directive{}, fmt.Errorf("parsing offset %q: %w", fields[1], err)
	}
	switch strings.ToUpper(fields[0]) {
	case "READ":
		amt, err := strconv.Atoi(fields[2])
		if err != nil || amt <= 0 {
			return directive{}, fmt.Errorf("parsing READ amount %q: %w", fields[2], err)
		}
		return directive{kind: "READ", offset: offset, amt: amt}, nil
	case "WRITE":
		data, err := hex.DecodeString(fields[2])
		if err != nil {
			return directive{}, fmt.Errorf("decoding WRITE payload %q: %w", fields[2], err)
		}
		return directive{kind: "WRITE", offset: offset, data: data}, nil
	default:
		return directive{}, fmt.Errorf("unrecognized statement kind %q (want READ or WRITE)", fields[0])
	}
}
