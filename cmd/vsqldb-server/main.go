// Command vsqldb-server listens for client connections and serves
// QUERY/CONFIRM/WRITE/END traffic (C10) against a node store, a page
// store, and a version bloom filter, committing each statement's
// write set and publishing the resulting root as it goes.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opencensus.io/trace"
	"go.opencensus.io/zpages"

	"github.com/vtree/vsqldb/internal/config"
	"github.com/vtree/vsqldb/internal/telemetry"
	"github.com/vtree/vsqldb/pkg/authority"
	"github.com/vtree/vsqldb/pkg/server"
	"github.com/vtree/vsqldb/pkg/vbf"
)

var (
	nodeStoreKind      = flag.String("node_store", "mysql", "backing node store: mysql or postgres")
	dsn                = flag.String("dsn", "", "data source name for the node store")
	metricsAddr        = flag.String("metrics_addr", ":9090", "address the /metrics and /debug/tracez endpoints listen on")
	vbfSnapshotPeriod  = flag.Duration("vbf_snapshot_period", 5*time.Second, "interval between shared VBF snapshot publishes")
	stackdriverProject = flag.String("stackdriver_project_id", "", "GCP project id for exporting verification spans to Stackdriver (empty disables it)")
)

func main() {
	fs := flag.CommandLine
	cfg := config.RegisterFlags(fs)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		glog.Exitf("vsqldb-server: invalid configuration: %v", err)
	}
	if cfg.PageFilePath == "" {
		glog.Exitf("vsqldb-server: -page_file is required")
	}

	pages, err := server.OpenFilePageStore(cfg.PageFilePath)
	if err != nil {
		glog.Exitf("vsqldb-server: opening page file: %v", err)
	}

	nodes, err := openNodeStore(*nodeStoreKind, *dsn)
	if err != nil {
		glog.Exitf("vsqldb-server: opening node store: %v", err)
	}

	filter := loadOrCreateVBF(cfg)

	publisher, err := cfg.NewPublisher()
	if err != nil {
		glog.Exitf("vsqldb-server: building parameter publisher: %v", err)
	}

	committer := &server.Committer{Nodes: nodes, Pages: pages, VBF: filter}
	clock := authority.NewClock()

	if *stackdriverProject != "" {
		exporter, err := stackdriver.NewExporter(stackdriver.Options{ProjectID: *stackdriverProject})
		if err != nil {
			glog.Exitf("vsqldb-server: building Stackdriver exporter: %v", err)
		}
		trace.RegisterExporter(exporter)
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
		defer exporter.Flush()
	}

	go serveMetrics(*metricsAddr)
	if snap := cfg.NewRedisSnapshotStore(); snap != nil {
		go publishVBFSnapshots(context.Background(), snap, filter, *vbfSnapshotPeriod)
	}

	listener, err := net.Listen("tcp", cfg.ServerAddr)
	if err != nil {
		glog.Exitf("vsqldb-server: listening on %s: %v", cfg.ServerAddr, err)
	}
	glog.Infof("vsqldb-server: listening on %s", cfg.ServerAddr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			glog.Errorf("vsqldb-server: accept: %v", err)
			continue
		}
		go handleConn(conn, nodes, pages, committer, clock, publisher)
	}
}

func handleConn(conn net.Conn, nodes server.NodeStore, pages server.PageStore, committer *server.Committer, clock *authority.Clock, publisher authority.Publisher) {
	defer conn.Close()
	sess := server.NewSession(conn, nodes, pages, committer, clock, publisher)
	if _, err := sess.Handshake(); err != nil {
		glog.Warningf("vsqldb-server: handshake from %s: %v", conn.RemoteAddr(), err)
		telemetry.SessionsTotal.WithLabelValues("transport_failed").Inc()
		return
	}
	for {
		timer := telemetry.NewStatementTimer()
		timer.StartQuery()
		proof, err := sess.Serve()
		timer.StopQuery()
		if err != nil {
			telemetry.SessionsTotal.WithLabelValues("transport_failed").Inc()
			return
		}
		telemetry.ProofBytes.Observe(float64(len(proof)))
		telemetry.SessionsTotal.WithLabelValues("ok").Inc()
	}
}

func openNodeStore(kind, dsn string) (server.NodeStore, error) {
	switch kind {
	case "mysql":
		return server.OpenMySQLNodeStore(dsn)
	case "postgres":
		return server.OpenPostgresNodeStore(dsn)
	default:
		return nil, &unknownNodeStoreError{kind}
	}
}

type unknownNodeStoreError struct{ kind string }

func (e *unknownNodeStoreError) Error() string {
	return "vsqldb-server: unknown node_store kind " + e.kind + " (want mysql or postgres)"
}

// loadOrCreateVBF seeds the process's version bloom filter from the
// shared redis snapshot, if one is configured and already populated,
// so a restarted server doesn't forget every page's last-write
// version; otherwise it starts a fresh filter per -map_size/-hash_num.
func loadOrCreateVBF(cfg *config.Config) *vbf.Filter {
	snap := cfg.NewRedisSnapshotStore()
	if snap == nil {
		return cfg.NewVBF()
	}
	f, err := snap.Load(context.Background(), cfg.MapSize, uint32(cfg.HashNum))
	if err != nil {
		glog.Warningf("vsqldb-server: loading VBF snapshot: %v; starting empty", err)
		return cfg.NewVBF()
	}
	return f
}

// publishVBFSnapshots republishes the filter's full state on every
// commit the caller doesn't otherwise have a hook for; here that's
// approximated by a periodic push, paced by period, so late-joining
// sessions never wait more than one tick behind the trusted writer.
func publishVBFSnapshots(ctx context.Context, snap *vbf.RedisSnapshotStore, filter *vbf.Filter, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := snap.Publish(ctx, filter); err != nil {
				glog.Warningf("vsqldb-server: publishing VBF snapshot: %v", err)
			}
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	zpages.Handle(mux, "/debug")
	if err := http.ListenAndServe(addr, mux); err != nil {
		glog.Errorf("vsqldb-server: metrics server on %s: %v", addr, err)
	}
}
