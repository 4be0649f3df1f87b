// Command vsqldb-init builds the initial Merkle tree over an
// existing page file and publishes its root, the pre-authentication
// step: run once, offline, before a
// server or client ever opens a session.
package main

import (
	"context"
	"flag"

	"github.com/golang/glog"

	"github.com/vtree/vsqldb/internal/config"
	"github.com/vtree/vsqldb/pkg/authority"
	"github.com/vtree/vsqldb/pkg/merkle"
	"github.com/vtree/vsqldb/pkg/page"
	"github.com/vtree/vsqldb/pkg/server"
)

var (
	nodeStoreKind = flag.String("node_store", "mysql", "backing node store: mysql or postgres")
	dsn           = flag.String("dsn", "", "data source name for the node store")
	numPages      = flag.Int("num_pages", 0, "number of pages already present in the page file")
)

func main() {
	fs := flag.CommandLine
	cfg := config.RegisterFlags(fs)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		glog.Exitf("vsqldb-init: invalid configuration: %v", err)
	}
	if cfg.PageFilePath == "" {
		glog.Exitf("vsqldb-init: -page_file is required")
	}
	if *numPages <= 0 {
		glog.Exitf("vsqldb-init: -num_pages must be positive")
	}

	pages, err := server.OpenFilePageStore(cfg.PageFilePath)
	if err != nil {
		glog.Exitf("vsqldb-init: opening page file: %v", err)
	}

	nodes, err := openNodeStore(*nodeStoreKind, *dsn)
	if err != nil {
		glog.Exitf("vsqldb-init: opening node store: %v", err)
	}

	wc := merkle.NewWriteContext(nodes, nil)
	for i := 0; i < *numPages; i++ {
		p, err := pages.ReadPage(page.ID(i))
		if err != nil {
			glog.Exitf("vsqldb-init: reading page %d: %v", i, err)
		}
		if err := wc.Update(page.ID(i), p.Digest()); err != nil {
			glog.Exitf("vsqldb-init: hashing page %d into the tree: %v", i, err)
		}
	}
	apply := wc.Changes()
	if err := nodes.ApplyChanges(apply); err != nil {
		glog.Exitf("vsqldb-init: persisting tree: %v", err)
	}

	rootNode, ok, err := nodes.LoadNode(*apply.RootID)
	if err != nil || !ok {
		glog.Exitf("vsqldb-init: loading freshly committed root %v: ok=%v err=%v", apply.RootID, ok, err)
	}

	if cfg.ParamPath != "" {
		pub := authority.NewFilePublisher(cfg.ParamPath)
		if err := pub.Publish(context.Background(), authority.Parameter{RootID: apply.RootID, RootHash: rootNode.Hash}); err != nil {
			glog.Exitf("vsqldb-init: publishing root parameter: %v", err)
		}
	}

	glog.Infof("vsqldb-init: initialized %d pages, root %v, root hash %s", *numPages, apply.RootID, rootNode.Hash)
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
	return "vsqldb-init: unknown node_store kind " + e.kind + " (want mysql or postgres)"
}
