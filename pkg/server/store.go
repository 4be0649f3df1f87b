// Package server implements the server-side session handler (C10)
// and its two storage collaborators: the Merkle node KV store (C4)
// and the page file.
package server

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
)

// NodeStore is the server-side Merkle node KV store plus the single
// Parameter record (the trusted root id).
type NodeStore interface {
	merkle.NodeLoader
	merkle.NodeWriter
	Root() (*merkle.NodeID, error)
	SetRoot(id *merkle.NodeID) error
	// ApplyChanges persists an entire write-context batch atomically
	// where the backing store supports it.
	ApplyChanges(apply merkle.Apply) error
}

// MemNodeStore is an in-memory NodeStore: used in tests and by the
// in-enclave deployment, where the node store already lives inside
// the trusted boundary.
type MemNodeStore struct {
	nodes map[digest.Digest]*merkle.MerkleNode
	root  *merkle.NodeID
}

func NewMemNodeStore() *MemNodeStore {
	return &MemNodeStore{nodes: make(map[digest.Digest]*merkle.MerkleNode)}
}

func (s *MemNodeStore) LoadNode(id merkle.NodeID) (*merkle.MerkleNode, bool, error) {
	n, ok := s.nodes[id.Digest()]
	return n, ok, nil
}

func (s *MemNodeStore) WriteNode(id merkle.NodeID, n *merkle.MerkleNode) error {
	s.nodes[id.Digest()] = n
	return nil
}

func (s *MemNodeStore) Root() (*merkle.NodeID, error) { return s.root, nil }

func (s *MemNodeStore) SetRoot(id *merkle.NodeID) error {
	s.root = id
	return nil
}

func (s *MemNodeStore) ApplyChanges(apply merkle.Apply) error {
	for _, n := range apply.Nodes {
		if err := s.WriteNode(n.ID, n.Node); err != nil {
			return err
		}
	}
	return s.SetRoot(apply.RootID)
}

// dialect distinguishes the two interchangeable SQL-backed node
// stores: they share every query's shape, differing only in
// placeholder syntax and the upsert clause.
type dialect int

const (
	dialectMySQL dialect = iota
	dialectPostgres
)

// SQLNodeStore is a NodeStore backed by an ordinary SQL table,
// usable with either MySQL or Postgres.
type SQLNodeStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenMySQLNodeStore opens (and migrates) a MySQL-backed NodeStore.
func OpenMySQLNodeStore(dsn string) (*SQLNodeStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("server: opening mysql node store: %w", err)
	}
	s := &SQLNodeStore{db: db, dialect: dialectMySQL}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenPostgresNodeStore opens (and migrates) a Postgres-backed NodeStore.
func OpenPostgresNodeStore(dsn string) (*SQLNodeStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("server: opening postgres node store: %w", err)
	}
	s := &SQLNodeStore{db: db, dialect: dialectPostgres}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLNodeStore) ensureSchema() error {
	nodesDDL := `CREATE TABLE IF NOT EXISTS merkle_nodes (id_digest VARBINARY(32) PRIMARY KEY, hash VARBINARY(32) NOT NULL)`
	paramDDL := `CREATE TABLE IF NOT EXISTS merkle_param (id INT PRIMARY KEY, height BIGINT NOT NULL, width BIGINT NOT NULL)`
	if s.dialect == dialectPostgres {
		nodesDDL = `CREATE TABLE IF NOT EXISTS merkle_nodes (id_digest BYTEA PRIMARY KEY, hash BYTEA NOT NULL)`
	}
	if _, err := s.db.Exec(nodesDDL); err != nil {
		return fmt.Errorf("server: creating node table: %w", err)
	}
	if _, err := s.db.Exec(paramDDL); err != nil {
		return fmt.Errorf("server: creating param table: %w", err)
	}
	return nil
}

func (s *SQLNodeStore) ph(n int) string {
	if s.dialect == dialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLNodeStore) LoadNode(id merkle.NodeID) (*merkle.MerkleNode, bool, error) {
	key := id.Digest()
	query := fmt.Sprintf("SELECT hash FROM merkle_nodes WHERE id_digest = %s", s.ph(1))
	var hashBytes []byte
	err := s.db.QueryRow(query, key[:]).Scan(&hashBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("server: loading node %v: %w", id, err)
	}
	return &merkle.MerkleNode{Hash: digest.FromBytes(hashBytes)}, true, nil
}

func (s *SQLNodeStore) writeNodeTx(x execer, id merkle.NodeID, n *merkle.MerkleNode) error {
	key := id.Digest()
	var query string
	if s.dialect == dialectPostgres {
		query = fmt.Sprintf("INSERT INTO merkle_nodes (id_digest, hash) VALUES (%s, %s) ON CONFLICT (id_digest) DO UPDATE SET hash = EXCLUDED.hash", s.ph(1), s.ph(2))
	} else {
		query = "INSERT INTO merkle_nodes (id_digest, hash) VALUES (?, ?) ON DUPLICATE KEY UPDATE hash = VALUES(hash)"
	}
	if _, err := x.Exec(query, key[:], n.Hash.Bytes()); err != nil {
		return fmt.Errorf("server: writing node %v: %w", id, err)
	}
	return nil
}

func (s *SQLNodeStore) WriteNode(id merkle.NodeID, n *merkle.MerkleNode) error {
	return s.writeNodeTx(s.db, id, n)
}

func (s *SQLNodeStore) setRootTx(x execer, id *merkle.NodeID) error {
	var height, width int64
	if id != nil {
		height, width = int64(id.Height), int64(id.Width)
	}
	var query string
	if s.dialect == dialectPostgres {
		query = fmt.Sprintf("INSERT INTO merkle_param (id, height, width) VALUES (0, %s, %s) ON CONFLICT (id) DO UPDATE SET height = EXCLUDED.height, width = EXCLUDED.width", s.ph(1), s.ph(2))
	} else {
		query = "INSERT INTO merkle_param (id, height, width) VALUES (0, ?, ?) ON DUPLICATE KEY UPDATE height = VALUES(height), width = VALUES(width)"
	}
	if _, err := x.Exec(query, height, width); err != nil {
		return fmt.Errorf("server: writing root: %w", err)
	}
	return nil
}

func (s *SQLNodeStore) SetRoot(id *merkle.NodeID) error {
	return s.setRootTx(s.db, id)
}

func (s *SQLNodeStore) Root() (*merkle.NodeID, error) {
	query := fmt.Sprintf("SELECT height, width FROM merkle_param WHERE id = %s", s.ph(1))
	var height, width int64
	err := s.db.QueryRow(query, 0).Scan(&height, &width)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("server: loading root: %w", err)
	}
	id := merkle.NodeID{Height: uint32(height), Width: uint32(width)}
	return &id, nil
}

// ApplyChanges persists an entire write-context batch inside a single
// transaction: every touched node, then the new root.
func (s *SQLNodeStore) ApplyChanges(apply merkle.Apply) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("server: beginning transaction: %w", err)
	}
	for _, n := range apply.Nodes {
		if err := s.writeNodeTx(tx, n.ID, n.Node); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := s.setRootTx(tx, apply.RootID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLNodeStore) Close() error { return s.db.Close() }

// execer is the subset of *sql.DB/*sql.Tx that writeNodeTx/setRootTx need.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}
