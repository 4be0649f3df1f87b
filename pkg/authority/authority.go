// Package authority publishes and loads the Parameter record: the
// single source of truth for the currently committed root. It also
// provides the session-local clock that replaces the reference
// implementation's process-global VBF timestamp.
package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/merkle"
)

// Parameter is the small persisted record that fully defines the
// committed state: the current root id, or nil for an empty tree, and
// that root's content hash. RootHash is what a client without node
// store access (the client-server deployment) trusts directly; RootID
// is what a server with node store access uses to re-open a
// ReadContext or WriteContext at that root.
type Parameter struct {
	RootID   *merkle.NodeID `json:"root_id,omitempty"`
	RootHash digest.Digest  `json:"root_hash,omitempty"`
}

// Publisher loads and publishes Parameter records. Implementations
// must make Publish visible to every subsequent Load from any
// process: it is the only channel through which a committed write
// becomes visible across sessions.
type Publisher interface {
	Load(ctx context.Context) (Parameter, error)
	Publish(ctx context.Context, p Parameter) error
}

// FilePublisher stores the Parameter as JSON under a directory,
// mirroring the reference implementation's param.json.
type FilePublisher struct {
	mu   sync.Mutex
	path string
}

// NewFilePublisher returns a FilePublisher backed by the JSON file at
// path (created on first Publish if absent).
func NewFilePublisher(path string) *FilePublisher {
	return &FilePublisher{path: path}
}

func (f *FilePublisher) Load(ctx context.Context) (Parameter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Parameter{}, nil
	}
	if err != nil {
		return Parameter{}, fmt.Errorf("authority: reading %s: %w", f.path, err)
	}
	var p Parameter
	if err := json.Unmarshal(b, &p); err != nil {
		return Parameter{}, fmt.Errorf("authority: decoding %s: %w", f.path, err)
	}
	return p, nil
}

// Publish writes p to a temp file in the same directory and renames
// it over the target, so a reader never observes a half-written
// Parameter.
func (f *FilePublisher) Publish(ctx context.Context, p Parameter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("authority: encoding parameter: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("authority: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("authority: publishing %s: %w", f.path, err)
	}
	return nil
}

// EtcdPublisher stores the Parameter under a single etcd key, for
// deployments where more than one server process must observe the
// same trusted root.
type EtcdPublisher struct {
	client *clientv3.Client
	key    string
}

// NewEtcdPublisher returns an EtcdPublisher using client, storing the
// Parameter's JSON encoding at key.
func NewEtcdPublisher(client *clientv3.Client, key string) *EtcdPublisher {
	return &EtcdPublisher{client: client, key: key}
}

func (e *EtcdPublisher) Load(ctx context.Context) (Parameter, error) {
	resp, err := e.client.Get(ctx, e.key)
	if err != nil {
		return Parameter{}, fmt.Errorf("authority: etcd get %s: %w", e.key, err)
	}
	if len(resp.Kvs) == 0 {
		return Parameter{}, nil
	}
	var p Parameter
	if err := json.Unmarshal(resp.Kvs[0].Value, &p); err != nil {
		return Parameter{}, fmt.Errorf("authority: decoding etcd value for %s: %w", e.key, err)
	}
	return p, nil
}

func (e *EtcdPublisher) Publish(ctx context.Context, p Parameter) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("authority: encoding parameter: %w", err)
	}
	if _, err := e.client.Put(ctx, e.key, string(b)); err != nil {
		return fmt.Errorf("authority: etcd put %s: %w", e.key, err)
	}
	return nil
}

// Clock is an explicit monotonic counter, replacing the reference
// implementation's package-global GLOBAL_TS with a value its owner
// passes around, seeded at 1 (GLOBAL_TS's initial value).
// vsqldb-server creates one Clock and shares it across all of its
// sessions, so Next advances it atomically.
type Clock struct {
	ts uint32
}

// NewClock returns a Clock starting at 1.
func NewClock() *Clock {
	return &Clock{ts: 1}
}

// Next returns the current timestamp and then advances the clock
// (use-then-increment).
func (c *Clock) Next() uint32 {
	return atomic.AddUint32(&c.ts, 1) - 1
}
