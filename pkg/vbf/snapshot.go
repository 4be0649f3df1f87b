package vbf

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/go-redis/redis"
)

// SnapshotStore publishes and loads a Filter's full state (seeds plus
// slots) so a server process can start from a previously published
// version bloom filter instead of a fresh one (vsqldb-server loads it
// at start and republishes it periodically).
// RedisSnapshotStore is the only implementation; it exists purely as
// a shared cache, never as the filter's source of truth (that remains
// whichever process runs the trusted writer).
type SnapshotStore interface {
	Publish(ctx context.Context, f *Filter) error
	Load(ctx context.Context, mapSize int, hashNum uint32) (*Filter, error)
}

// RedisSnapshotStore stores one Filter snapshot under a single redis
// key, encoded as seed1, seed2, then mapSize big-endian uint32 slots.
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
}

// NewRedisSnapshotStore returns a RedisSnapshotStore using client,
// storing the snapshot at key.
func NewRedisSnapshotStore(client *redis.Client, key string) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, key: key}
}

// Publish encodes f's seeds and slots and writes them to the shared
// key, overwriting any prior snapshot.
func (r *RedisSnapshotStore) Publish(ctx context.Context, f *Filter) error {
	slots := f.Slots()
	buf := make([]byte, 16+4*len(slots))
	binary.BigEndian.PutUint64(buf[0:8], f.seed1)
	binary.BigEndian.PutUint64(buf[8:16], f.seed2)
	for i, v := range slots {
		binary.BigEndian.PutUint32(buf[16+4*i:20+4*i], v)
	}
	if err := r.client.WithContext(ctx).Set(r.key, buf, 0).Err(); err != nil {
		return fmt.Errorf("vbf: publishing snapshot to redis: %w", err)
	}
	return nil
}

// Load fetches the shared snapshot and reconstructs a Filter from it,
// sized to mapSize/hashNum: the caller must already know these (they
// come from its own configuration, not the snapshot), since they
// aren't encoded redundantly in the payload.
func (r *RedisSnapshotStore) Load(ctx context.Context, mapSize int, hashNum uint32) (*Filter, error) {
	buf, err := r.client.WithContext(ctx).Get(r.key).Bytes()
	if err == redis.Nil {
		return New(mapSize, hashNum), nil
	}
	if err != nil {
		return nil, fmt.Errorf("vbf: loading snapshot from redis: %w", err)
	}
	if len(buf) != 16+4*mapSize {
		return nil, fmt.Errorf("vbf: snapshot has %d bytes, want %d for mapSize %d", len(buf), 16+4*mapSize, mapSize)
	}
	seed1 := binary.BigEndian.Uint64(buf[0:8])
	seed2 := binary.BigEndian.Uint64(buf[8:16])
	f := NewWithSeeds(mapSize, hashNum, seed1, seed2)
	slots := make([]uint32, mapSize)
	for i := range slots {
		slots[i] = binary.BigEndian.Uint32(buf[16+4*i : 20+4*i])
	}
	if err := f.LoadSlots(slots); err != nil {
		return nil, err
	}
	return f, nil
}
