// Package config parses and validates the small set of options every
// vsqldb binary shares: the client cache budget and variant, the VBF
// sizing, and the workload path, mirroring Trillian's cmd/ binaries'
// flag-based configuration style.
package config

import (
	"flag"
	"fmt"
	"strings"

	"github.com/go-redis/redis"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/vtree/vsqldb/pkg/authority"
	"github.com/vtree/vsqldb/pkg/cache"
	"github.com/vtree/vsqldb/pkg/digest"
	"github.com/vtree/vsqldb/pkg/page"
	"github.com/vtree/vsqldb/pkg/vbf"
)

// OptLevel selects a client cache variant. The names and the mapping
// onto pkg/cache constructors follow a five-member Type enum (None,
// Intra, Both, BothBloom, SimpleBloom), finer-grained than the three
// cache variants named elsewhere.
type OptLevel int

const (
	OptNone OptLevel = iota
	OptIntra
	OptConfirmation
	OptVersionFilter
	OptSimpleVersionFilter
)

func (o OptLevel) String() string {
	switch o {
	case OptNone:
		return "none"
	case OptIntra:
		return "intra"
	case OptConfirmation:
		return "confirmation"
	case OptVersionFilter:
		return "version-filter"
	case OptSimpleVersionFilter:
		return "simple-version-filter"
	default:
		return fmt.Sprintf("OptLevel(%d)", int(o))
	}
}

// ErrUnknownOptLevel reports an unrecognized opt_level, a
// configuration error fatal before a session starts.
type ErrUnknownOptLevel struct{ Got string }

func (e *ErrUnknownOptLevel) Error() string {
	return fmt.Sprintf("config: unknown opt_level %q (want one of: none, intra, confirmation, version-filter, simple-version-filter)", e.Got)
}

// ParseOptLevel maps a flag string onto an OptLevel.
func ParseOptLevel(s string) (OptLevel, error) {
	switch s {
	case "none":
		return OptNone, nil
	case "intra":
		return OptIntra, nil
	case "confirmation":
		return OptConfirmation, nil
	case "version-filter":
		return OptVersionFilter, nil
	case "simple-version-filter":
		return OptSimpleVersionFilter, nil
	default:
		return 0, &ErrUnknownOptLevel{Got: s}
	}
}

// bytesPerEntryEstimate approximates a cache entry's footprint (a
// leaf carries a full page, an interior node carries only its hash)
// for turning a megabyte budget into an LRU node-count capacity. It
// is deliberately rough: there is no calibration procedure for this
// conversion, only the megabyte budget itself.
const bytesPerEntryEstimate = page.Size + digest.Size

// NewCache builds the Cache variant o names, sized to fit
// approximately cacheSizeInMB megabytes.
func (o OptLevel) NewCache(cacheSizeInMB int) cache.Cache {
	capacity := (cacheSizeInMB * 1 << 20) / bytesPerEntryEstimate
	if capacity < 1 {
		capacity = 1
	}
	switch o {
	case OptNone:
		return cache.NoCache{}
	case OptIntra:
		return cache.NewIntraStatementCache(capacity)
	case OptConfirmation:
		return cache.NewConfirmationCache(capacity)
	case OptVersionFilter:
		return cache.NewVersionFilterCache(capacity, false)
	case OptSimpleVersionFilter:
		return cache.NewVersionFilterCache(capacity, true)
	default:
		return cache.NoCache{}
	}
}

// Config is the option set every binary recognizes. Only the options
// relevant to a given binary need be non-zero; each cmd/ main wires
// the subset it uses.
type Config struct {
	CacheSizeInMB int
	OptLevelName  string
	OptLevel      OptLevel
	MapSize       int
	HashNum       uint
	WorkloadPath  string

	// ServerAddr and PageFilePath are transport/storage addressing,
	// not cache or VBF tuning, but every binary still needs some way to
	// locate its server or its page file; they are ordinary flags
	// alongside the rest.
	ServerAddr   string
	PageFilePath string
	ParamPath    string

	// RedisAddr and RedisSnapshotKey configure the optional shared VBF
	// snapshot transport (pkg/vbf.RedisSnapshotStore). RedisAddr empty
	// means no snapshot store is used; the server starts from a fresh
	// filter and publishes no snapshots.
	RedisAddr        string
	RedisSnapshotKey string

	// EtcdEndpoints selects the Parameter publisher: non-empty uses
	// authority.EtcdPublisher (shared across server processes),
	// empty falls back to authority.FilePublisher against ParamPath.
	EtcdEndpoints string
	EtcdKey       string
}

// RegisterFlags binds fs to a Config being filled in. Callers call fs.Parse
// themselves (so binaries can control the argument slice, e.g. in tests).
func RegisterFlags(fs *flag.FlagSet) *Config {
	c := &Config{}
	fs.IntVar(&c.CacheSizeInMB, "cache_size_in_mb", 64, "total client cache budget in megabytes")
	fs.StringVar(&c.OptLevelName, "opt_level", "version-filter", "cache variant: none, intra, confirmation, version-filter, simple-version-filter")
	fs.IntVar(&c.MapSize, "map_size", vbf.DefaultMapSize, "version bloom filter slot count (m)")
	fs.UintVar(&c.HashNum, "hash_num", uint(vbf.DefaultHashNum), "version bloom filter hash count (k)")
	fs.StringVar(&c.WorkloadPath, "workload_path", "", "path to a file of ;-separated READ/WRITE workload statements")
	fs.StringVar(&c.ServerAddr, "server_addr", "localhost:7070", "server address to dial or listen on")
	fs.StringVar(&c.PageFilePath, "page_file", "", "path to the authoritative page file")
	fs.StringVar(&c.ParamPath, "param_file", "", "path to the published Parameter JSON file")
	fs.StringVar(&c.RedisAddr, "redis_addr", "", "optional redis address for a shared VBF snapshot (empty disables it)")
	fs.StringVar(&c.RedisSnapshotKey, "redis_snapshot_key", "vsqldb:vbf:snapshot", "redis key the shared VBF snapshot is stored under")
	fs.StringVar(&c.EtcdEndpoints, "etcd_endpoints", "", "comma-separated etcd endpoints for the Parameter publisher (empty uses -param_file instead)")
	fs.StringVar(&c.EtcdKey, "etcd_key", "vsqldb/param", "etcd key the Parameter record is stored under")
	return c
}

// Validate resolves OptLevelName into OptLevel and checks every
// option for a configuration error: bad opt_level, non-positive
// sizes. It must run once after fs.Parse.
func (c *Config) Validate() error {
	lvl, err := ParseOptLevel(c.OptLevelName)
	if err != nil {
		return err
	}
	c.OptLevel = lvl
	if c.CacheSizeInMB <= 0 {
		return fmt.Errorf("config: cache_size_in_mb must be positive, got %d", c.CacheSizeInMB)
	}
	if c.MapSize <= 0 {
		return fmt.Errorf("config: map_size must be positive, got %d", c.MapSize)
	}
	if c.HashNum == 0 {
		return fmt.Errorf("config: hash_num must be positive, got %d", c.HashNum)
	}
	return nil
}

// NewVBF constructs the version bloom filter from c's map_size/hash_num.
func (c *Config) NewVBF() *vbf.Filter {
	return vbf.New(c.MapSize, uint32(c.HashNum))
}

// NewPublisher returns the authority.Publisher c names: an
// EtcdPublisher if EtcdEndpoints is set, otherwise a FilePublisher
// against ParamPath.
func (c *Config) NewPublisher() (authority.Publisher, error) {
	if c.EtcdEndpoints == "" {
		return authority.NewFilePublisher(c.ParamPath), nil
	}
	client, err := clientv3.New(clientv3.Config{Endpoints: strings.Split(c.EtcdEndpoints, ",")})
	if err != nil {
		return nil, fmt.Errorf("config: dialing etcd: %w", err)
	}
	return authority.NewEtcdPublisher(client, c.EtcdKey), nil
}

// NewRedisSnapshotStore returns a RedisSnapshotStore against
// c.RedisAddr, or nil if c.RedisAddr is empty (the snapshot transport
// is entirely optional, per SPEC_FULL.md's domain stack table).
func (c *Config) NewRedisSnapshotStore() *vbf.RedisSnapshotStore {
	if c.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	return vbf.NewRedisSnapshotStore(client, c.RedisSnapshotKey)
}
