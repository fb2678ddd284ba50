package backend

import (
	"context"
	"fmt"
	"path/filepath"
)

// Drivers lists the supported backend names.
var Drivers = []string{"redis", "bbolt", "sqlite", "json", "memory"}

// Options selects and configures a backend.
type Options struct {
	Driver  string
	DataDir string
	Redis   RedisOptions
}

// New creates a Backend based on the driver name.
//
// Supported drivers:
//
//	"redis"  - Redis server at Redis.Addr (default)
//	"bbolt"  - bbolt database at DataDir/records.db
//	"sqlite" - SQLite database at DataDir/records.sqlite
//	"json"   - JSON file at DataDir/kv.json
//	"memory" - In-memory (ephemeral, for testing)
func New(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case "redis", "":
		return NewRedisBackend(ctx, opts.Redis)
	case "bbolt":
		return NewBBoltBackend(filepath.Join(opts.DataDir, "records.db"))
	case "sqlite":
		return NewSqliteBackend(filepath.Join(opts.DataDir, "records.sqlite"))
	case "json":
		return NewJsonFileBackend(opts.DataDir)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend driver: %q (supported: %v)", opts.Driver, Drivers)
	}
}
