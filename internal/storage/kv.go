package storage

import (
	"context"
	"time"
)

// KVEngine is the embedded key-value store behind the durable parts of
// shellkeep: the transactional snapshot backend on the page side, and the
// agent's sync queue, badge counter and state slot.
//
// Implementations must be safe for concurrent use and durable across
// process restarts (unless configured in-memory). Every write replaces the
// whole value stored under a key.
type KVEngine interface {
	// Get retrieves a value by key.
	// Returns ErrKeyNotFound if key doesn't exist.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores a key-value pair.
	Set(ctx context.Context, key, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan iterates over keys with a given prefix in byte order.
	// Callback returns false to stop iteration.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	// GC reclaims space held by overwritten values.
	GC(ctx context.Context) (uint64, error)

	// Stats returns storage statistics.
	Stats(ctx context.Context) (*KVStats, error)

	// Close gracefully shuts down the engine.
	Close() error
}

// KVStats contains storage engine statistics.
type KVStats struct {
	// TotalSize is the total disk usage in bytes.
	TotalSize uint64

	// LSMSize is the LSM tree size.
	LSMSize uint64

	// ValueLogSize is the value log size.
	ValueLogSize uint64

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64
}

// KVConfig configures an embedded KV engine.
type KVConfig struct {
	// Dir is the storage directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory; used by tests and by hosts
	// without a writable data directory.
	InMemory bool

	Badger BadgerConfig
}

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between automatic value log GC runs.
	GCInterval time.Duration

	// GCThreshold is the discard ratio above which a value log file is rewritten.
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	ValueLogFileSize int64

	// SyncWrites fsyncs after each write.
	SyncWrites bool
}

// DefaultKVConfig returns the default KV configuration for dir.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
	}
}

// InMemoryKVConfig returns a configuration for a throwaway in-memory store.
func InMemoryKVConfig() KVConfig {
	cfg := DefaultKVConfig("")
	cfg.InMemory = true
	return cfg
}

// DefaultBadgerConfig returns the default Badger configuration.
// Records are small and rare, so the caches are sized well below
// Badger's server defaults.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        8 << 20,
		ValueLogFileSize: 64 << 20,
		SyncWrites:       true,
	}
}
