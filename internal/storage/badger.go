package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")
)

// BadgerEngine implements KVEngine using Badger v3.
type BadgerEngine struct {
	db       *badger.DB
	cfg      BadgerConfig
	inMemory bool
	logger   *slog.Logger

	lastGCTime atomic.Int64
	closed     atomic.Bool

	metricsTotalSize  prometheus.Gauge
	metricsLastGCTime prometheus.Gauge

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewBadgerEngine opens a Badger-based KV engine.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.Logger = &badgerLogger{logger: logger}

	bc := cfg.Badger
	if bc.CacheSize > 0 {
		opts.BlockCacheSize = bc.CacheSize
	}
	if bc.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = bc.ValueLogFileSize
	}
	opts.SyncWrites = bc.SyncWrites && !cfg.InMemory

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	e := &BadgerEngine{
		db:       db,
		cfg:      bc,
		inMemory: cfg.InMemory,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	if !cfg.InMemory && bc.GCInterval > 0 {
		e.wg.Add(1)
		go e.gcLoop(bc.GCInterval)
	}

	logger.Info("badger engine started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", bc.GCInterval)

	return e, nil
}

// Get retrieves a value by key.
func (e *BadgerEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a key-value pair.
func (e *BadgerEngine) Set(ctx context.Context, key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes a key.
func (e *BadgerEngine) Delete(ctx context.Context, key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Scan iterates over keys with a given prefix.
func (e *BadgerEngine) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !fn(item.KeyCopy(nil), value) {
				break
			}
		}
		return nil
	})
}

// GC rewrites value log files until Badger reports nothing left to reclaim.
// The returned byte count is an estimate; Badger does not report it.
func (e *BadgerEngine) GC(ctx context.Context) (uint64, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	if e.inMemory {
		return 0, nil
	}
	start := time.Now()

	var reclaimed uint64
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return reclaimed, fmt.Errorf("gc: %w", err)
		}
		reclaimed += uint64(e.cfg.ValueLogFileSize / 2)
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.logger.Debug("gc completed",
		"bytes_reclaimed", reclaimed,
		"elapsed", time.Since(start))

	return reclaimed, nil
}

// Stats returns storage statistics.
func (e *BadgerEngine) Stats(ctx context.Context) (*KVStats, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	lsm, vlog := e.db.Size()
	return &KVStats{
		TotalSize:    uint64(lsm + vlog),
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   e.lastGCTime.Load(),
	}, nil
}

// Close gracefully shuts down the Badger engine. It is safe to call twice.
func (e *BadgerEngine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.stopCh)
		e.wg.Wait()
		if cerr := e.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
		}
		e.logger.Info("badger engine closed")
	})
	return err
}

// RegisterMetrics registers size and GC gauges with registry and starts
// refreshing them.
func (e *BadgerEngine) RegisterMetrics(registry prometheus.Registerer) *BadgerEngine {
	e.metricsTotalSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shellkeep",
		Subsystem: "kv",
		Name:      "size_bytes",
		Help:      "Badger total storage size in bytes (LSM + value log)",
	})
	e.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shellkeep",
		Subsystem: "kv",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger value log GC",
	})
	registry.MustRegister(e.metricsTotalSize, e.metricsLastGCTime)

	e.wg.Add(1)
	go e.metricsLoop()
	return e
}

func (e *BadgerEngine) metricsLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := e.Stats(context.Background())
			if err != nil {
				continue
			}
			e.metricsTotalSize.Set(float64(stats.TotalSize))
			if stats.LastGCTime > 0 {
				e.metricsLastGCTime.Set(float64(stats.LastGCTime) / 1000.0)
			}
		case <-e.stopCh:
			return
		}
	}
}

func (e *BadgerEngine) gcLoop(interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()
		case <-e.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
// Badger's info chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
