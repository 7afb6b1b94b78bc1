package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spaolacci/murmur3"
	_ "modernc.org/sqlite"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS caches (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	cache_name TEXT NOT NULL REFERENCES caches(name) ON DELETE CASCADE,
	key        TEXT NOT NULL,
	url        TEXT NOT NULL,
	method     TEXT NOT NULL,
	status     INTEGER NOT NULL,
	header     TEXT NOT NULL,
	body       BLOB,
	stored_at  INTEGER NOT NULL,
	UNIQUE (cache_name, key)
);
CREATE INDEX IF NOT EXISTS idx_entries_cache_seq ON entries (cache_name, seq);
`

// Entry is one cached response.
type Entry struct {
	CacheName string
	Key       string
	URL       string
	Method    string
	Status    int
	Header    http.Header
	Body      []byte
	StoredAt  time.Time
	Seq       int64
}

// Store is the SQLite-backed set of named caches.
type Store struct {
	db     *sql.DB
	clock  func() time.Time
	logger *slog.Logger
}

// OpenStore opens or creates the cache database at path. ":memory:" gives
// a private in-memory database.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("cache: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", storeDSN(path))
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	// One connection that is never recycled: an in-memory database lives
	// only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: schema: %w", err)
	}

	return &Store{db: db, clock: time.Now, logger: logger.With("component", "cache")}, nil
}

// storeDSN applies the pragmas on every connection the driver opens, so
// ON DELETE CASCADE holds even if the pool reconnects.
func storeDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)", path)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Open returns the named cache, creating it if needed.
func (s *Store) Open(ctx context.Context, name string) (*Cache, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO caches (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, s.clock().UnixMilli())
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	c := &Cache{store: s, name: name}
	if cls, ok := ClassByName(name); ok {
		c.class = &cls
	}
	return c, nil
}

// CacheNames lists every cache in creation order.
func (s *Store) CacheNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM caches ORDER BY created_at, name`)
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, domain.ErrStorage.WithCause(err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// DeleteCache drops a cache and all its entries. It reports whether the
// cache existed.
func (s *Store) DeleteCache(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, domain.ErrStorage.WithCause(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RequestKey derives the identity of a request from its method, URL and
// Accept header.
func RequestKey(method, url, accept string) string {
	h1, h2 := murmur3.Sum128([]byte(method + " " + url + "\n" + accept))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// KeyFor returns RequestKey for r.
func KeyFor(r *http.Request) string {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	return RequestKey(method, r.URL.String(), r.Header.Get("Accept"))
}

// Cache is one named cache.
type Cache struct {
	store *Store
	name  string
	class *Class
}

// Name returns the cache name.
func (c *Cache) Name() string { return c.name }

// Put stores a response for r, replacing any previous one, and evicts the
// oldest entries beyond the class ceiling.
func (c *Cache) Put(ctx context.Context, r *http.Request, status int, header http.Header, body []byte) error {
	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	key := KeyFor(r)
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE cache_name = ? AND key = ?`, c.name, key); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries (cache_name, key, url, method, status, header, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.name, key, r.URL.String(), method, status, string(hdr), body, c.store.clock().UnixMilli())
	if err != nil {
		return domain.ErrStorage.WithCause(err)
	}

	if c.class != nil {
		if _, err := trimOldest(ctx, tx, c.name, c.class.MaxEntries); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}

// Match returns the stored response for r or domain.ErrCacheMiss.
func (c *Cache) Match(ctx context.Context, r *http.Request) (*Entry, error) {
	row := c.store.db.QueryRowContext(ctx,
		`SELECT seq, key, url, method, status, header, body, stored_at
		 FROM entries WHERE cache_name = ? AND key = ?`, c.name, KeyFor(r))

	e := Entry{CacheName: c.name}
	var hdr string
	var stored int64
	err := row.Scan(&e.Seq, &e.Key, &e.URL, &e.Method, &e.Status, &hdr, &e.Body, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	if err := json.Unmarshal([]byte(hdr), &e.Header); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	e.StoredAt = time.UnixMilli(stored)
	return &e, nil
}

// Delete removes the entry for r and reports whether one existed.
func (c *Cache) Delete(ctx context.Context, r *http.Request) (bool, error) {
	res, err := c.store.db.ExecContext(ctx,
		`DELETE FROM entries WHERE cache_name = ? AND key = ?`, c.name, KeyFor(r))
	if err != nil {
		return false, domain.ErrStorage.WithCause(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Keys lists entries oldest first, without bodies.
func (c *Cache) Keys(ctx context.Context) ([]Entry, error) {
	rows, err := c.store.db.QueryContext(ctx,
		`SELECT seq, key, url, method, status, stored_at FROM entries
		 WHERE cache_name = ? ORDER BY seq ASC`, c.name)
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{CacheName: c.name}
		var stored int64
		if err := rows.Scan(&e.Seq, &e.Key, &e.URL, &e.Method, &e.Status, &stored); err != nil {
			return nil, domain.ErrStorage.WithCause(err)
		}
		e.StoredAt = time.UnixMilli(stored)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Len returns the number of entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE cache_name = ?`, c.name).Scan(&n)
	if err != nil {
		return 0, domain.ErrStorage.WithCause(err)
	}
	return n, nil
}

// Size returns the total body size in bytes.
func (c *Cache) Size(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	err := c.store.db.QueryRowContext(ctx,
		`SELECT SUM(LENGTH(body)) FROM entries WHERE cache_name = ?`, c.name).Scan(&n)
	if err != nil {
		return 0, domain.ErrStorage.WithCause(err)
	}
	return n.Int64, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// trimOldest deletes the oldest entries of name beyond max.
func trimOldest(ctx context.Context, db execer, name string, max int) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE cache_name = ?`, name).Scan(&count); err != nil {
		return 0, domain.ErrStorage.WithCause(err)
	}
	excess := count - max
	if max <= 0 || excess <= 0 {
		return 0, nil
	}
	_, err := db.ExecContext(ctx,
		`DELETE FROM entries WHERE seq IN (
			SELECT seq FROM entries WHERE cache_name = ? ORDER BY seq ASC LIMIT ?)`,
		name, excess)
	if err != nil {
		return 0, domain.ErrStorage.WithCause(err)
	}
	return excess, nil
}

// expire deletes entries of name stored before cutoff.
func expire(ctx context.Context, db execer, name string, cutoff time.Time) (int, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM entries WHERE cache_name = ? AND stored_at < ?`, name, cutoff.UnixMilli())
	if err != nil {
		return 0, domain.ErrStorage.WithCause(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Info is the size report broadcast to pages.
type Info struct {
	CacheSizes  map[string]int64 `json:"cacheSizes"`
	TotalSize   int64            `json:"totalSize"`
	TotalSizeMB string           `json:"totalSizeMB"`
}

// Info measures every class cache.
func (s *Store) Info(ctx context.Context) (*Info, error) {
	info := &Info{CacheSizes: make(map[string]int64)}
	for _, cls := range Classes() {
		var n sql.NullInt64
		err := s.db.QueryRowContext(ctx,
			`SELECT SUM(LENGTH(body)) FROM entries WHERE cache_name = ?`, cls.Name()).Scan(&n)
		if err != nil {
			return nil, domain.ErrStorage.WithCause(err)
		}
		info.CacheSizes[cls.Key] = n.Int64
		info.TotalSize += n.Int64
	}
	info.TotalSizeMB = strconv.FormatFloat(float64(info.TotalSize)/1024/1024, 'f', 2, 64)
	return info, nil
}

// ActivationReport summarizes one activation pass.
type ActivationReport struct {
	DeletedCaches []string       `json:"deleted_caches,omitempty"`
	Evicted       map[string]int `json:"evicted,omitempty"`
	Expired       map[string]int `json:"expired,omitempty"`
	Info          *Info          `json:"cache_info"`
}

// Activate drops caches outside the whitelist, enforces the entry ceiling
// and max age of every class, and measures the result.
func (s *Store) Activate(ctx context.Context) (*ActivationReport, error) {
	report := &ActivationReport{Evicted: map[string]int{}, Expired: map[string]int{}}

	names, err := s.CacheNames(ctx)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool)
	for _, n := range Whitelist() {
		keep[n] = true
	}
	for _, n := range names {
		if keep[n] {
			continue
		}
		if _, err := s.DeleteCache(ctx, n); err != nil {
			return nil, err
		}
		s.logger.Info("deleted outdated cache", "cache", n)
		report.DeletedCaches = append(report.DeletedCaches, n)
	}

	now := s.clock()
	for _, cls := range Classes() {
		expired, err := expire(ctx, s.db, cls.Name(), now.Add(-cls.MaxAge))
		if err != nil {
			return nil, err
		}
		evicted, err := trimOldest(ctx, s.db, cls.Name(), cls.MaxEntries)
		if err != nil {
			return nil, err
		}
		if expired > 0 {
			report.Expired[cls.Key] = expired
		}
		if evicted > 0 {
			report.Evicted[cls.Key] = evicted
			s.logger.Info("trimmed cache", "cache", cls.Name(), "evicted", evicted)
		}
	}

	if report.Info, err = s.Info(ctx); err != nil {
		return nil, err
	}
	return report, nil
}
