package climate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/resilience"
)

// Chain asks Remote first and falls back to Local. A remote
// ExternalServiceError becomes a warning on the returned record.
type Chain struct {
	Remote Service
	Local  Service
	Logger *slog.Logger
}

// Lookup implements Service.
func (c *Chain) Lookup(ctx context.Context, zip string) (Record, error) {
	if c.Remote == nil {
		return c.Local.Lookup(ctx, zip)
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var remoteErr error
	remote := func(ctx context.Context) (Record, error) {
		rec, err := c.Remote.Lookup(ctx, zip)
		remoteErr = err
		return rec, err
	}
	local := func(ctx context.Context) (Record, error) {
		rec, err := c.Local.Lookup(ctx, zip)
		if err != nil {
			if IsUnknownZIP(remoteErr) && IsUnknownZIP(err) {
				return Record{}, err
			}
			return Record{}, errors.Join(remoteErr, err)
		}
		var ext *blueprint.ExternalServiceError
		if errors.As(remoteErr, &ext) {
			rec.Warnings = append(append([]string(nil), rec.Warnings...),
				fmt.Sprintf("remote climate service failed after %d attempt(s); used local dataset", ext.Attempts))
		}
		return rec, nil
	}
	return resilience.Do(ctx, remote,
		resilience.WithFallback[Record](local, "climate", logger.With("zip", zip)))
}

// CacheSchema creates the climate cache table.
const CacheSchema = `
CREATE TABLE IF NOT EXISTS climate_cache (
	zip        TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	fetched_at INTEGER NOT NULL
);`

// Cache is a read-through SQLite cache in front of another Service. Misses
// (ErrUnknownZIP) are not cached.
type Cache struct {
	db     *sql.DB
	next   Service
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL expires entries older than d. Zero keeps entries forever.
func WithTTL(d time.Duration) CacheOption { return func(c *Cache) { c.ttl = d } }

// WithClock injects a clock (tests).
func WithClock(fn func() time.Time) CacheOption { return func(c *Cache) { c.now = fn } }

// WithLogger sets the logger for cache write failures. Default: slog.Default().
func WithLogger(l *slog.Logger) CacheOption { return func(c *Cache) { c.logger = l } }

// NewCache creates the cache table if needed.
func NewCache(db *sql.DB, next Service, opts ...CacheOption) (*Cache, error) {
	if _, err := db.Exec(CacheSchema); err != nil {
		return nil, fmt.Errorf("climate: cache schema: %w", err)
	}
	c := &Cache{db: db, next: next, ttl: 30 * 24 * time.Hour, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Lookup implements Service.
func (c *Cache) Lookup(ctx context.Context, zip string) (Record, error) {
	zip, err := NormalizeZIP(zip)
	if err != nil {
		return Record{}, err
	}
	if rec, ok := c.get(ctx, zip); ok {
		return rec, nil
	}
	rec, err := c.next.Lookup(ctx, zip)
	if err != nil {
		return Record{}, err
	}
	if err := c.put(ctx, zip, rec); err != nil {
		c.logger.WarnContext(ctx, "climate: cache write failed", "zip", zip, "error", err)
	}
	return rec, nil
}

func (c *Cache) get(ctx context.Context, zip string) (Record, bool) {
	var data string
	var fetched int64
	err := c.db.QueryRowContext(ctx,
		`SELECT record, fetched_at FROM climate_cache WHERE zip = ?`, zip).Scan(&data, &fetched)
	if err != nil {
		return Record{}, false
	}
	if c.ttl > 0 && c.now().Sub(time.UnixMilli(fetched)) > c.ttl {
		return Record{}, false
	}
	var rec Record
	if json.Unmarshal([]byte(data), &rec) != nil {
		return Record{}, false
	}
	rec.Source = SourceCache
	return rec, true
}

func (c *Cache) put(ctx context.Context, zip string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO climate_cache (zip, record, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(zip) DO UPDATE SET record = excluded.record, fetched_at = excluded.fetched_at`,
		zip, string(data), c.now().UnixMilli())
	return err
}

// Purge removes all cached entries.
func (c *Cache) Purge(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM climate_cache`)
	return err
}
