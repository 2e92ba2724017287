// Package cache keeps the last trusted extraction result per URL.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/egor6820/price-tracker-server/models"
)

// DefaultTTL is how long a trusted result may stand in for a fresh one.
const DefaultTTL = 7 * 24 * time.Hour

// DefaultMaxSnapshot caps the HTML kept alongside an entry. Larger
// documents are not snapshotted at all.
const DefaultMaxSnapshot = 256 * 1024

// Entry is one last-known-good record.
type Entry struct {
	URL      string
	Result   models.ExtractedResult
	Snapshot string
	StoredAt time.Time
}

// Store persists entries across restarts.
type Store interface {
	Save(ctx context.Context, e Entry) error
	LoadSince(ctx context.Context, since time.Time) ([]Entry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) error
}

// LastGood is an in-memory last-known-good cache with optional persistence.
// It is safe for concurrent use.
type LastGood struct {
	mu          sync.Mutex
	store       map[string]*Entry
	ttl         time.Duration
	maxSnapshot int
	now         func() time.Time
	persist     Store

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a LastGood.
type Option func(*LastGood)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(c *LastGood) { c.now = now } }

// WithStore enables write-through persistence.
func WithStore(s Store) Option { return func(c *LastGood) { c.persist = s } }

// WithMaxSnapshot sets the HTML snapshot cap in bytes. 0 disables snapshots.
func WithMaxSnapshot(n int) Option { return func(c *LastGood) { c.maxSnapshot = n } }

// New creates a LastGood cache. A background goroutine evicts expired
// entries every 10 minutes until Close is called.
func New(ttl time.Duration, opts ...Option) *LastGood {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &LastGood{
		store:       make(map[string]*Entry),
		ttl:         ttl,
		maxSnapshot: DefaultMaxSnapshot,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	go c.cleanupLoop(10 * time.Minute)
	return c
}

// TTL returns the configured time-to-live.
func (c *LastGood) TTL() time.Duration { return c.ttl }

// Get returns the entry for url if it exists and is younger than the TTL.
func (c *LastGood) Get(url string) (Entry, bool) {
	c.mu.Lock()
	e, ok := c.store[url]
	c.mu.Unlock()

	if !ok || c.expired(e.StoredAt) {
		return Entry{}, false
	}
	return *e, true
}

// Put stores a trusted result for url. Sentinel results are ignored. The
// HTML snapshot is kept only when it fits under the snapshot cap.
func (c *LastGood) Put(url string, result models.ExtractedResult, html string) {
	if url == "" || result.IsSentinel() {
		return
	}
	e := &Entry{URL: url, Result: result, StoredAt: c.now()}
	if c.maxSnapshot > 0 && len(html) <= c.maxSnapshot {
		e.Snapshot = html
	}

	c.mu.Lock()
	c.store[url] = e
	c.mu.Unlock()

	if c.persist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.persist.Save(ctx, *e); err != nil {
			slog.Warn("cache: persist entry", "url", url, "error", err)
		}
	}
}

// Len returns the number of entries held in memory, expired or not.
func (c *LastGood) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store)
}

// Restore loads unexpired entries from the store into memory.
func (c *LastGood) Restore(ctx context.Context) (int, error) {
	if c.persist == nil {
		return 0, nil
	}
	entries, err := c.persist.LoadSince(ctx, c.now().Add(-c.ttl))
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range entries {
		e := entries[i]
		if cur, ok := c.store[e.URL]; ok && cur.StoredAt.After(e.StoredAt) {
			continue
		}
		c.store[e.URL] = &e
	}
	return len(entries), nil
}

// Close stops the cleanup goroutine.
func (c *LastGood) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *LastGood) expired(storedAt time.Time) bool {
	return c.now().Sub(storedAt) > c.ttl
}

// evictExpired drops every entry older than the TTL.
func (c *LastGood) evictExpired() int {
	c.mu.Lock()
	n := 0
	for k, e := range c.store {
		if c.expired(e.StoredAt) {
			delete(c.store, k)
			n++
		}
	}
	c.mu.Unlock()

	if c.persist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.persist.DeleteBefore(ctx, c.now().Add(-c.ttl)); err != nil {
			slog.Warn("cache: prune store", "error", err)
		}
	}
	return n
}

func (c *LastGood) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.evictExpired(); n > 0 {
				slog.Debug("cache: evicted expired entries", "count", n)
			}
		}
	}
}
