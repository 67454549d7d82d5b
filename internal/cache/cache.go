// Package cache holds the live station snapshot with TTL refresh
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/randytsao24/bikefinder/internal/models"
)

const (
	DefaultTTL            = 60 * time.Second
	DefaultMaxStaleness   = 10 * time.Minute
	DefaultRefreshTimeout = 15 * time.Second

	flightKey = "snapshot"
)

// Fetcher produces a fresh snapshot
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (*models.Snapshot, error)
}

// StaleDataError means a refresh failed and the last good snapshot is older
// than the staleness ceiling
type StaleDataError struct {
	Age     time.Duration
	Ceiling time.Duration
	Err     error
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf("station data is %s old (limit %s) and refresh failed: %v",
		e.Age.Round(time.Second), e.Ceiling, e.Err)
}

func (e *StaleDataError) Unwrap() error { return e.Err }

// entry pairs a snapshot with the time this cache installed it
type entry struct {
	snapshot  *models.Snapshot
	fetchedAt time.Time
}

// Cache serves one shared snapshot. Reads within the TTL return the held
// snapshot; an expired read triggers at most one concurrent refresh, and
// every caller waiting on it shares its outcome.
type Cache struct {
	fetcher Fetcher
	group   singleflight.Group

	mu      sync.RWMutex
	current *entry
	lastErr error

	ttl            time.Duration
	maxStaleness   time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
	onRefresh      func(*models.Snapshot)
	logger         *slog.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithTTL sets how long a snapshot is served without refetching
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithMaxStaleness sets how old a snapshot may get while refreshes fail
func WithMaxStaleness(d time.Duration) Option {
	return func(c *Cache) { c.maxStaleness = d }
}

// WithRefreshTimeout bounds a single refresh, independent of any caller
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Cache) { c.refreshTimeout = d }
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRefreshHook is called in its own goroutine after each new snapshot is installed
func WithRefreshHook(fn func(*models.Snapshot)) Option {
	return func(c *Cache) { c.onRefresh = fn }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache around fetcher
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:        fetcher,
		ttl:            DefaultTTL,
		maxStaleness:   DefaultMaxStaleness,
		refreshTimeout: DefaultRefreshTimeout,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current snapshot, refreshing it first when it is older than the TTL
func (c *Cache) Get(ctx context.Context) (*models.Snapshot, error) {
	if snap, ok := c.fresh(); ok {
		return snap, nil
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		return c.refresh()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Snapshot), nil
	case <-ctx.Done():
		// the refresh keeps running for the other callers
		if snap, ok := c.usable(); ok {
			return snap, nil
		}
		return nil, ctx.Err()
	}
}

// fresh returns the held snapshot if it is within the TTL
func (c *Cache) fresh() (*models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil || c.now().Sub(c.current.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.current.snapshot, true
}

// usable returns the held snapshot if it is within the staleness ceiling
func (c *Cache) usable() (*models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil || c.now().Sub(c.current.fetchedAt) > c.maxStaleness {
		return nil, false
	}
	return c.current.snapshot, true
}

// refresh runs inside the single flight
func (c *Cache) refresh() (*models.Snapshot, error) {
	// a flight that finished just before this one started may already have
	// installed a fresh snapshot
	if snap, ok := c.fresh(); ok {
		return snap, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	snap, err := c.fetcher.FetchSnapshot(ctx)
	if err == nil && snap == nil {
		err = fmt.Errorf("fetcher returned no snapshot")
	}
	if err != nil {
		return c.fallback(err)
	}

	fetchedAt := c.now()
	c.mu.Lock()
	c.current = &entry{snapshot: snap, fetchedAt: fetchedAt}
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info("station snapshot refreshed", "stations", snap.Len(), "fetched_at", fetchedAt)

	if c.onRefresh != nil {
		go c.onRefresh(snap)
	}
	return snap, nil
}

// fallback serves the last good snapshot after a failed refresh
func (c *Cache) fallback(err error) (*models.Snapshot, error) {
	c.mu.Lock()
	c.lastErr = err
	current := c.current
	c.mu.Unlock()

	if current == nil {
		c.logger.Error("station snapshot refresh failed with nothing cached", "error", err)
		return nil, err
	}

	age := c.now().Sub(current.fetchedAt)
	if age > c.maxStaleness {
		c.logger.Error("station snapshot refresh failed past staleness limit",
			"error", err, "age", age.String())
		return nil, &StaleDataError{Age: age, Ceiling: c.maxStaleness, Err: err}
	}

	c.logger.Warn("station snapshot refresh failed, serving previous snapshot",
		"error", err, "age", age.String())
	return current.snapshot, nil
}

// Status describes the cache for health reporting
type Status struct {
	HasSnapshot bool          `json:"has_snapshot"`
	Stations    int           `json:"stations"`
	FetchedAt   time.Time     `json:"fetched_at,omitempty"`
	Age         time.Duration `json:"age"`
	LastError   string        `json:"last_error,omitempty"`
}

// Status reports the held snapshot's age and the last refresh error
func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s Status
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	if c.current != nil {
		s.HasSnapshot = true
		s.Stations = c.current.snapshot.Len()
		s.FetchedAt = c.current.fetchedAt
		s.Age = c.now().Sub(c.current.fetchedAt)
	}
	return s
}
