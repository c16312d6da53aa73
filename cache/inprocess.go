package cache

import (
	"context"
	"sync"
	"time"

	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/metrics"
)

const memoryLabel = string(BackendInProcess)

// Compile-time check to ensure InProcess implements Cache
var _ interfaces.Cache = (*InProcess)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// InProcess is a single-map cache guarded by one mutex. Expired entries are
// dropped lazily on read and periodically by a sweeper goroutine.
type InProcess struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   clock.Clock

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewInProcess starts an in-process cache. A non-positive sweepInterval uses
// DefaultSweepInterval.
func NewInProcess(clk clock.Clock, sweepInterval time.Duration) *InProcess {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	c := &InProcess{
		entries: make(map[string]entry),
		clock:   clk,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		defer close(c.done)

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()

	return c
}

func (c *InProcess) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.CacheMisses.WithLabelValues(memoryLabel).Inc()
		return nil, false, nil
	}
	if e.expired(c.clock.Now()) {
		delete(c.entries, key)
		metrics.CacheEvictions.WithLabelValues(memoryLabel, "expired").Inc()
		metrics.CacheMisses.WithLabelValues(memoryLabel).Inc()
		return nil, false, nil
	}

	metrics.CacheHits.WithLabelValues(memoryLabel).Inc()
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set stores a copy of value. A non-positive ttl stores the entry without expiry.
func (c *InProcess) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *InProcess) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// DeletePattern removes every key matching pattern and returns how many were removed.
func (c *InProcess) DeletePattern(ctx context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if MatchPattern(pattern, key) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues(memoryLabel, "invalidated").Add(float64(removed))
	}
	return removed, nil
}

func (c *InProcess) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	if e.expired(c.clock.Now()) {
		delete(c.entries, key)
		metrics.CacheEvictions.WithLabelValues(memoryLabel, "expired").Inc()
		return false, nil
	}
	return true, nil
}

func (c *InProcess) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	return nil
}

func (c *InProcess) Ping(ctx context.Context) error {
	return nil
}

// Close stops the sweeper and waits for it to exit. Safe to call more than once.
func (c *InProcess) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
	return nil
}

// Sweep removes expired entries and returns how many were removed.
func (c *InProcess) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues(memoryLabel, "expired").Add(float64(removed))
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *InProcess) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
