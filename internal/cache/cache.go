// Package cache holds generated exercises in a bounded, time-limited LRU.
package cache

import (
	"container/list"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
)

const (
	// DefaultMaxSize is the entry limit used when none is configured
	DefaultMaxSize = 100
	// DefaultMaxAge is how long an entry stays valid when none is configured
	DefaultMaxAge = 30 * time.Minute
)

// Config configures a Cache. Zero values fall back to the defaults.
type Config struct {
	MaxSize int
	MaxAge  time.Duration
	Logger  *slog.Logger
	// Now is the clock used for entry timestamps
	Now func() time.Time
}

// Stats is a point-in-time view of cache usage
type Stats struct {
	Size        int       `json:"size"`
	MaxSize     int       `json:"max_size"`
	HitRate     float64   `json:"hit_rate"`
	TotalHits   uint64    `json:"total_hits"`
	TotalMisses uint64    `json:"total_misses"`
	Evictions   uint64    `json:"evictions"`
	OldestEntry time.Time `json:"oldest_entry,omitzero"`
}

type entry struct {
	key        string
	exercise   *domain.Exercise
	createdAt  time.Time
	accessedAt time.Time
}

// Cache is a least-recently-used exercise store. The list front is the most
// recently accessed entry. Stored exercises are shared, not copied, and must
// not be modified after Set.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	maxAge  time.Duration
	now     func() time.Time
	logger  *slog.Logger

	ll    *list.List
	items map[string]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64

	sweepMu   sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	destroyed bool
}

// New creates a cache
func New(cfg Config) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		maxSize: cfg.MaxSize,
		maxAge:  cfg.MaxAge,
		now:     cfg.Now,
		logger:  cfg.Logger,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
	}
}

func malformed(e *domain.Exercise) string {
	switch {
	case e == nil:
		return "nil exercise"
	case e.ID == "":
		return "missing id"
	case !e.Type.IsValid():
		return "invalid type"
	case e.Content.Empty():
		return "missing content"
	}
	return ""
}

// Set stores e under key, evicting the least recently accessed entry when
// full. Invalid keys and malformed exercises are logged and ignored.
func (c *Cache) Set(key string, e *domain.Exercise) {
	if strings.TrimSpace(key) == "" {
		c.logger.Warn("cache set ignored", "reason", "empty key")
		return
	}
	if reason := malformed(e); reason != "" {
		c.logger.Warn("cache set ignored", "key", key, "reason", reason)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.exercise = e
		ent.createdAt = now
		ent.accessedAt = now
		c.ll.MoveToFront(el)
		return
	}

	for c.ll.Len() >= c.maxSize {
		c.removeElement(c.ll.Back())
		c.evictions++
	}
	c.items[key] = c.ll.PushFront(&entry{key: key, exercise: e, createdAt: now, accessedAt: now})
}

// Get returns the exercise under key. Entries older than the max age are
// removed and reported as misses.
func (c *Cache) Get(key string) (*domain.Exercise, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	ent := el.Value.(*entry)
	now := c.now()
	if now.Sub(ent.createdAt) > c.maxAge {
		c.removeElement(el)
		c.misses++
		return nil, false
	}
	ent.accessedAt = now
	c.ll.MoveToFront(el)
	c.hits++
	return ent.exercise, true
}

// Delete removes key and reports whether it was present
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Clear removes every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	clear(c.items)
}

// Cleanup removes entries older than maxAge and returns how many were
// removed. A non-positive maxAge uses the configured one.
func (c *Cache) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = c.maxAge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if now.Sub(el.Value.(*entry).createdAt) > maxAge {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	if removed > 0 {
		c.logger.Debug("cache cleanup", "removed", removed, "remaining", c.ll.Len())
	}
	return removed
}

// Len returns the number of resident entries, expired or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:        c.ll.Len(),
		MaxSize:     c.maxSize,
		TotalHits:   c.hits,
		TotalMisses: c.misses,
		Evictions:   c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	for el := c.ll.Front(); el != nil; el = el.Next() {
		created := el.Value.(*entry).createdAt
		if s.OldestEntry.IsZero() || created.Before(s.OldestEntry) {
			s.OldestEntry = created
		}
	}
	return s
}

func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

// StartAutoCleanup runs Cleanup every interval until StopAutoCleanup or
// Destroy. Calling it while a sweep is running does nothing.
func (c *Cache) StartAutoCleanup(interval time.Duration) {
	if interval <= 0 {
		return
	}

	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.destroyed || c.stop != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop, c.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.Cleanup(0)
			}
		}
	}()
}

// StopAutoCleanup stops the background sweep and waits for it to exit
func (c *Cache) StopAutoCleanup() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	c.stopLocked()
}

func (c *Cache) stopLocked() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop, c.done = nil, nil
}

// Destroy stops the sweep and drops every entry. It is safe to call more
// than once; the sweep cannot be restarted afterwards.
func (c *Cache) Destroy() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.stopLocked()
	c.Clear()
}
