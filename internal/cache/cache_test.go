package cache

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func exercise(id string) *domain.Exercise {
	return &domain.Exercise{
		ID:   id,
		Type: domain.TypeMultipleChoice,
		Content: domain.Content{MultipleChoice: &domain.MultipleChoiceContent{
			Question: "?",
			Options:  []domain.Option{{ID: "opt-1", Text: "a", IsCorrect: true}},
		}},
	}
}

func newTestCache(clock *fakeClock, maxSize int, maxAge time.Duration) *Cache {
	return New(Config{MaxSize: maxSize, MaxAge: maxAge, Now: clock.Now, Logger: quietLogger()})
}

func TestCache_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 10, time.Minute)
	e := exercise("ex-1")

	c.Set("k", e)
	got, ok := c.Get("k")
	if !ok || got != e {
		t.Fatalf("Get() = %v, %v; want the stored exercise", got, ok)
	}

	clock.Advance(time.Minute + time.Second)
	if got, ok := c.Get("k"); ok || got != nil {
		t.Errorf("Get() after max age = %v, %v; want miss", got, ok)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d; expired entry should be evicted on Get", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	c := newTestCache(newFakeClock(), 10, time.Minute)
	c.Set("k", exercise("ex-1"))

	if !c.Delete("k") {
		t.Error("Delete() = false; want true")
	}
	if _, ok := c.Get("k"); ok {
		t.Error("Get() after Delete should miss")
	}
	if c.Delete("k") {
		t.Error("second Delete() = true; want false")
	}
}

func TestCache_BoundedSize(t *testing.T) {
	for _, maxSize := range []int{1, 2, 5, 20} {
		t.Run(fmt.Sprintf("max=%d", maxSize), func(t *testing.T) {
			clock := newFakeClock()
			c := newTestCache(clock, maxSize, time.Hour)
			for i := 0; i <= maxSize; i++ {
				c.Set(fmt.Sprintf("k%d", i), exercise(fmt.Sprintf("ex-%d", i)))
				clock.Advance(time.Millisecond)
			}

			if c.Len() != maxSize {
				t.Errorf("Len() = %d; want %d", c.Len(), maxSize)
			}
			if _, ok := c.Get("k0"); ok {
				t.Error("first inserted key should have been evicted")
			}
			if _, ok := c.Get(fmt.Sprintf("k%d", maxSize)); !ok {
				t.Error("last inserted key should be resident")
			}
		})
	}
}

func TestCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 3, time.Hour)
	c.Set("a", exercise("a"))
	c.Set("b", exercise("b"))
	c.Set("c", exercise("c"))

	// touching a makes b the least recently used
	c.Get("a")
	c.Set("d", exercise("d"))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should be resident", k)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d; want 1", got)
	}
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := newTestCache(newFakeClock(), 2, time.Hour)
	c.Set("a", exercise("a"))
	c.Set("b", exercise("b"))
	replacement := exercise("a2")
	c.Set("a", replacement)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", c.Len())
	}
	if got, _ := c.Get("a"); got != replacement {
		t.Error("Set on an existing key should replace the value")
	}
}

func TestCache_SetIgnoresInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		ex   *domain.Exercise
	}{
		{"empty key", "", exercise("ex")},
		{"blank key", "   ", exercise("ex")},
		{"nil exercise", "k", nil},
		{"missing id", "k", &domain.Exercise{Type: domain.TypeMultipleChoice, Content: exercise("x").Content}},
		{"bad type", "k", &domain.Exercise{ID: "x", Type: "Essay", Content: exercise("x").Content}},
		{"no content", "k", &domain.Exercise{ID: "x", Type: domain.TypeMultipleChoice}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCache(newFakeClock(), 5, time.Hour)
			c.Set(tt.key, tt.ex)
			if c.Len() != 0 {
				t.Errorf("Len() = %d; invalid set should be ignored", c.Len())
			}
		})
	}
}

func TestCache_Cleanup(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 10, time.Hour)
	c.Set("old1", exercise("o1"))
	c.Set("old2", exercise("o2"))
	clock.Advance(10 * time.Minute)
	c.Set("new", exercise("n"))

	if got := c.Cleanup(5 * time.Minute); got != 2 {
		t.Errorf("Cleanup() = %d; want 2", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d; want 1", c.Len())
	}
	if got := c.Cleanup(5 * time.Minute); got != 0 {
		t.Errorf("second Cleanup() = %d; want 0", got)
	}
}

func TestCache_Stats(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock, 10, time.Hour)
	first := clock.Now()
	c.Set("a", exercise("a"))
	clock.Advance(time.Second)
	c.Set("b", exercise("b"))

	c.Get("a")
	c.Get("a")
	c.Get("b")
	c.Get("missing")

	s := c.Stats()
	if s.Size != 2 || s.MaxSize != 10 {
		t.Errorf("Size/MaxSize = %d/%d; want 2/10", s.Size, s.MaxSize)
	}
	if s.TotalHits != 3 || s.TotalMisses != 1 {
		t.Errorf("hits/misses = %d/%d; want 3/1", s.TotalHits, s.TotalMisses)
	}
	if s.HitRate != 0.75 {
		t.Errorf("HitRate = %v; want 0.75", s.HitRate)
	}
	if !s.OldestEntry.Equal(first) {
		t.Errorf("OldestEntry = %v; want %v", s.OldestEntry, first)
	}

	c.Clear()
	if s := c.Stats(); s.Size != 0 || !s.OldestEntry.IsZero() {
		t.Errorf("after Clear: Size=%d OldestEntry=%v", s.Size, s.OldestEntry)
	}
}

func TestCache_AutoCleanup(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New(Config{MaxSize: 10, MaxAge: 5 * time.Millisecond, Logger: quietLogger()})
	c.Set("k", exercise("ex"))
	c.StartAutoCleanup(2 * time.Millisecond)
	c.StartAutoCleanup(2 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("background sweep never removed the expired entry")
		}
		time.Sleep(2 * time.Millisecond)
	}

	c.StopAutoCleanup()
	c.StopAutoCleanup()
}

func TestCache_DestroyIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := New(Config{MaxSize: 10, MaxAge: time.Hour, Logger: quietLogger()})
	c.Set("k", exercise("ex"))
	c.StartAutoCleanup(time.Millisecond)

	c.Destroy()
	c.Destroy()

	if c.Len() != 0 {
		t.Errorf("Len() after Destroy = %d; want 0", c.Len())
	}

	// a destroyed cache never restarts its sweep
	c.StartAutoCleanup(time.Millisecond)
	c.StopAutoCleanup()
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := newTestCache(newFakeClock(), 8, time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := fmt.Sprintf("k%d", (g*200+i)%20)
				c.Set(k, exercise(k))
				c.Get(k)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 8 {
		t.Errorf("Len() = %d; exceeds max size 8", c.Len())
	}
}
