package rate

import (
	"sync"
	"time"
)

// Limiter gates one class of write endpoint. Keys identify the caller,
// typically a client IP.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// FixedWindow counts requests per key in a fixed window. Each write
// endpoint owns one FixedWindow carrying its own limit, so handlers
// never pass rate configuration around. A limit of zero or less
// disables the gate.
type FixedWindow struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count   int
	resetAt time.Time
}

func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

// PerMinute is the shape every server endpoint limit takes.
func PerMinute(limit int) *FixedWindow {
	return NewFixedWindow(limit, time.Minute)
}

func (f *FixedWindow) Allow(key string) (bool, time.Duration) {
	if f.limit <= 0 {
		return true, 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	b, ok := f.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(f.window)}
		f.buckets[key] = b
	}

	if b.count >= f.limit {
		return false, time.Until(b.resetAt)
	}

	b.count++
	return true, time.Until(b.resetAt)
}
