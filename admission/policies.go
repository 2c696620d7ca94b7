package admission

import (
	"context"
	"sync"
	"time"
)

// stripeCount shards per-partition state so hot partitions do not contend
// on a single lock.
const stripeCount = 16

type stripe[T any] struct {
	mu    sync.Mutex
	items map[string]*T
}

type stripedStore[T any] struct {
	stripes [stripeCount]stripe[T]
}

func newStripedStore[T any]() *stripedStore[T] {
	store := &stripedStore[T]{}
	for i := range store.stripes {
		store.stripes[i].items = map[string]*T{}
	}
	return store
}

func (s *stripedStore[T]) with(key string, fn func(entry *T)) {
	idx := stripeIndex(key)
	shard := &s.stripes[idx]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	entry, ok := shard.items[key]
	if !ok {
		entry = new(T)
		shard.items[key] = entry
	}
	fn(entry)
}

func stripeIndex(key string) int {
	var hash uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		hash ^= uint32(key[i])
		hash *= 16777619
	}
	return int(hash % stripeCount)
}

// slidingWindowPolicy admits up to limit permits within any trailing
// window, tracking exact grant timestamps per partition.
type slidingWindowPolicy struct {
	limit  int
	window time.Duration
	now    func() time.Time
	store  *stripedStore[slidingWindowEntry]
}

type slidingWindowEntry struct {
	grants []time.Time
}

func newSlidingWindowPolicy(limit int, window time.Duration, now func() time.Time) *slidingWindowPolicy {
	return &slidingWindowPolicy{
		limit:  limit,
		window: window,
		now:    now,
		store:  newStripedStore[slidingWindowEntry](),
	}
}

func (p *slidingWindowPolicy) take(key string) (bool, time.Duration) {
	now := p.now()
	cutoff := now.Add(-p.window)
	allowed := false
	var retryAfter time.Duration

	p.store.with(key, func(entry *slidingWindowEntry) {
		pruned := entry.grants[:0]
		for _, grant := range entry.grants {
			if grant.After(cutoff) {
				pruned = append(pruned, grant)
			}
		}
		entry.grants = pruned

		if len(entry.grants) < p.limit {
			entry.grants = append(entry.grants, now)
			allowed = true
			return
		}
		oldest := entry.grants[0]
		retryAfter = oldest.Add(p.window).Sub(now)
	})
	if retryAfter < 0 {
		retryAfter = 0
	}
	return allowed, retryAfter
}

// tokenBucketPolicy refills ratePerMinute tokens per minute up to capacity,
// allowing short bursts above the steady rate.
type tokenBucketPolicy struct {
	ratePerMinute int
	capacity      int
	now           func() time.Time
	store         *stripedStore[tokenBucketEntry]
}

type tokenBucketEntry struct {
	tokens   float64
	lastFill time.Time
}

func newTokenBucketPolicy(ratePerMinute int, burst int, now func() time.Time) *tokenBucketPolicy {
	capacity := ratePerMinute + burst
	return &tokenBucketPolicy{
		ratePerMinute: ratePerMinute,
		capacity:      capacity,
		now:           now,
		store:         newStripedStore[tokenBucketEntry](),
	}
}

func (p *tokenBucketPolicy) take(key string) (bool, time.Duration) {
	now := p.now()
	refillPerSecond := float64(p.ratePerMinute) / 60.0
	allowed := false
	var retryAfter time.Duration

	p.store.with(key, func(entry *tokenBucketEntry) {
		if entry.lastFill.IsZero() {
			entry.tokens = float64(p.capacity)
			entry.lastFill = now
		}
		elapsed := now.Sub(entry.lastFill).Seconds()
		if elapsed > 0 {
			entry.tokens += elapsed * refillPerSecond
			if entry.tokens > float64(p.capacity) {
				entry.tokens = float64(p.capacity)
			}
			entry.lastFill = now
		}
		if entry.tokens >= 1 {
			entry.tokens--
			allowed = true
			return
		}
		deficit := 1 - entry.tokens
		retryAfter = time.Duration(deficit / refillPerSecond * float64(time.Second))
	})
	if !allowed && retryAfter <= 0 {
		retryAfter = time.Second
	}
	return allowed, retryAfter
}

// fixedWindowPolicy counts permits inside aligned windows and resets the
// count when a new window opens.
type fixedWindowPolicy struct {
	limit  int
	window time.Duration
	now    func() time.Time
	store  *stripedStore[fixedWindowEntry]
}

type fixedWindowEntry struct {
	windowStart time.Time
	count       int
}

func newFixedWindowPolicy(limit int, window time.Duration, now func() time.Time) *fixedWindowPolicy {
	return &fixedWindowPolicy{
		limit:  limit,
		window: window,
		now:    now,
		store:  newStripedStore[fixedWindowEntry](),
	}
}

func (p *fixedWindowPolicy) take(key string) (bool, time.Duration) {
	now := p.now()
	allowed := false
	var retryAfter time.Duration

	p.store.with(key, func(entry *fixedWindowEntry) {
		if entry.windowStart.IsZero() || now.Sub(entry.windowStart) >= p.window {
			entry.windowStart = now
			entry.count = 0
		}
		if entry.count < p.limit {
			entry.count++
			allowed = true
			return
		}
		retryAfter = entry.windowStart.Add(p.window).Sub(now)
	})
	if !allowed && retryAfter <= 0 {
		retryAfter = time.Second
	}
	return allowed, retryAfter
}

// concurrencyPolicy caps simultaneous in-flight operations per partition.
// Callers beyond the cap wait in a bounded queue for an in-flight slot to
// free; only callers beyond cap plus queue depth are rejected outright. It
// limits sessions, not throughput.
type concurrencyPolicy struct {
	limit      int
	queueDepth int
	store      *stripedStore[concurrencyEntry]
}

type concurrencyEntry struct {
	slots   chan struct{}
	waiting int
}

func newConcurrencyPolicy(limit int, queueDepth int) *concurrencyPolicy {
	return &concurrencyPolicy{
		limit:      limit,
		queueDepth: queueDepth,
		store:      newStripedStore[concurrencyEntry](),
	}
}

// acquire returns a release closure on success. A caller that finds every
// slot busy parks in the partition's queue until a slot frees or ctx is
// done; a caller that finds the queue full as well is turned away with
// ok=false. A non-nil error is only ever the context's.
func (p *concurrencyPolicy) acquire(ctx context.Context, key string) (func(), bool, error) {
	var (
		slots    chan struct{}
		admitted bool
		queued   bool
	)
	p.store.with(key, func(entry *concurrencyEntry) {
		if entry.slots == nil {
			entry.slots = make(chan struct{}, p.limit)
		}
		slots = entry.slots
		select {
		case entry.slots <- struct{}{}:
			admitted = true
		default:
		}
		if !admitted && entry.waiting < p.queueDepth {
			entry.waiting++
			queued = true
		}
	})
	if !admitted && !queued {
		return nil, false, nil
	}
	if queued {
		defer p.store.with(key, func(entry *concurrencyEntry) {
			entry.waiting--
		})
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-slots
		})
	}
	return release, true, nil
}
