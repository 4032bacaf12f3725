// Package ratelimit bounds failed login attempts per client identity with a
// fixed-size sliding window. State is in-process and ephemeral: entries are
// lazily reset at read/write time, so the periodic sweep only bounds memory
// and a missed cycle never changes an allow/deny decision.
package ratelimit

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"sync"
	"time"
)

const shardCount = 32

type entry struct {
	count       int
	windowStart time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// SlidingWindow tracks failed authentication attempts per identity. The map
// is sharded by identity hash so unrelated identities never contend on one
// lock; within a shard the mutex keeps same-identity increments atomic.
type SlidingWindow struct {
	maxAttempts int
	window      time.Duration
	shards      [shardCount]*shard

	now func() time.Time // overridable in tests
}

// New constructs a limiter allowing maxAttempts failures per window.
func New(maxAttempts int, window time.Duration) *SlidingWindow {
	l := &SlidingWindow{
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
	for i := range l.shards {
		l.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return l
}

func (l *SlidingWindow) shardFor(identity string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return l.shards[h.Sum32()%shardCount]
}

// Check reports whether a login attempt from identity may proceed. When
// denied, retryAfter is the whole seconds until the window reopens. A stale
// entry counts as allowed; it is reset on the next recorded failure, not
// here.
func (l *SlidingWindow) Check(identity string) (allowed bool, retryAfter int) {
	sh := l.shardFor(identity)
	now := l.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[identity]
	if !ok {
		return true, 0
	}
	if now.Sub(e.windowStart) > l.window {
		// Stale entries allow immediately; RecordFailure or the sweep
		// reclaims them.
		return true, 0
	}
	if e.count >= l.maxAttempts {
		remaining := l.window - now.Sub(e.windowStart)
		return false, int(math.Ceil(remaining.Seconds()))
	}
	return true, 0
}

// RecordFailure counts a failed attempt, starting a fresh window if the
// identity has none or its window has expired.
func (l *SlidingWindow) RecordFailure(identity string) {
	sh := l.shardFor(identity)
	now := l.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[identity]
	if !ok || now.Sub(e.windowStart) > l.window {
		sh.entries[identity] = &entry{count: 1, windowStart: now}
		return
	}
	e.count++
}

// Reset drops the identity's entry entirely. Called on successful login.
func (l *SlidingWindow) Reset(identity string) {
	sh := l.shardFor(identity)
	sh.mu.Lock()
	delete(sh.entries, identity)
	sh.mu.Unlock()
}

// Sweep removes all expired entries, bounding memory growth.
func (l *SlidingWindow) Sweep() {
	now := l.now()
	for _, sh := range l.shards {
		sh.mu.Lock()
		for identity, e := range sh.entries {
			if now.Sub(e.windowStart) > l.window {
				delete(sh.entries, identity)
			}
		}
		sh.mu.Unlock()
	}
}

// Run sweeps on the given interval until the context is canceled.
func (l *SlidingWindow) Run(ctx context.Context, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("rate limit sweeper stopped")
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
