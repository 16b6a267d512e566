// Package ratelimit implements a lazily-refilled token bucket keyed by
// (tool, identity), with a per-identity global fallback bucket, as required
// by spec.md §4.4. It is hand-rolled rather than built on
// golang.org/x/time/rate because the dual-keying and idle-eviction
// semantics don't map cleanly onto rate.Limiter's API; see DESIGN.md.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures bucket capacity and refill rate, with optional
// per-tool overrides.
type Config struct {
	// DefaultRPS and DefaultBurst apply to any (tool, identity) pair not
	// named in PerToolRPS.
	DefaultRPS   float64
	DefaultBurst int
	PerToolRPS   map[string]float64
	// IdleEvict is how long a bucket may go unused before it is dropped
	// from the map to bound memory.
	IdleEvict time.Duration
}

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
	lastUsed   time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.capacity, b.tokens+b.refillRate*elapsed)
	b.lastRefill = now
}

// Limiter tracks one bucket per (tool, identity) key, plus one global
// fallback bucket per identity.
type Limiter struct {
	mu       sync.Mutex
	cfg      Config
	byKey    map[string]*bucket
	global   map[string]*bucket
	lastSwept time.Time
}

// New builds a Limiter from Config.
func New(cfg Config) *Limiter {
	if cfg.DefaultBurst <= 0 {
		cfg.DefaultBurst = 1
	}
	if cfg.IdleEvict <= 0 {
		cfg.IdleEvict = 10 * time.Minute
	}
	return &Limiter{
		cfg:    cfg,
		byKey:  map[string]*bucket{},
		global: map[string]*bucket{},
	}
}

func (l *Limiter) rpsFor(tool string) float64 {
	if r, ok := l.cfg.PerToolRPS[tool]; ok {
		return r
	}
	return l.cfg.DefaultRPS
}

func bucketKey(tool, identity string) string {
	return tool + "\x00" + identity
}

func (l *Limiter) getOrCreate(m map[string]*bucket, key string, rps float64, now time.Time) *bucket {
	b, ok := m[key]
	if !ok {
		b = &bucket{
			tokens:     float64(l.cfg.DefaultBurst),
			capacity:   float64(l.cfg.DefaultBurst),
			refillRate: rps,
			lastRefill: now,
			lastUsed:   now,
		}
		m[key] = b
	}
	return b
}

// Allow reports whether a call for (tool, identity) is admitted, consuming
// one token from both the per-(tool, identity) bucket and the per-identity
// global fallback bucket if so. Both buckets must have a token available;
// admission fails (and no token is consumed from either) if either is
// exhausted.
func (l *Limiter) Allow(tool, identity string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeSweep(now)

	keyBucket := l.getOrCreate(l.byKey, bucketKey(tool, identity), l.rpsFor(tool), now)
	globalBucket := l.getOrCreate(l.global, identity, l.cfg.DefaultRPS, now)

	keyBucket.refill(now)
	globalBucket.refill(now)

	if keyBucket.tokens < 1 || globalBucket.tokens < 1 {
		keyBucket.lastUsed = now
		globalBucket.lastUsed = now
		return false
	}

	keyBucket.tokens--
	globalBucket.tokens--
	keyBucket.lastUsed = now
	globalBucket.lastUsed = now
	return true
}

// maybeSweep evicts buckets idle beyond cfg.IdleEvict, at most once per
// IdleEvict interval to keep the sweep itself cheap.
func (l *Limiter) maybeSweep(now time.Time) {
	if !l.lastSwept.IsZero() && now.Sub(l.lastSwept) < l.cfg.IdleEvict {
		return
	}
	l.lastSwept = now
	for k, b := range l.byKey {
		if now.Sub(b.lastUsed) > l.cfg.IdleEvict {
			delete(l.byKey, k)
		}
	}
	for k, b := range l.global {
		if now.Sub(b.lastUsed) > l.cfg.IdleEvict {
			delete(l.global, k)
		}
	}
}

// Len reports the current number of tracked per-key and global buckets,
// exposed for tests and the /debug/cache-stats style introspection.
func (l *Limiter) Len() (keyBuckets, globalBuckets int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey), len(l.global)
}
