package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket limits inbound messages on one connection. It refills at an
// integer rate per second and never holds more than its capacity.
//
// Tokens are tracked in nanosecond units (1 token = 1e9 units) so a rate of
// R tokens/sec adds exactly R units per elapsed nanosecond.
type TokenBucket struct {
	mu sync.Mutex

	clock    Clock
	capacity int64 // units
	rate     int64 // tokens/sec == units/ns

	available int64
	last      time.Time
}

const unitsPerToken = int64(time.Second)

// NewTokenBucket returns a full bucket. A non-positive capacity or rate
// yields a bucket that admits nothing once drained.
func NewTokenBucket(clock Clock, capacityTokens, tokensPerSecond int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	capacity := toUnits(capacityTokens)
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		rate:      max(tokensPerSecond, 0),
		available: capacity,
		last:      clock.Now(),
	}
}

// Allow takes n tokens if they are available.
func (b *TokenBucket) Allow(n int64) bool {
	if n <= 0 {
		return true
	}
	cost := toUnits(n)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.available < cost {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) refill() {
	now := b.clock.Now()
	elapsed := now.Sub(b.last).Nanoseconds()
	b.last = now
	if elapsed <= 0 || b.rate == 0 || b.available >= b.capacity {
		return
	}

	missing := b.capacity - b.available
	// elapsed*rate may overflow; compare against the time needed to fill first.
	if elapsed >= missing/b.rate {
		b.available = b.capacity
		return
	}
	b.available += elapsed * b.rate
}

func toUnits(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	const maxTokens = int64(^uint64(0)>>1) / unitsPerToken
	if tokens > maxTokens {
		tokens = maxTokens
	}
	return tokens * unitsPerToken
}
