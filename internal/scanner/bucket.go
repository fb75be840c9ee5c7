package scanner

import (
	"sync"
	"time"
)

// TokenBucket rate-limits file processing. Capacity is expressed as
// files per minute and doubles as the burst ceiling; refill is
// continuous, proportional to elapsed wall-clock time. The x/time/rate
// limiter cannot serve here because the live tuning surface needs both
// an observable token count and an in-place rate change that preserves
// accumulated tokens.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a bucket that starts full.
func NewTokenBucket(ratePerMinute float64) *TokenBucket {
	if ratePerMinute <= 0 {
		ratePerMinute = 1
	}
	b := &TokenBucket{
		capacity: ratePerMinute,
		tokens:   ratePerMinute,
		now:      time.Now,
	}
	b.lastRefill = b.now()
	return b
}

// Take consumes one token if available.
func (b *TokenBucket) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens returns the current token count after refill.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// SetRate changes the refill rate and capacity without discarding
// already-accumulated tokens, clamping to the new capacity.
func (b *TokenBucket) SetRate(ratePerMinute float64) {
	if ratePerMinute <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	b.capacity = ratePerMinute
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.lastRefill = now

	b.tokens += elapsed * b.capacity / 60
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}
