package scanner

import (
	"math"
	"testing"
	"time"
)

func newFakeClockBucket(rate float64) (*TokenBucket, *time.Time) {
	now := time.Now()
	b := NewTokenBucket(rate)
	b.now = func() time.Time { return now }
	b.lastRefill = now
	return b, &now
}

func TestBucketRefillIsProportional(t *testing.T) {
	b, now := newFakeClockBucket(6)

	// Drain the initial burst.
	for i := 0; i < 6; i++ {
		if !b.Take() {
			t.Fatalf("take #%d failed on a full bucket", i)
		}
	}
	if b.Take() {
		t.Fatal("take succeeded on an empty bucket")
	}

	// 30 seconds at 6/min yields 3 tokens.
	*now = now.Add(30 * time.Second)
	if got := b.Tokens(); math.Abs(got-3) > 1e-9 {
		t.Fatalf("tokens = %v after 30s, want 3", got)
	}

	for i := 0; i < 3; i++ {
		if !b.Take() {
			t.Fatalf("take #%d failed with 3 tokens", i)
		}
	}
	if b.Take() {
		t.Fatal("bucket over-issued tokens")
	}
}

func TestBucketNeverExceedsCapacity(t *testing.T) {
	b, now := newFakeClockBucket(6)

	*now = now.Add(time.Hour)
	if got := b.Tokens(); got != 6 {
		t.Fatalf("tokens = %v after an hour, want capped at 6", got)
	}
}

func TestBucketSetRatePreservesTokens(t *testing.T) {
	b, now := newFakeClockBucket(6)

	for i := 0; i < 4; i++ {
		b.Take()
	}
	// 2 tokens left. Raising the rate keeps them and refills faster.
	b.SetRate(60)
	if got := b.Tokens(); math.Abs(got-2) > 1e-9 {
		t.Fatalf("tokens = %v after rate change, want 2", got)
	}

	*now = now.Add(time.Second)
	if got := b.Tokens(); math.Abs(got-3) > 1e-9 {
		t.Fatalf("tokens = %v one second after rate change, want 3", got)
	}

	// Lowering the rate clamps to the new capacity.
	b.SetRate(1)
	if got := b.Tokens(); got != 1 {
		t.Fatalf("tokens = %v after clamp, want 1", got)
	}
}
